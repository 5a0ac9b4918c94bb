package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultHTTPAddr, cfg.Server.Addr)
	assert.Equal(t, DefaultJWTExpiresIn, cfg.Auth.JWTExpiresIn)
	assert.Equal(t, DefaultPGDatabase, cfg.Postgres.Database)
	assert.Equal(t, DefaultRedisAddr, cfg.Redis.Addr)
	assert.Equal(t, DefaultDedupTTL, cfg.Redis.DedupTTL)
	assert.Equal(t, DefaultSendTimeout, cfg.Dispatch.SendTimeout)
	assert.Equal(t, DefaultMetricsCron, cfg.Metrics.BroadcastCron)
	assert.Equal(t, DefaultTenantName, cfg.Tenant.Name)
}

func TestLoadOverridesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[server]
addr = ":9090"

[auth]
jwt_secret = "super-secret"
jwt_expires_in = "2h"

[postgres]
host = "db.internal"
port = 5433
user = "relay"
password = "pw"
database = "relay"
sslmode = "require"

[facebook]
verify_token = "verify-me"

[tenant]
name = "acme"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "super-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, "2h", cfg.Auth.JWTExpiresIn)
	assert.Equal(t, "verify-me", cfg.Facebook.VerifyToken)
	assert.Equal(t, "acme", cfg.Tenant.Name)
	// Sections absent from the file keep their defaults.
	assert.Equal(t, DefaultRedisAddr, cfg.Redis.Addr)
	assert.Equal(t, "postgres://relay:pw@db.internal:5433/relay?sslmode=require", cfg.Postgres.DSN())
}
