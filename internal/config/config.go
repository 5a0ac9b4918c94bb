package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath   = "config.toml"
	DefaultHTTPAddr     = ":8080"
	DefaultJWTExpiresIn = "24h"
	DefaultPGHost       = "127.0.0.1"
	DefaultPGPort       = 5432
	DefaultPGUser       = "postgres"
	DefaultPGDatabase   = "relaydesk"
	DefaultPGSSLMode    = "disable"
	DefaultRedisAddr    = "127.0.0.1:6379"
	DefaultDedupTTL     = "10m"
	DefaultSendTimeout  = "15s"
	DefaultMetricsCron  = "@every 30s"
	DefaultTenantName   = "default"
)

type Config struct {
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
	Admin    AdminConfig    `toml:"admin"`
	Auth     AuthConfig     `toml:"auth"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	Facebook FacebookConfig `toml:"facebook"`
	Dispatch DispatchConfig `toml:"dispatch"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Tenant   TenantConfig   `toml:"tenant"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

// AdminConfig seeds the bootstrap super admin on first start.
type AdminConfig struct {
	Username string `toml:"username"`
	Password string `toml:"password"`
}

type AuthConfig struct {
	JWTSecret    string `toml:"jwt_secret"`
	JWTExpiresIn string `toml:"jwt_expires_in"`
}

type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	DedupTTL string `toml:"dedup_ttl"`
}

// FacebookConfig holds webhook verification settings shared by all pages.
// Page access tokens live in the platform_accounts table, not here.
type FacebookConfig struct {
	VerifyToken string `toml:"verify_token"`
	GraphURL    string `toml:"graph_url"`
}

type DispatchConfig struct {
	SendTimeout string `toml:"send_timeout"`
}

type MetricsConfig struct {
	BroadcastCron string `toml:"broadcast_cron"`
}

type TenantConfig struct {
	Name string `toml:"name"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Admin: AdminConfig{
			Username: "admin",
			Password: "change-your-password-here",
		},
		Auth: AuthConfig{
			JWTExpiresIn: DefaultJWTExpiresIn,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Redis: RedisConfig{
			Addr:     DefaultRedisAddr,
			DedupTTL: DefaultDedupTTL,
		},
		Facebook: FacebookConfig{
			GraphURL: "https://graph.facebook.com/v17.0",
		},
		Dispatch: DispatchConfig{
			SendTimeout: DefaultSendTimeout,
		},
		Metrics: MetricsConfig{
			BroadcastCron: DefaultMetricsCron,
		},
		Tenant: TenantConfig{
			Name: DefaultTenantName,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
