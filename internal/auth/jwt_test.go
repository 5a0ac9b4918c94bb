package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateTokenRoundTrip(t *testing.T) {
	secret := "test-secret"
	identity := Identity{
		AdminID:  "admin-123",
		TenantID: "tenant-1",
		Username: "alice",
		Role:     "SUPER_ADMIN",
	}

	signed, expiresAt, err := GenerateToken(identity, secret, time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, signed)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	token, err := jwt.Parse(signed, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	require.NoError(t, err)
	require.True(t, token.Valid)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.Set("user", token)

	got, err := IdentityFromContext(c)
	require.NoError(t, err)
	assert.Equal(t, identity, got)
}

func TestGenerateTokenValidation(t *testing.T) {
	_, _, err := GenerateToken(Identity{}, "secret", time.Hour)
	assert.Error(t, err)

	_, _, err = GenerateToken(Identity{AdminID: "a"}, "", time.Hour)
	assert.Error(t, err)

	_, _, err = GenerateToken(Identity{AdminID: "a"}, "secret", 0)
	assert.Error(t, err)
}

func TestIdentityFromContextMissingUser(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	_, err := IdentityFromContext(c)
	require.Error(t, err)

	httpErr, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
}

func TestIdentityFromContextWrongSecret(t *testing.T) {
	signed, _, err := GenerateToken(Identity{AdminID: "admin-1"}, "right-secret", time.Hour)
	require.NoError(t, err)

	token, err := jwt.Parse(signed, func(token *jwt.Token) (interface{}, error) {
		return []byte("wrong-secret"), nil
	})
	require.Error(t, err)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.Set("user", token)

	_, err = IdentityFromContext(c)
	assert.Error(t, err)
}
