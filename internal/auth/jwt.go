// Package auth issues and validates the HS256 tokens the admin console
// authenticates with.
package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const (
	claimSubject  = "sub"
	claimAdminID  = "admin_id"
	claimTenantID = "tenant_id"
	claimRole     = "role"
	claimUsername = "username"
)

// Identity is the authenticated admin carried by a token.
type Identity struct {
	AdminID  string
	TenantID string
	Username string
	Role     string
}

// JWTMiddleware returns a JWT auth middleware configured for HS256 tokens.
// The query token lookup lets browser EventSource and WebSocket clients
// authenticate where custom headers are unavailable.
func JWTMiddleware(secret string, skipper middleware.Skipper) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		SigningKey:    []byte(secret),
		SigningMethod: "HS256",
		TokenLookup:   "header:Authorization:Bearer ,query:token",
		Skipper:       skipper,
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return jwt.MapClaims{}
		},
	})
}

// GenerateToken creates a signed JWT for the admin.
func GenerateToken(identity Identity, secret string, expiresIn time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(identity.AdminID) == "" {
		return "", time.Time{}, fmt.Errorf("admin id is required")
	}
	if strings.TrimSpace(secret) == "" {
		return "", time.Time{}, fmt.Errorf("jwt secret is required")
	}
	if expiresIn <= 0 {
		return "", time.Time{}, fmt.Errorf("jwt expires in must be positive")
	}

	now := time.Now().UTC()
	expiresAt := now.Add(expiresIn)
	claims := jwt.MapClaims{
		claimSubject:  identity.AdminID,
		claimAdminID:  identity.AdminID,
		claimTenantID: identity.TenantID,
		claimUsername: identity.Username,
		claimRole:     identity.Role,
		"iat":         now.Unix(),
		"exp":         expiresAt.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// IdentityFromContext extracts the authenticated admin from JWT claims.
func IdentityFromContext(c echo.Context) (Identity, error) {
	token, ok := c.Get("user").(*jwt.Token)
	if !ok || token == nil || !token.Valid {
		return Identity{}, echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, echo.NewHTTPError(http.StatusUnauthorized, "invalid token claims")
	}
	identity := Identity{
		AdminID:  claimString(claims, claimAdminID),
		TenantID: claimString(claims, claimTenantID),
		Username: claimString(claims, claimUsername),
		Role:     claimString(claims, claimRole),
	}
	if identity.AdminID == "" {
		identity.AdminID = claimString(claims, claimSubject)
	}
	if identity.AdminID == "" {
		return Identity{}, echo.NewHTTPError(http.StatusUnauthorized, "admin id missing")
	}
	return identity, nil
}

func claimString(claims jwt.MapClaims, key string) string {
	raw, ok := claims[key]
	if !ok || raw == nil {
		return ""
	}
	switch v := raw.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(raw)
	}
}
