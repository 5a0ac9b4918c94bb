package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/relaydesk/relaydesk/internal/admin"
	"github.com/relaydesk/relaydesk/internal/auth"
)

// AuthHandler serves console login and session introspection.
type AuthHandler struct {
	admins    *admin.Service
	tenantID  string
	jwtSecret string
	expiresIn time.Duration
	logger    *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(admins *admin.Service, tenantID, jwtSecret string, expiresIn time.Duration, log *slog.Logger) *AuthHandler {
	return &AuthHandler{
		admins:    admins,
		tenantID:  tenantID,
		jwtSecret: jwtSecret,
		expiresIn: expiresIn,
		logger:    log.With(slog.String("handler", "auth")),
	}
}

// Register registers auth routes.
func (h *AuthHandler) Register(e *echo.Echo) {
	e.POST("/auth/login", h.Login)
	e.GET("/auth/me", h.Me)
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	Admin     admin.Admin `json:"admin"`
}

// Login authenticates an operator and issues a JWT.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	found, err := h.admins.Authenticate(c.Request().Context(), h.tenantID, req.Username, req.Password)
	if errors.Is(err, admin.ErrInvalidCredentials) {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	token, expiresAt, err := auth.GenerateToken(auth.Identity{
		AdminID:  found.ID,
		TenantID: found.TenantID,
		Username: found.Username,
		Role:     string(found.Role),
	}, h.jwtSecret, h.expiresIn)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	h.logger.Info("admin logged in", slog.String("admin_id", found.ID))
	return c.JSON(http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		Admin:     found,
	})
}

// Me returns the authenticated admin's account.
func (h *AuthHandler) Me(c echo.Context) error {
	identity, err := requireIdentity(c)
	if err != nil {
		return err
	}
	found, err := h.admins.Get(c.Request().Context(), identity.AdminID)
	if errors.Is(err, admin.ErrNotFound) {
		return echo.NewHTTPError(http.StatusUnauthorized, "account no longer exists")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, found)
}
