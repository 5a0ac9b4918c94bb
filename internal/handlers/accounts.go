package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/relaydesk/relaydesk/internal/channel"
	"github.com/relaydesk/relaydesk/internal/platformaccount"
)

// AccountHandler manages platform credentials (LINE channels, Facebook
// pages). Super admin only.
type AccountHandler struct {
	accounts *platformaccount.Service
	registry *channel.Registry
	tenantID string
	logger   *slog.Logger
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(accounts *platformaccount.Service, registry *channel.Registry, tenantID string, log *slog.Logger) *AccountHandler {
	return &AccountHandler{
		accounts: accounts,
		registry: registry,
		tenantID: tenantID,
		logger:   log.With(slog.String("handler", "accounts")),
	}
}

// Register registers platform account routes.
func (h *AccountHandler) Register(e *echo.Echo) {
	e.GET("/api/platforms", h.Platforms)
	e.GET("/api/accounts", h.List)
	e.POST("/api/accounts", h.Create)
	e.DELETE("/api/accounts/:id", h.Deactivate)
}

// Platforms returns the registered platform descriptors.
func (h *AccountHandler) Platforms(c echo.Context) error {
	if _, err := requireIdentity(c); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"platforms": h.registry.ListDescriptors()})
}

// List returns the tenant's platform accounts, optionally filtered by the
// "platform" query parameter.
func (h *AccountHandler) List(c echo.Context) error {
	if _, err := requireSuperAdmin(c); err != nil {
		return err
	}
	var platform channel.Platform
	if raw := c.QueryParam("platform"); raw != "" {
		parsed, err := channel.ParsePlatform(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		platform = parsed
	}
	accounts, err := h.accounts.List(c.Request().Context(), h.tenantID, platform)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{"accounts": accounts})
}

// Create registers platform credentials.
func (h *AccountHandler) Create(c echo.Context) error {
	if _, err := requireSuperAdmin(c); err != nil {
		return err
	}
	var req platformaccount.CreateInput
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	parsed, err := channel.ParsePlatform(req.Platform.String())
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.Platform = parsed
	if _, ok := h.registry.Get(parsed); !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "platform has no adapter")
	}
	created, err := h.accounts.Create(c.Request().Context(), h.tenantID, req)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, created)
}

// Deactivate disables an account. The record is retained so conversations
// created through it keep a valid reference.
func (h *AccountHandler) Deactivate(c echo.Context) error {
	if _, err := requireSuperAdmin(c); err != nil {
		return err
	}
	err := h.accounts.Deactivate(c.Request().Context(), c.Param("id"))
	if errors.Is(err, platformaccount.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "account not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
