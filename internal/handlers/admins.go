package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/relaydesk/relaydesk/internal/admin"
)

// AdminHandler manages console operator accounts. Super admin only.
type AdminHandler struct {
	admins   *admin.Service
	tenantID string
	logger   *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(admins *admin.Service, tenantID string, log *slog.Logger) *AdminHandler {
	return &AdminHandler{
		admins:   admins,
		tenantID: tenantID,
		logger:   log.With(slog.String("handler", "admins")),
	}
}

// Register registers admin management routes.
func (h *AdminHandler) Register(e *echo.Echo) {
	e.GET("/api/admins", h.List)
	e.POST("/api/admins", h.Create)
}

// List returns the tenant's operator accounts.
func (h *AdminHandler) List(c echo.Context) error {
	if _, err := requireSuperAdmin(c); err != nil {
		return err
	}
	admins, err := h.admins.List(c.Request().Context(), h.tenantID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{"admins": admins})
}

// Create adds an operator account.
func (h *AdminHandler) Create(c echo.Context) error {
	if _, err := requireSuperAdmin(c); err != nil {
		return err
	}
	var req admin.CreateInput
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if !req.Role.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown role")
	}
	created, err := h.admins.Create(c.Request().Context(), h.tenantID, req)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, created)
}
