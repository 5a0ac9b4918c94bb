package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/relaydesk/relaydesk/internal/metrics"
)

// MetricsHandler serves on-demand dashboard counters.
type MetricsHandler struct {
	metrics *metrics.Service
	logger  *slog.Logger
}

// NewMetricsHandler creates a MetricsHandler.
func NewMetricsHandler(service *metrics.Service, log *slog.Logger) *MetricsHandler {
	return &MetricsHandler{
		metrics: service,
		logger:  log.With(slog.String("handler", "metrics")),
	}
}

// Register registers metrics routes.
func (h *MetricsHandler) Register(e *echo.Echo) {
	e.GET("/api/metrics", h.Snapshot)
}

// Snapshot computes and returns the current counters.
func (h *MetricsHandler) Snapshot(c echo.Context) error {
	if _, err := requireIdentity(c); err != nil {
		return err
	}
	snapshot, err := h.metrics.Snapshot(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, snapshot)
}
