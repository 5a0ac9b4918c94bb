package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/relaydesk/relaydesk/internal/channel/adapters/line"
	"github.com/relaydesk/relaydesk/internal/ingest"
	"github.com/relaydesk/relaydesk/internal/platformaccount"
)

// LineWebhookHandler receives LINE Messaging API webhooks.
type LineWebhookHandler struct {
	adapter  *line.Adapter
	accounts *platformaccount.Service
	pipeline *ingest.Pipeline
	logger   *slog.Logger
}

// NewLineWebhookHandler creates a LineWebhookHandler.
func NewLineWebhookHandler(adapter *line.Adapter, accounts *platformaccount.Service, pipeline *ingest.Pipeline, log *slog.Logger) *LineWebhookHandler {
	return &LineWebhookHandler{
		adapter:  adapter,
		accounts: accounts,
		pipeline: pipeline,
		logger:   log.With(slog.String("handler", "webhook_line")),
	}
}

// Register registers webhook routes.
func (h *LineWebhookHandler) Register(e *echo.Echo) {
	e.POST("/api/webhooks/line/:account_id", h.Receive)
}

// Receive handles one webhook delivery. Malformed or unparseable payloads
// are acknowledged with 200 so LINE stops redelivering them; only storage
// failures return 5xx to trigger a retry.
func (h *LineWebhookHandler) Receive(c echo.Context) error {
	account, err := h.accounts.GetActive(c.Request().Context(), c.Param("account_id"))
	if errors.Is(err, platformaccount.ErrNotFound) {
		h.logger.Warn("webhook for unknown line account", slog.String("account_id", c.Param("account_id")))
		return c.NoContent(http.StatusOK)
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	events, err := h.adapter.ParseWebhook(c.Request(), account.Credentials())
	if err != nil {
		// Bad signature or malformed body. Not retryable.
		h.logger.Warn("line webhook rejected",
			slog.String("account_id", account.ID),
			slog.String("error", err.Error()))
		return c.NoContent(http.StatusOK)
	}

	for _, event := range events {
		if _, err := h.pipeline.Ingest(c.Request().Context(), event); err != nil {
			if errors.Is(err, ingest.ErrInvalidPayload) {
				h.logger.Warn("invalid line event skipped", slog.String("error", err.Error()))
				continue
			}
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.NoContent(http.StatusOK)
}
