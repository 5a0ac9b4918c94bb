package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/relaydesk/relaydesk/internal/channel"
	"github.com/relaydesk/relaydesk/internal/channel/adapters/facebook"
	"github.com/relaydesk/relaydesk/internal/ingest"
	"github.com/relaydesk/relaydesk/internal/platformaccount"
)

// FacebookWebhookHandler receives Messenger page webhooks and serves the
// subscription handshake.
type FacebookWebhookHandler struct {
	adapter     *facebook.Adapter
	accounts    *platformaccount.Service
	pipeline    *ingest.Pipeline
	verifyToken string
	logger      *slog.Logger
}

// NewFacebookWebhookHandler creates a FacebookWebhookHandler.
func NewFacebookWebhookHandler(adapter *facebook.Adapter, accounts *platformaccount.Service, pipeline *ingest.Pipeline, verifyToken string, log *slog.Logger) *FacebookWebhookHandler {
	return &FacebookWebhookHandler{
		adapter:     adapter,
		accounts:    accounts,
		pipeline:    pipeline,
		verifyToken: verifyToken,
		logger:      log.With(slog.String("handler", "webhook_facebook")),
	}
}

// Register registers webhook routes.
func (h *FacebookWebhookHandler) Register(e *echo.Echo) {
	e.GET("/api/webhooks/facebook", h.Verify)
	e.POST("/api/webhooks/facebook", h.Receive)
}

// Verify answers the Messenger subscription handshake.
func (h *FacebookWebhookHandler) Verify(c echo.Context) error {
	challenge, err := facebook.VerifyWebhook(
		c.QueryParam("hub.mode"),
		c.QueryParam("hub.verify_token"),
		c.QueryParam("hub.challenge"),
		h.verifyToken,
	)
	if err != nil {
		h.logger.Warn("facebook handshake rejected", slog.String("error", err.Error()))
		return echo.NewHTTPError(http.StatusForbidden, "verification failed")
	}
	return c.String(http.StatusOK, challenge)
}

// Receive handles one webhook delivery. Events for unknown pages and
// malformed events are dropped with a 200 ack; storage failures return 5xx
// so Facebook redelivers.
func (h *FacebookWebhookHandler) Receive(c echo.Context) error {
	var payload facebook.WebhookPayload
	if err := c.Bind(&payload); err != nil {
		h.logger.Warn("facebook webhook body rejected", slog.String("error", err.Error()))
		return c.NoContent(http.StatusOK)
	}

	for _, entry := range payload.Entry {
		account, err := h.accounts.GetByExternalID(c.Request().Context(), channel.PlatformFacebook, entry.ID)
		if errors.Is(err, platformaccount.ErrNotFound) {
			h.logger.Warn("webhook for unknown facebook page", slog.String("page_id", entry.ID))
			continue
		}
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}

		entryPayload := facebook.WebhookPayload{Object: payload.Object, Entry: []facebook.Entry{entry}}
		for _, event := range h.adapter.MapEntries(entryPayload, account.Credentials()) {
			if _, err := h.pipeline.Ingest(c.Request().Context(), event); err != nil {
				if errors.Is(err, ingest.ErrInvalidPayload) {
					h.logger.Warn("invalid facebook event skipped", slog.String("error", err.Error()))
					continue
				}
				return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
			}
		}
	}
	return c.NoContent(http.StatusOK)
}
