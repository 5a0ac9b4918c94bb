package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/relaydesk/relaydesk/internal/channel"
	"github.com/relaydesk/relaydesk/internal/conversation"
	"github.com/relaydesk/relaydesk/internal/ingest"
	"github.com/relaydesk/relaydesk/internal/message"
	"github.com/relaydesk/relaydesk/internal/realtime"
)

// WidgetHandler serves the embedded website chat. Visitors are identified by
// client IP; no authentication is involved.
type WidgetHandler struct {
	pipeline      *ingest.Pipeline
	conversations *conversation.Service
	messages      *message.Service
	hub           *realtime.Hub
	logger        *slog.Logger
}

// NewWidgetHandler creates a WidgetHandler.
func NewWidgetHandler(pipeline *ingest.Pipeline, conversations *conversation.Service, messages *message.Service, hub *realtime.Hub, log *slog.Logger) *WidgetHandler {
	return &WidgetHandler{
		pipeline:      pipeline,
		conversations: conversations,
		messages:      messages,
		hub:           hub,
		logger:        log.With(slog.String("handler", "widget")),
	}
}

// Register registers widget routes.
func (h *WidgetHandler) Register(e *echo.Echo) {
	e.POST("/api/chat/widget", h.Send)
	e.GET("/api/chat/widget/messages", h.History)
	e.GET("/api/chat/widget/stream", h.Stream)
	e.GET("/api/chat/widget/ip", h.IP)
}

type widgetSendRequest struct {
	Content string `json:"content" validate:"required"`
}

// Send ingests one visitor message.
func (h *WidgetHandler) Send(c echo.Context) error {
	var req widgetSendRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	visitor := visitorID(clientIP(c))
	result, err := h.pipeline.Ingest(c.Request().Context(), channel.InboundEvent{
		Platform:    channel.PlatformWebsite,
		ChannelID:   visitor,
		UserID:      visitor,
		Text:        req.Content,
		ContentType: channel.ContentText,
		ChatType:    "user",
		ChatID:      visitor,
		Timestamp:   time.Now(),
	})
	if err != nil {
		if errors.Is(err, ingest.ErrInvalidPayload) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{
		"conversation_id": result.Conversation.ID,
		"message":         result.Message,
	})
}

// History returns the visitor's conversation messages in send order. A
// visitor without a conversation gets an empty list, not an error.
func (h *WidgetHandler) History(c echo.Context) error {
	visitor := visitorID(clientIP(c))
	conv, err := h.conversations.FindByChannel(c.Request().Context(), channel.PlatformWebsite, visitor, visitor)
	if errors.Is(err, conversation.ErrNotFound) {
		return c.JSON(http.StatusOK, map[string]any{"messages": []message.Message{}})
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	messages, err := h.messages.ListByConversation(c.Request().Context(), conv.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{
		"conversation_id": conv.ID,
		"messages":        messages,
	})
}

// Stream feeds the visitor replies over SSE.
func (h *WidgetHandler) Stream(c echo.Context) error {
	visitor := visitorID(clientIP(c))
	writer, flusher, err := prepareSSE(c)
	if err != nil {
		return err
	}

	events, cancel := h.hub.Subscribe(realtime.WidgetTopic(visitor), nil)
	defer cancel()

	heartbeat := time.NewTicker(20 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-c.Request().Context().Done():
			return nil
		case <-heartbeat.C:
			if err := writeSSEJSON(writer, flusher, map[string]any{"type": "ping"}); err != nil {
				return nil
			}
		case envelope, ok := <-events:
			if !ok {
				return nil
			}
			if err := writeSSEJSON(writer, flusher, envelope); err != nil {
				return nil
			}
		}
	}
}

// IP echoes the resolved client address so the widget can display or debug
// its identity.
func (h *WidgetHandler) IP(c echo.Context) error {
	ip := clientIP(c)
	return c.JSON(http.StatusOK, map[string]string{
		"ip":         ip,
		"visitor_id": visitorID(ip),
	})
}
