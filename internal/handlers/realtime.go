package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/relaydesk/relaydesk/internal/admin"
	"github.com/relaydesk/relaydesk/internal/auth"
	"github.com/relaydesk/relaydesk/internal/realtime"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// feedScope is the assignment lookup the realtime feeds gate on.
type feedScope interface {
	CanSee(ctx context.Context, adminID, conversationID string) (bool, error)
	IsAssigned(ctx context.Context, conversationID, adminID string) (bool, error)
}

// RealtimeHandler serves the console's live feeds: the WebSocket admin feed
// and per-conversation SSE streams. Every event is scope-checked on the
// server before it reaches a client; a check that cannot be completed drops
// the event.
type RealtimeHandler struct {
	hub      *realtime.Hub
	admins   feedScope
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewRealtimeHandler creates a RealtimeHandler.
func NewRealtimeHandler(hub *realtime.Hub, admins feedScope, log *slog.Logger) *RealtimeHandler {
	return &RealtimeHandler{
		hub:    hub,
		admins: admins,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Tokens authenticate connections; the console may be served
			// from another origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: log.With(slog.String("handler", "realtime")),
	}
}

// Register registers realtime routes.
func (h *RealtimeHandler) Register(e *echo.Echo) {
	e.GET("/api/feed", h.AdminFeed)
	e.GET("/api/conversations/:id/stream", h.ConversationStream)
	e.GET("/api/metrics/stream", h.MetricsStream)
}

// AdminFeed upgrades to a WebSocket and forwards conversation events the
// caller is allowed to see.
func (h *RealtimeHandler) AdminFeed(c echo.Context) error {
	identity, err := requireIdentity(c)
	if err != nil {
		return err
	}
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	events, cancel := h.hub.Subscribe(realtime.TopicAdminFeed, nil)
	defer cancel()

	// Reader only consumes control frames; a read error means the peer is
	// gone and unblocks the writer below.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return nil
		case <-c.Request().Context().Done():
			return nil
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		case envelope, ok := <-events:
			if !ok {
				return nil
			}
			if !h.allowed(c.Request().Context(), identity, envelope) {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(envelope); err != nil {
				return nil
			}
		}
	}
}

// ConversationStream feeds one conversation's events over SSE.
func (h *RealtimeHandler) ConversationStream(c echo.Context) error {
	identity, err := requireIdentity(c)
	if err != nil {
		return err
	}
	conversationID := c.Param("id")
	visible, err := h.admins.CanSee(c.Request().Context(), identity.AdminID, conversationID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !visible {
		return echo.NewHTTPError(http.StatusForbidden, "conversation not accessible")
	}

	writer, flusher, err := prepareSSE(c)
	if err != nil {
		return err
	}
	events, cancel := h.hub.Subscribe(realtime.ConversationTopic(conversationID), nil)
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

// MetricsStream feeds dashboard counter snapshots over SSE.
func (h *RealtimeHandler) MetricsStream(c echo.Context) error {
	if _, err := requireIdentity(c); err != nil {
		return err
	}
	writer, flusher, err := prepareSSE(c)
	if err != nil {
		return err
	}
	events, cancel := h.hub.Subscribe(realtime.TopicMetrics, nil)
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

// allowed applies the caller's visibility scope to one feed event. Super
// admins see everything. For other roles the assignment is checked live so
// a new assignment takes effect without reconnecting; any failure to decide
// drops the event.
func (h *RealtimeHandler) allowed(ctx context.Context, identity auth.Identity, envelope realtime.Envelope) bool {
	if identity.Role == string(admin.RoleSuperAdmin) {
		return true
	}
	// Metrics snapshots are tenant-wide aggregates every admin can already
	// read over /api/metrics; they carry no conversation to scope on.
	if envelope.Event == realtime.EventMetricsUpdated {
		return true
	}
	conversationID := conversationIDFromPayload(envelope.Payload)
	if conversationID == "" {
		return false
	}
	checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	assigned, err := h.admins.IsAssigned(checkCtx, conversationID, identity.AdminID)
	if err != nil {
		h.logger.Warn("scope check failed, event dropped",
			slog.String("admin_id", identity.AdminID),
			slog.String("error", err.Error()))
		return false
	}
	return assigned
}

func conversationIDFromPayload(payload json.RawMessage) string {
	var envelope struct {
		Conversation struct {
			ID string `json:"id"`
		} `json:"conversation"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return ""
	}
	return envelope.Conversation.ID
}
