package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/relaydesk/relaydesk/internal/admin"
	"github.com/relaydesk/relaydesk/internal/auth"
	"github.com/relaydesk/relaydesk/internal/conversation"
	"github.com/relaydesk/relaydesk/internal/dispatch"
	"github.com/relaydesk/relaydesk/internal/message"
	"github.com/relaydesk/relaydesk/internal/realtime"
)

// Publisher is the fan-out side of the realtime hub.
type Publisher interface {
	Publish(topic, event string, payload any)
}

// ConversationHandler serves the console's conversation views, assignment
// management, and outbound replies. All visibility checks happen here on
// the server; the client is never trusted to scope itself.
type ConversationHandler struct {
	conversations *conversation.Service
	messages      *message.Service
	admins        *admin.Service
	dispatcher    *dispatch.Service
	publisher     Publisher
	tenantID      string
	logger        *slog.Logger
}

// NewConversationHandler creates a ConversationHandler.
func NewConversationHandler(conversations *conversation.Service, messages *message.Service, admins *admin.Service, dispatcher *dispatch.Service, publisher Publisher, tenantID string, log *slog.Logger) *ConversationHandler {
	return &ConversationHandler{
		conversations: conversations,
		messages:      messages,
		admins:        admins,
		dispatcher:    dispatcher,
		publisher:     publisher,
		tenantID:      tenantID,
		logger:        log.With(slog.String("handler", "conversations")),
	}
}

// Register registers conversation routes.
func (h *ConversationHandler) Register(e *echo.Echo) {
	e.GET("/api/conversations", h.List)
	e.GET("/api/conversations/assigned", h.ListAssigned)
	e.GET("/api/conversations/:id/messages", h.Messages)
	e.POST("/api/conversations/:id/assign", h.Assign)
	e.POST("/api/messages", h.SendMessage)
}

// List returns the conversations visible to the caller: everything for
// super admins, assigned conversations for everyone else. Each item carries
// its latest message; ordering is latest activity first.
func (h *ConversationHandler) List(c echo.Context) error {
	identity, err := requireIdentity(c)
	if err != nil {
		return err
	}
	conversations, err := h.visibleConversations(c, identity)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	summaries, err := h.summarize(c, conversations)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{"conversations": summaries})
}

// ListAssigned returns only the caller's assigned conversations, regardless
// of role.
func (h *ConversationHandler) ListAssigned(c echo.Context) error {
	identity, err := requireIdentity(c)
	if err != nil {
		return err
	}
	conversations, err := h.conversations.ListAssigned(c.Request().Context(), identity.AdminID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	summaries, err := h.summarize(c, conversations)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{"conversations": summaries})
}

// Messages returns one conversation's messages in send order.
func (h *ConversationHandler) Messages(c echo.Context) error {
	identity, err := requireIdentity(c)
	if err != nil {
		return err
	}
	conversationID := c.Param("id")
	if err := h.requireVisible(c, identity, conversationID); err != nil {
		return err
	}
	messages, err := h.messages.ListByConversation(c.Request().Context(), conversationID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{"messages": messages})
}

type assignRequest struct {
	AdminID string `json:"admin_id" validate:"required"`
}

// Assign links an admin to a conversation. Super admin only.
func (h *ConversationHandler) Assign(c echo.Context) error {
	identity, err := requireSuperAdmin(c)
	if err != nil {
		return err
	}
	var req assignRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	conversationID := c.Param("id")
	conv, err := h.conversations.Get(c.Request().Context(), conversationID)
	if err != nil {
		if errors.Is(err, conversation.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if _, err := h.admins.Get(c.Request().Context(), req.AdminID); err != nil {
		if errors.Is(err, admin.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "admin not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	assignment, err := h.admins.Assign(c.Request().Context(), conversationID, req.AdminID, identity.AdminID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	// Consoles refresh their conversation lists on this; the newly assigned
	// admin passes the feed scope check from the first event after this one.
	h.publisher.Publish(realtime.TopicAdminFeed, realtime.EventConversationsUpdated, map[string]any{
		"conversation": conv,
		"assignment":   assignment,
	})
	return c.JSON(http.StatusOK, assignment)
}

type sendMessageRequest struct {
	ConversationID string `json:"conversation_id" validate:"required"`
	Content        string `json:"content" validate:"required"`
}

// SendMessage dispatches an operator reply to the conversation's platform.
// The message is stored before the platform send and rolled back when the
// send fails, so a 502 here means nothing was kept.
func (h *ConversationHandler) SendMessage(c echo.Context) error {
	identity, err := requireIdentity(c)
	if err != nil {
		return err
	}
	var req sendMessageRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if err := h.requireVisible(c, identity, req.ConversationID); err != nil {
		return err
	}
	stored, err := h.dispatcher.Dispatch(c.Request().Context(), dispatch.Input{
		ConversationID: req.ConversationID,
		Content:        req.Content,
		Sender:         message.SenderBot,
	})
	if err != nil {
		switch {
		case errors.Is(err, dispatch.ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
		case errors.Is(err, dispatch.ErrDeliveryFailure):
			return echo.NewHTTPError(http.StatusBadGateway, "platform delivery failed")
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(http.StatusOK, stored)
}

func (h *ConversationHandler) visibleConversations(c echo.Context, identity auth.Identity) ([]conversation.Conversation, error) {
	if identity.Role == string(admin.RoleSuperAdmin) {
		return h.conversations.List(c.Request().Context(), h.tenantID)
	}
	return h.conversations.ListAssigned(c.Request().Context(), identity.AdminID)
}

func (h *ConversationHandler) requireVisible(c echo.Context, identity auth.Identity, conversationID string) error {
	visible, err := h.admins.CanSee(c.Request().Context(), identity.AdminID, conversationID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !visible {
		return echo.NewHTTPError(http.StatusForbidden, "conversation not accessible")
	}
	return nil
}

func (h *ConversationHandler) summarize(c echo.Context, conversations []conversation.Conversation) ([]conversation.Summary, error) {
	ids := make([]string, len(conversations))
	for i, conv := range conversations {
		ids[i] = conv.ID
	}
	latest, err := h.messages.LatestForConversations(c.Request().Context(), ids)
	if err != nil {
		return nil, err
	}
	summaries := make([]conversation.Summary, len(conversations))
	for i, conv := range conversations {
		summaries[i] = conversation.Summary{Conversation: conv}
		if msg, ok := latest[conv.ID]; ok {
			msgCopy := msg
			summaries[i].LastMessage = &msgCopy
		}
	}
	return summaries, nil
}
