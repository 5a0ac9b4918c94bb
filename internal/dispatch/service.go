// Package dispatch sends operator and bot replies out through the platform
// adapters, with persist-first semantics: the message is stored, then sent,
// and rolled back when the platform rejects it.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/relaydesk/relaydesk/internal/channel"
	"github.com/relaydesk/relaydesk/internal/conversation"
	"github.com/relaydesk/relaydesk/internal/message"
	"github.com/relaydesk/relaydesk/internal/realtime"
)

var (
	// ErrNotFound is returned when the target conversation does not exist.
	ErrNotFound = errors.New("conversation not found")
	// ErrDeliveryFailure is returned when the platform send failed and the
	// stored message was rolled back.
	ErrDeliveryFailure = errors.New("platform delivery failed")
	// ErrNoSender is returned when no adapter can deliver to the platform.
	ErrNoSender = errors.New("platform has no outbound sender")
)

// ConversationStore is the conversation access dispatch needs.
type ConversationStore interface {
	Get(ctx context.Context, conversationID string) (conversation.Conversation, error)
	Touch(ctx context.Context, conversationID string) (time.Time, error)
}

// MessageStore is the message persistence dispatch needs.
type MessageStore interface {
	Create(ctx context.Context, input message.CreateInput) (message.Message, bool, error)
	Delete(ctx context.Context, messageID string) error
}

// AccountResolver resolves platform credentials for a conversation.
type AccountResolver interface {
	Credentials(ctx context.Context, accountID string) (channel.AccountRef, error)
}

// Publisher is the fan-out side of the realtime hub.
type Publisher interface {
	Publish(topic, event string, payload any)
}

// Input is one outbound reply request.
type Input struct {
	ConversationID string
	Content        string
	// Sender is BOT or ADMIN; USER content never goes through dispatch.
	Sender message.Sender
}

// Service delivers outbound replies.
type Service struct {
	conversations ConversationStore
	messages      MessageStore
	accounts      AccountResolver
	registry      *channel.Registry
	publisher     Publisher
	sendTimeout   time.Duration
	logger        *slog.Logger
}

// NewService creates a dispatch service.
func NewService(
	conversations ConversationStore,
	messages MessageStore,
	accounts AccountResolver,
	registry *channel.Registry,
	publisher Publisher,
	sendTimeout time.Duration,
	log *slog.Logger,
) *Service {
	if sendTimeout <= 0 {
		sendTimeout = 15 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		conversations: conversations,
		messages:      messages,
		accounts:      accounts,
		registry:      registry,
		publisher:     publisher,
		sendTimeout:   sendTimeout,
		logger:        log.With(slog.String("service", "dispatch")),
	}
}

// Dispatch persists one outbound message, delivers it through the platform
// adapter, and fans the confirmed message out. When the platform send fails
// the stored message is deleted so no client ever sees an undelivered reply.
func (s *Service) Dispatch(ctx context.Context, input Input) (message.Message, error) {
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return message.Message{}, fmt.Errorf("content is required")
	}
	sender := input.Sender
	if sender == "" {
		sender = message.SenderBot
	}
	if sender == message.SenderUser {
		return message.Message{}, fmt.Errorf("outbound sender cannot be USER")
	}

	conv, err := s.conversations.Get(ctx, input.ConversationID)
	if err != nil {
		if errors.Is(err, conversation.ErrNotFound) {
			return message.Message{}, ErrNotFound
		}
		return message.Message{}, fmt.Errorf("load conversation: %w", err)
	}

	stored, _, err := s.messages.Create(ctx, message.CreateInput{
		ConversationID: conv.ID,
		Content:        content,
		ContentType:    channel.ContentText,
		Sender:         sender,
		Platform:       conv.Platform,
		ChatType:       "user",
		ChatID:         conv.ChannelID,
	})
	if err != nil {
		return message.Message{}, fmt.Errorf("persist outbound message: %w", err)
	}

	if err := s.deliver(ctx, conv, content); err != nil {
		// Roll back so the console and widget never show a reply the
		// customer did not get. A failed rollback is logged, not returned:
		// the delivery failure is the caller's error either way.
		if deleteErr := s.messages.Delete(ctx, stored.ID); deleteErr != nil {
			s.logger.Error("rollback of undelivered message failed",
				slog.String("message_id", stored.ID),
				slog.String("error", deleteErr.Error()))
		}
		s.logger.Warn("outbound delivery failed",
			slog.String("conversation_id", conv.ID),
			slog.String("platform", conv.Platform.String()),
			slog.String("error", err.Error()))
		return message.Message{}, fmt.Errorf("%w: %v", ErrDeliveryFailure, err)
	}

	if touched, err := s.conversations.Touch(ctx, conv.ID); err != nil {
		s.logger.Warn("touch conversation failed", slog.String("error", err.Error()))
	} else {
		conv.UpdatedAt = touched
	}
	s.publish(conv, stored)
	return stored, nil
}

// deliver sends the content through the platform adapter. Local platforms
// (the website widget) are already "delivered" once stored: the visitor
// receives the message over the realtime feed.
func (s *Service) deliver(ctx context.Context, conv conversation.Conversation, content string) error {
	descriptor, ok := s.registry.GetDescriptor(conv.Platform)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSender, conv.Platform)
	}
	if descriptor.Local {
		return nil
	}
	sender, ok := s.registry.GetSender(conv.Platform)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSender, conv.Platform)
	}
	ref, err := s.accounts.Credentials(ctx, conv.PlatformAccountID)
	if err != nil {
		return fmt.Errorf("resolve platform account: %w", err)
	}
	for _, chunk := range channel.ChunkText(content, descriptor.TextChunkLimit) {
		sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
		err := sender.Send(sendCtx, ref, conv.UserID, chunk)
		cancel()
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) publish(conv conversation.Conversation, msg message.Message) {
	payload := map[string]any{
		"conversation": conv,
		"message":      msg,
	}
	s.publisher.Publish(realtime.ConversationTopic(conv.ID), realtime.EventMessageReceived, payload)
	s.publisher.Publish(realtime.TopicAdminFeed, realtime.EventMessageReceived, payload)
	s.publisher.Publish(realtime.TopicAdminFeed, realtime.EventConversationUpdated, payload)
	if conv.Platform == channel.PlatformWebsite {
		s.publisher.Publish(realtime.WidgetTopic(conv.UserID), realtime.EventMessageReceived, payload)
	}
}
