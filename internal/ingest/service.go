// Package ingest is the pipeline every inbound platform message flows
// through: validate, dedup, resolve the conversation, persist, fan out.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/relaydesk/relaydesk/internal/channel"
	"github.com/relaydesk/relaydesk/internal/conversation"
	"github.com/relaydesk/relaydesk/internal/dedup"
	"github.com/relaydesk/relaydesk/internal/message"
	"github.com/relaydesk/relaydesk/internal/realtime"
)

var (
	// ErrInvalidPayload marks events that cannot be processed. Webhook
	// handlers still acknowledge these with 200 so platforms stop retrying.
	ErrInvalidPayload = errors.New("invalid inbound payload")
	// ErrStorage marks persistence failures. These are retryable and
	// surface as 5xx so platforms redeliver.
	ErrStorage = errors.New("storage failure")
)

// ConversationStore is the conversation persistence the pipeline needs.
type ConversationStore interface {
	FindOrCreate(ctx context.Context, identity conversation.Identity) (conversation.Conversation, error)
}

// MessageStore is the message persistence the pipeline needs.
type MessageStore interface {
	Create(ctx context.Context, input message.CreateInput) (message.Message, bool, error)
}

// Publisher is the fan-out side of the realtime hub.
type Publisher interface {
	Publish(topic, event string, payload any)
}

// Result reports what one ingested event produced.
type Result struct {
	Conversation conversation.Conversation
	Message      message.Message
	// Duplicate is true when the event was a redelivery and nothing new
	// was stored or published.
	Duplicate bool
}

// Pipeline ingests canonical inbound events.
type Pipeline struct {
	tenantID      string
	conversations ConversationStore
	messages      MessageStore
	publisher     Publisher
	deduper       dedup.Deduper
	logger        *slog.Logger
}

// NewPipeline creates an ingest pipeline bound to one tenant.
func NewPipeline(
	tenantID string,
	conversations ConversationStore,
	messages MessageStore,
	publisher Publisher,
	deduper dedup.Deduper,
	log *slog.Logger,
) *Pipeline {
	if deduper == nil {
		deduper = dedup.Noop{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		tenantID:      tenantID,
		conversations: conversations,
		messages:      messages,
		publisher:     publisher,
		deduper:       deduper,
		logger:        log.With(slog.String("service", "ingest")),
	}
}

// Ingest processes one inbound event end to end.
func (p *Pipeline) Ingest(ctx context.Context, event channel.InboundEvent) (Result, error) {
	if err := validate(event); err != nil {
		return Result{}, err
	}

	// Cheap redelivery short-circuit. A dedup backend failure is not fatal:
	// the unique external-id index below still guards the table.
	seen, err := p.deduper.Seen(ctx, dedupKey(event))
	if err != nil {
		p.logger.Warn("dedup check failed, continuing",
			slog.String("platform", event.Platform.String()),
			slog.String("error", err.Error()))
	} else if seen {
		p.logger.Debug("duplicate event skipped",
			slog.String("platform", event.Platform.String()),
			slog.String("external_id", event.ExternalID))
		return Result{Duplicate: true}, nil
	}

	conv, err := p.conversations.FindOrCreate(ctx, conversation.Identity{
		TenantID:          p.tenantID,
		Platform:          event.Platform,
		ChannelID:         event.ChannelID,
		UserID:            event.UserID,
		PlatformAccountID: event.PlatformAccountID,
	})
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	msg, created, err := p.messages.Create(ctx, message.CreateInput{
		ConversationID: conv.ID,
		Content:        event.Text,
		ContentType:    event.ContentType,
		Sender:         message.SenderUser,
		Platform:       event.Platform,
		Timestamp:      event.Timestamp,
		ExternalID:     event.ExternalID,
		ChatType:       event.ChatType,
		ChatID:         event.ChatID,
		ImageURL:       event.ImageURL,
	})
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	result := Result{Conversation: conv, Message: msg, Duplicate: !created}
	if !created {
		return result, nil
	}

	p.publish(conv, msg)
	return result, nil
}

// publish fans the stored message out. Runs after the write committed;
// failures here never propagate to the caller.
func (p *Pipeline) publish(conv conversation.Conversation, msg message.Message) {
	payload := map[string]any{
		"conversation": conv,
		"message":      msg,
	}
	p.publisher.Publish(realtime.ConversationTopic(conv.ID), realtime.EventMessageReceived, payload)
	p.publisher.Publish(realtime.TopicAdminFeed, realtime.EventMessageReceived, payload)
	p.publisher.Publish(realtime.TopicAdminFeed, realtime.EventConversationUpdated, payload)
	if conv.Platform == channel.PlatformWebsite {
		p.publisher.Publish(realtime.WidgetTopic(conv.UserID), realtime.EventMessageReceived, payload)
	}
}

func validate(event channel.InboundEvent) error {
	if event.Platform == "" {
		return fmt.Errorf("%w: platform is required", ErrInvalidPayload)
	}
	if strings.TrimSpace(event.ChannelID) == "" || strings.TrimSpace(event.UserID) == "" {
		return fmt.Errorf("%w: channel id and user id are required", ErrInvalidPayload)
	}
	if event.IsEmpty() {
		return fmt.Errorf("%w: event carries no content", ErrInvalidPayload)
	}
	return nil
}

// dedupKey namespaces the platform message id so ids from different
// platforms cannot collide.
func dedupKey(event channel.InboundEvent) string {
	if strings.TrimSpace(event.ExternalID) == "" {
		return ""
	}
	return event.Platform.String() + ":" + event.ExternalID
}
