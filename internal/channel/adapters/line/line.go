// Package line adapts LINE Messaging API webhooks and pushes to the
// canonical channel contract. Credentials are per platform account; a
// client is built per call from the AccountRef.
package line

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/line/line-bot-sdk-go/v7/linebot"

	"github.com/relaydesk/relaydesk/internal/channel"
)

// LINE push messages are capped at 5000 characters.
const textChunkLimit = 5000

// Adapter implements the LINE platform adapter.
type Adapter struct {
	logger *slog.Logger
}

// NewAdapter creates the LINE adapter.
func NewAdapter(log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{logger: log.With(slog.String("adapter", "line"))}
}

// Platform implements channel.Adapter.
func (a *Adapter) Platform() channel.Platform {
	return channel.PlatformLINE
}

// Descriptor implements channel.Adapter.
func (a *Adapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Platform:       channel.PlatformLINE,
		DisplayName:    "LINE",
		TextChunkLimit: textChunkLimit,
	}
}

// Send pushes a text message to a LINE user.
func (a *Adapter) Send(ctx context.Context, ref channel.AccountRef, userID, content string) error {
	bot, err := a.client(ref)
	if err != nil {
		return err
	}
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("line recipient is required")
	}
	if _, err := bot.PushMessage(userID, linebot.NewTextMessage(content)).WithContext(ctx).Do(); err != nil {
		return fmt.Errorf("%w: line push: %v", channel.ErrSendFailed, err)
	}
	return nil
}

// ParseWebhook validates the request signature and maps supported events to
// canonical inbound events. Unsupported event kinds are skipped, not errors:
// the webhook must still be acknowledged to avoid LINE redelivery storms.
func (a *Adapter) ParseWebhook(req *http.Request, ref channel.AccountRef) ([]channel.InboundEvent, error) {
	bot, err := a.client(ref)
	if err != nil {
		return nil, err
	}
	events, err := bot.ParseRequest(req)
	if err != nil {
		return nil, fmt.Errorf("parse line webhook: %w", err)
	}
	inbound := make([]channel.InboundEvent, 0, len(events))
	for _, event := range events {
		if event.Type != linebot.EventTypeMessage || event.Source == nil {
			a.logger.Debug("skip line event", slog.String("type", string(event.Type)))
			continue
		}
		mapped, ok := a.mapMessageEvent(event, ref)
		if !ok {
			continue
		}
		inbound = append(inbound, mapped)
	}
	return inbound, nil
}

func (a *Adapter) mapMessageEvent(event *linebot.Event, ref channel.AccountRef) (channel.InboundEvent, bool) {
	base := channel.InboundEvent{
		Platform:          channel.PlatformLINE,
		PlatformAccountID: ref.ID,
		ChannelID:         sourceChannelID(event.Source),
		UserID:            strings.TrimSpace(event.Source.UserID),
		ChatType:          string(event.Source.Type),
		ChatID:            sourceChannelID(event.Source),
		Timestamp:         event.Timestamp,
	}
	switch message := event.Message.(type) {
	case *linebot.TextMessage:
		text := strings.TrimSpace(message.Text)
		if text == "" {
			return channel.InboundEvent{}, false
		}
		base.Text = text
		base.ContentType = channel.ContentText
		base.ExternalID = message.ID
		return base, true
	case *linebot.ImageMessage:
		base.Text = "[image]"
		base.ContentType = channel.ContentImage
		base.ExternalID = message.ID
		base.ImageURL = strings.TrimSpace(message.OriginalContentURL)
		return base, true
	default:
		a.logger.Debug("skip line message kind", slog.String("kind", fmt.Sprintf("%T", event.Message)))
		return channel.InboundEvent{}, false
	}
}

// sourceChannelID picks the thread routing key: room or group when present,
// otherwise the sender's own user id.
func sourceChannelID(source *linebot.EventSource) string {
	if source == nil {
		return ""
	}
	if id := strings.TrimSpace(source.RoomID); id != "" {
		return id
	}
	if id := strings.TrimSpace(source.GroupID); id != "" {
		return id
	}
	return strings.TrimSpace(source.UserID)
}

func (a *Adapter) client(ref channel.AccountRef) (*linebot.Client, error) {
	if strings.TrimSpace(ref.Secret) == "" || strings.TrimSpace(ref.AccessToken) == "" {
		return nil, fmt.Errorf("line account credentials are required")
	}
	bot, err := linebot.New(ref.Secret, ref.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("init line client: %w", err)
	}
	return bot, nil
}
