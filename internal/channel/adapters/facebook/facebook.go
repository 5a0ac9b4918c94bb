// Package facebook adapts Facebook Messenger page webhooks and the Graph
// Send API to the canonical channel contract.
package facebook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/relaydesk/relaydesk/internal/channel"
)

// Messenger rejects text payloads over 2000 characters.
const textChunkLimit = 2000

// Adapter implements the Facebook Messenger platform adapter.
type Adapter struct {
	graphURL   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewAdapter creates the Facebook adapter. graphURL is the Graph API base,
// e.g. https://graph.facebook.com/v17.0.
func NewAdapter(graphURL string, log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{
		graphURL:   strings.TrimRight(strings.TrimSpace(graphURL), "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     log.With(slog.String("adapter", "facebook")),
	}
}

// Platform implements channel.Adapter.
func (a *Adapter) Platform() channel.Platform {
	return channel.PlatformFacebook
}

// Descriptor implements channel.Adapter.
func (a *Adapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Platform:       channel.PlatformFacebook,
		DisplayName:    "Facebook Messenger",
		TextChunkLimit: textChunkLimit,
	}
}

// Send delivers one text message through the Graph Send API using the page
// access token from the account ref.
func (a *Adapter) Send(ctx context.Context, ref channel.AccountRef, userID, content string) error {
	if strings.TrimSpace(ref.AccessToken) == "" {
		return fmt.Errorf("facebook page access token is required")
	}
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("facebook recipient is required")
	}
	payload := map[string]any{
		"recipient": map[string]string{"id": userID},
		"message":   map[string]string{"text": content},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal send payload: %w", err)
	}
	url := fmt.Sprintf("%s/me/messages?access_token=%s", a.graphURL, ref.AccessToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: facebook send: %v", channel.ErrSendFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		a.logger.Warn("facebook send rejected",
			slog.Int("status", resp.StatusCode),
			slog.String("body", string(detail)))
		return fmt.Errorf("%w: facebook send status %d", channel.ErrSendFailed, resp.StatusCode)
	}
	return nil
}

// VerifyWebhook handles the Messenger webhook subscription handshake.
// It returns the challenge to echo back, or an error when the mode or token
// does not match.
func VerifyWebhook(mode, token, challenge, verifyToken string) (string, error) {
	if mode != "subscribe" {
		return "", fmt.Errorf("unsupported hub mode: %q", mode)
	}
	if verifyToken == "" || token != verifyToken {
		return "", fmt.Errorf("verify token mismatch")
	}
	return challenge, nil
}

// WebhookPayload is the Messenger webhook envelope.
type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry is one page entry inside a webhook delivery.
type Entry struct {
	ID        string      `json:"id"`
	Time      int64       `json:"time"`
	Messaging []Messaging `json:"messaging"`
}

// Messaging is one messaging event for a page.
type Messaging struct {
	Sender    Participant `json:"sender"`
	Recipient Participant `json:"recipient"`
	Timestamp int64       `json:"timestamp"`
	Message   *Message    `json:"message"`
}

// Participant identifies one side of a Messenger thread.
type Participant struct {
	ID string `json:"id"`
}

// Message carries the user-visible content of a messaging event.
type Message struct {
	MID         string       `json:"mid"`
	Text        string       `json:"text"`
	IsEcho      bool         `json:"is_echo"`
	Attachments []Attachment `json:"attachments"`
}

// Attachment is one media attachment on a message.
type Attachment struct {
	Type    string `json:"type"`
	Payload struct {
		URL string `json:"url"`
	} `json:"payload"`
}

// MapEntries flattens a webhook payload into canonical inbound events.
// Echo events (the page's own outbound messages mirrored back) and events
// without message content are skipped.
func (a *Adapter) MapEntries(payload WebhookPayload, ref channel.AccountRef) []channel.InboundEvent {
	if payload.Object != "page" {
		return nil
	}
	events := make([]channel.InboundEvent, 0)
	for _, entry := range payload.Entry {
		pageID := strings.TrimSpace(entry.ID)
		for _, messaging := range entry.Messaging {
			if messaging.Message == nil || messaging.Message.IsEcho {
				continue
			}
			senderID := strings.TrimSpace(messaging.Sender.ID)
			if senderID == "" || senderID == pageID {
				continue
			}
			event := channel.InboundEvent{
				Platform:          channel.PlatformFacebook,
				PlatformAccountID: ref.ID,
				ChannelID:         fmt.Sprintf("%s_%s", pageID, senderID),
				UserID:            senderID,
				ExternalID:        messaging.Message.MID,
				ChatType:          "user",
				ChatID:            senderID,
				Timestamp:         time.UnixMilli(messaging.Timestamp),
			}
			if text := strings.TrimSpace(messaging.Message.Text); text != "" {
				event.Text = text
				event.ContentType = channel.ContentText
				events = append(events, event)
				continue
			}
			if url := firstImageURL(messaging.Message.Attachments); url != "" {
				event.Text = "[image]"
				event.ContentType = channel.ContentImage
				event.ImageURL = url
				events = append(events, event)
				continue
			}
			a.logger.Debug("skip facebook event without content",
				slog.String("mid", messaging.Message.MID))
		}
	}
	return events
}

func firstImageURL(attachments []Attachment) string {
	for _, attachment := range attachments {
		if attachment.Type == "image" {
			return strings.TrimSpace(attachment.Payload.URL)
		}
	}
	return ""
}
