// Package message persists and queries the canonical message records shared
// by every platform.
package message

import (
	"errors"
	"time"

	"github.com/relaydesk/relaydesk/internal/channel"
)

// ErrNotFound is returned when no matching message exists.
var ErrNotFound = errors.New("message not found")

// Sender classifies who produced a message.
type Sender string

const (
	// SenderUser is the end customer on any platform.
	SenderUser Sender = "USER"
	// SenderBot is an automated reply or an admin reply delivered through
	// the platform bot identity.
	SenderBot Sender = "BOT"
	// SenderAdmin is a console operator writing as themselves.
	SenderAdmin Sender = "ADMIN"
)

// Message is one stored message in a conversation.
type Message struct {
	ID             string              `json:"id"`
	ConversationID string              `json:"conversation_id"`
	Content        string              `json:"content"`
	ContentType    channel.ContentType `json:"content_type"`
	Sender         Sender              `json:"sender"`
	Platform       channel.Platform    `json:"platform"`
	Timestamp      time.Time           `json:"timestamp"`
	ExternalID     string              `json:"external_id,omitempty"`
	ChatType       string              `json:"chat_type,omitempty"`
	ChatID         string              `json:"chat_id,omitempty"`
	ImageURL       string              `json:"image_url,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
}

// CreateInput is the payload for persisting one message.
type CreateInput struct {
	ConversationID string
	Content        string
	ContentType    channel.ContentType
	Sender         Sender
	Platform       channel.Platform
	// Timestamp is the platform event time. Zero means "now".
	Timestamp time.Time
	// ExternalID is the platform-supplied message id used for redelivery
	// dedup. Empty for locally originated messages.
	ExternalID string
	ChatType   string
	ChatID     string
	ImageURL   string
}
