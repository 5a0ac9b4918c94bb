// Package conversation persists the canonical conversation records and the
// find-or-create identity resolution every inbound message goes through.
package conversation

import (
	"errors"
	"time"

	"github.com/relaydesk/relaydesk/internal/channel"
	"github.com/relaydesk/relaydesk/internal/message"
)

// ErrNotFound is returned when no matching conversation exists.
var ErrNotFound = errors.New("conversation not found")

// Conversation is one thread with an end user on one platform.
type Conversation struct {
	ID       string           `json:"id"`
	TenantID string           `json:"tenant_id"`
	Platform channel.Platform `json:"platform"`
	// ChannelID is the external routing key: LINE room/group/user id,
	// Facebook "pageID_senderID", or the widget visitor key.
	ChannelID         string    `json:"channel_id"`
	UserID            string    `json:"user_id"`
	PlatformAccountID string    `json:"platform_account_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Identity is the lookup key for find-or-create.
type Identity struct {
	TenantID          string
	Platform          channel.Platform
	ChannelID         string
	UserID            string
	PlatformAccountID string
}

// Summary pairs a conversation with its latest message for list views.
type Summary struct {
	Conversation
	LastMessage *message.Message `json:"last_message,omitempty"`
}
