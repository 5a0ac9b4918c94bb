// Package widget is the local adapter for the embedded website chat.
// There is no external delivery API: replies reach the visitor through the
// realtime feed, so Send is a no-op that always succeeds.
package widget

import (
	"context"

	"github.com/relaydesk/relaydesk/internal/channel"
)

// Adapter implements the website widget platform adapter.
type Adapter struct{}

// NewAdapter creates the widget adapter.
func NewAdapter() *Adapter {
	return &Adapter{}
}

// Platform implements channel.Adapter.
func (a *Adapter) Platform() channel.Platform {
	return channel.PlatformWebsite
}

// Descriptor implements channel.Adapter.
func (a *Adapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Platform:    channel.PlatformWebsite,
		DisplayName: "Website Widget",
		Local:       true,
	}
}

// Send implements channel.Sender. Delivery happens via the realtime feed the
// visitor is already subscribed to, so persisting the message is the send.
func (a *Adapter) Send(ctx context.Context, ref channel.AccountRef, userID, content string) error {
	return nil
}
