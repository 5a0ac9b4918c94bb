// Package channel provides the unified abstraction for external messaging
// platforms. It defines the canonical inbound event, the outbound send
// contract, and a registry for platform adapters such as LINE and Facebook.
package channel

import (
	"fmt"
	"strings"
	"time"
)

// Platform identifies a messaging platform.
type Platform string

const (
	PlatformLINE     Platform = "LINE"
	PlatformFacebook Platform = "FACEBOOK"
	PlatformWebsite  Platform = "WEBSITE"
)

// String returns the platform as a plain string.
func (p Platform) String() string {
	return string(p)
}

// ParsePlatform normalizes a raw platform string.
func ParsePlatform(raw string) (Platform, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "LINE":
		return PlatformLINE, nil
	case "FACEBOOK":
		return PlatformFacebook, nil
	case "WEBSITE", "WIDGET":
		return PlatformWebsite, nil
	default:
		return "", fmt.Errorf("unsupported platform: %s", raw)
	}
}

// ContentType classifies message content. It is set once at ingestion and
// never re-derived from the stored content.
type ContentType string

const (
	ContentText  ContentType = "text"
	ContentImage ContentType = "image"
)

// AccountRef carries the credentials an adapter needs for one send call.
type AccountRef struct {
	ID          string
	ExternalID  string
	AccessToken string
	Secret      string
}

// InboundEvent is a platform message normalized into the canonical shape.
// ChannelID is the external routing key: LINE room/group/user id, Facebook
// "pageID_senderID", or the synthetic widget visitor key.
type InboundEvent struct {
	Platform          Platform
	PlatformAccountID string
	ChannelID         string
	UserID            string
	Text              string
	ContentType       ContentType
	ImageURL          string
	ExternalID        string
	ChatType          string
	ChatID            string
	Timestamp         time.Time
}

// IsEmpty reports whether the event carries no usable content.
func (e InboundEvent) IsEmpty() bool {
	return strings.TrimSpace(e.Text) == "" && e.ContentType != ContentImage
}
