package channel

import (
	"context"
	"errors"
)

// ErrSendFailed wraps any platform delivery failure so callers can treat
// network errors, revoked tokens, and rejected recipients uniformly.
var ErrSendFailed = errors.New("channel send failed")

// Descriptor holds read-only metadata for a registered platform.
type Descriptor struct {
	Platform    Platform
	DisplayName string
	// TextChunkLimit is the platform's outbound text length ceiling in runes.
	// Zero means unlimited.
	TextChunkLimit int
	// Local marks platforms whose delivery is the realtime fan-out itself
	// (no external send call).
	Local bool
}

// Adapter is the base interface every platform adapter must implement.
type Adapter interface {
	Platform() Platform
	Descriptor() Descriptor
}

// Sender delivers one outbound text message to a platform user.
// Implementations must honor ctx cancellation; a timeout is reported as a
// send failure like any other.
type Sender interface {
	Send(ctx context.Context, ref AccountRef, userID, content string) error
}
