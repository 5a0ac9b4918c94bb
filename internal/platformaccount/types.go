// Package platformaccount stores the per-platform credentials (LINE channels,
// Facebook pages) that webhook routing and outbound sends resolve against.
package platformaccount

import (
	"errors"
	"time"

	"github.com/relaydesk/relaydesk/internal/channel"
)

// ErrNotFound is returned when no matching account exists.
var ErrNotFound = errors.New("platform account not found")

// Account is one set of platform credentials.
type Account struct {
	ID         string           `json:"id"`
	TenantID   string           `json:"tenant_id"`
	Platform   channel.Platform `json:"platform"`
	Name       string           `json:"name"`
	ExternalID string           `json:"external_id"`
	// AccessToken and Secret never leave the server; they are omitted from
	// API responses.
	AccessToken string    `json:"-"`
	Secret      string    `json:"-"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Credentials returns the reference an adapter needs for one send call.
func (a Account) Credentials() channel.AccountRef {
	return channel.AccountRef{
		ID:          a.ID,
		ExternalID:  a.ExternalID,
		AccessToken: a.AccessToken,
		Secret:      a.Secret,
	}
}

// CreateInput is the payload for registering new credentials.
type CreateInput struct {
	Platform    channel.Platform `json:"platform" validate:"required"`
	Name        string           `json:"name" validate:"required"`
	ExternalID  string           `json:"external_id"`
	AccessToken string           `json:"access_token" validate:"required"`
	Secret      string           `json:"secret"`
}
