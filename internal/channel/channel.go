// Package channel abstracts outbound buyer messaging over per-tenant
// provider configuration. Providers are external collaborators; this
// package holds the capability interface, the provider-tagged config
// variants, and thin senders.
package channel

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned when a tenant has no channel configured.
// Configuration errors are fatal for the job, never silently swallowed.
var ErrNotConfigured = errors.New("messaging channel not configured")

// ErrUnknownProvider is returned for a provider name with no variant.
var ErrUnknownProvider = errors.New("unknown messaging provider")

// Sender delivers one text message to a buyer.
type Sender interface {
	// Send delivers body to the channel address and returns the
	// provider's message id when it supplies one.
	Send(ctx context.Context, to, body string) (string, error)

	// Name returns the provider name.
	Name() string
}
