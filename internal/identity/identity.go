// Package identity maps self-asserted display names to durable, reconnect-stable
// identity records and provisions each new identity's default self-channel.
//
// It is intentionally dependency-light: no uniqueness enforcement beyond the
// store lookup, no retries (retry/backoff is a collaborator concern).
package identity

import (
	"context"
	"errors"
	"time"
)

// Sentinel error kinds (stable for errors.Is and for mapping to API status codes).
var (
	ErrNotFound     = errors.New("not_found")
	ErrInvalidInput = errors.New("invalid_input")
)

// Identity is a durable user record keyed by display name.
// PublicID is the stable externally-visible token (a UUID); it never changes
// across reconnects, unlike the per-connection handle.
type Identity struct {
	ID          int64
	PublicID    string
	DisplayName string
	CreatedAt   time.Time
}

// CreateIdentityInput describes a first-contact identity creation.
type CreateIdentityInput struct {
	PublicID    string
	DisplayName string
	Now         time.Time
}

// Store is the identity persistence boundary.
//
// FindByDisplayName is the reconciliation key lookup: a display name seen
// before must resolve to the same record. A race between two simultaneous
// first-time registrations with the same name may create two records; this is
// a documented best-effort limitation, not enforced here.
type Store interface {
	FindByDisplayName(ctx context.Context, displayName string) (Identity, error)
	FindByPublicID(ctx context.Context, publicID string) (Identity, error)
	Create(ctx context.Context, in CreateIdentityInput) (Identity, error)
}
