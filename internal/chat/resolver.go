package chat

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ChannelResolver resolves the single shared channel between two identities,
// creating it lazily on first contact.
//
// CreateShared does not re-check for an existing channel: two concurrent
// first-contact attempts can race into two channels. This duplication is a
// known, accepted limitation (each store call is an independent round trip,
// there is no client-held transaction spanning find + create).
type ChannelResolver struct {
	store ChannelStore
}

// NewChannelResolver constructs a resolver over a ChannelStore.
func NewChannelResolver(store ChannelStore) *ChannelResolver {
	return &ChannelResolver{store: store}
}

// FindShared returns the shared channel id for the unordered pair {a, b}.
// Symmetric: FindShared(a, b) == FindShared(b, a).
func (r *ChannelResolver) FindShared(ctx context.Context, a, b int64) (int64, error) {
	if a <= 0 || b <= 0 {
		return 0, fmt.Errorf("find shared channel: %w", ErrInvalidInput)
	}

	// Normalize argument order so both call directions hit the store the same way.
	if a > b {
		a, b = b, a
	}
	return r.store.FindShared(ctx, a, b)
}

// CreateShared inserts a new channel and both membership rows.
func (r *ChannelResolver) CreateShared(ctx context.Context, a, b int64, name string) (int64, error) {
	if a <= 0 || b <= 0 {
		return 0, fmt.Errorf("create shared channel: %w", ErrInvalidInput)
	}

	ch, err := r.store.CreateChannel(ctx, name, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("create shared channel: %w", err)
	}
	if err := r.store.AddMember(ctx, a, ch.ID); err != nil {
		return 0, fmt.Errorf("add member %d: %w", a, err)
	}
	if err := r.store.AddMember(ctx, b, ch.ID); err != nil {
		return 0, fmt.Errorf("add member %d: %w", b, err)
	}
	return ch.ID, nil
}

// GetOrCreateShared finds the shared channel for the pair, creating it on
// first contact. This is the composition the message router uses.
func (r *ChannelResolver) GetOrCreateShared(ctx context.Context, a, b int64, name string) (int64, error) {
	id, err := r.FindShared(ctx, a, b)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return 0, err
	}
	return r.CreateShared(ctx, a, b, name)
}
