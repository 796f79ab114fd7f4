package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"parley/internal/chat"
)

// Resolver reconciles display names to durable identities.
//
// On first contact it creates the identity (generating its public id) and
// provisions the default single-member self-channel. Store failures propagate
// unchanged; the resolver performs no retries.
type Resolver struct {
	log        *slog.Logger
	identities Store
	channels   chat.ChannelStore
}

// NewResolver constructs a Resolver over the identity and channel stores.
func NewResolver(log *slog.Logger, identities Store, channels chat.ChannelStore) *Resolver {
	return &Resolver{log: log, identities: identities, channels: channels}
}

// Resolve returns the durable identity for displayName, creating it on first
// contact. Sequential calls with the same name yield the same record.
func (r *Resolver) Resolve(ctx context.Context, displayName string) (Identity, error) {
	if displayName == "" {
		return Identity{}, fmt.Errorf("resolve identity: %w", ErrInvalidInput)
	}

	id, err := r.identities.FindByDisplayName(ctx, displayName)
	if err == nil {
		r.log.Info("identity.resolve.existing", "public_id", id.PublicID, "display_name", id.DisplayName)
		return id, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Identity{}, fmt.Errorf("find identity by name: %w", err)
	}

	now := time.Now().UTC()

	id, err = r.identities.Create(ctx, CreateIdentityInput{
		PublicID:    uuid.NewString(),
		DisplayName: displayName,
		Now:         now,
	})
	if err != nil {
		return Identity{}, fmt.Errorf("create identity: %w", err)
	}

	// First-contact side effect: every identity gets a single-member
	// self-channel, reserved for future per-user storage.
	ch, err := r.channels.CreateChannel(ctx, "room_"+id.PublicID, now)
	if err != nil {
		return Identity{}, fmt.Errorf("provision self-channel: %w", err)
	}
	if err := r.channels.AddMember(ctx, id.ID, ch.ID); err != nil {
		return Identity{}, fmt.Errorf("join self-channel: %w", err)
	}

	r.log.Info("identity.resolve.created", "public_id", id.PublicID, "display_name", id.DisplayName, "self_channel_id", ch.ID)
	return id, nil
}
