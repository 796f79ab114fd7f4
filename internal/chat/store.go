// Package chat contains durable channel and message primitives: typed
// records, narrow store boundaries, and the shared-channel resolver.
package chat

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

// Channel is a durable conversation container.
// Shared channels have exactly two members; the self-channel provisioned at
// identity creation has one.
type Channel struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

// Message is one persisted message joined with its sender's identity fields.
// SenderPublicID and SenderName are populated by history queries, not appends.
type Message struct {
	ID             int64
	ChannelID      int64
	SenderID       int64
	SenderPublicID string
	SenderName     string
	Content        string
	CreatedAt      time.Time
}

// ChannelStore is the channel/membership persistence boundary.
type ChannelStore interface {
	// CreateChannel inserts a channel row. The name is a human label only.
	CreateChannel(ctx context.Context, name string, now time.Time) (Channel, error)

	// AddMember inserts one membership row.
	AddMember(ctx context.Context, userID, channelID int64) error

	// FindShared returns the id of a channel whose membership includes both
	// users. Symmetric in its arguments. Returns ErrNotFound when no shared
	// channel exists.
	FindShared(ctx context.Context, userA, userB int64) (int64, error)
}

// AppendMessageInput describes a message append request.
type AppendMessageInput struct {
	ChannelID int64
	SenderID  int64
	Content   string
	Now       time.Time
}

// MessageStore is the append-only message log boundary.
type MessageStore interface {
	// AppendMessage persists one immutable message under a channel.
	AppendMessage(ctx context.Context, in AppendMessageInput) error

	// ListByChannel returns all channel messages joined with sender name and
	// public id, ordered by creation time ascending.
	ListByChannel(ctx context.Context, channelID int64) ([]Message, error)
}
