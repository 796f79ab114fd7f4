package chat

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// SenderDirectory resolves durable user ids to identity fields for history
// joins. The Postgres store does this join in SQL; the in-memory store needs
// an explicit lookup boundary instead.
type SenderDirectory interface {
	SenderInfo(ctx context.Context, userID int64) (publicID, name string, err error)
}

// MemoryStore is the dev-mode fallback when no DB is configured.
// It implements both ChannelStore and MessageStore.
type MemoryStore struct {
	dir SenderDirectory

	mu       sync.Mutex
	nextChan int64
	nextMsg  int64
	channels map[int64]Channel
	members  map[int64][]int64 // channelID -> member user ids
	messages map[int64][]Message
}

// NewMemoryStore constructs an in-memory channel + message store.
func NewMemoryStore(dir SenderDirectory) *MemoryStore {
	return &MemoryStore{
		dir:      dir,
		channels: make(map[int64]Channel),
		members:  make(map[int64][]int64),
		messages: make(map[int64][]Message),
	}
}

// CreateChannel inserts a channel row.
func (s *MemoryStore) CreateChannel(ctx context.Context, name string, now time.Time) (Channel, error) {
	if err := ctx.Err(); err != nil {
		return Channel{}, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextChan++
	ch := Channel{ID: s.nextChan, Name: name, CreatedAt: now}
	s.channels[ch.ID] = ch
	return ch, nil
}

// AddMember inserts one membership row.
func (s *MemoryStore) AddMember(ctx context.Context, userID, channelID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if userID <= 0 || channelID <= 0 {
		return fmt.Errorf("add member: %w", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.channels[channelID]; !ok {
		return fmt.Errorf("add member: channel %d: %w", channelID, ErrNotFound)
	}
	s.members[channelID] = append(s.members[channelID], userID)
	return nil
}

// FindShared returns the lowest-id channel containing both users.
func (s *MemoryStore) FindShared(ctx context.Context, userA, userB int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int64, 0, len(s.members))
	for id := range s.members {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		if containsMember(s.members[id], userA) && containsMember(s.members[id], userB) {
			return id, nil
		}
	}
	return 0, fmt.Errorf("shared channel (%d, %d): %w", userA, userB, ErrNotFound)
}

// AppendMessage persists one message.
func (s *MemoryStore) AppendMessage(ctx context.Context, in AppendMessageInput) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if in.ChannelID <= 0 || in.SenderID <= 0 || in.Content == "" {
		return fmt.Errorf("append message: %w", ErrInvalidInput)
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.channels[in.ChannelID]; !ok {
		return fmt.Errorf("append message: channel %d: %w", in.ChannelID, ErrNotFound)
	}

	s.nextMsg++
	s.messages[in.ChannelID] = append(s.messages[in.ChannelID], Message{
		ID:        s.nextMsg,
		ChannelID: in.ChannelID,
		SenderID:  in.SenderID,
		Content:   in.Content,
		CreatedAt: now,
	})
	return nil
}

// ListByChannel returns channel messages joined with sender identity fields,
// ordered by creation time ascending (insert order breaks ties).
func (s *MemoryStore) ListByChannel(ctx context.Context, channelID int64) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	snap := append([]Message(nil), s.messages[channelID]...)
	s.mu.Unlock()

	sort.SliceStable(snap, func(i, j int) bool { return snap[i].CreatedAt.Before(snap[j].CreatedAt) })

	for i := range snap {
		if s.dir == nil {
			continue
		}
		publicID, name, err := s.dir.SenderInfo(ctx, snap[i].SenderID)
		if err != nil {
			return nil, fmt.Errorf("sender info for user %d: %w", snap[i].SenderID, err)
		}
		snap[i].SenderPublicID = publicID
		snap[i].SenderName = name
	}
	return snap, nil
}

func containsMember(members []int64, userID int64) bool {
	for _, m := range members {
		if m == userID {
			return true
		}
	}
	return false
}
