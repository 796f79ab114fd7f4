package identity

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is the dev-mode fallback when no DB is configured.
// It also serves as the sender directory for the in-memory chat store.
type MemoryStore struct {
	mu     sync.Mutex
	nextID int64
	byName map[string]Identity
	byUUID map[string]Identity
	byID   map[int64]Identity
}

// NewMemoryStore constructs an empty in-memory identity store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byName: make(map[string]Identity),
		byUUID: make(map[string]Identity),
		byID:   make(map[int64]Identity),
	}
}

// FindByDisplayName looks up an identity by its reconciliation key.
func (s *MemoryStore) FindByDisplayName(ctx context.Context, displayName string) (Identity, error) {
	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byName[displayName]
	if !ok {
		return Identity{}, fmt.Errorf("identity %q: %w", displayName, ErrNotFound)
	}
	return id, nil
}

// FindByPublicID looks up an identity by its stable public token.
func (s *MemoryStore) FindByPublicID(ctx context.Context, publicID string) (Identity, error) {
	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byUUID[publicID]
	if !ok {
		return Identity{}, fmt.Errorf("identity %q: %w", publicID, ErrNotFound)
	}
	return id, nil
}

// Create inserts a new identity record.
func (s *MemoryStore) Create(ctx context.Context, in CreateIdentityInput) (Identity, error) {
	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}
	if in.PublicID == "" || in.DisplayName == "" {
		return Identity{}, fmt.Errorf("create identity: %w", ErrInvalidInput)
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := Identity{
		ID:          s.nextID,
		PublicID:    in.PublicID,
		DisplayName: in.DisplayName,
		CreatedAt:   now,
	}
	s.byName[id.DisplayName] = id
	s.byUUID[id.PublicID] = id
	s.byID[id.ID] = id
	return id, nil
}

// SenderInfo implements chat.SenderDirectory for history joins in dev mode.
func (s *MemoryStore) SenderInfo(ctx context.Context, userID int64) (string, string, error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byID[userID]
	if !ok {
		return "", "", fmt.Errorf("identity id %d: %w", userID, ErrNotFound)
	}
	return id.PublicID, id.DisplayName, nil
}
