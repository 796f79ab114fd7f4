package identity

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"parley/internal/chat"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestResolveCreatesOnFirstContact(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	identities := NewMemoryStore()
	channels := chat.NewMemoryStore(identities)
	r := NewResolver(testLogger(), identities, channels)

	id, err := r.Resolve(ctx, "Alice")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if id.ID == 0 {
		t.Fatalf("durable id not assigned")
	}
	if id.PublicID == "" {
		t.Fatalf("public id not generated")
	}
	if id.DisplayName != "Alice" {
		t.Fatalf("DisplayName = %q, want Alice", id.DisplayName)
	}

	// First contact provisions a single-member self-channel.
	if _, err := channels.FindShared(ctx, id.ID, id.ID); err != nil {
		t.Fatalf("self-channel was not provisioned: %v", err)
	}
}

func TestResolveIsIdempotentPerName(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	identities := NewMemoryStore()
	channels := chat.NewMemoryStore(identities)
	r := NewResolver(testLogger(), identities, channels)

	first, err := r.Resolve(ctx, "Alice")
	if err != nil {
		t.Fatalf("Resolve first: %v", err)
	}
	second, err := r.Resolve(ctx, "Alice")
	if err != nil {
		t.Fatalf("Resolve second: %v", err)
	}

	if first.ID != second.ID || first.PublicID != second.PublicID {
		t.Fatalf("Resolve not idempotent: %+v vs %+v", first, second)
	}
}

func TestResolveDistinctNamesGetDistinctIdentities(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	identities := NewMemoryStore()
	r := NewResolver(testLogger(), identities, chat.NewMemoryStore(identities))

	a, err := r.Resolve(ctx, "Alice")
	if err != nil {
		t.Fatalf("Resolve Alice: %v", err)
	}
	b, err := r.Resolve(ctx, "Bea")
	if err != nil {
		t.Fatalf("Resolve Bea: %v", err)
	}
	if a.ID == b.ID || a.PublicID == b.PublicID {
		t.Fatalf("distinct names shared an identity: %+v vs %+v", a, b)
	}
}

func TestResolveRejectsEmptyName(t *testing.T) {
	t.Parallel()

	identities := NewMemoryStore()
	r := NewResolver(testLogger(), identities, chat.NewMemoryStore(identities))

	if _, err := r.Resolve(context.Background(), ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("Resolve(\"\") = %v, want ErrInvalidInput", err)
	}
}

// failingStore wraps MemoryStore and fails selected operations.
type failingStore struct {
	*MemoryStore
	findErr   error
	createErr error
}

func (s *failingStore) FindByDisplayName(ctx context.Context, name string) (Identity, error) {
	if s.findErr != nil {
		return Identity{}, s.findErr
	}
	return s.MemoryStore.FindByDisplayName(ctx, name)
}

func (s *failingStore) Create(ctx context.Context, in CreateIdentityInput) (Identity, error) {
	if s.createErr != nil {
		return Identity{}, s.createErr
	}
	return s.MemoryStore.Create(ctx, in)
}

func TestResolvePropagatesStoreFailures(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	boom := errors.New("store down")

	t.Run("lookup failure", func(t *testing.T) {
		t.Parallel()

		identities := &failingStore{MemoryStore: NewMemoryStore(), findErr: boom}
		r := NewResolver(testLogger(), identities, chat.NewMemoryStore(nil))

		if _, err := r.Resolve(ctx, "Alice"); !errors.Is(err, boom) {
			t.Fatalf("Resolve = %v, want wrapped %v", err, boom)
		}
	})

	t.Run("create failure", func(t *testing.T) {
		t.Parallel()

		identities := &failingStore{MemoryStore: NewMemoryStore(), createErr: boom}
		r := NewResolver(testLogger(), identities, chat.NewMemoryStore(nil))

		if _, err := r.Resolve(ctx, "Alice"); !errors.Is(err, boom) {
			t.Fatalf("Resolve = %v, want wrapped %v", err, boom)
		}
	})
}

func TestMemoryStoreSenderInfo(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()

	id, err := store.Create(ctx, CreateIdentityInput{
		PublicID:    "pub-a",
		DisplayName: "Alice",
		Now:         time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	publicID, name, err := store.SenderInfo(ctx, id.ID)
	if err != nil {
		t.Fatalf("SenderInfo: %v", err)
	}
	if publicID != "pub-a" || name != "Alice" {
		t.Fatalf("SenderInfo = %q, %q, want pub-a, Alice", publicID, name)
	}

	if _, _, err := store.SenderInfo(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("SenderInfo(999) = %v, want ErrNotFound", err)
	}
}
