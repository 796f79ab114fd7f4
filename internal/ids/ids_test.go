package ids

import (
	"testing"
	"time"
)

func TestNewULID(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	a, err := NewULID(now)
	if err != nil {
		t.Fatalf("NewULID: %v", err)
	}
	b, err := NewULID(now)
	if err != nil {
		t.Fatalf("NewULID: %v", err)
	}

	if len(a) != 26 || len(b) != 26 {
		t.Fatalf("ULID lengths = %d, %d, want 26", len(a), len(b))
	}
	if a == b {
		t.Fatalf("two ULIDs at the same instant collided: %s", a)
	}

	later, err := NewULID(now.Add(time.Second))
	if err != nil {
		t.Fatalf("NewULID: %v", err)
	}
	if later <= a {
		t.Fatalf("ULID not monotonic across timestamps: %s <= %s", later, a)
	}
}

func TestNewRandomHex(t *testing.T) {
	t.Parallel()

	a := NewRandomHex(10)
	b := NewRandomHex(10)

	if len(a) != 20 {
		t.Fatalf("hex length = %d, want 20", len(a))
	}
	if a == b {
		t.Fatalf("two random tokens collided: %s", a)
	}
}
