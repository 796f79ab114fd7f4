package chat

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// stubDirectory is a fixed sender lookup for history-join tests.
type stubDirectory struct {
	users map[int64][2]string // id -> {publicID, name}
	err   error
}

func (d *stubDirectory) SenderInfo(_ context.Context, userID int64) (string, string, error) {
	if d.err != nil {
		return "", "", d.err
	}
	u, ok := d.users[userID]
	if !ok {
		return "", "", fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	return u[0], u[1], nil
}

func TestMemoryStoreAppendAndList(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := &stubDirectory{users: map[int64][2]string{
		1: {"pub-a", "Alice"},
		2: {"pub-b", "Bea"},
	}}
	store := NewMemoryStore(dir)

	ch, err := store.CreateChannel(ctx, "room_a_b", time.Time{})
	if err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	inputs := []AppendMessageInput{
		{ChannelID: ch.ID, SenderID: 1, Content: "hello", Now: base},
		{ChannelID: ch.ID, SenderID: 2, Content: "hey", Now: base.Add(time.Second)},
		{ChannelID: ch.ID, SenderID: 1, Content: "how are you", Now: base.Add(2 * time.Second)},
	}
	for i, in := range inputs {
		if err := store.AppendMessage(ctx, in); err != nil {
			t.Fatalf("AppendMessage %d: %v", i, err)
		}
	}

	msgs, err := store.ListByChannel(ctx, ch.ID)
	if err != nil {
		t.Fatalf("ListByChannel: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("message count = %d, want 3", len(msgs))
	}

	wantContent := []string{"hello", "hey", "how are you"}
	wantSender := []string{"Alice", "Bea", "Alice"}
	for i := range msgs {
		if msgs[i].Content != wantContent[i] {
			t.Fatalf("msgs[%d].Content = %q, want %q", i, msgs[i].Content, wantContent[i])
		}
		if msgs[i].SenderName != wantSender[i] {
			t.Fatalf("msgs[%d].SenderName = %q, want %q", i, msgs[i].SenderName, wantSender[i])
		}
		if msgs[i].SenderPublicID == "" {
			t.Fatalf("msgs[%d].SenderPublicID empty after join", i)
		}
	}
}

func TestMemoryStoreListPreservesInsertOrderOnEqualTimestamps(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := &stubDirectory{users: map[int64][2]string{1: {"pub-a", "Alice"}}}
	store := NewMemoryStore(dir)

	ch, err := store.CreateChannel(ctx, "room", time.Time{})
	if err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		in := AppendMessageInput{ChannelID: ch.ID, SenderID: 1, Content: fmt.Sprintf("m%d", i), Now: now}
		if err := store.AppendMessage(ctx, in); err != nil {
			t.Fatalf("AppendMessage %d: %v", i, err)
		}
	}

	msgs, err := store.ListByChannel(ctx, ch.ID)
	if err != nil {
		t.Fatalf("ListByChannel: %v", err)
	}
	for i := range msgs {
		if want := fmt.Sprintf("m%d", i); msgs[i].Content != want {
			t.Fatalf("msgs[%d].Content = %q, want %q (insert order lost)", i, msgs[i].Content, want)
		}
	}
}

func TestMemoryStoreAppendValidation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore(nil)

	ch, err := store.CreateChannel(ctx, "room", time.Time{})
	if err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}

	cases := []struct {
		name string
		in   AppendMessageInput
		want error
	}{
		{"zero channel", AppendMessageInput{SenderID: 1, Content: "x"}, ErrInvalidInput},
		{"zero sender", AppendMessageInput{ChannelID: ch.ID, Content: "x"}, ErrInvalidInput},
		{"empty content", AppendMessageInput{ChannelID: ch.ID, SenderID: 1}, ErrInvalidInput},
		{"unknown channel", AppendMessageInput{ChannelID: 999, SenderID: 1, Content: "x"}, ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if err := store.AppendMessage(ctx, tc.in); !errors.Is(err, tc.want) {
				t.Fatalf("AppendMessage = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestMemoryStoreAddMemberUnknownChannel(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore(nil)

	if err := store.AddMember(ctx, 1, 42); !errors.Is(err, ErrNotFound) {
		t.Fatalf("AddMember to missing channel = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreListPropagatesDirectoryFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dirErr := errors.New("directory offline")
	store := NewMemoryStore(&stubDirectory{err: dirErr})

	ch, err := store.CreateChannel(ctx, "room", time.Time{})
	if err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}
	if err := store.AppendMessage(ctx, AppendMessageInput{ChannelID: ch.ID, SenderID: 1, Content: "x"}); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	if _, err := store.ListByChannel(ctx, ch.ID); !errors.Is(err, dirErr) {
		t.Fatalf("ListByChannel = %v, want wrapped %v", err, dirErr)
	}
}
