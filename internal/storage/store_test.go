package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestAppendAndRecentAscending(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	for i := 1; i <= 5; i++ {
		msg := Message{Room: "lobby", SentAt: int64(i * 1000), Username: "alice", Text: fmt.Sprintf("m%d", i), DisplayTime: "1:00:00 PM"}
		if err := store.AppendMessage(ctx, msg); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}
	if err := store.AppendMessage(ctx, Message{Room: "cave", SentAt: 99999, Username: "bob", Text: "elsewhere"}); err != nil {
		t.Fatalf("AppendMessage cave: %v", err)
	}

	got, err := store.RecentMessages(ctx, "lobby", 3, true)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got))
	}
	for i, want := range []string{"m3", "m4", "m5"} {
		if got[i].Text != want {
			t.Fatalf("message %d: expected %q, got %q", i, want, got[i].Text)
		}
		if got[i].Room != "lobby" {
			t.Fatalf("message %d leaked from room %q", i, got[i].Room)
		}
	}
	if got[0].DisplayTime != "1:00:00 PM" {
		t.Fatalf("display time not round-tripped: %q", got[0].DisplayTime)
	}
}

func TestRecentDescending(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	for i := 1; i <= 4; i++ {
		if err := store.AppendMessage(ctx, Message{Room: "lobby", SentAt: int64(i), Username: "alice", Text: fmt.Sprintf("m%d", i)}); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}
	got, err := store.RecentMessages(ctx, "lobby", 2, false)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(got) != 2 || got[0].Text != "m4" || got[1].Text != "m3" {
		t.Fatalf("unexpected descending order: %+v", got)
	}
}

func TestRecentTiesKeepInsertionOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	for _, text := range []string{"first", "second", "third"} {
		if err := store.AppendMessage(ctx, Message{Room: "lobby", SentAt: 42, Username: "alice", Text: text}); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}
	got, err := store.RecentMessages(ctx, "lobby", 10, true)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(got) != 3 || got[0].Text != "first" || got[2].Text != "third" {
		t.Fatalf("unexpected tie order: %+v", got)
	}
}

func TestRecentEmptyRoomAndZeroLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	got, err := store.RecentMessages(ctx, "nobody-here", 50, true)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
	got, err = store.RecentMessages(ctx, "nobody-here", 0, true)
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty result for zero limit, got %v err=%v", got, err)
	}
}

func TestCountMessages(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	for i := 0; i < 3; i++ {
		_ = store.AppendMessage(ctx, Message{Room: "lobby", SentAt: int64(i), Username: "alice", Text: "hi"})
	}
	count, err := store.CountMessages(ctx, "lobby")
	if err != nil {
		t.Fatalf("CountMessages: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3, got %d", count)
	}
}

func TestErrorsWrapStoreUnavailable(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	// no Migrate: the messages table does not exist yet
	if _, err := store.RecentMessages(ctx, "lobby", 10, true); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable from query, got %v", err)
	}
	if err := store.AppendMessage(ctx, Message{Room: "lobby", Text: "x"}); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable from append, got %v", err)
	}

	_ = store.Close()
	if _, err := store.RecentMessages(ctx, "lobby", 10, true); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable after close, got %v", err)
	}
}

func TestBuildDSN(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{name: "plain path", path: "/tmp/chat.db", want: "file:/tmp/chat.db?_pragma=busy_timeout=5000&_pragma=journal_mode=WAL"},
		{name: "sqlite scheme", path: "sqlite://file:x?mode=memory", want: "file:x?mode=memory&_pragma=busy_timeout=5000&_pragma=journal_mode=WAL"},
		{name: "file uri", path: "file:chat.db", want: "file:chat.db?_pragma=busy_timeout=5000&_pragma=journal_mode=WAL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildDSN(tt.path); got != tt.want {
				t.Fatalf("buildDSN(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := "sqlite://file:" + t.Name() + "?mode=memory&cache=shared"
	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
