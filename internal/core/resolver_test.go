package core

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/chalayga/meetsync-server/internal/store"
	"github.com/chalayga/meetsync-server/internal/store/memory"
)

// countingStore records how often the code lookup runs.
type countingStore struct {
	store.RoomStore
	codeLookups atomic.Int64
}

func (c *countingStore) GetRoomByCode(ctx context.Context, code string) (*store.Room, error) {
	c.codeLookups.Add(1)
	return c.RoomStore.GetRoomByCode(ctx, code)
}

func TestResolveIsCaseInsensitive(t *testing.T) {
	st := memory.New()
	seedRoom(t, st, "room-1", "ABCD")
	resolver := NewResolver(st)

	lower, err := resolver.Resolve(context.Background(), "abcd")
	if err != nil {
		t.Fatalf("resolve lowercase: %v", err)
	}
	upper, err := resolver.Resolve(context.Background(), "ABCD")
	if err != nil {
		t.Fatalf("resolve uppercase: %v", err)
	}
	if lower != upper || lower != "room-1" {
		t.Fatalf("expected both spellings to resolve to room-1, got %q and %q", lower, upper)
	}
}

func TestResolveTrimsWhitespace(t *testing.T) {
	st := memory.New()
	seedRoom(t, st, "room-1", "ABCD")
	resolver := NewResolver(st)

	id, err := resolver.Resolve(context.Background(), "  abcd \n")
	if err != nil {
		t.Fatalf("resolve padded code: %v", err)
	}
	if id != "room-1" {
		t.Fatalf("expected room-1, got %q", id)
	}
}

func TestResolveWrongLengthShortCircuits(t *testing.T) {
	st := &countingStore{RoomStore: memory.New()}
	resolver := NewResolver(st)

	for _, code := range []string{"", "ab", "abcde", "   "} {
		_, err := resolver.Resolve(context.Background(), code)
		if !errors.Is(err, ErrRoomNotFound) {
			t.Fatalf("code %q: expected ErrRoomNotFound, got %v", code, err)
		}
	}

	if n := st.codeLookups.Load(); n != 0 {
		t.Fatalf("expected no store lookups for malformed codes, got %d", n)
	}
}

func TestResolveUnknownCode(t *testing.T) {
	st := &countingStore{RoomStore: memory.New()}
	resolver := NewResolver(st)

	_, err := resolver.Resolve(context.Background(), "ZZZZ")
	if !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
	if n := st.codeLookups.Load(); n != 1 {
		t.Fatalf("expected exactly one store lookup, got %d", n)
	}
}
