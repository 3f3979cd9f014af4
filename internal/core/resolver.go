package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chalayga/meetsync-server/internal/store"
)

// CodeLength is the fixed length of a join code.
const CodeLength = 4

// NormalizeCode trims surrounding whitespace and uppercases the code.
// Codes are case-insensitive for humans but stored uppercase.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Resolver turns a human-entered join code into a room id. The store is
// the single source of truth for the code to id mapping.
type Resolver struct {
	store store.RoomStore
}

// NewResolver creates a resolver over the given store.
func NewResolver(st store.RoomStore) *Resolver {
	return &Resolver{store: st}
}

// Resolve maps a join code to a room id. A code of the wrong length is
// rejected without touching the store; an unknown code propagates as
// ErrRoomNotFound. A bad code is a user input error, not a transient
// fault, so there are no retries here.
func (r *Resolver) Resolve(ctx context.Context, code string) (string, error) {
	normalized := NormalizeCode(code)
	if len(normalized) != CodeLength {
		return "", fmt.Errorf("code %q: %w", code, ErrRoomNotFound)
	}

	room, err := r.store.GetRoomByCode(ctx, normalized)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", fmt.Errorf("code %q: %w", normalized, ErrRoomNotFound)
		}
		return "", fmt.Errorf("resolve code: %w", err)
	}
	return room.ID, nil
}
