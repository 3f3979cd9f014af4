package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/chalayga/meetsync-server/internal/store"
)

// Reconciler applies mutations to a room's canonical state. All writes
// go through a per-room critical section around the read-modify-write-
// publish sequence: votes for the same room are serialized, rooms
// proceed independently, and no lock is ever held across a suspension
// outside that sequence.
type Reconciler struct {
	store   store.RoomStore
	channel EventChannel
	log     *zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewReconciler creates a reconciler over the given store and channel.
func NewReconciler(st store.RoomStore, ch EventChannel, logger *zerolog.Logger) *Reconciler {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Reconciler{
		store:   st,
		channel: ch,
		log:     logger,
		locks:   make(map[string]*sync.Mutex),
	}
}

// ApplyVote applies a vote intent to the room's participant set and
// publishes the new canonical snapshot. The operation is idempotent:
// applying the same (userID, vote) twice yields the same room state.
// A first-time voter is appended; an existing participant has only vote,
// name and username overwritten in place, never duplicated.
func (r *Reconciler) ApplyVote(ctx context.Context, roomID, userID, name, username string, vote store.Vote) (*store.Room, error) {
	if !vote.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidVote, vote)
	}

	updated, err := r.update(ctx, roomID, func(room *store.Room) error {
		if room.Status == store.RoomStatusLocked {
			return fmt.Errorf("room %s: %w", roomID, ErrRoomLocked)
		}
		upsertParticipant(room, store.Participant{
			UserID:   userID,
			Name:     name,
			Username: username,
			Vote:     vote,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	if r.log != nil {
		r.log.Info().
			Str("room_id", roomID).
			Str("user_id", userID).
			Str("vote", string(vote)).
			Int64("revision", updated.Revision).
			Msg("vote applied")
	}
	return updated, nil
}

// LockRoom records the externally selected location and flips the room
// to locked, then publishes the final snapshot. Locking an already
// locked room is idempotent; only the location payload is refreshed.
func (r *Reconciler) LockRoom(ctx context.Context, roomID string, location store.Location) (*store.Room, error) {
	updated, err := r.update(ctx, roomID, func(room *store.Room) error {
		loc := location
		room.SelectedLocation = &loc
		room.Status = store.RoomStatusLocked
		return nil
	})
	if err != nil {
		return nil, err
	}

	if r.log != nil {
		r.log.Info().
			Str("room_id", roomID).
			Str("location", location.Name).
			Msg("room locked")
	}
	return updated, nil
}

// update runs one serialized read-modify-write-publish cycle for roomID.
func (r *Reconciler) update(ctx context.Context, roomID string, mutate func(*store.Room) error) (*store.Room, error) {
	lock := r.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	room, err := r.store.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("room %s: %w", roomID, ErrRoomNotFound)
		}
		return nil, fmt.Errorf("load room: %w", err)
	}

	if err := mutate(room); err != nil {
		return nil, err
	}

	updated, err := r.store.ReplaceRoom(ctx, roomID, room)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("room %s: %w", roomID, ErrRoomNotFound)
		}
		return nil, fmt.Errorf("replace room: %w", err)
	}

	r.channel.Publish(roomID, updated)
	return updated, nil
}

func (r *Reconciler) roomLock(roomID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, ok := r.locks[roomID]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[roomID] = lock
	}
	return lock
}

// upsertParticipant merges a participant into the room keyed by user id.
// The rebuild also collapses any duplicate rows a corrupted document
// might carry, so the uniqueness invariant holds mechanically after
// every write.
func upsertParticipant(room *store.Room, incoming store.Participant) {
	index := make(map[string]int, len(room.Participants)+1)
	merged := make([]store.Participant, 0, len(room.Participants)+1)
	for _, p := range room.Participants {
		if i, ok := index[p.UserID]; ok {
			merged[i] = p
			continue
		}
		index[p.UserID] = len(merged)
		merged = append(merged, p)
	}

	if i, ok := index[incoming.UserID]; ok {
		merged[i] = incoming
	} else {
		merged = append(merged, incoming)
	}
	room.Participants = merged
}
