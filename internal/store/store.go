package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a room id or join code does not resolve.
var ErrNotFound = errors.New("not found")

// Vote is a participant's answer to a meetup plan.
type Vote string

const (
	VoteYes   Vote = "yes"
	VoteNo    Vote = "no"
	VoteMaybe Vote = "maybe"
	// VoteUnset marks a participant who joined but has not answered.
	VoteUnset Vote = ""
)

// Valid reports whether v is one of the three recognized answers.
func (v Vote) Valid() bool {
	switch v {
	case VoteYes, VoteNo, VoteMaybe:
		return true
	}
	return false
}

// RoomStatus defines the lifecycle state of a room.
type RoomStatus string

const (
	RoomStatusOpen   RoomStatus = "open"
	RoomStatusLocked RoomStatus = "locked"
)

// Participant is one member of a room. At most one entry per UserID
// exists within a room; a later vote overwrites the earlier one in place.
type Participant struct {
	UserID   string
	Name     string
	Username string
	Vote     Vote
}

// Location is the place a locked room converged on. The engine treats it
// as an opaque payload set by the external suggestion service.
type Location struct {
	Name    string
	Address string
	Rating  float64
}

// Room is a single meetup planning session.
type Room struct {
	ID       string
	Code     string // 4-character join code, unique among active rooms
	HostID   string
	HostName string
	Type     string // category tag: cafe, food, walk, ...
	Title    string
	Status   RoomStatus

	Participants     []Participant
	SelectedLocation *Location

	// Revision increases on every create/replace. It is owned by the
	// store and lets readers compare the freshness of two snapshots.
	Revision  int64
	CreatedAt time.Time
}

// Clone returns a deep copy so callers can mutate snapshots freely.
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Participants = make([]Participant, len(r.Participants))
	copy(cp.Participants, r.Participants)
	if r.SelectedLocation != nil {
		loc := *r.SelectedLocation
		cp.SelectedLocation = &loc
	}
	return &cp
}

// Participant returns the entry for userID, or nil if absent.
func (r *Room) Participant(userID string) *Participant {
	for i := range r.Participants {
		if r.Participants[i].UserID == userID {
			return &r.Participants[i]
		}
	}
	return nil
}

// RoomStore handles room persistence. The engine treats it as a
// key-value store keyed by room id and by join code.
type RoomStore interface {
	// CreateRoom persists a new room and assigns its first revision.
	CreateRoom(ctx context.Context, room *Room) (*Room, error)

	// GetRoom retrieves a room by id. Returns ErrNotFound if absent.
	GetRoom(ctx context.Context, id string) (*Room, error)

	// GetRoomByCode retrieves a room by its normalized join code.
	// Returns ErrNotFound if the code is unknown.
	GetRoomByCode(ctx context.Context, code string) (*Room, error)

	// ReplaceRoom atomically replaces the whole room document keyed by
	// id and bumps its revision. No partial write is ever visible to
	// concurrent readers. Returns ErrNotFound if the room is gone.
	ReplaceRoom(ctx context.Context, id string, room *Room) (*Room, error)

	// ListRoomsByHost lists rooms created by the given host, newest first.
	ListRoomsByHost(ctx context.Context, hostID string) ([]*Room, error)

	// Close closes the underlying database connection.
	Close() error
}
