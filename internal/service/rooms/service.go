package rooms

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/chalayga/meetsync-server/internal/core"
	"github.com/chalayga/meetsync-server/internal/store"
	"github.com/chalayga/meetsync-server/internal/utils"
)

// codeAttempts bounds how often Create retries a colliding join code.
const codeAttempts = 8

// Common errors for room operations.
var (
	ErrMissingHost   = errors.New("host id and name are required")
	ErrMissingType   = errors.New("meetup type is required")
	ErrCodeExhausted = errors.New("could not allocate a unique join code")
)

// Service provides room lifecycle logic: creation with join-code
// allocation, lookup, listing, and the lock/selected-location flow.
// Vote application stays with the reconciler.
type Service struct {
	store store.RoomStore
	recon *core.Reconciler
	log   *zerolog.Logger
}

// New creates a room service.
func New(st store.RoomStore, recon *core.Reconciler, logger *zerolog.Logger) *Service {
	return &Service{
		store: st,
		recon: recon,
		log:   logger,
	}
}

// CreateParams describes a new meetup room.
type CreateParams struct {
	HostID       string
	HostName     string
	HostUsername string
	Type         string
	Title        string
}

// Create persists a new room with a server-generated join code. Codes
// are unique among active rooms; on a collision a fresh code is drawn.
// The host joins their own plan immediately with a yes vote.
func (s *Service) Create(ctx context.Context, p CreateParams) (*store.Room, error) {
	if p.HostID == "" || p.HostName == "" {
		return nil, ErrMissingHost
	}
	if p.Type == "" {
		return nil, ErrMissingType
	}

	for attempt := 0; attempt < codeAttempts; attempt++ {
		room := &store.Room{
			ID:       uuid.NewString(),
			Code:     utils.NewJoinCode(core.CodeLength),
			HostID:   p.HostID,
			HostName: p.HostName,
			Type:     p.Type,
			Title:    p.Title,
			Status:   store.RoomStatusOpen,
			Participants: []store.Participant{{
				UserID:   p.HostID,
				Name:     p.HostName,
				Username: p.HostUsername,
				Vote:     store.VoteYes,
			}},
		}

		created, err := s.store.CreateRoom(ctx, room)
		if err != nil {
			if isCodeCollision(err) {
				continue
			}
			return nil, fmt.Errorf("create room: %w", err)
		}

		if s.log != nil {
			s.log.Info().
				Str("room_id", created.ID).
				Str("code", created.Code).
				Str("host_id", created.HostID).
				Str("type", created.Type).
				Msg("room created")
		}
		return created, nil
	}

	return nil, ErrCodeExhausted
}

// Get retrieves a room by id.
func (s *Service) Get(ctx context.Context, id string) (*store.Room, error) {
	room, err := s.store.GetRoom(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("room %s: %w", id, core.ErrRoomNotFound)
		}
		return nil, err
	}
	return room, nil
}

// ListByHost lists the host's plans, newest first.
func (s *Service) ListByHost(ctx context.Context, hostID string) ([]*store.Room, error) {
	return s.store.ListRoomsByHost(ctx, hostID)
}

// Lock records the selected location (an opaque payload chosen by the
// external suggestion service) and flips the room to locked. Routed
// through the reconciler so it shares the per-room serialization point
// and publishes the final snapshot.
func (s *Service) Lock(ctx context.Context, id string, location store.Location) (*store.Room, error) {
	return s.recon.LockRoom(ctx, id, location)
}

// isCodeCollision recognizes the store-specific unique-code violations.
func isCodeCollision(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "already in use")
}
