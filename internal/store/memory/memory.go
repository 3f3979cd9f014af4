// Package memory provides an in-process RoomStore used by tests and the
// --dev server mode. Semantics match the SQLite store: whole-document
// replace, revision bump on every write, deep-copied reads.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/chalayga/meetsync-server/internal/store"
)

// Store implements store.RoomStore backed by a map.
type Store struct {
	mu     sync.RWMutex
	rooms  map[string]*store.Room
	byCode map[string]string
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		rooms:  make(map[string]*store.Room),
		byCode: make(map[string]string),
	}
}

// CreateRoom persists a new room at revision 1.
func (s *Store) CreateRoom(_ context.Context, room *store.Room) (*store.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rooms[room.ID]; exists {
		return nil, fmt.Errorf("room %s already exists", room.ID)
	}
	if _, exists := s.byCode[room.Code]; exists {
		return nil, fmt.Errorf("code %s already in use", room.Code)
	}

	cp := room.Clone()
	cp.Revision = 1
	if cp.Status == "" {
		cp.Status = store.RoomStatusOpen
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.rooms[cp.ID] = cp
	s.byCode[cp.Code] = cp.ID
	return cp.Clone(), nil
}

// GetRoom retrieves a room by id.
func (s *Store) GetRoom(_ context.Context, id string) (*store.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[id]
	if !ok {
		return nil, fmt.Errorf("room: %w", store.ErrNotFound)
	}
	return room.Clone(), nil
}

// GetRoomByCode retrieves a room by its join code.
func (s *Store) GetRoomByCode(_ context.Context, code string) (*store.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byCode[code]
	if !ok {
		return nil, fmt.Errorf("room: %w", store.ErrNotFound)
	}
	return s.rooms[id].Clone(), nil
}

// ReplaceRoom atomically replaces the whole room document and bumps its
// revision.
func (s *Store) ReplaceRoom(_ context.Context, id string, room *store.Room) (*store.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.rooms[id]
	if !ok {
		return nil, fmt.Errorf("room: %w", store.ErrNotFound)
	}

	cp := room.Clone()
	cp.ID = id
	cp.Revision = current.Revision + 1
	cp.CreatedAt = current.CreatedAt
	if current.Code != cp.Code {
		delete(s.byCode, current.Code)
		s.byCode[cp.Code] = id
	}
	s.rooms[id] = cp
	return cp.Clone(), nil
}

// ListRoomsByHost lists rooms created by the given host, newest first.
func (s *Store) ListRoomsByHost(_ context.Context, hostID string) ([]*store.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rooms []*store.Room
	for _, room := range s.rooms {
		if room.HostID == hostID {
			rooms = append(rooms, room.Clone())
		}
	}
	sort.Slice(rooms, func(i, j int) bool {
		if !rooms[i].CreatedAt.Equal(rooms[j].CreatedAt) {
			return rooms[i].CreatedAt.After(rooms[j].CreatedAt)
		}
		return rooms[i].ID < rooms[j].ID
	})
	return rooms, nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}
