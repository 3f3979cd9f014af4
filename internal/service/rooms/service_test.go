package rooms

import (
	"context"
	"errors"
	"testing"

	"github.com/chalayga/meetsync-server/internal/core"
	"github.com/chalayga/meetsync-server/internal/store"
	"github.com/chalayga/meetsync-server/internal/store/memory"
)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	st := memory.New()
	recon := core.NewReconciler(st, core.NewBroker(nil), nil)
	return New(st, recon, nil), st
}

func TestCreateRoom(t *testing.T) {
	svc, _ := newTestService(t)

	room, err := svc.Create(context.Background(), CreateParams{
		HostID:       "host-1",
		HostName:     "Amy",
		HostUsername: "amy",
		Type:         "coffee",
		Title:        "Morning coffee",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if room.ID == "" {
		t.Fatal("missing room id")
	}
	if len(room.Code) != core.CodeLength {
		t.Fatalf("expected %d-char code, got %q", core.CodeLength, room.Code)
	}
	if room.Status != store.RoomStatusOpen {
		t.Fatalf("expected open room, got %q", room.Status)
	}
	// The host is in their own plan from the start, counted as a yes.
	if len(room.Participants) != 1 {
		t.Fatalf("expected host participant, got %+v", room.Participants)
	}
	host := room.Participants[0]
	if host.UserID != "host-1" || host.Vote != store.VoteYes {
		t.Fatalf("unexpected host participant: %+v", host)
	}
}

func TestCreateRoomValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, CreateParams{Type: "coffee"}); !errors.Is(err, ErrMissingHost) {
		t.Fatalf("expected ErrMissingHost, got %v", err)
	}
	if _, err := svc.Create(ctx, CreateParams{HostID: "h", HostName: "H"}); !errors.Is(err, ErrMissingType) {
		t.Fatalf("expected ErrMissingType, got %v", err)
	}
}

// collisionStore forces the first n creates to fail the way a duplicate
// join code does.
type collisionStore struct {
	store.RoomStore
	collisions int
	attempts   int
}

func (c *collisionStore) CreateRoom(ctx context.Context, room *store.Room) (*store.Room, error) {
	c.attempts++
	if c.attempts <= c.collisions {
		return nil, errors.New("code AB12 already in use")
	}
	return c.RoomStore.CreateRoom(ctx, room)
}

func TestCreateRetriesCodeCollisions(t *testing.T) {
	st := &collisionStore{RoomStore: memory.New(), collisions: 2}
	recon := core.NewReconciler(st, core.NewBroker(nil), nil)
	svc := New(st, recon, nil)

	room, err := svc.Create(context.Background(), CreateParams{
		HostID: "host-1", HostName: "Amy", Type: "coffee",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if st.attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", st.attempts)
	}
	if room.Code == "" {
		t.Fatal("missing join code after retries")
	}
}

func TestCreateGivesUpAfterBudget(t *testing.T) {
	st := &collisionStore{RoomStore: memory.New(), collisions: codeAttempts + 1}
	recon := core.NewReconciler(st, core.NewBroker(nil), nil)
	svc := New(st, recon, nil)

	_, err := svc.Create(context.Background(), CreateParams{
		HostID: "host-1", HostName: "Amy", Type: "coffee",
	})
	if !errors.Is(err, ErrCodeExhausted) {
		t.Fatalf("expected ErrCodeExhausted, got %v", err)
	}
}

func TestGetMapsNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Get(context.Background(), "ghost")
	if !errors.Is(err, core.ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
}

func TestLockRoom(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	room, err := svc.Create(ctx, CreateParams{HostID: "host-1", HostName: "Amy", Type: "dinner"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	locked, err := svc.Lock(ctx, room.ID, store.Location{Name: "Cafe Mira", Address: "12 Pine St", Rating: 4.5})
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if locked.Status != store.RoomStatusLocked {
		t.Fatalf("expected locked status, got %q", locked.Status)
	}
	if locked.SelectedLocation == nil || locked.SelectedLocation.Name != "Cafe Mira" {
		t.Fatalf("selected location not recorded: %+v", locked.SelectedLocation)
	}

	persisted, err := st.GetRoom(ctx, room.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if persisted.Status != store.RoomStatusLocked {
		t.Fatalf("lock not persisted: %+v", persisted)
	}
}

func TestListByHost(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for _, title := range []string{"first", "second"} {
		if _, err := svc.Create(ctx, CreateParams{HostID: "host-1", HostName: "Amy", Type: "coffee", Title: title}); err != nil {
			t.Fatalf("create %q: %v", title, err)
		}
	}
	if _, err := svc.Create(ctx, CreateParams{HostID: "host-2", HostName: "Ben", Type: "coffee"}); err != nil {
		t.Fatalf("create other host: %v", err)
	}

	rooms, err := svc.ListByHost(ctx, "host-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rooms) != 2 {
		t.Fatalf("expected 2 rooms, got %d", len(rooms))
	}
	for _, r := range rooms {
		if r.HostID != "host-1" {
			t.Fatalf("foreign plan in listing: %+v", r)
		}
	}
}
