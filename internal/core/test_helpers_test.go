package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/chalayga/meetsync-server/internal/store"
	"github.com/chalayga/meetsync-server/internal/store/memory"
)

// seedRoom creates a room directly in the store and returns it.
func seedRoom(t *testing.T, st store.RoomStore, id, code string) *store.Room {
	t.Helper()

	room, err := st.CreateRoom(context.Background(), &store.Room{
		ID:       id,
		Code:     code,
		HostID:   "host-1",
		HostName: "Hana",
		Type:     "cafe",
		Status:   store.RoomStatusOpen,
	})
	if err != nil {
		t.Fatalf("seed room: %v", err)
	}
	return room
}

// newTestReconciler wires a reconciler over a fresh in-memory store and
// broker.
func newTestReconciler(t *testing.T) (*Reconciler, *memory.Store, *Broker) {
	t.Helper()

	st := memory.New()
	broker := NewBroker(nil)
	return NewReconciler(st, broker, nil), st, broker
}

// waitState polls until the session reaches the wanted state.
func waitState(t *testing.T, sess *Session, want ConnState) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sess.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("session never reached state %v, still %v", want, sess.State())
}

// waitRevision polls until the session's last known snapshot carries the
// wanted revision.
func waitRevision(t *testing.T, sess *Session, want int64) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if snap := sess.LastKnownSnapshot(); snap != nil && snap.Revision == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	snap := sess.LastKnownSnapshot()
	if snap == nil {
		t.Fatalf("expected revision %d, have no snapshot", want)
	}
	t.Fatalf("expected revision %d, have %d", want, snap.Revision)
}

// mustVoteErr drains the updates channel until a vote rejection shows up.
func mustVoteErr(t *testing.T, ch <-chan Update) Update {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case u := <-ch:
			if u.VoteErr != nil {
				return u
			}
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	t.Fatal("expected a vote rejection update")
	return Update{}
}

// fakeChannel is an EventChannel whose subscriptions can be dropped on
// demand to simulate transport failures.
type fakeChannel struct {
	mu            sync.Mutex
	subs          []*fakeSub
	subscribeErrs int
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{}
}

func (f *fakeChannel) Subscribe(ctx context.Context, roomID string) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.subscribeErrs > 0 {
		f.subscribeErrs--
		return nil, context.DeadlineExceeded
	}

	sub := &fakeSub{
		ch:   make(chan *store.Room, 8),
		done: make(chan struct{}),
	}
	f.subs = append(f.subs, sub)
	return sub, nil
}

func (f *fakeChannel) Publish(_ string, room *store.Room) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sub := range f.subs {
		select {
		case <-sub.done:
		case sub.ch <- room:
		default:
		}
	}
}

// drop severs every open subscription, as a transport failure would.
func (f *fakeChannel) drop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sub := range f.subs {
		sub.Close()
	}
	f.subs = nil
}

func (f *fakeChannel) failNextSubscribes(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribeErrs = n
}

type fakeSub struct {
	ch   chan *store.Room
	done chan struct{}
	once sync.Once
}

func (s *fakeSub) Snapshots() <-chan *store.Room { return s.ch }
func (s *fakeSub) Done() <-chan struct{}         { return s.done }
func (s *fakeSub) Close()                        { s.once.Do(func() { close(s.done) }) }

// flakyStore wraps a RoomStore and can be switched to fail reads.
type flakyStore struct {
	store.RoomStore
	mu   sync.Mutex
	fail bool
}

func (f *flakyStore) setFail(fail bool) {
	f.mu.Lock()
	f.fail = fail
	f.mu.Unlock()
}

func (f *flakyStore) GetRoom(ctx context.Context, id string) (*store.Room, error) {
	f.mu.Lock()
	fail := f.fail
	f.mu.Unlock()
	if fail {
		return nil, context.DeadlineExceeded
	}
	return f.RoomStore.GetRoom(ctx, id)
}
