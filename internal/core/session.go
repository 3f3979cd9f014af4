package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/chalayga/meetsync-server/internal/store"
)

// ConnState is the connection state of a session. It is a single tagged
// value rather than a set of booleans so illegal combinations cannot be
// represented.
type ConnState int

const (
	// StateConnecting covers the initial blocking fetch + subscribe.
	StateConnecting ConnState = iota
	// StateLive means snapshots stream in and replace local state wholesale.
	StateLive
	// StateReconnecting means the transport dropped; the last known
	// snapshot is kept so the view can show the last good state.
	StateReconnecting
	// StateDetached means the reconnect budget ran out. No background
	// retry keeps running; a manual Refresh is the way back.
	StateDetached
	// StateTerminated means the session was closed or never connected.
	StateTerminated
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateLive:
		return "live"
	case StateReconnecting:
		return "reconnecting"
	case StateDetached:
		return "detached"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// SessionConfig bounds the session's fetch and reconnect behavior.
type SessionConfig struct {
	// FetchTimeout bounds every snapshot fetch and subscribe attempt.
	FetchTimeout time.Duration
	// ReconnectAttempts is the give-up threshold before detaching.
	ReconnectAttempts int
	// ReconnectBackoff is the pause between reconnect attempts.
	ReconnectBackoff time.Duration
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 5 * time.Second
	}
	if c.ReconnectAttempts <= 0 {
		c.ReconnectAttempts = 5
	}
	if c.ReconnectBackoff <= 0 {
		c.ReconnectBackoff = 500 * time.Millisecond
	}
	return c
}

// Update is what the session emits toward the view layer.
type Update struct {
	State ConnState
	// Room is the last known snapshot; nil until the first fetch lands.
	Room *store.Room
	// Pending is the optimistic local vote not yet confirmed by a
	// snapshot, or nil.
	Pending *store.Participant
	// VoteErr reports a rejected vote cast. Sent exactly once per failed
	// attempt; the optimistic state has already been reverted.
	VoteErr error
}

// Session keeps one device's view of one room consistent with the
// canonical state. It owns the fetch/subscribe lifecycle and the
// optimistic vote bookkeeping; the store and channel are injected so a
// session is independently testable. Sessions are not persisted: a new
// room view always builds a fresh one.
type Session struct {
	roomID  string
	store   store.RoomStore
	channel EventChannel
	recon   *Reconciler
	cfg     SessionConfig
	log     *zerolog.Logger

	mu      sync.Mutex
	state   ConnState
	last    *store.Room
	pending *store.Participant

	updates  chan Update
	refreshc chan chan error
	closed   chan struct{}
	once     sync.Once
}

// NewSession builds a session in the connecting state. Call Open to
// perform the initial fetch and subscribe.
func NewSession(roomID string, st store.RoomStore, ch EventChannel, recon *Reconciler, cfg SessionConfig, logger *zerolog.Logger) *Session {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Session{
		roomID:   roomID,
		store:    st,
		channel:  ch,
		recon:    recon,
		cfg:      cfg.withDefaults(),
		log:      logger,
		state:    StateConnecting,
		updates:  make(chan Update, 16),
		refreshc: make(chan chan error),
		closed:   make(chan struct{}),
	}
}

// Open performs one blocking snapshot fetch and subscribes to the room
// topic. On success the session goes live and starts its event loop; on
// failure it terminates and reports the error upward without retrying.
func (s *Session) Open(ctx context.Context) error {
	snap, sub, err := s.establish(ctx)
	if err != nil {
		s.setState(StateTerminated)
		return err
	}

	s.adopt(snap)
	s.setState(StateLive)
	go s.loop(sub)
	return nil
}

// Updates delivers state transitions and adopted snapshots toward the
// view. Slow consumers keep only the freshest updates.
func (s *Session) Updates() <-chan Update { return s.updates }

// State returns the current connection state.
func (s *Session) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastKnownSnapshot returns the last room state accepted as canonical.
func (s *Session) LastKnownSnapshot() *store.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// RoomID returns the room this session is attached to.
func (s *Session) RoomID() string { return s.roomID }

// PendingVote returns the optimistic vote not yet confirmed by a
// snapshot, or nil.
func (s *Session) PendingVote() *store.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// CastVote renders the vote optimistically and applies it in the
// background. The apply is fire-and-forget: on success the confirming
// snapshot clears the pending vote, on failure the optimistic state is
// reverted and the rejection surfaced exactly once. There is no
// automatic retry; a second tap is the expected recovery path.
func (s *Session) CastVote(userID, name, username string, vote store.Vote) {
	if !vote.Valid() {
		s.emitVoteErr(fmt.Errorf("%w: %q", ErrInvalidVote, vote))
		return
	}

	optimistic := &store.Participant{
		UserID:   userID,
		Name:     name,
		Username: username,
		Vote:     vote,
	}
	s.mu.Lock()
	s.pending = optimistic
	s.mu.Unlock()
	s.emit()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.FetchTimeout)
		defer cancel()

		room, err := s.recon.ApplyVote(ctx, s.roomID, userID, name, username, vote)

		// A closed session abandons result handling; the server-side
		// write, if accepted, stands.
		select {
		case <-s.closed:
			return
		default:
		}

		if err != nil {
			s.mu.Lock()
			if s.pending == optimistic {
				s.pending = nil
			}
			s.mu.Unlock()
			if s.log != nil {
				s.log.Warn().Err(err).Str("room_id", s.roomID).Str("user_id", userID).Msg("vote rejected")
			}
			s.emitVoteErr(err)
			return
		}
		s.adopt(room)
	}()
}

// Refresh forces a snapshot re-fetch. From detached it also
// re-subscribes and, on success, returns the session to live; this is
// the manual-refresh affordance the view shows once the reconnect
// budget is spent.
func (s *Session) Refresh(ctx context.Context) error {
	req := make(chan error, 1)
	select {
	case s.refreshc <- req:
	case <-s.closed:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close tears the session down: unsubscribes from the topic and abandons
// the result handling of any in-flight vote apply. Cancellation is
// client-local only; it never aborts an accepted server-side mutation.
func (s *Session) Close() {
	s.once.Do(func() {
		close(s.closed)
		s.setState(StateTerminated)
	})
}

// loop owns the subscription lifecycle until the session closes.
func (s *Session) loop(sub Subscription) {
	defer func() {
		if sub != nil {
			sub.Close()
		}
	}()

	for {
		if sub == nil {
			// Detached: no background retry. Wait for Refresh or Close.
			sub = s.await()
			if sub == nil {
				return
			}
		}

		select {
		case <-s.closed:
			return

		case req := <-s.refreshc:
			// Explicit fetch: the store read is definitionally fresher
			// than any cached or in-flight event state.
			snap, err := s.fetch()
			if err == nil {
				s.adopt(snap)
			}
			req <- err

		case snap := <-sub.Snapshots():
			// Wholesale replacement. The publisher already reconciled
			// the state; merging here would reintroduce races.
			s.adopt(snap)

		case <-sub.Done():
			sub.Close()
			sub = s.reconnect()
		}
	}
}

// reconnect runs the bounded resubscribe + refetch loop. It returns the
// new subscription, or nil once the budget is spent (detached) or the
// session closed.
func (s *Session) reconnect() Subscription {
	s.setState(StateReconnecting)

	for attempt := 1; attempt <= s.cfg.ReconnectAttempts; attempt++ {
		select {
		case <-s.closed:
			return nil
		case <-time.After(s.cfg.ReconnectBackoff):
		}

		snap, sub, err := s.establish(context.Background())
		if err != nil {
			if s.log != nil {
				s.log.Debug().Err(err).
					Str("room_id", s.roomID).
					Int("attempt", attempt).
					Msg("reconnect attempt failed")
			}
			continue
		}

		// The fetched snapshot unconditionally replaces the old one;
		// buffered events from before the disconnect are never trusted.
		s.adopt(snap)
		s.setState(StateLive)
		return sub
	}

	if s.log != nil {
		s.log.Warn().Str("room_id", s.roomID).Int("attempts", s.cfg.ReconnectAttempts).Msg("session detached")
	}
	s.setState(StateDetached)
	return nil
}

// await blocks in the detached state until a manual Refresh succeeds or
// the session closes.
func (s *Session) await() Subscription {
	for {
		select {
		case <-s.closed:
			return nil
		case req := <-s.refreshc:
			snap, sub, err := s.establish(context.Background())
			if err != nil {
				req <- err
				continue
			}
			s.adopt(snap)
			s.setState(StateLive)
			req <- nil
			return sub
		}
	}
}

// establish performs one bounded fetch + subscribe sequence.
func (s *Session) establish(ctx context.Context) (*store.Room, Subscription, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	snap, err := s.store.GetRoom(fetchCtx, s.roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, fmt.Errorf("room %s: %w", s.roomID, ErrRoomNotFound)
		}
		return nil, nil, fmt.Errorf("%w: fetch snapshot: %v", ErrTransport, err)
	}

	sub, err := s.channel.Subscribe(context.Background(), s.roomID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: subscribe: %v", ErrTransport, err)
	}
	return snap, sub, nil
}

func (s *Session) fetch() (*store.Room, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.FetchTimeout)
	defer cancel()

	snap, err := s.store.GetRoom(ctx, s.roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("room %s: %w", s.roomID, ErrRoomNotFound)
		}
		return nil, fmt.Errorf("%w: fetch snapshot: %v", ErrTransport, err)
	}
	return snap, nil
}

// adopt replaces the last known snapshot wholesale and clears the
// pending vote once the snapshot reflects it.
func (s *Session) adopt(room *store.Room) {
	s.mu.Lock()
	s.last = room
	if s.pending != nil {
		if p := room.Participant(s.pending.UserID); p != nil && p.Vote == s.pending.Vote {
			s.pending = nil
		}
	}
	s.mu.Unlock()
	s.emit()
}

func (s *Session) setState(state ConnState) {
	s.mu.Lock()
	changed := s.state != state
	s.state = state
	s.mu.Unlock()
	if changed {
		s.emit()
	}
}

// emit pushes the current view toward the updates channel without ever
// blocking; if the consumer lags, the oldest update is evicted.
func (s *Session) emit() {
	s.mu.Lock()
	u := Update{State: s.state, Room: s.last, Pending: s.pending}
	s.mu.Unlock()
	s.push(u)
}

func (s *Session) emitVoteErr(err error) {
	s.mu.Lock()
	u := Update{State: s.state, Room: s.last, Pending: s.pending, VoteErr: err}
	s.mu.Unlock()
	s.push(u)
}

func (s *Session) push(u Update) {
	select {
	case s.updates <- u:
		return
	default:
	}
	select {
	case <-s.updates:
	default:
	}
	select {
	case s.updates <- u:
	default:
	}
}
