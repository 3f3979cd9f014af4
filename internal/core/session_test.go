package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chalayga/meetsync-server/internal/store"
	"github.com/chalayga/meetsync-server/internal/store/memory"
)

func testSessionConfig() SessionConfig {
	return SessionConfig{
		FetchTimeout:      time.Second,
		ReconnectAttempts: 2,
		ReconnectBackoff:  10 * time.Millisecond,
	}
}

func TestSessionOpenGoesLive(t *testing.T) {
	st := memory.New()
	seedRoom(t, st, "room-1", "ABCD")
	ch := newFakeChannel()
	recon := NewReconciler(st, ch, nil)

	sess := NewSession("room-1", st, ch, recon, testSessionConfig(), nil)
	defer sess.Close()

	if sess.State() != StateConnecting {
		t.Fatalf("expected connecting before Open, got %v", sess.State())
	}
	if err := sess.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}

	waitState(t, sess, StateLive)
	snap := sess.LastKnownSnapshot()
	if snap == nil || snap.ID != "room-1" {
		t.Fatalf("expected initial snapshot, got %+v", snap)
	}
}

func TestSessionOpenUnknownRoomTerminates(t *testing.T) {
	st := memory.New()
	ch := newFakeChannel()

	sess := NewSession("ghost", st, ch, NewReconciler(st, ch, nil), testSessionConfig(), nil)
	err := sess.Open(context.Background())
	if !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
	if sess.State() != StateTerminated {
		t.Fatalf("expected terminated after failed open, got %v", sess.State())
	}
}

func TestSessionBroadcastReplacesSnapshotWholesale(t *testing.T) {
	st := memory.New()
	seedRoom(t, st, "room-1", "ABCD")
	ch := newFakeChannel()
	recon := NewReconciler(st, ch, nil)

	sess := NewSession("room-1", st, ch, recon, testSessionConfig(), nil)
	defer sess.Close()
	if err := sess.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}

	if _, err := recon.ApplyVote(context.Background(), "room-1", "u1", "Amy", "amy", store.VoteYes); err != nil {
		t.Fatalf("apply vote: %v", err)
	}

	waitRevision(t, sess, 2)
	snap := sess.LastKnownSnapshot()
	if p := snap.Participant("u1"); p == nil || p.Vote != store.VoteYes {
		t.Fatalf("adopted snapshot missing the vote: %+v", snap.Participants)
	}
}

func TestSessionOptimisticVoteClearedOnConfirm(t *testing.T) {
	st := memory.New()
	seedRoom(t, st, "room-1", "ABCD")
	ch := newFakeChannel()
	recon := NewReconciler(st, ch, nil)

	sess := NewSession("room-1", st, ch, recon, testSessionConfig(), nil)
	defer sess.Close()
	if err := sess.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}

	sess.CastVote("u1", "Amy", "amy", store.VoteMaybe)

	// The optimistic vote is either still pending or already confirmed
	// by the time we look; it must never be lost.
	if p := sess.PendingVote(); p != nil && p.Vote != store.VoteMaybe {
		t.Fatalf("unexpected pending vote right after cast: %+v", p)
	}

	// Once a snapshot reflecting the vote lands, pending clears.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap := sess.LastKnownSnapshot()
		if p := snap.Participant("u1"); p != nil && p.Vote == store.VoteMaybe && sess.PendingVote() == nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("pending vote never cleared; snapshot %+v pending %+v", sess.LastKnownSnapshot(), sess.PendingVote())
}

func TestSessionVoteRejectionRevertsOptimisticState(t *testing.T) {
	st := memory.New()
	seedRoom(t, st, "room-1", "ABCD")
	ch := newFakeChannel()
	recon := NewReconciler(st, ch, nil)

	if _, err := recon.LockRoom(context.Background(), "room-1", store.Location{Name: "Cafe Mira"}); err != nil {
		t.Fatalf("lock room: %v", err)
	}

	sess := NewSession("room-1", st, ch, recon, testSessionConfig(), nil)
	defer sess.Close()
	if err := sess.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}

	sess.CastVote("u1", "Amy", "amy", store.VoteYes)

	u := mustVoteErr(t, sess.Updates())
	if !errors.Is(u.VoteErr, ErrRoomLocked) {
		t.Fatalf("expected ErrRoomLocked rejection, got %v", u.VoteErr)
	}
	if sess.PendingVote() != nil {
		t.Fatalf("expected optimistic vote reverted, still pending %+v", sess.PendingVote())
	}
	// No automatic retry: the participant never appears in the store.
	room, err := st.GetRoom(context.Background(), "room-1")
	if err != nil {
		t.Fatalf("reload room: %v", err)
	}
	if room.Participant("u1") != nil {
		t.Fatal("rejected vote leaked into the store")
	}
}

func TestSessionInvalidVoteSurfacedWithoutApply(t *testing.T) {
	st := memory.New()
	seedRoom(t, st, "room-1", "ABCD")
	ch := newFakeChannel()
	recon := NewReconciler(st, ch, nil)

	sess := NewSession("room-1", st, ch, recon, testSessionConfig(), nil)
	defer sess.Close()
	if err := sess.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}

	sess.CastVote("u1", "Amy", "amy", store.Vote("perhaps"))

	u := mustVoteErr(t, sess.Updates())
	if !errors.Is(u.VoteErr, ErrInvalidVote) {
		t.Fatalf("expected ErrInvalidVote, got %v", u.VoteErr)
	}
}

func TestSessionReconnectRefetchesSnapshot(t *testing.T) {
	st := memory.New()
	seeded := seedRoom(t, st, "room-1", "ABCD")
	ch := newFakeChannel()
	recon := NewReconciler(st, ch, nil)

	sess := NewSession("room-1", st, ch, recon, testSessionConfig(), nil)
	defer sess.Close()
	if err := sess.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}

	// The store moves on while the transport is down.
	updated := seeded.Clone()
	updated.Title = "Friday coffee"
	if _, err := st.ReplaceRoom(context.Background(), "room-1", updated); err != nil {
		t.Fatalf("replace room: %v", err)
	}

	ch.drop()

	waitState(t, sess, StateLive)
	waitRevision(t, sess, 2)
	if sess.LastKnownSnapshot().Title != "Friday coffee" {
		t.Fatalf("reconnect did not re-fetch: %+v", sess.LastKnownSnapshot())
	}

	// The fresh subscription keeps streaming.
	if _, err := recon.ApplyVote(context.Background(), "room-1", "u1", "Amy", "amy", store.VoteYes); err != nil {
		t.Fatalf("apply vote: %v", err)
	}
	waitRevision(t, sess, 3)
}

func TestSessionReconnectSurvivesTransientSubscribeFailure(t *testing.T) {
	st := memory.New()
	seedRoom(t, st, "room-1", "ABCD")
	ch := newFakeChannel()
	recon := NewReconciler(st, ch, nil)

	sess := NewSession("room-1", st, ch, recon, testSessionConfig(), nil)
	defer sess.Close()
	if err := sess.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}

	// The first reconnect attempt fails to resubscribe; the second one,
	// still inside the budget, goes through.
	ch.failNextSubscribes(1)
	ch.drop()

	waitState(t, sess, StateLive)
	if _, err := recon.ApplyVote(context.Background(), "room-1", "u1", "Amy", "amy", store.VoteYes); err != nil {
		t.Fatalf("apply vote: %v", err)
	}
	waitRevision(t, sess, 2)
}

func TestSessionDetachesAfterBudgetThenManualRefresh(t *testing.T) {
	base := memory.New()
	seedRoom(t, base, "room-1", "ABCD")
	st := &flakyStore{RoomStore: base}
	ch := newFakeChannel()
	recon := NewReconciler(st, ch, nil)

	sess := NewSession("room-1", st, ch, recon, testSessionConfig(), nil)
	defer sess.Close()
	if err := sess.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}

	st.setFail(true)
	ch.drop()

	// Two attempts fail, then the session detaches and stays detached:
	// no background retry loop runs.
	waitState(t, sess, StateDetached)
	time.Sleep(50 * time.Millisecond)
	if sess.State() != StateDetached {
		t.Fatalf("expected session to stay detached, got %v", sess.State())
	}

	// Manual refresh is the way back.
	st.setFail(false)
	if err := sess.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	waitState(t, sess, StateLive)
}

func TestSessionDetachedRefreshFailureStaysDetached(t *testing.T) {
	base := memory.New()
	seedRoom(t, base, "room-1", "ABCD")
	st := &flakyStore{RoomStore: base}
	ch := newFakeChannel()
	recon := NewReconciler(st, ch, nil)

	sess := NewSession("room-1", st, ch, recon, testSessionConfig(), nil)
	defer sess.Close()
	if err := sess.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}

	st.setFail(true)
	ch.drop()
	waitState(t, sess, StateDetached)

	if err := sess.Refresh(context.Background()); err == nil {
		t.Fatal("expected refresh to fail while the store is down")
	}
	if sess.State() != StateDetached {
		t.Fatalf("expected detached after failed refresh, got %v", sess.State())
	}
}

// Out-of-order broadcasts replace wholesale; only an explicit fetch
// resolves by store revision. The asymmetry is deliberate: event-only
// updates trust the publisher's ordering, a fetch trusts the store.
func TestSessionOutOfOrderBroadcastsAndExplicitFetch(t *testing.T) {
	st := memory.New()
	seeded := seedRoom(t, st, "room-1", "ABCD")
	ch := newFakeChannel()
	recon := NewReconciler(st, ch, nil)

	sess := NewSession("room-1", st, ch, recon, testSessionConfig(), nil)
	defer sess.Close()
	if err := sess.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}

	second := seeded.Clone()
	second.Title = "second"
	rev2, err := st.ReplaceRoom(context.Background(), "room-1", second)
	if err != nil {
		t.Fatalf("replace to rev2: %v", err)
	}
	third := rev2.Clone()
	third.Title = "third"
	rev3, err := st.ReplaceRoom(context.Background(), "room-1", third)
	if err != nil {
		t.Fatalf("replace to rev3: %v", err)
	}

	// Simulated delay: the newer snapshot arrives first, the stale one
	// last. The session, live on events only, ends up on the stale one.
	ch.Publish("room-1", rev3)
	waitRevision(t, sess, 3)
	ch.Publish("room-1", rev2)
	waitRevision(t, sess, 2)

	// An explicit fetch adopts the newest store revision, not whichever
	// broadcast arrived last.
	if err := sess.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	waitRevision(t, sess, 3)
	if sess.LastKnownSnapshot().Title != "third" {
		t.Fatalf("refresh adopted the wrong snapshot: %+v", sess.LastKnownSnapshot())
	}
}

func TestSessionCloseIsClientLocal(t *testing.T) {
	st := memory.New()
	seedRoom(t, st, "room-1", "ABCD")
	ch := newFakeChannel()
	recon := NewReconciler(st, ch, nil)

	sess := NewSession("room-1", st, ch, recon, testSessionConfig(), nil)
	if err := sess.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}

	sess.CastVote("u1", "Amy", "amy", store.VoteYes)
	sess.Close()

	if sess.State() != StateTerminated {
		t.Fatalf("expected terminated, got %v", sess.State())
	}

	// The in-flight write still lands server-side; only the result
	// handling was abandoned.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		room, err := st.GetRoom(context.Background(), "room-1")
		if err != nil {
			t.Fatalf("reload room: %v", err)
		}
		if p := room.Participant("u1"); p != nil && p.Vote == store.VoteYes {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("abandoned vote never reached the store")
}
