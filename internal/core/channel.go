package core

import (
	"context"

	"github.com/chalayga/meetsync-server/internal/store"
)

// EventChannel is the publish/subscribe transport with one topic per
// room id. Publishers broadcast full room snapshots, never diffs, so a
// late-joining subscriber that receives any broadcast is fully caught up.
//
// Snapshots flowing through the channel are shared and must be treated
// as read-only by subscribers.
type EventChannel interface {
	// Subscribe attaches to the topic for roomID. The subscription ends
	// when ctx is cancelled or Close is called.
	Subscribe(ctx context.Context, roomID string) (Subscription, error)

	// Publish broadcasts a full room snapshot to all current subscribers
	// of the topic. Called by the reconciler after a successful replace.
	Publish(roomID string, room *store.Room)
}

// Subscription is one attachment to a room topic.
type Subscription interface {
	// Snapshots delivers published room snapshots in publish order for
	// as long as the subscription stays connected. The channel makes no
	// delivery guarantee across a disconnect; reconnecting subscribers
	// must re-fetch instead of trusting buffered events.
	Snapshots() <-chan *store.Room

	// Done is closed when the subscription drops, whether from Close,
	// context cancellation, or transport failure.
	Done() <-chan struct{}

	// Close detaches from the topic. Safe to call more than once.
	Close()
}
