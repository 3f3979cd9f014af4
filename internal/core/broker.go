package core

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/chalayga/meetsync-server/internal/store"
)

const subscriptionBuffer = 8

// Broker is the in-process EventChannel implementation. It keeps a
// subscriber set per room topic and fans every published snapshot out to
// all of them.
type Broker struct {
	log *zerolog.Logger

	mu     sync.RWMutex
	topics map[string]map[*brokerSub]struct{}
}

// NewBroker creates a broker with no topics.
func NewBroker(logger *zerolog.Logger) *Broker {
	return &Broker{
		log:    logger,
		topics: make(map[string]map[*brokerSub]struct{}),
	}
}

// Subscribe attaches to the topic for roomID.
func (b *Broker) Subscribe(ctx context.Context, roomID string) (Subscription, error) {
	sub := &brokerSub{
		broker: b,
		roomID: roomID,
		ch:     make(chan *store.Room, subscriptionBuffer),
		done:   make(chan struct{}),
	}

	b.mu.Lock()
	subs, ok := b.topics[roomID]
	if !ok {
		subs = make(map[*brokerSub]struct{})
		b.topics[roomID] = subs
	}
	subs[sub] = struct{}{}
	b.mu.Unlock()

	if ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				sub.Close()
			case <-sub.done:
			}
		}()
	}

	return sub, nil
}

// Publish broadcasts a full room snapshot to every subscriber of the
// topic. Slow consumers keep only the freshest snapshots; dropping an
// intermediate one is safe because a later full snapshot supersedes it.
func (b *Broker) Publish(roomID string, room *store.Room) {
	b.mu.RLock()
	subs := b.topics[roomID]
	for sub := range subs {
		sub.deliver(room)
	}
	count := len(subs)
	b.mu.RUnlock()

	if b.log != nil {
		b.log.Debug().
			Str("room_id", roomID).
			Int64("revision", room.Revision).
			Int("subscribers", count).
			Msg("snapshot published")
	}
}

// SubscriberCount reports how many subscriptions a topic currently has.
func (b *Broker) SubscriberCount(roomID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[roomID])
}

func (b *Broker) remove(sub *brokerSub) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.topics[sub.roomID]
	if !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(b.topics, sub.roomID)
	}
}

type brokerSub struct {
	broker *Broker
	roomID string
	ch     chan *store.Room
	done   chan struct{}
	once   sync.Once
}

func (s *brokerSub) Snapshots() <-chan *store.Room { return s.ch }
func (s *brokerSub) Done() <-chan struct{}         { return s.done }

func (s *brokerSub) Close() {
	s.once.Do(func() {
		s.broker.remove(s)
		close(s.done)
	})
}

// deliver pushes a snapshot without blocking the publisher. If the
// buffer is full the oldest queued snapshot is evicted first.
func (s *brokerSub) deliver(room *store.Room) {
	select {
	case <-s.done:
		return
	default:
	}

	select {
	case s.ch <- room:
		return
	default:
	}
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- room:
	default:
	}
}
