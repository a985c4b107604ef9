// Package event provides a per-session pub/sub event system using watermill.
package event

import (
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Type represents the type of event.
type Type string

const (
	SessionStatus    Type = "session.status"
	MessageAppended  Type = "message.appended"
	ToolCallStarted  Type = "toolcall.started"
	ToolCallFinished Type = "toolcall.finished"
)

// Event represents an event published for one session.
type Event struct {
	Type      Type   `json:"type"`
	SessionID string `json:"sessionID"`
	Data      any    `json:"data"`
}

// Subscription is a bounded, drop-oldest view of one session's events.
// Events arrive on the channel in publish order; when a consumer falls
// behind, the oldest buffered event is discarded so the publisher never
// blocks.
type Subscription struct {
	id      uint64
	ch      chan Event
	dropped atomic.Uint64
	once    sync.Once
	cancel  func()
}

// Events returns the subscription's delivery channel. It is closed by
// Close (or when the bus shuts down).
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Dropped reports how many events were discarded because the consumer
// was too slow.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close terminates the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.cancel()
}

// Bus fans out session events to subscribers. Delivery runs on the
// typed channels directly to preserve Go values and the drop-oldest
// guarantee.
type Bus struct {
	mu sync.RWMutex

	// Watermill pub/sub infrastructure for future middleware and routing.
	pubsub *gochannel.GoChannel

	// subscribers keyed by session id. The empty key receives every
	// session's events.
	subscribers map[string][]*Subscription

	nextID uint64
	closed bool
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer: 100,
				Persistent:          false,
			},
			watermill.NopLogger{},
		),
		subscribers: make(map[string][]*Subscription),
	}
}

// Subscribe registers a subscriber for one session's events. Pass the
// empty string to observe all sessions. The buffer bounds how far the
// consumer may lag before old events are dropped; zero or negative
// means 64.
func (b *Bus) Subscribe(sessionID string, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 64
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription{
		id: atomic.AddUint64(&b.nextID, 1),
		ch: make(chan Event, buffer),
	}
	sub.cancel = func() {
		sub.once.Do(func() {
			b.unsubscribe(sessionID, sub.id)
			close(sub.ch)
		})
	}

	if b.closed {
		close(sub.ch)
		sub.cancel = func() {}
		return sub
	}

	b.subscribers[sessionID] = append(b.subscribers[sessionID], sub)
	return sub
}

func (b *Bus) unsubscribe(sessionID string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[sessionID]
	for i, s := range subs {
		if s.id == id {
			b.subscribers[sessionID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}

// Publish delivers an event to every subscriber of its session plus the
// all-sessions subscribers. It never blocks: a full subscriber loses its
// oldest buffered event to make room.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	subs := make([]*Subscription, 0,
		len(b.subscribers[evt.SessionID])+len(b.subscribers[""]))
	subs = append(subs, b.subscribers[evt.SessionID]...)
	if evt.SessionID != "" {
		subs = append(subs, b.subscribers[""]...)
	}
	b.mu.RUnlock()

	for _, s := range subs {
		deliver(s, evt)
	}
}

// deliver pushes one event with drop-oldest backpressure.
func deliver(s *Subscription, evt Event) {
	select {
	case s.ch <- evt:
		return
	default:
	}
	select {
	case <-s.ch:
		s.dropped.Add(1)
	default:
	}
	select {
	case s.ch <- evt:
	default:
		s.dropped.Add(1)
	}
}

// Close shuts down the bus and terminates every subscription.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	all := b.subscribers
	b.subscribers = make(map[string][]*Subscription)
	b.mu.Unlock()

	for _, subs := range all {
		for _, s := range subs {
			s.once.Do(func() { close(s.ch) })
		}
	}
	return b.pubsub.Close()
}
