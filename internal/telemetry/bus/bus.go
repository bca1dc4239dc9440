// Package bus implements the fan-out layer between the connection manager
// and its consumers. Each Stream delivers events to every subscriber in
// publish order, with no replay for late subscribers. Delivery is
// non-blocking: a subscriber that cannot keep up has events dropped and
// counted rather than stalling the transport.
package bus

import (
	"sync"
	"sync/atomic"
)

// SubscriberStats counts deliveries for one subscriber.
type SubscriberStats struct {
	Delivered uint64
	Dropped   uint64
}

type subscriber[T any] struct {
	ch        chan<- T
	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// Stream is a single-topic fan-out hub. The zero value is not usable; use
// NewStream.
type Stream[T any] struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber[T]
	published   atomic.Uint64
	closed      bool
}

// NewStream creates an empty stream.
func NewStream[T any]() *Stream[T] {
	return &Stream[T]{
		subscribers: make(map[string]*subscriber[T]),
	}
}

// Subscribe registers a channel under the given id. Events published before
// this call are not replayed. Subscribing an id that is already registered
// replaces its channel, so repeated calls are safe.
func (s *Stream[T]) Subscribe(id string, ch chan<- T) {
	if ch == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.subscribers[id] = &subscriber[T]{ch: ch}
}

// Listen is a convenience wrapper that allocates a buffered channel,
// subscribes it, and returns it with a cancel func. Cancelling twice is a
// no-op.
func (s *Stream[T]) Listen(id string, buffer int) (<-chan T, func()) {
	ch := make(chan T, buffer)
	s.Subscribe(id, ch)

	var once sync.Once
	cancel := func() {
		once.Do(func() { s.Unsubscribe(id) })
	}
	return ch, cancel
}

// Unsubscribe removes a subscriber. Unknown ids are a no-op, so the call is
// idempotent. The stream keeps no reference to the channel afterwards.
func (s *Stream[T]) Unsubscribe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscribers, id)
}

// Publish delivers v to every current subscriber. Sends never block: a full
// subscriber channel drops the event for that subscriber only.
func (s *Stream[T]) Publish(v T) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return
	}

	s.published.Add(1)

	for _, sub := range s.subscribers {
		select {
		case sub.ch <- v:
			sub.delivered.Add(1)
		default:
			sub.dropped.Add(1)
		}
	}
}

// Stats returns delivery counters for a subscriber, and whether it exists.
func (s *Stream[T]) Stats(id string) (SubscriberStats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subscribers[id]
	if !ok {
		return SubscriberStats{}, false
	}
	return SubscriberStats{
		Delivered: sub.delivered.Load(),
		Dropped:   sub.dropped.Load(),
	}, true
}

// Published returns the total number of events published to this stream.
func (s *Stream[T]) Published() uint64 {
	return s.published.Load()
}

// Close detaches all subscribers and rejects further publishes. Subscriber
// channels are not closed here: they are owned by the subscribers.
func (s *Stream[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.subscribers = nil
}
