// Package broadcast implements a small bounded-capacity fan-out channel
// modeled on the "one slow subscriber does not block others, but may
// observe a lag" broadcast channel described in spec.md §5. Go has no
// built-in equivalent of Rust's tokio::sync::broadcast, so each subscriber
// gets its own buffered channel; a full buffer causes the new value to be
// dropped for that subscriber and a lag counter to accumulate, delivered
// alongside the next value that does fit.
//
// Grounded on the teacher's websocket.Broadcaster
// (internal/server/websocket/broadcaster.go): per-subscriber buffered
// channel, non-blocking send, drop counter on a full buffer.
package broadcast

import "sync"

// Envelope wraps a published value with the number of prior values that
// were dropped for this subscriber because its buffer was full (i.e. how
// far it lagged behind before this delivery).
type Envelope[T any] struct {
	Value  T
	Lagged int
}

type subscriber[T any] struct {
	ch      chan Envelope[T]
	lagged  int
}

// Broadcaster fans values out to zero or more subscribers. It is safe for
// concurrent use; Publish never blocks regardless of subscriber behavior.
type Broadcaster[T any] struct {
	mu      sync.Mutex
	subs    map[*subscriber[T]]struct{}
	bufSize int
}

// New creates a Broadcaster whose per-subscriber channels have capacity
// bufSize (spec.md §5 specifies 10 for the poller → subscribers channel).
func New[T any](bufSize int) *Broadcaster[T] {
	if bufSize <= 0 {
		bufSize = 10
	}
	return &Broadcaster[T]{
		subs:    make(map[*subscriber[T]]struct{}),
		bufSize: bufSize,
	}
}

// Subscription is a receive-only handle returned by Subscribe. Call
// Unsubscribe when the consumer stops reading to release the slot.
type Subscription[T any] struct {
	b   *Broadcaster[T]
	sub *subscriber[T]
}

// C returns the channel to receive envelopes on.
func (s *Subscription[T]) C() <-chan Envelope[T] { return s.sub.ch }

// Unsubscribe removes this subscription from the broadcaster and closes its
// channel.
func (s *Subscription[T]) Unsubscribe() {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if _, ok := s.b.subs[s.sub]; ok {
		delete(s.b.subs, s.sub)
		close(s.sub.ch)
	}
}

// Subscribe registers a new subscriber and returns a handle to receive
// published values.
func (b *Broadcaster[T]) Subscribe() *Subscription[T] {
	sub := &subscriber[T]{ch: make(chan Envelope[T], b.bufSize)}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return &Subscription[T]{b: b, sub: sub}
}

// Publish delivers v to every current subscriber. A subscriber whose buffer
// is full does not receive v; instead its lag counter is incremented so the
// next value it does receive carries the accumulated Lagged count.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subs {
		env := Envelope[T]{Value: v, Lagged: sub.lagged}
		select {
		case sub.ch <- env:
			sub.lagged = 0
		default:
			sub.lagged++
		}
	}
}

// Close closes every current subscriber's channel and removes them from the
// broadcaster. Further Publish calls are no-ops for those subscribers.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		close(sub.ch)
		delete(b.subs, sub)
	}
}
