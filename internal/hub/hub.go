// Package hub fans accepted paint deltas out to every live connection.
//
// Delivery is at-most-once and best-effort: each subscriber owns a bounded
// channel, and a publisher never blocks on a slow subscriber. When a
// subscriber's buffer is full the oldest delta is discarded to make room
// (the stream skips forward), which is non-fatal: the canvas and action
// log were already updated before publish, and the client recovers full
// state from its next snapshot.
package hub

import (
	"sync"
	"sync/atomic"

	"paintboard/internal/board"
)

// Subscriber is one consumer endpoint. Its lifetime matches the owning
// connection; the connection reads deltas from C.
type Subscriber struct {
	// C delivers deltas in publish order, modulo skipped entries.
	C chan board.Pixel

	lagged int64
}

// Lagged reports how many deltas were discarded because this subscriber's
// buffer was full.
func (s *Subscriber) Lagged() int64 {
	return atomic.LoadInt64(&s.lagged)
}

// Hub is the single shared publisher endpoint.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*Subscriber]struct{}
	buffer int

	published int64
	dropped   int64
}

// New creates a hub whose subscribers buffer up to buffer deltas each.
func New(buffer int) *Hub {
	return &Hub{
		subs:   make(map[*Subscriber]struct{}),
		buffer: buffer,
	}
}

// Subscribe registers a new consumer that sees every delta published from
// this moment on.
func (h *Hub) Subscribe() *Subscriber {
	s := &Subscriber{C: make(chan board.Pixel, h.buffer)}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s
}

// Unsubscribe releases a consumer. Safe to call once per subscriber;
// deltas published afterwards are no longer delivered to it.
func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
}

// Publish delivers p to every current subscriber without ever blocking.
// On a full buffer it drops the subscriber's oldest pending delta and
// retries once; if the buffer is still full (a racing reader refilled it)
// the new delta is dropped instead.
func (h *Hub) Publish(p board.Pixel) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	atomic.AddInt64(&h.published, 1)

	for s := range h.subs {
		select {
		case s.C <- p:
			continue
		default:
		}

		// Buffer full: skip the stream forward.
		select {
		case <-s.C:
		default:
		}
		atomic.AddInt64(&s.lagged, 1)
		atomic.AddInt64(&h.dropped, 1)

		select {
		case s.C <- p:
		default:
		}
	}
}

// Stats returns the total published and dropped delta counts.
func (h *Hub) Stats() (published, dropped int64) {
	return atomic.LoadInt64(&h.published), atomic.LoadInt64(&h.dropped)
}

// Subscribers reports the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
