package board

import (
	"sync"
	"time"
)

// Action is one entry of the append-only paint log. Every admitted paint
// produces exactly one Action, whether or not it changed the cell; the
// action saver drains the buffer into the paint table on its own cadence.
type Action struct {
	X, Y  int
	Color string // "#RRGGBB", uppercase
	UID   int32
	Time  time.Time
}

// ActionBuffer is the in-memory queue of accepted paints awaiting
// persistence. Append is a short critical section on the paint hot path;
// Drain atomically takes the whole queue.
type ActionBuffer struct {
	mu      sync.Mutex
	actions []Action
}

func NewActionBuffer() *ActionBuffer {
	return &ActionBuffer{}
}

// Append records an action in insertion order.
func (b *ActionBuffer) Append(a Action) {
	b.mu.Lock()
	b.actions = append(b.actions, a)
	b.mu.Unlock()
}

// Drain removes and returns all buffered actions.
func (b *ActionBuffer) Drain() []Action {
	b.mu.Lock()
	out := b.actions
	b.actions = nil
	b.mu.Unlock()
	return out
}

// Len reports the number of buffered actions.
func (b *ActionBuffer) Len() int {
	b.mu.Lock()
	n := len(b.actions)
	b.mu.Unlock()
	return n
}
