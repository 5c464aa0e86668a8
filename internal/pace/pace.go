// Package pace enforces the per-user paint interval. Each uid gets a token
// bucket refilling at one paint per MIN_INTERVAL with burst 1, so two
// concurrent paints from the same user (even over different connections)
// can never both be admitted inside the interval: rate.Limiter linearizes
// its own reservations.
package pace

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	cleanupEvery = time.Minute
	entryTTL     = 5 * time.Minute
)

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Table maps uid → paint limiter. Entries untouched for entryTTL are pruned
// by a background sweep; absence simply means "no recent paint", so pruning
// never admits a paint that the retained entry would have refused (the
// bucket is full again well before the TTL elapses).
type Table struct {
	mu       sync.Mutex
	users    map[int32]*entry
	interval time.Duration

	stop     chan struct{}
	stopOnce sync.Once
}

// NewTable creates a pace table and starts its cleanup sweep.
func NewTable(interval time.Duration) *Table {
	t := &Table{
		users:    make(map[int32]*entry),
		interval: interval,
		stop:     make(chan struct{}),
	}
	go t.cleanupLoop()
	return t
}

// Allow reports whether a paint by uid at time now is admitted, and if so
// marks the time. A first paint is always admitted.
func (t *Table) Allow(uid int32, now time.Time) bool {
	t.mu.Lock()
	e, ok := t.users[uid]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(rate.Every(t.interval), 1)}
		t.users[uid] = e
	}
	e.lastSeen = now
	t.mu.Unlock()

	return e.limiter.AllowN(now, 1)
}

// Len reports the number of tracked users.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.users)
}

// Stop terminates the cleanup sweep.
func (t *Table) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
}

func (t *Table) cleanupLoop() {
	ticker := time.NewTicker(cleanupEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-entryTTL)
			t.mu.Lock()
			for uid, e := range t.users {
				if e.lastSeen.Before(cutoff) {
					delete(t.users, uid)
				}
			}
			t.mu.Unlock()
		case <-t.stop:
			return
		}
	}
}
