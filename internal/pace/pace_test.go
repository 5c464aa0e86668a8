package pace

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestAllowEnforcesInterval(t *testing.T) {
	tbl := NewTable(500 * time.Millisecond)
	defer tbl.Stop()

	now := time.Now()

	if !tbl.Allow(1, now) {
		t.Fatal("first paint refused")
	}
	if tbl.Allow(1, now.Add(100*time.Millisecond)) {
		t.Fatal("paint inside interval admitted")
	}
	if tbl.Allow(1, now.Add(499*time.Millisecond)) {
		t.Fatal("paint just inside interval admitted")
	}
	if !tbl.Allow(1, now.Add(600*time.Millisecond)) {
		t.Fatal("paint after interval refused")
	}
}

func TestAllowIsPerUser(t *testing.T) {
	tbl := NewTable(time.Hour)
	defer tbl.Stop()

	now := time.Now()
	for uid := int32(1); uid <= 5; uid++ {
		if !tbl.Allow(uid, now) {
			t.Fatalf("first paint by uid %d refused", uid)
		}
	}
	if tbl.Len() != 5 {
		t.Errorf("Len = %d, want 5", tbl.Len())
	}
}

func TestConcurrentPaintsSameUser(t *testing.T) {
	tbl := NewTable(time.Hour)
	defer tbl.Stop()

	now := time.Now()
	const attempts = 32

	var admitted int64
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tbl.Allow(7, now) {
				atomic.AddInt64(&admitted, 1)
			}
		}()
	}
	wg.Wait()

	if admitted != 1 {
		t.Errorf("admitted %d concurrent paints, want exactly 1", admitted)
	}
}
