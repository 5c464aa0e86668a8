package board

import (
	"math/rand"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
)

func TestSnapshotRoundTrip(t *testing.T) {
	const w, h = 8, 5
	b := New(w, h, white)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		b.Set(rng.Intn(w), rng.Intn(h), Cell{
			Color: Color{byte(rng.Intn(256)), byte(rng.Intn(256)), byte(rng.Intn(256))},
			UID:   int32(i),
			Time:  time.Now(),
		})
	}

	comp, err := b.Snapshot(19)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		t.Fatalf("zstd reader: %v", err)
	}
	defer dec.Close()
	raw, err := dec.DecodeAll(comp, nil)
	if err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}

	if len(raw) != w*h*3 {
		t.Fatalf("decoded %d bytes, want %d", len(raw), w*h*3)
	}

	// Cells appear in lexicographic (x,y) order, 3 bytes each.
	i := 0
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			want := b.Get(x, y).Color
			got := Color{raw[i], raw[i+1], raw[i+2]}
			if got != want {
				t.Fatalf("cell (%d,%d) = %v, want %v", x, y, got, want)
			}
			i += 3
		}
	}
}

func TestSnapshotUniformBoardCompresses(t *testing.T) {
	b := New(100, 60, white)
	comp, err := b.Snapshot(19)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(comp) >= 100*60*3 {
		t.Errorf("uniform board snapshot is %d bytes, raw is %d", len(comp), 100*60*3)
	}
}
