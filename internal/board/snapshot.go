package board

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Snapshot serializes the whole canvas as a zstd-compressed stream of raw
// RGB triples in lexicographic (x,y) order. level is a standard zstd level
// (0..22); the on-demand reference level is 19.
//
// No global lock is taken: each cell read is atomic, but the snapshot may
// interleave with concurrent writers. A client that painted while the
// snapshot was being built will see the newer color again as a delta.
func (b *Board) Snapshot(level int) ([]byte, error) {
	raw := make([]byte, 0, b.width*b.height*3)
	for x := 0; x < b.width; x++ {
		for y := 0; y < b.height; y++ {
			c := b.Get(x, y)
			raw = append(raw, c.Color[0], c.Color[1], c.Color[2])
		}
	}

	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	defer enc.Close()

	return enc.EncodeAll(raw, nil), nil
}
