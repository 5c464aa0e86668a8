package board

import (
	"encoding/binary"
	"fmt"
)

// Pixel is a broadcast delta: the coordinate and new color of a cell whose
// color just changed. It is also the unit of the 7-byte wire record used by
// Paint (inbound) and PaintBatch (outbound) frames:
//
//	x_lo x_hi y_lo y_hi r g b
//
// with little-endian u16 coordinates.
type Pixel struct {
	X, Y  uint16
	Color Color
}

// PixelBytes is the wire size of one pixel record.
const PixelBytes = 7

// AppendBytes appends the 7-byte wire record to dst.
func (p Pixel) AppendBytes(dst []byte) []byte {
	var rec [PixelBytes]byte
	binary.LittleEndian.PutUint16(rec[0:2], p.X)
	binary.LittleEndian.PutUint16(rec[2:4], p.Y)
	rec[4], rec[5], rec[6] = p.Color[0], p.Color[1], p.Color[2]
	return append(dst, rec[:]...)
}

// DecodePixel parses a 7-byte pixel record. Coordinates are not range
// checked here; the connection validates them against the board dimensions.
func DecodePixel(rec []byte) (Pixel, error) {
	if len(rec) != PixelBytes {
		return Pixel{}, fmt.Errorf("pixel record must be %d bytes, got %d", PixelBytes, len(rec))
	}
	return Pixel{
		X:     binary.LittleEndian.Uint16(rec[0:2]),
		Y:     binary.LittleEndian.Uint16(rec[2:4]),
		Color: Color{rec[4], rec[5], rec[6]},
	}, nil
}

// ColorToHex formats a color as uppercase "#RRGGBB", the representation
// persisted in the board and paint tables.
func ColorToHex(c Color) string {
	return fmt.Sprintf("#%02X%02X%02X", c[0], c[1], c[2])
}

// HexToColor parses "#RRGGBB" (case-insensitive) back into a Color.
func HexToColor(s string) (Color, error) {
	var c Color
	if len(s) != 7 || s[0] != '#' {
		return c, fmt.Errorf("invalid hex color %q", s)
	}
	for i := 0; i < 3; i++ {
		hi, ok1 := hexNibble(s[1+2*i])
		lo, ok2 := hexNibble(s[2+2*i])
		if !ok1 || !ok2 {
			return c, fmt.Errorf("invalid hex color %q", s)
		}
		c[i] = hi<<4 | lo
	}
	return c, nil
}

func hexNibble(b byte) (byte, bool) {
	switch {
	case b >= '0' && b <= '9':
		return b - '0', true
	case b >= 'a' && b <= 'f':
		return b - 'a' + 10, true
	case b >= 'A' && b <= 'F':
		return b - 'A' + 10, true
	}
	return 0, false
}
