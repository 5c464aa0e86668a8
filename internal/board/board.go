// Package board holds the authoritative in-memory canvas: a fixed W×H grid
// of cells, each carrying its current color, the uid of the last painter and
// the time of the last accepted paint.
//
// The grid is shared by every connection and by the durability workers, so
// cell access is guarded by a striped lock table rather than a mutex per
// cell (a million sync.Mutex values would cost ~8MB for no extra guarantee).
// Two writers to the same cell serialize on the same stripe; writers to
// different cells almost never contend (1024 stripes).
package board

import (
	"sync"
	"time"
)

// NoPainter is the uid sentinel for cells that were never painted by a user.
const NoPainter int32 = -1

// lockStripes is the size of the striped lock table. Must be a power of two.
const lockStripes = 1024

// Color is a 24-bit RGB color.
type Color [3]byte

// Cell is the state of a single canvas coordinate.
type Cell struct {
	Color Color
	UID   int32
	Time  time.Time
}

// Board is the canvas store. Every coordinate in [0,W)×[0,H) is defined at
// all times; there is no "absent" cell.
type Board struct {
	width  int
	height int
	cells  []Cell
	locks  [lockStripes]sync.Mutex
}

// New creates a board with every cell set to the fill color and uid -1.
func New(width, height int, fill Color) *Board {
	b := &Board{
		width:  width,
		height: height,
		cells:  make([]Cell, width*height),
	}
	for i := range b.cells {
		b.cells[i] = Cell{Color: fill, UID: NoPainter}
	}
	return b
}

func (b *Board) Width() int  { return b.width }
func (b *Board) Height() int { return b.height }

// index maps (x,y) to the backing slice in lexicographic (x,y) order.
// Snapshot and the board saver rely on this ordering being stable.
func (b *Board) index(x, y int) int {
	return x*b.height + y
}

func (b *Board) stripe(x, y int) *sync.Mutex {
	return &b.locks[uint(x*b.height+y)&(lockStripes-1)]
}

// Get returns the cell at (x,y). The read is atomic at cell granularity:
// it never observes a half-applied Set.
func (b *Board) Get(x, y int) Cell {
	mu := b.stripe(x, y)
	mu.Lock()
	c := b.cells[b.index(x, y)]
	mu.Unlock()
	return c
}

// Set replaces the cell at (x,y) and returns the previous value. Concurrent
// Sets on the same cell serialize; the caller compares prev.Color against
// the new color to decide whether a broadcast delta is due.
func (b *Board) Set(x, y int, c Cell) (prev Cell) {
	mu := b.stripe(x, y)
	mu.Lock()
	i := b.index(x, y)
	prev = b.cells[i]
	b.cells[i] = c
	mu.Unlock()
	return prev
}
