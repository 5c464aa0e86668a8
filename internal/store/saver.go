package store

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"paintboard/internal/board"
	"paintboard/internal/monitoring"
)

// BoardSaver periodically reconciles the in-memory canvas with the board
// table. It keeps a private shadow of the last successfully persisted state
// and upserts only the cells that changed since; a failed chunk leaves its
// shadow entries untouched so those cells are retried on the next tick.
type BoardSaver struct {
	board  *board.Board
	store  *Store
	shadow []board.Cell
	period time.Duration
	chunk  int
	logger zerolog.Logger
}

// NewBoardSaver creates a saver whose shadow starts as a copy of the
// current canvas (which bootstrap has already populated from the store, so
// the first tick only writes cells painted since startup).
func NewBoardSaver(b *board.Board, st *Store, period time.Duration, chunk int, logger zerolog.Logger) *BoardSaver {
	shadow := make([]board.Cell, b.Width()*b.Height())
	i := 0
	for x := 0; x < b.Width(); x++ {
		for y := 0; y < b.Height(); y++ {
			shadow[i] = b.Get(x, y)
			i++
		}
	}
	return &BoardSaver{
		board:  b,
		store:  st,
		shadow: shadow,
		period: period,
		chunk:  chunk,
		logger: logger.With().Str("component", "board_saver").Logger(),
	}
}

// Run flushes on every period tick until ctx is cancelled, then makes one
// final opportunistic flush.
func (s *BoardSaver) Run(ctx context.Context) {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Flush(ctx)
		case <-ctx.Done():
			s.Flush(context.Background())
			return
		}
	}
}

// changedCell pairs a dirty cell with its shadow slot.
type changedCell struct {
	idx  int
	cell board.Cell
	row  CellRow
}

// Flush walks the canvas once, upserts changed cells in chunks and returns
// the number of rows successfully written.
func (s *BoardSaver) Flush(ctx context.Context) int {
	var changed []changedCell
	i := 0
	for x := 0; x < s.board.Width(); x++ {
		for y := 0; y < s.board.Height(); y++ {
			cur := s.board.Get(x, y)
			old := s.shadow[i]
			if cur.Color != old.Color || cur.UID != old.UID || !cur.Time.Equal(old.Time) {
				changed = append(changed, changedCell{
					idx:  i,
					cell: cur,
					row: CellRow{
						X: x, Y: y,
						Color: board.ColorToHex(cur.Color),
						UID:   cur.UID,
						Time:  cur.Time,
					},
				})
			}
			i++
		}
	}

	if len(changed) == 0 {
		s.logger.Debug().Msg("Board unchanged, nothing to save")
		return 0
	}

	start := time.Now()
	saved := 0
	for off := 0; off < len(changed); off += s.chunk {
		end := off + s.chunk
		if end > len(changed) {
			end = len(changed)
		}
		batch := changed[off:end]

		rows := make([]CellRow, len(batch))
		for j, c := range batch {
			rows[j] = c.row
		}

		if err := s.store.UpsertCells(ctx, rows); err != nil {
			// Shadow stays stale for this chunk; retried next period.
			monitoring.BoardFlushFailures.Inc()
			s.logger.Error().Err(err).
				Int("rows", len(rows)).
				Msg("Board chunk upsert failed")
			continue
		}
		for _, c := range batch {
			s.shadow[c.idx] = c.cell
		}
		saved += len(batch)
	}

	monitoring.BoardFlushRows.Add(float64(saved))
	s.logger.Info().
		Int("changed", len(changed)).
		Int("saved", saved).
		Dur("elapsed", time.Since(start)).
		Msg("Board flush complete")
	return saved
}

// ActionSaver periodically drains the action buffer into the paint table.
// The action log is best-effort: a failed batch is logged and dropped, the
// canvas remains the source of truth.
type ActionSaver struct {
	buf    *board.ActionBuffer
	store  *Store
	period time.Duration
	chunk  int
	logger zerolog.Logger
}

func NewActionSaver(buf *board.ActionBuffer, st *Store, period time.Duration, chunk int, logger zerolog.Logger) *ActionSaver {
	return &ActionSaver{
		buf:    buf,
		store:  st,
		period: period,
		chunk:  chunk,
		logger: logger.With().Str("component", "action_saver").Logger(),
	}
}

// Run drains on every period tick until ctx is cancelled, then makes one
// final opportunistic drain.
func (s *ActionSaver) Run(ctx context.Context) {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Flush(ctx)
		case <-ctx.Done():
			s.Flush(context.Background())
			return
		}
	}
}

// Flush drains the buffer and inserts it in chunks, returning the number
// of actions successfully persisted.
func (s *ActionSaver) Flush(ctx context.Context) int {
	actions := s.buf.Drain()
	if len(actions) == 0 {
		return 0
	}

	saved := 0
	for off := 0; off < len(actions); off += s.chunk {
		end := off + s.chunk
		if end > len(actions) {
			end = len(actions)
		}
		batch := actions[off:end]

		if err := s.store.InsertActions(ctx, batch); err != nil {
			monitoring.ActionsDropped.Add(float64(len(batch)))
			s.logger.Error().Err(err).
				Int("actions", len(batch)).
				Msg("Action batch insert failed, dropping")
			continue
		}
		saved += len(batch)
	}

	monitoring.ActionsFlushed.Add(float64(saved))
	s.logger.Info().
		Int("drained", len(actions)).
		Int("saved", saved).
		Msg("Action flush complete")
	return saved
}
