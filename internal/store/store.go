// Package store persists the canvas and the paint log to SQLite through
// database/sql. The live serving plane never reads it after bootstrap; the
// two savers write to it on their own cadence, so a database outage only
// degrades durability.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"paintboard/internal/board"
)

const defaultTimeout = 30 * time.Second

const schema = `
CREATE TABLE IF NOT EXISTS board (
  x     INTEGER NOT NULL,
  y     INTEGER NOT NULL,
  color TEXT    NOT NULL,
  uid   INTEGER NOT NULL,
  time  TIMESTAMP NOT NULL,
  PRIMARY KEY (x, y)
);
CREATE TABLE IF NOT EXISTS paint (
  id    INTEGER PRIMARY KEY AUTOINCREMENT,
  x     INTEGER NOT NULL,
  y     INTEGER NOT NULL,
  color TEXT    NOT NULL,
  uid   INTEGER NOT NULL,
  time  TIMESTAMP NOT NULL
);
`

// CellRow is one persisted cell of the board table.
type CellRow struct {
	X, Y  int
	Color string
	UID   int32
	Time  time.Time
}

// Store wraps the SQLite handle shared by both savers.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens (creating if necessary) the database at dsn and ensures the
// schema exists. SQLite allows a single writer, so the pool is capped at
// one connection; this also makes ":memory:" behave as one database.
func Open(dsn string, logger zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", dsn, err)
	}
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database %q: %w", dsn, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return &Store{
		db:     db,
		logger: logger.With().Str("component", "store").Logger(),
	}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// LoadBoard reads every persisted cell. Coordinates outside the configured
// grid (a board that shrank between runs) are the caller's problem to skip.
func (s *Store) LoadBoard(ctx context.Context) ([]CellRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT x, y, color, uid, time FROM board`)
	if err != nil {
		return nil, fmt.Errorf("load board: %w", err)
	}
	defer rows.Close()

	var out []CellRow
	for rows.Next() {
		var r CellRow
		if err := rows.Scan(&r.X, &r.Y, &r.Color, &r.UID, &r.Time); err != nil {
			return nil, fmt.Errorf("scan board row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load board: %w", err)
	}
	return out, nil
}

// UpsertCells writes one batch of changed cells, keyed by (x,y), in a
// single transaction. Callers chunk; a batch either fully applies or not
// at all.
func (s *Store) UpsertCells(ctx context.Context, cells []CellRow) error {
	if len(cells) == 0 {
		return nil
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultTimeout)
		defer cancel()
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO board (x, y, color, uid, time) VALUES `)
	args := make([]any, 0, len(cells)*5)
	for i, c := range cells {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?, ?, ?)")
		args = append(args, c.X, c.Y, c.Color, c.UID, c.Time)
	}
	sb.WriteString(` ON CONFLICT (x, y) DO UPDATE SET
		color = excluded.color, uid = excluded.uid, time = excluded.time`)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
		tx.Rollback()
		return fmt.Errorf("upsert %d cells: %w", len(cells), err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

// InsertActions appends one batch of paint actions in a single transaction.
func (s *Store) InsertActions(ctx context.Context, actions []board.Action) error {
	if len(actions) == 0 {
		return nil
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultTimeout)
		defer cancel()
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO paint (x, y, color, uid, time) VALUES `)
	args := make([]any, 0, len(actions)*5)
	for i, a := range actions {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?, ?, ?)")
		args = append(args, a.X, a.Y, a.Color, a.UID, a.Time)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
		tx.Rollback()
		return fmt.Errorf("insert %d actions: %w", len(actions), err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert: %w", err)
	}
	return nil
}

// CountActions reports the number of persisted paint actions.
func (s *Store) CountActions(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM paint`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count actions: %w", err)
	}
	return n, nil
}
