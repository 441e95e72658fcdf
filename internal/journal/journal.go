// Package journal persists dispatched actions to SQLite so store state can
// be rebuilt on startup by replaying them through the reducers.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"ex-calypso/pkg/calypso"
)

// MemoryPath opens a private in-memory journal.
const MemoryPath = ":memory:"

const defaultBusyTimeout = 10 * time.Second

const schema = `
CREATE TABLE IF NOT EXISTS actions (
	seq           INTEGER PRIMARY KEY AUTOINCREMENT,
	id            TEXT    NOT NULL UNIQUE,
	kind          TEXT    NOT NULL,
	site_id       INTEGER NOT NULL DEFAULT 0,
	dispatched_at TEXT    NOT NULL,
	payload       BLOB    NOT NULL
);
CREATE INDEX IF NOT EXISTS actions_kind ON actions(kind);
`

// ErrClosed is returned by operations on a closed journal.
var ErrClosed = errors.New("journal: closed")

// Option mutates journal configuration.
type Option func(*Journal)

// WithLogger sets the journal logger.
func WithLogger(logger *slog.Logger) Option {
	return func(journal *Journal) {
		if logger != nil {
			journal.logger = logger
		}
	}
}

// WithKinds restricts appends to the listed action kinds.
func WithKinds(kinds ...calypso.ActionKind) Option {
	return func(journal *Journal) {
		journal.kinds = calypso.InterestSet{Kinds: append([]calypso.ActionKind(nil), kinds...)}
	}
}

// Journal is an append-only action log.
type Journal struct {
	db     *sql.DB
	logger *slog.Logger
	kinds  calypso.InterestSet
	closed atomic.Bool
}

// Open opens or creates the journal database at path.
func Open(ctx context.Context, path string, options ...Option) (*Journal, error) {
	if path == "" {
		return nil, fmt.Errorf("journal: empty path")
	}
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("journal: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	if path == MemoryPath {
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", defaultBusyTimeout.Milliseconds()),
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range append(pragmas, schema) {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("journal: init %s: %w", path, err)
		}
	}

	journal := &Journal{
		db:     db,
		logger: slog.Default(),
	}
	for _, option := range options {
		option(journal)
	}

	return journal, nil
}

// Append records one reduced action. Its signature matches the kernel
// dispatch observer so the journal can be wired directly.
func (j *Journal) Append(ctx context.Context, action *calypso.Action) error {
	if action == nil {
		return fmt.Errorf("journal append: %w", calypso.ErrInvalidAction)
	}
	if j.closed.Load() {
		return ErrClosed
	}
	if !j.kinds.Matches(action) {
		return nil
	}

	payload, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("journal append %s: encode: %w", action.ID, err)
	}

	_, err = j.db.ExecContext(ctx,
		`INSERT INTO actions (id, kind, site_id, dispatched_at, payload) VALUES (?, ?, ?, ?, ?)`,
		action.ID,
		string(action.Kind),
		action.SiteID,
		action.DispatchedAt.UTC().Format(time.RFC3339Nano),
		payload,
	)
	if err != nil {
		return fmt.Errorf("journal append %s: %w", action.ID, err)
	}

	return nil
}

// Load returns every recorded action in append order.
func (j *Journal) Load(ctx context.Context) ([]*calypso.Action, error) {
	if j.closed.Load() {
		return nil, ErrClosed
	}
	rows, err := j.db.QueryContext(ctx, `SELECT id, payload FROM actions ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("journal load: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	actions := make([]*calypso.Action, 0)
	for rows.Next() {
		var (
			id      string
			payload []byte
		)
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("journal load: scan: %w", err)
		}

		action := &calypso.Action{}
		if err := json.Unmarshal(payload, action); err != nil {
			return nil, fmt.Errorf("journal load %s: decode: %w", id, err)
		}
		actions = append(actions, action)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal load: %w", err)
	}

	return actions, nil
}

// Restorer folds recorded actions back into store state.
type Restorer interface {
	Restore(ctx context.Context, actions []*calypso.Action) error
}

// Replay loads the journal and restores it into target.
func (j *Journal) Replay(ctx context.Context, target Restorer) (int, error) {
	actions, err := j.Load(ctx)
	if err != nil {
		return 0, err
	}
	if len(actions) == 0 {
		return 0, nil
	}

	if err := target.Restore(ctx, actions); err != nil {
		return 0, fmt.Errorf("journal replay: %w", err)
	}
	j.logger.InfoContext(ctx, "journal replayed", "actions", len(actions))

	return len(actions), nil
}

// Len returns the number of recorded actions.
func (j *Journal) Len(ctx context.Context) (int, error) {
	if j.closed.Load() {
		return 0, ErrClosed
	}
	var count int
	if err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM actions`).Scan(&count); err != nil {
		return 0, fmt.Errorf("journal len: %w", err)
	}

	return count, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	if !j.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := j.db.Close(); err != nil {
		return fmt.Errorf("journal close: %w", err)
	}

	return nil
}
