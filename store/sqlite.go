package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/odvcencio/folio/autosave"
)

// DefaultKeepRevisions is how many revisions a chapter keeps.
const DefaultKeepRevisions = 20

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS chapters (
	id         TEXT PRIMARY KEY,
	content    TEXT NOT NULL,
	word_count INTEGER NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS revisions (
	id         TEXT PRIMARY KEY,
	chapter_id TEXT NOT NULL REFERENCES chapters(id) ON DELETE CASCADE,
	content    TEXT NOT NULL,
	word_count INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_revisions_chapter ON revisions(chapter_id, created_at);
`

type sqliteConfig struct {
	busyTimeout int
	keep        int
	now         func() time.Time
}

// SQLiteOption customises OpenSQLite.
type SQLiteOption func(*sqliteConfig)

// WithBusyTimeout sets PRAGMA busy_timeout in milliseconds. Default: 10000.
func WithBusyTimeout(ms int) SQLiteOption { return func(c *sqliteConfig) { c.busyTimeout = ms } }

// WithKeepRevisions sets how many revisions each chapter keeps.
func WithKeepRevisions(n int) SQLiteOption { return func(c *sqliteConfig) { c.keep = n } }

// WithNow replaces the clock used for timestamps.
func WithNow(now func() time.Time) SQLiteOption { return func(c *sqliteConfig) { c.now = now } }

// SQLite stores chapters and their revisions in an SQLite database.
type SQLite struct {
	db   *sql.DB
	keep int
	now  func() time.Time
}

// OpenSQLite opens (or creates) the database at path, applies pragmas and
// the schema. Use ":memory:" for a private in-memory database.
func OpenSQLite(path string, opts ...SQLiteOption) (*SQLite, error) {
	cfg := sqliteConfig{busyTimeout: 10_000, keep: DefaultKeepRevisions, now: time.Now}
	for _, o := range opts {
		o(&cfg)
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	if path == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.busyTimeout),
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", p, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: exec schema: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return &SQLite{db: db, keep: cfg.keep, now: cfg.now}, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Save upserts the chapter and appends a revision, trimming old ones.
func (s *SQLite) Save(ctx context.Context, id string, p autosave.Payload) error {
	now := s.now().UTC()
	return runTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO chapters (id, content, word_count, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET content = excluded.content,
				word_count = excluded.word_count, updated_at = excluded.updated_at`,
			id, p.Content, p.WordCount, now.UnixNano()); err != nil {
			return fmt.Errorf("store: upsert chapter: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO revisions (id, chapter_id, content, word_count, created_at) VALUES (?, ?, ?, ?, ?)`,
			uuid.NewString(), id, p.Content, p.WordCount, now.UnixNano()); err != nil {
			return fmt.Errorf("store: insert revision: %w", err)
		}
		if s.keep > 0 {
			if _, err := tx.ExecContext(ctx, `
				DELETE FROM revisions WHERE chapter_id = ? AND id NOT IN (
					SELECT id FROM revisions WHERE chapter_id = ?
					ORDER BY created_at DESC, rowid DESC LIMIT ?)`,
				id, id, s.keep); err != nil {
				return fmt.Errorf("store: trim revisions: %w", err)
			}
		}
		return nil
	})
}

// Get returns a stored chapter.
func (s *SQLite) Get(ctx context.Context, id string) (Chapter, error) {
	var c Chapter
	var updated int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, content, word_count, updated_at FROM chapters WHERE id = ?`, id).
		Scan(&c.ID, &c.Content, &c.WordCount, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Chapter{}, fmt.Errorf("store: chapter %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Chapter{}, fmt.Errorf("store: get chapter: %w", err)
	}
	c.UpdatedAt = time.Unix(0, updated).UTC()
	return c, nil
}

// Revisions lists a chapter's revisions, newest first.
func (s *SQLite) Revisions(ctx context.Context, id string) ([]Revision, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chapter_id, content, word_count, created_at FROM revisions
		WHERE chapter_id = ? ORDER BY created_at DESC, rowid DESC`, id)
	if err != nil {
		return nil, fmt.Errorf("store: list revisions: %w", err)
	}
	defer rows.Close()
	var out []Revision
	for rows.Next() {
		var r Revision
		var created int64
		if err := rows.Scan(&r.ID, &r.ChapterID, &r.Content, &r.WordCount, &created); err != nil {
			return nil, fmt.Errorf("store: scan revision: %w", err)
		}
		r.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

const maxRetries = 3

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// runTx runs fn in a transaction, retrying when SQLite reports BUSY.
func runTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	for i := range maxRetries {
		err := runOnce(ctx, db, fn)
		if err == nil {
			return nil
		}
		if !isBusy(err) || i == maxRetries-1 {
			return err
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("store: context cancelled during retry: %w", ctx.Err())
		case <-time.After(time.Duration(100*(i+1)) * time.Millisecond):
		}
	}
	return fmt.Errorf("store: runTx: max retries exceeded")
}

func runOnce(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}
