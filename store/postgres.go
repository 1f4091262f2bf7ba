package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odvcencio/folio/autosave"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS chapters (
	id         TEXT PRIMARY KEY,
	content    TEXT NOT NULL,
	word_count INTEGER NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Postgres stores chapters in PostgreSQL.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to url, verifies the connection and applies the
// schema.
func OpenPostgres(ctx context.Context, url string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("store: postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: postgres ping: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: postgres schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close closes the pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// Save upserts the chapter.
func (p *Postgres) Save(ctx context.Context, id string, pl autosave.Payload) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO chapters (id, content, word_count, updated_at) VALUES ($1, $2, $3, now())
		ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content,
			word_count = EXCLUDED.word_count, updated_at = now()`,
		id, pl.Content, pl.WordCount)
	if err != nil {
		return fmt.Errorf("store: postgres save: %w", err)
	}
	return nil
}

// Get returns a stored chapter.
func (p *Postgres) Get(ctx context.Context, id string) (Chapter, error) {
	var c Chapter
	err := p.pool.QueryRow(ctx,
		`SELECT id, content, word_count, updated_at FROM chapters WHERE id = $1`, id).
		Scan(&c.ID, &c.Content, &c.WordCount, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Chapter{}, fmt.Errorf("store: chapter %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Chapter{}, fmt.Errorf("store: postgres get: %w", err)
	}
	return c, nil
}
