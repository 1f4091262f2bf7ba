package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/odvcencio/folio/autosave"
)

var (
	_ autosave.Persister = (*SQLite)(nil)
	_ autosave.Persister = (*Postgres)(nil)
	_ autosave.Cache     = (*BoltCache)(nil)
	_ autosave.Cache     = (*RedisCache)(nil)
)

func openMemory(t *testing.T, opts ...SQLiteOption) *SQLite {
	t.Helper()
	s, err := OpenSQLite(":memory:", opts...)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteSaveAndGet(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	if _, err := s.Get(ctx, "ch-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get missing = %v, want ErrNotFound", err)
	}
	if err := s.Save(ctx, "ch-1", autosave.Payload{Content: "era uma vez", WordCount: 3}); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx, "ch-1", autosave.Payload{Content: "era uma vez um rei", WordCount: 5}); err != nil {
		t.Fatal(err)
	}
	c, err := s.Get(ctx, "ch-1")
	if err != nil {
		t.Fatal(err)
	}
	if c.Content != "era uma vez um rei" || c.WordCount != 5 || c.UpdatedAt.IsZero() {
		t.Fatalf("chapter = %+v", c)
	}
}

func TestSQLiteKeepsLastRevisions(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	n := 0
	s := openMemory(t, WithKeepRevisions(3), WithNow(func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}))
	ctx := context.Background()
	for _, text := range []string{"v1", "v2", "v3", "v4", "v5"} {
		if err := s.Save(ctx, "ch-1", autosave.Payload{Content: text, WordCount: 1}); err != nil {
			t.Fatal(err)
		}
	}
	s.Save(ctx, "ch-2", autosave.Payload{Content: "other", WordCount: 1})

	revs, err := s.Revisions(ctx, "ch-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(revs) != 3 {
		t.Fatalf("revisions = %d, want 3", len(revs))
	}
	for i, want := range []string{"v5", "v4", "v3"} {
		if revs[i].Content != want || revs[i].ChapterID != "ch-1" || revs[i].ID == "" {
			t.Errorf("revision %d = %+v, want %s", i, revs[i], want)
		}
	}
	if other, _ := s.Revisions(ctx, "ch-2"); len(other) != 1 {
		t.Fatalf("ch-2 revisions = %d", len(other))
	}
}

func TestSQLiteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "folio.db")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := s.Save(ctx, "ch-1", autosave.Payload{Content: "persisted"}); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if c, err := s.Get(ctx, "ch-1"); err != nil || c.Content != "persisted" {
		t.Fatalf("reopened = %+v, %v", c, err)
	}
}

func TestBoltCache(t *testing.T) {
	c, err := OpenBoltCache(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	ctx := context.Background()

	if _, ok, err := c.Get(ctx, "doc-1"); ok || err != nil {
		t.Fatalf("Get missing = %v, %v", ok, err)
	}
	if err := c.Set(ctx, "doc-1", "hello world"); err != nil {
		t.Fatal(err)
	}
	if v, ok, _ := c.Get(ctx, "doc-1"); !ok || v != "hello world" {
		t.Fatalf("Get = %q, %v", v, ok)
	}
	if keys, _ := c.Keys(ctx); len(keys) != 1 || keys[0] != "doc-1" {
		t.Fatalf("Keys = %v", keys)
	}
	if err := c.Remove(ctx, "doc-1"); err != nil {
		t.Fatal(err)
	}
	if err := c.Remove(ctx, "doc-1"); err != nil {
		t.Fatalf("removing twice: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "doc-1"); ok {
		t.Fatal("entry survived Remove")
	}
}

func TestRedisCache(t *testing.T) {
	addr := os.Getenv("FOLIO_TEST_REDIS")
	if addr == "" {
		t.Skip("FOLIO_TEST_REDIS not set")
	}
	ctx := context.Background()
	c, err := OpenRedisCache(ctx, addr, "folio-test:", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if err := c.Set(ctx, "doc-1", "hello world"); err != nil {
		t.Fatal(err)
	}
	if v, ok, err := c.Get(ctx, "doc-1"); err != nil || !ok || v != "hello world" {
		t.Fatalf("Get = %q, %v, %v", v, ok, err)
	}
	if err := c.Remove(ctx, "doc-1"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := c.Get(ctx, "doc-1"); ok {
		t.Fatal("entry survived Remove")
	}
}

func TestPostgres(t *testing.T) {
	url := os.Getenv("FOLIO_TEST_POSTGRES")
	if url == "" {
		t.Skip("FOLIO_TEST_POSTGRES not set")
	}
	ctx := context.Background()
	p, err := OpenPostgres(ctx, url)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	id := "test-" + time.Now().Format("150405.000000")
	if err := p.Save(ctx, id, autosave.Payload{Content: "olá", WordCount: 1}); err != nil {
		t.Fatal(err)
	}
	if c, err := p.Get(ctx, id); err != nil || c.Content != "olá" {
		t.Fatalf("Get = %+v, %v", c, err)
	}
	if _, err := p.Get(ctx, id+"-missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing = %v", err)
	}
}
