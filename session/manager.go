package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/odvcencio/folio/prose"
	"github.com/odvcencio/folio/store"
)

// Loader reads stored chapters.
type Loader interface {
	Get(ctx context.Context, id string) (store.Chapter, error)
}

// Manager tracks open sessions by chapter id. Opening a chapter that is
// already open returns the existing session and bumps its reference count;
// the session closes when the last holder releases it. A chapter that is
// still loading or still flushing its last save keeps its slot, and Open
// waits for it so a reopen never reads text older than the final save.
type Manager struct {
	loader Loader
	format string
	svc    Services
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*entry
}

type entry struct {
	s    *Session
	refs int
	// busy is non-nil while the chapter is loading or closing and is
	// closed when that finishes.
	busy chan struct{}
}

func (e *entry) ready() bool { return e.busy == nil && e.s != nil }

// NewManager creates a Manager. format is the serialization of stored
// chapters; loader may be nil, in which case chapters open empty.
func NewManager(loader Loader, format string, svc Services, cfg Config) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if !prose.KnownFormat(format) {
		format = prose.FormatText
	}
	return &Manager{
		loader:   loader,
		format:   format,
		svc:      svc,
		cfg:      cfg,
		logger:   cfg.Logger,
		sessions: make(map[string]*entry),
	}
}

// Open returns the session for a chapter, loading it if needed.
func (m *Manager) Open(ctx context.Context, chapterID string) (*Session, error) {
	if chapterID == "" {
		return nil, errors.New("session: empty chapter id")
	}
	for {
		m.mu.Lock()
		e, ok := m.sessions[chapterID]
		if ok && e.busy != nil {
			busy := e.busy
			m.mu.Unlock()
			select {
			case <-busy:
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if ok {
			e.refs++
			m.mu.Unlock()
			return e.s, nil
		}
		e = &entry{busy: make(chan struct{})}
		m.sessions[chapterID] = e
		m.mu.Unlock()
		return m.load(ctx, chapterID, e)
	}
}

// load fills a reserved entry. Concurrent openers wait on e.busy.
func (m *Manager) load(ctx context.Context, chapterID string, e *entry) (*Session, error) {
	text, err := m.read(ctx, chapterID)

	m.mu.Lock()
	busy := e.busy
	e.busy = nil
	if err != nil {
		delete(m.sessions, chapterID)
	} else {
		e.s = Open(chapterID, m.format, text, m.svc, m.cfg)
		e.refs = 1
	}
	m.mu.Unlock()
	close(busy)
	if err != nil {
		return nil, err
	}
	m.logger.Info("session: opened", "chapter", chapterID)
	return e.s, nil
}

func (m *Manager) read(ctx context.Context, chapterID string) (string, error) {
	if m.loader == nil {
		return "", nil
	}
	ch, err := m.loader.Get(ctx, chapterID)
	switch {
	case err == nil:
		return ch.Content, nil
	case errors.Is(err, store.ErrNotFound):
		return "", nil
	default:
		return "", fmt.Errorf("session: load %s: %w", chapterID, err)
	}
}

// Get returns an open session without changing its reference count.
func (m *Manager) Get(chapterID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[chapterID]
	if !ok || !e.ready() {
		return nil, false
	}
	return e.s, true
}

// Count returns the number of open sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.sessions {
		if e.ready() {
			n++
		}
	}
	return n
}

// IDs returns the open chapter ids in sorted order.
func (m *Manager) IDs() []string {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id, e := range m.sessions {
		if e.ready() {
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// Release drops one reference and closes the session when none remain.
// Releasing an unknown or closing chapter is a no-op.
func (m *Manager) Release(ctx context.Context, chapterID string) error {
	m.mu.Lock()
	e, ok := m.sessions[chapterID]
	if !ok || !e.ready() {
		m.mu.Unlock()
		return nil
	}
	e.refs--
	if e.refs > 0 {
		m.mu.Unlock()
		return nil
	}
	e.busy = make(chan struct{})
	m.mu.Unlock()
	return m.close(ctx, chapterID, e)
}

// close flushes the session, then frees its slot and wakes waiting openers.
func (m *Manager) close(ctx context.Context, chapterID string, e *entry) error {
	err := e.s.Close(ctx)
	m.mu.Lock()
	if m.sessions[chapterID] == e {
		delete(m.sessions, chapterID)
	}
	busy := e.busy
	m.mu.Unlock()
	close(busy)
	m.logger.Info("session: closed", "chapter", chapterID)
	return err
}

// CloseAll closes every open session regardless of references.
func (m *Manager) CloseAll(ctx context.Context) error {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	all := make([]*entry, 0, len(m.sessions))
	for id, e := range m.sessions {
		if e.ready() {
			e.busy = make(chan struct{})
			ids = append(ids, id)
			all = append(all, e)
		}
	}
	m.mu.Unlock()

	var errs []error
	for i, e := range all {
		if err := m.close(ctx, ids[i], e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
