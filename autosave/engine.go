package autosave

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/odvcencio/folio/clock"
	"github.com/odvcencio/folio/prose"
)

var (
	// ErrDegenerate is returned instead of saving empty or placeholder
	// content.
	ErrDegenerate = errors.New("autosave: refusing to save empty content")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("autosave: engine closed")
)

// Config tunes an Engine. Zero values take defaults.
type Config struct {
	Debounce      time.Duration // quiet period before a save, default 5s
	FlushInterval time.Duration // periodic safety flush, default 30s
	SaveTimeout   time.Duration // per persistence call, default 15s
	Logger        *slog.Logger
}

func (c *Config) defaults() {
	if c.Debounce <= 0 {
		c.Debounce = 5 * time.Second
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 30 * time.Second
	}
	if c.SaveTimeout <= 0 {
		c.SaveTimeout = 15 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Engine keeps the save state of one document.
type Engine struct {
	doc       Document
	persister Persister
	cache     Cache
	clock     clock.Clock
	cfg       Config
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	saveMu sync.Mutex // serializes persistence calls

	mu        sync.Mutex
	state     State
	focused   bool
	debounce  clock.Timer
	flush     clock.Timer
	closed    bool
	nextSub   int
	listeners []listener
}

type listener struct {
	id int
	fn func(State)
}

// New starts tracking doc, whose current content is taken as saved.
func New(doc Document, persister Persister, cache Cache, clk clock.Clock, cfg Config) *Engine {
	cfg.defaults()
	if clk == nil {
		clk = clock.Real()
	}
	ctx, cancel := context.WithCancel(context.Background())
	content := doc.Content()
	e := &Engine{
		doc:       doc,
		persister: persister,
		cache:     cache,
		clock:     clk,
		cfg:       cfg,
		logger:    cfg.Logger.With("doc", doc.ID()),
		ctx:       ctx,
		cancel:    cancel,
		state: State{
			Status:    StatusSaved,
			LastSaved: content,
			LastSeen:  content,
			WordCount: prose.WordCount(prose.Plain(content, doc.Format())),
		},
	}
	e.flush = clk.AfterFunc(cfg.FlushInterval, e.tick)
	return e
}

// State returns a snapshot of the save state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Subscribe registers fn for every state change.
func (e *Engine) Subscribe(fn func(State)) (cancel func()) {
	e.mu.Lock()
	e.nextSub++
	id := e.nextSub
	e.listeners = append(e.listeners, listener{id: id, fn: fn})
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, l := range e.listeners {
			if l.id == id {
				e.listeners = append(e.listeners[:i], e.listeners[i+1:]...)
				return
			}
		}
	}
}

// Observe records the document's current content after a mutation and
// re-arms the save debounce when it differs from what was last saved.
func (e *Engine) Observe() {
	content := e.doc.Content()
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	prev := e.state
	e.state.LastSeen = content
	e.state.Dirty = content != e.state.LastSaved
	if e.debounce != nil {
		e.debounce.Stop()
		e.debounce = nil
	}
	if e.state.Dirty {
		if e.state.Status != StatusSaving {
			e.state.Status = StatusUnsaved
		}
		e.debounce = e.clock.AfterFunc(e.cfg.Debounce, e.debounced)
	} else if e.state.Status == StatusUnsaved {
		e.state.Status = StatusSaved
	}
	changed := prev != e.state
	e.mu.Unlock()
	if changed {
		e.publish()
	}
}

// SetFocus records whether the pointer last landed inside the editor.
// Losing focus with unsaved changes saves immediately.
func (e *Engine) SetFocus(ctx context.Context, focused bool) error {
	e.mu.Lock()
	lost := e.focused && !focused
	e.focused = focused
	dirty := e.state.Dirty
	e.mu.Unlock()
	if lost && dirty {
		return e.saveWithTimeout(ctx, "blur")
	}
	return nil
}

// Focused reports the tracked focus.
func (e *Engine) Focused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.focused
}

// Save persists the document unless its content is degenerate or already
// saved. Calls are serialized; a second call with identical content does
// not reach the persister.
func (e *Engine) Save(ctx context.Context) error {
	e.saveMu.Lock()
	defer e.saveMu.Unlock()

	content := e.doc.Content()
	format := e.doc.Format()
	if Degenerate(content, format) {
		e.logger.Debug("autosave: skipped degenerate content", "bytes", len(content))
		return ErrDegenerate
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if content == e.state.LastSaved {
		resync := e.state.Dirty
		if resync {
			e.state.LastSeen = content
			e.state.Dirty = false
			if e.state.Status == StatusUnsaved {
				e.state.Status = StatusSaved
			}
		}
		e.mu.Unlock()
		if resync {
			e.publish()
		}
		return nil
	}
	if e.debounce != nil {
		e.debounce.Stop()
		e.debounce = nil
	}
	e.state.LastSeen = content
	e.state.Dirty = true
	e.state.Status = StatusSaving
	e.state.Error = ""
	e.mu.Unlock()
	e.publish()

	words := prose.WordCount(prose.Plain(content, format))
	err := e.persister.Save(ctx, e.doc.ID(), Payload{Content: content, WordCount: words})

	e.mu.Lock()
	if err != nil {
		e.state.Status = StatusError
		e.state.Error = err.Error()
	} else {
		e.state.LastSaved = content
		e.state.Dirty = e.state.LastSeen != content
		e.state.WordCount = words
		e.state.SavedAt = e.clock.Now()
		e.state.Status = StatusSaved
		if e.state.Dirty {
			e.state.Status = StatusUnsaved
		}
	}
	e.mu.Unlock()
	e.publish()

	if err != nil {
		e.logger.Warn("autosave: save failed", "error", err)
		return fmt.Errorf("autosave: save %s: %w", e.doc.ID(), err)
	}
	e.logger.Debug("autosave: saved", "words", words)
	return nil
}

// Unload handles the page closing. With unsaved changes it starts a
// best-effort save, writes the plain text to the emergency cache, and
// returns true so the browser asks the user to confirm leaving.
func (e *Engine) Unload(ctx context.Context) bool {
	e.mu.Lock()
	dirty := e.state.Dirty && !e.closed
	e.mu.Unlock()
	if !dirty {
		return false
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.saveWithTimeout(e.ctx, "unload"); err != nil && !errors.Is(err, ErrClosed) {
			e.logger.Debug("autosave: unload save incomplete", "error", err)
		}
	}()

	plain := prose.Plain(e.doc.Content(), e.doc.Format())
	if e.cache != nil {
		if err := e.cache.Set(ctx, e.doc.ID(), plain); err != nil {
			e.logger.Error("autosave: emergency cache write failed", "error", err)
		}
	}
	return true
}

// Pending returns the emergency copy for the document, if any, without
// consuming it.
func (e *Engine) Pending(ctx context.Context) (string, bool, error) {
	if e.cache == nil {
		return "", false, nil
	}
	return e.cache.Get(ctx, e.doc.ID())
}

// Recover offers the emergency copy to confirm. When accepted, the document
// text is replaced and saved at once. The copy is removed either way.
func (e *Engine) Recover(ctx context.Context, confirm func(cached string) bool) (bool, error) {
	cached, ok, err := e.Pending(ctx)
	if err != nil {
		return false, fmt.Errorf("autosave: read emergency copy: %w", err)
	}
	if !ok {
		return false, nil
	}
	defer func() {
		if err := e.cache.Remove(ctx, e.doc.ID()); err != nil {
			e.logger.Error("autosave: remove emergency copy", "error", err)
		}
	}()

	if confirm == nil || !confirm(cached) {
		e.logger.Info("autosave: emergency copy declined")
		return false, nil
	}
	e.doc.SetText(cached)
	e.Observe()
	e.logger.Info("autosave: emergency copy restored", "bytes", len(cached))
	if err := e.Save(ctx); err != nil {
		return true, err
	}
	return true, nil
}

// Close stops the timers, saves pending changes and waits for unload saves.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	if e.debounce != nil {
		e.debounce.Stop()
		e.debounce = nil
	}
	if e.flush != nil {
		e.flush.Stop()
		e.flush = nil
	}
	dirty := e.state.Dirty
	e.mu.Unlock()

	var err error
	if dirty {
		err = e.saveWithTimeout(ctx, "close")
		if errors.Is(err, ErrDegenerate) {
			err = nil
		}
	}
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.wg.Wait()
	e.cancel()
	return err
}

// Degenerate reports whether serialized content looks like an empty
// placeholder that must never overwrite a stored document.
func Degenerate(content, format string) bool {
	switch strings.TrimSpace(content) {
	case "", "{}", "[]", "null":
		return true
	}
	if format == prose.FormatJSON || format == prose.FormatHTML {
		return strings.TrimSpace(prose.Plain(content, format)) == ""
	}
	return false
}

func (e *Engine) debounced() {
	e.mu.Lock()
	e.debounce = nil
	run := e.focused && e.state.Dirty && !e.closed
	e.mu.Unlock()
	if run {
		e.saveWithTimeout(e.ctx, "debounce")
	}
}

func (e *Engine) tick() {
	e.mu.Lock()
	if e.closed || e.flush == nil {
		e.mu.Unlock()
		return
	}
	dirty := e.state.Dirty
	e.mu.Unlock()

	if dirty {
		e.saveWithTimeout(e.ctx, "flush")
	}

	e.mu.Lock()
	if !e.closed && e.flush != nil {
		e.flush = e.clock.AfterFunc(e.cfg.FlushInterval, e.tick)
	}
	e.mu.Unlock()
}

func (e *Engine) saveWithTimeout(ctx context.Context, reason string) error {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.SaveTimeout)
	defer cancel()
	err := e.Save(ctx)
	if err != nil && !errors.Is(err, ErrDegenerate) {
		e.logger.Debug("autosave: "+reason+" save failed", "error", err)
	}
	return err
}

func (e *Engine) publish() {
	e.mu.Lock()
	s := e.state
	fns := make([]func(State), len(e.listeners))
	for i, l := range e.listeners {
		fns[i] = l.fn
	}
	e.mu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}
