// Package session wires one open chapter to its overlay coordinator,
// suggestion engine, selection tool menu and autosave engine, and fans their
// state changes out to the connected browsers.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/odvcencio/folio/assist"
	"github.com/odvcencio/folio/autosave"
	"github.com/odvcencio/folio/clock"
	"github.com/odvcencio/folio/commands"
	"github.com/odvcencio/folio/editor"
	"github.com/odvcencio/folio/overlay"
	"github.com/odvcencio/folio/suggest"
)

// Notification method names pushed to the browser.
const (
	NotifyOverlay     = "overlay"
	NotifySuggestions = "suggestions"
	NotifyMenu        = "menu"
	NotifySaveState   = "saveState"
	NotifyRecoverable = "recoverable"
)

// Notice is the payload of every notification.
type Notice struct {
	ChapterID string `json:"chapterId"`
	Data      any    `json:"data"`
}

// OverlayState is the data of an overlay notification.
type OverlayState struct {
	Active overlay.Kind `json:"active"`
}

// Recoverable is the data of a recoverable notification.
type Recoverable struct {
	Content string `json:"content"`
}

// Services are the collaborators shared by every session.
type Services struct {
	Dictionary *suggest.Dictionary
	// Suggest and Actions may be nil; the remote strategy and the menu
	// actions are then unavailable.
	Suggest   suggest.Service
	Actions   assist.Service
	Persister autosave.Persister
	Cache     autosave.Cache
	Clock     clock.Clock
}

// Config tunes the per-chapter components.
type Config struct {
	Suggest  suggest.Config
	Menu     assist.Config
	Autosave autosave.Config
	Logger   *slog.Logger
}

// Session is one open chapter.
type Session struct {
	id      string
	doc     *editor.Document
	coord   *overlay.Coordinator
	suggest *suggest.Engine
	menu    *assist.Menu
	save    *autosave.Engine
	cmds    commands.Table
	logger  *slog.Logger

	unsubs []func()

	mu      sync.Mutex
	nextSub int
	subs    map[int]func(method string, params any)
	closed  bool
}

// Open creates a session for a chapter with the given stored text.
func Open(chapterID, format, text string, svc Services, cfg Config) *Session {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if svc.Clock == nil {
		svc.Clock = clock.Real()
	}
	if svc.Dictionary == nil {
		svc.Dictionary = suggest.DefaultDictionary()
	}
	logger := cfg.Logger.With("session", uuid.NewString(), "chapter", chapterID)
	cfg.Suggest.Logger = pick(cfg.Suggest.Logger, logger)
	cfg.Menu.Logger = pick(cfg.Menu.Logger, logger)
	cfg.Autosave.Logger = pick(cfg.Autosave.Logger, logger)

	s := &Session{
		id:     chapterID,
		doc:    editor.NewDocument(chapterID, format, text),
		coord:  overlay.NewCoordinator(),
		logger: logger,
		subs:   make(map[int]func(string, any)),
	}
	s.suggest = suggest.NewEngine(s.doc, svc.Dictionary, s.coord, svc.Suggest, svc.Clock, cfg.Suggest)
	s.menu = assist.NewMenu(s.doc, s.coord, svc.Actions, cfg.Menu)
	s.save = autosave.New(s.doc, svc.Persister, svc.Cache, svc.Clock, cfg.Autosave)

	// Content listeners run before selection listeners. The suggestion
	// engine hears a selection first so it has released its overlay by the
	// time the menu asks for the slot.
	s.unsubs = append(s.unsubs,
		s.doc.OnChange(s.save.Observe),
		s.doc.OnChange(s.suggest.OnContentChange),
		s.doc.OnSelectionChange(s.suggest.OnSelectionChange),
		s.doc.OnSelectionChange(s.menu.OnSelectionChange),
		s.coord.Subscribe(func(_, next overlay.Kind) {
			s.broadcast(NotifyOverlay, OverlayState{Active: next})
		}),
		s.save.Subscribe(func(st autosave.State) {
			s.broadcast(NotifySaveState, st)
		}),
	)
	s.suggest.SetViewHandler(func(v suggest.View) { s.broadcast(NotifySuggestions, v) })
	s.menu.SetStateHandler(func(st assist.State) { s.broadcast(NotifyMenu, st) })

	s.cmds = commands.AllCommands(commands.Actions{
		Save: s.save.Save,
		Undo: func(context.Context) error {
			s.doc.Undo()
			return nil
		},
		Redo: func(context.Context) error {
			s.doc.Redo()
			return nil
		},
		Rewrite:   func(ctx context.Context) error { return s.menu.Run(ctx, assist.Rewrite) },
		Expand:    func(ctx context.Context) error { return s.menu.Run(ctx, assist.Expand) },
		Summarize: func(ctx context.Context) error { return s.menu.Run(ctx, assist.Summarize) },
		Dismiss: func(context.Context) error {
			s.Dismiss()
			return nil
		},
	})
	return s
}

func pick(l, def *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return def
}

// ID returns the chapter id.
func (s *Session) ID() string { return s.id }

// Document returns the chapter document.
func (s *Session) Document() *editor.Document { return s.doc }

// Coordinator returns the overlay coordinator.
func (s *Session) Coordinator() *overlay.Coordinator { return s.coord }

// Suggestions returns the suggestion engine.
func (s *Session) Suggestions() *suggest.Engine { return s.suggest }

// Menu returns the selection tool menu.
func (s *Session) Menu() *assist.Menu { return s.menu }

// Autosave returns the autosave engine.
func (s *Session) Autosave() *autosave.Engine { return s.save }

// Commands returns the command table.
func (s *Session) Commands() commands.Table { return s.cmds }

// Subscribe registers fn for notifications and returns a cancel function.
func (s *Session) Subscribe(fn func(method string, params any)) (cancel func()) {
	s.mu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Session) broadcast(method string, data any) {
	s.mu.Lock()
	fns := make([]func(string, any), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	n := Notice{ChapterID: s.id, Data: data}
	for _, fn := range fns {
		fn(method, n)
	}
}

// CheckRecoverable pushes a recoverable notification when the emergency
// cache holds unsaved work for the chapter.
func (s *Session) CheckRecoverable(ctx context.Context) (bool, error) {
	cached, ok, err := s.save.Pending(ctx)
	if err != nil || !ok {
		return false, err
	}
	s.broadcast(NotifyRecoverable, Recoverable{Content: cached})
	return true, nil
}

// Change applies a browser edit. g, when non-nil, is the layout after the
// edit.
func (s *Session) Change(text string, base, cursor int, g *editor.Geometry) {
	if g != nil {
		s.doc.SetGeometry(*g)
	}
	s.doc.Update(text, base, cursor)
}

// Select records a selection change.
func (s *Session) Select(base, cursor int, g *editor.Geometry) {
	if g != nil {
		s.doc.SetGeometry(*g)
	}
	s.doc.Select(base, cursor)
}

// Key handles a key press: command shortcuts first, then list navigation,
// then escape for the menu. It reports whether the key was consumed.
func (s *Session) Key(ctx context.Context, key string) (bool, error) {
	if c, ok := s.cmds.ByShortcut(key); ok {
		return true, c.Run(ctx)
	}
	if s.suggest.HandleKey(key) {
		return true, nil
	}
	if key == "Escape" && s.menu.State().Phase != assist.PhaseClosed {
		s.menu.Cancel()
		return true, nil
	}
	return false, nil
}

// Click reports a click outside any overlay.
func (s *Session) Click(insideEditor bool) {
	s.suggest.ClickOutside(insideEditor)
	if !insideEditor && s.menu.State().Phase == assist.PhaseOpen {
		s.menu.Cancel()
	}
}

// Dismiss closes whatever overlay is showing.
func (s *Session) Dismiss() {
	s.suggest.Dismiss()
	s.menu.Cancel()
}

// Focus records editor focus; losing focus saves pending changes.
func (s *Session) Focus(ctx context.Context, focused bool) error {
	return s.save.SetFocus(ctx, focused)
}

// Unload writes the emergency copy when the page goes away.
func (s *Session) Unload(ctx context.Context) bool {
	return s.save.Unload(ctx)
}

// Recover restores or discards the emergency copy.
func (s *Session) Recover(ctx context.Context, accept bool) (bool, error) {
	return s.save.Recover(ctx, func(string) bool { return accept })
}

// Command runs a command by id.
func (s *Session) Command(ctx context.Context, id string) error {
	return s.cmds.Run(ctx, id)
}

// Close detaches every component and flushes pending changes.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	for _, fn := range s.unsubs {
		fn()
	}
	s.suggest.Close()
	s.menu.Close()
	err := s.save.Close(ctx)
	if errors.Is(err, autosave.ErrClosed) {
		err = nil
	}
	if err != nil {
		return fmt.Errorf("session: close %s: %w", s.id, err)
	}
	return nil
}
