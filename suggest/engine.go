package suggest

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"unicode"
	"unicode/utf8"

	"github.com/odvcencio/folio/clock"
	"github.com/odvcencio/folio/editor"
	"github.com/odvcencio/folio/overlay"
)

// Document is the part of the editor the engine reads and edits.
type Document interface {
	Text() string
	Selection() (editor.SelectionInfo, bool)
	Geometry() editor.Geometry
	AnchorAt(offset int) editor.Anchor
	OffsetOf(a editor.Anchor) (int, bool)
	ReplaceRange(start, end int, text string) error
}

// Config tunes an Engine. Zero values take defaults.
type Config struct {
	Remote         RemoteConfig
	MinTokenLength int     // runes; default 2
	CharWidth      float64 // px per cell; default 8
	Padding        float64 // default 24
	MinWidth       float64 // default 160
	MaxWidth       float64 // default 420
	Gap            float64 // default 4
	Margin         float64 // default overlay.DefaultMargin
	Logger         *slog.Logger
}

func (c *Config) defaults() {
	if c.MinTokenLength <= 0 {
		c.MinTokenLength = 2
	}
	if c.CharWidth <= 0 {
		c.CharWidth = 8
	}
	if c.Padding <= 0 {
		c.Padding = 24
	}
	if c.MinWidth <= 0 {
		c.MinWidth = 160
	}
	if c.MaxWidth <= 0 {
		c.MaxWidth = 420
	}
	if c.Gap <= 0 {
		c.Gap = 4
	}
	if c.Margin <= 0 {
		c.Margin = overlay.DefaultMargin
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// View is what the browser renders for the suggestion overlay.
type View struct {
	Kind        overlay.Kind     `json:"kind"`
	Visible     bool             `json:"visible"`
	Suggestions []Suggestion     `json:"suggestions,omitempty"`
	Highlighted int              `json:"highlighted"`
	Anchor      editor.Anchor    `json:"anchor"`
	Position    overlay.Position `json:"position"`
	Token       string           `json:"token,omitempty"`
}

// Engine runs the local and remote suggestion strategies and the dictionary
// popup for one document. It owns the LocalSuggestion, RemoteSuggestion and
// DictionaryPopup overlay kinds and may switch between them freely; any
// other active kind closes it.
type Engine struct {
	doc    Document
	dict   *Dictionary
	coord  *overlay.Coordinator
	remote *Remote
	cfg    Config
	logger *slog.Logger

	applying atomic.Bool
	unsub    func()

	mu       sync.Mutex
	kind     overlay.Kind
	list     List
	anchor   editor.Anchor
	span     int // bytes replaced at anchor; 0 inserts
	token    string
	position overlay.Position
	marks    []Mark
	onView   func(View)
}

// NewEngine creates an engine. svc may be nil, which disables the remote
// strategy.
func NewEngine(doc Document, dict *Dictionary, coord *overlay.Coordinator, svc Service, clk clock.Clock, cfg Config) *Engine {
	cfg.defaults()
	e := &Engine{
		doc:    doc,
		dict:   dict,
		coord:  coord,
		cfg:    cfg,
		logger: cfg.Logger,
	}
	e.remote = NewRemote(svc, cfg.Remote, clk, cfg.Logger, e.remoteResult, e.remoteError)
	e.unsub = coord.Subscribe(e.overlayChanged)
	e.marks = Scan(dict, doc.Text())
	return e
}

// SetViewHandler registers fn to receive every view change.
func (e *Engine) SetViewHandler(fn func(View)) {
	e.mu.Lock()
	e.onView = fn
	e.mu.Unlock()
}

func owned(k overlay.Kind) bool {
	return k == overlay.LocalSuggestion || k == overlay.RemoteSuggestion || k == overlay.DictionaryPopup
}

// mayShow reports whether the engine can take the overlay slot.
func (e *Engine) mayShow() bool {
	a := e.coord.Active()
	return a == overlay.None || owned(a)
}

// OnSelectionChange runs the local strategy for a collapsed selection.
func (e *Engine) OnSelectionChange() {
	if e.applying.Load() {
		return
	}
	sel, ok := e.doc.Selection()
	if !ok || !sel.Collapsed {
		e.hide(overlay.LocalSuggestion, overlay.RemoteSuggestion)
		return
	}

	e.mu.Lock()
	kind, anchor := e.kind, e.anchor
	e.mu.Unlock()
	if kind == overlay.DictionaryPopup {
		return
	}
	if kind == overlay.RemoteSuggestion {
		if off, ok := e.doc.OffsetOf(anchor); ok && off == sel.Cursor {
			return
		}
	}

	text := e.doc.Text()
	start, end, token := TokenAt(text, sel.Cursor)
	if utf8.RuneCountInString(token) < e.cfg.MinTokenLength || sel.Cursor == start {
		e.hide(overlay.LocalSuggestion, overlay.RemoteSuggestion)
		return
	}
	alts := e.dict.Lookup(token)
	if len(alts) == 0 || !e.mayShow() {
		e.hide(overlay.LocalSuggestion)
		return
	}
	pos, ok := e.place(alts)
	if !ok {
		e.hide(overlay.LocalSuggestion)
		return
	}
	e.show(overlay.LocalSuggestion, fromStrings(alts, SourceLocal), e.doc.AnchorAt(start), end-start, token, pos)
}

// OnContentChange schedules a remote fetch, closes lists that no longer
// match the text and refreshes dictionary marks.
func (e *Engine) OnContentChange() {
	if e.applying.Load() {
		return
	}
	text := e.doc.Text()
	marks := Scan(e.dict, text)
	e.mu.Lock()
	e.marks = marks
	e.mu.Unlock()

	e.hide(overlay.RemoteSuggestion, overlay.DictionaryPopup)

	sel, ok := e.doc.Selection()
	if !ok || !sel.Collapsed {
		e.remote.Cancel()
		return
	}
	e.remote.Schedule(text, sel.Cursor)
}

// OpenDictionary shows the alternatives for the marked word at offset.
func (e *Engine) OpenDictionary(offset int) bool {
	e.mu.Lock()
	m, ok := MarkAt(e.marks, offset)
	e.mu.Unlock()
	if !ok || !e.mayShow() {
		return false
	}
	alts := e.dict.Alternatives(m.Word)
	if len(alts) == 0 {
		return false
	}
	pos, ok := e.place(alts)
	if !ok {
		return false
	}
	e.remote.Cancel()
	e.show(overlay.DictionaryPopup, fromStrings(alts, SourceLocal), e.doc.AnchorAt(m.Start), m.End-m.Start, m.Word, pos)
	return true
}

// HandleKey applies list navigation keys while a list is visible. It
// reports whether the key was consumed.
func (e *Engine) HandleKey(key string) bool {
	e.mu.Lock()
	if e.kind == overlay.None {
		e.mu.Unlock()
		return false
	}
	switch key {
	case "ArrowDown":
		e.list.Next()
	case "ArrowUp":
		e.list.Prev()
	case "Tab", "Enter":
		e.mu.Unlock()
		if err := e.ApplyHighlighted(); err != nil {
			e.logger.Debug("suggest: apply failed", "error", err)
		}
		return true
	case "Escape":
		e.mu.Unlock()
		e.Dismiss()
		return true
	default:
		e.mu.Unlock()
		return false
	}
	v, fn := e.viewLocked(), e.onView
	e.mu.Unlock()
	if fn != nil {
		fn(v)
	}
	return true
}

// ApplyHighlighted applies the highlighted suggestion.
func (e *Engine) ApplyHighlighted() error {
	e.mu.Lock()
	i := e.list.Index()
	e.mu.Unlock()
	return e.Apply(i)
}

// Apply replaces the remembered token, or inserts at the remembered cursor,
// with suggestion i and closes the overlay.
func (e *Engine) Apply(i int) error {
	e.mu.Lock()
	items := e.list.Items()
	kind, anchor, span, token := e.kind, e.anchor, e.span, e.token
	e.mu.Unlock()
	if kind == overlay.None || i < 0 || i >= len(items) {
		return ErrNothingToApply
	}

	text := e.doc.Text()
	start, ok := e.doc.OffsetOf(anchor)
	if ok && span > 0 {
		ok = start+span <= len(text) && text[start:start+span] == token
	}
	if !ok {
		e.Dismiss()
		return ErrStaleAnchor
	}
	insert := items[i].Text
	if span == 0 {
		insert = continuation(text[:start], insert)
	}

	e.remote.Cancel()
	e.applying.Store(true)
	err := e.doc.ReplaceRange(start, start+span, insert)
	e.applying.Store(false)
	e.hide(kind)
	if err != nil {
		return err
	}
	e.refreshMarks()
	return nil
}

// Dismiss closes the overlay without applying and drops any pending remote
// request.
func (e *Engine) Dismiss() {
	e.remote.Cancel()
	e.hide(overlay.LocalSuggestion, overlay.RemoteSuggestion, overlay.DictionaryPopup)
}

// ClickOutside handles a pointer-down outside the overlay. Clicks inside the
// editable surface are left to the selection change they cause.
func (e *Engine) ClickOutside(insideEditor bool) {
	if !insideEditor {
		e.Dismiss()
	}
}

// View returns the current view.
func (e *Engine) View() View {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.viewLocked()
}

// Marks returns the current dictionary marks.
func (e *Engine) Marks() []Mark {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Mark(nil), e.marks...)
}

// RemoteStats returns remote traffic counters.
func (e *Engine) RemoteStats() RemoteStats {
	return e.remote.Stats()
}

// Close stops the remote strategy and detaches from the coordinator.
func (e *Engine) Close() {
	e.remote.Close()
	e.unsub()
}

func (e *Engine) refreshMarks() {
	marks := Scan(e.dict, e.doc.Text())
	e.mu.Lock()
	e.marks = marks
	e.mu.Unlock()
}

func (e *Engine) place(lines []string) (overlay.Position, bool) {
	g := e.doc.Geometry()
	return overlay.Resolve(g.Selection, g.Root, overlay.Placement{
		Width:      overlay.EstimateWidth(lines, e.cfg.CharWidth, e.cfg.Padding, e.cfg.MinWidth, e.cfg.MaxWidth),
		Gap:        e.cfg.Gap,
		Margin:     e.cfg.Margin,
		ScrollLeft: g.ScrollLeft,
		ScrollTop:  g.ScrollTop,
		Layer:      g.Layer,
	})
}

// show installs a list and takes the overlay slot. State is updated before
// the coordinator is told so that the change notification finds it current.
func (e *Engine) show(kind overlay.Kind, items []Suggestion, anchor editor.Anchor, span int, token string, pos overlay.Position) {
	e.mu.Lock()
	e.kind = kind
	e.list.Set(items)
	e.anchor = anchor
	e.span = span
	e.token = token
	e.position = pos
	v, fn := e.viewLocked(), e.onView
	e.mu.Unlock()

	e.coord.SetActive(kind)
	if fn != nil {
		fn(v)
	}
}

// hide closes the overlay if it currently shows one of kinds.
func (e *Engine) hide(kinds ...overlay.Kind) {
	e.mu.Lock()
	kind := e.kind
	match := false
	for _, k := range kinds {
		if k == kind && k != overlay.None {
			match = true
		}
	}
	if !match {
		e.mu.Unlock()
		return
	}
	e.clearLocked()
	v, fn := e.viewLocked(), e.onView
	e.mu.Unlock()

	e.coord.Release(kind)
	if fn != nil {
		fn(v)
	}
}

func (e *Engine) clearLocked() {
	e.kind = overlay.None
	e.list.Reset()
	e.anchor = editor.Anchor{}
	e.span = 0
	e.token = ""
	e.position = overlay.Position{}
}

// overlayChanged closes the engine's list when another producer takes the
// slot.
func (e *Engine) overlayChanged(_, next overlay.Kind) {
	e.mu.Lock()
	if e.kind == overlay.None || e.kind == next {
		e.mu.Unlock()
		return
	}
	e.clearLocked()
	v, fn := e.viewLocked(), e.onView
	e.mu.Unlock()
	if fn != nil {
		fn(v)
	}
}

func (e *Engine) remoteResult(p PendingFetch, list []string) {
	if !e.remote.Current(p.RequestID) || !e.mayShow() {
		return
	}
	sel, ok := e.doc.Selection()
	if !ok || !sel.Collapsed || sel.Cursor != p.CursorOffset || e.doc.Text() != p.QueryText {
		return
	}
	pos, ok := e.place(list)
	if !ok {
		return
	}
	e.show(overlay.RemoteSuggestion, fromStrings(list, SourceRemote), e.doc.AnchorAt(p.CursorOffset), 0, "", pos)
}

func (e *Engine) remoteError(PendingFetch, error) {
	e.hide(overlay.RemoteSuggestion)
}

// continuation separates an inserted continuation from the word before it.
func continuation(before, s string) string {
	if before == "" || s == "" {
		return s
	}
	prev, _ := utf8.DecodeLastRuneInString(before)
	next, _ := utf8.DecodeRuneInString(s)
	if unicode.IsSpace(prev) || unicode.IsSpace(next) || unicode.IsPunct(next) {
		return s
	}
	return " " + s
}

func (e *Engine) viewLocked() View {
	return View{
		Kind:        e.kind,
		Visible:     e.kind != overlay.None,
		Suggestions: e.list.Items(),
		Highlighted: e.list.Index(),
		Anchor:      e.anchor,
		Position:    e.position,
		Token:       e.token,
	}
}
