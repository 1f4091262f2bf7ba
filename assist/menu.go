package assist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/odvcencio/folio/editor"
	"github.com/odvcencio/folio/overlay"
	"github.com/odvcencio/folio/prose"
)

var (
	// ErrBusy is returned while an action is pending.
	ErrBusy = errors.New("assist: action already running")
	// ErrNoSelection is returned when the menu is not open on a selection.
	ErrNoSelection = errors.New("assist: no selection")
	// ErrNoResult is returned by result operations when no result is shown.
	ErrNoResult = errors.New("assist: no result")
	// ErrStaleRange is returned when the selected text changed underneath
	// the menu.
	ErrStaleRange = errors.New("assist: selected range changed")
	// ErrUnavailable is returned when no assistant is configured.
	ErrUnavailable = errors.New("assist: assistant unavailable")
)

// Phase is the menu's lifecycle state.
type Phase int

const (
	PhaseClosed Phase = iota
	PhaseOpen
	PhasePending
	PhaseResult
	PhaseFailed
)

var phaseNames = [...]string{"closed", "open", "pending", "result", "failed"}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Document is the part of the editor the menu reads and edits.
type Document interface {
	Text() string
	Selection() (editor.SelectionInfo, bool)
	Geometry() editor.Geometry
	AnchorAt(offset int) editor.Anchor
	OffsetOf(a editor.Anchor) (int, bool)
	ReplaceRange(start, end int, text string) error
}

// Config tunes a Menu. Zero values take defaults.
type Config struct {
	MinChars   int           // selection must be longer than this, default 10
	MinWords   int           // default 3
	Width      float64       // assumed menu width, default 320
	Gap        float64       // default 8
	Margin     float64       // default overlay.DefaultMargin
	Timeout    time.Duration // per action, default 60s
	FocusAreas []string
	Logger     *slog.Logger
}

func (c *Config) defaults() {
	if c.MinChars <= 0 {
		c.MinChars = 10
	}
	if c.MinWords <= 0 {
		c.MinWords = 3
	}
	if c.Width <= 0 {
		c.Width = 320
	}
	if c.Gap <= 0 {
		c.Gap = 8
	}
	if c.Margin <= 0 {
		c.Margin = overlay.DefaultMargin
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// State is what the browser renders for the menu.
type State struct {
	Phase           Phase            `json:"phase"`
	Position        overlay.Position `json:"position"`
	Selected        string           `json:"selected,omitempty"`
	Action          Action           `json:"action,omitempty"`
	Result          string           `json:"result,omitempty"`
	Original        string           `json:"original,omitempty"`
	ShowingOriginal bool             `json:"showingOriginal"`
	Filtered        bool             `json:"filtered"`
	Error           string           `json:"error,omitempty"`
}

// Busy reports whether the menu is non-interactive.
func (s State) Busy() bool { return s.Phase == PhasePending }

// Shown returns the text Apply would insert.
func (s State) Shown() string {
	if s.ShowingOriginal {
		return s.Original
	}
	return s.Result
}

// Menu is the selection tool menu of one document. It owns the
// SelectionTools overlay kind.
type Menu struct {
	doc    Document
	coord  *overlay.Coordinator
	svc    Service
	cfg    Config
	logger *slog.Logger
	unsub  func()

	mu      sync.Mutex
	state   State
	start   editor.Anchor
	end     editor.Anchor
	gen     uint64
	onState func(State)
}

// NewMenu creates a closed menu.
func NewMenu(doc Document, coord *overlay.Coordinator, svc Service, cfg Config) *Menu {
	cfg.defaults()
	m := &Menu{doc: doc, coord: coord, svc: svc, cfg: cfg, logger: cfg.Logger}
	m.unsub = coord.Subscribe(m.overlayChanged)
	return m
}

// SetStateHandler registers fn to receive every state change.
func (m *Menu) SetStateHandler(fn func(State)) {
	m.mu.Lock()
	m.onState = fn
	m.mu.Unlock()
}

// State returns the current state.
func (m *Menu) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Qualifies reports whether a selection is large enough for the menu.
func (m *Menu) Qualifies(sel editor.SelectionInfo) bool {
	return !sel.Collapsed &&
		utf8.RuneCountInString(sel.Text) > m.cfg.MinChars &&
		prose.WordCount(sel.Text) >= m.cfg.MinWords
}

// OnSelectionChange opens the menu on a qualifying selection and closes an
// idle menu when the selection no longer qualifies. A pending action, a
// displayed result, or an error for the same selection keeps the menu where
// it is.
func (m *Menu) OnSelectionChange() {
	m.mu.Lock()
	phase, selected, startA := m.state.Phase, m.state.Selected, m.start
	m.mu.Unlock()
	if phase == PhasePending || phase == PhaseResult {
		return
	}

	sel, ok := m.doc.Selection()
	if ok && phase == PhaseFailed && sel.Text == selected && m.doc.AnchorAt(sel.Start) == startA {
		return
	}
	if !ok || !m.Qualifies(sel) || !m.coord.CanShow(overlay.SelectionTools) {
		m.close()
		return
	}
	g := m.doc.Geometry()
	pos, ok := overlay.Resolve(g.Selection, g.Root, overlay.Placement{
		Width:      m.cfg.Width,
		Gap:        m.cfg.Gap,
		Margin:     m.cfg.Margin,
		ScrollLeft: g.ScrollLeft,
		ScrollTop:  g.ScrollTop,
		Align:      overlay.AlignCenter,
		Layer:      g.Layer,
	})
	if !ok {
		m.close()
		return
	}
	start, end := m.doc.AnchorAt(sel.Start), m.doc.AnchorAt(sel.End)

	m.mu.Lock()
	m.gen++
	m.state = State{Phase: PhaseOpen, Position: pos, Selected: sel.Text}
	m.start, m.end = start, end
	s, fn := m.state, m.onState
	m.mu.Unlock()

	m.coord.SetActive(overlay.SelectionTools)
	if fn != nil {
		fn(s)
	}
}

// Run invokes action on the captured selection and waits for the reply.
// Failures are reported in the state and returned.
func (m *Menu) Run(ctx context.Context, action Action) error {
	if _, err := ParseAction(string(action)); err != nil {
		return err
	}
	if m.svc == nil {
		return ErrUnavailable
	}
	m.mu.Lock()
	switch m.state.Phase {
	case PhasePending:
		m.mu.Unlock()
		return ErrBusy
	case PhaseClosed:
		m.mu.Unlock()
		return ErrNoSelection
	}
	m.gen++
	gen := m.gen
	m.state.Phase = PhasePending
	m.state.Action = action
	m.state.Result, m.state.Original, m.state.Error = "", "", ""
	m.state.ShowingOriginal, m.state.Filtered = false, false
	req := ActionRequest{
		Text:        m.state.Selected,
		Action:      action,
		Instruction: action.Instruction(),
		FocusAreas:  m.cfg.FocusAreas,
	}
	s, fn := m.state, m.onState
	m.mu.Unlock()
	if fn != nil {
		fn(s)
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()
	raw, err := m.svc.RunAction(ctx, req)

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		m.logger.Debug("assist: discarded reply for closed menu", "action", action)
		return nil
	}
	if err != nil {
		m.state.Phase = PhaseFailed
		m.state.Error = fmt.Sprintf("Could not %s the selection. Please try again.", action)
	} else {
		text, filtered := Scrub(raw)
		m.state.Phase = PhaseResult
		m.state.Result = text
		m.state.Original = raw
		m.state.Filtered = filtered
	}
	s, fn = m.state, m.onState
	m.mu.Unlock()
	if fn != nil {
		fn(s)
	}
	if err != nil {
		m.logger.Warn("assist: action failed", "action", action, "error", err)
		return fmt.Errorf("assist: %s: %w", action, err)
	}
	return nil
}

// ToggleOriginal switches between the scrubbed and the unfiltered reply.
func (m *Menu) ToggleOriginal() error {
	m.mu.Lock()
	if m.state.Phase != PhaseResult {
		m.mu.Unlock()
		return ErrNoResult
	}
	m.state.ShowingOriginal = !m.state.ShowingOriginal
	s, fn := m.state, m.onState
	m.mu.Unlock()
	if fn != nil {
		fn(s)
	}
	return nil
}

// Apply replaces the captured range with the shown result and closes.
func (m *Menu) Apply() error {
	m.mu.Lock()
	if m.state.Phase != PhaseResult {
		m.mu.Unlock()
		return ErrNoResult
	}
	shown, selected := m.state.Shown(), m.state.Selected
	startA, endA := m.start, m.end
	m.mu.Unlock()

	start, ok1 := m.doc.OffsetOf(startA)
	end, ok2 := m.doc.OffsetOf(endA)
	text := m.doc.Text()
	if !ok1 || !ok2 || start > end || end > len(text) || text[start:end] != selected {
		m.close()
		return ErrStaleRange
	}
	m.close()
	return m.doc.ReplaceRange(start, end, shown)
}

// Cancel discards any result or pending reply and closes the menu.
func (m *Menu) Cancel() {
	m.close()
}

// Close detaches the menu from the coordinator.
func (m *Menu) Close() {
	m.close()
	m.unsub()
}

func (m *Menu) close() {
	m.mu.Lock()
	if m.state.Phase == PhaseClosed {
		m.mu.Unlock()
		return
	}
	m.reset()
	s, fn := m.state, m.onState
	m.mu.Unlock()

	m.coord.Release(overlay.SelectionTools)
	if fn != nil {
		fn(s)
	}
}

// reset closes the state. Caller holds m.mu.
func (m *Menu) reset() {
	m.gen++
	m.state = State{}
	m.start, m.end = editor.Anchor{}, editor.Anchor{}
}

func (m *Menu) overlayChanged(_, next overlay.Kind) {
	if next == overlay.SelectionTools {
		return
	}
	m.mu.Lock()
	if m.state.Phase == PhaseClosed {
		m.mu.Unlock()
		return
	}
	m.reset()
	s, fn := m.state, m.onState
	m.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}
