package assist

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/odvcencio/folio/editor"
	"github.com/odvcencio/folio/overlay"
)

type stubService struct {
	mu    sync.Mutex
	reply string
	err   error
	reqs  []ActionRequest
	gate  chan struct{}
}

func (s *stubService) RunAction(ctx context.Context, req ActionRequest) (string, error) {
	s.mu.Lock()
	s.reqs = append(s.reqs, req)
	gate := s.gate
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.reply, s.err
}

const twelveWords = "a chuva caía devagar sobre os telhados da cidade velha naquela noite"

func newMenu(t *testing.T, svc Service) (*Menu, *editor.Document, *overlay.Coordinator) {
	t.Helper()
	doc := editor.NewDocument("doc-1", "text", "Início. "+twelveWords+". Fim.")
	doc.SetGeometry(editor.Geometry{
		Selection: overlay.Rect{Left: 100, Top: 50, Width: 300, Height: 20},
		Root:      overlay.Rect{Width: 800, Height: 600},
	})
	coord := overlay.NewCoordinator()
	m := NewMenu(doc, coord, svc, Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	doc.OnSelectionChange(m.OnSelectionChange)
	t.Cleanup(m.Close)
	return m, doc, coord
}

func selectWords(doc *editor.Document) (int, int) {
	start := len("Início. ")
	end := start + len(twelveWords)
	doc.Select(start, end)
	return start, end
}

func TestMenuOpensOnQualifyingSelection(t *testing.T) {
	m, doc, coord := newMenu(t, &stubService{})
	selectWords(doc)
	st := m.State()
	if st.Phase != PhaseOpen || coord.Active() != overlay.SelectionTools {
		t.Fatalf("phase %v active %v", st.Phase, coord.Active())
	}
	if st.Selected != twelveWords {
		t.Fatalf("selected = %q", st.Selected)
	}
	// Centered under the selection: 100 + 150 - 160.
	if st.Position.Left != 90 || st.Position.Top != 78 || st.Position.Width != 320 {
		t.Fatalf("position = %+v", st.Position)
	}

	doc.Select(3, 3)
	if m.State().Phase != PhaseClosed || coord.Active() != overlay.None {
		t.Fatal("collapsing the selection closes an idle menu")
	}
}

func TestMenuIgnoresSmallSelections(t *testing.T) {
	m, doc, coord := newMenu(t, &stubService{})
	doc.Select(0, 7) // "Início."
	if m.State().Phase != PhaseClosed {
		t.Fatal("short selection opened the menu")
	}
	doc.SetText("abcdefghijklmnop qr")
	doc.Select(0, 16) // one long word
	if m.State().Phase != PhaseClosed {
		t.Fatal("selection under three words opened the menu")
	}
	coord.SetActive(overlay.LocalSuggestion)
	doc.SetText("um dois três quatro cinco")
	doc.Select(0, len("um dois três quatro"))
	if m.State().Phase != PhaseClosed || coord.Active() != overlay.LocalSuggestion {
		t.Fatal("menu must respect another producer's overlay")
	}
}

func TestMenuRunScrubsAndApplies(t *testing.T) {
	svc := &stubService{reply: "Revised Text:\nA chuva caía mansa sobre os telhados.\n---\nComments on style."}
	m, doc, coord := newMenu(t, svc)
	selectWords(doc)

	if err := m.Run(context.Background(), Rewrite); err != nil {
		t.Fatal(err)
	}
	st := m.State()
	if st.Phase != PhaseResult || !st.Filtered || st.Result != "A chuva caía mansa sobre os telhados." {
		t.Fatalf("state = %+v", st)
	}
	if req := svc.reqs[0]; req.Text != twelveWords || req.Action != Rewrite || req.Instruction == "" {
		t.Fatalf("request = %+v", req)
	}

	if err := m.ToggleOriginal(); err != nil || m.State().Shown() != svc.reply {
		t.Fatalf("toggle: %v shown %q", err, m.State().Shown())
	}
	m.ToggleOriginal()

	if err := m.Apply(); err != nil {
		t.Fatal(err)
	}
	if got := doc.Text(); got != "Início. A chuva caía mansa sobre os telhados.. Fim." {
		t.Fatalf("text = %q", got)
	}
	if m.State().Phase != PhaseClosed || coord.Active() != overlay.None {
		t.Fatal("apply closes the menu")
	}
}

func TestMenuBusyWhilePending(t *testing.T) {
	svc := &stubService{reply: "ok text here", gate: make(chan struct{})}
	m, doc, _ := newMenu(t, svc)
	selectWords(doc)

	states := make(chan State, 8)
	m.SetStateHandler(func(s State) { states <- s })
	done := make(chan error, 1)
	go func() { done <- m.Run(context.Background(), Expand) }()
	if s := <-states; !s.Busy() {
		t.Fatalf("first state = %+v, want pending", s)
	}
	if err := m.Run(context.Background(), Summarize); !errors.Is(err, ErrBusy) {
		t.Fatalf("second Run = %v, want ErrBusy", err)
	}
	doc.Select(0, 0)
	if m.State().Phase != PhasePending {
		t.Fatal("selection changes must not close a pending menu")
	}
	close(svc.gate)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if m.State().Phase != PhaseResult {
		t.Fatalf("phase = %v", m.State().Phase)
	}
}

func TestMenuFailureShowsError(t *testing.T) {
	svc := &stubService{err: errors.New("503")}
	m, doc, coord := newMenu(t, svc)
	selectWords(doc)
	if err := m.Run(context.Background(), Summarize); err == nil {
		t.Fatal("expected error")
	}
	st := m.State()
	if st.Phase != PhaseFailed || st.Error == "" || coord.Active() != overlay.SelectionTools {
		t.Fatalf("state = %+v active %v", st, coord.Active())
	}
	selectWords(doc)
	if m.State().Phase != PhaseFailed {
		t.Fatal("a repeated identical selection keeps the error visible")
	}
	svc.err = nil
	svc.reply = "Resumo curto."
	if err := m.Run(context.Background(), Summarize); err != nil {
		t.Fatal(err)
	}
	if m.State().Result != "Resumo curto." {
		t.Fatalf("retry result = %q", m.State().Result)
	}
}

func TestMenuCancelDropsPendingReply(t *testing.T) {
	svc := &stubService{reply: "late", gate: make(chan struct{})}
	m, doc, coord := newMenu(t, svc)
	selectWords(doc)
	done := make(chan error, 1)
	go func() { done <- m.Run(context.Background(), Rewrite) }()
	for {
		if m.State().Busy() {
			break
		}
	}
	m.Cancel()
	close(svc.gate)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if m.State().Phase != PhaseClosed || coord.Active() != overlay.None {
		t.Fatal("cancelled reply must not reopen the menu")
	}
	if err := m.Run(context.Background(), Rewrite); !errors.Is(err, ErrNoSelection) {
		t.Fatalf("Run on closed menu = %v", err)
	}
}

func TestMenuApplyStaleRange(t *testing.T) {
	m, doc, _ := newMenu(t, &stubService{reply: "novo texto aqui"})
	selectWords(doc)
	if err := m.Run(context.Background(), Rewrite); err != nil {
		t.Fatal(err)
	}
	doc.SetText("outro texto completamente")
	if err := m.Apply(); !errors.Is(err, ErrStaleRange) {
		t.Fatalf("Apply = %v, want ErrStaleRange", err)
	}
	if err := m.Apply(); !errors.Is(err, ErrNoResult) {
		t.Fatalf("Apply after close = %v", err)
	}
}

func TestMenuYieldsToOtherOverlay(t *testing.T) {
	m, doc, coord := newMenu(t, &stubService{})
	selectWords(doc)
	coord.SetActive(overlay.DictionaryPopup)
	if m.State().Phase != PhaseClosed {
		t.Fatal("menu must close when another overlay takes the slot")
	}
	if coord.Active() != overlay.DictionaryPopup {
		t.Fatal("closing must not release someone else's overlay")
	}
}

func TestParseAction(t *testing.T) {
	for _, a := range Actions {
		if got, err := ParseAction(string(a)); err != nil || got != a {
			t.Errorf("ParseAction(%q) = %q, %v", a, got, err)
		}
		if a.Label() == "" || a.Instruction() == "" {
			t.Errorf("%q lacks label or instruction", a)
		}
	}
	if _, err := ParseAction("translate"); err == nil {
		t.Error("unknown action accepted")
	}
}
