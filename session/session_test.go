package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/odvcencio/folio/assist"
	"github.com/odvcencio/folio/autosave"
	"github.com/odvcencio/folio/clock"
	"github.com/odvcencio/folio/editor"
	"github.com/odvcencio/folio/overlay"
	"github.com/odvcencio/folio/store"
	"github.com/odvcencio/folio/suggest"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

const twelveWords = "a chuva caía devagar sobre os telhados da cidade velha naquela noite"

type memPersister struct {
	mu    sync.Mutex
	saved map[string]autosave.Payload
	saves int
}

func (p *memPersister) Save(_ context.Context, id string, pl autosave.Payload) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.saved == nil {
		p.saved = make(map[string]autosave.Payload)
	}
	p.saved[id] = pl
	p.saves++
	return nil
}

func (p *memPersister) Get(_ context.Context, id string) (store.Chapter, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pl, ok := p.saved[id]
	if !ok {
		return store.Chapter{}, store.ErrNotFound
	}
	return store.Chapter{ID: id, Content: pl.Content, WordCount: pl.WordCount}, nil
}

func (p *memPersister) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.saves
}

type memCache struct {
	mu sync.Mutex
	m  map[string]string
}

func (c *memCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[key]
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = value
	return nil
}

func (c *memCache) Remove(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, key)
	return nil
}

type actionService struct {
	reply string
	err   error
}

func (a actionService) RunAction(context.Context, assist.ActionRequest) (string, error) {
	return a.reply, a.err
}

type recorder struct {
	mu     sync.Mutex
	events []string
	last   map[string]Notice
}

func (r *recorder) record(method string, params any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, method)
	if r.last == nil {
		r.last = make(map[string]Notice)
	}
	r.last[method] = params.(Notice)
}

func (r *recorder) lastOf(method string) (Notice, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.last[method]
	return n, ok
}

type fixture struct {
	s       *Session
	clk     *clock.Fake
	persist *memPersister
	cache   *memCache
	rec     *recorder
}

var geometry = editor.Geometry{
	Selection: overlay.Rect{Left: 100, Top: 50, Width: 300, Height: 20},
	Root:      overlay.Rect{Width: 800, Height: 600},
}

func newFixture(t *testing.T, text string, actions assist.Service) *fixture {
	t.Helper()
	f := &fixture{
		clk:     clock.NewFake(time.Unix(0, 0)),
		persist: &memPersister{},
		cache:   &memCache{m: make(map[string]string)},
		rec:     &recorder{},
	}
	f.s = Open("ch-1", "text", text, Services{
		Actions:   actions,
		Persister: f.persist,
		Cache:     f.cache,
		Clock:     f.clk,
	}, Config{Logger: quiet})
	f.s.Subscribe(f.rec.record)
	f.s.Document().SetGeometry(geometry)
	t.Cleanup(func() { _ = f.s.Close(context.Background()) })
	return f
}

func TestSelectionToolsTakeOverFromSuggestions(t *testing.T) {
	f := newFixture(t, "", actionService{})
	text := twelveWords + "\no personag"
	g := geometry
	f.s.Change(text, len(text), len(text), &g)
	if got := f.s.Coordinator().Active(); got != overlay.LocalSuggestion {
		t.Fatalf("active = %v, want local suggestion", got)
	}

	f.s.Select(0, len(twelveWords), nil)
	if got := f.s.Coordinator().Active(); got != overlay.SelectionTools {
		t.Fatalf("active = %v, want selection tools", got)
	}
	if f.s.Suggestions().View().Visible {
		t.Fatal("suggestion list must close when the menu opens")
	}
	st := f.s.Menu().State()
	if st.Phase != assist.PhaseOpen || st.Selected != twelveWords {
		t.Fatalf("menu = %+v", st)
	}
	n, ok := f.rec.lastOf(NotifyOverlay)
	if !ok || n.ChapterID != "ch-1" || n.Data.(OverlayState).Active != overlay.SelectionTools {
		t.Fatalf("overlay notice = %+v", n)
	}
}

func TestRewriteThroughCommand(t *testing.T) {
	text := twelveWords + "."
	f := newFixture(t, text, actionService{reply: "Texto revisado: a chuva caía mansamente sobre a cidade\n---\nComentários: ritmo"})
	f.s.Select(0, len(twelveWords), nil)

	if err := f.s.Command(context.Background(), "assist.rewrite"); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	st := f.s.Menu().State()
	if st.Phase != assist.PhaseResult || st.Result != "a chuva caía mansamente sobre a cidade" || !st.Filtered {
		t.Fatalf("menu = %+v", st)
	}
	if err := f.s.Menu().Apply(); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := f.s.Document().Text(); got != "a chuva caía mansamente sobre a cidade." {
		t.Fatalf("text = %q", got)
	}
	if !f.s.Autosave().State().Dirty {
		t.Fatal("applying a result must mark the chapter dirty")
	}
	if f.s.Coordinator().Active() == overlay.SelectionTools {
		t.Fatal("applying must close the menu")
	}
}

func TestRunWithoutAssistant(t *testing.T) {
	text := twelveWords + "."
	f := newFixture(t, text, nil)
	f.s.Select(0, len(twelveWords), nil)
	if err := f.s.Command(context.Background(), "assist.expand"); !errors.Is(err, assist.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestEscapeClosesMenu(t *testing.T) {
	f := newFixture(t, twelveWords, actionService{})
	f.s.Select(0, len(twelveWords), nil)
	consumed, err := f.s.Key(context.Background(), "Escape")
	if err != nil || !consumed {
		t.Fatalf("Escape consumed=%v err=%v", consumed, err)
	}
	if f.s.Menu().State().Phase != assist.PhaseClosed || f.s.Coordinator().Active() != overlay.None {
		t.Fatal("escape should close the menu")
	}
	consumed, _ = f.s.Key(context.Background(), "Escape")
	if consumed {
		t.Fatal("escape with nothing open is not consumed")
	}
}

func TestShortcutSaves(t *testing.T) {
	f := newFixture(t, "", nil)
	f.s.Change("era uma vez", 11, 11, nil)
	if st := f.s.Autosave().State(); st.Status != autosave.StatusUnsaved {
		t.Fatalf("status = %v", st.Status)
	}
	consumed, err := f.s.Key(context.Background(), "Ctrl+S")
	if err != nil || !consumed {
		t.Fatalf("Ctrl+S consumed=%v err=%v", consumed, err)
	}
	if f.persist.count() != 1 {
		t.Fatalf("saves = %d", f.persist.count())
	}
	n, ok := f.rec.lastOf(NotifySaveState)
	if !ok || n.Data.(autosave.State).Status != autosave.StatusSaved {
		t.Fatalf("saveState notice = %+v", n)
	}
}

func TestDebouncedSaveWhileFocused(t *testing.T) {
	f := newFixture(t, "", nil)
	if err := f.s.Focus(context.Background(), true); err != nil {
		t.Fatal(err)
	}
	f.s.Change("era uma vez", 11, 11, nil)
	f.clk.Advance(5 * time.Second)
	if f.persist.count() != 1 {
		t.Fatalf("saves = %d, want 1", f.persist.count())
	}
}

func TestUnloadAndRecover(t *testing.T) {
	f := newFixture(t, "", nil)
	f.s.Change("hello world", 11, 11, nil)
	if !f.s.Unload(context.Background()) {
		t.Fatal("dirty chapter should ask before leaving")
	}
	if f.cache.m["ch-1"] != "hello world" {
		t.Fatalf("cache = %q", f.cache.m["ch-1"])
	}

	g := newFixture(t, "", nil)
	g.cache.m["ch-1"] = "hello world"
	ok, err := g.s.CheckRecoverable(context.Background())
	if err != nil || !ok {
		t.Fatalf("CheckRecoverable = %v, %v", ok, err)
	}
	n, _ := g.rec.lastOf(NotifyRecoverable)
	if n.Data.(Recoverable).Content != "hello world" {
		t.Fatalf("recoverable notice = %+v", n)
	}
	restored, err := g.s.Recover(context.Background(), true)
	if err != nil || !restored {
		t.Fatalf("Recover = %v, %v", restored, err)
	}
	if g.s.Document().Text() != "hello world" || g.persist.count() != 1 {
		t.Fatalf("text %q saves %d", g.s.Document().Text(), g.persist.count())
	}
	if _, ok := g.cache.m["ch-1"]; ok {
		t.Fatal("emergency copy should be removed")
	}
}

func TestCloseFlushes(t *testing.T) {
	f := newFixture(t, "", nil)
	f.s.Change("era uma vez", 11, 11, nil)
	if err := f.s.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.persist.count() != 1 {
		t.Fatalf("saves = %d, want 1", f.persist.count())
	}
	if err := f.s.Close(context.Background()); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestSuggestionNotices(t *testing.T) {
	f := newFixture(t, "", nil)
	f.s.Change("o personag", 10, 10, nil)
	n, ok := f.rec.lastOf(NotifySuggestions)
	if !ok {
		t.Fatal("no suggestions notice")
	}
	v := n.Data.(suggest.View)
	if !v.Visible || v.Token != "personag" {
		t.Fatalf("view = %+v", v)
	}
	if consumed, _ := f.s.Key(context.Background(), "Tab"); !consumed {
		t.Fatal("Tab should apply the highlighted suggestion")
	}
	if got := f.s.Document().Text(); !strings.HasPrefix(got, "o personagem") {
		t.Fatalf("text = %q", got)
	}
}

func TestManagerRefCounts(t *testing.T) {
	p := &memPersister{}
	_ = p.Save(context.Background(), "ch-2", autosave.Payload{Content: "stored text", WordCount: 2})
	m := NewManager(p, "text", Services{Persister: p, Cache: &memCache{m: map[string]string{}}, Clock: clock.NewFake(time.Unix(0, 0))}, Config{Logger: quiet})
	ctx := context.Background()

	a, err := m.Open(ctx, "ch-2")
	if err != nil {
		t.Fatal(err)
	}
	if a.Document().Text() != "stored text" {
		t.Fatalf("text = %q", a.Document().Text())
	}
	b, err := m.Open(ctx, "ch-2")
	if err != nil || a != b {
		t.Fatal("reopening returns the same session")
	}
	fresh, err := m.Open(ctx, "ch-new")
	if err != nil || fresh.Document().Text() != "" {
		t.Fatalf("missing chapters open empty: %v", err)
	}
	if got := m.IDs(); len(got) != 2 || got[0] != "ch-2" {
		t.Fatalf("IDs = %v", got)
	}

	if err := m.Release(ctx, "ch-2"); err != nil {
		t.Fatal(err)
	}
	if _, ok := m.Get("ch-2"); !ok {
		t.Fatal("session closed while still referenced")
	}
	if err := m.Release(ctx, "ch-2"); err != nil {
		t.Fatal(err)
	}
	if _, ok := m.Get("ch-2"); ok {
		t.Fatal("session should close with the last reference")
	}
	if err := m.CloseAll(ctx); err != nil {
		t.Fatal(err)
	}
	if m.Count() != 0 {
		t.Fatalf("Count = %d", m.Count())
	}
	if _, err := m.Open(ctx, ""); err == nil {
		t.Fatal("empty id should fail")
	}
}

// gatedPersister blocks every save until gate is closed.
type gatedPersister struct {
	*memPersister
	started chan struct{}
	gate    chan struct{}
	once    sync.Once
}

func (p *gatedPersister) Save(ctx context.Context, id string, pl autosave.Payload) error {
	p.once.Do(func() { close(p.started) })
	<-p.gate
	return p.memPersister.Save(ctx, id, pl)
}

func TestManagerReopenWaitsForClosingFlush(t *testing.T) {
	ctx := context.Background()
	p := &gatedPersister{memPersister: &memPersister{}, started: make(chan struct{}), gate: make(chan struct{})}
	_ = p.memPersister.Save(ctx, "ch-3", autosave.Payload{Content: "old text", WordCount: 2})
	m := NewManager(p, "text", Services{Persister: p, Cache: &memCache{m: map[string]string{}}, Clock: clock.NewFake(time.Unix(0, 0))}, Config{Logger: quiet})

	s, err := m.Open(ctx, "ch-3")
	if err != nil {
		t.Fatal(err)
	}
	const edited = "old text plus the newest edits"
	s.Change(edited, len(edited), len(edited), nil)

	released := make(chan error, 1)
	go func() { released <- m.Release(ctx, "ch-3") }()
	<-p.started

	reopened := make(chan *Session, 1)
	go func() {
		s, err := m.Open(ctx, "ch-3")
		if err != nil {
			t.Error(err)
		}
		reopened <- s
	}()

	select {
	case <-reopened:
		t.Fatal("Open returned while the previous session was still flushing")
	case <-time.After(20 * time.Millisecond):
	}
	if _, ok := m.Get("ch-3"); ok {
		t.Error("a closing session should not be returned by Get")
	}

	close(p.gate)
	if err := <-released; err != nil {
		t.Fatal(err)
	}
	again := <-reopened
	if again == nil || again == s {
		t.Fatal("expected a fresh session")
	}
	if got := again.Document().Text(); got != edited {
		t.Fatalf("reopened text = %q, want %q", got, edited)
	}
	if err := m.Release(ctx, "ch-3"); err != nil {
		t.Fatal(err)
	}
}

func TestManagerConcurrentOpenRelease(t *testing.T) {
	ctx := context.Background()
	p := &memPersister{}
	m := NewManager(p, "text", Services{Persister: p, Cache: &memCache{m: map[string]string{}}, Clock: clock.NewFake(time.Unix(0, 0))}, Config{Logger: quiet})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if _, err := m.Open(ctx, "ch-4"); err != nil {
					t.Error(err)
					return
				}
				if err := m.Release(ctx, "ch-4"); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()
	if m.Count() != 0 {
		t.Errorf("Count = %d after balanced open/release", m.Count())
	}
}
