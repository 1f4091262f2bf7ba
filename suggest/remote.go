package suggest

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/odvcencio/folio/clock"
)

// AutocompleteRequest is sent to the remote suggestion service.
type AutocompleteRequest struct {
	Text           string `json:"text"`
	CursorOffset   int    `json:"cursorOffset"`
	MaxSuggestions int    `json:"maxSuggestions"`
}

// Service returns ranked continuations for text at a cursor offset.
type Service interface {
	Autocomplete(ctx context.Context, req AutocompleteRequest) ([]string, error)
}

// PendingFetch is one issued remote request.
type PendingFetch struct {
	RequestID    uint64
	QueryText    string
	CursorOffset int
}

// Sequencer hands out monotonically increasing request ids and tells whether
// an id is still the latest.
type Sequencer struct {
	mu     sync.Mutex
	latest uint64
}

// Next issues a new id, making every earlier id stale.
func (s *Sequencer) Next() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest++
	return s.latest
}

// Latest returns the most recently issued id.
func (s *Sequencer) Latest() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// Current reports whether id is the latest issued id.
func (s *Sequencer) Current(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return id == s.latest
}

// RemoteConfig tunes the remote strategy.
type RemoteConfig struct {
	Debounce       time.Duration // default 400ms
	MinLength      int           // minimum document length in runes, default 10
	MaxSuggestions int           // default 5
	Timeout        time.Duration // per request, default 10s
}

func (c *RemoteConfig) defaults() {
	if c.Debounce <= 0 {
		c.Debounce = 400 * time.Millisecond
	}
	if c.MinLength <= 0 {
		c.MinLength = 10
	}
	if c.MaxSuggestions <= 0 {
		c.MaxSuggestions = DefaultMaxResults
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
}

// RemoteStats counts remote traffic.
type RemoteStats struct {
	Issued  uint64 `json:"issued"`
	Applied uint64 `json:"applied"`
	Dropped uint64 `json:"dropped"`
	Failed  uint64 `json:"failed"`
}

// Remote debounces document changes into autocomplete requests and drops
// replies that were overtaken by a newer request. Requests already sent are
// never aborted; their replies are discarded instead.
type Remote struct {
	svc    Service
	cfg    RemoteConfig
	clock  clock.Clock
	logger *slog.Logger

	onResult func(PendingFetch, []string)
	onError  func(PendingFetch, error)

	seq    Sequencer
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	timer  clock.Timer
	closed bool

	issued, applied, dropped, failed atomic.Uint64
}

// NewRemote creates a Remote. onResult receives filtered, non-empty lists
// for current requests; onError receives failures of current requests.
// Both run on the fetching goroutine.
func NewRemote(svc Service, cfg RemoteConfig, clk clock.Clock, logger *slog.Logger,
	onResult func(PendingFetch, []string), onError func(PendingFetch, error)) *Remote {
	cfg.defaults()
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Remote{
		svc:      svc,
		cfg:      cfg,
		clock:    clk,
		logger:   logger,
		onResult: onResult,
		onError:  onError,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Schedule replaces any pending request with one for text at cursor. Every
// call invalidates replies to earlier requests. It reports false, without
// scheduling, when the text is shorter than the configured minimum or no
// service is configured.
func (r *Remote) Schedule(text string, cursor int) (PendingFetch, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
	id := r.seq.Next()
	if r.closed || r.svc == nil || utf8.RuneCountInString(text) < r.cfg.MinLength {
		return PendingFetch{}, false
	}
	p := PendingFetch{RequestID: id, QueryText: text, CursorOffset: cursor}
	r.timer = r.clock.AfterFunc(r.cfg.Debounce, func() { r.fire(p) })
	return p, true
}

// Cancel drops the pending request and invalidates in-flight replies.
func (r *Remote) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
	r.seq.Next()
}

// Current reports whether id belongs to the latest request.
func (r *Remote) Current(id uint64) bool {
	return r.seq.Current(id)
}

// Stats returns traffic counters.
func (r *Remote) Stats() RemoteStats {
	return RemoteStats{
		Issued:  r.issued.Load(),
		Applied: r.applied.Load(),
		Dropped: r.dropped.Load(),
		Failed:  r.failed.Load(),
	}
}

// Close stops scheduling, aborts in-flight requests and waits for them.
func (r *Remote) Close() {
	r.mu.Lock()
	r.closed = true
	r.stopLocked()
	r.mu.Unlock()
	r.cancel()
	r.wg.Wait()
}

func (r *Remote) stopLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *Remote) fire(p PendingFetch) {
	r.mu.Lock()
	if r.closed || !r.seq.Current(p.RequestID) {
		r.mu.Unlock()
		return
	}
	r.timer = nil
	r.wg.Add(1)
	r.mu.Unlock()

	r.issued.Add(1)
	go r.fetch(p)
}

func (r *Remote) fetch(p PendingFetch) {
	defer r.wg.Done()
	ctx, cancel := context.WithTimeout(r.ctx, r.cfg.Timeout)
	defer cancel()
	list, err := r.svc.Autocomplete(ctx, AutocompleteRequest{
		Text:           p.QueryText,
		CursorOffset:   p.CursorOffset,
		MaxSuggestions: r.cfg.MaxSuggestions,
	})
	r.deliver(p, list, err)
}

// deliver applies a reply if its request is still the latest.
func (r *Remote) deliver(p PendingFetch, list []string, err error) {
	if !r.seq.Current(p.RequestID) {
		r.dropped.Add(1)
		r.logger.Debug("suggest: stale reply dropped", "request_id", p.RequestID, "latest", r.seq.Latest())
		return
	}
	if err != nil {
		r.failed.Add(1)
		r.logger.Warn("suggest: autocomplete failed", "request_id", p.RequestID, "error", err)
		if r.onError != nil {
			r.onError(p, err)
		}
		return
	}
	filtered := FilterCommentary(list)
	if len(filtered) > r.cfg.MaxSuggestions {
		filtered = filtered[:r.cfg.MaxSuggestions]
	}
	if len(filtered) == 0 {
		r.logger.Debug("suggest: reply had no usable candidates", "request_id", p.RequestID, "raw", len(list))
		return
	}
	r.applied.Add(1)
	if r.onResult != nil {
		r.onResult(p, filtered)
	}
}
