// Package assistant talks to a writing-assistant process over JSON-RPC 2.0
// with Content-Length framing. The client implements both the suggestion
// service and the writing-assistant service.
package assistant

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/odvcencio/folio/assist"
	"github.com/odvcencio/folio/suggest"
)

// ErrClosed is returned for calls on a closed client or when the
// connection drops while a call is waiting.
var ErrClosed = errors.New("assistant: client closed")

// Options tunes a Client.
type Options struct {
	// RequestsPerSecond limits outgoing calls; 0 means unlimited.
	RequestsPerSecond float64
	Burst             int
	Logger            *slog.Logger
}

// Client manages a connection to an assistant process.
type Client struct {
	cmd     *exec.Cmd
	w       io.WriteCloser
	r       *bufio.Reader
	limiter *rate.Limiter
	logger  *slog.Logger

	writeMu sync.Mutex
	mu      sync.Mutex
	nextID  atomic.Int64
	pending map[int64]chan result
	notify  func(method string, params json.RawMessage)
	closed  atomic.Bool
	done    chan struct{}
}

type result struct {
	raw json.RawMessage
	err error
}

// NewConn returns a client speaking over an existing connection.
func NewConn(r io.Reader, w io.WriteCloser, opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	c := &Client{
		w:       w,
		r:       bufio.NewReader(r),
		limiter: rate.NewLimiter(limit, burst),
		logger:  opts.Logger,
		pending: make(map[int64]chan result),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// NewClient starts the assistant process and returns a Client connected to
// its stdin and stdout.
func NewClient(ctx context.Context, opts Options, command string, args ...string) (*Client, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("assistant: stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("assistant: stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		return nil, fmt.Errorf("assistant: start %s: %w", command, err)
	}
	c := NewConn(stdout, stdin, opts)
	c.cmd = cmd
	return c, nil
}

// SetNotifyHandler registers a callback for notifications from the
// assistant.
func (c *Client) SetNotifyHandler(fn func(method string, params json.RawMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notify = fn
}

// Done is closed when the connection is gone.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) readLoop() {
	defer c.cleanupPending()
	for {
		body, err := readFrame(c.r)
		if err != nil {
			if !errors.Is(err, io.EOF) && !c.closed.Load() {
				c.logger.Warn("assistant: read failed", "error", err)
			}
			return
		}
		var msg response
		if err := json.Unmarshal(body, &msg); err != nil {
			c.logger.Warn("assistant: malformed message", "error", err)
			continue
		}

		if msg.ID != nil && msg.Method == "" {
			c.mu.Lock()
			ch, ok := c.pending[*msg.ID]
			if ok {
				delete(c.pending, *msg.ID)
			}
			c.mu.Unlock()
			if ok {
				if msg.Error != nil {
					ch <- result{err: msg.Error}
				} else {
					ch <- result{raw: msg.Result}
				}
				close(ch)
			}
			continue
		}

		if msg.Method != "" {
			c.mu.Lock()
			fn := c.notify
			c.mu.Unlock()
			if fn != nil {
				fn(msg.Method, msg.Params)
			}
		}
	}
}

func (c *Client) cleanupPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.pending {
		close(ch)
	}
	c.pending = map[int64]chan result{}
	close(c.done)
}

func (c *Client) send(msg any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed.Load() {
		return ErrClosed
	}
	return writeFrame(c.w, msg)
}

// Call sends a request and waits for the reply. A cancelled context tells
// the assistant to drop the request.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	id := c.nextID.Add(1)
	ch := make(chan result, 1)

	c.mu.Lock()
	select {
	case <-c.done:
		c.mu.Unlock()
		return nil, ErrClosed
	default:
	}
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.send(outgoing{JSONRPC: "2.0", ID: &id, Method: method, Params: params}); err != nil {
		return nil, fmt.Errorf("assistant: send %s: %w", method, err)
	}

	select {
	case res, ok := <-ch:
		if !ok {
			return nil, ErrClosed
		}
		if res.err != nil {
			return nil, res.err
		}
		return res.raw, nil
	case <-ctx.Done():
		_ = c.Notify(MethodCancel, map[string]int64{"id": id})
		return nil, ctx.Err()
	}
}

// Notify sends a notification.
func (c *Client) Notify(method string, params any) error {
	return c.send(outgoing{JSONRPC: "2.0", Method: method, Params: params})
}

// Initialize introduces the client and returns the assistant's description.
func (c *Client) Initialize(ctx context.Context, p InitializeParams) (InitializeResult, error) {
	var out InitializeResult
	raw, err := c.Call(ctx, MethodInitialize, p)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("assistant: decode initialize: %w", err)
	}
	return out, nil
}

// Autocomplete implements suggest.Service.
func (c *Client) Autocomplete(ctx context.Context, req suggest.AutocompleteRequest) ([]string, error) {
	raw, err := c.Call(ctx, MethodAutocomplete, req)
	if err != nil {
		return nil, err
	}
	var out AutocompleteResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("assistant: decode autocomplete: %w", err)
	}
	return out.Suggestions, nil
}

// RunAction implements assist.Service.
func (c *Client) RunAction(ctx context.Context, req assist.ActionRequest) (string, error) {
	raw, err := c.Call(ctx, MethodRunAction, req)
	if err != nil {
		return "", err
	}
	var out ActionResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("assistant: decode action: %w", err)
	}
	return out.Content, nil
}

// Close shuts the connection and waits for the process, if any.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.writeMu.Lock()
	_ = c.w.Close()
	c.writeMu.Unlock()

	if c.cmd != nil {
		return c.cmd.Wait()
	}
	return nil
}
