package web

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/odvcencio/folio/assist"
	"github.com/odvcencio/folio/editor"
	"github.com/odvcencio/folio/session"
	"github.com/odvcencio/folio/suggest"
)

// Sessions opens and releases chapter sessions.
type Sessions interface {
	Open(ctx context.Context, chapterID string) (*session.Session, error)
	Release(ctx context.Context, chapterID string) error
}

// params carries the arguments of every bridge method; each method reads
// the fields it needs.
type params struct {
	ChapterID    string           `json:"chapterId"`
	Text         string           `json:"text"`
	Base         int              `json:"base"`
	Cursor       int              `json:"cursor"`
	Geometry     *editor.Geometry `json:"geometry,omitempty"`
	Key          string           `json:"key"`
	Focused      bool             `json:"focused"`
	InsideEditor bool             `json:"insideEditor"`
	Index        int              `json:"index"`
	Offset       int              `json:"offset"`
	Action       string           `json:"action"`
	Command      string           `json:"command"`
	Accept       bool             `json:"accept"`
}

// OpenResult is the reply to open.
type OpenResult struct {
	ChapterID string `json:"chapterId"`
	Text      string `json:"text"`
	Format    string `json:"format"`
	SaveState any    `json:"saveState"`
	Commands  any    `json:"commands"`
}

// connection is one browser WebSocket and the chapters it has open.
type connection struct {
	srv    *Server
	client *wsClient
	wg     sync.WaitGroup

	mu   sync.Mutex
	open map[string]*openChapter
}

type openChapter struct {
	s     *session.Session
	unsub func()
}

func newConnection(srv *Server, client *wsClient) *connection {
	return &connection{srv: srv, client: client, open: make(map[string]*openChapter)}
}

func (c *connection) wait() { c.wg.Wait() }

func (c *connection) notify(method string, p any) {
	if err := c.client.write(rpcNotification{Method: method, Params: p}); err != nil {
		c.srv.logger.Debug("web: notify failed", "method", method, "error", err)
	}
}

func (c *connection) reply(id any, result any, rerr *rpcError) {
	if id == nil {
		return
	}
	if err := c.client.write(rpcResponse{ID: id, Result: result, Error: rerr}); err != nil {
		c.srv.logger.Debug("web: reply failed", "error", err)
	}
}

func (c *connection) session(id string) (*session.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	oc, ok := c.open[id]
	if !ok {
		return nil, false
	}
	return oc.s, true
}

// handle runs one request. Requests that wait on the assistant run on
// their own goroutine so edits keep flowing while they are pending.
func (c *connection) handle(ctx context.Context, req rpcRequest) {
	var p params
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &p); err != nil {
			c.reply(req.ID, nil, invalid("%v", err))
			return
		}
	}
	switch req.Method {
	case "runAction", "command":
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			res, rerr := c.dispatch(ctx, req.Method, p)
			c.reply(req.ID, res, rerr)
		}()
	default:
		res, rerr := c.dispatch(ctx, req.Method, p)
		c.reply(req.ID, res, rerr)
	}
}

func (c *connection) dispatch(ctx context.Context, method string, p params) (any, *rpcError) {
	switch method {
	case "open":
		return c.openChapter(ctx, p.ChapterID)
	case "close":
		if err := c.closeChapter(ctx, p.ChapterID); err != nil {
			return nil, failed(err)
		}
		return map[string]string{"status": "closed"}, nil
	}

	s, ok := c.session(p.ChapterID)
	if !ok {
		return nil, &rpcError{Code: codeNotOpen, Message: "chapter not open: " + p.ChapterID}
	}
	switch method {
	case "change":
		s.Change(p.Text, p.Base, p.Cursor, p.Geometry)
		return map[string]any{"version": s.Document().Version()}, nil
	case "select":
		s.Select(p.Base, p.Cursor, p.Geometry)
		return map[string]string{"status": "ok"}, nil
	case "key":
		consumed, err := s.Key(ctx, p.Key)
		if err != nil {
			return nil, failed(err)
		}
		return map[string]bool{"consumed": consumed}, nil
	case "focus":
		if err := s.Focus(ctx, p.Focused); err != nil {
			return nil, failed(err)
		}
		return map[string]any{"saveState": s.Autosave().State()}, nil
	case "click":
		s.Click(p.InsideEditor)
		return map[string]string{"status": "ok"}, nil
	case "applySuggestion":
		if err := s.Suggestions().Apply(p.Index); err != nil {
			return nil, failed(err)
		}
		return map[string]string{"text": s.Document().Text()}, nil
	case "openDictionary":
		return map[string]bool{"opened": s.Suggestions().OpenDictionary(p.Offset)}, nil
	case "runAction":
		action, err := assist.ParseAction(p.Action)
		if err != nil {
			return nil, invalid("%v", err)
		}
		if err := s.Menu().Run(ctx, action); err != nil {
			return nil, failed(err)
		}
		return s.Menu().State(), nil
	case "toggleOriginal":
		if err := s.Menu().ToggleOriginal(); err != nil {
			return nil, failed(err)
		}
		return s.Menu().State(), nil
	case "applyResult":
		if err := s.Menu().Apply(); err != nil {
			return nil, failed(err)
		}
		return map[string]string{"text": s.Document().Text()}, nil
	case "cancelResult":
		s.Menu().Cancel()
		return s.Menu().State(), nil
	case "command":
		if err := s.Command(ctx, p.Command); err != nil {
			return nil, failed(err)
		}
		return map[string]string{"status": "ok"}, nil
	case "save":
		if err := s.Autosave().Save(ctx); err != nil {
			return nil, failed(err)
		}
		return s.Autosave().State(), nil
	case "unload":
		return map[string]bool{"confirm": s.Unload(ctx)}, nil
	case "recover":
		restored, err := s.Recover(ctx, p.Accept)
		if err != nil {
			return nil, failed(err)
		}
		return map[string]bool{"restored": restored}, nil
	case "suggestions":
		return s.Suggestions().View(), nil
	case "marks":
		return map[string][]suggest.Mark{"marks": s.Suggestions().Marks()}, nil
	default:
		return nil, &rpcError{Code: codeMethodNotFound, Message: "unknown method: " + method}
	}
}

func (c *connection) openChapter(ctx context.Context, id string) (any, *rpcError) {
	if id == "" {
		return nil, invalid("chapterId is required")
	}
	c.mu.Lock()
	oc, already := c.open[id]
	c.mu.Unlock()
	if !already {
		s, err := c.srv.sessions.Open(ctx, id)
		if err != nil {
			return nil, failed(err)
		}
		oc = &openChapter{s: s, unsub: s.Subscribe(c.notify)}
		c.mu.Lock()
		c.open[id] = oc
		c.mu.Unlock()
		if _, err := s.CheckRecoverable(ctx); err != nil {
			c.srv.logger.Warn("web: emergency cache read failed", "chapter", id, "error", err)
		}
	}
	doc := oc.s.Document()
	return OpenResult{
		ChapterID: id,
		Text:      doc.Text(),
		Format:    doc.Format(),
		SaveState: oc.s.Autosave().State(),
		Commands:  oc.s.Commands(),
	}, nil
}

func (c *connection) closeChapter(ctx context.Context, id string) error {
	c.mu.Lock()
	oc, ok := c.open[id]
	delete(c.open, id)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	oc.unsub()
	return c.srv.sessions.Release(ctx, id)
}

func (c *connection) closeAll(ctx context.Context) {
	c.mu.Lock()
	ids := make([]string, 0, len(c.open))
	for id := range c.open {
		ids = append(ids, id)
	}
	c.mu.Unlock()
	var errs []error
	for _, id := range ids {
		if err := c.closeChapter(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		c.srv.logger.Warn("web: closing chapters", "error", err)
	}
}
