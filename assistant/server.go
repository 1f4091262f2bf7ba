package assistant

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/odvcencio/folio/assist"
	"github.com/odvcencio/folio/suggest"
)

// Handler answers assistant requests.
type Handler interface {
	Autocomplete(ctx context.Context, req suggest.AutocompleteRequest) ([]string, error)
	RunAction(ctx context.Context, req assist.ActionRequest) (string, error)
}

// Server is the process side of the protocol.
type Server struct {
	Handler Handler
	Info    InitializeResult
	Logger  *slog.Logger
}

// Serve reads requests from r and writes replies to w until r ends or ctx
// is cancelled. Requests are handled concurrently.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		writeMu  sync.Mutex
		mu       sync.Mutex
		inflight = make(map[int64]context.CancelFunc)
		wg       sync.WaitGroup
	)
	write := func(msg any) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := writeFrame(w, msg); err != nil {
			logger.Warn("assistant: write failed", "error", err)
		}
	}
	defer wg.Wait()

	br := bufio.NewReader(r)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		body, err := readFrame(br)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		var req request
		if err := json.Unmarshal(body, &req); err != nil {
			write(reply{JSONRPC: "2.0", Error: &RPCError{Code: CodeParseError, Message: err.Error()}})
			continue
		}

		if req.Method == MethodCancel {
			var p struct {
				ID int64 `json:"id"`
			}
			if json.Unmarshal(req.Params, &p) == nil {
				mu.Lock()
				if c, ok := inflight[p.ID]; ok {
					c()
				}
				mu.Unlock()
			}
			continue
		}
		if req.ID == nil {
			continue
		}

		id := *req.ID
		reqCtx, reqCancel := context.WithCancel(ctx)
		mu.Lock()
		inflight[id] = reqCancel
		mu.Unlock()

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				mu.Lock()
				delete(inflight, id)
				mu.Unlock()
				reqCancel()
			}()
			res, rpcErr := s.dispatch(reqCtx, req)
			if rpcErr != nil {
				write(reply{JSONRPC: "2.0", ID: id, Error: rpcErr})
				return
			}
			write(reply{JSONRPC: "2.0", ID: id, Result: res})
		}()
	}
}

func (s *Server) dispatch(ctx context.Context, req request) (any, *RPCError) {
	switch req.Method {
	case MethodInitialize:
		return s.Info, nil
	case MethodAutocomplete:
		var p suggest.AutocompleteRequest
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, &RPCError{Code: CodeInvalidParams, Message: err.Error()}
		}
		list, err := s.Handler.Autocomplete(ctx, p)
		if err != nil {
			return nil, &RPCError{Code: CodeInternalError, Message: err.Error()}
		}
		if list == nil {
			list = []string{}
		}
		return AutocompleteResult{Suggestions: list}, nil
	case MethodRunAction:
		var p assist.ActionRequest
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, &RPCError{Code: CodeInvalidParams, Message: err.Error()}
		}
		if _, err := assist.ParseAction(string(p.Action)); err != nil {
			return nil, &RPCError{Code: CodeInvalidParams, Message: err.Error()}
		}
		content, err := s.Handler.RunAction(ctx, p)
		if err != nil {
			return nil, &RPCError{Code: CodeInternalError, Message: err.Error()}
		}
		return ActionResult{Content: content}, nil
	default:
		return nil, &RPCError{Code: CodeMethodNotFound, Message: "method not found: " + req.Method}
	}
}
