// Package web serves the browser editor: static assets, a chapter read
// endpoint and the WebSocket JSON-RPC bridge to chapter sessions.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/odvcencio/folio/store"
)

//go:embed static/*
var staticFS embed.FS

// ChapterReader reads stored chapters for the REST endpoint.
type ChapterReader interface {
	Get(ctx context.Context, id string) (store.Chapter, error)
}

// Server provides the HTTP and WebSocket endpoints.
type Server struct {
	sessions Sessions
	chapters ChapterReader
	logger   *slog.Logger
	upgrader websocket.Upgrader
	router   chi.Router

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

type rpcRequest struct {
	ID     any             `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	ID     any       `json:"id"`
	Result any       `json:"result,omitempty"`
	Error  *rpcError `json:"error,omitempty"`
}

type rpcNotification struct {
	Method string `json:"method"`
	Params any    `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

const (
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeFailed         = -32000
	codeNotOpen        = -32001
)

// NewServer creates a server. chapters may be nil, which disables the
// chapter endpoint.
func NewServer(sessions Sessions, chapters ChapterReader, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		sessions: sessions,
		chapters: chapters,
		logger:   logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*wsClient]struct{}),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "clients": s.Clients()})
	})
	r.Get("/api/chapters/{id}", s.handleChapter)
	r.Get("/ws", s.handleWebSocket)
	sub, err := fs.Sub(staticFS, "static")
	if err == nil {
		r.Handle("/*", http.FileServer(http.FS(sub)))
	}
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Clients returns the number of connected WebSocket clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) handleChapter(w http.ResponseWriter, r *http.Request) {
	if s.chapters == nil {
		writeError(w, http.StatusNotFound, errors.New("no chapter store"))
		return
	}
	ch, err := s.chapters.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		s.logger.Error("web: read chapter", "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("could not read chapter"))
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("web: websocket upgrade", "error", err)
		return
	}
	client := &wsClient{conn: conn}
	s.mu.Lock()
	s.clients[client] = struct{}{}
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	c := newConnection(s, client)
	defer func() {
		cancel()
		c.wait()
		c.closeAll(context.Background())
		conn.Close()
		s.mu.Lock()
		delete(s.clients, client)
		s.mu.Unlock()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req rpcRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			s.logger.Debug("web: malformed request", "error", err)
			continue
		}
		c.handle(ctx, req)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func failed(err error) *rpcError {
	return &rpcError{Code: codeFailed, Message: err.Error()}
}

func invalid(format string, args ...any) *rpcError {
	return &rpcError{Code: codeInvalidParams, Message: fmt.Sprintf(format, args...)}
}
