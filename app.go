package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/odvcencio/folio/assist"
	"github.com/odvcencio/folio/assistant"
	"github.com/odvcencio/folio/autosave"
	"github.com/odvcencio/folio/clock"
	"github.com/odvcencio/folio/config"
	"github.com/odvcencio/folio/mcptools"
	"github.com/odvcencio/folio/session"
	"github.com/odvcencio/folio/store"
	"github.com/odvcencio/folio/suggest"
	"github.com/odvcencio/folio/web"
)

const version = "0.1.0"

// chapterStore is a chapter backend: sqlite or postgres.
type chapterStore interface {
	autosave.Persister
	session.Loader
	Close() error
}

// app owns every long-lived component of the server.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	store     chapterStore
	cache     autosave.Cache
	closeDB   []func() error
	assistant *assistant.Client
	dict      *suggest.Dictionary
	sessions  *session.Manager
	web       *web.Server
	mcp       *mcp.Server
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (a *app, err error) {
	a = &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close(context.Background())
			a = nil
		}
	}()

	if err = a.openStore(ctx); err != nil {
		return a, err
	}
	if err = a.openCache(ctx); err != nil {
		return a, err
	}
	if a.dict, err = loadDictionary(cfg.Suggest.Dictionary); err != nil {
		return a, err
	}
	if err = a.startAssistant(ctx); err != nil {
		return a, err
	}

	svc := session.Services{
		Dictionary: a.dict,
		Persister:  a.store,
		Cache:      a.cache,
		Clock:      clock.Real(),
	}
	// Leave the interfaces nil without an assistant so the menu reports
	// assist.ErrUnavailable and the remote strategy stays off.
	if a.assistant != nil {
		svc.Suggest = a.assistant
		svc.Actions = a.assistant
	}
	a.sessions = session.NewManager(a.store, cfg.Format, svc, sessionConfig(cfg, logger))
	a.web = web.NewServer(a.sessions, a.store, logger)

	a.mcp = mcp.NewServer(&mcp.Implementation{Name: "folio", Version: version}, nil)
	mcptools.NewRegistry(a.dict, a.access()).Register(a.mcp)
	return a, nil
}

func sessionConfig(cfg *config.Config, logger *slog.Logger) session.Config {
	return session.Config{
		Suggest: suggest.Config{
			MinTokenLength: cfg.Suggest.MinTokenLength,
			Remote: suggest.RemoteConfig{
				Debounce:       cfg.Suggest.RemoteDebounce,
				MinLength:      cfg.Suggest.RemoteMinLength,
				MaxSuggestions: cfg.Suggest.MaxSuggestions,
				Timeout:        cfg.Suggest.RemoteTimeout,
			},
		},
		Menu: assist.Config{
			MinChars:   cfg.Menu.MinChars,
			MinWords:   cfg.Menu.MinWords,
			Timeout:    cfg.Menu.Timeout,
			FocusAreas: cfg.Menu.FocusAreas,
		},
		Autosave: autosave.Config{
			Debounce:      cfg.Autosave.Debounce,
			FlushInterval: cfg.Autosave.FlushInterval,
			SaveTimeout:   cfg.Autosave.SaveTimeout,
		},
		Logger: logger,
	}
}

func (a *app) openStore(ctx context.Context) error {
	switch a.cfg.Store.Driver {
	case "postgres":
		var pg *store.Postgres
		err := a.retry(ctx, "postgres", func() error {
			var err error
			pg, err = store.OpenPostgres(ctx, a.cfg.Store.PostgresURL)
			return err
		})
		if err != nil {
			return err
		}
		a.store = pg
	default:
		db, err := store.OpenSQLite(a.cfg.Store.SQLitePath, store.WithKeepRevisions(a.cfg.Store.KeepRevisions))
		if err != nil {
			return err
		}
		a.store = db
	}
	a.closeDB = append(a.closeDB, a.store.Close)
	return nil
}

func (a *app) openCache(ctx context.Context) error {
	switch a.cfg.Cache.Driver {
	case "none":
		return nil
	case "redis":
		var rc *store.RedisCache
		err := a.retry(ctx, "redis", func() error {
			var err error
			rc, err = store.OpenRedisCache(ctx, a.cfg.Cache.RedisAddr, a.cfg.Cache.RedisPrefix, a.cfg.Cache.RedisTTL)
			return err
		})
		if err != nil {
			return err
		}
		a.cache = rc
		a.closeDB = append(a.closeDB, rc.Close)
	default:
		bc, err := store.OpenBoltCache(a.cfg.Cache.BoltPath)
		if err != nil {
			return err
		}
		a.cache = bc
		a.closeDB = append(a.closeDB, bc.Close)
	}
	return nil
}

// retry dials a backend with exponential backoff until ConnectTimeout.
func (a *app) retry(ctx context.Context, what string, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = a.cfg.ConnectTimeout
	err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		a.logger.Warn("backend not ready", "backend", what, "retry_in", wait, "error", err)
	})
	if err != nil {
		return fmt.Errorf("connect %s: %w", what, err)
	}
	return nil
}

func loadDictionary(path string) (*suggest.Dictionary, error) {
	dict := suggest.DefaultDictionary()
	if path == "" {
		return dict, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dictionary: %w", err)
	}
	defer f.Close()
	entries, err := suggest.LoadEntries(f)
	if err != nil {
		return nil, err
	}
	dict.Merge(entries)
	return dict, nil
}

func (a *app) startAssistant(ctx context.Context) error {
	ac := a.cfg.Assistant
	if ac.Command == "" {
		a.logger.Info("no assistant configured; remote suggestions and selection actions are off")
		return nil
	}
	client, err := assistant.NewClient(ctx, assistant.Options{
		RequestsPerSecond: ac.RequestsPerSecond,
		Burst:             ac.Burst,
		Logger:            a.logger.With("component", "assistant"),
	}, ac.Command, ac.Args...)
	if err != nil {
		return err
	}
	initCtx, cancel := context.WithTimeout(ctx, a.cfg.ConnectTimeout)
	defer cancel()
	info, err := client.Initialize(initCtx, assistant.InitializeParams{ClientName: "folio"})
	if err != nil {
		_ = client.Close()
		return fmt.Errorf("assistant initialize: %w", err)
	}
	a.logger.Info("assistant ready", "name", info.Name, "version", info.Version, "actions", info.Actions)
	a.assistant = client
	return nil
}

// Handler returns the HTTP handler, optionally with the MCP endpoint
// mounted at /mcp.
func (a *app) Handler(withMCP bool) http.Handler {
	if !withMCP {
		return a.web
	}
	r := chi.NewRouter()
	h := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return a.mcp }, nil)
	r.Handle("/mcp", h)
	r.Handle("/mcp/*", h)
	r.Mount("/", a.web)
	return r
}

// ServeMCPStdio serves the MCP tools on stdin/stdout until ctx ends.
func (a *app) ServeMCPStdio(ctx context.Context) error {
	return a.mcp.Run(ctx, &mcp.StdioTransport{})
}

// Close flushes every open chapter and releases backends in reverse order.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.sessions != nil {
		errs = append(errs, a.sessions.CloseAll(ctx))
	}
	if a.assistant != nil {
		errs = append(errs, a.assistant.Close())
	}
	for i := len(a.closeDB) - 1; i >= 0; i-- {
		errs = append(errs, a.closeDB[i]())
	}
	a.closeDB = nil
	err := errors.Join(errs...)
	if err != nil {
		a.logger.Warn("shutdown", "error", err)
	}
	return err
}

func (a *app) access() mcptools.Access {
	base := appAccess{sessions: a.sessions, store: a.store}
	if rr, ok := a.store.(mcptools.RevisionReader); ok {
		return revisionAccess{appAccess: base, RevisionReader: rr}
	}
	return base
}

// appAccess lets the MCP tools read live save state and stored chapters.
type appAccess struct {
	sessions *session.Manager
	store    session.Loader
}

func (x appAccess) SaveState(chapterID string) (autosave.State, bool) {
	s, ok := x.sessions.Get(chapterID)
	if !ok {
		return autosave.State{}, false
	}
	return s.Autosave().State(), true
}

func (x appAccess) Chapter(ctx context.Context, id string) (store.Chapter, error) {
	return x.store.Get(ctx, id)
}

type revisionAccess struct {
	appAccess
	mcptools.RevisionReader
}
