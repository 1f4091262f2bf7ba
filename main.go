package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/odvcencio/folio/config"
)

func main() {
	cfgPath := flag.String("config", os.Getenv("FOLIO_CONFIG"), "path to the YAML configuration")
	addr := flag.String("addr", "", "listen address (overrides config)")
	mcpMode := flag.String("mcp", "", `MCP transport: "http" mounts /mcp on the web server, "stdio" serves on stdin/stdout`)
	flag.Parse()

	if err := run(*cfgPath, *addr, *mcpMode); err != nil {
		fmt.Fprintf(os.Stderr, "folio: %v\n", err)
		os.Exit(1)
	}
}

func run(cfgPath, addr, mcpMode string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Listen = addr
	}
	switch mcpMode {
	case "", "http", "stdio":
	default:
		return fmt.Errorf("unknown -mcp transport %q", mcpMode)
	}

	logger := newLogger(os.Stderr, cfg.Log, term.IsTerminal(int(os.Stderr.Fd())))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	if mcpMode == "stdio" {
		go func() {
			if err := a.ServeMCPStdio(ctx); err != nil && ctx.Err() == nil {
				logger.Error("mcp stdio", "error", err)
			}
			stop()
		}()
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           a.Handler(mcpMode == "http"),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info("folio listening", "addr", cfg.Listen, "store", cfg.Store.Driver, "cache", cfg.Cache.Driver)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newLogger builds the process logger. Logs go to stderr so stdout stays
// free for the MCP stdio transport; "auto" picks text on a terminal and
// JSON otherwise.
func newLogger(w io.Writer, lc config.LogConfig, tty bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(lc.Level)}
	format := lc.Format
	if format == "auto" || format == "" {
		format = "json"
		if tty {
			format = "text"
		}
	}
	if format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
