// Command folio-assistant serves the folio assistant protocol on stdin and
// stdout, answering from an OpenAI-compatible chat completions endpoint.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/odvcencio/folio/assist"
	"github.com/odvcencio/folio/assistant"
)

var version = "dev"

func main() {
	baseURL := flag.String("url", envOr("FOLIO_ASSISTANT_URL", "http://localhost:8000"), "chat completions base URL")
	model := flag.String("model", envOr("FOLIO_ASSISTANT_MODEL", ""), "model name")
	language := flag.String("language", envOr("FOLIO_ASSISTANT_LANGUAGE", "Portuguese"), "manuscript language")
	debug := flag.Bool("debug", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	// stdout carries the protocol.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	actions := make([]string, 0, len(assist.Actions))
	for _, a := range assist.Actions {
		actions = append(actions, string(a))
	}
	srv := &assistant.Server{
		Handler: &assistant.ChatHandler{
			BaseURL:  *baseURL,
			APIKey:   os.Getenv("FOLIO_ASSISTANT_KEY"),
			Model:    *model,
			Language: *language,
			Logger:   logger,
		},
		Info:   assistant.InitializeResult{Name: "folio-assistant", Version: version, Actions: actions},
		Logger: logger,
	}
	if err := srv.Serve(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "folio-assistant: %v\n", err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
