package commands

import (
	"context"
	"errors"
	"testing"
)

func TestAllCommandsSkipsNil(t *testing.T) {
	noop := func(context.Context) error { return nil }
	table := AllCommands(Actions{Save: noop, Undo: noop})
	if len(table) != 2 {
		t.Fatalf("len = %d, want 2", len(table))
	}
	if _, ok := table.Find("assist.rewrite"); ok {
		t.Error("rewrite should be absent without a callback")
	}
}

func TestRunDispatches(t *testing.T) {
	var saved int
	table := AllCommands(Actions{Save: func(context.Context) error { saved++; return nil }})
	if err := table.Run(context.Background(), "chapter.save"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if saved != 1 {
		t.Errorf("saved = %d, want 1", saved)
	}
	if err := table.Run(context.Background(), "chapter.delete"); !errors.Is(err, ErrUnknown) {
		t.Errorf("expected ErrUnknown, got %v", err)
	}
}

func TestByShortcut(t *testing.T) {
	noop := func(context.Context) error { return nil }
	table := AllCommands(Actions{Save: noop, Undo: noop, Redo: noop})

	tests := []struct {
		chord string
		want  string
		ok    bool
	}{
		{"Ctrl+S", "chapter.save", true},
		{"ctrl+s", "chapter.save", true},
		{"Meta+Z", "edit.undo", true},
		{"Shift+Ctrl+Z", "edit.redo", true},
		{"Ctrl+Alt+R", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		c, ok := table.ByShortcut(tt.chord)
		if ok != tt.ok || c.ID != tt.want {
			t.Errorf("ByShortcut(%q) = %q, %v; want %q, %v", tt.chord, c.ID, ok, tt.want, tt.ok)
		}
	}
}
