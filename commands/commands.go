// Package commands lists the editor commands a chapter session exposes to
// the browser's palette and keyboard shortcuts.
package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrUnknown is returned for a command id or shortcut with no binding.
var ErrUnknown = errors.New("commands: unknown command")

// Command is one palette entry.
type Command struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Shortcut string `json:"shortcut,omitempty"`
	Category string `json:"category"`

	run func(ctx context.Context) error
}

// Actions holds callbacks for all chapter commands. Nil callbacks leave the
// command out of the table.
type Actions struct {
	Save      func(ctx context.Context) error
	Undo      func(ctx context.Context) error
	Redo      func(ctx context.Context) error
	Rewrite   func(ctx context.Context) error
	Expand    func(ctx context.Context) error
	Summarize func(ctx context.Context) error
	Dismiss   func(ctx context.Context) error
}

// Table is an ordered command list.
type Table []Command

// AllCommands returns the full command list for the palette.
func AllCommands(a Actions) Table {
	all := []Command{
		{ID: "chapter.save", Label: "Save Chapter", Shortcut: "Ctrl+S", Category: "Chapter", run: a.Save},
		{ID: "edit.undo", Label: "Undo", Shortcut: "Ctrl+Z", Category: "Edit", run: a.Undo},
		{ID: "edit.redo", Label: "Redo", Shortcut: "Ctrl+Shift+Z", Category: "Edit", run: a.Redo},
		{ID: "assist.rewrite", Label: "Rewrite Selection", Shortcut: "Ctrl+Alt+R", Category: "Assist", run: a.Rewrite},
		{ID: "assist.expand", Label: "Expand Selection", Shortcut: "Ctrl+Alt+E", Category: "Assist", run: a.Expand},
		{ID: "assist.summarize", Label: "Summarize Selection", Shortcut: "Ctrl+Alt+S", Category: "Assist", run: a.Summarize},
		{ID: "overlay.dismiss", Label: "Dismiss Overlay", Category: "View", run: a.Dismiss},
	}
	t := make(Table, 0, len(all))
	for _, c := range all {
		if c.run != nil {
			t = append(t, c)
		}
	}
	return t
}

// Find returns the command with the given id.
func (t Table) Find(id string) (Command, bool) {
	for _, c := range t {
		if c.ID == id {
			return c, true
		}
	}
	return Command{}, false
}

// ByShortcut returns the command bound to a key chord. Matching ignores case
// and the order of modifiers.
func (t Table) ByShortcut(chord string) (Command, bool) {
	want := normalizeChord(chord)
	if want == "" {
		return Command{}, false
	}
	for _, c := range t {
		if c.Shortcut != "" && normalizeChord(c.Shortcut) == want {
			return c, true
		}
	}
	return Command{}, false
}

// Run executes the command with the given id.
func (t Table) Run(ctx context.Context, id string) error {
	c, ok := t.Find(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknown, id)
	}
	return c.Run(ctx)
}

// Run executes the command.
func (c Command) Run(ctx context.Context) error {
	if c.run == nil {
		return fmt.Errorf("%w: %s", ErrUnknown, c.ID)
	}
	return c.run(ctx)
}

func normalizeChord(chord string) string {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(chord)), "+")
	if len(parts) == 0 || parts[len(parts)-1] == "" {
		return ""
	}
	key := parts[len(parts)-1]
	var mods [4]bool
	for _, p := range parts[:len(parts)-1] {
		switch strings.TrimSpace(p) {
		case "ctrl", "control", "cmd", "meta":
			mods[0] = true
		case "alt", "option":
			mods[1] = true
		case "shift":
			mods[2] = true
		default:
			mods[3] = true
		}
	}
	var b strings.Builder
	for i, name := range []string{"ctrl+", "alt+", "shift+", "?+"} {
		if mods[i] {
			b.WriteString(name)
		}
	}
	b.WriteString(key)
	return b.String()
}
