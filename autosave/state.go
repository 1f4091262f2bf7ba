// Package autosave tracks whether a document has unsaved changes and
// persists it through a debounced save, a periodic safety flush, an
// unload-time emergency cache and startup recovery.
package autosave

import (
	"context"
	"fmt"
	"time"
)

// Status is the save indicator shown to the user.
type Status int

const (
	StatusUnsaved Status = iota
	StatusSaving
	StatusSaved
	StatusError
)

var statusNames = [...]string{"unsaved", "saving", "saved", "error"}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusNames[s]
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// State is the save state of one open document. Dirty is always
// LastSeen != LastSaved.
type State struct {
	Status    Status    `json:"status"`
	LastSaved string    `json:"-"`
	LastSeen  string    `json:"-"`
	Dirty     bool      `json:"dirty"`
	WordCount int       `json:"wordCount"`
	SavedAt   time.Time `json:"savedAt,omitzero"`
	Error     string    `json:"error,omitempty"`
}

// Payload is what gets persisted.
type Payload struct {
	Content   string `json:"content"`
	WordCount int    `json:"wordCount"`
}

// Persister stores document content.
type Persister interface {
	Save(ctx context.Context, id string, p Payload) error
}

// Cache is a durable local key/value store for emergency copies.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Document is the part of the editor the engine reads and restores.
type Document interface {
	ID() string
	Content() string
	Format() string
	SetText(text string)
}
