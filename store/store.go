// Package store holds the persistence collaborators of folio: chapter
// stores (SQLite, PostgreSQL) and emergency caches (bbolt, Redis).
package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a chapter or key does not exist.
var ErrNotFound = errors.New("store: not found")

// Chapter is the stored state of one document.
type Chapter struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	WordCount int       `json:"wordCount"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Revision is one saved version of a chapter.
type Revision struct {
	ID        string    `json:"id"`
	ChapterID string    `json:"chapterId"`
	Content   string    `json:"content"`
	WordCount int       `json:"wordCount"`
	CreatedAt time.Time `json:"createdAt"`
}
