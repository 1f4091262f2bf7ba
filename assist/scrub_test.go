package assist

import "testing"

func TestScrub(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		want     string
		filtered bool
	}{
		{"plain", "The rain kept falling.", "The rain kept falling.", false},
		{"heading line", "Revised Text:\nThe rain kept falling.", "The rain kept falling.", true},
		{"inline heading", "**Revised Text:** The rain kept falling.", "The rain kept falling.", true},
		{"markdown heading", "## Texto revisado\n\nA chuva continuava.", "A chuva continuava.", true},
		{"delimiter", "The rain kept falling.\n---\nI changed the verb tense.", "The rain kept falling.", true},
		{"hash delimiter", "The rain kept falling.\n###\nNotes", "The rain kept falling.", true},
		{"comments section", "The rain kept falling.\n\nComments on the changes: tighter prose.", "The rain kept falling.", true},
		{"portuguese notes", "A chuva continuava.\nComentários: mudei o tempo verbal.", "A chuva continuava.", true},
		{"wrapped", "Revised Text:\n---\nThe rain kept falling.\n---\nExplanation: shorter.", "The rain kept falling.", true},
		{"word rewrite in prose", "Rewrite the past, she said.", "Rewrite the past, she said.", false},
		{"only scaffolding", "---\n", "---", false},
		{"empty", "  ", "", false},
		{"crlf", "First line.\r\nSecond line.", "First line.\nSecond line.", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, filtered := Scrub(tt.raw)
			if got != tt.want || filtered != tt.filtered {
				t.Errorf("Scrub(%q) = %q, %v; want %q, %v", tt.raw, got, filtered, tt.want, tt.filtered)
			}
		})
	}
}
