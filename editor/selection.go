package editor

// Selection represents a text selection as two byte offsets into buffer text.
// Base is where the selection started, Cursor is where it currently extends to.
type Selection struct {
	Base, Cursor int
}

// Active reports whether the selection covers a non-empty range.
func (s Selection) Active() bool {
	return s.Base != s.Cursor
}

// Ordered returns the selection bounds in ascending order (start, end).
func (s Selection) Ordered() (start, end int) {
	if s.Base <= s.Cursor {
		return s.Base, s.Cursor
	}
	return s.Cursor, s.Base
}

// Text extracts the selected substring from content.
func (s Selection) Text(content string) string {
	start, end := s.Ordered()
	if start < 0 {
		start = 0
	}
	if end > len(content) {
		end = len(content)
	}
	if start >= end {
		return ""
	}
	return content[start:end]
}

// Clamp limits both offsets to [0, length].
func (s Selection) Clamp(length int) Selection {
	return Selection{Base: clampInt(s.Base, 0, length), Cursor: clampInt(s.Cursor, 0, length)}
}

// Collapse returns a selection with both ends at the cursor.
func (s Selection) Collapse() Selection {
	return Selection{Base: s.Cursor, Cursor: s.Cursor}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
