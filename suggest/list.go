package suggest

// Source tells where a suggestion came from.
type Source int

const (
	SourceLocal Source = iota
	SourceRemote
)

func (s Source) String() string {
	if s == SourceRemote {
		return "remote"
	}
	return "local"
}

// MarshalText encodes the source by name.
func (s Source) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Suggestion is one candidate replacement or continuation.
type Suggestion struct {
	Text   string `json:"text"`
	Source Source `json:"source"`
	Rank   int    `json:"rank"`
}

func fromStrings(list []string, src Source) []Suggestion {
	out := make([]Suggestion, len(list))
	for i, s := range list {
		out[i] = Suggestion{Text: s, Source: src, Rank: i}
	}
	return out
}

// List is a displayed suggestion list with a highlighted entry.
type List struct {
	items []Suggestion
	index int
}

// Set replaces the list and highlights the first entry.
func (l *List) Set(items []Suggestion) {
	l.items = items
	l.index = 0
}

// Reset empties the list.
func (l *List) Reset() {
	l.items = nil
	l.index = 0
}

// Len returns the number of entries.
func (l *List) Len() int { return len(l.items) }

// Index returns the highlighted position.
func (l *List) Index() int { return l.index }

// Items returns a copy of the entries.
func (l *List) Items() []Suggestion {
	return append([]Suggestion(nil), l.items...)
}

// Next moves the highlight down, wrapping to the top.
func (l *List) Next() {
	if len(l.items) > 0 {
		l.index = (l.index + 1) % len(l.items)
	}
}

// Prev moves the highlight up, wrapping to the bottom.
func (l *List) Prev() {
	if len(l.items) > 0 {
		l.index = (l.index - 1 + len(l.items)) % len(l.items)
	}
}

// Current returns the highlighted entry.
func (l *List) Current() (Suggestion, bool) {
	if len(l.items) == 0 {
		return Suggestion{}, false
	}
	return l.items[l.index], true
}
