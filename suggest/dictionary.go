// Package suggest produces inline text suggestions from a local term table
// and from a debounced remote completion service.
package suggest

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/odvcencio/folio/prose"
)

// DefaultMaxResults caps every lookup result.
const DefaultMaxResults = 5

// minSimilarity is the lowest positional similarity accepted as a match.
const minSimilarity = 0.4

// Entry is one row of a term table.
type Entry struct {
	Term         string   `yaml:"term" json:"term"`
	Alternatives []string `yaml:"alternatives" json:"alternatives"`
}

// Dictionary maps normalized terms to ordered alternatives. Lookups for
// unknown tokens synthesize candidates and remember them.
type Dictionary struct {
	mu         sync.Mutex
	keys       []string
	table      map[string][]string
	learned    map[string]bool
	maxResults int
	suffix     string
}

// NewDictionary builds a dictionary from entries, in order. Later entries
// with the same normalized term replace earlier ones in place.
func NewDictionary(entries []Entry) *Dictionary {
	d := &Dictionary{
		table:      make(map[string][]string),
		learned:    make(map[string]bool),
		maxResults: DefaultMaxResults,
		suffix:     "mente",
	}
	d.Merge(entries)
	return d
}

// DefaultDictionary returns a dictionary holding the built-in writing
// vocabulary.
func DefaultDictionary() *Dictionary {
	return NewDictionary(builtinEntries)
}

// LoadEntries decodes a YAML list of entries.
func LoadEntries(r io.Reader) ([]Entry, error) {
	var entries []Entry
	if err := yaml.NewDecoder(r).Decode(&entries); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("suggest: decode dictionary: %w", err)
	}
	for i, e := range entries {
		if strings.TrimSpace(e.Term) == "" {
			return nil, fmt.Errorf("suggest: dictionary entry %d has no term", i)
		}
	}
	return entries, nil
}

// Merge adds or replaces entries.
func (d *Dictionary) Merge(entries []Entry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, e := range entries {
		key := Normalize(e.Term)
		if key == "" {
			continue
		}
		if _, ok := d.table[key]; !ok {
			d.keys = append(d.keys, key)
		}
		d.table[key] = dedupe(e.Alternatives, 0)
		delete(d.learned, key)
	}
}

// Len returns the number of terms, including learned ones.
func (d *Dictionary) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.keys)
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lowercases s and strips diacritics.
func Normalize(s string) string {
	lower := strings.ToLower(strings.TrimSpace(s))
	out, _, err := transform.String(stripMarks, lower)
	if err != nil {
		return lower
	}
	return out
}

// Lookup returns up to five alternatives for token:
// an exact match, else the key sharing the longest prefix relation, else the
// most positionally similar key (at least 0.4), else synthesized candidates
// which are remembered for later lookups.
func (d *Dictionary) Lookup(token string) []string {
	key := Normalize(token)
	if key == "" {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if alts, ok := d.table[key]; ok {
		return dedupe(alts, d.maxResults)
	}
	if best := d.bestPrefix(key); best != "" {
		return dedupe(d.table[best], d.maxResults)
	}
	if best := d.bestSimilar(key); best != "" {
		return dedupe(d.table[best], d.maxResults)
	}

	alts := dedupe(d.synthesize(token), d.maxResults)
	d.keys = append(d.keys, key)
	d.table[key] = alts
	d.learned[key] = true
	return append([]string(nil), alts...)
}

// Alternatives returns the alternatives of an exact term, without any
// fallback.
func (d *Dictionary) Alternatives(word string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return dedupe(d.table[Normalize(word)], d.maxResults)
}

// Replaceable reports whether word is a listed term whose own spelling is
// not among its alternatives, such as a missing accent.
func (d *Dictionary) Replaceable(word string) bool {
	key := Normalize(word)
	d.mu.Lock()
	defer d.mu.Unlock()
	alts, ok := d.table[key]
	if !ok || d.learned[key] || len(alts) == 0 {
		return false
	}
	lower := strings.ToLower(word)
	for _, a := range alts {
		if strings.ToLower(a) == lower {
			return false
		}
	}
	return true
}

// bestPrefix scores keys that prefix key, or that key prefixes, by the
// shared length. Ties go to the earlier key. Caller holds d.mu.
func (d *Dictionary) bestPrefix(key string) string {
	best, score := "", 0
	for _, k := range d.keys {
		shared := 0
		switch {
		case strings.HasPrefix(k, key):
			shared = len(key)
		case strings.HasPrefix(key, k):
			shared = len(k)
		}
		if shared > score {
			best, score = k, shared
		}
	}
	return best
}

// bestSimilar picks the key with the highest fraction of positionally equal
// runes. Caller holds d.mu.
func (d *Dictionary) bestSimilar(key string) string {
	best, score := "", 0.0
	for _, k := range d.keys {
		if s := similarity(key, k); s >= minSimilarity && s > score {
			best, score = k, s
		}
	}
	return best
}

func similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longer := max(len(ra), len(rb))
	if longer == 0 {
		return 0
	}
	same := 0
	for i := 0; i < min(len(ra), len(rb)); i++ {
		if ra[i] == rb[i] {
			same++
		}
	}
	return float64(same) / float64(longer)
}

var title = cases.Title(language.Und)

func (d *Dictionary) synthesize(token string) []string {
	t := strings.ToLower(strings.TrimSpace(token))
	var out []string
	if trimmed := prose.DropLastGrapheme(t); trimmed != "" {
		out = append(out, trimmed)
	}
	out = append(out, t+"s", title.String(t), t+d.suffix)
	return out
}

// dedupe drops empty and repeated entries and caps the result when limit > 0.
// It always returns a fresh slice.
func dedupe(list []string, limit int) []string {
	seen := make(map[string]bool, len(list))
	out := make([]string, 0, len(list))
	for _, s := range list {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
