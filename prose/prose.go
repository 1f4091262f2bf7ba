// Package prose projects serialized chapter content onto plain text and
// measures it.
package prose

import (
	"bytes"
	"encoding/json"
	"html"
	"strings"
	"unicode"

	"github.com/clipperhouse/uax29/v2/words"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rivo/uniseg"
	"github.com/yuin/goldmark"
)

// Serialization formats understood by Plain.
const (
	FormatText     = "text"
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
	FormatJSON     = "json"
)

// KnownFormat reports whether Plain understands format.
func KnownFormat(format string) bool {
	switch format {
	case FormatText, FormatMarkdown, FormatHTML, FormatJSON:
		return true
	}
	return false
}

var strict = func() *bluemonday.Policy {
	p := bluemonday.StrictPolicy()
	p.AddSpaceWhenStrippingTag(true)
	return p
}()

var md = goldmark.New()

// Plain returns the plain-text projection of content. Unknown formats are
// treated as text.
func Plain(content, format string) string {
	switch format {
	case FormatHTML:
		return stripHTML(content)
	case FormatMarkdown:
		var buf bytes.Buffer
		if err := md.Convert([]byte(content), &buf); err != nil {
			return content
		}
		return stripHTML(buf.String())
	case FormatJSON:
		return jsonText(content)
	default:
		return content
	}
}

func stripHTML(s string) string {
	text := html.UnescapeString(strict.Sanitize(s))
	return collapseSpace(text)
}

// collapseSpace trims each line and drops blank lines left behind by
// stripped block tags.
func collapseSpace(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		l = strings.Join(strings.Fields(l), " ")
		if l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

// jsonText walks a rich-text document tree (nodes with "text" leaves and
// "content" children) and joins block texts with newlines.
func jsonText(content string) string {
	var doc any
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		return content
	}
	var blocks []string
	var cur strings.Builder
	var walk func(v any)
	walk = func(v any) {
		switch n := v.(type) {
		case map[string]any:
			if t, ok := n["text"].(string); ok {
				cur.WriteString(t)
			}
			children, ok := n["content"].([]any)
			if !ok {
				return
			}
			leafParent := true
			for _, c := range children {
				if m, ok := c.(map[string]any); ok {
					if _, has := m["content"]; has {
						leafParent = false
					}
				}
			}
			for _, c := range children {
				walk(c)
			}
			if leafParent && cur.Len() > 0 {
				blocks = append(blocks, cur.String())
				cur.Reset()
			}
		case []any:
			for _, c := range n {
				walk(c)
			}
		}
	}
	walk(doc)
	if cur.Len() > 0 {
		blocks = append(blocks, cur.String())
	}
	return strings.Join(blocks, "\n")
}

// WordCount counts Unicode words (UAX #29) containing at least one letter
// or digit.
func WordCount(text string) int {
	n := 0
	tokens := words.FromString(text)
	for tokens.Next() {
		if isWord(tokens.Value()) {
			n++
		}
	}
	return n
}

func isWord(tok string) bool {
	for _, r := range tok {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// DropLastGrapheme removes the final user-perceived character of s.
func DropLastGrapheme(s string) string {
	last := 0
	g := uniseg.NewGraphemes(s)
	for g.Next() {
		last, _ = g.Positions()
	}
	return s[:last]
}
