package suggest

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// metaPhrases mark assistant replies that talk about the text instead of
// continuing it.
var metaPhrases = []string{
	"based on your text",
	"based on the text",
	"here are",
	"here is",
	"i suggest",
	"i would suggest",
	"you could",
	"you might",
	"as an ai",
	"suggestion:",
	"suggestions:",
	"continuation:",
	"com base no seu texto",
	"com base no texto",
	"aqui estão",
	"aqui está",
	"sugiro",
	"você pode",
	"sugestão:",
	"sugestões:",
	"continuação:",
}

var (
	listPrefix  = regexp.MustCompile(`^\s*(\d+[.)]|[-*•])\s+`)
	metaLead    = regexp.MustCompile(`^\p{Lu}\p{L}*(\s\p{L}+){0,2}:\s`)
	sentenceEnd = regexp.MustCompile(`[.!?](\s|$)`)
)

// maxSuggestionRunes bounds what still reads as a literal continuation.
const maxSuggestionRunes = 200

// LooksLikeCommentary reports whether s reads like commentary about the
// text rather than a literal continuation of it.
func LooksLikeCommentary(s string) bool {
	t := strings.TrimSpace(s)
	if t == "" {
		return true
	}
	lower := strings.ToLower(t)
	for _, p := range metaPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	switch {
	case strings.Contains(t, "\n"),
		strings.HasPrefix(t, "#"),
		strings.Contains(t, "**"),
		listPrefix.MatchString(t),
		metaLead.MatchString(t),
		utf8.RuneCountInString(t) > maxSuggestionRunes,
		len(sentenceEnd.FindAllStringIndex(t, -1)) > 2:
		return true
	}
	return false
}

// FilterCommentary trims wrapping quotes from each candidate and drops
// commentary and duplicates, preserving order.
func FilterCommentary(list []string) []string {
	out := make([]string, 0, len(list))
	seen := make(map[string]bool, len(list))
	for _, s := range list {
		s = trimQuotes(strings.TrimSpace(s))
		if LooksLikeCommentary(s) || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func trimQuotes(s string) string {
	pairs := [][2]string{{`"`, `"`}, {"“", "”"}, {"«", "»"}, {"'", "'"}}
	for _, p := range pairs {
		if len(s) >= len(p[0])+len(p[1]) && strings.HasPrefix(s, p[0]) && strings.HasSuffix(s, p[1]) {
			return strings.TrimSpace(s[len(p[0]) : len(s)-len(p[1])])
		}
	}
	return s
}
