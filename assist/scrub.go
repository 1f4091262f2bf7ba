package assist

import (
	"regexp"
	"strings"
)

var (
	// leadHeading matches a title line the assistant puts above its answer,
	// optionally followed by the answer on the same line.
	leadHeading = regexp.MustCompile(`(?i)^\s*(?:#{1,6}\s*)?\**\s*(?:revised text|rewritten text|rewrite|expanded text|expanded version|summary|resumo|texto revisado|texto reescrito|texto expandido|versão revisada)\s*\**\s*(?::\s*\**|$)\s*`)
	delimiter   = regexp.MustCompile(`^\s*(?:-{3,}|\*{3,}|_{3,}|={3,}|#{3,}.*)\s*$`)
	trailer     = regexp.MustCompile(`(?i)^\s*\**\s*(comments? on|comentários|comentario|notes?:|notas?:|explanation:|explicação:|observações|changes made|alterações)`)
)

// Scrub removes scaffolding an assistant wraps around its answer: a leading
// heading such as "Revised Text:", and everything from the first delimiter
// line (---, ***, ###) or trailing commentary section onwards. It reports
// whether anything was removed. When scrubbing would leave nothing, the
// trimmed input is returned unfiltered.
func Scrub(raw string) (string, bool) {
	text := strings.TrimSpace(strings.ReplaceAll(raw, "\r\n", "\n"))
	if text == "" {
		return "", false
	}
	filtered := false

	lines := strings.Split(text, "\n")
	if loc := leadHeading.FindStringIndex(lines[0]); loc != nil {
		rest := strings.TrimSpace(lines[0][loc[1]:])
		if rest == "" {
			lines = lines[1:]
		} else {
			lines[0] = rest
		}
		filtered = true
	}

	for len(lines) > 0 && (strings.TrimSpace(lines[0]) == "" || delimiter.MatchString(lines[0])) {
		if delimiter.MatchString(lines[0]) {
			filtered = true
		}
		lines = lines[1:]
	}

	var kept []string
	for _, l := range lines {
		if delimiter.MatchString(l) || trailer.MatchString(l) {
			filtered = true
			break
		}
		kept = append(kept, l)
	}

	out := strings.TrimSpace(strings.Join(kept, "\n"))
	if out == "" {
		return text, false
	}
	return out, filtered
}
