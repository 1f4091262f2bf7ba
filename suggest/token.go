package suggest

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r) ||
		r == '\'' || r == '’' || r == '-'
}

const edgePunct = "-'’"

// TokenAt returns the word under or immediately before cursor as the byte
// range [start, end). Leading and trailing hyphens and apostrophes are not
// part of the token.
func TokenAt(text string, cursor int) (start, end int, token string) {
	if cursor < 0 || cursor > len(text) {
		return cursor, cursor, ""
	}
	start = cursor
	for start > 0 {
		r, size := utf8.DecodeLastRuneInString(text[:start])
		if !isWordRune(r) {
			break
		}
		start -= size
	}
	end = cursor
	for end < len(text) {
		r, size := utf8.DecodeRuneInString(text[end:])
		if !isWordRune(r) {
			break
		}
		end += size
	}
	for start < end {
		r, size := utf8.DecodeRuneInString(text[start:end])
		if !strings.ContainsRune(edgePunct, r) {
			break
		}
		start += size
	}
	for end > start {
		r, size := utf8.DecodeLastRuneInString(text[start:end])
		if !strings.ContainsRune(edgePunct, r) {
			break
		}
		end -= size
	}
	return start, end, text[start:end]
}

// forEachWord calls fn for every word token in text.
func forEachWord(text string, fn func(start, end int, word string)) {
	i := 0
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		if !isWordRune(r) {
			i += size
			continue
		}
		start, end, word := TokenAt(text, i)
		if word != "" {
			fn(start, end, word)
		}
		// Skip the whole run, including any trimmed punctuation.
		j := i
		for j < len(text) {
			r, size := utf8.DecodeRuneInString(text[j:])
			if !isWordRune(r) {
				break
			}
			j += size
		}
		i = j
	}
}
