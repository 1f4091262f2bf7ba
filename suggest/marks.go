package suggest

// Mark flags a word the dictionary can replace.
type Mark struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Word  string `json:"word"`
}

// Scan returns marks for every replaceable word in text, in order.
func Scan(d *Dictionary, text string) []Mark {
	var marks []Mark
	forEachWord(text, func(start, end int, word string) {
		if d.Replaceable(word) {
			marks = append(marks, Mark{Start: start, End: end, Word: word})
		}
	})
	return marks
}

// MarkAt returns the mark containing offset; both edges count as inside.
func MarkAt(marks []Mark, offset int) (Mark, bool) {
	for _, m := range marks {
		if offset >= m.Start && offset <= m.End {
			return m, true
		}
	}
	return Mark{}, false
}
