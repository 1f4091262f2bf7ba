package editor

// Range represents a byte range [Start, End) within buffer text.
type Range struct {
	Start, End int
}

// editOp records a single edit for undo/redo support.
type editOp struct {
	offset  int
	oldText string
	newText string
}

// Buffer holds the text of one chapter with undo/redo history.
type Buffer struct {
	text      string
	undoStack []editOp
	redoStack []editOp
}

// NewBuffer creates a buffer holding text. The initial text is not undoable.
func NewBuffer(text string) *Buffer {
	return &Buffer{text: text}
}

// Text returns the current text content of the buffer.
func (b *Buffer) Text() string {
	return b.text
}

// Len returns the text length in bytes.
func (b *Buffer) Len() int {
	return len(b.text)
}

// SetText replaces the whole text as a single undoable edit. The common
// prefix and suffix are kept out of the recorded edit so history stays small
// when a client resends the full document on every keystroke.
func (b *Buffer) SetText(text string) {
	if text == b.text {
		return
	}
	start := commonPrefix(b.text, text)
	end := commonSuffix(b.text[start:], text[start:])
	b.ApplyEdit(start, b.text[start:len(b.text)-end], text[start:len(text)-end])
}

// ApplyEdit records the edit on the undo stack, clears the redo stack,
// and applies the edit to the buffer text. The edit replaces the text at
// [offset, offset+len(oldText)) with newText.
func (b *Buffer) ApplyEdit(offset int, oldText, newText string) {
	b.undoStack = append(b.undoStack, editOp{
		offset:  offset,
		oldText: oldText,
		newText: newText,
	})
	b.redoStack = nil
	b.text = b.text[:offset] + newText + b.text[offset+len(oldText):]
}

// Replace replaces the text in r with replacement, recording the edit.
func (b *Buffer) Replace(r Range, replacement string) {
	b.ApplyEdit(r.Start, b.text[r.Start:r.End], replacement)
}

// Undo reverses the last edit. Returns the offset just after the restored
// text and true, or false if the undo stack is empty.
func (b *Buffer) Undo() (int, bool) {
	if len(b.undoStack) == 0 {
		return 0, false
	}
	op := b.undoStack[len(b.undoStack)-1]
	b.undoStack = b.undoStack[:len(b.undoStack)-1]
	b.text = b.text[:op.offset] + op.oldText + b.text[op.offset+len(op.newText):]
	b.redoStack = append(b.redoStack, op)
	return op.offset + len(op.oldText), true
}

// Redo reapplies the last undone edit. Returns the offset just after the
// reinserted text and true, or false if the redo stack is empty.
func (b *Buffer) Redo() (int, bool) {
	if len(b.redoStack) == 0 {
		return 0, false
	}
	op := b.redoStack[len(b.redoStack)-1]
	b.redoStack = b.redoStack[:len(b.redoStack)-1]
	b.text = b.text[:op.offset] + op.newText + b.text[op.offset+len(op.oldText):]
	b.undoStack = append(b.undoStack, op)
	return op.offset + len(op.newText), true
}

func commonPrefix(a, b string) int {
	n := min(len(a), len(b))
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

func commonSuffix(a, b string) int {
	n := min(len(a), len(b))
	i := 0
	for i < n && a[len(a)-1-i] == b[len(b)-1-i] {
		i++
	}
	return i
}
