// Package editor holds the in-process model of an open chapter: its text,
// selection, anchors, layout geometry reported by the browser, and change
// notifications.
package editor

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/odvcencio/folio/overlay"
)

// ErrRange is returned for edits outside the document.
var ErrRange = errors.New("editor: range out of bounds")

// Anchor identifies a document position independent of pixel layout: a
// paragraph node and a byte offset inside it.
type Anchor struct {
	NodeID string `json:"nodeId"`
	Offset int    `json:"offset"`
}

// SelectionInfo describes the current selection.
type SelectionInfo struct {
	Collapsed bool   `json:"collapsed"`
	Text      string `json:"text"`
	Start     int    `json:"start"`
	End       int    `json:"end"`
	Cursor    int    `json:"cursor"`
	Anchor    Anchor `json:"anchor"`
}

// Geometry is the layout the browser reports alongside selection changes.
type Geometry struct {
	Selection  overlay.Rect  `json:"selection"`
	Root       overlay.Rect  `json:"root"`
	ScrollLeft float64       `json:"scrollLeft"`
	ScrollTop  float64       `json:"scrollTop"`
	Layer      *overlay.Rect `json:"layer,omitempty"`
}

type subscriber struct {
	id int
	fn func()
}

// Document is one open chapter. Listeners run synchronously on the goroutine
// that mutated the document, after the document's lock is released, change
// listeners before selection listeners, each in registration order.
type Document struct {
	mu       sync.Mutex
	id       string
	format   string
	buf      *Buffer
	sel      Selection
	hasSel   bool
	geom     Geometry
	version  uint64
	nextSub  int
	onChange []subscriber
	onSelect []subscriber
}

// NewDocument creates a document with the given id, serialization format
// and initial text.
func NewDocument(id, format, text string) *Document {
	return &Document{id: id, format: format, buf: NewBuffer(text)}
}

// ID returns the document identifier.
func (d *Document) ID() string { return d.id }

// Format returns the serialization format of Content.
func (d *Document) Format() string { return d.format }

// Text returns the current text.
func (d *Document) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.buf.Text()
}

// Content returns the serialized document. The text is stored in its
// serialization format, so this is the text itself.
func (d *Document) Content() string {
	return d.Text()
}

// Version increments on every content mutation.
func (d *Document) Version() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.version
}

// Selection returns the current selection, or false when the editor reports
// no selection at all.
func (d *Document) Selection() (SelectionInfo, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.hasSel {
		return SelectionInfo{}, false
	}
	text := d.buf.Text()
	start, end := d.sel.Ordered()
	return SelectionInfo{
		Collapsed: !d.sel.Active(),
		Text:      d.sel.Text(text),
		Start:     start,
		End:       end,
		Cursor:    d.sel.Cursor,
		Anchor:    anchorAt(text, d.sel.Base),
	}, true
}

// Select sets the selection and notifies selection listeners.
func (d *Document) Select(base, cursor int) {
	d.mu.Lock()
	d.sel = Selection{Base: base, Cursor: cursor}.Clamp(d.buf.Len())
	d.hasSel = true
	d.mu.Unlock()
	d.emit(false, true)
}

// ClearSelection records that the editor has no selection.
func (d *Document) ClearSelection() {
	d.mu.Lock()
	changed := d.hasSel
	d.hasSel = false
	d.mu.Unlock()
	if changed {
		d.emit(false, true)
	}
}

// SetText replaces the whole text.
func (d *Document) SetText(text string) {
	d.mu.Lock()
	if d.buf.Text() == text {
		d.mu.Unlock()
		return
	}
	d.buf.SetText(text)
	d.version++
	d.sel = d.sel.Clamp(d.buf.Len())
	d.mu.Unlock()
	d.emit(true, false)
}

// Update applies a browser edit: the new full text and the selection after
// the edit. Listeners only hear about what actually changed.
func (d *Document) Update(text string, base, cursor int) {
	d.mu.Lock()
	changed := d.buf.Text() != text
	if changed {
		d.buf.SetText(text)
		d.version++
	}
	sel := Selection{Base: base, Cursor: cursor}.Clamp(d.buf.Len())
	selChanged := !d.hasSel || sel != d.sel || changed
	d.sel = sel
	d.hasSel = true
	d.mu.Unlock()
	d.emit(changed, selChanged)
}

// ReplaceRange replaces [start, end) with text and collapses the selection
// after the inserted text.
func (d *Document) ReplaceRange(start, end int, text string) error {
	d.mu.Lock()
	if start < 0 || end < start || end > d.buf.Len() {
		d.mu.Unlock()
		return fmt.Errorf("%w: [%d,%d) of %d", ErrRange, start, end, d.buf.Len())
	}
	d.buf.Replace(Range{Start: start, End: end}, text)
	d.version++
	pos := start + len(text)
	d.sel = Selection{Base: pos, Cursor: pos}
	d.hasSel = true
	d.mu.Unlock()
	d.emit(true, true)
	return nil
}

// ReplaceSelection replaces the selected text.
func (d *Document) ReplaceSelection(text string) error {
	d.mu.Lock()
	start, end := d.sel.Ordered()
	d.mu.Unlock()
	return d.ReplaceRange(start, end, text)
}

// Undo reverts the last edit.
func (d *Document) Undo() bool {
	return d.history((*Buffer).Undo)
}

// Redo reapplies the last undone edit.
func (d *Document) Redo() bool {
	return d.history((*Buffer).Redo)
}

func (d *Document) history(step func(*Buffer) (int, bool)) bool {
	d.mu.Lock()
	pos, ok := step(d.buf)
	if ok {
		d.version++
		d.sel = Selection{Base: pos, Cursor: pos}
	}
	d.mu.Unlock()
	if ok {
		d.emit(true, true)
	}
	return ok
}

// SetGeometry records the layout reported by the browser.
func (d *Document) SetGeometry(g Geometry) {
	d.mu.Lock()
	d.geom = g
	d.mu.Unlock()
}

// Geometry returns the last reported layout.
func (d *Document) Geometry() Geometry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.geom
}

// OnChange registers fn for content changes.
func (d *Document) OnChange(fn func()) (cancel func()) {
	return d.subscribe(&d.onChange, fn)
}

// OnSelectionChange registers fn for selection changes.
func (d *Document) OnSelectionChange(fn func()) (cancel func()) {
	return d.subscribe(&d.onSelect, fn)
}

func (d *Document) subscribe(list *[]subscriber, fn func()) func() {
	d.mu.Lock()
	d.nextSub++
	id := d.nextSub
	*list = append(*list, subscriber{id: id, fn: fn})
	d.mu.Unlock()
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		for i, s := range *list {
			if s.id == id {
				*list = append((*list)[:i], (*list)[i+1:]...)
				return
			}
		}
	}
}

func (d *Document) emit(change, selection bool) {
	d.mu.Lock()
	var fns []func()
	if change {
		for _, s := range d.onChange {
			fns = append(fns, s.fn)
		}
	}
	if selection {
		for _, s := range d.onSelect {
			fns = append(fns, s.fn)
		}
	}
	d.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// AnchorAt converts an absolute offset into a paragraph anchor.
func (d *Document) AnchorAt(offset int) Anchor {
	d.mu.Lock()
	defer d.mu.Unlock()
	return anchorAt(d.buf.Text(), offset)
}

// OffsetOf resolves an anchor against the current text. It returns false if
// the paragraph no longer exists or is shorter than the anchor's offset.
func (d *Document) OffsetOf(a Anchor) (int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return offsetOf(d.buf.Text(), a)
}

func anchorAt(text string, offset int) Anchor {
	offset = clampInt(offset, 0, len(text))
	para := strings.Count(text[:offset], "\n")
	start := strings.LastIndexByte(text[:offset], '\n') + 1
	return Anchor{NodeID: "p" + strconv.Itoa(para), Offset: offset - start}
}

func offsetOf(text string, a Anchor) (int, bool) {
	if !strings.HasPrefix(a.NodeID, "p") || a.Offset < 0 {
		return 0, false
	}
	para, err := strconv.Atoi(a.NodeID[1:])
	if err != nil || para < 0 {
		return 0, false
	}
	start := 0
	for i := 0; i < para; i++ {
		nl := strings.IndexByte(text[start:], '\n')
		if nl < 0 {
			return 0, false
		}
		start += nl + 1
	}
	end := len(text)
	if nl := strings.IndexByte(text[start:], '\n'); nl >= 0 {
		end = start + nl
	}
	if start+a.Offset > end {
		return 0, false
	}
	return start + a.Offset, true
}
