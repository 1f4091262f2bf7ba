package overlay

import "github.com/mattn/go-runewidth"

// DefaultMargin keeps overlays this many pixels away from container edges.
const DefaultMargin = 10

// Rect is a pixel rectangle in viewport coordinates.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Right returns the x coordinate of the right edge.
func (r Rect) Right() float64 { return r.Left + r.Width }

// Bottom returns the y coordinate of the bottom edge.
func (r Rect) Bottom() float64 { return r.Top + r.Height }

// Empty reports whether r carries no geometry at all, which is how editors
// report the absence of a selection range.
func (r Rect) Empty() bool {
	return r == Rect{}
}

// Align selects how an overlay lines up with the selection rectangle.
type Align int

const (
	// AlignStart puts the overlay's left edge under the selection start.
	AlignStart Align = iota
	// AlignCenter centers the overlay under the selection.
	AlignCenter
)

// Placement carries the per-call layout inputs of Resolve.
type Placement struct {
	Width      float64 // assumed overlay width
	Gap        float64 // vertical distance below the selection
	Margin     float64 // 0 means DefaultMargin
	ScrollLeft float64
	ScrollTop  float64
	Align      Align
	Layer      *Rect // overlay-hosting layer; nil positions relative to the container
}

// Position is where an overlay renders, relative to its host.
type Position struct {
	Top   float64 `json:"top"`
	Left  float64 `json:"left"`
	Width float64 `json:"width"`
}

// Resolve translates the selection rectangle into host-relative coordinates
// and clamps it horizontally inside the container. It returns false when
// there is no selection range, in which case callers must not render.
func Resolve(sel, container Rect, p Placement) (Position, bool) {
	if sel.Empty() {
		return Position{}, false
	}
	margin := p.Margin
	if margin <= 0 {
		margin = DefaultMargin
	}
	origin := container
	if p.Layer != nil {
		origin = *p.Layer
	}

	top := sel.Bottom() - origin.Top + p.ScrollTop + p.Gap
	left := sel.Left - origin.Left + p.ScrollLeft
	if p.Align == AlignCenter {
		left += sel.Width/2 - p.Width/2
	}

	// Visible container edges expressed in the origin's scrolled content
	// coordinates, the same space as left.
	minLeft := container.Left - origin.Left + p.ScrollLeft + margin
	maxLeft := container.Left - origin.Left + p.ScrollLeft + container.Width - p.Width - margin
	if left > maxLeft {
		left = maxLeft
	}
	if left < minLeft {
		left = minLeft
	}
	return Position{Top: top, Left: left, Width: p.Width}, true
}

// EstimateWidth sizes a list overlay from the display width of its longest
// line. Wide runes count as two cells of charPx each.
func EstimateWidth(lines []string, charPx, padding, min, max float64) float64 {
	cells := 0
	for _, l := range lines {
		if w := runewidth.StringWidth(l); w > cells {
			cells = w
		}
	}
	w := float64(cells)*charPx + padding
	if w < min {
		w = min
	}
	if max > 0 && w > max {
		w = max
	}
	return w
}
