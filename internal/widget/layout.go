package widget

import (
	"net/url"
	"strings"

	"github.com/lotas/laterread/internal/reltime"
	"github.com/lotas/laterread/internal/types"
)

// Sizes in terminal cells.
const (
	TriggerW = 7
	TriggerH = 3
	ItemW    = 7
	ItemH    = 3

	tooltipMaxText = 48
	tooltipGap     = 1
)

// Point is a cell position; Y grows downwards.
type Point struct{ X, Y int }

// Rect is a cell rectangle.
type Rect struct{ X, Y, W, H int }

// Contains reports whether p lies inside r.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X < r.X+r.W && p.Y >= r.Y && p.Y < r.Y+r.H
}

// Tooltip describes the hovered item beside its button.
type Tooltip struct {
	Item  types.SavedItem
	Rect  Rect
	Lines []string
}

func (w *Widget) triggerRect() Rect {
	return Rect{w.pos.X, w.pos.Y, TriggerW, TriggerH}
}

// closeCell is the trigger's top-right corner.
func (w *Widget) closeCell() Point {
	return Point{w.pos.X + TriggerW - 1, w.pos.Y}
}

// itemRect places item i in the stack. The last item sits next to the
// trigger in both directions.
func (w *Widget) itemRect(i int) Rect {
	n := len(w.items)
	y := w.pos.Y + TriggerH + (n-1-i)*ItemH
	if w.dir == Up {
		y = w.pos.Y - (n-i)*ItemH
	}
	return Rect{w.pos.X, y, ItemW, ItemH}
}

// Contains reports whether p hits the widget: the trigger, or an item
// button while expanded.
func (w *Widget) Contains(p Point) bool {
	if w.state == Absent {
		return false
	}
	if w.triggerRect().Contains(p) {
		return true
	}
	if w.state == Expanded {
		for i := range w.items {
			if w.itemRect(i).Contains(p) {
				return true
			}
		}
	}
	return false
}

// buildTooltip lays out the tooltip for item i: to the left of the button,
// vertically centred, flipped to the right when it would leave the
// viewport, and finally clamped inside it.
func (w *Widget) buildTooltip(i int) *Tooltip {
	item := w.items[i]
	lines := []string{
		truncate(item.DisplayTitle(), tooltipMaxText),
		truncate(item.URL, tooltipMaxText),
		"saved " + reltime.SinceMillis(w.now(), item.Timestamp),
	}
	width := 0
	for _, l := range lines {
		width = max(width, len([]rune(l)))
	}
	width += 4 // border and padding
	height := len(lines) + 2

	anchor := w.itemRect(i)
	r := Rect{
		X: anchor.X - width - tooltipGap,
		Y: anchor.Y + (anchor.H-height)/2,
		W: width,
		H: height,
	}
	if r.X < 0 {
		r.X = anchor.X + anchor.W + tooltipGap
	}
	if w.viewport.X > 0 && r.X+r.W > w.viewport.X {
		r.X = w.viewport.X - r.W
	}
	if w.viewport.Y > 0 && r.Y+r.H > w.viewport.Y {
		r.Y = w.viewport.Y - r.H
	}
	r.X = max(r.X, 0)
	r.Y = max(r.Y, 0)
	return &Tooltip{Item: item, Rect: r, Lines: lines}
}

// iconLabel stands in for a favicon: the first letters of the host.
func iconLabel(item types.SavedItem) string {
	u, err := url.Parse(item.URL)
	if err != nil || u.Hostname() == "" {
		return "•"
	}
	host := strings.TrimPrefix(u.Hostname(), "www.")
	r := []rune(host)
	if len(r) > ItemW-4 {
		r = r[:ItemW-4]
	}
	return string(r)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
