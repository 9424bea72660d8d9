// Package widget is the floating "read later" menu shown on a page. It is
// a state machine over terminal cells: the host feeds it pointer events and
// the item list, and draws the blocks it lays out.
package widget

import (
	"context"
	"fmt"
	"time"

	"github.com/lotas/laterread/internal/applog"
	"github.com/lotas/laterread/internal/types"
)

// State of a widget instance.
type State int

const (
	Absent State = iota
	Collapsed
	Expanded
)

func (s State) String() string {
	switch s {
	case Collapsed:
		return "collapsed"
	case Expanded:
		return "expanded"
	default:
		return "absent"
	}
}

// Direction the item stack opens in, relative to the trigger.
type Direction int

const (
	Down Direction = iota
	Up
)

// DefaultThreshold is how far the pointer may move between press and
// release for the press to still count as a click.
const DefaultThreshold = 5

// Backend is what the widget needs from the coordinator.
type Backend interface {
	List(ctx context.Context) ([]types.SavedItem, error)
	Open(ctx context.Context, item types.SavedItem) error
	Remove(ctx context.Context, id string) error
}

type target int

const (
	targetNone target = iota
	targetTrigger
	targetClose
	targetItem
)

// interaction is the pointer gesture in progress and the outside-click
// handler installed while expanded. It belongs to one widget instance.
type interaction struct {
	pressed bool
	target  target
	item    int
	start   Point
	last    Point
	moved   bool
	outside func()
}

// Widget is one floating menu.
type Widget struct {
	backend   Backend
	threshold int
	now       func() time.Time

	state    State
	dir      Direction
	items    []types.SavedItem
	pos      Point // trigger top-left
	placed   bool
	viewport Point
	hoverTrg bool
	hover    int
	tooltip  *Tooltip
	inter    interaction
}

// Option customises a Widget.
type Option func(*Widget)

// WithThreshold sets the click-versus-drag threshold in cells.
func WithThreshold(n int) Option { return func(w *Widget) { w.threshold = n } }

// WithClock overrides the time source for tooltip ages.
func WithClock(now func() time.Time) Option { return func(w *Widget) { w.now = now } }

// New returns an absent widget.
func New(backend Backend, opts ...Option) *Widget {
	w := &Widget{
		backend:   backend,
		threshold: DefaultThreshold,
		now:       time.Now,
		hover:     -1,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

func (w *Widget) State() State { return w.state }

func (w *Widget) Direction() Direction { return w.dir }

func (w *Widget) Position() Point { return w.pos }

func (w *Widget) Tooltip() *Tooltip { return w.tooltip }

func (w *Widget) Count() int { return len(w.items) }

func (w *Widget) Items() []types.SavedItem { return w.items }

// Resize records the viewport size. The first known size places the
// widget at its home position near the bottom-left corner.
func (w *Widget) Resize(width, height int) {
	w.viewport = Point{width, height}
	if !w.placed && width > 0 && height > 0 {
		w.pos = Point{X: 2, Y: max(height-TriggerH-1, 0)}
		w.placed = true
	}
}

// Sync reconciles the widget with the current item list: an empty list
// removes it, a non-empty list creates it if absent or refreshes it.
func (w *Widget) Sync(items []types.SavedItem) {
	if len(items) == 0 {
		if w.state != Absent {
			applog.Info("widget.removed", "reason", "empty")
		}
		w.remove()
		return
	}
	w.items = append(w.items[:0:0], items...)
	if w.state == Absent {
		w.state = Collapsed
		applog.Info("widget.created", "items", len(items))
	}
	w.hover = -1
	w.tooltip = nil
}

// Close removes the widget until the next Sync with items.
func (w *Widget) Close() {
	applog.Info("widget.removed", "reason", "closed")
	w.remove()
}

func (w *Widget) remove() {
	w.state = Absent
	w.items = nil
	w.tooltip = nil
	w.hover = -1
	w.hoverTrg = false
	w.inter = interaction{}
}

// Toggle flips between collapsed and expanded. The direction is decided
// anew on every expansion from where the trigger is now.
func (w *Widget) Toggle() {
	switch w.state {
	case Collapsed:
		w.expand()
	case Expanded:
		w.collapse()
	}
}

func (w *Widget) expand() {
	// Trigger centre below the viewport midpoint opens upwards.
	if 2*w.pos.Y+TriggerH > w.viewport.Y {
		w.dir = Up
	} else {
		w.dir = Down
	}
	w.state = Expanded
	w.inter.outside = w.collapse
}

func (w *Widget) collapse() {
	if w.state == Expanded {
		w.state = Collapsed
	}
	w.inter.outside = nil
	w.tooltip = nil
	w.hover = -1
}

// Press starts a pointer gesture at p.
func (w *Widget) Press(p Point) {
	if w.state == Absent {
		return
	}
	if w.inter.outside != nil && !w.Contains(p) {
		w.inter.outside()
		return
	}

	w.inter.pressed = true
	w.inter.start, w.inter.last = p, p
	w.inter.moved = false
	w.inter.target, w.inter.item = w.hit(p)
}

// Motion moves the pointer. With the trigger pressed the widget follows
// the pointer without any clamping; otherwise hover state is updated.
func (w *Widget) Motion(p Point) {
	if w.state == Absent {
		return
	}
	if w.inter.pressed {
		if w.inter.target == targetTrigger {
			w.pos.X += p.X - w.inter.last.X
			w.pos.Y += p.Y - w.inter.last.Y
			w.inter.last = p
			if abs(p.X-w.inter.start.X) > w.threshold || abs(p.Y-w.inter.start.Y) > w.threshold {
				w.inter.moved = true
			}
		}
		return
	}
	w.hoverAt(p)
}

// Release ends the gesture. It returns the item to activate when the
// gesture was a click on an item.
func (w *Widget) Release(p Point) (types.SavedItem, bool) {
	if w.state == Absent || !w.inter.pressed {
		return types.SavedItem{}, false
	}
	in := w.inter
	w.inter.pressed = false
	w.inter.target = targetNone

	tgt, idx := w.hit(p)
	switch in.target {
	case targetTrigger:
		if !in.moved {
			w.Toggle()
		}
	case targetClose:
		if tgt == targetClose {
			w.Close()
			return types.SavedItem{}, false
		}
	case targetItem:
		if tgt == targetItem && idx == in.item && idx < len(w.items) {
			return w.items[idx], true
		}
	}
	w.hoverAt(p)
	return types.SavedItem{}, false
}

// Activate opens item, removes it and returns the refreshed list for Sync.
func (w *Widget) Activate(ctx context.Context, item types.SavedItem) ([]types.SavedItem, error) {
	if err := w.backend.Open(ctx, item); err != nil {
		return nil, fmt.Errorf("open %s: %w", item.URL, err)
	}
	if err := w.backend.Remove(ctx, item.ID); err != nil {
		return nil, fmt.Errorf("remove %s: %w", item.ID, err)
	}
	applog.Info("widget.activated", "id", item.ID)
	return w.backend.List(ctx)
}

// Refresh reloads the list from the backend.
func (w *Widget) Refresh(ctx context.Context) ([]types.SavedItem, error) {
	return w.backend.List(ctx)
}

func (w *Widget) hoverAt(p Point) {
	w.hoverTrg = w.triggerRect().Contains(p)
	if w.state != Expanded {
		return
	}
	tgt, idx := w.hit(p)
	if tgt != targetItem {
		w.hover = -1
		w.tooltip = nil
		return
	}
	if idx == w.hover && w.tooltip != nil {
		return
	}
	w.hover = idx
	w.tooltip = w.buildTooltip(idx)
}

func (w *Widget) hit(p Point) (target, int) {
	if w.state == Expanded {
		for i := range w.items {
			if w.itemRect(i).Contains(p) {
				return targetItem, i
			}
		}
	}
	if p == w.closeCell() {
		return targetClose, -1
	}
	if w.triggerRect().Contains(p) {
		return targetTrigger, -1
	}
	return targetNone, -1
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
