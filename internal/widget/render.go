package widget

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	triggerStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	triggerHoverStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("62")).Bold(true)
	itemStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("44"))
	itemHoverStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	tooltipStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Background(lipgloss.Color("236"))
)

// Block is one drawn element of the widget.
type Block struct {
	Rect  Rect
	Lines []string
	Style lipgloss.Style
}

// Blocks returns the widget's elements in drawing order.
func (w *Widget) Blocks() []Block {
	if w.state == Absent {
		return nil
	}
	var out []Block
	if w.state == Expanded {
		for i, item := range w.items {
			st := itemStyle
			if i == w.hover {
				st = itemHoverStyle
			}
			r := w.itemRect(i)
			out = append(out, Block{Rect: r, Lines: box(r.W, r.H, iconLabel(item)), Style: st})
		}
	}

	r := w.triggerRect()
	lines := box(r.W, r.H, fmt.Sprintf("%d", len(w.items)))
	st := triggerStyle
	if w.hoverTrg {
		st = triggerHoverStyle
		top := []rune(lines[0])
		top[len(top)-1] = '×'
		lines[0] = string(top)
	}
	out = append(out, Block{Rect: r, Lines: lines, Style: st})

	if t := w.tooltip; t != nil {
		out = append(out, Block{Rect: t.Rect, Lines: box(t.Rect.W, t.Rect.H, t.Lines...), Style: tooltipStyle})
	}
	return out
}

// box draws a rounded border of w x h cells around content lines, centred
// for single-line buttons and left-aligned with padding otherwise.
func box(w, h int, content ...string) []string {
	b := lipgloss.RoundedBorder()
	inner := w - 2
	lines := make([]string, 0, h)
	lines = append(lines, b.TopLeft+strings.Repeat(b.Top, inner)+b.TopRight)
	for i := 0; i < h-2; i++ {
		text := ""
		if i < len(content) {
			text = content[i]
		}
		lines = append(lines, b.Left+pad(text, inner, len(content) == 1)+b.Right)
	}
	lines = append(lines, b.BottomLeft+strings.Repeat(b.Bottom, inner)+b.BottomRight)
	return lines
}

func pad(s string, n int, center bool) string {
	r := []rune(s)
	if len(r) > n {
		r = r[:n]
	}
	space := n - len(r)
	left := 1
	if center {
		left = space / 2
	}
	left = min(left, space)
	return strings.Repeat(" ", left) + string(r) + strings.Repeat(" ", space-left)
}

// Compose overlays blocks on a width x height background and returns the
// rendered frame. Parts of blocks outside the frame are clipped.
func Compose(width, height int, background []string, blocks []Block) string {
	if width <= 0 || height <= 0 {
		return ""
	}
	cells := make([][]rune, height)
	owner := make([][]int, height)
	for y := range cells {
		cells[y] = []rune(strings.Repeat(" ", width))
		owner[y] = make([]int, width)
		for x := range owner[y] {
			owner[y][x] = -1
		}
		if y < len(background) {
			for x, r := range []rune(background[y]) {
				if x >= width {
					break
				}
				cells[y][x] = r
			}
		}
	}

	for bi, b := range blocks {
		for dy, line := range b.Lines {
			y := b.Rect.Y + dy
			if y < 0 || y >= height {
				continue
			}
			for dx, r := range []rune(line) {
				x := b.Rect.X + dx
				if x < 0 || x >= width {
					continue
				}
				cells[y][x] = r
				owner[y][x] = bi
			}
		}
	}

	var sb strings.Builder
	for y := range cells {
		if y > 0 {
			sb.WriteByte('\n')
		}
		start := 0
		for x := 1; x <= width; x++ {
			if x < width && owner[y][x] == owner[y][start] {
				continue
			}
			run := string(cells[y][start:x])
			if o := owner[y][start]; o >= 0 {
				run = blocks[o].Style.Render(run)
			}
			sb.WriteString(run)
			start = x
		}
	}
	return sb.String()
}
