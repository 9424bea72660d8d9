package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/lotas/laterread/internal/applog"
	"github.com/lotas/laterread/internal/pagemeta"
	"github.com/lotas/laterread/internal/protocol"
	"github.com/lotas/laterread/internal/types"
	"github.com/lotas/laterread/internal/widget"
)

// PageState is the page shown by the page host. The coordinator reads and
// restores its scroll offset from the connection's goroutine, so access is
// locked. Scroll offsets are in rows.
type PageState struct {
	URL     string
	Title   string
	Favicon string
	Text    string

	mu      sync.Mutex
	scrollY int
	moved   chan struct{}
}

// NewPageState builds a page from looked-up metadata.
func NewPageState(url string, meta pagemeta.Meta) *PageState {
	return &PageState{
		URL:     url,
		Title:   meta.Title,
		Favicon: meta.Favicon,
		Text:    meta.Text,
		moved:   make(chan struct{}, 1),
	}
}

func (p *PageState) ScrollY() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scrollY
}

// ScrollTo jumps to row y, never above the top.
func (p *PageState) ScrollTo(y int) {
	p.mu.Lock()
	p.scrollY = max(y, 0)
	p.mu.Unlock()
	select {
	case p.moved <- struct{}{}:
	default:
	}
}

// ScrollBy moves by delta rows.
func (p *PageState) ScrollBy(delta int) {
	p.mu.Lock()
	p.scrollY = max(p.scrollY+delta, 0)
	p.mu.Unlock()
}

// Moved signals scroll changes made through commands.
func (p *PageState) Moved() <-chan struct{} {
	return p.moved
}

// HandleCommand answers the coordinator's page.* commands.
func (p *PageState) HandleCommand(ctx context.Context, cmd protocol.Message) protocol.Message {
	resp := protocol.Reply(cmd)
	switch cmd.Action {
	case protocol.HostReadScroll:
		resp.ScrollY = p.ScrollY()
	case protocol.HostScrollTo:
		p.ScrollTo(cmd.ScrollY)
		applog.Info("page.scroll_restored", "y", cmd.ScrollY)
	case protocol.HostFavicon:
		if p.Favicon == "" {
			return resp.Failed(fmt.Errorf("page declares no icon"))
		}
		resp.Favicon = p.Favicon
	default:
		return resp.Failed(fmt.Errorf("unsupported command %s", cmd.Action))
	}
	return resp.Succeeded()
}

// PageBackend is the page context's connection to the coordinator.
type PageBackend interface {
	widget.Backend
	Notifications() <-chan protocol.Message
}

// --- Messages ---

type notifyMsg struct{ msg protocol.Message }
type disconnectedMsg struct{}
type scrolledMsg struct{}

type listedMsg struct {
	items []types.SavedItem
	err   error
}

type activatedMsg struct {
	items []types.SavedItem
	err   error
}

// --- Model ---

// Page hosts the floating widget over a scrollable page.
type Page struct {
	backend PageBackend
	state   *PageState
	widget  *widget.Widget

	width    int
	height   int
	status   string
	quitting bool
}

// NewPage returns a page host for state talking to backend.
func NewPage(backend PageBackend, state *PageState, opts ...widget.Option) Page {
	return Page{
		backend: backend,
		state:   state,
		widget:  widget.New(backend, opts...),
	}
}

// Widget exposes the hosted widget.
func (m Page) Widget() *widget.Widget { return m.widget }

func (m Page) Init() tea.Cmd {
	return tea.Batch(
		listenNotifications(m.backend),
		watchScroll(m.state),
		refreshWidget(m.widget),
	)
}

func listenNotifications(b PageBackend) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-b.Notifications()
		if !ok {
			return disconnectedMsg{}
		}
		return notifyMsg{msg: msg}
	}
}

func watchScroll(p *PageState) tea.Cmd {
	return func() tea.Msg {
		<-p.Moved()
		return scrolledMsg{}
	}
}

func refreshWidget(w *widget.Widget) tea.Cmd {
	return func() tea.Msg {
		items, err := w.Refresh(context.Background())
		return listedMsg{items: items, err: err}
	}
}

func activate(w *widget.Widget, item types.SavedItem) tea.Cmd {
	return func() tea.Msg {
		items, err := w.Activate(context.Background(), item)
		return activatedMsg{items: items, err: err}
	}
}

func (m Page) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.widget.Resize(msg.Width, msg.Height)
		return m, nil

	case notifyMsg:
		next := listenNotifications(m.backend)
		switch msg.msg.Action {
		case protocol.ActionItemsUpdated:
			m.widget.Sync(msg.msg.Items)
		case protocol.ActionCheckItems:
			return m, tea.Batch(next, refreshWidget(m.widget))
		}
		return m, next

	case disconnectedMsg:
		m.status = "disconnected from coordinator"
		applog.Info("page.disconnected", "url", m.state.URL)
		return m, nil

	case scrolledMsg:
		return m, watchScroll(m.state)

	case listedMsg:
		if msg.err != nil {
			applog.Error("page.list", msg.err)
			m.status = "Error: " + msg.err.Error()
			return m, nil
		}
		m.widget.Sync(msg.items)
		return m, nil

	case activatedMsg:
		if msg.err != nil {
			applog.Error("page.activate", msg.err)
			m.status = "Error: " + msg.err.Error()
			return m, nil
		}
		m.status = ""
		m.widget.Sync(msg.items)
		return m, nil

	case tea.MouseMsg:
		return m.handleMouse(msg)

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		case "up", "k":
			m.state.ScrollBy(-1)
		case "down", "j":
			m.state.ScrollBy(1)
		case "pgup":
			m.state.ScrollBy(-max(m.height-1, 1))
		case "pgdown", " ":
			m.state.ScrollBy(max(m.height-1, 1))
		case "home", "g":
			m.state.ScrollTo(0)
		}
		return m, nil
	}
	return m, nil
}

func (m Page) handleMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	p := widget.Point{X: msg.X, Y: msg.Y}
	switch msg.Action {
	case tea.MouseActionPress:
		switch msg.Button {
		case tea.MouseButtonWheelUp:
			m.state.ScrollBy(-3)
		case tea.MouseButtonWheelDown:
			m.state.ScrollBy(3)
		case tea.MouseButtonLeft:
			m.widget.Press(p)
		}
	case tea.MouseActionMotion:
		m.widget.Motion(p)
	case tea.MouseActionRelease:
		if item, ok := m.widget.Release(p); ok {
			return m, activate(m.widget, item)
		}
	}
	return m, nil
}

// pageLines lays the page out at width: title, url, blank, wrapped text.
func (m Page) pageLines() []string {
	width := max(m.width, 1)
	wrap := lipgloss.NewStyle().Width(width)
	lines := []string{truncateRunes(m.state.Title, width), truncateRunes(m.state.URL, width), ""}
	for _, para := range strings.Split(m.state.Text, "\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		lines = append(lines, strings.Split(wrap.Render(para), "\n")...)
		lines = append(lines, "")
	}
	return lines
}

func (m Page) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 || m.height == 0 {
		return "\n  Loading page...\n"
	}
	lines := m.pageLines()
	top := min(m.state.ScrollY(), len(lines))
	visible := append([]string(nil), lines[top:]...)
	if len(visible) > m.height {
		visible = visible[:m.height]
	}
	if m.status != "" {
		for len(visible) < m.height {
			visible = append(visible, "")
		}
		visible[m.height-1] = truncateRunes(m.status, m.width)
	}

	return widget.Compose(m.width, m.height, visible, m.widget.Blocks())
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		return string(r[:n])
	}
	return s
}
