package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/lotas/laterread/internal/applog"
	"github.com/lotas/laterread/internal/browser"
	"github.com/lotas/laterread/internal/storage"
	"github.com/lotas/laterread/internal/types"
)

// PopupBackend is the coordinator as the popup sees it.
type PopupBackend interface {
	List(ctx context.Context) []types.SavedItem
	Save(ctx context.Context, cand types.Candidate) (types.SavedItem, error)
	Remove(ctx context.Context, id string) error
	Clear(ctx context.Context) error
	Open(ctx context.Context, item types.SavedItem) (browser.Tab, error)
	LoadSettings(ctx context.Context) types.Settings
	SaveSettings(ctx context.Context, s types.Settings) error
	CapturePage(ctx context.Context) (types.Candidate, browser.Tab, error)
	ActiveTab(ctx context.Context) (browser.Tab, error)
	CloseTab(ctx context.Context, tabID int) error
	Changes() (<-chan storage.Change, func())
}

// PopupConfig holds the popup's delays.
type PopupConfig struct {
	CloseTabDelay    time.Duration
	StatusClearDelay time.Duration
	FadeDelay        time.Duration
}

// DefaultPopupConfig matches the browser popup: 300 ms before the saved tab
// closes, 2 s before a success message clears, 300 ms delete fade.
func DefaultPopupConfig() PopupConfig {
	return PopupConfig{
		CloseTabDelay:    300 * time.Millisecond,
		StatusClearDelay: 2 * time.Second,
		FadeDelay:        300 * time.Millisecond,
	}
}

// --- Messages ---

type popupLoadedMsg struct {
	items    []types.SavedItem
	settings types.Settings
	active   string
}

type itemsChangedMsg struct{ items []types.SavedItem }
type settingsChangedMsg struct{ settings types.Settings }
type changesClosedMsg struct{}

type savedMsg struct {
	item types.SavedItem
	tab  browser.Tab
	err  error
}

type statusClearMsg struct{ seq int }
type closeTabMsg struct{ tabID int }
type tabClosedMsg struct{ err error }
type fadeDoneMsg struct{ id string }

type removedMsg struct {
	id  string
	err error
}

type clearedMsg struct{ err error }
type openedMsg struct{ err error }
type settingsSavedMsg struct{ err error }

// --- Model ---

// Popup is the "read later" list: save the current page, open, delete or
// clear saved ones.
type Popup struct {
	backend PopupBackend
	cfg     PopupConfig
	changes <-chan storage.Change
	stop    func()
	now     func() time.Time

	items     []types.SavedItem
	settings  types.Settings
	activeURL string
	loaded    bool
	saving    bool

	status    string
	statusErr bool
	statusSeq int

	cursor       int
	confirmID    string
	fading       map[string]bool
	confirmClear bool

	width    int
	height   int
	quitting bool
}

// NewPopup subscribes to store changes; call Stop when the program ends.
func NewPopup(backend PopupBackend, cfg PopupConfig) Popup {
	ch, stop := backend.Changes()
	return Popup{
		backend:  backend,
		cfg:      cfg,
		changes:  ch,
		stop:     stop,
		now:      time.Now,
		settings: types.DefaultSettings(),
		fading:   make(map[string]bool),
	}
}

// Stop ends the change subscription.
func (m Popup) Stop() {
	if m.stop != nil {
		m.stop()
	}
}

// Items returns the list as displayed, newest first.
func (m Popup) Items() []types.SavedItem { return m.items }

// Status returns the inline status text and whether it is an error.
func (m Popup) Status() (string, bool) { return m.status, m.statusErr }

// AlreadySaved reports whether the active page is in the list, which
// disables saving and the close-tab toggle.
func (m Popup) AlreadySaved() bool {
	if m.activeURL == "" {
		return false
	}
	return types.ContainsURL(m.items, m.activeURL)
}

func (m Popup) Init() tea.Cmd {
	return tea.Batch(loadPopup(m.backend), waitForChange(m.backend, m.changes))
}

func loadPopup(b PopupBackend) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		msg := popupLoadedMsg{
			items:    types.NewestFirst(b.List(ctx)),
			settings: b.LoadSettings(ctx),
		}
		if tab, err := b.ActiveTab(ctx); err == nil {
			msg.active = tab.URL
		} else {
			applog.Info("popup.no_active_tab", "err", err.Error())
		}
		return msg
	}
}

// waitForChange blocks until the item list or the settings change in storage.
func waitForChange(b PopupBackend, ch <-chan storage.Change) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		for c := range ch {
			switch c.Key {
			case types.ItemsKey:
				return itemsChangedMsg{items: types.NewestFirst(b.List(context.Background()))}
			case types.SettingsKey:
				return settingsChangedMsg{settings: b.LoadSettings(context.Background())}
			}
		}
		return changesClosedMsg{}
	}
}

func saveCurrentPage(b PopupBackend) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		cand, tab, err := b.CapturePage(ctx)
		if err != nil {
			return savedMsg{err: err}
		}
		item, err := b.Save(ctx, cand)
		return savedMsg{item: item, tab: tab, err: err}
	}
}

func saveSettings(b PopupBackend, s types.Settings) tea.Cmd {
	return func() tea.Msg {
		return settingsSavedMsg{err: b.SaveSettings(context.Background(), s)}
	}
}

func closeTab(b PopupBackend, tabID int) tea.Cmd {
	return func() tea.Msg {
		return tabClosedMsg{err: b.CloseTab(context.Background(), tabID)}
	}
}

func removeItem(b PopupBackend, id string) tea.Cmd {
	return func() tea.Msg {
		return removedMsg{id: id, err: b.Remove(context.Background(), id)}
	}
}

func clearItems(b PopupBackend) tea.Cmd {
	return func() tea.Msg {
		return clearedMsg{err: b.Clear(context.Background())}
	}
}

// openItem opens the page and drops it from the list.
func openItem(b PopupBackend, item types.SavedItem) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		if _, err := b.Open(ctx, item); err != nil {
			return openedMsg{err: err}
		}
		return openedMsg{err: b.Remove(ctx, item.ID)}
	}
}

func (m Popup) selected() (types.SavedItem, bool) {
	if m.cursor < 0 || m.cursor >= len(m.items) {
		return types.SavedItem{}, false
	}
	return m.items[m.cursor], true
}

func (m *Popup) setItems(items []types.SavedItem) {
	m.items = items
	if m.cursor >= len(m.items) {
		m.cursor = max(len(m.items)-1, 0)
	}
	if m.confirmID != "" && !containsID(items, m.confirmID) {
		m.confirmID = ""
	}
}

func (m *Popup) setStatus(text string, isErr bool) tea.Cmd {
	m.statusSeq++
	m.status = text
	m.statusErr = isErr
	if isErr || m.cfg.StatusClearDelay <= 0 {
		return nil
	}
	seq := m.statusSeq
	return tea.Tick(m.cfg.StatusClearDelay, func(time.Time) tea.Msg { return statusClearMsg{seq: seq} })
}

func (m Popup) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case popupLoadedMsg:
		m.loaded = true
		m.settings = msg.settings
		m.activeURL = msg.active
		m.setItems(msg.items)
		return m, nil

	case itemsChangedMsg:
		m.setItems(msg.items)
		return m, waitForChange(m.backend, m.changes)

	case settingsChangedMsg:
		m.settings = msg.settings
		return m, waitForChange(m.backend, m.changes)

	case changesClosedMsg:
		return m, nil

	case savedMsg:
		m.saving = false
		if msg.err != nil {
			applog.Error("popup.save", msg.err)
			return m, m.setStatus("Error: "+msg.err.Error(), true)
		}
		if !containsID(m.items, msg.item.ID) {
			m.setItems(append([]types.SavedItem{msg.item}, m.items...))
		}
		cmds := []tea.Cmd{m.setStatus("Saved!", false)}
		if m.settings.CloseTabAfterSave && msg.tab.ID != 0 {
			tabID := msg.tab.ID
			cmds = append(cmds, tea.Tick(m.cfg.CloseTabDelay, func(time.Time) tea.Msg { return closeTabMsg{tabID: tabID} }))
		}
		return m, tea.Batch(cmds...)

	case statusClearMsg:
		if msg.seq == m.statusSeq {
			m.status = ""
			m.statusErr = false
		}
		return m, nil

	case closeTabMsg:
		return m, closeTab(m.backend, msg.tabID)

	case tabClosedMsg:
		if msg.err != nil {
			applog.Error("popup.close_tab", msg.err)
		}
		return m, nil

	case fadeDoneMsg:
		return m, removeItem(m.backend, msg.id)

	case removedMsg:
		delete(m.fading, msg.id)
		if msg.err != nil {
			return m, m.setStatus("Error: "+msg.err.Error(), true)
		}
		m.setItems(withoutID(m.items, msg.id))
		return m, m.setStatus("Deleted", false)

	case clearedMsg:
		if msg.err != nil {
			return m, m.setStatus("Error: "+msg.err.Error(), true)
		}
		m.setItems(nil)
		return m, m.setStatus("Cleared", false)

	case openedMsg:
		if msg.err != nil {
			return m, m.setStatus("Error: "+msg.err.Error(), true)
		}
		m.quitting = true
		return m, tea.Quit

	case settingsSavedMsg:
		if msg.err != nil {
			return m, m.setStatus("Error: "+msg.err.Error(), true)
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Popup) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if m.confirmClear {
		switch key {
		case "y", "enter":
			m.confirmClear = false
			return m, clearItems(m.backend)
		case "n", "esc", "q":
			m.confirmClear = false
		case "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil
	}

	switch key {
	case "ctrl+c", "q":
		m.quitting = true
		return m, tea.Quit
	case "esc":
		if m.confirmID != "" {
			m.confirmID = ""
			return m, nil
		}
		m.quitting = true
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		m.confirmID = ""
	case "down", "j":
		if m.cursor < len(m.items)-1 {
			m.cursor++
		}
		m.confirmID = ""
	case "s":
		if m.saving || m.AlreadySaved() {
			return m, nil
		}
		m.saving = true
		m.status = "Saving..."
		m.statusErr = false
		return m, saveCurrentPage(m.backend)
	case "t":
		if m.AlreadySaved() {
			return m, nil
		}
		m.settings.CloseTabAfterSave = !m.settings.CloseTabAfterSave
		return m, saveSettings(m.backend, m.settings)
	case "d", "delete":
		if item, ok := m.selected(); ok && !m.fading[item.ID] {
			m.confirmID = item.ID
		}
	case "y":
		if m.confirmID == "" {
			return m, nil
		}
		id := m.confirmID
		m.confirmID = ""
		m.fading[id] = true
		return m, tea.Tick(m.cfg.FadeDelay, func(time.Time) tea.Msg { return fadeDoneMsg{id: id} })
	case "n":
		m.confirmID = ""
	case "C":
		if len(m.items) > 0 {
			m.confirmClear = true
		}
	case "enter":
		if item, ok := m.selected(); ok && m.confirmID == "" {
			return m, openItem(m.backend, item)
		}
	}
	return m, nil
}

func containsID(items []types.SavedItem, id string) bool {
	for _, it := range items {
		if it.ID == id {
			return true
		}
	}
	return false
}

func withoutID(items []types.SavedItem, id string) []types.SavedItem {
	out := make([]types.SavedItem, 0, len(items))
	for _, it := range items {
		if it.ID != id {
			out = append(out, it)
		}
	}
	return out
}
