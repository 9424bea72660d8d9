package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/lotas/laterread/internal/browser"
	"github.com/lotas/laterread/internal/storage"
	"github.com/lotas/laterread/internal/types"
)

type fakePopupBackend struct {
	items    []types.SavedItem
	settings types.Settings
	active   browser.Tab
	capture  error
	changes  chan storage.Change

	saved   []types.Candidate
	removed []string
	opened  []string
	closed  []int
	cleared bool
	settled []types.Settings
}

func newFakePopupBackend() *fakePopupBackend {
	return &fakePopupBackend{
		settings: types.DefaultSettings(),
		active:   browser.Tab{ID: 7, URL: "https://new.test/post", Title: "New"},
		changes:  make(chan storage.Change, 4),
		items: []types.SavedItem{
			{ID: "id_old", URL: "https://old.test", Title: "Old", Timestamp: 1000},
			{ID: "id_mid", URL: "https://mid.test", Title: "Mid", Timestamp: 2000},
		},
	}
}

func (b *fakePopupBackend) List(ctx context.Context) []types.SavedItem {
	return append([]types.SavedItem(nil), b.items...)
}

func (b *fakePopupBackend) Save(ctx context.Context, c types.Candidate) (types.SavedItem, error) {
	b.saved = append(b.saved, c)
	item := types.SavedItem{ID: "id_new", URL: c.URL, Title: c.Title, Timestamp: 3000}
	b.items = append(b.items, item)
	return item, nil
}

func (b *fakePopupBackend) Remove(ctx context.Context, id string) error {
	b.removed = append(b.removed, id)
	var keep []types.SavedItem
	for _, it := range b.items {
		if it.ID != id {
			keep = append(keep, it)
		}
	}
	b.items = keep
	return nil
}

func (b *fakePopupBackend) Clear(ctx context.Context) error {
	b.cleared = true
	b.items = nil
	return nil
}

func (b *fakePopupBackend) Open(ctx context.Context, item types.SavedItem) (browser.Tab, error) {
	b.opened = append(b.opened, item.URL)
	return browser.Tab{ID: 9, URL: item.URL}, nil
}

func (b *fakePopupBackend) LoadSettings(ctx context.Context) types.Settings { return b.settings }

func (b *fakePopupBackend) SaveSettings(ctx context.Context, s types.Settings) error {
	b.settled = append(b.settled, s)
	b.settings = s
	return nil
}

func (b *fakePopupBackend) CapturePage(ctx context.Context) (types.Candidate, browser.Tab, error) {
	if b.capture != nil {
		return types.Candidate{}, browser.Tab{}, b.capture
	}
	return types.Candidate{URL: b.active.URL, Title: b.active.Title, ScrollPosition: 120}, b.active, nil
}

func (b *fakePopupBackend) ActiveTab(ctx context.Context) (browser.Tab, error) { return b.active, nil }

func (b *fakePopupBackend) CloseTab(ctx context.Context, tabID int) error {
	b.closed = append(b.closed, tabID)
	return nil
}

func (b *fakePopupBackend) Changes() (<-chan storage.Change, func()) {
	return b.changes, func() {}
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func step(m Popup, msg tea.Msg) (Popup, tea.Cmd) {
	next, cmd := m.Update(msg)
	return next.(Popup), cmd
}

// loadedPopup returns a popup that has processed its initial load.
func loadedPopup(t *testing.T, b *fakePopupBackend) Popup {
	t.Helper()
	m := NewPopup(b, DefaultPopupConfig())
	m, _ = step(m, loadPopup(b)())
	return m
}

func TestPopupLoadSortsNewestFirst(t *testing.T) {
	m := loadedPopup(t, newFakePopupBackend())
	items := m.Items()
	if len(items) != 2 || items[0].ID != "id_mid" {
		t.Fatalf("items = %+v", items)
	}
	if m.AlreadySaved() {
		t.Error("active page is not saved yet")
	}
	if !strings.Contains(m.View(), "[s] Save") {
		t.Errorf("expected save control in view:\n%s", m.View())
	}
}

func TestPopupAlreadySavedDisablesControls(t *testing.T) {
	b := newFakePopupBackend()
	b.active.URL = "https://old.test"
	m := loadedPopup(t, b)

	if !m.AlreadySaved() {
		t.Fatal("expected already saved")
	}
	if !strings.Contains(m.View(), "Already saved") {
		t.Errorf("view:\n%s", m.View())
	}
	m, cmd := step(m, key("s"))
	if cmd != nil {
		t.Error("save should be disabled")
	}
	m, cmd = step(m, key("t"))
	if cmd != nil || !m.settings.CloseTabAfterSave {
		t.Error("close-tab toggle should be disabled")
	}
}

func TestPopupSaveClosesTab(t *testing.T) {
	b := newFakePopupBackend()
	m := loadedPopup(t, b)

	m, cmd := step(m, key("s"))
	if cmd == nil {
		t.Fatal("expected save command")
	}
	if text, _ := m.Status(); text != "Saving..." {
		t.Errorf("status = %q", text)
	}
	m, cmd = step(m, cmd())
	if len(b.saved) != 1 || b.saved[0].ScrollPosition != 120 {
		t.Fatalf("saved = %+v", b.saved)
	}
	if text, isErr := m.Status(); text != "Saved!" || isErr {
		t.Errorf("status = %q, %v", text, isErr)
	}
	if !m.AlreadySaved() {
		t.Error("saved page should now count as saved")
	}
	// Status clear timer and close-tab timer.
	batch, ok := cmd().(tea.BatchMsg)
	if !ok || len(batch) != 2 {
		t.Fatalf("expected two timers, got %T", cmd())
	}

	m, cmd = step(m, closeTabMsg{tabID: 7})
	step(m, cmd())
	if len(b.closed) != 1 || b.closed[0] != 7 {
		t.Errorf("closed = %v", b.closed)
	}
}

func TestPopupSaveKeepsTabWhenSettingOff(t *testing.T) {
	b := newFakePopupBackend()
	b.settings.CloseTabAfterSave = false
	cfg := DefaultPopupConfig()
	cfg.StatusClearDelay = time.Millisecond
	m := NewPopup(b, cfg)
	m, _ = step(m, loadPopup(b)())

	m, cmd := step(m, key("s"))
	_, cmd = step(m, cmd())
	if cmd == nil {
		t.Fatal("expected status timer")
	}
	if _, ok := cmd().(statusClearMsg); !ok {
		t.Error("only the status timer should be scheduled")
	}
	if len(b.closed) != 0 {
		t.Errorf("closed = %v", b.closed)
	}
}

func TestPopupStatusClears(t *testing.T) {
	m := loadedPopup(t, newFakePopupBackend())
	m.setStatus("Saved!", false)
	stale := m.statusSeq
	m.setStatus("Cleared", false)

	m, _ = step(m, statusClearMsg{seq: stale})
	if text, _ := m.Status(); text != "Cleared" {
		t.Errorf("stale timer cleared status: %q", text)
	}
	m, _ = step(m, statusClearMsg{seq: m.statusSeq})
	if text, _ := m.Status(); text != "" {
		t.Errorf("status = %q, want empty", text)
	}
}

func TestPopupSaveFailureReenables(t *testing.T) {
	b := newFakePopupBackend()
	b.capture = errors.New("no active tab")
	m := loadedPopup(t, b)

	m, cmd := step(m, key("s"))
	m, cmd = step(m, cmd())
	if cmd != nil {
		t.Error("errors should not auto-clear")
	}
	if text, isErr := m.Status(); !isErr || !strings.Contains(text, "no active tab") {
		t.Errorf("status = %q, %v", text, isErr)
	}
	if _, cmd = step(m, key("s")); cmd == nil {
		t.Error("save should be enabled again")
	}
}

func TestPopupToggleSettings(t *testing.T) {
	b := newFakePopupBackend()
	m := loadedPopup(t, b)

	m, cmd := step(m, key("t"))
	if m.settings.CloseTabAfterSave {
		t.Error("toggle did not flip")
	}
	step(m, cmd())
	if len(b.settled) != 1 || b.settled[0].CloseTabAfterSave {
		t.Errorf("settings saved = %+v", b.settled)
	}
}

func TestPopupDeleteConfirm(t *testing.T) {
	b := newFakePopupBackend()
	m := loadedPopup(t, b)

	m, _ = step(m, key("d"))
	if m.confirmID != "id_mid" {
		t.Fatalf("confirmID = %q", m.confirmID)
	}
	if !strings.Contains(m.View(), "Delete? [y/n]") {
		t.Error("expected inline confirmation")
	}
	m, _ = step(m, key("n"))
	if m.confirmID != "" {
		t.Error("n should revert")
	}

	m, _ = step(m, key("d"))
	m, _ = step(m, key("down"))
	if m.confirmID != "" {
		t.Error("moving away should revert")
	}

	m, _ = step(m, key("d"))
	m, cmd := step(m, key("y"))
	if cmd == nil || !m.fading["id_old"] {
		t.Fatal("expected fade before removal")
	}
	if len(b.removed) != 0 {
		t.Fatal("removed before fade finished")
	}
	m, cmd = step(m, fadeDoneMsg{id: "id_old"})
	m, cmd = step(m, cmd())
	if len(b.removed) != 1 || b.removed[0] != "id_old" {
		t.Errorf("removed = %v", b.removed)
	}
	if len(m.Items()) != 1 || m.fading["id_old"] {
		t.Errorf("items = %+v", m.Items())
	}
	if text, isErr := m.Status(); text != "Deleted" || isErr {
		t.Errorf("status = %q, %v", text, isErr)
	}
	if cmd == nil {
		t.Error("expected the deleted status to be cleared later")
	}
}

func TestPopupClearAllModal(t *testing.T) {
	b := newFakePopupBackend()
	m := loadedPopup(t, b)

	m, _ = step(m, key("C"))
	if !strings.Contains(m.View(), "Remove all 2 saved pages?") {
		t.Fatalf("expected modal:\n%s", m.View())
	}
	m, _ = step(m, key("n"))
	if m.confirmClear || b.cleared {
		t.Fatal("cancel should close the modal without clearing")
	}

	m, _ = step(m, key("C"))
	m, cmd := step(m, key("y"))
	m, _ = step(m, cmd())
	if !b.cleared || len(m.Items()) != 0 {
		t.Error("expected cleared list")
	}
	if !strings.Contains(m.View(), "No saved pages yet") {
		t.Errorf("view:\n%s", m.View())
	}
}

func TestPopupOpenRemovesAndQuits(t *testing.T) {
	b := newFakePopupBackend()
	m := loadedPopup(t, b)

	m, cmd := step(m, key("enter"))
	m, cmd = step(m, cmd())
	if len(b.opened) != 1 || b.opened[0] != "https://mid.test" {
		t.Errorf("opened = %v", b.opened)
	}
	if len(b.removed) != 1 || b.removed[0] != "id_mid" {
		t.Errorf("removed = %v", b.removed)
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("popup should close after opening")
	}
	if m.View() != "" {
		t.Error("expected empty view after quit")
	}
}

func TestPopupRerendersOnChange(t *testing.T) {
	b := newFakePopupBackend()
	m := loadedPopup(t, b)

	b.items = append(b.items, types.SavedItem{ID: "id_x", URL: "https://x.test", Timestamp: 5000})
	b.changes <- storage.Change{Key: "unrelated"}
	b.changes <- storage.Change{Key: types.ItemsKey}

	msg := waitForChange(b, b.changes)()
	m, cmd := step(m, msg)
	if len(m.Items()) != 3 || m.Items()[0].ID != "id_x" {
		t.Errorf("items = %+v", m.Items())
	}
	if cmd == nil {
		t.Error("expected to keep listening")
	}

	close(b.changes)
	if _, ok := waitForChange(b, b.changes)().(changesClosedMsg); !ok {
		t.Error("expected closed message")
	}
}

func TestPopupReloadsSettingsOnChange(t *testing.T) {
	b := newFakePopupBackend()
	m := loadedPopup(t, b)
	if !m.settings.CloseTabAfterSave {
		t.Fatal("expected default setting")
	}

	b.settings = types.Settings{CloseTabAfterSave: false}
	b.changes <- storage.Change{Key: types.SettingsKey}
	msg := waitForChange(b, b.changes)()
	if _, ok := msg.(settingsChangedMsg); !ok {
		t.Fatalf("msg = %T", msg)
	}
	m, cmd := step(m, msg)
	if m.settings.CloseTabAfterSave {
		t.Error("settings changed elsewhere should be picked up")
	}
	if !strings.Contains(m.View(), "[ ] Close tab after saving") {
		t.Errorf("view:\n%s", m.View())
	}
	if cmd == nil {
		t.Error("expected to keep listening")
	}
}

func TestPopupSavedStateFollowsList(t *testing.T) {
	b := newFakePopupBackend()
	m := loadedPopup(t, b)

	m, cmd := step(m, key("s"))
	m, _ = step(m, cmd())
	if !m.AlreadySaved() || len(m.Items()) != 3 || m.Items()[0].ID != "id_new" {
		t.Fatalf("after save: saved=%v items=%+v", m.AlreadySaved(), m.Items())
	}

	// The feed reporting the same save must not add it twice.
	b.changes <- storage.Change{Key: types.ItemsKey}
	m, _ = step(m, waitForChange(b, b.changes)())
	if len(m.Items()) != 3 {
		t.Fatalf("items = %+v", m.Items())
	}

	// Removed from another surface.
	b.Remove(context.Background(), "id_new")
	b.changes <- storage.Change{Key: types.ItemsKey}
	m, _ = step(m, waitForChange(b, b.changes)())
	if m.AlreadySaved() {
		t.Error("removed page should be savable again")
	}
	if _, cmd := step(m, key("s")); cmd == nil {
		t.Error("save should be enabled again")
	}
}
