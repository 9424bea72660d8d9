// Package coordinator is the single long-lived service between the page
// surfaces and the item store. It answers requests, opens saved pages with
// their scroll position restored, and tells every page context when the
// list changes.
package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lotas/laterread/internal/applog"
	"github.com/lotas/laterread/internal/browser"
	"github.com/lotas/laterread/internal/items"
	"github.com/lotas/laterread/internal/metrics"
	"github.com/lotas/laterread/internal/protocol"
	"github.com/lotas/laterread/internal/storage"
	"github.com/lotas/laterread/internal/types"
)

// Pages delivers notifications to connected page contexts. Delivery is
// best-effort.
type Pages interface {
	Broadcast(msg protocol.Message) int
	SendTo(tabID int, msg protocol.Message) error
}

// Changes is the store's change feed.
type Changes interface {
	Subscribe() (<-chan storage.Change, func())
}

// Config holds the fixed delays.
type Config struct {
	// ScrollRestoreDelay is how long to wait after opening a page before
	// restoring its scroll position.
	ScrollRestoreDelay time.Duration
	// PageCheckDelay is how long to wait before asking a new page context
	// to check for saved items, so its listener can attach first.
	PageCheckDelay time.Duration
	// HostTimeout bounds each delayed host call.
	HostTimeout time.Duration
}

// DefaultConfig returns the delays the extension has always used.
func DefaultConfig() Config {
	return Config{
		ScrollRestoreDelay: time.Second,
		PageCheckDelay:     time.Second,
		HostTimeout:        5 * time.Second,
	}
}

// Coordinator mediates all store access.
type Coordinator struct {
	store   *items.Store
	changes Changes
	host    browser.Host
	pages   Pages
	cfg     Config

	// afterFunc schedules one-shot timers; replaced in tests.
	afterFunc func(d time.Duration, f func())
}

// New returns a Coordinator. pages may be attached later with Attach.
func New(store *items.Store, changes Changes, host browser.Host, cfg Config) *Coordinator {
	return &Coordinator{
		store:   store,
		changes: changes,
		host:    host,
		cfg:     cfg,
		afterFunc: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
	}
}

// Attach sets the page notifier. Call before Run.
func (c *Coordinator) Attach(pages Pages) {
	c.pages = pages
}

// Save stores a new item.
func (c *Coordinator) Save(ctx context.Context, cand types.Candidate) (types.SavedItem, error) {
	item, err := c.store.Save(ctx, cand)
	metrics.Requests.WithLabelValues(protocol.ActionSave, metrics.Result(err == nil)).Inc()
	return item, err
}

// List returns all items in storage order.
func (c *Coordinator) List(ctx context.Context) []types.SavedItem {
	metrics.Requests.WithLabelValues(protocol.ActionList, "ok").Inc()
	return c.store.List(ctx)
}

// Remove deletes one item.
func (c *Coordinator) Remove(ctx context.Context, id string) error {
	err := c.store.Remove(ctx, id)
	metrics.Requests.WithLabelValues(protocol.ActionRemove, metrics.Result(err == nil)).Inc()
	return err
}

// Clear deletes every item.
func (c *Coordinator) Clear(ctx context.Context) error {
	err := c.store.Clear(ctx)
	metrics.Requests.WithLabelValues(protocol.ActionClear, metrics.Result(err == nil)).Inc()
	return err
}

// LoadSettings returns the user's settings.
func (c *Coordinator) LoadSettings(ctx context.Context) types.Settings {
	return c.store.LoadSettings(ctx)
}

// SaveSettings overwrites the user's settings.
func (c *Coordinator) SaveSettings(ctx context.Context, s types.Settings) error {
	return c.store.SaveSettings(ctx, s)
}

// Open opens item.URL in a new page and, after ScrollRestoreDelay,
// scrolls it to the saved position. Restore failures are only logged: the
// navigation already succeeded.
func (c *Coordinator) Open(ctx context.Context, item types.SavedItem) (browser.Tab, error) {
	tab, err := c.host.Open(ctx, item.URL)
	metrics.Requests.WithLabelValues(protocol.ActionOpen, metrics.Result(err == nil)).Inc()
	if err != nil {
		applog.Error("coordinator.open", err, "url", item.URL)
		return browser.Tab{}, fmt.Errorf("open %s: %w", item.URL, err)
	}
	applog.Info("coordinator.opened", "id", item.ID, "tab", tab.ID)

	if item.ScrollPosition > 0 {
		c.afterFunc(c.cfg.ScrollRestoreDelay, func() {
			rctx, cancel := context.WithTimeout(context.Background(), c.cfg.HostTimeout)
			defer cancel()
			if err := c.host.RestoreScrollPosition(rctx, tab.ID, item.ScrollPosition); err != nil {
				metrics.ScrollRestoreFailures.Inc()
				applog.Error("coordinator.scroll_restore", err, "tab", tab.ID, "y", item.ScrollPosition)
			}
		})
	}
	return tab, nil
}

// CapturePage describes the active page for saving. The scroll offset and
// favicon are best-effort and fall back to 0 and the bundled icon.
func (c *Coordinator) CapturePage(ctx context.Context) (types.Candidate, browser.Tab, error) {
	tab, err := c.host.Active(ctx)
	if err != nil {
		return types.Candidate{}, browser.Tab{}, fmt.Errorf("active tab: %w", err)
	}

	cand := types.Candidate{
		URL:     tab.URL,
		Title:   tab.Title,
		Favicon: types.DefaultFavicon,
	}
	if y, err := c.host.ReadScrollPosition(ctx, tab.ID); err != nil {
		applog.Error("coordinator.read_scroll", err, "tab", tab.ID)
	} else {
		cand.ScrollPosition = max(y, 0)
	}
	if icon, err := c.host.ReadFaviconLink(ctx, tab.ID); err != nil {
		applog.Error("coordinator.read_favicon", err, "tab", tab.ID)
	} else if icon != "" {
		cand.Favicon = icon
	}
	return cand, tab, nil
}

// ActiveTab reports the page the user is looking at.
func (c *Coordinator) ActiveTab(ctx context.Context) (browser.Tab, error) {
	return c.host.Active(ctx)
}

// CloseTab closes a page.
func (c *Coordinator) CloseTab(ctx context.Context, tabID int) error {
	return c.host.Close(ctx, tabID)
}

// Changes subscribes to store changes (items and settings).
func (c *Coordinator) Changes() (<-chan storage.Change, func()) {
	return c.changes.Subscribe()
}

// PageConnected schedules a checkLaterReadItems notification for a page
// context that just appeared.
func (c *Coordinator) PageConnected(tabID int) {
	if c.pages == nil {
		return
	}
	c.afterFunc(c.cfg.PageCheckDelay, func() {
		if err := c.pages.SendTo(tabID, protocol.CheckItems()); err != nil {
			applog.Info("coordinator.check_skipped", "tab", tabID, "reason", err.Error())
		}
	})
}

// Run forwards every change of the item list to all page contexts until
// ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) error {
	ch, cancel := c.changes.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case change, ok := <-ch:
			if !ok {
				return nil
			}
			if change.Key != types.ItemsKey {
				continue
			}
			var list []types.SavedItem
			if err := json.Unmarshal(change.Value, &list); err != nil {
				applog.Error("coordinator.decode_change", err)
				continue
			}
			metrics.SavedItems.Set(float64(len(list)))
			if c.pages == nil {
				continue
			}
			n := c.pages.Broadcast(protocol.ItemsUpdated(list))
			metrics.Broadcasts.Add(float64(n))
			applog.Info("coordinator.broadcast", "items", len(list), "pages", n)
		}
	}
}

// Handle answers one request. It never returns an error; failures are
// reported in the response.
func (c *Coordinator) Handle(ctx context.Context, req protocol.Message) protocol.Message {
	resp := protocol.Reply(req)
	switch req.Action {
	case protocol.ActionSave:
		if req.Data == nil {
			return resp.Failed(errors.New("missing data"))
		}
		item, err := c.Save(ctx, *req.Data)
		if err != nil {
			return resp.Failed(err)
		}
		resp.Item = &item
		return resp.Succeeded()

	case protocol.ActionList:
		resp.Items = c.List(ctx)
		if resp.Items == nil {
			resp.Items = []types.SavedItem{}
		}
		return resp.Succeeded()

	case protocol.ActionRemove:
		if err := c.Remove(ctx, req.ID); err != nil {
			return resp.Failed(err)
		}
		return resp.Succeeded()

	case protocol.ActionClear:
		if err := c.Clear(ctx); err != nil {
			return resp.Failed(err)
		}
		return resp.Succeeded()

	case protocol.ActionOpen:
		if req.Item == nil {
			return resp.Failed(errors.New("missing item"))
		}
		tab, err := c.Open(ctx, *req.Item)
		if err != nil {
			return resp.Failed(err)
		}
		resp.Tab = &tab
		return resp.Succeeded()

	default:
		return resp.Failed(fmt.Errorf("unknown action %q", req.Action))
	}
}
