// Package chrome drives a Chrome or Chromium browser over the DevTools
// protocol, either by launching one or by attaching to a running instance.
package chrome

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/chromedp"

	"github.com/lotas/laterread/internal/applog"
	"github.com/lotas/laterread/internal/browser"
)

// Options selects how the browser is reached.
type Options struct {
	// RemoteURL attaches to an existing browser (ws://host:port/...).
	RemoteURL string
	// ExecPath overrides the browser binary when launching.
	ExecPath string
	Headless bool
	// UserDataDir keeps the launched browser's profile.
	UserDataDir string
}

type tab struct {
	ctx    context.Context
	cancel context.CancelFunc
	url    string
	title  string
}

// Host implements browser.Host on chromedp. The browser is started on the
// first Open.
type Host struct {
	opts Options

	mu          sync.Mutex
	allocCancel context.CancelFunc
	browserCtx  context.Context
	browserStop context.CancelFunc
	tabs        map[int]*tab
	next        int
	active      int
}

var _ browser.Host = (*Host)(nil)

// New returns a Host. Nothing is launched until a page is opened.
func New(opts Options) *Host {
	return &Host{opts: opts, tabs: make(map[int]*tab)}
}

func (h *Host) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("disable-default-apps", true),
	}
	if h.opts.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(h.opts.UserDataDir))
	}
	if h.opts.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(h.opts.ExecPath))
	}
	if h.opts.Headless {
		opts = append(opts, chromedp.Headless)
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	return opts
}

// start must be called with h.mu held.
func (h *Host) start() error {
	if h.browserCtx != nil {
		return nil
	}
	var allocCtx context.Context
	var allocCancel context.CancelFunc
	if h.opts.RemoteURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.Background(), h.opts.RemoteURL)
	} else {
		allocCtx, allocCancel = chromedp.NewExecAllocator(context.Background(), h.allocatorOptions()...)
	}
	browserCtx, browserStop := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserStop()
		allocCancel()
		return fmt.Errorf("start browser: %w", err)
	}
	h.allocCancel = allocCancel
	h.browserCtx = browserCtx
	h.browserStop = browserStop
	applog.Info("chrome.started", "remote", h.opts.RemoteURL != "")
	return nil
}

// Shutdown closes every page and the browser connection.
func (h *Host) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, t := range h.tabs {
		t.cancel()
		delete(h.tabs, id)
	}
	if h.browserStop != nil {
		h.browserStop()
		h.allocCancel()
		h.browserCtx = nil
	}
}

func (h *Host) tab(tabID int) (*tab, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.tabs[tabID]
	if !ok {
		return nil, fmt.Errorf("tab %d not open", tabID)
	}
	return t, nil
}

// run executes actions in the tab, bounded by ctx.
func (h *Host) run(ctx context.Context, tabID int, actions ...chromedp.Action) error {
	t, err := h.tab(tabID)
	if err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(t.ctx, actions...) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Host) Open(ctx context.Context, url string) (browser.Tab, error) {
	h.mu.Lock()
	if err := h.start(); err != nil {
		h.mu.Unlock()
		return browser.Tab{}, err
	}
	tctx, cancel := chromedp.NewContext(h.browserCtx)
	h.next++
	id := h.next
	t := &tab{ctx: tctx, cancel: cancel, url: url}
	h.tabs[id] = t
	h.active = id
	h.mu.Unlock()

	var title string
	if err := h.run(ctx, id, chromedp.Navigate(url), chromedp.Title(&title)); err != nil {
		h.Close(ctx, id)
		return browser.Tab{}, fmt.Errorf("navigate %s: %w", url, err)
	}
	h.mu.Lock()
	t.title = title
	h.mu.Unlock()
	applog.Info("chrome.opened", "tab", id, "url", url)
	return browser.Tab{ID: id, URL: url, Title: title}, nil
}

func (h *Host) Close(ctx context.Context, tabID int) error {
	h.mu.Lock()
	t, ok := h.tabs[tabID]
	if ok {
		delete(h.tabs, tabID)
		if h.active == tabID {
			h.active = 0
		}
	}
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("tab %d not open", tabID)
	}
	t.cancel()
	return nil
}

// Active returns the most recently opened page that is still open.
func (h *Host) Active(ctx context.Context) (browser.Tab, error) {
	h.mu.Lock()
	id := h.active
	t, ok := h.tabs[id]
	var url, title string
	if ok {
		url, title = t.url, t.title
	}
	h.mu.Unlock()
	if !ok {
		return browser.Tab{}, fmt.Errorf("no active tab")
	}

	var loc string
	if err := h.run(ctx, id, chromedp.Location(&loc), chromedp.Title(&title)); err == nil {
		url = loc
	}
	return browser.Tab{ID: id, URL: url, Title: title}, nil
}

func (h *Host) ReadScrollPosition(ctx context.Context, tabID int) (int, error) {
	var y float64
	if err := h.run(ctx, tabID, chromedp.Evaluate(readScrollJS, &y)); err != nil {
		return 0, fmt.Errorf("read scroll: %w", err)
	}
	return max(int(y), 0), nil
}

func (h *Host) RestoreScrollPosition(ctx context.Context, tabID, y int) error {
	if err := h.run(ctx, tabID, chromedp.Evaluate(scrollToJS(y), nil)); err != nil {
		return fmt.Errorf("restore scroll: %w", err)
	}
	return nil
}

func (h *Host) ReadFaviconLink(ctx context.Context, tabID int) (string, error) {
	var href string
	if err := h.run(ctx, tabID, chromedp.Evaluate(faviconJS, &href)); err != nil {
		return "", fmt.Errorf("read favicon: %w", err)
	}
	return href, nil
}

const readScrollJS = `Math.round(window.scrollY || document.documentElement.scrollTop || 0)`

const faviconJS = `(function() {
	var link = document.querySelector('link[rel*="icon"]');
	return link ? link.href : "";
})()`

func scrollToJS(y int) string {
	return fmt.Sprintf("window.scrollTo({top: %d, behavior: 'smooth'})", max(y, 0))
}
