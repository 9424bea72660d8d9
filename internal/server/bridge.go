package server

import (
	"context"
	"fmt"

	"github.com/lotas/laterread/internal/browser"
	"github.com/lotas/laterread/internal/protocol"
)

// Bridge drives the browser through the connected extension host (and page
// contexts for page.* commands).
type Bridge struct {
	s *Server
}

// NewBridge returns a browser.Host backed by s.
func NewBridge(s *Server) *Bridge {
	return &Bridge{s: s}
}

var _ browser.Host = (*Bridge)(nil)

func (b *Bridge) Open(ctx context.Context, url string) (browser.Tab, error) {
	resp, err := b.s.Call(ctx, protocol.Message{Action: protocol.HostTabsCreate, URL: url})
	if err != nil {
		return browser.Tab{}, err
	}
	if resp.Tab == nil {
		return browser.Tab{}, fmt.Errorf("%s: response without tab", protocol.HostTabsCreate)
	}
	return *resp.Tab, nil
}

func (b *Bridge) Close(ctx context.Context, tabID int) error {
	_, err := b.s.Call(ctx, protocol.Message{Action: protocol.HostTabsRemove, TabID: tabID})
	return err
}

func (b *Bridge) Active(ctx context.Context) (browser.Tab, error) {
	resp, err := b.s.Call(ctx, protocol.Message{Action: protocol.HostTabsActive})
	if err != nil {
		return browser.Tab{}, err
	}
	if resp.Tab == nil {
		return browser.Tab{}, fmt.Errorf("%s: response without tab", protocol.HostTabsActive)
	}
	return *resp.Tab, nil
}

func (b *Bridge) ReadScrollPosition(ctx context.Context, tabID int) (int, error) {
	resp, err := b.s.Call(ctx, protocol.Message{Action: protocol.HostReadScroll, TabID: tabID})
	if err != nil {
		return 0, err
	}
	return resp.ScrollY, nil
}

func (b *Bridge) RestoreScrollPosition(ctx context.Context, tabID, y int) error {
	_, err := b.s.Call(ctx, protocol.Message{Action: protocol.HostScrollTo, TabID: tabID, ScrollY: y})
	return err
}

func (b *Bridge) ReadFaviconLink(ctx context.Context, tabID int) (string, error) {
	resp, err := b.s.Call(ctx, protocol.Message{Action: protocol.HostFavicon, TabID: tabID})
	if err != nil {
		return "", err
	}
	return resp.Favicon, nil
}
