// Package browser describes the capabilities laterread needs from whatever
// is hosting the pages: opening and closing them, and running small
// snippets inside them.
package browser

import (
	"context"
	"errors"

	"github.com/lotas/laterread/internal/protocol"
)

// ErrUnsupported is returned by hosts that cannot perform an operation.
var ErrUnsupported = errors.New("not supported by this host")

// Tab identifies an open page.
type Tab = protocol.Tab

// Navigator opens, closes and reports pages.
type Navigator interface {
	Open(ctx context.Context, url string) (Tab, error)
	Close(ctx context.Context, tabID int) error
	Active(ctx context.Context) (Tab, error)
}

// PageController runs snippets inside a page.
type PageController interface {
	ReadScrollPosition(ctx context.Context, tabID int) (int, error)
	RestoreScrollPosition(ctx context.Context, tabID int, y int) error
	ReadFaviconLink(ctx context.Context, tabID int) (string, error)
}

// Host is a complete page host.
type Host interface {
	Navigator
	PageController
}
