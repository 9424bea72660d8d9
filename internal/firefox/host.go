package firefox

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/lotas/laterread/internal/browser"
)

// SessionHost reads the user's open pages from the session file of a
// Firefox profile. It can open pages by launching Firefox but cannot close
// tabs or scroll them.
type SessionHost struct {
	profileDir string
	launch     func(ctx context.Context, url string) error
}

var _ browser.Host = (*SessionHost)(nil)

// NewSessionHost returns a host for the profile at profileDir.
func NewSessionHost(profileDir string) *SessionHost {
	return &SessionHost{profileDir: profileDir, launch: launchFirefox}
}

func launchFirefox(ctx context.Context, url string) error {
	cmd := exec.CommandContext(ctx, "firefox", "--new-tab", url)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start firefox: %w", err)
	}
	go cmd.Wait()
	return nil
}

func (h *SessionHost) pages() ([]Page, error) {
	return ReadSessionFile(h.profileDir)
}

func (h *SessionHost) page(tabID int) (Page, error) {
	pages, err := h.pages()
	if err != nil {
		return Page{}, err
	}
	for _, p := range pages {
		if p.ID == tabID {
			return p, nil
		}
	}
	return Page{}, fmt.Errorf("tab %d not in session", tabID)
}

// Open launches Firefox with url. The new tab's id is unknown until the
// session file is rewritten, so the returned tab has ID 0.
func (h *SessionHost) Open(ctx context.Context, url string) (browser.Tab, error) {
	if err := h.launch(ctx, url); err != nil {
		return browser.Tab{}, err
	}
	return browser.Tab{URL: url}, nil
}

func (h *SessionHost) Close(ctx context.Context, tabID int) error {
	return fmt.Errorf("close tab: %w", browser.ErrUnsupported)
}

// Active returns the selected tab, or the most recently used one when the
// session does not record a selection.
func (h *SessionHost) Active(ctx context.Context) (browser.Tab, error) {
	pages, err := h.pages()
	if err != nil {
		return browser.Tab{}, err
	}
	if len(pages) == 0 {
		return browser.Tab{}, fmt.Errorf("no open tabs in session")
	}
	best := pages[0]
	for _, p := range pages {
		if p.Selected {
			best = p
			break
		}
		if p.LastAccessed.After(best.LastAccessed) {
			best = p
		}
	}
	return browser.Tab{ID: best.ID, URL: best.URL, Title: best.Title}, nil
}

func (h *SessionHost) ReadScrollPosition(ctx context.Context, tabID int) (int, error) {
	p, err := h.page(tabID)
	if err != nil {
		return 0, err
	}
	return p.ScrollY, nil
}

func (h *SessionHost) RestoreScrollPosition(ctx context.Context, tabID, y int) error {
	return fmt.Errorf("scroll tab: %w", browser.ErrUnsupported)
}

func (h *SessionHost) ReadFaviconLink(ctx context.Context, tabID int) (string, error) {
	p, err := h.page(tabID)
	if err != nil {
		return "", err
	}
	return p.Favicon, nil
}
