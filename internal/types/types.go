package types

import (
	"sort"
	"time"
)

// Persisted keys in the key-value area.
const (
	ItemsKey    = "laterReadItems"
	SettingsKey = "laterReadSettings"
)

// DefaultTitle is shown for pages saved without a title.
const DefaultTitle = "untitled page"

// DefaultFavicon is the bundled icon used when a page has no favicon.
const DefaultFavicon = "icons/icon-128.png"

// SavedItem is one "read later" bookmark.
type SavedItem struct {
	ID             string `json:"id"`
	URL            string `json:"url"`
	Title          string `json:"title"`
	Favicon        string `json:"favicon,omitempty"`
	ScrollPosition int    `json:"scrollPosition"`
	Timestamp      int64  `json:"timestamp"` // epoch milliseconds
}

// Candidate is what a surface submits to be saved; the store assigns ID and Timestamp.
type Candidate struct {
	URL            string `json:"url"`
	Title          string `json:"title"`
	Favicon        string `json:"favicon,omitempty"`
	ScrollPosition int    `json:"scrollPosition"`
}

// Settings holds the user's preferences.
type Settings struct {
	CloseTabAfterSave bool `json:"closeTabAfterSave"`
}

// DefaultSettings is used when nothing has been persisted yet.
func DefaultSettings() Settings {
	return Settings{CloseTabAfterSave: true}
}

// DisplayTitle returns the title or DefaultTitle if it is empty.
func (i SavedItem) DisplayTitle() string {
	if i.Title == "" {
		return DefaultTitle
	}
	return i.Title
}

// DisplayFavicon returns the favicon or DefaultFavicon if it is empty.
func (i SavedItem) DisplayFavicon() string {
	if i.Favicon == "" {
		return DefaultFavicon
	}
	return i.Favicon
}

// SavedAt converts Timestamp to a time.Time.
func (i SavedItem) SavedAt() time.Time {
	return time.UnixMilli(i.Timestamp)
}

// NewestFirst returns a copy of items sorted by timestamp descending.
func NewestFirst(items []SavedItem) []SavedItem {
	out := make([]SavedItem, len(items))
	copy(out, items)
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Timestamp > out[b].Timestamp
	})
	return out
}

// ContainsURL reports whether any item points at url.
func ContainsURL(items []SavedItem, url string) bool {
	for _, it := range items {
		if it.URL == url {
			return true
		}
	}
	return false
}
