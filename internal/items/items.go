// Package items owns the persisted list of saved pages and the user's
// settings. Every write replaces the whole list (read-modify-write, last
// writer wins).
package items

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/lotas/laterread/internal/applog"
	"github.com/lotas/laterread/internal/types"
)

// ErrPersist marks failures of the underlying key-value write.
var ErrPersist = errors.New("persist failed")

// KV is the key-value area the store persists into.
type KV interface {
	Get(ctx context.Context, key string, v any) (bool, error)
	Set(ctx context.Context, key string, v any) error
}

// Store manipulates the saved-item list and settings.
type Store struct {
	kv     KV
	now    func() time.Time
	newID  func() string
	policy *bluemonday.Policy
}

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// WithIDGenerator overrides item id generation.
func WithIDGenerator(gen func() string) Option { return func(s *Store) { s.newID = gen } }

// New returns a Store over kv.
func New(kv KV, opts ...Option) *Store {
	s := &Store{
		kv:     kv,
		now:    time.Now,
		newID:  NewID,
		policy: bluemonday.StrictPolicy(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// NewID returns an "id_" prefixed UUIDv7.
func NewID() string {
	return "id_" + uuid.Must(uuid.NewV7()).String()
}

// Save appends a new item built from c and persists the list. Only the
// write can fail; an unreadable list is treated as empty, like List.
func (s *Store) Save(ctx context.Context, c types.Candidate) (types.SavedItem, error) {
	list := s.List(ctx)
	item := types.SavedItem{
		ID:             s.newID(),
		URL:            c.URL,
		Title:          s.cleanTitle(c.Title),
		Favicon:        c.Favicon,
		ScrollPosition: max(c.ScrollPosition, 0),
		Timestamp:      s.now().UnixMilli(),
	}
	list = append(list, item)

	if err := s.kv.Set(ctx, types.ItemsKey, list); err != nil {
		applog.Error("items.save", err, "url", c.URL)
		return types.SavedItem{}, fmt.Errorf("%w: %v", ErrPersist, err)
	}
	applog.Info("items.saved", "id", item.ID, "url", item.URL, "scroll", item.ScrollPosition)
	return item, nil
}

// List returns the stored items in insertion order. Read failures degrade
// to an empty list.
func (s *Store) List(ctx context.Context) []types.SavedItem {
	list, err := s.read(ctx)
	if err != nil {
		applog.Error("items.list", err)
		return []types.SavedItem{}
	}
	return list
}

// Remove drops the item with the given id. Unknown ids are not an error.
func (s *Store) Remove(ctx context.Context, id string) error {
	list := s.List(ctx)
	kept := make([]types.SavedItem, 0, len(list))
	for _, it := range list {
		if it.ID != id {
			kept = append(kept, it)
		}
	}
	if err := s.kv.Set(ctx, types.ItemsKey, kept); err != nil {
		applog.Error("items.remove", err, "id", id)
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	applog.Info("items.removed", "id", id, "remaining", len(kept))
	return nil
}

// Clear persists an empty list.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.Set(ctx, types.ItemsKey, []types.SavedItem{}); err != nil {
		applog.Error("items.clear", err)
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	applog.Info("items.cleared")
	return nil
}

// LoadSettings returns the persisted settings, or the defaults when none
// have been saved or they cannot be read.
func (s *Store) LoadSettings(ctx context.Context) types.Settings {
	settings := types.DefaultSettings()
	if _, err := s.kv.Get(ctx, types.SettingsKey, &settings); err != nil {
		applog.Error("settings.load", err)
		return types.DefaultSettings()
	}
	return settings
}

// SaveSettings overwrites the persisted settings.
func (s *Store) SaveSettings(ctx context.Context, settings types.Settings) error {
	if err := s.kv.Set(ctx, types.SettingsKey, settings); err != nil {
		applog.Error("settings.save", err)
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	return nil
}

func (s *Store) read(ctx context.Context) ([]types.SavedItem, error) {
	var list []types.SavedItem
	if _, err := s.kv.Get(ctx, types.ItemsKey, &list); err != nil {
		return nil, err
	}
	if list == nil {
		list = []types.SavedItem{}
	}
	return list, nil
}

// cleanTitle strips markup that pages sometimes leak into document titles.
// The policy escapes entities, so the result is unescaped back to text.
func (s *Store) cleanTitle(title string) string {
	title = strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(title)))
	if title == "" {
		return types.DefaultTitle
	}
	return title
}
