package export

import (
	"encoding/json"
	"time"

	"github.com/lotas/laterread/internal/reltime"
	"github.com/lotas/laterread/internal/types"
)

type jsonExport struct {
	ExportedAt time.Time  `json:"exported_at"`
	Count      int        `json:"count"`
	Sites      []jsonSite `json:"sites"`
}

type jsonSite struct {
	Domain string     `json:"domain"`
	Items  []jsonItem `json:"items"`
}

type jsonItem struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	URL            string    `json:"url"`
	Favicon        string    `json:"favicon,omitempty"`
	ScrollPosition int       `json:"scroll_position,omitempty"`
	SavedAt        time.Time `json:"saved_at"`
	SavedAtPretty  string    `json:"saved_at_pretty"`
	SavedDays      int       `json:"saved_days"`
}

// JSON formats the saved items as a JSON document grouped by site.
func JSON(items []types.SavedItem, now time.Time) (string, error) {
	sites := bySite(items)
	out := jsonExport{
		ExportedAt: now,
		Count:      len(items),
		Sites:      make([]jsonSite, 0, len(sites)),
	}

	for _, s := range sites {
		js := jsonSite{Domain: s.Domain, Items: make([]jsonItem, 0, len(s.Items))}
		for _, it := range s.Items {
			saved := it.SavedAt()
			js.Items = append(js.Items, jsonItem{
				ID:             it.ID,
				Title:          it.DisplayTitle(),
				URL:            it.URL,
				Favicon:        it.Favicon,
				ScrollPosition: it.ScrollPosition,
				SavedAt:        saved.UTC(),
				SavedAtPretty:  reltime.Since(now, saved),
				SavedDays:      int(now.Sub(saved).Hours() / 24),
			})
		}
		out.Sites = append(out.Sites, js)
	}

	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b) + "\n", nil
}
