// Package export renders saved items for use outside laterread.
package export

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/lotas/laterread/internal/reltime"
	"github.com/lotas/laterread/internal/types"
)

// site is the items saved from one host, newest first.
type site struct {
	Domain string
	Items  []types.SavedItem
}

// bySite groups items by host. Sites are ordered by their newest item.
func bySite(items []types.SavedItem) []site {
	var sites []site
	index := make(map[string]int)
	for _, it := range types.NewestFirst(items) {
		d := extractDomain(it.URL)
		i, ok := index[d]
		if !ok {
			i = len(sites)
			index[d] = i
			sites = append(sites, site{Domain: d})
		}
		sites[i].Items = append(sites[i].Items, it)
	}
	return sites
}

// Markdown formats the saved items as a markdown reading list.
func Markdown(items []types.SavedItem, now time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Read Later (%d %s)\n", len(items), plural(len(items), "page"))
	fmt.Fprintf(&b, "> Exported %s\n", now.Format("2006-01-02 15:04"))

	for _, s := range bySite(items) {
		n := len(s.Items)
		fmt.Fprintf(&b, "\n## %s (%d %s)\n\n", s.Domain, n, plural(n, "page"))
		for _, it := range s.Items {
			title := it.Title
			if title == "" {
				title = it.URL
			}
			fmt.Fprintf(&b, "- [%s](%s) — saved %s\n", title, it.URL, reltime.Since(now, it.SavedAt()))
		}
	}
	return b.String()
}

func plural(n int, noun string) string {
	if n == 1 {
		return noun
	}
	return noun + "s"
}

func extractDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}
