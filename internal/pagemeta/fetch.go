// Package pagemeta looks up a page's title and favicon over HTTP, for
// saving a URL without a browser.
package pagemeta

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
)

var skipPrefixes = []string{"about:", "moz-extension:", "chrome-extension:", "file:", "chrome:", "resource:", "data:"}

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Meta is what could be learned about a page.
type Meta struct {
	Title   string
	Favicon string
	Text    string // readable body text, used by the page host
}

// Fetcher retrieves page metadata.
type Fetcher struct {
	client *http.Client
}

// New returns a Fetcher with a 15 second timeout.
func New() *Fetcher {
	return &Fetcher{client: &http.Client{Timeout: 15 * time.Second}}
}

// Lookup fetches rawURL and extracts its title and favicon. When the page
// does not declare an icon, /favicon.ico on the same host is assumed.
// Returns an error for non-HTTP URLs or if extraction fails.
func (f *Fetcher) Lookup(ctx context.Context, rawURL string) (Meta, error) {
	for _, prefix := range skipPrefixes {
		if strings.HasPrefix(rawURL, prefix) {
			return Meta{}, fmt.Errorf("skipping non-HTTP URL: %s", rawURL)
		}
	}
	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return Meta{}, fmt.Errorf("parse %s: %w", rawURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Meta{}, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := f.client.Do(req)
	if err != nil {
		return Meta{}, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return Meta{}, fmt.Errorf("fetch %s: HTTP %d", rawURL, resp.StatusCode)
	}

	article, err := readability.FromReader(resp.Body, pageURL)
	if err != nil {
		return Meta{}, fmt.Errorf("extract metadata from %s: %w", rawURL, err)
	}

	meta := Meta{
		Title: strings.TrimSpace(article.Title),
		Text:  strings.TrimSpace(article.TextContent),
	}
	if icon, err := url.Parse(article.Favicon); err == nil && article.Favicon != "" {
		meta.Favicon = pageURL.ResolveReference(icon).String()
	} else {
		meta.Favicon = (&url.URL{Scheme: pageURL.Scheme, Host: pageURL.Host, Path: "/favicon.ico"}).String()
	}
	return meta, nil
}
