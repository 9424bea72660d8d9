package pagemeta

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const articleHTML = `<!DOCTYPE html>
<html><head><title>Test Article</title>%s</head>
<body>
<article>
<h1>Test Article</h1>
<p>This is the main content of the article. It has enough text to be considered readable content by the readability algorithm. The quick brown fox jumps over the lazy dog. This paragraph needs to be long enough for readability to pick it up as meaningful content.</p>
<p>Second paragraph with more meaningful content that helps the readability parser understand this is a real article and not just navigation or boilerplate. We need several sentences here to make this work properly.</p>
</article>
</body></html>`

func serve(head string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(strings.Replace(articleHTML, "%s", head, 1)))
	}))
}

func TestLookup(t *testing.T) {
	srv := serve(`<link rel="icon" href="/static/icon.png">`)
	defer srv.Close()

	meta, err := New().Lookup(context.Background(), srv.URL+"/post")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if meta.Title == "" {
		t.Error("expected non-empty title")
	}
	if meta.Favicon != srv.URL+"/static/icon.png" {
		t.Errorf("favicon = %q", meta.Favicon)
	}
	if !strings.Contains(meta.Text, "quick brown fox") {
		t.Errorf("text = %q", meta.Text)
	}
}

func TestLookup_DefaultFavicon(t *testing.T) {
	srv := serve("")
	defer srv.Close()

	meta, err := New().Lookup(context.Background(), srv.URL+"/post")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if meta.Favicon != srv.URL+"/favicon.ico" {
		t.Errorf("favicon = %q, want host /favicon.ico", meta.Favicon)
	}
}

func TestLookup_SkipsNonHTTP(t *testing.T) {
	urls := []string{
		"about:newtab",
		"moz-extension://abc/page",
		"chrome-extension://abc/popup.html",
		"file:///home/user/doc.html",
		"chrome://settings",
		"data:text/html,hello",
	}
	for _, u := range urls {
		if _, err := New().Lookup(context.Background(), u); err == nil {
			t.Errorf("expected error for %q, got nil", u)
		}
	}
}

func TestLookup_SendsUserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<!DOCTYPE html><html><head><title>T</title></head><body><p>text</p></body></html>`))
	}))
	defer srv.Close()

	New().Lookup(context.Background(), srv.URL)
	if gotUA == "" || gotUA == "Go-http-client/1.1" {
		t.Errorf("expected browser-like User-Agent, got %q", gotUA)
	}
}

func TestLookup_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
	}))
	defer srv.Close()

	if _, err := New().Lookup(context.Background(), srv.URL); err == nil {
		t.Error("expected error for 500 response")
	}
}
