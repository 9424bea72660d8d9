package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
)

const testPage = `<!DOCTYPE html>
<html><head><title>Slow Reading</title><link rel="icon" href="/i.png"></head>
<body><article><h1>Slow Reading</h1>
<p>A long article about reading slowly, with enough words in it for the readability parser to treat it as the main content of the page.</p>
<p>Another paragraph so the extraction has something substantial to work with and does not give up on the document.</p>
</article></body></html>`

// runCLI executes the root command against a temporary home and database.
func runCLI(t *testing.T, db string, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--db", db, "--config", filepath.Join(t.TempDir(), "none.yaml")}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCLISaveListRemove(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	db := filepath.Join(t.TempDir(), "test.db")
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(testPage))
	}))
	defer ts.Close()

	out, err := runCLI(t, db, "", "save", ts.URL+"/post", "--scroll", "640")
	if err != nil {
		t.Fatalf("save: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Slow Reading") {
		t.Errorf("save output: %s", out)
	}

	out, err = runCLI(t, db, "", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, ts.URL+"/post") || !strings.Contains(out, "at 640") {
		t.Errorf("list output: %s", out)
	}
	id := strings.Fields(out)[0]
	if !strings.HasPrefix(id, "id_") {
		t.Fatalf("unexpected id %q", id)
	}

	out, err = runCLI(t, db, "", "export", "--json")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	var doc struct {
		Count int `json:"count"`
		Sites []struct {
			Items []struct {
				Favicon string `json:"favicon"`
			} `json:"items"`
		} `json:"sites"`
	}
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("export JSON: %v\n%s", err, out)
	}
	if doc.Count != 1 || doc.Sites[0].Items[0].Favicon != ts.URL+"/i.png" {
		t.Errorf("export = %+v", doc)
	}

	if _, err := runCLI(t, db, "", "remove", "id_missing"); err == nil {
		t.Error("expected error for unknown id")
	}
	if out, err = runCLI(t, db, "", "remove", id); err != nil {
		t.Fatalf("remove: %v", err)
	}
	out, _ = runCLI(t, db, "", "list")
	if !strings.Contains(out, "No saved pages.") {
		t.Errorf("list after remove: %s", out)
	}
}

func TestCLISaveWithoutNetwork(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	db := filepath.Join(t.TempDir(), "test.db")

	out, err := runCLI(t, db, "", "save", "about:blank", "--title", "Blank")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !strings.Contains(out, "Blank") {
		t.Errorf("output: %s", out)
	}
}

func TestCLIClearConfirms(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	db := filepath.Join(t.TempDir(), "test.db")
	runCLI(t, db, "", "save", "about:a", "--title", "A")
	runCLI(t, db, "", "save", "about:b", "--title", "B")

	out, err := runCLI(t, db, "n\n", "clear")
	if err != nil || !strings.Contains(out, "Cancelled.") {
		t.Fatalf("clear declined: %v %s", err, out)
	}
	out, err = runCLI(t, db, "y\n", "clear")
	if err != nil || !strings.Contains(out, "Cleared 2 pages.") {
		t.Fatalf("clear: %v %s", err, out)
	}
	out, _ = runCLI(t, db, "", "clear", "--yes")
	if !strings.Contains(out, "Nothing to clear.") {
		t.Errorf("second clear: %s", out)
	}
}

func TestCLIOpenWithoutCoordinator(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	db := filepath.Join(t.TempDir(), "test.db")
	runCLI(t, db, "", "save", "about:a", "--title", "A")
	out, _ := runCLI(t, db, "", "list")
	id := strings.Fields(out)[0]

	_, err := runCLI(t, db, "", "--addr", "127.0.0.1:1", "open", id)
	if err == nil || !strings.Contains(err.Error(), "no coordinator") {
		t.Errorf("open = %v", err)
	}
	out, _ = runCLI(t, db, "", "list")
	if !strings.Contains(out, id) {
		t.Error("failed open must keep the item")
	}
}

func TestCLIConfigInit(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.yaml")
	root := newRootCmd()
	root.SetArgs([]string{"--config", path, "config", "init"})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("config init: %v", err)
	}
	root = newRootCmd()
	root.SetArgs([]string{"--config", path, "config", "init"})
	if err := root.ExecuteContext(context.Background()); err == nil {
		t.Error("second init without --force should fail")
	}
}

func TestRejectsUnknownHost(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	_, err := runCLI(t, filepath.Join(t.TempDir(), "test.db"), "", "--host", "lynx", "list")
	if err == nil || !strings.Contains(err.Error(), "unsupported host") {
		t.Errorf("err = %v", err)
	}
}

func TestCLICheckReportsDuplicates(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	db := filepath.Join(t.TempDir(), "test.db")
	runCLI(t, db, "", "save", "about:dup", "--title", "One")
	runCLI(t, db, "", "save", "about:dup#again", "--title", "Two")
	runCLI(t, db, "", "save", "about:other", "--title", "Three")

	out, err := runCLI(t, db, "", "check", "--offline")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !strings.Contains(out, "3 pages: 0 dead, 2 duplicate, 0 stale") {
		t.Errorf("check output: %s", out)
	}
	if strings.Contains(out, "Three") {
		t.Errorf("healthy page should not be listed: %s", out)
	}
}
