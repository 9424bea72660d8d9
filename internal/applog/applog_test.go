package applog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNoopBeforeInit(t *testing.T) {
	// Must not panic.
	Info("test.event", "k", "v")
	Error("test.error", errors.New("boom"))
}

func TestInitWritesEvents(t *testing.T) {
	dir := t.TempDir()
	if err := Init(dir); err != nil {
		t.Fatalf("Init: %v", err)
	}
	Info("item.saved", "id", "id_1", "url", "https://a.test")
	Error("item.save", errors.New("disk full"), "url", "https://b.test")
	Close()

	data, err := os.ReadFile(filepath.Join(dir, "laterread.log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	for _, want := range []string{"item.saved", "id_1", "item.save", "disk full"} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %q:\n%s", want, out)
		}
	}
}

func TestInitRotatesLargeFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "laterread.log")
	big := make([]byte, maxFileSize+1)
	if err := os.WriteFile(path, big, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := Init(dir); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer Close()

	if _, err := os.Stat(path + ".1"); err != nil {
		t.Errorf("expected rotated file: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 0 {
		t.Errorf("new log should start empty, got %d bytes", info.Size())
	}
}

func TestClipTruncatesLongValues(t *testing.T) {
	long := strings.Repeat("x", maxValueLen+50)
	kv := clip([]any{"title", long, "n", 3})
	s := kv[1].(string)
	if !strings.HasSuffix(s, truncSuffix) || len(s) != maxValueLen+len(truncSuffix) {
		t.Errorf("value not truncated: len=%d", len(s))
	}
	if kv[3] != 3 {
		t.Errorf("non-string value changed: %v", kv[3])
	}
}
