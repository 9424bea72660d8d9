package applog

import (
	"os"
	"path/filepath"
	"sync"

	"pkt.systems/pslog"
)

const (
	maxFileSize = 5 << 20 // 5 MB
	maxValueLen = 200
	truncSuffix = "…"
)

var (
	mu     sync.Mutex
	file   *os.File
	logger pslog.Logger
)

// Init opens the log file for appending. Call once at startup.
// If the file exceeds 5 MB, it is rotated (renamed to .log.1) before opening.
// Safe to skip: all log calls become no-ops if not initialized.
func Init(dir string) error {
	path := filepath.Join(dir, "laterread.log")

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	// Rotate if too large.
	if info, err := os.Stat(path); err == nil && info.Size() > maxFileSize {
		os.Rename(path, path+".1")
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	mu.Lock()
	file = f
	logger = pslog.NewWithOptions(f, pslog.Options{
		Mode:     pslog.ModeStructured,
		NoColor:  true,
		MinLevel: pslog.DebugLevel,
	})
	mu.Unlock()
	return nil
}

// Close flushes and closes the log file.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if file != nil {
		file.Close()
		file = nil
	}
	logger = nil
}

// Info logs a structured event line.
//
//	applog.Info("ws.connected", "remote", addr)
//	applog.Info("item.saved", "id", item.ID, "url", item.URL)
func Info(event string, kv ...any) {
	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		return
	}
	logger.Info(event, clip(kv)...)
}

// Error logs an event with an error.
//
//	applog.Error("ws.send", err, "action", "checkLaterReadItems")
func Error(event string, err error, kv ...any) {
	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		return
	}
	if err != nil {
		kv = append([]any{"err", err.Error()}, kv...)
	}
	logger.Error(event, clip(kv)...)
}

// clip truncates long string values so a single page title or URL cannot
// flood the log.
func clip(kv []any) []any {
	for i := 1; i < len(kv); i += 2 {
		s, ok := kv[i].(string)
		if ok && len(s) > maxValueLen {
			kv[i] = s[:maxValueLen] + truncSuffix
		}
	}
	return kv
}
