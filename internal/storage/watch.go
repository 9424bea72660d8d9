package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/lotas/laterread/internal/applog"
)

// Watch follows writes to the database file made by other processes (for
// example `laterread save` while the coordinator is running) and announces
// them through Poll. It blocks until ctx is cancelled.
func (s *KV) Watch(ctx context.Context, dbPath string, debounce time.Duration) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(dbPath)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	if err := s.Prime(ctx); err != nil {
		return err
	}
	applog.Info("kv.watch", "dir", dir)

	base := filepath.Base(dbPath)
	var timer *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// The WAL and shm siblings change on every commit.
			if !strings.HasPrefix(filepath.Base(event.Name), base) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer == nil {
				timer = time.AfterFunc(debounce, func() {
					select {
					case fire <- struct{}{}:
					default:
					}
				})
			} else {
				timer.Reset(debounce)
			}

		case <-fire:
			if err := s.Poll(ctx); err != nil {
				applog.Error("kv.poll", err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			applog.Error("kv.watch", err)
		}
	}
}
