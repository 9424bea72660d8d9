package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/lotas/laterread/internal/applog"
)

// Change describes a successful write to one key.
type Change struct {
	Key   string
	Value json.RawMessage
}

// KV is an observable key-value area backed by the kv table. Every
// successful Set is announced to all subscribers, whoever the writer was.
type KV struct {
	db *sql.DB

	mu       sync.Mutex
	subs     map[chan Change]struct{}
	versions map[string]int64 // last version announced per key
	depth    int
}

// NewKV wraps an open database returned by OpenDB.
func NewKV(db *sql.DB) *KV {
	return &KV{
		db:       db,
		subs:     make(map[chan Change]struct{}),
		versions: make(map[string]int64),
		depth:    64,
	}
}

// Get decodes the value stored under key into v. It reports false if the
// key has never been written.
func (s *KV) Get(ctx context.Context, key string, v any) (bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&raw)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// Set replaces the value under key and notifies subscribers.
func (s *KV) Set(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	var version int64
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO kv (key, value, version, updated_at) VALUES (?, ?, 1, ?)
		 ON CONFLICT(key) DO UPDATE SET
		     value = excluded.value,
		     version = kv.version + 1,
		     updated_at = excluded.updated_at
		 RETURNING version`,
		key, string(data), time.Now().UTC(),
	).Scan(&version)
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}

	s.mu.Lock()
	s.versions[key] = version
	s.mu.Unlock()

	s.publish(Change{Key: key, Value: data})
	return nil
}

// Subscribe registers a subscriber and returns its channel and a cancel func.
func (s *KV) Subscribe() (<-chan Change, func()) {
	ch := make(chan Change, s.depth)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, ch)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// Poll compares stored versions against the last announced ones and
// publishes changes made by other processes.
func (s *KV) Poll(ctx context.Context) error {
	return s.scan(ctx, true)
}

// Prime records the current versions without announcing them.
func (s *KV) Prime(ctx context.Context) error {
	return s.scan(ctx, false)
}

func (s *KV) scan(ctx context.Context, announce bool) error {
	rows, err := s.db.QueryContext(ctx, "SELECT key, value, version FROM kv")
	if err != nil {
		return fmt.Errorf("poll kv: %w", err)
	}
	defer rows.Close()

	var changed []Change
	s.mu.Lock()
	for rows.Next() {
		var key, value string
		var version int64
		if err := rows.Scan(&key, &value, &version); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("scan kv: %w", err)
		}
		if version != s.versions[key] {
			s.versions[key] = version
			if !announce {
				continue
			}
			changed = append(changed, Change{Key: key, Value: json.RawMessage(value)})
		}
	}
	s.mu.Unlock()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate kv: %w", err)
	}

	for _, c := range changed {
		s.publish(c)
	}
	return nil
}

func (s *KV) publish(c Change) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- c:
		default:
			applog.Info("kv.subscriber_full", "key", c.Key)
		}
	}
}
