package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// testDB creates a temporary database for testing.
func testDB(t *testing.T) (*sql.DB, string) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	db, err := OpenDB(dbPath)
	if err != nil {
		t.Fatalf("OpenDB(%q): %v", dbPath, err)
	}
	t.Cleanup(func() { db.Close() })
	return db, dbPath
}

func TestOpenDB(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "sub", "dir", "laterread.db")

	db, err := OpenDB(dbPath)
	if err != nil {
		t.Fatalf("OpenDB failed: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("database file not found: %v", err)
	}

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&n); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if n != len(migrations) {
		t.Errorf("expected %d applied migrations, got %d", len(migrations), n)
	}
}

func TestOpenDB_Idempotent(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "again.db")
	for i := 0; i < 2; i++ {
		db, err := OpenDB(dbPath)
		if err != nil {
			t.Fatalf("OpenDB #%d: %v", i+1, err)
		}
		db.Close()
	}
}

func TestKVGetMissing(t *testing.T) {
	db, _ := testDB(t)
	kv := NewKV(db)

	var v []string
	found, err := kv.Get(context.Background(), "nothing", &v)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if found {
		t.Error("expected found=false for missing key")
	}
}

func TestKVSetGetRoundTrip(t *testing.T) {
	db, _ := testDB(t)
	kv := NewKV(db)
	ctx := context.Background()

	if err := kv.Set(ctx, "list", []string{"a", "b"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := kv.Set(ctx, "list", []string{"c"}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	var got []string
	found, err := kv.Get(ctx, "list", &got)
	if err != nil || !found {
		t.Fatalf("Get: found=%v err=%v", found, err)
	}
	if len(got) != 1 || got[0] != "c" {
		t.Errorf("got %v, want [c]", got)
	}
}

func TestKVSubscribersNotifiedOnWrite(t *testing.T) {
	db, _ := testDB(t)
	kv := NewKV(db)
	ctx := context.Background()

	ch1, cancel1 := kv.Subscribe()
	defer cancel1()
	ch2, cancel2 := kv.Subscribe()
	defer cancel2()

	if err := kv.Set(ctx, "settings", map[string]bool{"closeTabAfterSave": false}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	for i, ch := range []<-chan Change{ch1, ch2} {
		select {
		case c := <-ch:
			if c.Key != "settings" {
				t.Errorf("subscriber %d: key %q", i, c.Key)
			}
			var m map[string]bool
			if err := json.Unmarshal(c.Value, &m); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if m["closeTabAfterSave"] {
				t.Errorf("subscriber %d: unexpected value %v", i, m)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d not notified", i)
		}
	}
}

func TestKVCancelStopsDelivery(t *testing.T) {
	db, _ := testDB(t)
	kv := NewKV(db)

	ch, cancel := kv.Subscribe()
	cancel()
	cancel() // second cancel is a no-op

	if err := kv.Set(context.Background(), "k", 1); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok := <-ch; ok {
		t.Error("expected closed channel after cancel")
	}
}

func TestKVSetFailureNotAnnounced(t *testing.T) {
	db, _ := testDB(t)
	kv := NewKV(db)
	ch, cancel := kv.Subscribe()
	defer cancel()

	db.Close()
	if err := kv.Set(context.Background(), "k", 1); err == nil {
		t.Fatal("expected error writing to closed database")
	}
	select {
	case c := <-ch:
		t.Fatalf("unexpected notification %+v", c)
	default:
	}
}

func TestKVPollSeesOtherWriters(t *testing.T) {
	db, dbPath := testDB(t)
	ctx := context.Background()
	reader := NewKV(db)
	if err := reader.Prime(ctx); err != nil {
		t.Fatalf("Prime: %v", err)
	}
	ch, cancel := reader.Subscribe()
	defer cancel()

	// A second connection stands in for another process.
	other, err := OpenDB(dbPath)
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	defer other.Close()
	if err := NewKV(other).Set(ctx, "laterReadItems", []int{1}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if err := reader.Poll(ctx); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	select {
	case c := <-ch:
		if c.Key != "laterReadItems" {
			t.Errorf("got key %q", c.Key)
		}
	default:
		t.Fatal("expected change from other writer")
	}

	// Nothing new: no second announcement.
	if err := reader.Poll(ctx); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	select {
	case c := <-ch:
		t.Fatalf("duplicate announcement %+v", c)
	default:
	}
}

func TestKVWatchAnnouncesExternalWrite(t *testing.T) {
	db, dbPath := testDB(t)
	kv := NewKV(db)
	ch, cancel := kv.Subscribe()
	defer cancel()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go kv.Watch(ctx, dbPath, 20*time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	other, err := OpenDB(dbPath)
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	defer other.Close()
	if err := NewKV(other).Set(context.Background(), "laterReadItems", []int{1, 2}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	select {
	case c := <-ch:
		if c.Key != "laterReadItems" {
			t.Errorf("got key %q", c.Key)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not announce external write")
	}
}
