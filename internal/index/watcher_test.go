package index

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/engram/internal/storage"
)

var watchedCategories = []string{"decisions", "solutions"}

// watcherTestEnv sets up a knowledge dir, storage, and DB for watcher tests.
func watcherTestEnv(t *testing.T) (string, storage.Provider, *DB) {
	t.Helper()
	return syncEnv(t)
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) record(kind, category string) {
	r.mu.Lock()
	r.events = append(r.events, kind+":"+category)
	r.mu.Unlock()
}

func (r *recorder) has(event string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e == event {
			return true
		}
	}
	return false
}

func startWatch(t *testing.T, db *DB, store storage.Provider, cb EventCallback) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = Watch(ctx, db, store, watchedCategories, quietLogger(), cb)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	time.Sleep(100 * time.Millisecond)
}

func TestWatcher_NewFileIndexed(t *testing.T) {
	dir, store, db := watcherTestEnv(t)
	rec := &recorder{}
	startWatch(t, db, store, rec.record)

	_ = os.WriteFile(filepath.Join(dir, "decisions.md"), []byte(decisionsDoc), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		b, _ := db.GetBlock("decisions", "s1")
		return b != nil
	}, "new category file not indexed by watcher")

	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		return rec.has("created:decisions")
	}, "expected created:decisions callback")
}

func TestWatcher_UpdateReindexes(t *testing.T) {
	dir, store, db := watcherTestEnv(t)
	path := filepath.Join(dir, "solutions.md")
	_ = os.WriteFile(path, []byte("## Session: a (2025-01-01)\nold body\n"), 0o644)
	if err := Sync(db, store, watchedCategories, quietLogger()); err != nil {
		t.Fatal(err)
	}

	rec := &recorder{}
	startWatch(t, db, store, rec.record)

	// Written through the provider so the atomic rename path is covered.
	if err := store.Write("solutions.md", []byte("## Session: a (2025-01-01)\nnew body\n")); err != nil {
		t.Fatal(err)
	}

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		b, _ := db.GetBlock("solutions", "a")
		return b != nil && b.Body == "new body"
	}, "updated block not reindexed")

	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		return rec.has("updated:solutions")
	}, "expected updated:solutions callback")
}

func TestWatcher_DeleteRemovesFromIndex(t *testing.T) {
	dir, store, db := watcherTestEnv(t)
	_ = os.WriteFile(filepath.Join(dir, "decisions.md"), []byte(decisionsDoc), 0o644)
	_ = Sync(db, store, watchedCategories, quietLogger())

	if cs, _ := db.GetChecksum("decisions"); cs == "" {
		t.Fatal("precondition: category should be indexed")
	}

	rec := &recorder{}
	startWatch(t, db, store, rec.record)

	_ = os.Remove(filepath.Join(dir, "decisions.md"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		cs, _ := db.GetChecksum("decisions")
		return cs == ""
	}, "deleted category still in index")

	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		return rec.has("deleted:decisions")
	}, "expected deleted:decisions callback")
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir, store, db := watcherTestEnv(t)
	rec := &recorder{}
	startWatch(t, db, store, rec.record)

	_ = os.WriteFile(filepath.Join(dir, "scratch.md"), []byte("## Session: x (2025-01-01)\nbody\n"), 0o644)
	_ = os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("plain"), 0o644)
	time.Sleep(600 * time.Millisecond)

	if _, total, _ := db.ListBlocks("", 10, 0); total != 0 {
		t.Errorf("indexed %d blocks from non-category files", total)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.events) != 0 {
		t.Errorf("unexpected events: %v", rec.events)
	}
}

func TestReconcile_ReportsEachChangeOnce(t *testing.T) {
	dir, store, db := watcherTestEnv(t)
	rec := &recorder{}
	pass := func() {
		t.Helper()
		if err := reconcile(db, store, watchedCategories, quietLogger(), rec.record); err != nil {
			t.Fatalf("reconcile: %v", err)
		}
	}

	path := filepath.Join(dir, "decisions.md")
	if err := os.WriteFile(path, []byte(decisionsDoc), 0o644); err != nil {
		t.Fatal(err)
	}
	pass()
	pass()
	if err := os.WriteFile(path, []byte(decisionsDoc+"\n## Session: s3 (2025-01-03T10:00:00Z)\nMore.\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	pass()
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	pass()

	want := []string{"created:decisions", "updated:decisions", "deleted:decisions"}
	if len(rec.events) != len(want) {
		t.Fatalf("events = %v, want %v", rec.events, want)
	}
	for i := range want {
		if rec.events[i] != want[i] {
			t.Errorf("events = %v, want %v", rec.events, want)
			break
		}
	}
}
