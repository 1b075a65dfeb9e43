package vcs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"github.com/starford/engram/internal/apperr"
	"github.com/starford/engram/internal/storage"
)

func TestInit_Layout(t *testing.T) {
	r, store := newRepo(t)

	for _, name := range []string{headFile, objectsFile, commitsFile, stagingFile, configFile} {
		if _, err := os.Stat(filepath.Join(r.Dir(), name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
	h, err := r.Head(ctx)
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if h.Branch != DefaultBranch || h.Hash != "" || h.Detached {
		t.Errorf("head = %+v, want unborn main", h)
	}

	_, err = Init(ctx, store, r.Dir())
	if !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("second Init err = %v, want ErrAlreadyExists", err)
	}
}

func TestOpen_NotInitialized(t *testing.T) {
	store, _ := storage.NewFS(t.TempDir())
	_, err := Open(store, filepath.Join(store.Root(), DirName))
	if !errors.Is(err, apperr.ErrNotInitialized) {
		t.Errorf("err = %v, want ErrNotInitialized", err)
	}
	if IsInitialized(filepath.Join(store.Root(), DirName)) {
		t.Error("IsInitialized = true for empty dir")
	}
}

func TestOpen_CategoriesFromConfig(t *testing.T) {
	r, store := newRepo(t, WithCategories("decisions", "notes"))

	reopened, err := Open(store, r.Dir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got := reopened.Categories()
	if len(got) != 2 || got[0] != "decisions" || got[1] != "notes" {
		t.Errorf("categories = %v", got)
	}

	override, err := Open(store, r.Dir(), WithCategories("patterns"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got := override.Categories(); len(got) != 1 || got[0] != "patterns" {
		t.Errorf("override categories = %v", got)
	}
}

func TestCanceledContext(t *testing.T) {
	r, _ := newRepo(t)
	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Status(canceled); err == nil {
		t.Error("Status with canceled context should fail")
	}
	if _, err := r.Commit(canceled, CommitOptions{Message: "x", All: true}); err == nil {
		t.Error("Commit with canceled context should fail")
	}
}

func TestLock_HeldByAnotherProcess(t *testing.T) {
	r, store := newRepo(t, WithLockTimeout(0))
	writeCategory(t, store, "decisions", blk("d1", "t1", "a"), blk("d2", "t2", "b"))

	lockPath := filepath.Join(r.Dir(), lockFile)
	holder := flock.New(lockPath)
	if err := holder.Lock(); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Stage(ctx, "d1"); !errors.Is(err, apperr.ErrLocked) {
		t.Fatalf("Stage err = %v, want ErrLocked", err)
	}
	if err := holder.Unlock(); err != nil {
		t.Fatal(err)
	}

	// A LOCK file left by a crashed process carries no flock.
	if err := os.WriteFile(lockPath, []byte("999\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if n, err := r.Stage(ctx, "d1"); err != nil || n != 1 {
		t.Fatalf("Stage over leftover LOCK = %d, %v", n, err)
	}
}

func TestLock_WaitsForRelease(t *testing.T) {
	r, store := newRepo(t, WithLockTimeout(5*time.Second))
	writeCategory(t, store, "decisions", blk("d1", "t1", "a"))

	holder := flock.New(filepath.Join(r.Dir(), lockFile))
	if err := holder.Lock(); err != nil {
		t.Fatal(err)
	}
	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = holder.Unlock()
	}()

	if n, err := r.Stage(ctx, "d1"); err != nil || n != 1 {
		t.Fatalf("Stage = %d, %v", n, err)
	}
}

func TestValidateBranchName(t *testing.T) {
	valid := []string{"main", "exp", "feature-x", "v1.2"}
	for _, n := range valid {
		if err := ValidateBranchName(n); err != nil {
			t.Errorf("ValidateBranchName(%q) = %v", n, err)
		}
	}
	invalid := []string{"", "HEAD", "WORKING", "a/b", "a b", "..", "x..y", "detached:abc", ".hidden", "a~1", "tab\tname"}
	for _, n := range invalid {
		if err := ValidateBranchName(n); !errors.Is(err, apperr.ErrInvalidBranchName) {
			t.Errorf("ValidateBranchName(%q) = %v, want ErrInvalidBranchName", n, err)
		}
	}
}
