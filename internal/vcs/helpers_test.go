package vcs

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/engram/internal/storage"
)

var ctx = context.Background()

func stepClock() func() time.Time {
	t := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

// newRepo initializes a repository over a fresh knowledge directory.
func newRepo(t *testing.T, opts ...Option) (*Repository, *storage.FS) {
	t.Helper()
	store, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	opts = append([]Option{
		WithClock(stepClock()),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)
	r, err := Init(ctx, store, filepath.Join(store.Root(), DirName), opts...)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	return r, store
}

func blk(id, ts, body string) string {
	return "## Session: " + id + " (" + ts + ")\n\n" + body + "\n\n"
}

func writeCategory(t *testing.T, s storage.Provider, category string, blocks ...string) {
	t.Helper()
	title := strings.ToUpper(category[:1]) + category[1:]
	content := "# " + title + "\n\n" + strings.Join(blocks, "")
	if err := s.Write(storage.CategoryPath(category), []byte(content)); err != nil {
		t.Fatalf("write %s: %v", category, err)
	}
}

func appendBlock(t *testing.T, s storage.Provider, category, block string) {
	t.Helper()
	data, err := s.Read(storage.CategoryPath(category))
	if err != nil {
		t.Fatalf("read %s: %v", category, err)
	}
	if err := s.Write(storage.CategoryPath(category), append(data, block...)); err != nil {
		t.Fatalf("write %s: %v", category, err)
	}
}

func readCategory(t *testing.T, s storage.Provider, category string) string {
	t.Helper()
	data, err := s.Read(storage.CategoryPath(category))
	if err != nil {
		t.Fatalf("read %s: %v", category, err)
	}
	return string(data)
}

func mustStatus(t *testing.T, r *Repository) *Status {
	t.Helper()
	st, err := r.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	return st
}

func mustCommit(t *testing.T, r *Repository, opts CommitOptions) string {
	t.Helper()
	c, err := r.Commit(ctx, opts)
	if err != nil {
		t.Fatalf("Commit(%q): %v", opts.Message, err)
	}
	return c.Hash
}

// seed writes d1 and d2 to decisions and commits them on main.
func seed(t *testing.T, r *Repository, s storage.Provider) string {
	t.Helper()
	writeCategory(t, s, "decisions",
		blk("d1", "2025-01-01T10:00:00Z", "Use SQLite."),
		blk("d2", "2025-01-02T10:00:00Z", "Use chi for routing."))
	return mustCommit(t, r, CommitOptions{Message: "first", All: true})
}

func sessionIDs(st *Status) (staged, added, removed string) {
	return strings.Join(refIDs(st.Staged), ","),
		strings.Join(refIDs(st.UnstagedNew), ","),
		strings.Join(refIDs(st.UnstagedRemoved), ",")
}
