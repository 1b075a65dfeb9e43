// Package testutil provides shared test helpers for setting up knowledge
// directories, repositories and index databases.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/engram/internal/index"
	"github.com/starford/engram/internal/knowledgeservice"
	"github.com/starford/engram/internal/storage"
	"github.com/starford/engram/internal/vcs"
)

// Env bundles everything a surface test needs.
type Env struct {
	Dir   string
	Store *storage.FS
	Repo  *vcs.Repository
	DB    *index.DB
	Svc   *knowledgeservice.Service
}

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Clock returns a deterministic clock advancing one second per call.
func Clock() func() time.Time {
	t := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "engram-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestKnowledgeDir creates a temporary knowledge directory with a storage provider.
func TestKnowledgeDir(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// NewEnv initializes a repository with the default categories over a fresh
// knowledge directory, plus an index and a service on top.
func NewEnv(t *testing.T) *Env {
	t.Helper()
	dir, store := TestKnowledgeDir(t)
	repo, err := vcs.Init(context.Background(), store, filepath.Join(dir, vcs.DirName),
		vcs.WithClock(Clock()), vcs.WithLogger(Logger()))
	if err != nil {
		t.Fatal(err)
	}
	db := TestDB(t)
	svc := knowledgeservice.NewService(repo, store, db, Logger())
	svc.SetClock(Clock())
	return &Env{Dir: dir, Store: store, Repo: repo, DB: db, Svc: svc}
}

// Block formats one session block.
func Block(id, timestamp, body string) string {
	return "## Session: " + id + " (" + timestamp + ")\n\n" + body + "\n\n"
}

// WriteCategory replaces a category file with a heading and the given blocks
// and refreshes the index.
func (e *Env) WriteCategory(t *testing.T, category string, blocks ...string) {
	t.Helper()
	content := "# " + strings.ToUpper(category[:1]) + category[1:] + "\n\n" + strings.Join(blocks, "")
	if err := e.Store.Write(storage.CategoryPath(category), []byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := e.Svc.Reindex(context.Background()); err != nil {
		t.Fatal(err)
	}
}

// Seed writes two decisions and commits them as "first".
func (e *Env) Seed(t *testing.T) {
	t.Helper()
	e.WriteCategory(t, "decisions",
		Block("d1", "2025-01-01T10:00:00Z", "Use sqlite for the block index."),
		Block("d2", "2025-01-02T10:00:00Z", "Keep history in flat JSON files. See [[d1]]."),
	)
	if _, err := e.Repo.Commit(context.Background(), vcs.CommitOptions{Message: "first", All: true}); err != nil {
		t.Fatal(err)
	}
}
