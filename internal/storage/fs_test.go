package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func tempDir(t *testing.T) *FS {
	t.Helper()
	s, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return s
}

func TestWriteAndRead(t *testing.T) {
	s := tempDir(t)
	content := []byte("# Decisions\n\n## Session: s1 (2025-01-01)\nbody\n")
	if err := s.Write("decisions.md", content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("decisions.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestWriteCreatesSubdirs(t *testing.T) {
	s := tempDir(t)
	if err := s.Write("refs/heads/main", []byte("abc")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	names, err := s.Entries("refs/heads")
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(names) != 1 || names[0] != "main" {
		t.Errorf("entries = %v", names)
	}
}

func TestReadMissingIsNotExist(t *testing.T) {
	s := tempDir(t)
	_, err := s.Read("missing.md")
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("err = %v, want fs.ErrNotExist", err)
	}
}

func TestDeleteAndExists(t *testing.T) {
	s := tempDir(t)
	_ = s.Write("solutions.md", []byte("bye"))
	ok, err := s.Exists("solutions.md")
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v", ok, err)
	}
	if err := s.Delete("solutions.md"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	ok, err = s.Exists("solutions.md")
	if err != nil || ok {
		t.Errorf("Exists after delete = %v, %v", ok, err)
	}
}

func TestList_TopLevelMarkdownOnly(t *testing.T) {
	s := tempDir(t)
	_ = s.Write("patterns.md", []byte("p"))
	_ = s.Write("decisions.md", []byte("d"))
	_ = s.Write(".vcs/objects.md", []byte("hidden"))
	_ = s.Write("readme.txt", []byte("not md"))

	items, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len = %d, want 2", len(items))
	}
	if items[0].Category != "decisions" || items[1].Category != "patterns" {
		t.Errorf("categories = %s, %s", items[0].Category, items[1].Category)
	}
	if items[0].Checksum == "" || items[0].UpdatedAt.IsZero() {
		t.Errorf("missing metadata: %+v", items[0])
	}
}

func TestEntries_MissingDir(t *testing.T) {
	s := tempDir(t)
	names, err := s.Entries("refs/heads")
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("entries = %v, want none", names)
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempDir(t)

	cases := []string{
		"../../etc/passwd",
		"../outside.md",
		"/etc/shadow",
	}
	for _, p := range cases {
		if _, err := s.Read(p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
		if err := s.Write(p, []byte("x")); err == nil {
			t.Errorf("expected error for write to %q", p)
		}
		if _, err := s.Exists(p); err == nil {
			t.Errorf("expected error for exists on %q", p)
		}
	}
}

func TestAtomicWriteNoLeftovers(t *testing.T) {
	s := tempDir(t)
	_ = s.Write("atomic.md", []byte("original content"))

	updated := []byte("updated content")
	if err := s.Write("atomic.md", updated); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := s.Read("atomic.md")
	if string(got) != string(updated) {
		t.Errorf("expected updated content, got %q", got)
	}

	matches, _ := filepath.Glob(filepath.Join(s.Root(), ".engram-tmp-*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	_, err := NewFS(filepath.Join(t.TempDir(), "does-not-exist"))
	if err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp(t.TempDir(), "engram-test-*")
	_ = f.Close()
	_, err := NewFS(f.Name())
	if err == nil {
		t.Error("expected error when root is a file")
	}
}
