//go:build sqlite_fts5

package index

import (
	"testing"
	"time"
)

func TestFTS5_TableExists(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM blocks_fts`).Scan(&count); err != nil {
		t.Fatalf("blocks_fts table missing: %v", err)
	}
}

func TestFTS5_SearchWithSnippet(t *testing.T) {
	db := testDB(t)
	err := db.ReplaceCategory(FileRow{Category: "solutions", Checksum: "f1", UpdatedAt: time.Now()}, []BlockRow{
		{SessionID: "fts", Body: "The index provides powerful full-text search capabilities.", Tags: []string{"search"}},
	})
	if err != nil {
		t.Fatalf("ReplaceCategory: %v", err)
	}

	results, err := db.Search("powerful", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].SessionID != "fts" {
		t.Errorf("session = %q", results[0].SessionID)
	}
	if results[0].Snippet == "" {
		t.Error("expected non-empty snippet")
	}
}

func TestFTS5_DeleteRemovesFromFTS(t *testing.T) {
	db := testDB(t)
	_ = db.ReplaceCategory(FileRow{Category: "gone", Checksum: "g", UpdatedAt: time.Now()}, []BlockRow{
		{SessionID: "g1", Body: "vanishing content"},
	})
	_ = db.DeleteCategory("gone")

	results, _ := db.Search("vanishing", 10)
	if len(results) != 0 {
		t.Errorf("deleted category still in FTS index: %+v", results)
	}
}

func TestFTS5_ReplaceSwapsContent(t *testing.T) {
	db := testDB(t)
	now := time.Now()
	_ = db.ReplaceCategory(FileRow{Category: "evo", Checksum: "1", UpdatedAt: now}, []BlockRow{
		{SessionID: "e1", Preview: "Old", Body: "original text"},
	})
	_ = db.ReplaceCategory(FileRow{Category: "evo", Checksum: "2", UpdatedAt: now}, []BlockRow{
		{SessionID: "e1", Preview: "New", Body: "replacement text"},
	})

	results, _ := db.Search("original", 10)
	if len(results) != 0 {
		t.Error("old FTS content should be gone")
	}
	results, _ = db.Search("replacement", 10)
	if len(results) != 1 || results[0].Preview != "New" {
		t.Errorf("FTS not updated: %+v", results)
	}
}

func TestMatchExprQuotesTerms(t *testing.T) {
	tests := map[string]string{
		"":              "",
		"retry backoff": `"retry" "backoff"`,
		`say "hi" OR`:   `"say" """hi""" "OR"`,
	}
	for in, want := range tests {
		if got := matchExpr(in); got != want {
			t.Errorf("matchExpr(%q) = %q, want %q", in, got, want)
		}
	}
}
