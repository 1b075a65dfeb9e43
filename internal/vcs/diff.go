package vcs

import (
	"context"
	"errors"

	"github.com/starford/engram/internal/apperr"
	"github.com/starford/engram/internal/models"
)

// ChangeKind classifies one block difference.
type ChangeKind string

const (
	Added   ChangeKind = "added"
	Removed ChangeKind = "removed"
	Changed ChangeKind = "changed"
)

// Marker returns the one-character status shown by the CLI.
func (k ChangeKind) Marker() string {
	switch k {
	case Added:
		return "+"
	case Removed:
		return "-"
	default:
		return "~"
	}
}

// DiffEntry is one differing block. Timestamp and Preview come from the
// "to" side unless the block was removed.
type DiffEntry struct {
	Kind      ChangeKind `json:"kind"`
	SessionID string     `json:"session_id"`
	Timestamp string     `json:"timestamp"`
	Preview   string     `json:"preview"`
}

// CategoryDiff groups the differences of one category.
type CategoryDiff struct {
	Category string      `json:"category"`
	Entries  []DiffEntry `json:"entries"`
}

// DiffResult is the block-level difference between two snapshots.
type DiffResult struct {
	From       string         `json:"from"`
	To         string         `json:"to"`
	Categories []CategoryDiff `json:"categories"`
}

// Empty reports whether the two snapshots are identical.
func (d *DiffResult) Empty() bool {
	return len(d.Categories) == 0
}

// WorkingTree labels the live working tree as a diff endpoint.
const WorkingTree = "working tree"

// WorkingRef selects the working tree as either side of a diff.
const WorkingRef = "WORKING"

// Diff compares two snapshots. An empty from means HEAD, or nothing on an
// unborn branch; an empty to means the working tree. WorkingRef names the
// working tree on either side. category restricts the result to one
// category.
func (r *Repository) Diff(ctx context.Context, from, to, category string) (*DiffResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := r.checkCategory(category); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	commits, err := r.loadCommits()
	if err != nil {
		return nil, err
	}
	objs, err := r.loadObjects()
	if err != nil {
		return nil, err
	}

	fromSnap, fromLabel, err := r.diffSide(from, commits, objs, true)
	if err != nil {
		return nil, err
	}
	toSnap, toLabel, err := r.diffSide(to, commits, objs, false)
	if err != nil {
		return nil, err
	}

	res := &DiffResult{From: fromLabel, To: toLabel, Categories: []CategoryDiff{}}
	for _, cat := range r.categories {
		if category != "" && cat != category {
			continue
		}
		if entries := diffCategory(fromSnap.Blocks[cat], toSnap.Blocks[cat]); len(entries) > 0 {
			res.Categories = append(res.Categories, CategoryDiff{Category: cat, Entries: entries})
		}
	}
	return res, nil
}

func (r *Repository) diffSide(ref string, commits *commitLog, objs objectStore, isFrom bool) (*Snapshot, string, error) {
	if ref == WorkingRef || (ref == "" && !isFrom) {
		snap, err := r.workingSnapshot()
		return snap, WorkingTree, err
	}
	c, err := r.resolve(ref, commits)
	if ref == "" && errors.Is(err, apperr.ErrNoCommits) {
		return newSnapshot(), "(empty)", nil
	}
	if err != nil {
		return nil, "", err
	}
	snap, err := commitSnapshot(c, objs)
	if err != nil {
		return nil, "", err
	}
	return snap, c.ShortHash(), nil
}

func diffCategory(from, to map[string]models.Block) []DiffEntry {
	var entries []DiffEntry
	for _, id := range sortedKeys(to) {
		b := to[id]
		old, ok := from[id]
		switch {
		case !ok:
			entries = append(entries, DiffEntry{Kind: Added, SessionID: id, Timestamp: b.Timestamp, Preview: b.Preview})
		case old.Revision != b.Revision:
			entries = append(entries, DiffEntry{Kind: Changed, SessionID: id, Timestamp: b.Timestamp, Preview: b.Preview})
		}
	}
	for _, id := range sortedKeys(from) {
		if _, ok := to[id]; !ok {
			b := from[id]
			entries = append(entries, DiffEntry{Kind: Removed, SessionID: id, Timestamp: b.Timestamp, Preview: b.Preview})
		}
	}
	return entries
}
