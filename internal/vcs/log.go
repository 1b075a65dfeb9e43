package vcs

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/starford/engram/internal/apperr"
	"github.com/starford/engram/internal/models"
)

// LogOptions filters a history walk.
type LogOptions struct {
	// From is the starting ref; empty means HEAD.
	From string
	// Limit caps the number of returned commits; <= 0 means no cap.
	Limit int
	// Grep keeps commits whose message or any session id contains it,
	// case-insensitively.
	Grep string
}

// Log walks parent pointers from opts.From back to the root, newest first.
// An unborn HEAD yields an empty history.
func (r *Repository) Log(ctx context.Context, opts LogOptions) ([]models.Commit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	commits, err := r.loadCommits()
	if err != nil {
		return nil, err
	}
	start, err := r.resolve(opts.From, commits)
	if opts.From == "" && errors.Is(err, apperr.ErrNoCommits) {
		return []models.Commit{}, nil
	}
	if err != nil {
		return nil, err
	}

	pattern := strings.ToLower(opts.Grep)
	out := []models.Commit{}
	seen := map[string]bool{}
	for c := start; c != nil; {
		if seen[c.Hash] {
			break
		}
		seen[c.Hash] = true
		if matches(c, pattern) {
			out = append(out, *c)
			if opts.Limit > 0 && len(out) >= opts.Limit {
				break
			}
		}
		if c.Parent == "" {
			break
		}
		if c, err = commits.mustGet(c.Parent); err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func matches(c *models.Commit, pattern string) bool {
	if pattern == "" || strings.Contains(strings.ToLower(c.Message), pattern) {
		return true
	}
	for _, id := range c.SessionIDs {
		if strings.Contains(strings.ToLower(id), pattern) {
			return true
		}
	}
	return false
}

// CategoryBlocks lists one category's blocks ordered by timestamp, then id.
type CategoryBlocks struct {
	Category string         `json:"category"`
	Hash     string         `json:"hash,omitempty"`
	Blocks   []models.Block `json:"blocks"`
}

// ShowResult is a commit together with its recorded blocks.
type ShowResult struct {
	Commit     *models.Commit   `json:"commit"`
	Categories []CategoryBlocks `json:"categories"`
}

// Show resolves ref and lists the blocks of every tracked category, or only
// category when it is set, as they were in that commit.
func (r *Repository) Show(ctx context.Context, ref, category string) (*ShowResult, error) {
	if err := r.checkCategory(category); err != nil {
		return nil, err
	}
	snap, err := r.Snapshot(ctx, ref)
	if err != nil {
		return nil, err
	}

	res := &ShowResult{Commit: snap.Commit, Categories: []CategoryBlocks{}}
	for _, cat := range r.categories {
		if category != "" && cat != category {
			continue
		}
		blocks := snap.Blocks[cat]
		if len(blocks) == 0 && category == "" {
			continue
		}
		cb := CategoryBlocks{
			Category: cat,
			Hash:     snap.Commit.CategoryHashes[cat],
			Blocks:   make([]models.Block, 0, len(blocks)),
		}
		for _, b := range blocks {
			cb.Blocks = append(cb.Blocks, b)
		}
		sortBlocks(cb.Blocks)
		res.Categories = append(res.Categories, cb)
	}
	return res, nil
}

func sortBlocks(blocks []models.Block) {
	sort.Slice(blocks, func(i, j int) bool {
		if blocks[i].Timestamp != blocks[j].Timestamp {
			return blocks[i].Timestamp < blocks[j].Timestamp
		}
		return blocks[i].SessionID < blocks[j].SessionID
	})
}
