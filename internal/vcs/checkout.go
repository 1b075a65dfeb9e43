package vcs

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/starford/engram/internal/apperr"
	"github.com/starford/engram/internal/models"
	"github.com/starford/engram/internal/parser"
	"github.com/starford/engram/internal/storage"
)

// CheckoutOptions controls Checkout.
type CheckoutOptions struct {
	// DryRun computes the result without writing anything.
	DryRun bool
	// Force proceeds over a dirty working tree. Uncommitted blocks the
	// target does not contain are kept.
	Force bool
}

// CheckoutResult reports what a checkout changed, or would change.
type CheckoutResult struct {
	Previous      string   `json:"previous"`
	Target        string   `json:"target"`
	Hash          string   `json:"hash"`
	Detached      bool     `json:"detached"`
	BlocksAdded   int      `json:"blocks_added"`
	BlocksRemoved int      `json:"blocks_removed"`
	Conflicts     []string `json:"conflicts"`
	DryRun        bool     `json:"dry_run"`
	Invalidated   bool     `json:"invalidated"`
}

// Changed reports whether working-tree content differs after the checkout.
func (c *CheckoutResult) Changed() bool {
	return c.BlocksAdded > 0 || c.BlocksRemoved > 0 || len(c.Conflicts) > 0
}

// Checkout rewrites the category files so their blocks match target and
// moves HEAD there: attached when target is a branch name, detached
// otherwise. Conflicting blocks take the target's content.
func (r *Repository) Checkout(ctx context.Context, target string, opts CheckoutOptions) (*CheckoutResult, error) {
	release, err := r.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	commits, err := r.loadCommits()
	if err != nil {
		return nil, err
	}
	tc, err := r.resolve(target, commits)
	if err != nil {
		return nil, err
	}
	objs, err := r.loadObjects()
	if err != nil {
		return nil, err
	}
	targetSnap, err := commitSnapshot(tc, objs)
	if err != nil {
		return nil, err
	}
	st, headSnap, work, err := r.status()
	if err != nil {
		return nil, err
	}

	res := &CheckoutResult{
		Previous:  st.Head.Label(),
		Target:    target,
		Hash:      tc.Hash,
		Conflicts: []string{},
		DryRun:    opts.DryRun,
	}
	conflicts := map[string]bool{}
	for cat, m := range targetSnap.Blocks {
		for id, tb := range m {
			wb, ok := work.lookup(cat, id)
			switch {
			case !ok:
				res.BlocksAdded++
			case wb.Revision != tb.Revision:
				conflicts[id] = true
			}
		}
	}
	for cat, m := range work.Blocks {
		for id := range m {
			_, inTarget := targetSnap.lookup(cat, id)
			_, inHead := headSnap.lookup(cat, id)
			if inHead && !inTarget {
				res.BlocksRemoved++
			}
		}
	}
	res.Conflicts = append(res.Conflicts, sortedKeys(conflicts)...)

	if !st.Clean() && !opts.Force {
		return nil, fmt.Errorf("vcs: checkout %s: %d staged, %d new, %d removed: %w",
			target, len(st.Staged), len(st.UnstagedNew), len(st.UnstagedRemoved), apperr.ErrDirtyWorkingTree)
	}
	if opts.DryRun {
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, cat := range r.categories {
		if err := r.rewriteCategory(cat, targetSnap, headSnap); err != nil {
			return nil, err
		}
	}

	// Forced checkouts can drop staged ids from the working tree or make
	// them match the new HEAD.
	after, err := r.workingSnapshot()
	if err != nil {
		return nil, err
	}
	staged, err := r.loadStaging()
	if err != nil {
		return nil, err
	}
	present := after.sessions()
	evicted := 0
	for id := range staged {
		if _, ok := present[id]; !ok || sameSession(targetSnap, after, id) {
			delete(staged, id)
			evicted++
		}
	}
	if evicted > 0 {
		if err := r.saveStaging(staged); err != nil {
			return nil, err
		}
	}

	switch {
	case target == "" || target == "HEAD":
		res.Detached = st.Head.Detached
	case r.isBranch(target):
		err = r.writeHead(headState{Branch: target})
	default:
		res.Detached = true
		err = r.writeHead(headState{Hash: tc.Hash})
	}
	if err != nil {
		return nil, err
	}

	if res.Changed() && r.invalidate != nil {
		if err := r.invalidate(ctx); err != nil {
			r.logger.Warn("vcs: invalidate context file", slog.String("error", err.Error()))
		} else {
			res.Invalidated = true
		}
	}

	r.logger.Info("vcs: checked out",
		slog.String("target", target),
		slog.String("hash", tc.ShortHash()),
		slog.Int("added", res.BlocksAdded),
		slog.Int("removed", res.BlocksRemoved),
		slog.Int("conflicts", len(res.Conflicts)),
		slog.Int("evicted", evicted))
	return res, nil
}

// rewriteCategory rebuilds one category file. Working blocks keep their
// order: blocks in the target are replaced by the target version, committed
// blocks missing from the target are dropped, uncommitted blocks stay.
// Target blocks not yet in the file are appended by timestamp.
func (r *Repository) rewriteCategory(cat string, target, head *Snapshot) error {
	doc, err := r.readCategory(cat)
	if err != nil {
		return err
	}
	path := storage.CategoryPath(cat)

	var original []byte
	preamble := parser.DefaultPreamble(cat)
	var working []parser.Block
	if doc != nil {
		preamble = doc.Preamble
		working = doc.Blocks
		original = parser.Render(doc.Preamble, doc.Blocks)
	}

	placed := map[string]bool{}
	var out []parser.Block
	for _, wb := range working {
		id := wb.SessionID
		tb, inTarget := target.lookup(cat, id)
		_, inHead := head.lookup(cat, id)
		switch {
		case inTarget:
			if placed[id] {
				continue
			}
			placed[id] = true
			if blockFromParsed(cat, wb).Revision == tb.Revision {
				out = append(out, wb)
			} else {
				out = append(out, toParsed(tb))
			}
		case inHead:
			// committed, absent from target
		default:
			out = append(out, wb)
		}
	}

	var extra []models.Block
	for id, tb := range target.Blocks[cat] {
		if !placed[id] {
			extra = append(extra, tb)
		}
	}
	sortBlocks(extra)
	for _, tb := range extra {
		out = append(out, toParsed(tb))
	}

	if len(out) == 0 && strings.TrimSpace(preamble) == "" {
		if doc == nil {
			return nil
		}
		if err := r.work.Delete(path); err != nil {
			return fmt.Errorf("vcs: checkout %s: %w", cat, err)
		}
		return nil
	}
	if doc == nil && len(out) == 0 {
		return nil
	}

	rendered := parser.Render(preamble, out)
	if doc != nil && bytes.Equal(rendered, original) {
		return nil
	}
	if err := r.work.Write(path, rendered); err != nil {
		return fmt.Errorf("vcs: checkout %s: %w", cat, err)
	}
	return nil
}

func toParsed(b models.Block) parser.Block {
	return parser.Block{
		SessionID: b.SessionID,
		Timestamp: b.Timestamp,
		TTL:       b.TTL,
		Header:    parser.FormatHeader(b.SessionID, b.Timestamp, b.TTL),
		Content:   b.Content,
	}
}
