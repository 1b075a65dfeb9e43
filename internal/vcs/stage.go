package vcs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/engram/internal/apperr"
)

// Stage marks ids for the next commit and returns how many were newly
// staged. Every id must exist in the working tree; if any does not, nothing
// is staged. Staging an already staged id, or one whose blocks match HEAD,
// is a no-op.
func (r *Repository) Stage(ctx context.Context, ids ...string) (int, error) {
	release, err := r.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	_, headSnap, work, err := r.status()
	if err != nil {
		return 0, err
	}
	present := work.sessions()
	changed := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := present[id]; !ok {
			return 0, fmt.Errorf("vcs: stage %q: not in working tree: %w", id, apperr.ErrUnknownSession)
		}
		if !sameSession(headSnap, work, id) {
			changed = append(changed, id)
		}
	}
	return r.stage(ctx, changed)
}

// StageAllNew stages every id currently classified as unstaged new,
// including content edits to committed ids.
func (r *Repository) StageAllNew(ctx context.Context) (int, error) {
	release, err := r.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	st, _, _, err := r.status()
	if err != nil {
		return 0, err
	}
	return r.stage(ctx, refIDs(st.UnstagedNew))
}

func (r *Repository) stage(ctx context.Context, ids []string) (int, error) {
	s, err := r.loadStaging()
	if err != nil {
		return 0, err
	}
	added := 0
	for _, id := range ids {
		if !hasID(s, id) {
			s[id] = struct{}{}
			added++
		}
	}
	if added == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := r.saveStaging(s); err != nil {
		return 0, err
	}
	r.logger.Info("vcs: staged", slog.Int("count", added), slog.Int("total", len(s)))
	return added, nil
}
