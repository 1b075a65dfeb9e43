package vcs

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/starford/engram/internal/apperr"
	"github.com/starford/engram/internal/models"
)

// MinPrefixLen is the shortest hash prefix accepted as a ref.
const MinPrefixLen = 4

// Resolve turns a ref into a commit. A ref is "HEAD" (or empty), a branch
// name, a unique hash prefix of at least MinPrefixLen characters, or any of
// those followed by "~N" to walk N parents back.
func (r *Repository) Resolve(ctx context.Context, ref string) (*models.Commit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	commits, err := r.loadCommits()
	if err != nil {
		return nil, err
	}
	return r.resolve(ref, commits)
}

func (r *Repository) resolve(ref string, commits *commitLog) (*models.Commit, error) {
	base, back := ref, 0
	if i := strings.LastIndex(ref, "~"); i >= 0 {
		n, err := strconv.Atoi(ref[i+1:])
		if err != nil || n < 0 {
			return nil, fmt.Errorf("vcs: %q: %w", ref, apperr.ErrUnknownRef)
		}
		base, back = ref[:i], n
	}

	hash, err := r.resolveBase(base, commits)
	if err != nil {
		return nil, err
	}
	c, err := commits.mustGet(hash)
	if err != nil {
		return nil, err
	}
	for ; back > 0; back-- {
		if c.Parent == "" {
			return nil, fmt.Errorf("vcs: %q walks past the root commit: %w", ref, apperr.ErrUnknownRef)
		}
		if c, err = commits.mustGet(c.Parent); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (r *Repository) resolveBase(ref string, commits *commitLog) (string, error) {
	if ref == "" || ref == "HEAD" {
		h, err := r.head()
		if err != nil {
			return "", err
		}
		if h.Hash == "" {
			return "", fmt.Errorf("vcs: HEAD on %s: %w", h.Branch, apperr.ErrNoCommits)
		}
		return h.Hash, nil
	}

	if ValidateBranchName(ref) == nil {
		hash, ok, err := r.readRef(ref)
		if err != nil {
			return "", err
		}
		if ok && hash != "" {
			return hash, nil
		}
	}

	ref = strings.TrimPrefix(ref, detachedPrefix)
	if len(ref) < MinPrefixLen {
		return "", fmt.Errorf("vcs: %q: %w", ref, apperr.ErrUnknownRef)
	}
	switch matches := commits.withPrefix(strings.ToLower(ref)); len(matches) {
	case 0:
		return "", fmt.Errorf("vcs: %q: %w", ref, apperr.ErrUnknownRef)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("vcs: %q matches %d commits: %w", ref, len(matches), apperr.ErrAmbiguousRef)
	}
}

// isBranch reports whether ref names an existing branch. "main~1" does not.
func (r *Repository) isBranch(ref string) bool {
	if ValidateBranchName(ref) != nil {
		return false
	}
	_, ok, err := r.readRef(ref)
	return err == nil && ok
}
