package vcs

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/starford/engram/internal/apperr"
	"github.com/starford/engram/internal/models"
)

// CreateBranch points a new branch at start, or at HEAD's commit when start
// is empty. HEAD does not move.
func (r *Repository) CreateBranch(ctx context.Context, name, start string) (models.Branch, error) {
	if err := ValidateBranchName(name); err != nil {
		return models.Branch{}, err
	}

	release, err := r.acquire(ctx)
	if err != nil {
		return models.Branch{}, err
	}
	defer release()

	if _, ok, err := r.readRef(name); err != nil {
		return models.Branch{}, err
	} else if ok {
		return models.Branch{}, fmt.Errorf("vcs: branch %q: %w", name, apperr.ErrBranchExists)
	}

	commits, err := r.loadCommits()
	if err != nil {
		return models.Branch{}, err
	}
	c, err := r.resolve(start, commits)
	if err != nil {
		return models.Branch{}, err
	}
	if err := ctx.Err(); err != nil {
		return models.Branch{}, err
	}
	if err := r.writeRef(name, c.Hash); err != nil {
		return models.Branch{}, err
	}

	r.logger.Info("vcs: branch created", slog.String("branch", name), slog.String("hash", c.ShortHash()))
	return models.Branch{Name: name, Hash: c.Hash}, nil
}

// DeleteBranch removes a branch ref. The branch HEAD is attached to cannot
// be deleted; commits are never removed.
func (r *Repository) DeleteBranch(ctx context.Context, name string) error {
	release, err := r.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	if ValidateBranchName(name) != nil {
		return fmt.Errorf("vcs: branch %q: %w", name, apperr.ErrUnknownBranch)
	}
	if _, ok, err := r.readRef(name); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("vcs: branch %q: %w", name, apperr.ErrUnknownBranch)
	}
	hs, err := r.readHead()
	if err != nil {
		return err
	}
	if hs.Branch == name {
		return fmt.Errorf("vcs: branch %q: %w", name, apperr.ErrCurrentBranch)
	}
	if err := r.meta.Delete(refPath(name)); err != nil {
		return fmt.Errorf("vcs: delete branch %q: %w", name, err)
	}

	r.logger.Info("vcs: branch deleted", slog.String("branch", name))
	return nil
}

// ListBranches returns every branch sorted by name. An unborn current
// branch is listed with an empty hash.
func (r *Repository) ListBranches(ctx context.Context) ([]models.Branch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	hs, err := r.readHead()
	if err != nil {
		return nil, err
	}
	names, err := r.branchNames()
	if err != nil {
		return nil, err
	}

	out := make([]models.Branch, 0, len(names)+1)
	seenCurrent := false
	for _, name := range names {
		hash, _, err := r.readRef(name)
		if err != nil {
			return nil, err
		}
		current := name == hs.Branch
		seenCurrent = seenCurrent || current
		out = append(out, models.Branch{Name: name, Hash: hash, Current: current})
	}
	if hs.Branch != "" && !seenCurrent {
		out = append(out, models.Branch{Name: hs.Branch, Current: true})
		sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	}
	return out, nil
}

