package vcs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/starford/engram/internal/apperr"
)

// lockRetry is how often a held LOCK is polled while waiting for it.
const lockRetry = 50 * time.Millisecond

// acquire serializes a mutating operation. It takes the in-process write
// lock and then an advisory flock on .vcs/LOCK, waiting up to the lock
// timeout for another process to release it. The kernel drops the flock
// when its holder exits, so a crashed process never leaves the repository
// locked.
func (r *Repository) acquire(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()

	fl := flock.New(filepath.Join(r.dir, lockFile))
	locked, err := r.tryLock(ctx, fl)
	if !locked {
		r.mu.Unlock()
		if err == nil || (errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil) {
			return nil, fmt.Errorf("vcs: %s held by another process: %w", fl.Path(), apperr.ErrLocked)
		}
		return nil, fmt.Errorf("vcs: lock: %w", err)
	}

	return func() {
		if err := fl.Unlock(); err != nil {
			r.logger.Warn("vcs: release lock", slog.String("error", err.Error()))
		}
		r.mu.Unlock()
	}, nil
}

func (r *Repository) tryLock(ctx context.Context, fl *flock.Flock) (bool, error) {
	if r.lockTimeout <= 0 {
		return fl.TryLock()
	}
	waitCtx, cancel := context.WithTimeout(ctx, r.lockTimeout)
	defer cancel()
	return fl.TryLockContext(waitCtx, lockRetry)
}

// WithLock runs fn while holding the repository lock, so working-tree
// writes made outside the VCS cannot interleave with a commit or checkout.
func (r *Repository) WithLock(ctx context.Context, fn func() error) error {
	release, err := r.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}
