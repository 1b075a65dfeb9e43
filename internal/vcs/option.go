package vcs

import (
	"context"
	"log/slog"
	"time"
)

// Option is a functional option for configuring a Repository.
type Option func(*Repository)

// WithCategories overrides the tracked categories.
func WithCategories(categories ...string) Option {
	return func(r *Repository) {
		if len(categories) > 0 {
			r.categories = append([]string(nil), categories...)
		}
	}
}

// WithLogger sets the logger used for mutation events.
func WithLogger(l *slog.Logger) Option {
	return func(r *Repository) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) {
		if now != nil {
			r.now = now
		}
	}
}

// WithContextFile names the consolidated summary file in the working tree
// that checkout deletes when it changes content. An empty name disables it.
func WithContextFile(name string) Option {
	return func(r *Repository) {
		r.contextFile = name
	}
}

// WithInvalidator replaces the default context-file removal.
func WithInvalidator(fn func(ctx context.Context) error) Option {
	return func(r *Repository) {
		r.invalidate = fn
	}
}

// WithLockTimeout sets how long a mutating operation waits for another
// process to release the LOCK. Zero or less fails immediately.
func WithLockTimeout(d time.Duration) Option {
	return func(r *Repository) {
		r.lockTimeout = d
	}
}
