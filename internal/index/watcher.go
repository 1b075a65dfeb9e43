package index

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/starford/engram/internal/storage"
)

// Event kinds passed to EventCallback.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

// reconcileDelay coalesces bursts of writes (atomic renames produce a
// create+rename pair per save) into one reconcile pass.
const reconcileDelay = 200 * time.Millisecond

// EventCallback is called after a watcher-driven index change.
// kind is one of "created", "updated", "deleted".
type EventCallback func(kind string, category string)

// Watch starts an fsnotify watcher on the knowledge root and keeps the
// index in step with category files until ctx is cancelled. Category files
// live at the top level only, so the watch is not recursive. It calls cb
// (if non-nil) after each successful index mutation.
func Watch(ctx context.Context, db *DB, store storage.Provider, categories []string, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	root := store.Root()
	if err := w.Add(root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			if err := reconcile(db, store, categories, logger, cb); err != nil {
				logger.Warn("watcher: reconcile failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(ev.Name)
			if !strings.HasSuffix(name, ".md") || filepath.Dir(ev.Name) != filepath.Clean(root) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// reconcile compares on-disk checksums against the index, reindexes
// changed categories and drops the ones whose file disappeared. Failures on
// single files are logged and skipped; cb, when non-nil, hears about every
// change that was applied.
func reconcile(db *DB, store storage.Provider, categories []string, logger *slog.Logger, cb EventCallback) error {
	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}
	metas, err := listCategories(store, categories)
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Category] = struct{}{}
		old, indexed := checksums[m.Category]
		if indexed && old == m.Checksum {
			continue
		}
		data, readErr := store.Read(m.Path)
		if readErr != nil {
			logger.Warn("reconcile: read failed", slog.String("category", m.Category), slog.String("error", readErr.Error()))
			continue
		}
		if idxErr := indexCategory(db, m, data); idxErr != nil {
			logger.Warn("reconcile: index failed", slog.String("category", m.Category), slog.String("error", idxErr.Error()))
			continue
		}
		kind := EventUpdated
		if !indexed {
			kind = EventCreated
		}
		logger.Debug("reconcile: indexed", slog.String("category", m.Category), slog.String("op", kind))
		if cb != nil {
			cb(kind, m.Category)
		}
	}

	for c := range checksums {
		if _, ok := disk[c]; ok {
			continue
		}
		if delErr := db.DeleteCategory(c); delErr != nil {
			logger.Warn("reconcile: delete failed", slog.String("category", c), slog.String("error", delErr.Error()))
			continue
		}
		logger.Debug("reconcile: removed stale", slog.String("category", c))
		if cb != nil {
			cb(EventDeleted, c)
		}
	}
	return nil
}
