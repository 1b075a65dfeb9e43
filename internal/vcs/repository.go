// Package vcs implements a block-level version control engine over the
// categorized knowledge files of one project.
//
// The working tree is the set of category files in the knowledge directory.
// History lives in a sibling .vcs directory made of flat JSON files that are
// always replaced by atomic rename:
//
//	objects.json       content hash -> block content
//	commits.json       ordered commit records
//	refs/heads/<name>  branch tip hash
//	HEAD               "<branch>" or "detached:<hash>"
//	staging.json       staged session ids
//	config.json        format version and tracked categories
//	LOCK               flock held by mutating operations
package vcs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/starford/engram/internal/apperr"
	"github.com/starford/engram/internal/storage"
)

const (
	// DirName is the name of the history directory inside a knowledge dir.
	DirName = ".vcs"
	// DefaultBranch is the branch HEAD is attached to after Init.
	DefaultBranch = "main"
	// DefaultContextFile is the consolidated summary invalidated by checkout.
	DefaultContextFile = "context.md"

	formatVersion = 1

	headFile    = "HEAD"
	objectsFile = "objects.json"
	commitsFile = "commits.json"
	stagingFile = "staging.json"
	configFile  = "config.json"
	lockFile    = "LOCK"
	refsDir     = "refs/heads"
)

// DefaultCategories are tracked when neither an option nor config.json
// names any.
var DefaultCategories = []string{"decisions", "solutions", "patterns", "preferences"}

// Repository is a handle on one project's history. It is safe for
// concurrent use; mutating operations are serialized in-process and
// across processes through the LOCK file.
type Repository struct {
	work storage.Provider
	meta *storage.FS
	dir  string

	categories  []string
	contextFile string
	invalidate  func(ctx context.Context) error
	logger      *slog.Logger
	now         func() time.Time
	lockTimeout time.Duration

	mu sync.RWMutex
}

type repoConfig struct {
	Version    int      `json:"version"`
	Categories []string `json:"categories"`
}

// Open returns a handle on an initialized repository whose history lives
// in dir and whose working tree is work.
func Open(work storage.Provider, dir string, opts ...Option) (*Repository, error) {
	if !IsInitialized(dir) {
		return nil, fmt.Errorf("vcs: open %s: %w", dir, apperr.ErrNotInitialized)
	}
	meta, err := storage.NewFS(dir)
	if err != nil {
		return nil, fmt.Errorf("vcs: open: %w", err)
	}
	r := newRepository(work, meta, opts)

	if r.categories == nil {
		var cfg repoConfig
		if err := r.readJSON(configFile, &cfg); err != nil {
			return nil, err
		}
		r.categories = cfg.Categories
	}
	if len(r.categories) == 0 {
		r.categories = append([]string(nil), DefaultCategories...)
	}
	return r, nil
}

// Init creates an empty repository in dir with HEAD attached to the
// default branch. It fails with apperr.ErrAlreadyExists when dir already
// holds a repository.
func Init(ctx context.Context, work storage.Provider, dir string, opts ...Option) (*Repository, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if IsInitialized(dir) {
		return nil, fmt.Errorf("vcs: init %s: %w", dir, apperr.ErrAlreadyExists)
	}
	if err := os.MkdirAll(filepath.Join(dir, filepath.FromSlash(refsDir)), 0o755); err != nil {
		return nil, fmt.Errorf("vcs: init: %w", err)
	}
	meta, err := storage.NewFS(dir)
	if err != nil {
		return nil, fmt.Errorf("vcs: init: %w", err)
	}
	r := newRepository(work, meta, opts)
	if len(r.categories) == 0 {
		r.categories = append([]string(nil), DefaultCategories...)
	}

	// HEAD is written last: its presence marks the repository as initialized.
	steps := []struct {
		name string
		v    any
	}{
		{configFile, repoConfig{Version: formatVersion, Categories: r.categories}},
		{objectsFile, map[string]any{}},
		{commitsFile, []any{}},
		{stagingFile, []string{}},
	}
	for _, s := range steps {
		if err := r.writeJSON(s.name, s.v); err != nil {
			return nil, err
		}
	}
	if err := r.writeHead(headState{Branch: DefaultBranch}); err != nil {
		return nil, err
	}

	r.logger.Info("vcs: initialized", slog.String("dir", dir), slog.Any("categories", r.categories))
	return r, nil
}

// IsInitialized reports whether dir holds a repository.
func IsInitialized(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, headFile))
	return err == nil && info.Mode().IsRegular()
}

func newRepository(work storage.Provider, meta *storage.FS, opts []Option) *Repository {
	r := &Repository{
		work:        work,
		meta:        meta,
		dir:         meta.Root(),
		contextFile: DefaultContextFile,
		logger:      slog.Default(),
		now:         time.Now,
		lockTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.invalidate == nil {
		r.invalidate = r.removeContextFile
	}
	return r
}

// Dir returns the absolute path of the history directory.
func (r *Repository) Dir() string { return r.dir }

// Categories returns the tracked categories in configured order.
func (r *Repository) Categories() []string {
	return append([]string(nil), r.categories...)
}

func (r *Repository) hasCategory(category string) bool {
	for _, c := range r.categories {
		if c == category {
			return true
		}
	}
	return false
}

func (r *Repository) checkCategory(category string) error {
	if category != "" && !r.hasCategory(category) {
		return fmt.Errorf("vcs: %q: %w", category, apperr.ErrUnknownCategory)
	}
	return nil
}

// removeContextFile is the default invalidator: the consolidated summary
// is deleted so its owner regenerates it.
func (r *Repository) removeContextFile(_ context.Context) error {
	if r.contextFile == "" {
		return nil
	}
	ok, err := r.work.Exists(r.contextFile)
	if err != nil || !ok {
		return err
	}
	return r.work.Delete(r.contextFile)
}

// readJSON decodes a .vcs file into v. A missing file leaves v untouched.
func (r *Repository) readJSON(name string, v any) error {
	data, err := r.meta.Read(name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("vcs: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("vcs: decode %s: %v: %w", name, err, apperr.ErrCorrupt)
	}
	return nil
}

func (r *Repository) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("vcs: encode %s: %w", name, err)
	}
	if err := r.meta.Write(name, append(data, '\n')); err != nil {
		return fmt.Errorf("vcs: %w", err)
	}
	return nil
}
