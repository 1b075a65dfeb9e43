package internal

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/starford/engram/internal/apperr"
	"github.com/starford/engram/internal/index"
	"github.com/starford/engram/internal/knowledgeservice"
	"github.com/starford/engram/internal/storage"
	"github.com/starford/engram/internal/vcs"
)

// Workspace is one project's knowledge directory opened with its history,
// index and service.
type Workspace struct {
	Config  *Config
	Store   *storage.FS
	Repo    *vcs.Repository
	DB      *index.DB
	Service *knowledgeservice.Service
}

// OpenWorkspace opens an initialized project and brings its index up to
// date. It fails with apperr.ErrNotInitialized when there is no history.
func OpenWorkspace(ctx context.Context, cfg *Config, logger *slog.Logger) (*Workspace, error) {
	dir := cfg.Memory.KnowledgeDir()
	if !vcs.IsInitialized(filepath.Join(dir, vcs.DirName)) {
		return nil, fmt.Errorf("open %s: %w", dir, apperr.ErrNotInitialized)
	}
	store, err := storage.NewFS(dir)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	repo, err := vcs.Open(store, filepath.Join(dir, vcs.DirName), repoOptions(cfg, logger)...)
	if err != nil {
		return nil, err
	}
	return attach(ctx, cfg, store, repo, logger)
}

// InitWorkspace creates the knowledge directory when needed and an empty
// history inside it.
func InitWorkspace(ctx context.Context, cfg *Config, logger *slog.Logger) (*Workspace, error) {
	dir := cfg.Memory.KnowledgeDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create knowledge dir: %w", err)
	}
	store, err := storage.NewFS(dir)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	opts := append(repoOptions(cfg, logger), vcs.WithCategories(cfg.Memory.Categories...))
	repo, err := vcs.Init(ctx, store, filepath.Join(dir, vcs.DirName), opts...)
	if err != nil {
		return nil, err
	}
	return attach(ctx, cfg, store, repo, logger)
}

func repoOptions(cfg *Config, logger *slog.Logger) []vcs.Option {
	return []vcs.Option{
		vcs.WithLogger(logger),
		vcs.WithContextFile(cfg.Memory.ContextFile),
		vcs.WithLockTimeout(cfg.VCS.LockTimeout),
	}
}

func attach(ctx context.Context, cfg *Config, store *storage.FS, repo *vcs.Repository, logger *slog.Logger) (*Workspace, error) {
	dbPath := cfg.IndexPath()
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}
	db, err := index.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}
	svc := knowledgeservice.NewService(repo, store, db, logger)
	if err := svc.Reindex(ctx); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}
	return &Workspace{Config: cfg, Store: store, Repo: repo, DB: db, Service: svc}, nil
}

// Close releases the index database.
func (w *Workspace) Close() error {
	if w == nil || w.DB == nil {
		return nil
	}
	return w.DB.Close()
}

