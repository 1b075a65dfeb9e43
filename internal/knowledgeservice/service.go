// Package knowledgeservice coordinates the memory VCS, the working-tree
// storage and the block index behind one API for the REST, MCP and CLI
// surfaces.
package knowledgeservice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/starford/engram/internal/apperr"
	"github.com/starford/engram/internal/checksum"
	"github.com/starford/engram/internal/index"
	"github.com/starford/engram/internal/models"
	"github.com/starford/engram/internal/parser"
	"github.com/starford/engram/internal/storage"
	"github.com/starford/engram/internal/vcs"
)

// BlockDetail is the full representation of an indexed block.
type BlockDetail struct {
	Category  string   `json:"category"`
	SessionID string   `json:"session_id"`
	Timestamp string   `json:"timestamp"`
	TTL       string   `json:"ttl,omitempty"`
	Hash      string   `json:"hash"`
	Content   string   `json:"content"`
	Tags      []string `json:"tags"`
	Links     []string `json:"links"`
	Backlinks []string `json:"backlinks"`
}

// AppendRequest describes a new block to add to a category file.
type AppendRequest struct {
	Category string
	// SessionID is generated from the current time when empty.
	SessionID string
	Content   string
	TTL       string
	// IfMatch, when set, must equal the category file's current checksum.
	IfMatch string
}

// Service coordinates repository, storage and index operations.
type Service struct {
	repo   *vcs.Repository
	store  storage.Provider
	db     *index.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a new knowledge service.
func NewService(repo *vcs.Repository, store storage.Provider, db *index.DB, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, store: store, db: db, logger: logger, now: time.Now}
}

// SetClock overrides the timestamp source for appended blocks.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Repository exposes the underlying VCS handle.
func (s *Service) Repository() *vcs.Repository { return s.repo }

// Categories returns the tracked categories in order.
func (s *Service) Categories() []string { return s.repo.Categories() }

// Reindex brings the block index in line with the working tree.
func (s *Service) Reindex(_ context.Context) error {
	return index.Sync(s.db, s.store, s.repo.Categories(), s.logger)
}

// Status reports staged and unstaged changes.
func (s *Service) Status(ctx context.Context) (*vcs.Status, error) {
	return s.repo.Status(ctx)
}

// Stage stages the given ids, or every new or modified id when all is set.
func (s *Service) Stage(ctx context.Context, ids []string, all bool) (int, error) {
	if all {
		return s.repo.StageAllNew(ctx)
	}
	return s.repo.Stage(ctx, ids...)
}

// Commit records a new commit.
func (s *Service) Commit(ctx context.Context, opts vcs.CommitOptions) (*models.Commit, error) {
	return s.repo.Commit(ctx, opts)
}

// Log returns history newest first.
func (s *Service) Log(ctx context.Context, opts vcs.LogOptions) ([]models.Commit, error) {
	return s.repo.Log(ctx, opts)
}

// Show returns one commit with its blocks.
func (s *Service) Show(ctx context.Context, ref, category string) (*vcs.ShowResult, error) {
	return s.repo.Show(ctx, ref, category)
}

// Diff compares two refs, or a ref against the working tree.
func (s *Service) Diff(ctx context.Context, from, to, category string) (*vcs.DiffResult, error) {
	return s.repo.Diff(ctx, from, to, category)
}

// Branches lists every branch with the current one marked.
func (s *Service) Branches(ctx context.Context) ([]models.Branch, error) {
	return s.repo.ListBranches(ctx)
}

// CreateBranch creates name at start (HEAD when empty).
func (s *Service) CreateBranch(ctx context.Context, name, start string) (models.Branch, error) {
	return s.repo.CreateBranch(ctx, name, start)
}

// DeleteBranch removes a branch ref.
func (s *Service) DeleteBranch(ctx context.Context, name string) error {
	return s.repo.DeleteBranch(ctx, name)
}

// Checkout moves HEAD to target and refreshes the index when files changed.
func (s *Service) Checkout(ctx context.Context, target string, opts vcs.CheckoutOptions) (*vcs.CheckoutResult, error) {
	res, err := s.repo.Checkout(ctx, target, opts)
	if err != nil {
		return nil, err
	}
	if !res.DryRun && res.Changed() {
		if err := s.Reindex(ctx); err != nil {
			s.logger.Warn("reindex after checkout failed", slog.String("error", err.Error()))
		}
	}
	return res, nil
}

// Search delegates full-text search to the index.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	return s.db.Search(query, limit)
}

// ListBlocks returns indexed blocks, optionally for one category.
func (s *Service) ListBlocks(_ context.Context, category string, limit, offset int) ([]index.BlockRow, int, error) {
	if category != "" && !s.hasCategory(category) {
		return nil, 0, fmt.Errorf("%w: %s", apperr.ErrUnknownCategory, category)
	}
	return s.db.ListBlocks(category, limit, offset)
}

// Block returns one indexed block enriched with its backlinks.
func (s *Service) Block(_ context.Context, category, sessionID string) (*BlockDetail, error) {
	if !s.hasCategory(category) {
		return nil, fmt.Errorf("%w: %s", apperr.ErrUnknownCategory, category)
	}
	row, err := s.db.GetBlock(category, sessionID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("%w: %s/%s", apperr.ErrNotFound, category, sessionID)
	}
	bl, err := s.db.Backlinks(sessionID)
	if err != nil {
		return nil, err
	}
	return &BlockDetail{
		Category:  row.Category,
		SessionID: row.SessionID,
		Timestamp: row.Timestamp,
		TTL:       row.TTL,
		Hash:      row.ContentHash,
		Content:   row.Body,
		Tags:      nonNilSlice(row.Tags),
		Links:     nonNilSlice(row.Links),
		Backlinks: nonNilSlice(bl),
	}, nil
}

// Validate checks that the request renders as exactly one block that
// parses back with the same id and TTL.
func (r AppendRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Category, validation.Required),
		validation.Field(&r.SessionID, validation.Match(parser.SessionIDRe)),
		validation.Field(&r.TTL, validation.Match(parser.TTLRe)),
		validation.Field(&r.Content, validation.By(blockBody)),
	)
}

func blockBody(value interface{}) error {
	body, _ := value.(string)
	if strings.TrimSpace(body) == "" {
		return errors.New("cannot be blank")
	}
	if parser.HasHeader(body) {
		return errors.New("must not contain a session header line")
	}
	return nil
}

// AppendBlock adds a new session block at the end of a category file,
// creating the file when needed. The id must be new to that category. The
// file is rewritten under the repository lock.
func (s *Service) AppendBlock(ctx context.Context, req AppendRequest) (*BlockDetail, error) {
	if !s.hasCategory(req.Category) {
		return nil, fmt.Errorf("%w: %s", apperr.ErrUnknownCategory, req.Category)
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidBlock, err)
	}
	now := s.now().UTC()
	if req.SessionID == "" {
		req.SessionID = newSessionID(now)
	}

	err := s.repo.WithLock(ctx, func() error {
		return s.appendLocked(req, now)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("block appended",
		slog.String("category", req.Category),
		slog.String("session_id", req.SessionID))

	if err := s.Reindex(ctx); err != nil {
		return nil, err
	}
	return s.Block(ctx, req.Category, req.SessionID)
}

func (s *Service) appendLocked(req AppendRequest, now time.Time) error {
	path := storage.CategoryPath(req.Category)
	existing, err := s.store.Read(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if req.IfMatch != "" && req.IfMatch != checksum.Sum(existing) {
		return apperr.ErrConflict
	}

	doc := &parser.Document{Preamble: parser.DefaultPreamble(req.Category)}
	if existing != nil {
		if doc, err = parser.Parse(existing); err != nil {
			return err
		}
	}
	for _, b := range doc.Blocks {
		if b.SessionID == req.SessionID {
			return fmt.Errorf("%w: %s in %s", apperr.ErrAlreadyExists, req.SessionID, req.Category)
		}
	}

	// Keep a blank line between whatever precedes the new header and it.
	if len(existing) > 0 && !bytes.HasSuffix(existing, []byte("\n\n")) {
		if n := len(doc.Blocks); n > 0 {
			doc.Blocks[n-1].Content = strings.TrimRight(doc.Blocks[n-1].Content, "\n") + "\n\n"
		} else {
			doc.Preamble = strings.TrimRight(doc.Preamble, "\n") + "\n\n"
		}
	}

	doc.Blocks = append(doc.Blocks, parser.Block{
		SessionID: req.SessionID,
		Timestamp: now.Format(time.RFC3339),
		TTL:       req.TTL,
		Content:   "\n" + checksum.Normalize(req.Content) + "\n\n",
	})
	return s.store.Write(path, parser.Render(doc.Preamble, doc.Blocks))
}

// FileChecksum returns the checksum of a category file, or "" when absent.
func (s *Service) FileChecksum(category string) (string, error) {
	data, err := s.store.Read(storage.CategoryPath(category))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return checksum.Sum(data), nil
}

// newSessionID builds a sortable id such as 20250101-120000-1f0c9a2b.
func newSessionID(now time.Time) string {
	return now.Format("20060102-150405") + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func (s *Service) hasCategory(category string) bool {
	for _, c := range s.repo.Categories() {
		if c == category {
			return true
		}
	}
	return false
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
