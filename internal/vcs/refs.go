package vcs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"unicode"

	"github.com/starford/engram/internal/apperr"
	"github.com/starford/engram/internal/models"
)

const detachedPrefix = "detached:"

// headState is the decoded content of the HEAD file. Exactly one of
// Branch and Hash is set.
type headState struct {
	Branch string
	Hash   string
}

func (r *Repository) readHead() (headState, error) {
	data, err := r.meta.Read(headFile)
	if errors.Is(err, fs.ErrNotExist) {
		return headState{}, fmt.Errorf("vcs: %w", apperr.ErrNotInitialized)
	}
	if err != nil {
		return headState{}, fmt.Errorf("vcs: %w", err)
	}
	s := strings.TrimSpace(string(data))
	switch {
	case strings.HasPrefix(s, detachedPrefix):
		return headState{Hash: strings.TrimPrefix(s, detachedPrefix)}, nil
	case strings.HasPrefix(s, "ref: refs/heads/"):
		return headState{Branch: strings.TrimPrefix(s, "ref: refs/heads/")}, nil
	case s == "":
		return headState{}, fmt.Errorf("vcs: empty HEAD: %w", apperr.ErrCorrupt)
	default:
		return headState{Branch: s}, nil
	}
}

func (r *Repository) writeHead(h headState) error {
	content := h.Branch
	if h.Branch == "" {
		content = detachedPrefix + h.Hash
	}
	if err := r.meta.Write(headFile, []byte(content+"\n")); err != nil {
		return fmt.Errorf("vcs: write HEAD: %w", err)
	}
	return nil
}

func refPath(name string) string { return path.Join(refsDir, name) }

// readRef returns the tip of a branch and whether the branch exists.
func (r *Repository) readRef(name string) (string, bool, error) {
	data, err := r.meta.Read(refPath(name))
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("vcs: read ref %s: %w", name, err)
	}
	return strings.TrimSpace(string(data)), true, nil
}

func (r *Repository) writeRef(name, hash string) error {
	if err := r.meta.Write(refPath(name), []byte(hash+"\n")); err != nil {
		return fmt.Errorf("vcs: write ref %s: %w", name, err)
	}
	return nil
}

func (r *Repository) branchNames() ([]string, error) {
	names, err := r.meta.Entries(refsDir)
	if err != nil {
		return nil, fmt.Errorf("vcs: list refs: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// head resolves HEAD into its public form. Hash is empty on an unborn branch.
func (r *Repository) head() (models.Head, error) {
	hs, err := r.readHead()
	if err != nil {
		return models.Head{}, err
	}
	if hs.Branch == "" {
		return models.Head{Hash: hs.Hash, Detached: true}, nil
	}
	hash, _, err := r.readRef(hs.Branch)
	if err != nil {
		return models.Head{}, err
	}
	return models.Head{Branch: hs.Branch, Hash: hash}, nil
}

// Head reports where HEAD points.
func (r *Repository) Head(ctx context.Context) (models.Head, error) {
	if err := ctx.Err(); err != nil {
		return models.Head{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.head()
}

// ValidateBranchName rejects names that cannot be stored as a ref file or
// would be confused with HEAD syntax or the working-tree diff endpoint.
func ValidateBranchName(name string) error {
	invalid := name == "" ||
		name == "HEAD" ||
		name == WorkingRef ||
		name == "." ||
		strings.HasPrefix(name, detachedPrefix) ||
		strings.HasPrefix(name, ".") ||
		strings.Contains(name, "/") ||
		strings.Contains(name, "\\") ||
		strings.Contains(name, "..") ||
		strings.Contains(name, "~") ||
		strings.IndexFunc(name, unicode.IsSpace) >= 0
	if invalid {
		return fmt.Errorf("vcs: %q: %w", name, apperr.ErrInvalidBranchName)
	}
	return nil
}
