package vcs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"sort"

	"github.com/starford/engram/internal/apperr"
	"github.com/starford/engram/internal/checksum"
	"github.com/starford/engram/internal/models"
	"github.com/starford/engram/internal/parser"
	"github.com/starford/engram/internal/storage"
)

// Snapshot is the full (category, session id) -> block mapping of either a
// commit or the live working tree. Commit is nil for the working tree.
type Snapshot struct {
	Commit *models.Commit
	Blocks map[string]map[string]models.Block
}

func newSnapshot() *Snapshot {
	return &Snapshot{Blocks: map[string]map[string]models.Block{}}
}

func (s *Snapshot) add(b models.Block) {
	m, ok := s.Blocks[b.Category]
	if !ok {
		m = map[string]models.Block{}
		s.Blocks[b.Category] = m
	}
	m[b.SessionID] = b
}

func (s *Snapshot) lookup(category, id string) (models.Block, bool) {
	b, ok := s.Blocks[category][id]
	return b, ok
}

// Len returns the number of blocks in the snapshot.
func (s *Snapshot) Len() int {
	n := 0
	for _, m := range s.Blocks {
		n += len(m)
	}
	return n
}

// Hashes returns category -> session id -> content hash.
func (s *Snapshot) Hashes() map[string]map[string]string {
	out := make(map[string]map[string]string, len(s.Blocks))
	for cat, m := range s.Blocks {
		if len(m) == 0 {
			continue
		}
		hm := make(map[string]string, len(m))
		for id, b := range m {
			hm[id] = b.Hash
		}
		out[cat] = hm
	}
	return out
}

// Revisions returns category -> session id -> revision hash.
func (s *Snapshot) Revisions() map[string]map[string]string {
	out := make(map[string]map[string]string, len(s.Blocks))
	for cat, m := range s.Blocks {
		if len(m) == 0 {
			continue
		}
		rm := make(map[string]string, len(m))
		for id, b := range m {
			rm[id] = b.Revision
		}
		out[cat] = rm
	}
	return out
}

// sameRevisions reports whether a and b record identical blocks, header
// fields included.
func sameRevisions(a, b *Snapshot) bool {
	ra, rb := a.Revisions(), b.Revisions()
	if len(ra) != len(rb) {
		return false
	}
	for cat, m := range ra {
		if !maps.Equal(m, rb[cat]) {
			return false
		}
	}
	return true
}

// CategoryHashes returns the aggregate hash of every non-empty category.
func (s *Snapshot) CategoryHashes() map[string]string {
	out := map[string]string{}
	for cat, hm := range s.Hashes() {
		out[cat] = checksum.Category(hm)
	}
	return out
}

// sessions groups blocks by session id. The categories of each entry are
// sorted and Timestamp/Preview come from the first category that has them.
func (s *Snapshot) sessions() map[string]*models.SessionRef {
	cats := make([]string, 0, len(s.Blocks))
	for cat := range s.Blocks {
		cats = append(cats, cat)
	}
	sort.Strings(cats)

	out := map[string]*models.SessionRef{}
	for _, cat := range cats {
		for id, b := range s.Blocks[cat] {
			ref, ok := out[id]
			if !ok {
				ref = &models.SessionRef{SessionID: id, Timestamp: b.Timestamp, Preview: b.Preview}
				out[id] = ref
			}
			ref.Categories = append(ref.Categories, cat)
		}
	}
	return out
}

// SessionIDs returns every session id in the snapshot, sorted.
func (s *Snapshot) SessionIDs() []string {
	sessions := s.sessions()
	ids := make([]string, 0, len(sessions))
	for id := range sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// sameSession reports whether id has identical blocks in a and b, header
// fields included.
func sameSession(a, b *Snapshot, id string) bool {
	for cat, m := range a.Blocks {
		if x, ok := m[id]; ok {
			y, ok := b.lookup(cat, id)
			if !ok || x.Revision != y.Revision {
				return false
			}
		}
	}
	for cat, m := range b.Blocks {
		if _, ok := m[id]; ok {
			if _, ok := a.lookup(cat, id); !ok {
				return false
			}
		}
	}
	return true
}

// readCategory parses one category file. A missing file yields a nil
// document and no error.
func (r *Repository) readCategory(category string) (*parser.Document, error) {
	data, err := r.work.Read(storage.CategoryPath(category))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("vcs: %w", err)
	}
	doc, err := parser.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("vcs: parse %s: %w", category, err)
	}
	return doc, nil
}

func blockFromParsed(category string, pb parser.Block) models.Block {
	return models.Block{
		SessionID: pb.SessionID,
		Category:  category,
		Timestamp: pb.Timestamp,
		TTL:       pb.TTL,
		Content:   pb.Content,
		Preview:   pb.Preview,
		Hash:      checksum.Block(pb.SessionID, pb.Content),
		Revision:  checksum.Revision(pb.SessionID, pb.Timestamp, pb.TTL, pb.Content),
	}
}

func (r *Repository) workingSnapshot() (*Snapshot, error) {
	snap := newSnapshot()
	for _, cat := range r.categories {
		doc, err := r.readCategory(cat)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			continue
		}
		for _, pb := range doc.Blocks {
			if _, dup := snap.lookup(cat, pb.SessionID); dup {
				r.logger.Debug("vcs: duplicate block ignored",
					slog.String("category", cat),
					slog.String("session_id", pb.SessionID))
				continue
			}
			snap.add(blockFromParsed(cat, pb))
		}
	}
	return snap, nil
}

// commitSnapshot rebuilds a commit's blocks from the object store.
func commitSnapshot(c *models.Commit, objs objectStore) (*Snapshot, error) {
	snap := newSnapshot()
	snap.Commit = c
	for cat, ids := range c.Blocks {
		for id, hash := range ids {
			key := hash
			if k, ok := c.Objects[cat][id]; ok {
				key = k
			}
			obj, ok := objs[key]
			if !ok {
				return nil, fmt.Errorf("vcs: object %s for %s/%s missing: %w",
					models.Short(key), cat, id, apperr.ErrCorrupt)
			}
			snap.add(models.Block{
				SessionID: id,
				Category:  cat,
				Timestamp: obj.Timestamp,
				TTL:       obj.TTL,
				Content:   obj.Content,
				Preview:   parser.Preview(obj.Content),
				Hash:      hash,
				Revision:  checksum.Revision(id, obj.Timestamp, obj.TTL, obj.Content),
			})
		}
	}
	return snap, nil
}

// headSnapshot returns HEAD's snapshot, or an empty one on an unborn branch.
func (r *Repository) headSnapshot(h models.Head, commits *commitLog, objs objectStore) (*Snapshot, error) {
	if h.Hash == "" {
		return newSnapshot(), nil
	}
	c, err := commits.mustGet(h.Hash)
	if err != nil {
		return nil, err
	}
	return commitSnapshot(c, objs)
}

// WorkingSnapshot parses the tracked category files of the working tree.
func (r *Repository) WorkingSnapshot(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.workingSnapshot()
}

// Snapshot resolves ref and returns the blocks recorded in that commit.
func (r *Repository) Snapshot(ctx context.Context, ref string) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	commits, err := r.loadCommits()
	if err != nil {
		return nil, err
	}
	c, err := r.resolve(ref, commits)
	if err != nil {
		return nil, err
	}
	objs, err := r.loadObjects()
	if err != nil {
		return nil, err
	}
	return commitSnapshot(c, objs)
}
