package vcs

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/starford/engram/internal/apperr"
	"github.com/starford/engram/internal/checksum"
	"github.com/starford/engram/internal/models"
)

// CommitOptions selects what a commit records.
type CommitOptions struct {
	Message string
	// SessionIDs commits exactly these ids, bypassing the staging area.
	// An id missing from the working tree but present in HEAD is recorded
	// as removed.
	SessionIDs []string
	// All commits every new, modified, staged and removed id.
	All bool
}

// Commit records a new commit on top of HEAD and advances the current
// branch, or HEAD itself when detached. Only the committed ids leave the
// staging area.
func (r *Repository) Commit(ctx context.Context, opts CommitOptions) (*models.Commit, error) {
	msg := strings.TrimSpace(opts.Message)
	if msg == "" {
		return nil, fmt.Errorf("vcs: commit: %w", apperr.ErrEmptyMessage)
	}

	release, err := r.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	st, headSnap, work, err := r.status()
	if err != nil {
		return nil, err
	}

	var ids []string
	switch {
	case len(opts.SessionIDs) > 0:
		headSessions, workSessions := headSnap.sessions(), work.sessions()
		for _, id := range opts.SessionIDs {
			_, inHead := headSessions[id]
			_, inWork := workSessions[id]
			if !inHead && !inWork {
				return nil, fmt.Errorf("vcs: commit %q: %w", id, apperr.ErrUnknownSession)
			}
		}
		ids = opts.SessionIDs
	case opts.All:
		ids = append(ids, refIDs(st.Staged)...)
		ids = append(ids, refIDs(st.UnstagedNew)...)
		ids = append(ids, refIDs(st.UnstagedRemoved)...)
	default:
		ids = refIDs(st.Staged)
	}
	if len(ids) == 0 {
		if err := r.unstageUnchanged(headSnap, work); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("vcs: commit: no staged or new sessions: %w", apperr.ErrNothingToCommit)
	}

	next := overlay(headSnap, work, ids)
	if sameRevisions(next, headSnap) {
		if err := r.unstageUnchanged(headSnap, work); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("vcs: commit: content matches HEAD: %w", apperr.ErrNothingToCommit)
	}

	commits, err := r.loadCommits()
	if err != nil {
		return nil, err
	}
	objs, err := r.loadObjects()
	if err != nil {
		return nil, err
	}
	objsChanged := false
	for _, m := range next.Blocks {
		for _, b := range m {
			objsChanged = objs.put(b.Revision, models.Object{
				SessionID: b.SessionID,
				Timestamp: b.Timestamp,
				TTL:       b.TTL,
				Content:   b.Content,
			}) || objsChanged
		}
	}

	ts := r.now().UTC()
	revisions := next.Revisions()
	c := models.Commit{
		Parent:         st.Head.Hash,
		Branch:         st.Head.Label(),
		Timestamp:      ts,
		Message:        msg,
		SessionIDs:     next.SessionIDs(),
		Blocks:         next.Hashes(),
		CategoryHashes: next.CategoryHashes(),
		Objects:        revisions,
	}
	c.Hash = checksum.Commit(c.Parent, revisions, ts.Format(time.RFC3339Nano), msg)
	commits.append(c)

	staged, err := r.loadStaging()
	if err != nil {
		return nil, err
	}
	unstaged := 0
	for _, id := range ids {
		if hasID(staged, id) {
			delete(staged, id)
			unstaged++
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if objsChanged {
		if err := r.writeJSON(objectsFile, objs); err != nil {
			return nil, err
		}
	}
	if err := r.writeJSON(commitsFile, commits.list); err != nil {
		return nil, err
	}
	if st.Head.Detached {
		err = r.writeHead(headState{Hash: c.Hash})
	} else {
		err = r.writeRef(st.Head.Branch, c.Hash)
	}
	if err != nil {
		return nil, err
	}
	// Staging is cleared only after the ref has moved.
	if unstaged > 0 {
		if err := r.saveStaging(staged); err != nil {
			return nil, err
		}
	}

	r.logger.Info("vcs: committed",
		slog.String("hash", c.ShortHash()),
		slog.String("branch", c.Branch),
		slog.Int("sessions", len(ids)),
		slog.Int("blocks", next.Len()))
	return &c, nil
}

// unstageUnchanged drops staged ids whose blocks in work match base.
func (r *Repository) unstageUnchanged(base, work *Snapshot) error {
	staged, err := r.loadStaging()
	if err != nil {
		return err
	}
	dropped := 0
	for id := range staged {
		if sameSession(base, work, id) {
			delete(staged, id)
			dropped++
		}
	}
	if dropped == 0 {
		return nil
	}
	r.logger.Info("vcs: unstaged unchanged sessions", slog.Int("count", dropped))
	return r.saveStaging(staged)
}

// overlay starts from base and replaces every block of each id with the
// blocks that id has in work, so ids work no longer has are dropped.
func overlay(base, work *Snapshot, ids []string) *Snapshot {
	selected := make(map[string]bool, len(ids))
	for _, id := range ids {
		selected[id] = true
	}
	out := newSnapshot()
	for _, m := range base.Blocks {
		for id, b := range m {
			if !selected[id] {
				out.add(b)
			}
		}
	}
	for _, m := range work.Blocks {
		for id, b := range m {
			if selected[id] {
				out.add(b)
			}
		}
	}
	return out
}

// sortedKeys returns the keys of m in order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
