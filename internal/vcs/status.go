package vcs

import (
	"context"
	"sort"

	"github.com/starford/engram/internal/models"
)

// Status partitions every session id that differs between HEAD and the
// working tree. The three lists are pairwise disjoint.
type Status struct {
	Head models.Head `json:"head"`
	// Staged ids still present in the working tree that differ from HEAD.
	Staged []models.SessionRef `json:"staged"`
	// UnstagedNew ids are absent from HEAD, or present with different
	// content (Modified), and not staged.
	UnstagedNew []models.SessionRef `json:"unstaged_new"`
	// UnstagedRemoved ids are in HEAD but gone from the working tree.
	UnstagedRemoved []models.SessionRef `json:"unstaged_removed"`
}

// Clean reports whether the working tree matches HEAD with nothing staged.
func (s *Status) Clean() bool {
	return len(s.Staged) == 0 && len(s.UnstagedNew) == 0 && len(s.UnstagedRemoved) == 0
}

// Status classifies the working tree against HEAD and the staging area.
func (r *Repository) Status(ctx context.Context) (*Status, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	st, _, _, err := r.status()
	return st, err
}

// status also returns the snapshots it was computed from so callers do not
// parse the working tree twice.
func (r *Repository) status() (*Status, *Snapshot, *Snapshot, error) {
	h, err := r.head()
	if err != nil {
		return nil, nil, nil, err
	}
	commits, err := r.loadCommits()
	if err != nil {
		return nil, nil, nil, err
	}
	objs, err := r.loadObjects()
	if err != nil {
		return nil, nil, nil, err
	}
	headSnap, err := r.headSnapshot(h, commits, objs)
	if err != nil {
		return nil, nil, nil, err
	}
	work, err := r.workingSnapshot()
	if err != nil {
		return nil, nil, nil, err
	}
	staged, err := r.loadStaging()
	if err != nil {
		return nil, nil, nil, err
	}
	return classify(h, headSnap, work, staged), headSnap, work, nil
}

func classify(h models.Head, headSnap, work *Snapshot, staged staging) *Status {
	st := &Status{
		Head:            h,
		Staged:          []models.SessionRef{},
		UnstagedNew:     []models.SessionRef{},
		UnstagedRemoved: []models.SessionRef{},
	}
	headSessions := headSnap.sessions()
	workSessions := work.sessions()

	for id, ref := range workSessions {
		_, inHead := headSessions[id]
		changed := !inHead || !sameSession(headSnap, work, id)
		switch {
		case !changed:
			// matches HEAD, staged or not
		case hasID(staged, id):
			ref.Modified = inHead
			st.Staged = append(st.Staged, *ref)
		default:
			ref.Modified = inHead
			st.UnstagedNew = append(st.UnstagedNew, *ref)
		}
	}
	for id, ref := range headSessions {
		if _, ok := workSessions[id]; !ok {
			st.UnstagedRemoved = append(st.UnstagedRemoved, *ref)
		}
	}

	for _, list := range [][]models.SessionRef{st.Staged, st.UnstagedNew, st.UnstagedRemoved} {
		sort.Slice(list, func(i, j int) bool { return list[i].SessionID < list[j].SessionID })
	}
	return st
}

func hasID(s staging, id string) bool {
	_, ok := s[id]
	return ok
}

func refIDs(refs []models.SessionRef) []string {
	ids := make([]string, len(refs))
	for i, r := range refs {
		ids[i] = r.SessionID
	}
	return ids
}
