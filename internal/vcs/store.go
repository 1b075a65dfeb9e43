package vcs

import (
	"fmt"
	"sort"

	"github.com/starford/engram/internal/apperr"
	"github.com/starford/engram/internal/models"
)

// objectStore is the decoded objects.json. Entries are write-once.
type objectStore map[string]models.Object

func (r *Repository) loadObjects() (objectStore, error) {
	objs := objectStore{}
	if err := r.readJSON(objectsFile, &objs); err != nil {
		return nil, err
	}
	return objs, nil
}

// put records content under hash and reports whether the store grew.
func (o objectStore) put(hash string, obj models.Object) bool {
	if _, ok := o[hash]; ok {
		return false
	}
	o[hash] = obj
	return true
}

// commitLog is the decoded commits.json, oldest first.
type commitLog struct {
	list   []models.Commit
	byHash map[string]int
}

func (r *Repository) loadCommits() (*commitLog, error) {
	var list []models.Commit
	if err := r.readJSON(commitsFile, &list); err != nil {
		return nil, err
	}
	l := &commitLog{list: list, byHash: make(map[string]int, len(list))}
	for i, c := range list {
		l.byHash[c.Hash] = i
	}
	return l, nil
}

func (l *commitLog) get(hash string) (*models.Commit, bool) {
	i, ok := l.byHash[hash]
	if !ok {
		return nil, false
	}
	c := l.list[i]
	return &c, true
}

// mustGet looks up a hash that a ref or parent pointer claims exists.
func (l *commitLog) mustGet(hash string) (*models.Commit, error) {
	c, ok := l.get(hash)
	if !ok {
		return nil, fmt.Errorf("vcs: commit %s referenced but missing: %w", models.Short(hash), apperr.ErrCorrupt)
	}
	return c, nil
}

func (l *commitLog) append(c models.Commit) {
	l.byHash[c.Hash] = len(l.list)
	l.list = append(l.list, c)
}

// withPrefix returns every commit hash starting with prefix.
func (l *commitLog) withPrefix(prefix string) []string {
	var out []string
	for _, c := range l.list {
		if len(c.Hash) >= len(prefix) && c.Hash[:len(prefix)] == prefix {
			out = append(out, c.Hash)
		}
	}
	return out
}

// staging is the decoded staging.json: a set of session ids.
type staging map[string]struct{}

func (r *Repository) loadStaging() (staging, error) {
	var ids []string
	if err := r.readJSON(stagingFile, &ids); err != nil {
		return nil, err
	}
	s := make(staging, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s, nil
}

func (r *Repository) saveStaging(s staging) error {
	return r.writeJSON(stagingFile, s.sorted())
}

func (s staging) sorted() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
