package models

import "time"

// Commit is an immutable record in the commit log.
type Commit struct {
	Hash       string    `json:"hash"`
	Parent     string    `json:"parent,omitempty"`
	Branch     string    `json:"branch"`
	Timestamp  time.Time `json:"timestamp"`
	Message    string    `json:"message"`
	SessionIDs []string  `json:"session_ids"`
	// Blocks maps category -> session id -> content hash.
	Blocks         map[string]map[string]string `json:"blocks"`
	CategoryHashes map[string]string            `json:"category_hashes"`
	// Objects maps category -> session id -> object store key. Commits
	// without it key objects by content hash.
	Objects map[string]map[string]string `json:"objects,omitempty"`
}

// ShortHash returns the first 8 characters of the commit hash.
func (c *Commit) ShortHash() string {
	return Short(c.Hash)
}

// Short abbreviates a hash for display.
func Short(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}

// Branch is a named ref together with the commit it points at.
type Branch struct {
	Name    string `json:"name"`
	Hash    string `json:"hash,omitempty"`
	Current bool   `json:"current"`
}

// Head describes where HEAD points. Hash is empty before the first commit.
type Head struct {
	Branch   string `json:"branch,omitempty"`
	Hash     string `json:"hash,omitempty"`
	Detached bool   `json:"detached"`
}

// Label returns the branch name, or "(detached:<short>)" for a detached HEAD.
func (h Head) Label() string {
	if h.Detached {
		return "(detached:" + Short(h.Hash) + ")"
	}
	return h.Branch
}
