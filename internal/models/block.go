// Package models defines the domain types for the engram memory VCS.
package models

import "time"

// Block is a single knowledge entry inside a category file, as seen in the
// working tree or reconstructed from a commit.
type Block struct {
	SessionID string `json:"session_id"`
	Category  string `json:"category"`
	Timestamp string `json:"timestamp"`
	TTL       string `json:"ttl,omitempty"`
	Content   string `json:"-"`
	Preview   string `json:"preview"`
	Hash      string `json:"hash"`
	// Revision also covers the header fields; it keys the object store.
	Revision string `json:"-"`
}

// Object is a block's header fields and content, stored once under its
// revision hash.
type Object struct {
	SessionID string `json:"session_id"`
	Timestamp string `json:"timestamp"`
	TTL       string `json:"ttl,omitempty"`
	Content   string `json:"content"`
}

// SessionRef summarises one session id across every category it appears in.
type SessionRef struct {
	SessionID  string   `json:"session_id"`
	Categories []string `json:"categories"`
	Timestamp  string   `json:"timestamp"`
	Preview    string   `json:"preview"`
	// Modified is set when the id is already in HEAD but its content or
	// header differs.
	Modified bool `json:"modified,omitempty"`
}

// CategoryFile is lightweight metadata about a category file on disk.
type CategoryFile struct {
	Category  string    `json:"category"`
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
