// Package checksum computes the content addresses used by the memory VCS.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Normalize canonicalises block content before hashing: CRLF becomes LF and
// surrounding whitespace is trimmed.
func Normalize(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	return strings.TrimSpace(content)
}

// Block returns the content hash of a knowledge block.
func Block(sessionID, content string) string {
	h := sha256.New()
	h.Write([]byte(sessionID))
	h.Write([]byte{0})
	h.Write([]byte(Normalize(content)))
	return hex.EncodeToString(h.Sum(nil))
}

// Revision hashes a block together with its header fields, so an edit to
// the timestamp or TTL yields a new revision while Block stays the same.
func Revision(sessionID, timestamp, ttl, content string) string {
	h := sha256.New()
	for _, part := range []string{sessionID, timestamp, ttl} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	h.Write([]byte(Normalize(content)))
	return hex.EncodeToString(h.Sum(nil))
}

// Category returns the aggregate hash of one category given its
// session id -> block hash map. An empty map hashes to "".
func Category(blocks map[string]string) string {
	if len(blocks) == 0 {
		return ""
	}
	ids := make([]string, 0, len(blocks))
	for id := range blocks {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	h := sha256.New()
	for _, id := range ids {
		h.Write([]byte(id))
		h.Write([]byte{':'})
		h.Write([]byte(blocks[id]))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Commit derives a commit hash from its parent, the per-block revisions
// (category -> session id -> hash), the RFC 3339 timestamp and the message.
func Commit(parent string, blocks map[string]map[string]string, timestamp, message string) string {
	lines := make([]string, 0)
	for cat, ids := range blocks {
		for id, hash := range ids {
			lines = append(lines, cat+"/"+id+":"+hash)
		}
	}
	sort.Strings(lines)

	h := sha256.New()
	h.Write([]byte(parent))
	h.Write([]byte{'\n'})
	h.Write([]byte(strings.Join(lines, "\n")))
	h.Write([]byte{'\n'})
	h.Write([]byte(timestamp))
	h.Write([]byte{'\n'})
	h.Write([]byte(message))
	return hex.EncodeToString(h.Sum(nil))
}
