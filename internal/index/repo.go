package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// FileRow represents a row in the files table: one indexed category file.
type FileRow struct {
	Category  string
	Checksum  string
	Title     string
	UpdatedAt time.Time
}

// BlockRow represents one indexed session block.
type BlockRow struct {
	Category    string   `json:"category"`
	SessionID   string   `json:"session_id"`
	Position    int      `json:"position"`
	Timestamp   string   `json:"timestamp"`
	TTL         string   `json:"ttl,omitempty"`
	ContentHash string   `json:"content_hash"`
	Preview     string   `json:"preview"`
	Body        string   `json:"body,omitempty"`
	Tags        []string `json:"tags"`
	Links       []string `json:"links,omitempty"`
}

// SearchResult represents one search hit.
type SearchResult struct {
	Category  string `json:"category"`
	SessionID string `json:"session_id"`
	Timestamp string `json:"timestamp"`
	Preview   string `json:"preview"`
	Snippet   string `json:"snippet"`
}

// ReplaceCategory swaps every block of one category, their FTS entries
// and links, within a transaction.
func (db *DB) ReplaceCategory(f FileRow, blocks []BlockRow) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if err := clearCategory(tx, f.Category); err != nil {
		return err
	}

	_, err = tx.Exec(`
		INSERT INTO files (category, checksum, title, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(category) DO UPDATE SET
			checksum   = excluded.checksum,
			title      = excluded.title,
			updated_at = excluded.updated_at
	`, f.Category, f.Checksum, f.Title, f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert file: %w", err)
	}

	blockStmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO blocks
			(category, session_id, position, timestamp, ttl, content_hash, preview, body, tags)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("index: prepare block insert: %w", err)
	}
	defer blockStmt.Close()
	linkStmt, err := tx.Prepare(`INSERT OR IGNORE INTO links (category, source, target) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("index: prepare link insert: %w", err)
	}
	defer linkStmt.Close()

	for _, b := range blocks {
		tagsJSON, _ := json.Marshal(nonNil(b.Tags))
		if _, err := blockStmt.Exec(f.Category, b.SessionID, b.Position, b.Timestamp, b.TTL,
			b.ContentHash, b.Preview, b.Body, string(tagsJSON)); err != nil {
			return fmt.Errorf("index: insert block %s: %w", b.SessionID, err)
		}
		if err := ftsUpsert(tx, f.Category, b.SessionID, b.Body, b.Tags); err != nil {
			return err
		}
		for _, target := range b.Links {
			if _, err := linkStmt.Exec(f.Category, b.SessionID, target); err != nil {
				return fmt.Errorf("index: insert link: %w", err)
			}
		}
	}

	return tx.Commit()
}

// DeleteCategory removes a category file and all of its blocks.
func (db *DB) DeleteCategory(category string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := clearCategory(tx, category); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM files WHERE category = ?`, category); err != nil {
		return fmt.Errorf("index: delete file: %w", err)
	}
	return tx.Commit()
}

func clearCategory(tx *sql.Tx, category string) error {
	ftsDeleteCategory(tx, category)
	if _, err := tx.Exec(`DELETE FROM links WHERE category = ?`, category); err != nil {
		return fmt.Errorf("index: clear links: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM blocks WHERE category = ?`, category); err != nil {
		return fmt.Errorf("index: clear blocks: %w", err)
	}
	return nil
}

// GetChecksum returns the stored checksum for a category file, or empty
// string if it is not indexed.
func (db *DB) GetChecksum(category string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM files WHERE category = ?`, category).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: checksum: %w", err)
	}
	return cs, nil
}

// AllChecksums returns category -> checksum for every indexed file.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT category, checksum FROM files`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var c, cs string
		if err := rows.Scan(&c, &cs); err != nil {
			return nil, err
		}
		out[c] = cs
	}
	return out, rows.Err()
}

// ListBlocks returns blocks in file order, optionally restricted to one
// category, plus the total count before paging.
func (db *DB) ListBlocks(category string, limit, offset int) ([]BlockRow, int, error) {
	if limit <= 0 {
		limit = 50
	}
	var total int
	if err := db.conn.QueryRow(
		`SELECT count(*) FROM blocks WHERE ? = '' OR category = ?`, category, category,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count blocks: %w", err)
	}

	rows, err := db.conn.Query(`
		SELECT category, session_id, position, timestamp, ttl, content_hash, preview, tags
		FROM blocks
		WHERE ? = '' OR category = ?
		ORDER BY category, position
		LIMIT ? OFFSET ?`, category, category, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list blocks: %w", err)
	}
	defer rows.Close()

	out := []BlockRow{}
	for rows.Next() {
		b, err := scanBlock(rows, false)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, b)
	}
	return out, total, rows.Err()
}

// GetBlock returns one block with its body and outgoing links.
func (db *DB) GetBlock(category, sessionID string) (*BlockRow, error) {
	row := db.conn.QueryRow(`
		SELECT category, session_id, position, timestamp, ttl, content_hash, preview, tags, body
		FROM blocks WHERE category = ? AND session_id = ?`, category, sessionID)
	b, err := scanBlock(row, true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("index: get block: %w", err)
	}

	rows, err := db.conn.Query(`SELECT target FROM links WHERE category = ? AND source = ? ORDER BY target`,
		category, sessionID)
	if err != nil {
		return nil, fmt.Errorf("index: block links: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var target string
		if err := rows.Scan(&target); err != nil {
			return nil, err
		}
		b.Links = append(b.Links, target)
	}
	return &b, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBlock(s scanner, withBody bool) (BlockRow, error) {
	var b BlockRow
	var tagsJSON string
	dest := []any{&b.Category, &b.SessionID, &b.Position, &b.Timestamp, &b.TTL, &b.ContentHash, &b.Preview, &tagsJSON}
	if withBody {
		dest = append(dest, &b.Body)
	}
	if err := s.Scan(dest...); err != nil {
		return BlockRow{}, err
	}
	_ = json.Unmarshal([]byte(tagsJSON), &b.Tags)
	if b.Tags == nil {
		b.Tags = []string{}
	}
	return b, nil
}

// Backlinks returns the distinct session ids whose blocks link to target.
func (db *DB) Backlinks(target string) ([]string, error) {
	rows, err := db.conn.Query(`SELECT DISTINCT source FROM links WHERE target = ? ORDER BY source`, target)
	if err != nil {
		return nil, fmt.Errorf("index: backlinks: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
