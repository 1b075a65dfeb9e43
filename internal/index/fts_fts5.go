//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS blocks_fts USING fts5(
			category UNINDEXED,
			session_id UNINDEXED,
			body,
			tags,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, category, sessionID, body string, tags []string) error {
	_, _ = tx.Exec(`DELETE FROM blocks_fts WHERE category = ? AND session_id = ?`, category, sessionID)
	_, err := tx.Exec(`INSERT INTO blocks_fts (category, session_id, body, tags) VALUES (?, ?, ?, ?)`,
		category, sessionID, body, strings.Join(tags, " "))
	if err != nil {
		return fmt.Errorf("index: upsert fts: %w", err)
	}
	return nil
}

func ftsDeleteCategory(tx *sql.Tx, category string) {
	_, _ = tx.Exec(`DELETE FROM blocks_fts WHERE category = ?`, category)
}

// Search performs an FTS5 full-text search and returns matching blocks with snippets.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	match := matchExpr(query)
	if match == "" {
		return []SearchResult{}, nil
	}
	rows, err := db.conn.Query(`
		SELECT f.category,
		       f.session_id,
		       b.timestamp,
		       b.preview,
		       snippet(blocks_fts, 2, '<b>', '</b>', '...', 64)
		FROM blocks_fts f
		JOIN blocks b ON b.category = f.category AND b.session_id = f.session_id
		WHERE blocks_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	out := []SearchResult{}
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.Category, &r.SessionID, &r.Timestamp, &r.Preview, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// matchExpr quotes every term so user input never reaches the FTS5 query
// syntax; the terms are ANDed.
func matchExpr(query string) string {
	terms := strings.Fields(query)
	for i, t := range terms {
		terms[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(terms, " ")
}
