//go:build !sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; full-text search uses LIKE fallback on blocks.body.
	return nil
}

func ftsUpsert(_ *sql.Tx, _, _, _ string, _ []string) error {
	// Body is already stored in the blocks table; nothing extra to do.
	return nil
}

func ftsDeleteCategory(_ *sql.Tx, _ string) {}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Search matches blocks containing every whitespace-separated term in
// their session id, body or tags. Used when FTS5 is not compiled in.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	terms := strings.Fields(query)
	if len(terms) == 0 {
		return []SearchResult{}, nil
	}

	where := make([]string, 0, len(terms))
	args := make([]any, 0, 3*len(terms)+1)
	for _, term := range terms {
		like := "%" + likeEscaper.Replace(term) + "%"
		where = append(where, `(session_id LIKE ? ESCAPE '\' OR body LIKE ? ESCAPE '\' OR tags LIKE ? ESCAPE '\')`)
		args = append(args, like, like, like)
	}
	args = append(args, limit)

	rows, err := db.conn.Query(`
		SELECT category, session_id, timestamp, preview, substr(body, 1, 200)
		FROM blocks
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY category, position
		LIMIT ?`, args...)
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
