package index

import (
	"log/slog"
	"time"

	"github.com/starford/engram/internal/checksum"
	"github.com/starford/engram/internal/models"
	"github.com/starford/engram/internal/parser"
	"github.com/starford/engram/internal/storage"
)

// Sync brings the index up to date with the working tree in one pass.
// Only files whose category appears in categories are indexed; a nil
// slice indexes every top-level markdown file.
func Sync(db *DB, store storage.Provider, categories []string, logger *slog.Logger) error {
	return reconcile(db, store, categories, logger, nil)
}

func listCategories(store storage.Provider, categories []string) ([]models.CategoryFile, error) {
	metas, err := store.List()
	if err != nil {
		return nil, err
	}
	if categories == nil {
		return metas, nil
	}
	allowed := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		allowed[c] = struct{}{}
	}
	out := metas[:0]
	for _, m := range metas {
		if _, ok := allowed[m.Category]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

// indexCategory parses one category file and replaces its blocks in the DB.
// Duplicate session ids keep their first occurrence.
func indexCategory(db *DB, m models.CategoryFile, data []byte) error {
	doc, err := parser.Parse(data)
	if err != nil {
		return err
	}

	rows := make([]BlockRow, 0, len(doc.Blocks))
	seen := make(map[string]struct{}, len(doc.Blocks))
	for i, b := range doc.Blocks {
		if _, dup := seen[b.SessionID]; dup {
			continue
		}
		seen[b.SessionID] = struct{}{}
		rows = append(rows, BlockRow{
			Category:    m.Category,
			SessionID:   b.SessionID,
			Position:    i,
			Timestamp:   b.Timestamp,
			TTL:         b.TTL,
			ContentHash: checksum.Block(b.SessionID, b.Content),
			Preview:     b.Preview,
			Body:        checksum.Normalize(b.Content),
			Tags:        b.Tags,
			Links:       b.Links,
		})
	}

	updated := m.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	return db.ReplaceCategory(FileRow{
		Category:  m.Category,
		Checksum:  checksum.Sum(data),
		Title:     doc.Title,
		UpdatedAt: updated,
	}, rows)
}
