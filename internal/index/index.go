package index

// BlockIndex defines the interface for block indexing operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type BlockIndex interface {
	ReplaceCategory(f FileRow, blocks []BlockRow) error
	DeleteCategory(category string) error
	GetChecksum(category string) (string, error)
	AllChecksums() (map[string]string, error)
	ListBlocks(category string, limit, offset int) ([]BlockRow, int, error)
	GetBlock(category, sessionID string) (*BlockRow, error)
	Search(query string, limit int) ([]SearchResult, error)
	Backlinks(target string) ([]string, error)
	Close() error
}

// Verify *DB satisfies BlockIndex at compile time.
var _ BlockIndex = (*DB)(nil)
