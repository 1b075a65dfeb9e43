// Package storage defines the knowledge-directory file-system abstraction.
package storage

import "github.com/starford/engram/internal/models"

// Provider is the interface for knowledge file operations. All paths are
// relative to the provider root.
type Provider interface {
	// Root returns the absolute directory the provider is confined to.
	Root() string
	// List returns metadata for every top-level .md category file.
	List() ([]models.CategoryFile, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
	// Exists reports whether a regular file exists at path.
	Exists(path string) (bool, error)
	// Entries returns the names of regular files directly under dir.
	Entries(dir string) ([]string, error)
}

// CategoryPath returns the file name that holds a category's blocks.
func CategoryPath(category string) string {
	return category + ".md"
}
