package storage

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/handiism/songmesh/internal/model"
)

// ErrNotFound is returned when a stored file does not exist.
var ErrNotFound = errors.New("not found")

// ContentStore holds audio files addressed by the hex SHA-256 of their bytes.
type ContentStore interface {
	// HasFile reports whether a file with the given hash is stored.
	HasFile(ctx context.Context, hash string) (bool, error)

	// ReadFile returns the stored bytes of hash.
	ReadFile(ctx context.Context, hash string) ([]byte, error)

	// Open returns a reader over the stored file along with its size and
	// modification time.
	Open(ctx context.Context, hash string) (File, error)

	// Submit stores data under its content hash and returns the hash. When
	// filename starts with a hash it must match the content.
	Submit(ctx context.Context, data []byte, filename string) (string, error)

	// Remove deletes the stored file. Removing a missing file is not an error.
	Remove(ctx context.Context, hash string) error
}

// File is an open stored file.
type File interface {
	io.ReadSeekCloser
	Size() int64
	ModTime() time.Time
}

// MetadataStore maps song titles to stored files.
//
// Titles are passed already normalized; the store treats them as opaque
// primary keys.
type MetadataStore interface {
	// GetByTitle returns the document for title, or nil when absent.
	GetByTitle(ctx context.Context, title string) (*model.Document, error)

	// Access records a read of doc.
	Access(ctx context.Context, doc *model.Document) error

	// Put inserts or replaces the document for doc.Title.
	Put(ctx context.Context, doc *model.Document) error

	// Delete removes the document for title and reports whether it existed.
	Delete(ctx context.Context, title string) (bool, error)

	// CountByHash returns how many titles reference hash.
	CountByHash(ctx context.Context, hash string) (int64, error)

	// Close releases the underlying connection.
	Close() error
}
