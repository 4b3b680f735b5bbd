package storage

import (
	"context"
	"fmt"
	"path/filepath"
)

// Metadata drivers accepted by OpenMetadata.
const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

// MetadataOptions selects and configures a metadata backend.
type MetadataOptions struct {
	Driver        string
	StorageDir    string
	MongoURI      string
	MongoDatabase string
}

// OpenMetadata opens the configured metadata backend. SQLite keeps its
// database next to the stored files.
func OpenMetadata(ctx context.Context, opts MetadataOptions) (MetadataStore, error) {
	switch opts.Driver {
	case "", DriverSQLite:
		return OpenSQLite(ctx, filepath.Join(opts.StorageDir, "songs.db"))
	case DriverMongo:
		return OpenMongo(ctx, opts.MongoURI, opts.MongoDatabase)
	}
	return nil, fmt.Errorf("unknown metadata driver %q", opts.Driver)
}
