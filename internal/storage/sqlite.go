package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	ioutils "github.com/handiism/songmesh/internal/io"
	"github.com/handiism/songmesh/internal/model"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// SQLiteMetadata is a MetadataStore backed by SQLite.
type SQLiteMetadata struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens or creates the metadata database at path and applies
// migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLiteMetadata, error) {
	if err := ioutils.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("ensure db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &SQLiteMetadata{db: db, path: path}
	if err := store.applyMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *SQLiteMetadata) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// GetByTitle implements MetadataStore.
func (s *SQLiteMetadata) GetByTitle(ctx context.Context, title string) (*model.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT title, file_hash, priority, created_at, accessed_at, access_count
         FROM songs WHERE title = ?`, title)

	var (
		doc                 model.Document
		createdAt, accessed string
	)
	if err := row.Scan(&doc.Title, &doc.FileHash, &doc.Priority, &createdAt, &accessed, &doc.AccessCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get song %q: %w", title, err)
	}
	doc.CreatedAt = parseTime(createdAt)
	doc.AccessedAt = parseTime(accessed)
	return &doc, nil
}

// Access implements MetadataStore.
func (s *SQLiteMetadata) Access(ctx context.Context, doc *model.Document) error {
	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx,
		`UPDATE songs SET accessed_at = ?, access_count = access_count + 1 WHERE title = ?`,
		now.Format(time.RFC3339Nano), doc.Title,
	); err != nil {
		return fmt.Errorf("access song %q: %w", doc.Title, err)
	}
	doc.AccessedAt = now
	doc.AccessCount++
	return nil
}

// Put implements MetadataStore.
func (s *SQLiteMetadata) Put(ctx context.Context, doc *model.Document) error {
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	if doc.AccessedAt.IsZero() {
		doc.AccessedAt = now
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO songs (title, file_hash, priority, created_at, accessed_at, access_count)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT(title) DO UPDATE SET
             file_hash = excluded.file_hash,
             priority = excluded.priority,
             accessed_at = excluded.accessed_at`,
		doc.Title,
		doc.FileHash,
		doc.Priority,
		doc.CreatedAt.Format(time.RFC3339Nano),
		doc.AccessedAt.Format(time.RFC3339Nano),
		doc.AccessCount,
	)
	if err != nil {
		return fmt.Errorf("put song %q: %w", doc.Title, err)
	}
	return nil
}

// Delete implements MetadataStore.
func (s *SQLiteMetadata) Delete(ctx context.Context, title string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM songs WHERE title = ?`, title)
	if err != nil {
		return false, fmt.Errorf("delete song %q: %w", title, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// CountByHash implements MetadataStore.
func (s *SQLiteMetadata) CountByHash(ctx context.Context, hash string) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM songs WHERE file_hash = ?`, hash).Scan(&n); err != nil {
		return 0, fmt.Errorf("count songs by hash: %w", err)
	}
	return n, nil
}

type migration struct {
	version string
	sql     string
}

func loadMigrations() ([]migration, error) {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	migrations := make([]migration, 0, len(names))
	for _, name := range names {
		data, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		migrations = append(migrations, migration{version: strings.TrimSuffix(name, ".sql"), sql: string(data)})
	}
	return migrations, nil
}

func (s *SQLiteMetadata) applyMigrations(ctx context.Context) error {
	migrations, err := loadMigrations()
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY)"); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	for _, m := range migrations {
		var count int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM schema_migrations WHERE version = ?", m.version).Scan(&count); err != nil {
			return fmt.Errorf("scan migration version: %w", err)
		}
		if count > 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("apply migration %s: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
			return fmt.Errorf("record migration %s: %w", m.version, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migrations: %w", err)
	}
	return nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
