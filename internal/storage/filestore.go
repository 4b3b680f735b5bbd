package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	ioutils "github.com/handiism/songmesh/internal/io"
)

var hashPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// ErrLocked is returned when another process already owns the storage directory.
var ErrLocked = errors.New("storage directory is locked by another process")

// FileStore is a ContentStore on the local filesystem.
//
// Files live under <root>/files/<hash>. The root directory is guarded by a
// lock file so that two nodes never share one store.
type FileStore struct {
	root string
	lock *flock.Flock
}

// OpenFileStore prepares root and takes its lock.
func OpenFileStore(root string) (*FileStore, error) {
	if err := ioutils.EnsureDir(filepath.Join(root, "files")); err != nil {
		return nil, fmt.Errorf("ensure storage dir: %w", err)
	}
	if err := ioutils.EnsureDir(filepath.Join(root, "tmp")); err != nil {
		return nil, fmt.Errorf("ensure temp dir: %w", err)
	}

	lock := flock.New(filepath.Join(root, "songmesh.lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock storage dir: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}

	return &FileStore{root: root, lock: lock}, nil
}

// Close releases the storage lock.
func (s *FileStore) Close() error {
	if s == nil || s.lock == nil {
		return nil
	}
	return s.lock.Unlock()
}

// Root returns the storage directory.
func (s *FileStore) Root() string {
	return s.root
}

func (s *FileStore) path(hash string) (string, error) {
	if !hashPattern.MatchString(hash) {
		return "", fmt.Errorf("invalid content hash %q", hash)
	}
	return filepath.Join(s.root, "files", hash), nil
}

// HasFile implements ContentStore.
func (s *FileStore) HasFile(ctx context.Context, hash string) (bool, error) {
	path, err := s.path(hash)
	if err != nil {
		return false, nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ReadFile implements ContentStore.
func (s *FileStore) ReadFile(ctx context.Context, hash string) ([]byte, error) {
	path, err := s.path(hash)
	if err != nil {
		return nil, ErrNotFound
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

// Open implements ContentStore.
func (s *FileStore) Open(ctx context.Context, hash string) (File, error) {
	path, err := s.path(hash)
	if err != nil {
		return nil, ErrNotFound
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &osFile{File: f, info: info}, nil
}

// Submit implements ContentStore.
func (s *FileStore) Submit(ctx context.Context, data []byte, filename string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	if name := strings.TrimSuffix(filename, filepath.Ext(filename)); hashPattern.MatchString(name) && name != hash {
		return "", fmt.Errorf("file name %q does not match content hash %s", filename, hash)
	}

	dst, _ := s.path(hash)
	if _, err := os.Stat(dst); err == nil {
		return hash, nil
	}

	tmp := filepath.Join(s.root, "tmp", uuid.NewString())
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("move file into store: %w", err)
	}
	return hash, nil
}

// Remove implements ContentStore.
func (s *FileStore) Remove(ctx context.Context, hash string) error {
	path, err := s.path(hash)
	if err != nil {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

type osFile struct {
	*os.File
	info os.FileInfo
}

func (f *osFile) Size() int64        { return f.info.Size() }
func (f *osFile) ModTime() time.Time { return f.info.ModTime() }
