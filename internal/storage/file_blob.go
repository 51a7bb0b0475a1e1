package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/finlens/finlens/internal/common"
)

// FileBlobStore implements BlobStore using the local filesystem.
// Keys map to file paths under the base directory.
type FileBlobStore struct {
	basePath string
	logger   *common.Logger
}

// NewFileBlobStore creates a file-based blob store rooted at basePath.
func NewFileBlobStore(logger *common.Logger, basePath string) (*FileBlobStore, error) {
	if basePath == "" {
		return nil, fmt.Errorf("blob store base path is required")
	}

	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory %s: %w", basePath, err)
	}

	fb := &FileBlobStore{
		basePath: basePath,
		logger:   logger,
	}

	logger.Debug().Str("path", basePath).Msg("FileBlobStore initialized")
	return fb, nil
}

// sanitizeKey converts a key to a safe relative path, stripping traversal
// attempts while allowing "/" for subdirectories.
func (fb *FileBlobStore) sanitizeKey(key string) string {
	clean := filepath.Clean(key)
	clean = strings.TrimPrefix(clean, "/")
	if strings.Contains(clean, "..") {
		clean = strings.ReplaceAll(clean, "..", "__")
	}
	return clean
}

func (fb *FileBlobStore) keyToPath(key string) string {
	return filepath.Join(fb.basePath, fb.sanitizeKey(key))
}

// Get retrieves a blob by key.
func (fb *FileBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(fb.keyToPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("failed to read blob %s: %w", key, err)
	}
	return data, nil
}

// Put stores a blob atomically via temp file + rename.
func (fb *FileBlobStore) Put(ctx context.Context, key string, data []byte) error {
	path := fb.keyToPath(key)
	dir := filepath.Dir(path)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// Delete removes a blob. No error if not found.
func (fb *FileBlobStore) Delete(ctx context.Context, key string) error {
	err := os.Remove(fb.keyToPath(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob %s: %w", key, err)
	}
	return nil
}

// Exists checks if a blob exists.
func (fb *FileBlobStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := os.Stat(fb.keyToPath(key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to check blob %s: %w", key, err)
}

// Metadata returns metadata for a blob.
func (fb *FileBlobStore) Metadata(ctx context.Context, key string) (*BlobMetadata, error) {
	info, err := os.Stat(fb.keyToPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("failed to stat blob %s: %w", key, err)
	}

	return &BlobMetadata{
		Key:          key,
		Size:         info.Size(),
		LastModified: info.ModTime(),
	}, nil
}

// List returns metadata for blobs whose key has the given prefix, sorted by
// key. Temp files from in-flight writes are skipped.
func (fb *FileBlobStore) List(ctx context.Context, prefix string) ([]BlobMetadata, error) {
	var blobs []BlobMetadata

	err := filepath.Walk(fb.basePath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || strings.HasPrefix(info.Name(), ".tmp-") {
			return nil
		}

		rel, err := filepath.Rel(fb.basePath, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			return nil
		}

		blobs = append(blobs, BlobMetadata{
			Key:          key,
			Size:         info.Size(),
			LastModified: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list blobs: %w", err)
	}

	sort.Slice(blobs, func(i, j int) bool { return blobs[i].Key < blobs[j].Key })
	return blobs, nil
}

// BasePath returns the root directory of the store.
func (fb *FileBlobStore) BasePath() string {
	return fb.basePath
}

var _ BlobStore = (*FileBlobStore)(nil)
