// Package storage provides file-backed persistence for FinLens artifacts.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrBlobNotFound is returned when a requested blob does not exist.
var ErrBlobNotFound = errors.New("blob not found")

// BlobMetadata contains metadata about a stored blob.
type BlobMetadata struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// BlobStore is a minimal content store: each storage area (charts, reports,
// user data, raw cache) gets its own instance rooted at an injected path.
type BlobStore interface {
	// Get retrieves a blob by key. Returns ErrBlobNotFound if not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores a blob atomically. Either the full blob is published under
	// the key or nothing is.
	Put(ctx context.Context, key string, data []byte) error

	// Delete removes a blob. No error if not found.
	Delete(ctx context.Context, key string) error

	// Exists checks if a blob exists.
	Exists(ctx context.Context, key string) (bool, error)

	// Metadata returns metadata for a blob. Returns ErrBlobNotFound if not
	// found.
	Metadata(ctx context.Context, key string) (*BlobMetadata, error)

	// List returns metadata for every blob whose key has the prefix.
	List(ctx context.Context, prefix string) ([]BlobMetadata, error)
}
