package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/finlens/finlens/internal/common"
	"github.com/finlens/finlens/internal/interfaces"
	"github.com/finlens/finlens/internal/models"
)

// ProfileStore persists user profile documents as one JSON file per user.
type ProfileStore struct {
	blobs  BlobStore
	logger *common.Logger
}

// NewProfileStore creates a profile store over the given blob store.
func NewProfileStore(logger *common.Logger, blobs BlobStore) *ProfileStore {
	return &ProfileStore{blobs: blobs, logger: logger}
}

// sanitizeUserID keeps user IDs filename-safe.
func sanitizeUserID(userID string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "..", "_")
	return r.Replace(userID)
}

// SaveProfile stores a user profile document.
func (ps *ProfileStore) SaveProfile(ctx context.Context, userID string, profile json.RawMessage) error {
	if userID == "" {
		return &models.ParameterError{Param: "user_id", Msg: "must not be empty"}
	}
	if !json.Valid(profile) {
		return &models.ParameterError{Param: "profile", Msg: "must be valid JSON"}
	}

	if err := ps.blobs.Put(ctx, sanitizeUserID(userID)+".json", profile); err != nil {
		return &models.StorageError{Op: "write", Key: userID, Err: err}
	}

	ps.logger.Debug().Str("user_id", userID).Msg("Profile saved")
	return nil
}

// GetProfile loads a user profile document.
func (ps *ProfileStore) GetProfile(ctx context.Context, userID string) (json.RawMessage, error) {
	data, err := ps.blobs.Get(ctx, sanitizeUserID(userID)+".json")
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return nil, &models.StorageError{Op: "read", Key: userID, Err: fmt.Errorf("profile '%s' not found", userID)}
		}
		return nil, &models.StorageError{Op: "read", Key: userID, Err: err}
	}
	return json.RawMessage(data), nil
}

var _ interfaces.ProfileStore = (*ProfileStore)(nil)
