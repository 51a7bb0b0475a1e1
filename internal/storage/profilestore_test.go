package storage

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/finlens/finlens/internal/common"
	"github.com/finlens/finlens/internal/models"
)

func newTestProfileStore(t *testing.T) *ProfileStore {
	t.Helper()
	logger := common.NewSilentLogger()
	blobs, err := NewFileBlobStore(logger, t.TempDir())
	if err != nil {
		t.Fatalf("NewFileBlobStore failed: %v", err)
	}
	return NewProfileStore(logger, blobs)
}

func TestProfileStore_Roundtrip(t *testing.T) {
	ps := newTestProfileStore(t)
	ctx := context.Background()

	profile := json.RawMessage(`{"name":"Alice","risk":"moderate"}`)
	if err := ps.SaveProfile(ctx, "alice", profile); err != nil {
		t.Fatalf("SaveProfile failed: %v", err)
	}

	got, err := ps.GetProfile(ctx, "alice")
	if err != nil {
		t.Fatalf("GetProfile failed: %v", err)
	}
	if string(got) != string(profile) {
		t.Errorf("GetProfile = %s, want %s", got, profile)
	}
}

func TestProfileStore_RejectsEmptyUserID(t *testing.T) {
	ps := newTestProfileStore(t)

	err := ps.SaveProfile(context.Background(), "", json.RawMessage(`{}`))
	var pe *models.ParameterError
	if !errors.As(err, &pe) {
		t.Errorf("got %v, want ParameterError", err)
	}
}

func TestProfileStore_RejectsInvalidJSON(t *testing.T) {
	ps := newTestProfileStore(t)

	err := ps.SaveProfile(context.Background(), "alice", json.RawMessage(`{broken`))
	var pe *models.ParameterError
	if !errors.As(err, &pe) {
		t.Errorf("got %v, want ParameterError", err)
	}
}

func TestProfileStore_GetMissing(t *testing.T) {
	ps := newTestProfileStore(t)

	_, err := ps.GetProfile(context.Background(), "nobody")
	var se *models.StorageError
	if !errors.As(err, &se) {
		t.Errorf("got %v, want StorageError", err)
	}
}

func TestProfileStore_SanitizesUserID(t *testing.T) {
	ps := newTestProfileStore(t)
	ctx := context.Background()

	profile := json.RawMessage(`{"v":1}`)
	if err := ps.SaveProfile(ctx, "../../etc/passwd", profile); err != nil {
		t.Fatalf("SaveProfile failed: %v", err)
	}

	got, err := ps.GetProfile(ctx, "../../etc/passwd")
	if err != nil {
		t.Fatalf("GetProfile failed after sanitization: %v", err)
	}
	if string(got) != string(profile) {
		t.Errorf("GetProfile = %s", got)
	}
}
