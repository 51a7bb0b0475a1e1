package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/finlens/finlens/internal/common"
)

func newTestBlobStore(t *testing.T) *FileBlobStore {
	t.Helper()
	fb, err := NewFileBlobStore(common.NewSilentLogger(), t.TempDir())
	if err != nil {
		t.Fatalf("NewFileBlobStore failed: %v", err)
	}
	return fb
}

func TestFileBlobStore_PutGet(t *testing.T) {
	fb := newTestBlobStore(t)
	ctx := context.Background()

	data := []byte(`{"hello":"world"}`)
	if err := fb.Put(ctx, "reports/r1.json", data); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := fb.Get(ctx, "reports/r1.json")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != string(data) {
		t.Errorf("Get = %q, want %q", got, data)
	}
}

func TestFileBlobStore_GetMissing(t *testing.T) {
	fb := newTestBlobStore(t)

	_, err := fb.Get(context.Background(), "nope.json")
	if !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("Get missing = %v, want ErrBlobNotFound", err)
	}
}

func TestFileBlobStore_PutOverwrites(t *testing.T) {
	fb := newTestBlobStore(t)
	ctx := context.Background()

	if err := fb.Put(ctx, "k", []byte("one")); err != nil {
		t.Fatal(err)
	}
	if err := fb.Put(ctx, "k", []byte("two")); err != nil {
		t.Fatal(err)
	}

	got, err := fb.Get(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "two" {
		t.Errorf("Get = %q after overwrite, want %q", got, "two")
	}
}

func TestFileBlobStore_PutLeavesNoTempFiles(t *testing.T) {
	fb := newTestBlobStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := fb.Put(ctx, "k", []byte("data")); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := os.ReadDir(fb.BasePath())
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Errorf("temp file %s left behind", e.Name())
		}
	}
}

func TestFileBlobStore_DeleteIdempotent(t *testing.T) {
	fb := newTestBlobStore(t)
	ctx := context.Background()

	if err := fb.Put(ctx, "k", []byte("data")); err != nil {
		t.Fatal(err)
	}
	if err := fb.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	// Deleting an absent key is not an error.
	if err := fb.Delete(ctx, "k"); err != nil {
		t.Errorf("second Delete = %v, want nil", err)
	}

	ok, err := fb.Exists(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("blob still exists after delete")
	}
}

func TestFileBlobStore_Metadata(t *testing.T) {
	fb := newTestBlobStore(t)
	ctx := context.Background()

	data := []byte("12345")
	if err := fb.Put(ctx, "k", data); err != nil {
		t.Fatal(err)
	}

	meta, err := fb.Metadata(ctx, "k")
	if err != nil {
		t.Fatalf("Metadata failed: %v", err)
	}
	if meta.Size != int64(len(data)) {
		t.Errorf("Size = %d, want %d", meta.Size, len(data))
	}
	if meta.LastModified.IsZero() {
		t.Error("LastModified is zero")
	}

	if _, err := fb.Metadata(ctx, "missing"); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("Metadata missing = %v, want ErrBlobNotFound", err)
	}
}

func TestFileBlobStore_ListPrefix(t *testing.T) {
	fb := newTestBlobStore(t)
	ctx := context.Background()

	for _, key := range []string{"charts/a.png", "charts/b.png", "reports/r.json"} {
		if err := fb.Put(ctx, key, []byte("x")); err != nil {
			t.Fatal(err)
		}
	}

	blobs, err := fb.List(ctx, "charts/")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(blobs) != 2 {
		t.Fatalf("List returned %d blobs, want 2", len(blobs))
	}
	// Sorted by key.
	if blobs[0].Key != "charts/a.png" || blobs[1].Key != "charts/b.png" {
		t.Errorf("List keys = %s, %s", blobs[0].Key, blobs[1].Key)
	}

	all, err := fb.List(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("List all returned %d blobs, want 3", len(all))
	}
}

func TestFileBlobStore_SanitizesTraversal(t *testing.T) {
	fb := newTestBlobStore(t)
	ctx := context.Background()

	if err := fb.Put(ctx, "../../escape.txt", []byte("x")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// Nothing may land outside the base directory.
	outside := filepath.Join(filepath.Dir(fb.BasePath()), "escape.txt")
	if _, err := os.Stat(outside); err == nil {
		t.Error("traversal key escaped the base directory")
	}
}
