// Package testutil provides shared test helpers for setting up stores and
// blob directories.
package testutil

import (
	"os"
	"testing"

	"github.com/quillmark/quill/internal/blob"
	"github.com/quillmark/quill/internal/store"
)

// TestStore creates a temporary SQLite store that is automatically cleaned up.
func TestStore(t *testing.T) *store.Store {
	t.Helper()
	dbFile, err := os.CreateTemp("", "quill-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	st, err := store.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// TestBlobs creates a temporary PDF blob store.
func TestBlobs(t *testing.T) *blob.FS {
	t.Helper()
	blobs, err := blob.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return blobs
}
