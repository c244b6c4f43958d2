package blob

import (
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestSaveAndOpen(t *testing.T) {
	fs, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	docID := uuid.New()

	path, err := fs.Save(docID, strings.NewReader("%PDF data"))
	if err != nil {
		t.Fatal(err)
	}

	f, err := fs.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "%PDF data" {
		t.Errorf("content = %q", data)
	}
}

func TestOpen_RejectsPathOutsideRoot(t *testing.T) {
	fs, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fs.Open("/etc/passwd"); err == nil {
		t.Fatal("opening a path outside the root should fail")
	}
}

func TestRemove_MissingFileIsFine(t *testing.T) {
	fs, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := fs.Remove(uuid.New()); err != nil {
		t.Errorf("removing an absent blob should succeed: %v", err)
	}
}
