// Package blob stores PDF files on the local file system while they wait to
// be uploaded to the remote side. Picking files is the UI layer's business;
// this package only keeps what it was handed.
package blob

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// FS is a file-system blob store rooted at a single directory.
type FS struct {
	root string
}

// NewFS creates a blob store rooted at the given directory, creating it when
// missing.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("blob: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("blob: create root: %w", err)
	}
	return &FS{root: abs}, nil
}

// Path returns the absolute location of a document's PDF.
func (f *FS) Path(documentID uuid.UUID) string {
	return filepath.Join(f.root, documentID.String()+".pdf")
}

// Save writes the PDF for a document and returns its local file URL.
func (f *FS) Save(documentID uuid.UUID, r io.Reader) (string, error) {
	dst, err := os.Create(f.Path(documentID))
	if err != nil {
		return "", fmt.Errorf("blob: create file: %w", err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, r); err != nil {
		return "", fmt.Errorf("blob: write file: %w", err)
	}
	return f.Path(documentID), nil
}

// Open returns a reader over a previously saved local file URL. The URL must
// resolve inside the store root.
func (f *FS) Open(localFileURL string) (io.ReadCloser, error) {
	abs, err := filepath.Abs(filepath.Clean(localFileURL))
	if err != nil {
		return nil, fmt.Errorf("blob: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) {
		return nil, fmt.Errorf("blob: path escapes store root: %s", localFileURL)
	}
	file, err := os.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("blob: open file: %w", err)
	}
	return file, nil
}

// Remove deletes a stored PDF. Missing files are fine; the blob may already
// have been cleaned up after upload.
func (f *FS) Remove(documentID uuid.UUID) error {
	if err := os.Remove(f.Path(documentID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("blob: remove file: %w", err)
	}
	return nil
}
