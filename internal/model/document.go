// Package model defines the shared entities and wire messages exchanged
// between the local store, the sync engine, and the coordination hub.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Point is a 2D coordinate on a PDF page.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Document is a shared PDF with its owned annotations.
//
// ID is assigned client-side and immutable once set. BaseFileURL references
// the uploaded PDF blob and is immutable once stored; LocalFileURL points at
// the not-yet-uploaded file in the local blob store and is cleared after a
// successful upload.
type Document struct {
	ID           uuid.UUID     `json:"id"`
	Name         string        `json:"name"`
	OwnerID      string        `json:"ownerId"`
	BaseFileURL  string        `json:"baseFileUrl"`
	LocalFileURL string        `json:"localFileUrl,omitempty"`
	Annotations  []*Annotation `json:"annotations"`

	CreatedAt *time.Time `json:"createdAt,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

// NewDocument creates a document with a fresh id and no annotations.
func NewDocument(name, ownerID, localFileURL string) *Document {
	return &Document{
		ID:           uuid.New(),
		Name:         name,
		OwnerID:      ownerID,
		LocalFileURL: localFileURL,
		Annotations:  []*Annotation{},
	}
}

// IsDeleted reports whether the document carries a soft-delete mark.
func (d *Document) IsDeleted() bool {
	return d.DeletedAt != nil
}

// HasUploadedFile reports whether the PDF blob has reached the remote side.
func (d *Document) HasUploadedFile() bool {
	return d.BaseFileURL != ""
}

// Stamp helpers. The engine is the only caller that advances these before a
// persisted mutation; nobody else touches the lifecycle triple.

func (d *Document) SetCreatedAt(t time.Time) { d.CreatedAt = &t }
func (d *Document) SetUpdatedAt(t time.Time) { d.UpdatedAt = &t }
func (d *Document) SetDeletedAt(t time.Time) { d.DeletedAt = &t }
