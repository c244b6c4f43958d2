package model

import (
	"time"

	"github.com/google/uuid"
)

// SelectionBox is the rectangular page region a new annotation was anchored
// from. AnnotationID is a weak back-reference; the annotation owns the box.
type SelectionBox struct {
	ID           uuid.UUID `json:"id"`
	StartPoint   Point     `json:"startPoint"`
	EndPoint     Point     `json:"endPoint"`
	AnnotationID uuid.UUID `json:"annotationId"`

	CreatedAt *time.Time `json:"createdAt,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

// NewSelectionBox creates a selection box with a fresh id.
func NewSelectionBox(start, end Point, annotationID uuid.UUID) *SelectionBox {
	return &SelectionBox{
		ID:           uuid.New(),
		StartPoint:   start,
		EndPoint:     end,
		AnnotationID: annotationID,
	}
}

// IsDeleted reports whether the box carries a soft-delete mark.
func (s *SelectionBox) IsDeleted() bool {
	return s.DeletedAt != nil
}
