package model

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Annotation is a positioned note anchored on a document. It exclusively owns
// its parts and optional selection box; DocumentID is a back-reference, not
// ownership.
//
// Invariant: Parts is never empty and parts[i].Order == i for all i.
type Annotation struct {
	ID           uuid.UUID         `json:"id"`
	Origin       Point             `json:"origin"`
	Width        float64           `json:"width"`
	OwnerID      string            `json:"ownerId"`
	DocumentID   uuid.UUID         `json:"documentId"`
	Parts        []*AnnotationPart `json:"parts"`
	SelectionBox *SelectionBox     `json:"selectionBox,omitempty"`

	CreatedAt *time.Time `json:"createdAt,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

// NewAnnotation creates an annotation with a fresh id and the mandatory
// initial plain-text part.
func NewAnnotation(origin Point, width float64, ownerID string, documentID uuid.UUID) *Annotation {
	a := &Annotation{
		ID:         uuid.New(),
		Origin:     origin,
		Width:      width,
		OwnerID:    ownerID,
		DocumentID: documentID,
	}
	a.Parts = []*AnnotationPart{a.newTextPart(PartKindPlainText)}
	return a
}

// IsDeleted reports whether the annotation carries a soft-delete mark.
func (a *Annotation) IsDeleted() bool {
	return a.DeletedAt != nil
}

func (a *Annotation) newTextPart(kind PartKind) *AnnotationPart {
	return &AnnotationPart{
		ID:           uuid.New(),
		AnnotationID: a.ID,
		Kind:         kind,
		Order:        len(a.Parts),
		Height:       defaultTextPartHeight,
	}
}

func (a *Annotation) newHandwritingPart() *AnnotationPart {
	return &AnnotationPart{
		ID:           uuid.New(),
		AnnotationID: a.ID,
		Kind:         PartKindHandwriting,
		Order:        len(a.Parts),
		Height:       defaultHandwritingPartHeight,
	}
}

// AddPart appends a fresh empty part of the given kind and returns it.
func (a *Annotation) AddPart(kind PartKind) *AnnotationPart {
	var p *AnnotationPart
	if kind == PartKindHandwriting {
		p = a.newHandwritingPart()
	} else {
		p = a.newTextPart(kind)
	}
	a.Parts = append(a.Parts, p)
	a.repairPartOrder()
	return p
}

// CanRemovePart reports whether the part may be removed: it must be empty and
// must not be the last remaining part.
func (a *Annotation) CanRemovePart(partID uuid.UUID) bool {
	if len(a.Parts) <= 1 {
		return false
	}
	for _, p := range a.Parts {
		if p.ID == partID {
			return p.IsEmpty()
		}
	}
	return false
}

// RemovePartIfPossible removes the identified part when allowed and reports
// whether a removal happened. Removing the last remaining part is a no-op.
func (a *Annotation) RemovePartIfPossible(partID uuid.UUID) bool {
	if !a.CanRemovePart(partID) {
		return false
	}
	kept := a.Parts[:0]
	for _, p := range a.Parts {
		if p.ID != partID {
			kept = append(kept, p)
		}
	}
	a.Parts = kept
	a.repairPartOrder()
	return true
}

// PartHeights returns the summed height of all parts.
func (a *Annotation) PartHeights() float64 {
	var total float64
	for _, p := range a.Parts {
		total += p.Height
	}
	return total
}

// VerifyParts reports whether the dense ordering invariant holds.
func (a *Annotation) VerifyParts() bool {
	for i, p := range a.Parts {
		if p.Order != i {
			return false
		}
	}
	return true
}

// EnsureParts restores the annotation to a valid state after decoding an
// external payload: parts out of order are renumbered and an annotation with
// no parts at all gains the mandatory initial part. Violations are logged
// rather than fatal; a correct peer never produces them.
func (a *Annotation) EnsureParts(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(a.Parts) == 0 {
		logger.Warn("annotation arrived with no parts, adding initial part",
			slog.String("annotation_id", a.ID.String()))
		a.Parts = []*AnnotationPart{a.newTextPart(PartKindPlainText)}
		return
	}
	if !a.VerifyParts() {
		logger.Warn("annotation part order violated, repairing",
			slog.String("annotation_id", a.ID.String()))
		a.repairPartOrder()
	}
}

func (a *Annotation) repairPartOrder() {
	for i, p := range a.Parts {
		p.Order = i
	}
}

// Stamp helpers, advanced only by the engine immediately before a persisted
// mutation.

func (a *Annotation) SetCreatedAt(t time.Time) { a.CreatedAt = &t }
func (a *Annotation) SetUpdatedAt(t time.Time) { a.UpdatedAt = &t }
func (a *Annotation) SetDeletedAt(t time.Time) { a.DeletedAt = &t }
