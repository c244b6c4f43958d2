package model

import (
	"github.com/google/uuid"
)

// PartKind discriminates the annotation part variants. Parts are a tagged
// union: one kind tag plus the payload field that kind uses, instead of a
// polymorphic supertype that would need runtime type checks.
type PartKind string

const (
	PartKindPlainText   PartKind = "plainText"
	PartKindMarkdown    PartKind = "markdown"
	PartKindHandwriting PartKind = "handwriting"
)

// Default heights for freshly added parts, in page points.
const (
	defaultTextPartHeight        = 30.0
	defaultHandwritingPartHeight = 150.0
)

// AnnotationPart is one block of annotation content. Order is the dense
// 0-based position inside the owning annotation; Content carries the payload
// for the text kinds and Handwriting carries the ink data.
type AnnotationPart struct {
	ID           uuid.UUID `json:"id"`
	AnnotationID uuid.UUID `json:"annotationId"`
	Kind         PartKind  `json:"kind"`
	Order        int       `json:"order"`
	Height       float64   `json:"height"`
	Content      string    `json:"content,omitempty"`
	Handwriting  []byte    `json:"handwriting,omitempty"`
}

// IsEmpty reports whether the part has no user content. Only empty parts are
// eligible for removal.
func (p *AnnotationPart) IsEmpty() bool {
	if p.Kind == PartKindHandwriting {
		return len(p.Handwriting) == 0
	}
	return p.Content == ""
}
