package model

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
)

func testAnnotation() *Annotation {
	return NewAnnotation(Point{X: 10, Y: 20}, 200, "user-1", uuid.New())
}

func TestNewAnnotationHasInitialPart(t *testing.T) {
	a := testAnnotation()
	if len(a.Parts) != 1 {
		t.Fatalf("expected 1 initial part, got %d", len(a.Parts))
	}
	if a.Parts[0].Kind != PartKindPlainText {
		t.Errorf("initial part kind = %q, want %q", a.Parts[0].Kind, PartKindPlainText)
	}
	if !a.VerifyParts() {
		t.Error("part order invariant violated on fresh annotation")
	}
}

func TestAddPartKeepsDenseOrder(t *testing.T) {
	a := testAnnotation()
	a.AddPart(PartKindMarkdown)
	a.AddPart(PartKindHandwriting)

	if len(a.Parts) != 3 {
		t.Fatalf("expected 3 parts, got %d", len(a.Parts))
	}
	for i, p := range a.Parts {
		if p.Order != i {
			t.Errorf("parts[%d].Order = %d, want %d", i, p.Order, i)
		}
	}
	if a.Parts[2].Kind != PartKindHandwriting {
		t.Errorf("parts[2].Kind = %q, want handwriting", a.Parts[2].Kind)
	}
	if a.Parts[2].Height != defaultHandwritingPartHeight {
		t.Errorf("handwriting height = %v, want %v", a.Parts[2].Height, defaultHandwritingPartHeight)
	}
}

func TestRemoveLastRemainingPartIsNoop(t *testing.T) {
	a := testAnnotation()
	if a.RemovePartIfPossible(a.Parts[0].ID) {
		t.Error("removing the only part should be a no-op")
	}
	if len(a.Parts) != 1 {
		t.Fatalf("expected the single part to survive, got %d parts", len(a.Parts))
	}
}

func TestRemoveNonEmptyPartIsNoop(t *testing.T) {
	a := testAnnotation()
	a.AddPart(PartKindMarkdown)
	a.Parts[0].Content = "some text"

	if a.RemovePartIfPossible(a.Parts[0].ID) {
		t.Error("removing a non-empty part should be a no-op")
	}
	if len(a.Parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(a.Parts))
	}
}

func TestRemoveEmptyPartRenumbers(t *testing.T) {
	a := testAnnotation()
	middle := a.AddPart(PartKindMarkdown)
	a.AddPart(PartKindHandwriting)
	a.Parts[0].Content = "keep me"

	if !a.RemovePartIfPossible(middle.ID) {
		t.Fatal("expected empty middle part to be removable")
	}
	if len(a.Parts) != 2 {
		t.Fatalf("expected 2 parts after removal, got %d", len(a.Parts))
	}
	for i, p := range a.Parts {
		if p.Order != i {
			t.Errorf("parts[%d].Order = %d after removal, want %d", i, p.Order, i)
		}
	}
}

func TestEnsurePartsRepairsOrder(t *testing.T) {
	a := testAnnotation()
	a.AddPart(PartKindMarkdown)
	// Simulate a malformed peer payload.
	a.Parts[0].Order = 5
	a.Parts[1].Order = 0

	a.EnsureParts(nil)
	if !a.VerifyParts() {
		t.Fatal("EnsureParts did not restore the ordering invariant")
	}
}

func TestEnsurePartsAddsMissingInitialPart(t *testing.T) {
	a := testAnnotation()
	a.Parts = nil

	a.EnsureParts(nil)
	if len(a.Parts) != 1 {
		t.Fatalf("expected repaired annotation to hold 1 part, got %d", len(a.Parts))
	}
}

func TestPartIsEmptyPerKind(t *testing.T) {
	text := &AnnotationPart{Kind: PartKindPlainText}
	if !text.IsEmpty() {
		t.Error("blank text part should be empty")
	}
	text.Content = "x"
	if text.IsEmpty() {
		t.Error("text part with content should not be empty")
	}

	ink := &AnnotationPart{Kind: PartKindHandwriting}
	if !ink.IsEmpty() {
		t.Error("blank handwriting part should be empty")
	}
	ink.Handwriting = []byte{1, 2}
	if ink.IsEmpty() {
		t.Error("handwriting part with strokes should not be empty")
	}
}

func TestAnnotationJSONRoundTrip(t *testing.T) {
	a := testAnnotation()
	a.AddPart(PartKindHandwriting)
	a.Parts[1].Handwriting = []byte{0xde, 0xad}
	a.SelectionBox = NewSelectionBox(Point{X: 1, Y: 2}, Point{X: 3, Y: 4}, a.ID)

	raw, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Annotation
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.ID != a.ID || len(back.Parts) != 2 {
		t.Fatalf("round trip lost data: %+v", back)
	}
	if back.Parts[1].Kind != PartKindHandwriting || len(back.Parts[1].Handwriting) != 2 {
		t.Errorf("handwriting payload lost: %+v", back.Parts[1])
	}
	if back.SelectionBox == nil || back.SelectionBox.AnnotationID != a.ID {
		t.Errorf("selection box lost: %+v", back.SelectionBox)
	}
}
