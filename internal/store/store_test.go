package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/quillmark/quill/internal/apperr"
	"github.com/quillmark/quill/internal/model"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	f, err := os.CreateTemp("", "quill-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	s, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func stamped(doc *model.Document, at time.Time) *model.Document {
	doc.SetCreatedAt(at)
	return doc
}

func TestCreateAndGetDocument(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	doc := stamped(model.NewDocument("thesis.pdf", "alice", "blobs/thesis.pdf"), time.Now().UTC())
	got, err := s.CreateDocument(ctx, doc)
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	if got.ID != doc.ID || got.Name != "thesis.pdf" || got.OwnerID != "alice" {
		t.Fatalf("unexpected document: %+v", got)
	}
	if got.CreatedAt == nil {
		t.Error("created_at not persisted")
	}

	if _, err := s.CreateDocument(ctx, doc); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("duplicate create: err = %v, want ErrAlreadyExists", err)
	}
}

func TestGetDocumentExcludesSoftDeleted(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	doc := stamped(model.NewDocument("d", "alice", ""), time.Now().UTC())
	if _, err := s.CreateDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}
	doc.SetDeletedAt(time.Now().UTC())
	if _, err := s.DeleteDocument(ctx, doc); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}

	if _, err := s.GetDocument(ctx, doc.ID, false); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("default read of deleted doc: err = %v, want ErrNotFound", err)
	}
	got, err := s.GetDocument(ctx, doc.ID, true)
	if err != nil {
		t.Fatalf("includeDeleted read: %v", err)
	}
	if got.DeletedAt == nil {
		t.Error("deleted_at missing on includeDeleted read")
	}
}

func TestDeleteDocumentCascades(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	doc := stamped(model.NewDocument("d", "alice", ""), now)
	if _, err := s.CreateDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}
	ann := model.NewAnnotation(model.Point{X: 1, Y: 2}, 100, "alice", doc.ID)
	ann.SelectionBox = model.NewSelectionBox(model.Point{}, model.Point{X: 5, Y: 5}, ann.ID)
	ann.SetCreatedAt(now)
	if _, err := s.CreateAnnotation(ctx, ann); err != nil {
		t.Fatalf("CreateAnnotation: %v", err)
	}

	doc.SetDeletedAt(now.Add(time.Second))
	if _, err := s.DeleteDocument(ctx, doc); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}

	if _, err := s.GetAnnotation(ctx, ann.ID, false); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("annotation should be cascade-deleted, err = %v", err)
	}
	got, err := s.GetAnnotation(ctx, ann.ID, true)
	if err != nil {
		t.Fatal(err)
	}
	if got.DeletedAt == nil {
		t.Error("annotation deleted_at not set by cascade")
	}
	if got.SelectionBox == nil || got.SelectionBox.DeletedAt == nil {
		t.Errorf("selection box not cascade-deleted: %+v", got.SelectionBox)
	}
}

func TestDeleteUnknownDocumentIsNoop(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	doc := model.NewDocument("ghost", "alice", "")
	doc.SetDeletedAt(time.Now().UTC())
	if _, err := s.DeleteDocument(ctx, doc); err != nil {
		t.Fatalf("delete of unknown id should be a no-op, got %v", err)
	}
}

func TestAnnotationPartsRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	doc := stamped(model.NewDocument("d", "bob", ""), now)
	if _, err := s.CreateDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}
	ann := model.NewAnnotation(model.Point{X: 3, Y: 4}, 250, "bob", doc.ID)
	ann.Parts[0].Content = "first"
	ink := ann.AddPart(model.PartKindHandwriting)
	ink.Handwriting = []byte{9, 8, 7}
	ann.SetCreatedAt(now)

	if _, err := s.CreateAnnotation(ctx, ann); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetAnnotation(ctx, ann.ID, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(got.Parts))
	}
	if got.Parts[0].Content != "first" || got.Parts[0].Order != 0 {
		t.Errorf("part 0 wrong: %+v", got.Parts[0])
	}
	if got.Parts[1].Kind != model.PartKindHandwriting || len(got.Parts[1].Handwriting) != 3 {
		t.Errorf("part 1 wrong: %+v", got.Parts[1])
	}
}

func TestCreateOrUpdateIdempotent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	doc := stamped(model.NewDocument("d", "carol", ""), now)
	ann := model.NewAnnotation(model.Point{}, 50, "carol", doc.ID)
	ann.Parts[0].Content = "note"
	ann.SetCreatedAt(now)
	doc.Annotations = []*model.Annotation{ann}

	for i := 0; i < 2; i++ {
		if _, err := s.CreateOrUpdateDocument(ctx, doc); err != nil {
			t.Fatalf("CreateOrUpdateDocument pass %d: %v", i+1, err)
		}
	}

	got, err := s.GetDocument(ctx, doc.ID, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Annotations) != 1 {
		t.Fatalf("expected 1 annotation after double apply, got %d", len(got.Annotations))
	}
	if len(got.Annotations[0].Parts) != 1 {
		t.Fatalf("expected 1 part after double apply, got %d", len(got.Annotations[0].Parts))
	}
}

func TestCreateOrUpdateRevivesSoftDeleted(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	doc := stamped(model.NewDocument("d", "dan", ""), now)
	if _, err := s.CreateDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}
	doc.SetDeletedAt(now.Add(time.Second))
	if _, err := s.DeleteDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}

	// Server decision says the document lives: same id, no deletion mark.
	revived := *doc
	revived.DeletedAt = nil
	revived.Name = "restored"
	if _, err := s.CreateOrUpdateDocument(ctx, &revived); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetDocument(ctx, doc.ID, false)
	if err != nil {
		t.Fatalf("revived document should be readable: %v", err)
	}
	if got.Name != "restored" {
		t.Errorf("name = %q, want restored", got.Name)
	}
}

func TestUpdatedAfterWindows(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	old := stamped(model.NewDocument("old", "eve", ""), base.Add(-time.Hour))
	if _, err := s.CreateDocument(ctx, old); err != nil {
		t.Fatal(err)
	}
	fresh := stamped(model.NewDocument("fresh", "eve", ""), base.Add(time.Minute))
	if _, err := s.CreateDocument(ctx, fresh); err != nil {
		t.Fatal(err)
	}
	// An old document deleted inside the window must also be gathered.
	tombstone := stamped(model.NewDocument("tomb", "eve", ""), base.Add(-time.Hour))
	if _, err := s.CreateDocument(ctx, tombstone); err != nil {
		t.Fatal(err)
	}
	tombstone.SetDeletedAt(base.Add(2 * time.Minute))
	if _, err := s.DeleteDocument(ctx, tombstone); err != nil {
		t.Fatal(err)
	}

	docs, err := s.DocumentsUpdatedAfter(ctx, base)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents in window, got %d", len(docs))
	}

	created, err := s.DocumentsCreatedAfter(ctx, base)
	if err != nil {
		t.Fatal(err)
	}
	if len(created) != 1 || created[0].ID != fresh.ID {
		t.Fatalf("expected only the fresh document, got %d", len(created))
	}
}

func TestSharedDocuments(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	mine := stamped(model.NewDocument("mine", "frank", ""), now)
	theirs := stamped(model.NewDocument("theirs", "grace", ""), now)
	for _, d := range []*model.Document{mine, theirs} {
		if _, err := s.CreateDocument(ctx, d); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.AddDocumentShare(ctx, theirs.ID, "frank"); err != nil {
		t.Fatal(err)
	}

	own, err := s.ListOwnDocuments(ctx, "frank")
	if err != nil {
		t.Fatal(err)
	}
	if len(own) != 1 || own[0].ID != mine.ID {
		t.Fatalf("own list wrong: %d entries", len(own))
	}
	shared, err := s.ListSharedDocuments(ctx, "frank")
	if err != nil {
		t.Fatal(err)
	}
	if len(shared) != 1 || shared[0].ID != theirs.ID {
		t.Fatalf("shared list wrong: %d entries", len(shared))
	}
}
