package hub

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/quillmark/quill/internal/model"
	"github.com/quillmark/quill/internal/testutil"
)

func mergeHub(t *testing.T) *Hub {
	t.Helper()
	return New(testutil.TestStore(t), testutil.TestBlobs(t), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestMergeKeepServer_OmitsUnknownClientEntities(t *testing.T) {
	h := mergeHub(t)
	ctx := context.Background()
	lastOnline := time.Now().UTC().Add(-time.Hour)

	// The client created this document while offline; the authority has
	// never seen it.
	offlineOnly := model.NewDocument("offline-only.pdf", "alice", "")
	offlineOnly.SetCreatedAt(time.Now().UTC())

	req := model.NewOfflineToOnlineMessage("alice", model.MergeKeepServer, lastOnline,
		[]*model.Document{offlineOnly}, nil)
	reply, err := h.mergeResync(ctx, req)
	if err != nil {
		t.Fatal(err)
	}

	for _, d := range reply.Documents {
		if d.ID == offlineOnly.ID {
			t.Error("reply should omit entities the authority has never seen")
		}
	}
	// Nothing was written under keepServer.
	if _, err := h.store.GetDocument(ctx, offlineOnly.ID, true); err == nil {
		t.Error("keepServer must not write client entities to the authority")
	}
}

func TestMergeKeepServer_ReturnsAuthorityViewOfMentionedIDs(t *testing.T) {
	h := mergeHub(t)
	ctx := context.Background()
	lastOnline := time.Now().UTC()

	// Authority version predates lastOnline, so the updated-after sweep
	// misses it; only the mention pulls it in.
	authoritative := model.NewDocument("shared.pdf", "bob", "")
	authoritative.SetCreatedAt(lastOnline.Add(-2 * time.Hour))
	if _, err := h.store.CreateDocument(ctx, authoritative); err != nil {
		t.Fatal(err)
	}

	clientCopy := &model.Document{ID: authoritative.ID, Name: "renamed-offline.pdf", OwnerID: "bob"}
	req := model.NewOfflineToOnlineMessage("alice", model.MergeKeepServer, lastOnline,
		[]*model.Document{clientCopy}, nil)
	reply, err := h.mergeResync(ctx, req)
	if err != nil {
		t.Fatal(err)
	}

	if len(reply.Documents) != 1 {
		t.Fatalf("reply documents = %d, want 1", len(reply.Documents))
	}
	if reply.Documents[0].Name != "shared.pdf" {
		t.Errorf("reply name = %q, want the authority's version", reply.Documents[0].Name)
	}
}

func TestMergeOverrideServer_AppliesClientStateFirst(t *testing.T) {
	h := mergeHub(t)
	ctx := context.Background()
	lastOnline := time.Now().UTC().Add(-time.Hour)

	authoritative := model.NewDocument("original.pdf", "alice", "")
	authoritative.SetCreatedAt(lastOnline.Add(-time.Hour))
	if _, err := h.store.CreateDocument(ctx, authoritative); err != nil {
		t.Fatal(err)
	}

	renamed := &model.Document{ID: authoritative.ID, Name: "renamed-offline.pdf", OwnerID: "alice"}
	now := time.Now().UTC()
	renamed.CreatedAt = authoritative.CreatedAt
	renamed.UpdatedAt = &now

	ann := model.NewAnnotation(model.Point{X: 5, Y: 5}, 90, "alice", authoritative.ID)
	ann.SetCreatedAt(now)

	req := model.NewOfflineToOnlineMessage("alice", model.MergeOverrideServer, lastOnline,
		[]*model.Document{renamed}, []*model.Annotation{ann})
	reply, err := h.mergeResync(ctx, req)
	if err != nil {
		t.Fatal(err)
	}

	stored, err := h.store.GetDocument(ctx, authoritative.ID, false)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Name != "renamed-offline.pdf" {
		t.Errorf("authority name = %q, want the client's rename", stored.Name)
	}

	foundDoc, foundAnn := false, false
	for _, d := range reply.Documents {
		if d.ID == authoritative.ID && d.Name == "renamed-offline.pdf" {
			foundDoc = true
		}
	}
	for _, a := range reply.Annotations {
		if a.ID == ann.ID {
			foundAnn = true
		}
	}
	if !foundDoc || !foundAnn {
		t.Errorf("reply should echo the overriding client's entities (doc=%v ann=%v)", foundDoc, foundAnn)
	}
}

func TestMergeReply_IncludesTombstones(t *testing.T) {
	h := mergeHub(t)
	ctx := context.Background()
	lastOnline := time.Now().UTC().Add(-time.Hour)

	doc := model.NewDocument("gone.pdf", "bob", "")
	doc.SetCreatedAt(lastOnline.Add(-time.Hour))
	if _, err := h.store.CreateDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}
	tomb := &model.Document{ID: doc.ID}
	tomb.SetDeletedAt(time.Now().UTC())
	if _, err := h.store.DeleteDocument(ctx, tomb); err != nil {
		t.Fatal(err)
	}

	req := model.NewOfflineToOnlineMessage("alice", model.MergeKeepServer, lastOnline, nil, nil)
	reply, err := h.mergeResync(ctx, req)
	if err != nil {
		t.Fatal(err)
	}

	found := false
	for _, d := range reply.Documents {
		if d.ID == doc.ID && d.IsDeleted() {
			found = true
		}
	}
	if !found {
		t.Error("reply should carry the tombstone so the client deletes its copy")
	}
}
