// Package engine coordinates every mutation across the local store, the
// remote authority, and the realtime channel.
//
// The dual-write contract: when online, the remote side is told first on a
// best-effort basis; the local write then proceeds unconditionally. A failed
// remote mirror is logged and left for the next reconciliation pass, never
// surfaced to the caller. Local store failures are terminal for the
// operation.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/quillmark/quill/internal/auth"
	"github.com/quillmark/quill/internal/model"
	"github.com/quillmark/quill/internal/store"
)

// Gateway is the slice of the REST surface the engine mirrors documents to.
type Gateway interface {
	CreateDocument(ctx context.Context, doc *model.Document) (*model.Document, error)
	UpdateDocument(ctx context.Context, doc *model.Document) (*model.Document, error)
	DeleteDocument(ctx context.Context, id uuid.UUID) error
	UploadPDF(ctx context.Context, documentID uuid.UUID, r io.Reader) (string, error)
}

// Sender is the realtime send half of the message channel.
type Sender interface {
	Send(v any) error
}

// Connectivity is the read side of the connectivity monitor.
type Connectivity interface {
	IsOnline() bool
	LastOnlineAt() (time.Time, bool)
}

// BlobStore opens locally stored PDFs for upload and removes them once the
// hub holds the authoritative copy.
type BlobStore interface {
	Open(localFileURL string) (io.ReadCloser, error)
	Remove(documentID uuid.UUID) error
}

// Options carries the collaborators an Engine is built from. Everything is
// injected; the engine holds no ambient global state.
type Options struct {
	Store        *store.Store
	Remote       Gateway
	Sender       Sender
	Connectivity Connectivity
	Identity     auth.Provider
	Blobs        BlobStore
	// MergeStrategy is used for resync requests. Defaults to keepServer.
	MergeStrategy model.MergeStrategy
	Logger        *slog.Logger
}

// Engine is the sync coordinator.
type Engine struct {
	store    *store.Store
	remote   Gateway
	sender   Sender
	conn     Connectivity
	identity auth.Provider
	blobs    BlobStore
	strategy model.MergeStrategy
	logger   *slog.Logger

	notifier  *notifier
	resolving atomic.Bool
}

// New validates the options and builds an engine.
func New(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("engine: store is required")
	}
	if opts.Remote == nil || opts.Sender == nil || opts.Connectivity == nil || opts.Identity == nil {
		return nil, fmt.Errorf("engine: remote, sender, connectivity, and identity are required")
	}
	strategy := opts.MergeStrategy
	if !strategy.Valid() {
		strategy = model.MergeKeepServer
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:    opts.Store,
		remote:   opts.Remote,
		sender:   opts.Sender,
		conn:     opts.Connectivity,
		identity: opts.Identity,
		blobs:    opts.Blobs,
		strategy: strategy,
		logger:   logger,
		notifier: newNotifier(),
	}, nil
}

// IsOnline reports current connectivity for the presentation layer.
func (e *Engine) IsOnline() bool {
	return e.conn.IsOnline()
}

// senderID returns the authenticated user id, or "" when nobody is signed in
// (in which case nothing is mirrored remotely).
func (e *Engine) senderID() string {
	id, ok := e.identity.CurrentUserID()
	if !ok {
		return ""
	}
	return id
}

// sendEnvelope pushes a realtime envelope, logging instead of failing: the
// local write always wins over remote confirmation.
func (e *Engine) sendEnvelope(v any) {
	if err := e.sender.Send(v); err != nil {
		e.logger.Warn("realtime send failed, local write proceeds",
			slog.String("error", err.Error()))
	}
}

// CreateDocument applies the dual-write protocol for a new document.
func (e *Engine) CreateDocument(ctx context.Context, doc *model.Document) (*model.Document, error) {
	if senderID := e.senderID(); senderID != "" && e.conn.IsOnline() {
		if _, err := e.remote.CreateDocument(ctx, doc); err != nil {
			e.logger.Warn("remote document create failed, local write proceeds",
				slog.String("document_id", doc.ID.String()), slog.String("error", err.Error()))
		}
		e.sendEnvelope(model.NewDocumentMessage(senderID, model.SubtypeCreate, doc))
	}
	doc.SetCreatedAt(time.Now().UTC())
	return e.store.CreateDocument(ctx, doc)
}

// UpdateDocument applies the dual-write protocol for a document update.
func (e *Engine) UpdateDocument(ctx context.Context, doc *model.Document) (*model.Document, error) {
	if senderID := e.senderID(); senderID != "" && e.conn.IsOnline() {
		if _, err := e.remote.UpdateDocument(ctx, doc); err != nil {
			e.logger.Warn("remote document update failed, local write proceeds",
				slog.String("document_id", doc.ID.String()), slog.String("error", err.Error()))
		}
		e.sendEnvelope(model.NewDocumentMessage(senderID, model.SubtypeUpdate, doc))
	}
	doc.SetUpdatedAt(time.Now().UTC())
	return e.store.UpdateDocument(ctx, doc)
}

// DeleteDocument applies the dual-write protocol for a document soft delete.
func (e *Engine) DeleteDocument(ctx context.Context, doc *model.Document) (*model.Document, error) {
	if senderID := e.senderID(); senderID != "" && e.conn.IsOnline() {
		if err := e.remote.DeleteDocument(ctx, doc.ID); err != nil {
			e.logger.Warn("remote document delete failed, local write proceeds",
				slog.String("document_id", doc.ID.String()), slog.String("error", err.Error()))
		}
		e.sendEnvelope(model.NewDocumentMessage(senderID, model.SubtypeDelete, doc))
	}
	doc.SetDeletedAt(time.Now().UTC())
	return e.store.DeleteDocument(ctx, doc)
}

// CreateAnnotation applies the dual-write protocol for a new annotation.
// Annotation mutations travel over the realtime channel; the hub persists and
// fans them out.
func (e *Engine) CreateAnnotation(ctx context.Context, ann *model.Annotation) (*model.Annotation, error) {
	if senderID := e.senderID(); senderID != "" && e.conn.IsOnline() {
		e.sendEnvelope(model.NewAnnotationMessage(senderID, model.SubtypeCreate, ann))
	}
	ann.SetCreatedAt(time.Now().UTC())
	return e.store.CreateAnnotation(ctx, ann)
}

// UpdateAnnotation applies the dual-write protocol for an annotation update.
func (e *Engine) UpdateAnnotation(ctx context.Context, ann *model.Annotation) (*model.Annotation, error) {
	if senderID := e.senderID(); senderID != "" && e.conn.IsOnline() {
		e.sendEnvelope(model.NewAnnotationMessage(senderID, model.SubtypeUpdate, ann))
	}
	ann.SetUpdatedAt(time.Now().UTC())
	return e.store.UpdateAnnotation(ctx, ann)
}

// DeleteAnnotation applies the dual-write protocol for an annotation soft
// delete.
func (e *Engine) DeleteAnnotation(ctx context.Context, ann *model.Annotation) (*model.Annotation, error) {
	if senderID := e.senderID(); senderID != "" && e.conn.IsOnline() {
		e.sendEnvelope(model.NewAnnotationMessage(senderID, model.SubtypeDelete, ann))
	}
	ann.SetDeletedAt(time.Now().UTC())
	return e.store.DeleteAnnotation(ctx, ann)
}

// HandleFrame is the channel handler: it routes decoded frames into the local
// store. Self-originated crud envelopes (the hub echoes broadcasts back to
// the sender) are recognized by senderId and discarded before any store
// write, so a mutation is never applied twice.
func (e *Engine) HandleFrame(header model.MessageHeader, raw []byte) {
	ctx := context.Background()

	if header.Type == model.MessageOfflineToOnline {
		var msg model.OfflineToOnlineMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			e.logger.Warn("dropping malformed resync payload", slog.String("error", err.Error()))
			e.resolving.Store(false)
			return
		}
		e.applyResyncDecision(ctx, &msg)
		return
	}

	if id, ok := e.identity.CurrentUserID(); ok && header.SenderID == id {
		return
	}

	switch header.Type {
	case model.MessageCrudDocument:
		var msg model.DocumentMessage
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Document == nil {
			e.logger.Warn("dropping malformed document envelope")
			return
		}
		for _, ann := range msg.Document.Annotations {
			ann.EnsureParts(e.logger)
		}
		var stored *model.Document
		var err error
		if msg.Subtype == model.SubtypeDelete {
			// Deletes cascade onto annotations; a plain upsert would not.
			stored, err = e.store.DeleteDocument(ctx, msg.Document)
		} else {
			stored, err = e.store.CreateOrUpdateDocument(ctx, msg.Document)
		}
		if err != nil {
			e.logger.Error("applying peer document envelope failed",
				slog.String("document_id", msg.Document.ID.String()), slog.String("error", err.Error()))
			return
		}
		e.notifier.publish(documentEvent(msg.Subtype, stored))

	case model.MessageCrudAnnotation:
		var msg model.AnnotationMessage
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Annotation == nil {
			e.logger.Warn("dropping malformed annotation envelope")
			return
		}
		msg.Annotation.EnsureParts(e.logger)
		var stored *model.Annotation
		var err error
		if msg.Subtype == model.SubtypeDelete {
			stored, err = e.store.DeleteAnnotation(ctx, msg.Annotation)
		} else {
			stored, err = e.store.CreateOrUpdateAnnotation(ctx, msg.Annotation)
		}
		if err != nil {
			e.logger.Error("applying peer annotation envelope failed",
				slog.String("annotation_id", msg.Annotation.ID.String()), slog.String("error", err.Error()))
			return
		}
		e.notifier.publish(annotationEvent(msg.Subtype, stored))
	}
}
