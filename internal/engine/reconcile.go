package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/quillmark/quill/internal/model"
)

// IsResolving reports whether a resync exchange is in flight, so the UI can
// block edits until the decision payload lands.
func (e *Engine) IsResolving() bool {
	return e.resolving.Load()
}

// StartResync runs the offline-to-online reconciliation request: it gathers
// everything modified locally since the last known online time, uploads
// pending PDFs, and sends the resync request over the channel. The hub's
// decision payload arrives asynchronously and is applied by HandleFrame.
//
// Called once per offline-to-online transition. With no prior offline
// timestamp there is nothing to reconcile. A failure clears the resolving
// flag; the next online transition retries.
func (e *Engine) StartResync(ctx context.Context) error {
	lastOnlineAt, ok := e.conn.LastOnlineAt()
	if !ok {
		return nil
	}
	senderID := e.senderID()
	if senderID == "" {
		return nil
	}
	if !e.resolving.CompareAndSwap(false, true) {
		return nil
	}

	docs, err := e.store.DocumentsUpdatedAfter(ctx, lastOnlineAt)
	if err != nil {
		e.resolving.Store(false)
		return err
	}
	anns, err := e.store.AnnotationsUpdatedAfter(ctx, lastOnlineAt)
	if err != nil {
		e.resolving.Store(false)
		return err
	}

	// The remote side cannot accept a document without a file, so pending
	// PDFs go up before the metadata. The two steps are not transactional:
	// a crash in between can leave a file uploaded with no metadata. Known
	// gap, recovered by the next resync.
	for _, doc := range docs {
		if doc.HasUploadedFile() || doc.LocalFileURL == "" || doc.IsDeleted() {
			continue
		}
		e.uploadPendingFile(ctx, doc)
	}

	msg := model.NewOfflineToOnlineMessage(senderID, e.strategy, lastOnlineAt, docs, anns)
	if err := e.sender.Send(msg); err != nil {
		e.resolving.Store(false)
		e.logger.Warn("resync request send failed, will retry on next transition",
			slog.String("error", err.Error()))
		return err
	}
	e.logger.Info("resync request sent",
		slog.Time("last_online_at", lastOnlineAt),
		slog.Int("documents", len(docs)),
		slog.Int("annotations", len(anns)),
		slog.String("merge_strategy", string(e.strategy)))
	return nil
}

func (e *Engine) uploadPendingFile(ctx context.Context, doc *model.Document) {
	if e.blobs == nil {
		return
	}
	f, err := e.blobs.Open(doc.LocalFileURL)
	if err != nil {
		e.logger.Warn("pending pdf unreadable, sending metadata without file",
			slog.String("document_id", doc.ID.String()), slog.String("error", err.Error()))
		return
	}
	defer f.Close()
	url, err := e.remote.UploadPDF(ctx, doc.ID, f)
	if err != nil {
		e.logger.Warn("pdf upload failed, sending metadata without file",
			slog.String("document_id", doc.ID.String()), slog.String("error", err.Error()))
		return
	}
	doc.BaseFileURL = url
	doc.LocalFileURL = ""
	if _, err := e.store.UpdateDocument(ctx, doc); err != nil {
		e.logger.Error("recording uploaded file url failed",
			slog.String("document_id", doc.ID.String()), slog.String("error", err.Error()))
		return
	}
	if err := e.blobs.Remove(doc.ID); err != nil {
		e.logger.Warn("removing uploaded local pdf failed",
			slog.String("document_id", doc.ID.String()), slog.String("error", err.Error()))
	}
}

// applyResyncDecision applies the hub's merged state to the local store.
//
// KeepServer first soft-deletes every local entity created strictly after
// lastOnlineAt, undoing offline-only creations the server rejected; the
// server's entities are then create-or-updated in. OverrideServer skips the
// deletion pass because the returned entities already encode "client wins".
// Create-or-update is idempotent, so replaying the same decision is harmless.
func (e *Engine) applyResyncDecision(ctx context.Context, msg *model.OfflineToOnlineMessage) {
	defer e.resolving.Store(false)

	if msg.MergeStrategy == model.MergeKeepServer {
		now := time.Now().UTC()
		newDocs, err := e.store.DocumentsCreatedAfter(ctx, msg.LastOnlineAt)
		if err != nil {
			e.logger.Error("resync gather failed", slog.String("error", err.Error()))
			return
		}
		for _, doc := range newDocs {
			doc.SetDeletedAt(now)
			if _, err := e.store.DeleteDocument(ctx, doc); err != nil {
				e.logger.Error("undoing offline document creation failed",
					slog.String("document_id", doc.ID.String()), slog.String("error", err.Error()))
			}
		}
		newAnns, err := e.store.AnnotationsCreatedAfter(ctx, msg.LastOnlineAt)
		if err != nil {
			e.logger.Error("resync gather failed", slog.String("error", err.Error()))
			return
		}
		for _, ann := range newAnns {
			ann.SetDeletedAt(now)
			if _, err := e.store.DeleteAnnotation(ctx, ann); err != nil {
				e.logger.Error("undoing offline annotation creation failed",
					slog.String("annotation_id", ann.ID.String()), slog.String("error", err.Error()))
			}
		}
	}

	for _, ann := range msg.Annotations {
		ann.EnsureParts(e.logger)
	}
	for _, doc := range msg.Documents {
		for _, ann := range doc.Annotations {
			ann.EnsureParts(e.logger)
		}
	}

	if err := e.store.CreateOrUpdateDocuments(ctx, msg.Documents); err != nil {
		e.logger.Error("applying resync documents failed", slog.String("error", err.Error()))
		return
	}
	if err := e.store.CreateOrUpdateAnnotations(ctx, msg.Annotations); err != nil {
		e.logger.Error("applying resync annotations failed", slog.String("error", err.Error()))
		return
	}

	for _, doc := range msg.Documents {
		e.notifier.publish(Event{Action: EventUpdated, Document: doc})
	}
	for _, ann := range msg.Annotations {
		e.notifier.publish(Event{Action: EventUpdated, Annotation: ann})
	}
	e.logger.Info("resync decision applied",
		slog.Int("documents", len(msg.Documents)),
		slog.Int("annotations", len(msg.Annotations)),
		slog.String("merge_strategy", string(msg.MergeStrategy)))
}
