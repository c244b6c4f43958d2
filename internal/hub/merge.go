package hub

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/quillmark/quill/internal/apperr"
	"github.com/quillmark/quill/internal/model"
)

// mergeResync resolves one resync request against the authority store and
// builds the decision payload.
//
// Under overrideServer the client's offline entities are written to the
// authority first, so the reply reflects them. Under keepServer the client's
// payload is only consulted for which ids it mentions; nothing is written.
//
// The reply carries every authority entity touched after the client's
// lastOnlineAt plus the authority's current view of each entity the client
// mentioned. Ids the authority has never seen are omitted, which is what
// tells a keepServer client to drop its offline-only creations.
func (h *Hub) mergeResync(ctx context.Context, msg *model.OfflineToOnlineMessage) (*model.OfflineToOnlineMessage, error) {
	if msg.MergeStrategy == model.MergeOverrideServer {
		for _, ann := range msg.Annotations {
			ann.EnsureParts(h.logger)
		}
		if err := h.store.CreateOrUpdateDocuments(ctx, msg.Documents); err != nil {
			return nil, fmt.Errorf("override documents: %w", err)
		}
		if err := h.store.CreateOrUpdateAnnotations(ctx, msg.Annotations); err != nil {
			return nil, fmt.Errorf("override annotations: %w", err)
		}
	}

	docs, err := h.store.DocumentsUpdatedAfter(ctx, msg.LastOnlineAt)
	if err != nil {
		return nil, fmt.Errorf("gather documents: %w", err)
	}
	anns, err := h.store.AnnotationsUpdatedAfter(ctx, msg.LastOnlineAt)
	if err != nil {
		return nil, fmt.Errorf("gather annotations: %w", err)
	}

	seenDocs := make(map[uuid.UUID]bool, len(docs))
	for _, d := range docs {
		seenDocs[d.ID] = true
	}
	for _, d := range msg.Documents {
		if seenDocs[d.ID] {
			continue
		}
		stored, err := h.store.GetDocument(ctx, d.ID, true)
		if errors.Is(err, apperr.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("lookup document %s: %w", d.ID, err)
		}
		seenDocs[d.ID] = true
		docs = append(docs, stored)
	}

	seenAnns := make(map[uuid.UUID]bool, len(anns))
	for _, a := range anns {
		seenAnns[a.ID] = true
	}
	for _, a := range msg.Annotations {
		if seenAnns[a.ID] {
			continue
		}
		stored, err := h.store.GetAnnotation(ctx, a.ID, true)
		if errors.Is(err, apperr.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("lookup annotation %s: %w", a.ID, err)
		}
		seenAnns[a.ID] = true
		anns = append(anns, stored)
	}

	return model.NewOfflineToOnlineMessage(msg.SenderID, msg.MergeStrategy, msg.LastOnlineAt, docs, anns), nil
}
