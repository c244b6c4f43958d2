package hub

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/quillmark/quill/internal/apperr"
	"github.com/quillmark/quill/internal/model"
)

const maxBodyBytes = 10 << 20

func pathID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "id"))
}

// listOwnDocuments handles GET /documents?userId=.
func (h *Hub) listOwnDocuments(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("userId is required"))
		return
	}
	docs, err := h.store.ListOwnDocuments(r.Context(), userID)
	if err != nil {
		h.logger.Error("list documents failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

// listSharedDocuments handles GET /documents/shared?userId=.
func (h *Hub) listSharedDocuments(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("userId is required"))
		return
	}
	docs, err := h.store.ListSharedDocuments(r.Context(), userID)
	if err != nil {
		h.logger.Error("list shared documents failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

// getDocument handles GET /documents/{id}.
func (h *Hub) getDocument(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid document id"))
		return
	}
	doc, err := h.store.GetDocument(r.Context(), id, false)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			h.logger.Error("get document failed", slog.String("id", id.String()), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// createDocument handles POST /documents.
func (h *Hub) createDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var doc model.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid json body"))
		return
	}
	if err := doc.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if doc.CreatedAt == nil {
		doc.SetCreatedAt(time.Now().UTC())
	}
	stored, err := h.store.CreateDocument(r.Context(), &doc)
	if err != nil {
		if errors.Is(err, apperr.ErrAlreadyExists) {
			writeJSON(w, http.StatusConflict, errorBody("document already exists"))
		} else {
			h.logger.Error("create document failed", slog.String("id", doc.ID.String()), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

// updateDocument handles PUT /documents/{id}.
func (h *Hub) updateDocument(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid document id"))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var doc model.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid json body"))
		return
	}
	doc.ID = id
	if err := doc.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if doc.UpdatedAt == nil {
		doc.SetUpdatedAt(time.Now().UTC())
	}
	stored, err := h.store.UpdateDocument(r.Context(), &doc)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			h.logger.Error("update document failed", slog.String("id", id.String()), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

// deleteDocument handles DELETE /documents/{id}. Deleting an unknown or
// already-deleted document succeeds.
func (h *Hub) deleteDocument(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid document id"))
		return
	}
	doc := &model.Document{ID: id}
	doc.SetDeletedAt(time.Now().UTC())
	stored, err := h.store.DeleteDocument(r.Context(), doc)
	if err != nil {
		h.logger.Error("delete document failed", slog.String("id", id.String()), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

// shareDocument handles POST /documents/{id}/shares. The recipient gains the
// document in their shared list; sharing twice with the same user is a no-op.
func (h *Hub) shareDocument(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid document id"))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req struct {
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid json body"))
		return
	}
	if req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("userId is required"))
		return
	}
	doc, err := h.store.GetDocument(r.Context(), id, false)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			h.logger.Error("share document failed", slog.String("id", id.String()), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	if doc.OwnerID == req.UserID {
		writeJSON(w, http.StatusBadRequest, errorBody("cannot share a document with its owner"))
		return
	}
	if err := h.store.AddDocumentShare(r.Context(), id, req.UserID); err != nil {
		h.logger.Error("share document failed", slog.String("id", id.String()), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

// getAnnotation handles GET /annotations/{id}.
func (h *Hub) getAnnotation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid annotation id"))
		return
	}
	ann, err := h.store.GetAnnotation(r.Context(), id, false)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			h.logger.Error("get annotation failed", slog.String("id", id.String()), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, ann)
}

// createAnnotation handles POST /annotations.
func (h *Hub) createAnnotation(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var ann model.Annotation
	if err := json.NewDecoder(r.Body).Decode(&ann); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid json body"))
		return
	}
	if err := ann.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	ann.EnsureParts(h.logger)
	if ann.CreatedAt == nil {
		ann.SetCreatedAt(time.Now().UTC())
	}
	stored, err := h.store.CreateAnnotation(r.Context(), &ann)
	if err != nil {
		if errors.Is(err, apperr.ErrAlreadyExists) {
			writeJSON(w, http.StatusConflict, errorBody("annotation already exists"))
		} else {
			h.logger.Error("create annotation failed", slog.String("id", ann.ID.String()), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

// updateAnnotation handles PUT /annotations/{id}.
func (h *Hub) updateAnnotation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid annotation id"))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var ann model.Annotation
	if err := json.NewDecoder(r.Body).Decode(&ann); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid json body"))
		return
	}
	ann.ID = id
	if err := ann.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	ann.EnsureParts(h.logger)
	if ann.UpdatedAt == nil {
		ann.SetUpdatedAt(time.Now().UTC())
	}
	stored, err := h.store.UpdateAnnotation(r.Context(), &ann)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			h.logger.Error("update annotation failed", slog.String("id", id.String()), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

// deleteAnnotation handles DELETE /annotations/{id}.
func (h *Hub) deleteAnnotation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid annotation id"))
		return
	}
	ann := &model.Annotation{ID: id}
	ann.SetDeletedAt(time.Now().UTC())
	stored, err := h.store.DeleteAnnotation(r.Context(), ann)
	if err != nil {
		h.logger.Error("delete annotation failed", slog.String("id", id.String()), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, stored)
}
