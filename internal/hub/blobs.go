package hub

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const maxUploadBytes = 50 << 20 // 50 MB

// uploadBlob handles POST /blobs (multipart/form-data with "documentId" and
// "file" fields). The stored PDF is keyed by document id, so re-uploading
// replaces the previous copy.
func (h *Hub) uploadBlob(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}
	docID, err := uuid.Parse(r.FormValue("documentId"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid documentId"))
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	if _, err := h.blobs.Save(docID, file); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to store file"))
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"url": "/blobs/" + docID.String() + ".pdf",
	})
}

// serveBlob handles GET /blobs/{filename}.
func (h *Hub) serveBlob(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	cleaned := filepath.Clean(filename)
	if cleaned != filepath.Base(cleaned) || strings.Contains(cleaned, "..") {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid filename"))
		return
	}
	docID, err := uuid.Parse(strings.TrimSuffix(cleaned, ".pdf"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid filename"))
		return
	}
	abs := h.blobs.Path(docID)
	if _, statErr := os.Stat(abs); os.IsNotExist(statErr) {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	http.ServeFile(w, r, abs)
}
