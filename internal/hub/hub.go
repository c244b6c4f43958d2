// Package hub implements the central coordination point: the authoritative
// REST API, the PDF blob endpoint, and the websocket fan-out that carries
// realtime envelopes between clients and answers resync requests.
package hub

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/quillmark/quill/internal/blob"
	"github.com/quillmark/quill/internal/store"
)

// Hub holds the authority store, the blob store, and the live connections.
type Hub struct {
	store  *store.Store
	blobs  *blob.FS
	logger *slog.Logger

	upgrader websocket.Upgrader

	// mu guards conns: one registered connection per authenticated user.
	mu    sync.Mutex
	conns map[string]*wsConn
}

// New creates a hub over the given authority store and blob store.
func New(st *store.Store, blobs *blob.FS, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		store:  st,
		blobs:  blobs,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: make(map[string]*wsConn),
	}
}

// Router builds the hub's route tree.
func (h *Hub) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/documents", h.listOwnDocuments)
	r.Get("/documents/shared", h.listSharedDocuments)
	r.Post("/documents", h.createDocument)
	r.Get("/documents/{id}", h.getDocument)
	r.Put("/documents/{id}", h.updateDocument)
	r.Delete("/documents/{id}", h.deleteDocument)
	r.Post("/documents/{id}/shares", h.shareDocument)

	r.Post("/annotations", h.createAnnotation)
	r.Get("/annotations/{id}", h.getAnnotation)
	r.Put("/annotations/{id}", h.updateAnnotation)
	r.Delete("/annotations/{id}", h.deleteAnnotation)

	r.Post("/blobs", h.uploadBlob)
	r.Get("/blobs/{filename}", h.serveBlob)

	r.Get("/ws/{userId}", h.handleWS)

	return r
}
