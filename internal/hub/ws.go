package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/quillmark/quill/internal/model"
)

// wsConn is one registered client connection. Writes are serialized because
// gorilla permits a single concurrent writer.
type wsConn struct {
	userID string

	writeMu sync.Mutex
	conn    *websocket.Conn
}

func (c *wsConn) send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// handleWS upgrades GET /ws/{userId} and pumps frames until the peer goes
// away. A reconnect under the same user id replaces the previous connection.
func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("userId is required"))
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", slog.String("user_id", userID), slog.String("error", err.Error()))
		return
	}
	c := &wsConn{userID: userID, conn: conn}
	h.register(c)
	h.logger.Info("client connected", slog.String("user_id", userID))

	defer func() {
		h.unregister(c)
		_ = conn.Close()
		h.logger.Info("client disconnected", slog.String("user_id", userID))
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		h.dispatch(r.Context(), c, raw)
	}
}

func (h *Hub) register(c *wsConn) {
	h.mu.Lock()
	prev := h.conns[c.userID]
	h.conns[c.userID] = c
	h.mu.Unlock()
	if prev != nil {
		_ = prev.conn.Close()
	}
}

func (h *Hub) unregister(c *wsConn) {
	h.mu.Lock()
	if h.conns[c.userID] == c {
		delete(h.conns, c.userID)
	}
	h.mu.Unlock()
}

// broadcast sends a frame to every registered connection, the originator
// included. Clients drop their own echoes by sender id.
func (h *Hub) broadcast(data []byte) {
	h.mu.Lock()
	conns := make([]*wsConn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		if err := c.send(data); err != nil {
			h.logger.Warn("broadcast failed", slog.String("user_id", c.userID), slog.String("error", err.Error()))
		}
	}
}

// dispatch routes one inbound frame. Malformed or unknown frames are logged
// and dropped; the connection stays up.
func (h *Hub) dispatch(ctx context.Context, c *wsConn, raw []byte) {
	var header model.MessageHeader
	if err := json.Unmarshal(raw, &header); err != nil {
		h.logger.Warn("malformed frame dropped", slog.String("user_id", c.userID), slog.String("error", err.Error()))
		return
	}
	switch header.Type {
	case model.MessageCrudDocument:
		h.handleDocumentMessage(ctx, c, raw)
	case model.MessageCrudAnnotation:
		h.handleAnnotationMessage(ctx, c, raw)
	case model.MessageOfflineToOnline:
		h.handleOfflineToOnline(ctx, c, raw)
	default:
		h.logger.Warn("unknown message type dropped",
			slog.String("user_id", c.userID), slog.String("type", string(header.Type)))
	}
}

// handleDocumentMessage applies a document envelope to the authority store
// and broadcasts the stored version, so every client receives fully stamped
// timestamps even when the sender raced the stamp.
func (h *Hub) handleDocumentMessage(ctx context.Context, c *wsConn, raw []byte) {
	var msg model.DocumentMessage
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Document == nil {
		h.logger.Warn("malformed document envelope dropped", slog.String("user_id", c.userID))
		return
	}
	doc := msg.Document
	now := time.Now().UTC()

	var stored *model.Document
	var err error
	switch msg.Subtype {
	case model.SubtypeCreate:
		if doc.CreatedAt == nil {
			doc.SetCreatedAt(now)
		}
		stored, err = h.store.CreateOrUpdateDocument(ctx, doc)
	case model.SubtypeUpdate:
		if doc.UpdatedAt == nil {
			doc.SetUpdatedAt(now)
		}
		stored, err = h.store.CreateOrUpdateDocument(ctx, doc)
	case model.SubtypeDelete:
		if doc.DeletedAt == nil {
			doc.SetDeletedAt(now)
		}
		stored, err = h.store.DeleteDocument(ctx, doc)
	default:
		h.logger.Warn("unknown crud subtype dropped", slog.String("subtype", string(msg.Subtype)))
		return
	}
	if err != nil {
		h.logger.Error("apply document envelope failed",
			slog.String("id", doc.ID.String()), slog.String("error", err.Error()))
		return
	}

	out, err := json.Marshal(model.NewDocumentMessage(msg.SenderID, msg.Subtype, stored))
	if err != nil {
		h.logger.Error("encode document envelope failed", slog.String("error", err.Error()))
		return
	}
	h.broadcast(out)
}

// handleAnnotationMessage is the annotation counterpart of
// handleDocumentMessage.
func (h *Hub) handleAnnotationMessage(ctx context.Context, c *wsConn, raw []byte) {
	var msg model.AnnotationMessage
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Annotation == nil {
		h.logger.Warn("malformed annotation envelope dropped", slog.String("user_id", c.userID))
		return
	}
	ann := msg.Annotation
	now := time.Now().UTC()

	var stored *model.Annotation
	var err error
	switch msg.Subtype {
	case model.SubtypeCreate:
		ann.EnsureParts(h.logger)
		if ann.CreatedAt == nil {
			ann.SetCreatedAt(now)
		}
		stored, err = h.store.CreateOrUpdateAnnotation(ctx, ann)
	case model.SubtypeUpdate:
		ann.EnsureParts(h.logger)
		if ann.UpdatedAt == nil {
			ann.SetUpdatedAt(now)
		}
		stored, err = h.store.CreateOrUpdateAnnotation(ctx, ann)
	case model.SubtypeDelete:
		if ann.DeletedAt == nil {
			ann.SetDeletedAt(now)
		}
		stored, err = h.store.DeleteAnnotation(ctx, ann)
	default:
		h.logger.Warn("unknown crud subtype dropped", slog.String("subtype", string(msg.Subtype)))
		return
	}
	if err != nil {
		h.logger.Error("apply annotation envelope failed",
			slog.String("id", ann.ID.String()), slog.String("error", err.Error()))
		return
	}

	out, err := json.Marshal(model.NewAnnotationMessage(msg.SenderID, msg.Subtype, stored))
	if err != nil {
		h.logger.Error("encode annotation envelope failed", slog.String("error", err.Error()))
		return
	}
	h.broadcast(out)
}

// handleOfflineToOnline answers a resync request. The decision goes back to
// the requester only; other clients learn about overridden entities through
// their own resyncs or later crud traffic.
func (h *Hub) handleOfflineToOnline(ctx context.Context, c *wsConn, raw []byte) {
	var msg model.OfflineToOnlineMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.logger.Warn("malformed resync request dropped", slog.String("user_id", c.userID))
		return
	}
	if !msg.MergeStrategy.Valid() {
		h.logger.Warn("resync request with unknown merge strategy dropped",
			slog.String("user_id", c.userID), slog.String("strategy", string(msg.MergeStrategy)))
		return
	}

	reply, err := h.mergeResync(ctx, &msg)
	if err != nil {
		h.logger.Error("resync merge failed", slog.String("user_id", c.userID), slog.String("error", err.Error()))
		return
	}
	out, err := json.Marshal(reply)
	if err != nil {
		h.logger.Error("encode resync reply failed", slog.String("error", err.Error()))
		return
	}
	if err := c.send(out); err != nil {
		h.logger.Warn("send resync reply failed", slog.String("user_id", c.userID), slog.String("error", err.Error()))
	}
}
