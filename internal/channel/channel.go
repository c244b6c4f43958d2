// Package channel maintains the long-lived websocket connection to the
// coordination hub and dispatches typed envelopes to a handler.
//
// The channel does not reconnect by itself: on a read error it flips to
// Disconnected and reports through the disconnect callback, and the owning
// client decides when to connect again. Keeping retry policy out of here is a
// deliberate simplicity tradeoff.
package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/quillmark/quill/internal/apperr"
	"github.com/quillmark/quill/internal/model"
)

// State is the connection lifecycle:
//
//	Disconnected -> Connecting -> Connected -> Disconnected (error or close)
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Handler receives every well-formed frame. It runs on a detached goroutine
// so a slow handler never stalls the receive loop.
type Handler func(header model.MessageHeader, raw []byte)

// Channel owns the single process-wide hub connection.
type Channel struct {
	baseURL string // ws(s)://host, no trailing slash
	handler Handler
	logger  *slog.Logger

	onDisconnect func(error)

	state atomic.Int32

	// mu serializes Connect/Close so only one connect or reset is ever in
	// flight; writeMu serializes frame writes on the live connection.
	mu      sync.Mutex
	writeMu sync.Mutex
	conn    *websocket.Conn
}

// New creates a channel for the given websocket base URL.
func New(baseURL string, handler Handler, logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{baseURL: baseURL, handler: handler, logger: logger}
}

// SetOnDisconnect registers the callback fired when the receive loop dies.
func (c *Channel) SetOnDisconnect(fn func(error)) {
	c.onDisconnect = fn
}

// State returns the current connection state.
func (c *Channel) State() State {
	return State(c.state.Load())
}

// Connect dials ws(s)://<host>/ws/{userID} and starts the receive loop.
// Connecting while already connected is a no-op.
func (c *Channel) Connect(ctx context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State() == Connected {
		return nil
	}
	c.state.Store(int32(Connecting))

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.baseURL+"/ws/"+userID, nil)
	if err != nil {
		c.state.Store(int32(Disconnected))
		return fmt.Errorf("channel: dial: %w", err)
	}
	c.conn = conn
	c.state.Store(int32(Connected))
	c.logger.Info("channel connected", slog.String("user_id", userID))

	go c.listen(conn)
	return nil
}

// Close tears the connection down. Safe to call in any state.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.state.Store(int32(Disconnected))
	return err
}

// Send marshals and writes one envelope. Fails fast when not connected; the
// caller treats that like any other transient remote failure.
func (c *Channel) Send(v any) error {
	if c.State() != Connected {
		return fmt.Errorf("channel: send: %w", apperr.ErrNotConnected)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("channel: encode: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn := c.conn
	if conn == nil {
		return fmt.Errorf("channel: send: %w", apperr.ErrNotConnected)
	}
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		return fmt.Errorf("channel: write: %w", err)
	}
	return nil
}

// listen is the receive loop. It re-arms after every frame, well-formed or
// not; only a read error ends it.
func (c *Channel) listen(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
				c.state.Store(int32(Disconnected))
			}
			c.mu.Unlock()
			c.logger.Warn("channel receive loop ended", slog.String("error", err.Error()))
			if c.onDisconnect != nil {
				c.onDisconnect(err)
			}
			return
		}
		c.dispatch(raw)
	}
}

// dispatch peeks at the type discriminator and hands the frame off without
// blocking on handler completion. Malformed frames are logged and dropped.
func (c *Channel) dispatch(raw []byte) {
	var header model.MessageHeader
	if err := json.Unmarshal(raw, &header); err != nil {
		c.logger.Warn("dropping malformed frame", slog.String("error", err.Error()))
		return
	}
	switch header.Type {
	case model.MessageCrudDocument, model.MessageCrudAnnotation, model.MessageOfflineToOnline:
		go c.handler(header, raw)
	default:
		c.logger.Warn("dropping frame with unknown type", slog.String("type", string(header.Type)))
	}
}
