package channel

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quillmark/quill/internal/apperr"
	"github.com/quillmark/quill/internal/model"
)

// wsEcho is a minimal hub stand-in: it accepts one upgrade per request and
// pushes every frame handed to it.
type wsEcho struct {
	mu    sync.Mutex
	conns []*websocket.Conn
}

func (e *wsEcho) handler() http.HandlerFunc {
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		e.mu.Lock()
		e.conns = append(e.conns, conn)
		e.mu.Unlock()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}
}

func (e *wsEcho) push(t *testing.T, frame string) {
	t.Helper()
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.conns) == 0 {
		t.Fatal("no connection to push to")
	}
	conn := e.conns[len(e.conns)-1]
	if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatal(err)
	}
}

func testServer(t *testing.T) (*wsEcho, string) {
	t.Helper()
	echo := &wsEcho{}
	mux := http.NewServeMux()
	mux.Handle("/ws/", echo.handler())
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return echo, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestConnect_TransitionsToConnected(t *testing.T) {
	_, url := testServer(t)
	ch := New(url, func(model.MessageHeader, []byte) {}, quiet())
	t.Cleanup(func() { ch.Close() })

	if got := ch.State(); got != Disconnected {
		t.Fatalf("initial state = %v, want disconnected", got)
	}
	if err := ch.Connect(context.Background(), "alice"); err != nil {
		t.Fatal(err)
	}
	if got := ch.State(); got != Connected {
		t.Fatalf("state after connect = %v, want connected", got)
	}
	// Connecting again is a no-op.
	if err := ch.Connect(context.Background(), "alice"); err != nil {
		t.Fatal(err)
	}
}

func TestConnect_DialFailureStaysDisconnected(t *testing.T) {
	ch := New("ws://127.0.0.1:1", func(model.MessageHeader, []byte) {}, quiet())
	if err := ch.Connect(context.Background(), "alice"); err == nil {
		t.Fatal("dial to a dead port should fail")
	}
	if got := ch.State(); got != Disconnected {
		t.Fatalf("state after failed dial = %v, want disconnected", got)
	}
}

func TestSend_FailsFastWhenDisconnected(t *testing.T) {
	ch := New("ws://127.0.0.1:1", func(model.MessageHeader, []byte) {}, quiet())
	err := ch.Send(map[string]string{"type": "crudDocument"})
	if !errors.Is(err, apperr.ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
}

func TestDispatch_MalformedFrameDoesNotKillConnection(t *testing.T) {
	echo, url := testServer(t)

	frames := make(chan model.MessageHeader, 4)
	ch := New(url, func(header model.MessageHeader, _ []byte) {
		frames <- header
	}, quiet())
	t.Cleanup(func() { ch.Close() })

	if err := ch.Connect(context.Background(), "alice"); err != nil {
		t.Fatal(err)
	}

	echo.push(t, `this is not json`)
	echo.push(t, `{"type":"somethingElse","senderId":"x"}`)
	echo.push(t, `{"type":"crudDocument","senderId":"bob"}`)

	select {
	case header := <-frames:
		if header.Type != model.MessageCrudDocument || header.SenderID != "bob" {
			t.Errorf("header = %+v", header)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("valid frame after garbage was not dispatched")
	}
	if got := ch.State(); got != Connected {
		t.Fatalf("state = %v, want still connected", got)
	}
}

func TestListen_ServerCloseFlipsToDisconnected(t *testing.T) {
	echo, url := testServer(t)

	disconnected := make(chan error, 1)
	ch := New(url, func(model.MessageHeader, []byte) {}, quiet())
	ch.SetOnDisconnect(func(err error) { disconnected <- err })

	if err := ch.Connect(context.Background(), "alice"); err != nil {
		t.Fatal(err)
	}

	echo.mu.Lock()
	echo.conns[len(echo.conns)-1].Close()
	echo.mu.Unlock()

	select {
	case <-disconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect callback never fired")
	}
	if got := ch.State(); got != Disconnected {
		t.Fatalf("state = %v, want disconnected", got)
	}
}
