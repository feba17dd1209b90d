package transport

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"plot-go/internal/plot"
)

// SyncPath is the relay route a room is served on.
const SyncPath = "/sync/"

// RoomURL returns the websocket URL of room on the relay at baseURL.
func RoomURL(baseURL, room string) string {
	return strings.TrimRight(baseURL, "/") + SyncPath + url.PathEscape(room)
}

// WebSocketTransport exchanges deltas with a relay as binary websocket
// messages. The relay fans each message out to the other peers in the room.
type WebSocketTransport struct {
	conn   *websocket.Conn
	inbox  *Inbox
	logger plot.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

// DialWebSocket connects to room on the relay at baseURL
// (ws://host:port or wss://host:port).
func DialWebSocket(ctx context.Context, baseURL, room string, logger plot.Logger) (*WebSocketTransport, error) {
	u := RoomURL(baseURL, room)
	conn, res, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", u, err)
	}
	if res != nil && res.Body != nil {
		res.Body.Close()
	}
	return NewWebSocketTransport(conn, logger), nil
}

// NewWebSocketTransport takes ownership of an established connection.
func NewWebSocketTransport(conn *websocket.Conn, logger plot.Logger) *WebSocketTransport {
	if logger == nil {
		logger = plot.NewNopLogger()
	}
	t := &WebSocketTransport{
		conn:   conn,
		inbox:  NewInbox(),
		logger: logger,
		done:   make(chan struct{}),
	}
	go t.readLoop()
	return t
}

func (t *WebSocketTransport) readLoop() {
	defer t.shutdown()
	for {
		kind, data, err := t.conn.ReadMessage()
		if err != nil {
			select {
			case <-t.done:
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					t.logger.Warn("websocket read failed", "error", err)
				}
			}
			return
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		t.inbox.Deliver(data)
	}
}

func (t *WebSocketTransport) Send(delta []byte) error {
	select {
	case <-t.done:
		return ErrClosed
	default:
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := t.conn.WriteMessage(websocket.BinaryMessage, delta); err != nil {
		return fmt.Errorf("writing delta: %w", err)
	}
	return nil
}

func (t *WebSocketTransport) OnReceive(handler func([]byte)) {
	t.inbox.OnReceive(handler)
}

// Done is closed once the connection has gone away.
func (t *WebSocketTransport) Done() <-chan struct{} {
	return t.done
}

func (t *WebSocketTransport) Close() error {
	t.writeMu.Lock()
	deadline := time.Now().Add(time.Second)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = t.conn.WriteControl(websocket.CloseMessage, msg, deadline)
	t.writeMu.Unlock()

	t.shutdown()
	return nil
}

func (t *WebSocketTransport) shutdown() {
	t.closeOnce.Do(func() {
		close(t.done)
		t.inbox.Close()
		t.conn.Close()
	})
}

var _ plot.Transport = (*WebSocketTransport)(nil)
