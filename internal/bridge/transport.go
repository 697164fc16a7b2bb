// ABOUTME: Transport abstraction over the gateway's bidirectional message stream.
// ABOUTME: Ships a WebSocket implementation on coder/websocket; tests use fakes.

package bridge

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
)

// maxFrameSize bounds a single inbound frame (1 MiB).
const maxFrameSize = 1 << 20

// Conn is one established bidirectional connection to the gateway.
// Receive and Send carry whole frames; the bridge owns the connection
// exclusively and is the only component that writes to or closes it.
type Conn interface {
	// Receive blocks until the next inbound frame arrives or the
	// connection fails. A non-nil error means the connection is dead.
	Receive(ctx context.Context) ([]byte, error)

	// Send writes one outbound frame.
	Send(ctx context.Context, data []byte) error

	// Close tears the connection down. Safe to call more than once.
	Close() error
}

// Transport opens connections to a gateway URL.
type Transport interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebSocketTransport is the production Transport backed by coder/websocket.
type WebSocketTransport struct {
	// Header carries extra HTTP headers for the upgrade request,
	// e.g. an Authorization bearer token.
	Header http.Header
}

// NewWebSocketTransport creates a WebSocket transport with no extra headers.
func NewWebSocketTransport() *WebSocketTransport {
	return &WebSocketTransport{}
}

// Dial opens a WebSocket connection to the given URL.
func (t *WebSocketTransport) Dial(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: t.Header,
	})
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}

	conn.SetReadLimit(maxFrameSize)
	return &wsConn{conn: conn}, nil
}

// wsConn adapts *websocket.Conn to the Conn interface.
type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) Receive(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	return data, err
}

func (c *wsConn) Send(ctx context.Context, data []byte) error {
	return c.conn.Write(ctx, websocket.MessageText, data)
}

func (c *wsConn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}
