package reliable

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/driftcast/beamcore/internal/transport"
)

// BulkSocket carries clipboard chunks, file transfer data, and
// notifications over a websocket connection rather than a raw TCP
// stream — the browser-facing deployment of the reliable channel's
// bulk asynchronous data path.
type BulkSocket struct {
	conn *websocket.Conn

	mu      sync.Mutex
	timeout time.Duration
	closed  bool
}

var _ transport.Socket = (*BulkSocket)(nil)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  readChunk,
	WriteBufferSize: readChunk,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// DialBulk opens a websocket bulk channel to a ws(s):// URL.
func DialBulk(url string, timeout time.Duration) (*BulkSocket, error) {
	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("reliable: dial bulk websocket: %w", err)
	}
	return &BulkSocket{conn: conn, timeout: transport.WaitTimeoutDefault}, nil
}

// UpgradeBulk promotes an inbound HTTP request to a websocket bulk
// channel (the relay/host side of the handshake).
func UpgradeBulk(w http.ResponseWriter, r *http.Request) (*BulkSocket, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("reliable: upgrade bulk websocket: %w", err)
	}
	return &BulkSocket{conn: conn, timeout: transport.WaitTimeoutDefault}, nil
}

func (b *BulkSocket) SendDatagram(frame []byte) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return transport.ErrClosed
	}
	return b.conn.WriteMessage(websocket.BinaryMessage, frame)
}

func (b *BulkSocket) RecvDatagram(timeout time.Duration) ([]byte, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, transport.ErrClosed
	}
	b.mu.Unlock()

	if err := b.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, fmt.Errorf("reliable: set bulk read deadline: %w", err)
	}
	_, data, err := b.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err) {
			return nil, transport.ErrClosed
		}
		if ne, ok := err.(interface{ Timeout() bool }); ok && ne.Timeout() {
			return nil, transport.ErrTimeout
		}
		return nil, err
	}
	return data, nil
}

func (b *BulkSocket) SetTimeout(d time.Duration) {
	b.mu.Lock()
	b.timeout = d
	b.mu.Unlock()
}

func (b *BulkSocket) Shutdown() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()
	_ = b.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return b.conn.Close()
}
