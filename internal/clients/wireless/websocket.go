package wireless

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebsocketTransport carries the byte-pipe contract over LAN websockets.
// Each frame is a binary message with a one-byte channel prefix; like a
// characteristic, each channel holds its latest value for polling reads,
// with Subscribe delivering every frame as it arrives.
type WebsocketTransport struct {
	// KnownPeers substitutes for radio discovery: websocket peers are
	// configured, not scanned over the air.
	KnownPeers []Peer
}

func NewWebsocketTransport(knownPeers []Peer) *WebsocketTransport {
	return &WebsocketTransport{KnownPeers: knownPeers}
}

func (t *WebsocketTransport) Scan(ctx context.Context, serviceFilter string) (<-chan Peer, error) {
	out := make(chan Peer, len(t.KnownPeers))
	go func() {
		defer close(out)
		timeout := time.NewTimer(ScanTimeout)
		defer timeout.Stop()
		for _, p := range t.KnownPeers {
			select {
			case out <- p:
			case <-ctx.Done():
				return
			case <-timeout.C:
				return
			}
		}
	}()
	return out, nil
}

// Connect dials the peer id as a websocket URL (ws://host:port/path).
func (t *WebsocketTransport) Connect(ctx context.Context, peerID string, mtuHint int) (Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, _, err := dialer.DialContext(ctx, peerID, nil)
	if err != nil {
		return nil, &TransportError{Op: "connect", Retryable: true, Err: err}
	}
	return newWebsocketConn(ws, mtuHint), nil
}

type websocketConn struct {
	ws      *websocket.Conn
	mtu     int
	writeMu sync.Mutex

	mu     sync.Mutex
	latest map[Channel][]byte
	subs   map[Channel][]chan []byte
	closed bool
}

func newWebsocketConn(ws *websocket.Conn, mtuHint int) *websocketConn {
	mtu := DefaultMTU
	// Websocket links have no 185-byte characteristic limit; honor any
	// larger hint the caller negotiated.
	if mtuHint > mtu {
		mtu = mtuHint
	}
	c := &websocketConn{
		ws:     ws,
		mtu:    mtu,
		latest: make(map[Channel][]byte),
		subs:   make(map[Channel][]chan []byte),
	}
	go c.readPump()
	return c
}

// NewWebsocketConn wraps an already-upgraded server-side connection, so a
// listening peer speaks the same Conn contract as a dialing one.
func NewWebsocketConn(ws *websocket.Conn, mtuHint int) Conn {
	return newWebsocketConn(ws, mtuHint)
}

func (c *websocketConn) readPump() {
	for {
		kind, frame, err := c.ws.ReadMessage()
		if err != nil {
			c.Close()
			return
		}
		if kind != websocket.BinaryMessage || len(frame) < 1 {
			continue
		}
		ch := Channel(frame[0])
		payload := frame[1:]

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		c.latest[ch] = payload
		for _, sub := range c.subs[ch] {
			select {
			case sub <- payload:
			default:
			}
		}
		c.mu.Unlock()
	}
}

func (c *websocketConn) Write(ch Channel, payload []byte) error {
	if len(payload) > c.mtu {
		return &TransportError{Op: "write", Retryable: false, Err: errPayloadTooLarge}
	}
	frame := make([]byte, 0, len(payload)+1)
	frame = append(frame, byte(ch))
	frame = append(frame, payload...)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return &TransportError{Op: "write", Retryable: true, Err: err}
	}
	return nil
}

func (c *websocketConn) Read(ch Channel) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, &TransportError{Op: "read", Retryable: false, Err: errClosed}
	}
	value, ok := c.latest[ch]
	if !ok {
		return nil, ErrNoData
	}
	return value, nil
}

func (c *websocketConn) Subscribe(ch Channel) (<-chan []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, &TransportError{Op: "subscribe", Retryable: false, Err: errClosed}
	}
	sub := make(chan []byte, 256)
	c.subs[ch] = append(c.subs[ch], sub)
	return sub, nil
}

func (c *websocketConn) MTU() int { return c.mtu }

func (c *websocketConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	for _, subs := range c.subs {
		for _, sub := range subs {
			close(sub)
		}
	}
	c.subs = make(map[Channel][]chan []byte)
	c.mu.Unlock()
	return c.ws.Close()
}

// ServeExchange upgrades an HTTP request into a peer connection. Hosts
// mount it on their HTTP server to accept inbound exchanges.
func ServeExchange(w http.ResponseWriter, r *http.Request, mtuHint int) (Conn, error) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, &TransportError{Op: "accept", Retryable: false, Err: err}
	}
	return newWebsocketConn(ws, mtuHint), nil
}
