package wireless

import (
	"context"
	"sync"
	"time"
)

// loopbackEnd is one side of an in-memory connection pair. Writes land on
// the remote end as that channel's latest value and are pushed to its
// subscribers, mirroring characteristic write/notify semantics.
type loopbackEnd struct {
	mu     sync.Mutex
	latest map[Channel][]byte
	subs   map[Channel][]chan []byte
	remote *loopbackEnd
	mtu    int
	closed bool
}

// NewLoopbackPair returns two connected in-memory ends, used by tests and
// by same-process exchanges.
func NewLoopbackPair(mtu int) (Conn, Conn) {
	if mtu <= 0 {
		mtu = DefaultMTU
	}
	a := &loopbackEnd{latest: make(map[Channel][]byte), subs: make(map[Channel][]chan []byte), mtu: mtu}
	b := &loopbackEnd{latest: make(map[Channel][]byte), subs: make(map[Channel][]chan []byte), mtu: mtu}
	a.remote = b
	b.remote = a
	return a, b
}

func (e *loopbackEnd) Write(ch Channel, payload []byte) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return &TransportError{Op: "write", Retryable: false, Err: errClosed}
	}
	if len(payload) > e.mtu {
		e.mu.Unlock()
		return &TransportError{Op: "write", Retryable: false, Err: errPayloadTooLarge}
	}
	remote := e.remote
	e.mu.Unlock()

	buf := make([]byte, len(payload))
	copy(buf, payload)

	remote.mu.Lock()
	defer remote.mu.Unlock()
	if remote.closed {
		return &TransportError{Op: "write", Retryable: false, Err: errClosed}
	}
	remote.latest[ch] = buf
	for _, sub := range remote.subs[ch] {
		select {
		case sub <- buf:
		default: // slow subscriber keeps only what it can take
		}
	}
	return nil
}

func (e *loopbackEnd) Read(ch Channel) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, &TransportError{Op: "read", Retryable: false, Err: errClosed}
	}
	value, ok := e.latest[ch]
	if !ok {
		return nil, ErrNoData
	}
	return value, nil
}

func (e *loopbackEnd) Subscribe(ch Channel) (<-chan []byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, &TransportError{Op: "subscribe", Retryable: false, Err: errClosed}
	}
	sub := make(chan []byte, 256)
	e.subs[ch] = append(e.subs[ch], sub)
	return sub, nil
}

func (e *loopbackEnd) MTU() int { return e.mtu }

func (e *loopbackEnd) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	for _, subs := range e.subs {
		for _, sub := range subs {
			close(sub)
		}
	}
	e.subs = make(map[Channel][]chan []byte)
	return nil
}

// LoopbackTransport is an in-process Transport for tests: peers are
// registered by hand and Connect hands back the local end of the pair.
type LoopbackTransport struct {
	mu    sync.Mutex
	peers map[string]Peer
	conns map[string]Conn
}

func NewLoopbackTransport() *LoopbackTransport {
	return &LoopbackTransport{
		peers: make(map[string]Peer),
		conns: make(map[string]Conn),
	}
}

// Register adds a discoverable peer and returns the remote end its fake
// device logic should drive.
func (t *LoopbackTransport) Register(peer Peer, mtu int) Conn {
	local, remote := NewLoopbackPair(mtu)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.peers[peer.ID] = peer
	t.conns[peer.ID] = local
	return remote
}

func (t *LoopbackTransport) Scan(ctx context.Context, serviceFilter string) (<-chan Peer, error) {
	t.mu.Lock()
	peers := make([]Peer, 0, len(t.peers))
	for _, p := range t.peers {
		peers = append(peers, p)
	}
	t.mu.Unlock()

	out := make(chan Peer, len(peers))
	go func() {
		defer close(out)
		timeout := time.NewTimer(ScanTimeout)
		defer timeout.Stop()
		for _, p := range peers {
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

func (t *LoopbackTransport) Connect(ctx context.Context, peerID string, mtuHint int) (Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	conn, ok := t.conns[peerID]
	if !ok {
		return nil, &TransportError{Op: "connect", Retryable: false, Err: errUnknownPeer}
	}
	return conn, nil
}
