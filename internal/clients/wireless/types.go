// Package wireless abstracts the narrow byte-oriented channel used to
// exchange revealed-area data with nearby peers. The interface mirrors a
// BLE-style transport: discovery, connect with an MTU hint, per-channel
// latest-value reads and writes, optional push subscription, disconnect.
package wireless

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Channel identifies a logical characteristic on a connection.
type Channel byte

const (
	// ChannelControl carries protocol commands (START, END, REQUEST).
	ChannelControl Channel = 0x01
	// ChannelData carries payload chunks.
	ChannelData Channel = 0x02
)

// DefaultMTU is the assumed effective maximum transmission unit when the
// peer negotiates nothing better. 185 fits a 180-byte chunk payload plus
// command framing.
const DefaultMTU = 185

// ScanTimeout bounds device discovery to limit battery/resource use.
const ScanTimeout = 30 * time.Second

// ErrNoData is returned by Read when nothing has been written to the
// channel yet. It is a normal polling outcome, not a failure.
var ErrNoData = errors.New("no data on channel")

var (
	errClosed          = errors.New("connection closed")
	errPayloadTooLarge = errors.New("payload exceeds MTU")
	errUnknownPeer     = errors.New("unknown peer")
)

// TransportError wraps a connect/read/write failure, classified as
// retryable (transient link conditions) or fatal.
type TransportError struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Peer is a discovered remote device.
type Peer struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	SignalStrength int    `json:"signal_strength"`
}

// Conn is an established connection to a peer.
type Conn interface {
	// Write sends payload on the channel. The payload must fit the MTU;
	// splitting is the sender's job, never the receiver's.
	Write(ch Channel, payload []byte) error

	// Read returns the latest value written to the channel by the peer, or
	// ErrNoData if none has arrived yet. Repeated reads may return the same
	// value; consumers dedupe by content (chunk sequence index).
	Read(ch Channel) ([]byte, error)

	// Subscribe returns a stream of every value written to the channel.
	// Preferred over Read polling when the transport supports push.
	Subscribe(ch Channel) (<-chan []byte, error)

	// MTU reports the negotiated maximum payload size per write.
	MTU() int

	Close() error
}

// Transport discovers peers and opens connections.
type Transport interface {
	// Scan streams discovered peers matching the service filter. The stream
	// closes when ctx is done or after ScanTimeout, whichever comes first.
	Scan(ctx context.Context, serviceFilter string) (<-chan Peer, error)

	// Connect opens a connection to a peer, requesting mtuHint if the link
	// supports negotiation.
	Connect(ctx context.Context, peerID string, mtuHint int) (Conn, error)
}
