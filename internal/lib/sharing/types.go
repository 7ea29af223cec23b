// Package sharing implements the peer-exchange data contract: the versioned
// location-export record, the size-bounded chunking of its serialized form,
// and the command protocol that moves chunks over a wireless byte pipe.
package sharing

import (
	"errors"
	"time"
)

// ExportVersion is the current wire format version.
const ExportVersion = 1

// DefaultChunkSize caps the payload bytes per chunk so a framed chunk fits
// under the transport's effective MTU.
const DefaultChunkSize = 180

// DefaultWriteDelay paces chunk writes so the receiver's buffer is not
// overrun. Required behavior, not an incidental sleep.
const DefaultWriteDelay = 50 * time.Millisecond

// DefaultPollInterval and DefaultMaxPollAttempts bound the receiver's
// polling fallback: ~100 attempts at ~100ms is a ten second ceiling.
const (
	DefaultPollInterval    = 100 * time.Millisecond
	DefaultMaxPollAttempts = 100
)

// ErrMalformedExportData indicates an unparsable or invalid peer payload.
// The whole import is abandoned; nothing is partially applied.
var ErrMalformedExportData = errors.New("malformed export data")

// ErrExchangeTimeout indicates the peer stopped responding mid-exchange.
// Recoverable: the user may retry the whole exchange.
var ErrExchangeTimeout = errors.New("exchange timed out")

// ErrIncompleteTransfer indicates END arrived with chunk indices missing.
// Reassembly fails closed rather than concatenating around gaps.
var ErrIncompleteTransfer = errors.New("transfer incomplete: missing chunks")

// ExportableLocation is one point of a location export, in the fixed wire
// key order {lat, lon, ts}.
type ExportableLocation struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	Timestamp int64   `json:"ts"`
}

// LocationExportData is the versioned wire record for a personal location
// history. Immutable once constructed.
type LocationExportData struct {
	Version   int                  `json:"version"`
	Locations []ExportableLocation `json:"locations"`
}
