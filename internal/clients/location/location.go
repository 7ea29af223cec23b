// Package location defines the producer interface for GPS fixes and a
// push-fed implementation for devices that report over HTTP.
package location

import (
	"context"
	"errors"
	"sync"
)

// ErrPermissionDenied indicates the platform refused location access.
// Recoverable: tracking simply does not start.
var ErrPermissionDenied = errors.New("location permission denied")

// ErrUnavailable indicates no fix can be produced right now.
var ErrUnavailable = errors.New("location unavailable")

// Fix is a single GPS reading. Transient: consumed immediately by the
// significance filter and discarded.
type Fix struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
	Accuracy  float64 `json:"accuracy,omitempty"` // meters, 0 when unknown
	Timestamp int64   `json:"ts"`                 // epoch milliseconds
}

// Source produces location fixes.
type Source interface {
	// Subscribe yields fixes until ctx is done.
	Subscribe(ctx context.Context) (<-chan Fix, error)

	// Current returns the latest known fix, or ErrUnavailable.
	Current(ctx context.Context) (Fix, error)
}

// PushSource is a Source fed externally, typically by the HTTP fix-intake
// endpoint. Slow subscribers drop fixes rather than stalling the feed; a
// dropped fix is re-evaluated by whatever arrives next.
type PushSource struct {
	mu   sync.Mutex
	last *Fix
	subs map[chan Fix]struct{}
}

var _ Source = (*PushSource)(nil)

func NewPushSource() *PushSource {
	return &PushSource{subs: make(map[chan Fix]struct{})}
}

// Publish feeds a fix to all subscribers and records it as current.
func (s *PushSource) Publish(fix Fix) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := fix
	s.last = &f
	for sub := range s.subs {
		select {
		case sub <- fix:
		default:
		}
	}
}

func (s *PushSource) Subscribe(ctx context.Context) (<-chan Fix, error) {
	sub := make(chan Fix, 16)
	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, sub)
		s.mu.Unlock()
		close(sub)
	}()
	return sub, nil
}

func (s *PushSource) Current(ctx context.Context) (Fix, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return Fix{}, ErrUnavailable
	}
	return *s.last, nil
}
