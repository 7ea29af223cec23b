package storage

import (
	"context"
	"errors"
)

// ErrStoreUninitialized is returned by every operation before Open has
// succeeded. It signals a setup-ordering bug upstream; callers must not
// retry blindly.
var ErrStoreUninitialized = errors.New("store not initialized")

// Source tags a visited location with its origin.
type Source string

const (
	// SourceSelf marks personally visited locations.
	SourceSelf Source = "self"
	// SourceShared marks locations imported from a peer.
	SourceShared Source = "shared"
)

// Slot names the two geometry slots persisted per session.
const (
	SlotPersonal = "personal"
	SlotShared   = "shared"
)

// VisitedLocation is one row of the append-only history log. Rows are never
// updated and are deleted only by a full clear.
type VisitedLocation struct {
	ID        int64   `json:"id"`
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
	Timestamp int64   `json:"ts"` // epoch milliseconds
	Source    Source  `json:"source"`
}

// SlotState is the persisted form of one geometry slot.
type SlotState struct {
	Geometry    []byte // GeoJSON
	PointCount  int
	LastUpdated int64 // epoch milliseconds
}

// Store persists geometry slots and the visited-location history.
type Store interface {
	// SaveSlot upserts a geometry slot.
	SaveSlot(ctx context.Context, slot string, state SlotState) error

	// LoadSlot returns a slot's state, or nil if it has never been saved.
	LoadSlot(ctx context.Context, slot string) (*SlotState, error)

	// AppendVisited appends a history row and returns its assigned id.
	AppendVisited(ctx context.Context, loc VisitedLocation) (int64, error)

	// RecordVisit upserts a geometry slot and appends its history row in one
	// transaction: either both land or neither does.
	RecordVisit(ctx context.Context, slot string, state SlotState, loc VisitedLocation) (int64, error)

	// ListVisited returns history rows for a source, ordered by timestamp
	// ascending.
	ListVisited(ctx context.Context, source Source) ([]VisitedLocation, error)

	// HasVisited reports whether an exact (lat, lng, ts) tuple exists in the
	// history, regardless of source. Used for import deduplication.
	HasVisited(ctx context.Context, lat, lng float64, ts int64) (bool, error)

	// ClearAll deletes all geometry slots and history rows. Irreversible.
	ClearAll(ctx context.Context) error

	Close() error
}
