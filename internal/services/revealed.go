package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"fogtrack/internal/cache"
	"fogtrack/internal/config"
	"fogtrack/internal/lib/geo"
	"fogtrack/internal/lib/geometry"
	"fogtrack/internal/storage"
)

// SlotMetadata describes one geometry slot for renderer consumers.
type SlotMetadata struct {
	PointCount  int   `json:"point_count"`
	LastUpdated int64 `json:"last_updated"` // epoch milliseconds, 0 when empty
}

// slot pairs a geometry value with its metadata under an exclusive lock.
// Union is not safe under concurrent partial writes, so every mutation of
// a slot is serialized here.
type slot struct {
	mu          sync.Mutex
	name        string
	geometry    *geometry.Geometry
	pointCount  int
	lastUpdated int64
}

// RevealedService owns the personal and shared revealed geometries. All
// mutation goes through the boolean merge engine and is persisted before
// success is reported. The personal and shared slots lock independently;
// operations touching both always lock personal before shared.
type RevealedService struct {
	store     storage.Store
	snapshots *cache.Snapshots
	config    *config.TrackingConfig
	log       *zap.SugaredLogger

	personal slot
	shared   slot
}

// NewRevealedService creates the service and reloads both slots from the
// store so revealed area survives restarts.
func NewRevealedService(store storage.Store, snapshots *cache.Snapshots, cfg *config.TrackingConfig, log *zap.SugaredLogger) (*RevealedService, error) {
	s := &RevealedService{
		store:     store,
		snapshots: snapshots,
		config:    cfg,
		log:       log,
		personal:  slot{name: storage.SlotPersonal},
		shared:    slot{name: storage.SlotShared},
	}
	if err := s.reload(context.Background(), &s.personal); err != nil {
		return nil, err
	}
	if err := s.reload(context.Background(), &s.shared); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *RevealedService) reload(ctx context.Context, sl *slot) error {
	state, err := s.store.LoadSlot(ctx, sl.name)
	if err != nil {
		return fmt.Errorf("failed to reload %s slot: %w", sl.name, err)
	}
	if state == nil {
		return nil
	}
	g, err := geometry.UnmarshalGeoJSON(state.Geometry)
	if err != nil {
		return fmt.Errorf("failed to decode persisted %s geometry: %w", sl.name, err)
	}
	sl.geometry = g
	sl.pointCount = state.PointCount
	sl.lastUpdated = state.LastUpdated
	s.log.Infof("Reloaded %s geometry (%d points, last updated %d)", sl.name, state.PointCount, state.LastUpdated)
	return nil
}

// AddVisitedLocation merges a disc around the fix into personal geometry,
// persists, and appends a source=self history row. Significance filtering
// happens upstream in the tracker.
func (s *RevealedService) AddVisitedLocation(ctx context.Context, lat, lng float64) error {
	return s.addLocation(ctx, &s.personal, lat, lng, time.Now().UnixMilli(), storage.SourceSelf)
}

// AddSharedLocation is AddVisitedLocation for peer-contributed points. The
// peer's original capture time is preserved, not the receipt time.
func (s *RevealedService) AddSharedLocation(ctx context.Context, lat, lng float64, originalTimestamp int64) error {
	return s.addLocation(ctx, &s.shared, lat, lng, originalTimestamp, storage.SourceShared)
}

func (s *RevealedService) addLocation(ctx context.Context, sl *slot, lat, lng float64, ts int64, source storage.Source) error {
	center, err := geo.NewPoint(lat, lng)
	if err != nil {
		return err
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()

	ring, err := geo.MakeDisc(center, s.config.DiscRadiusMiles, s.config.DiscSteps)
	if err != nil {
		return fmt.Errorf("failed to build disc: %w", err)
	}

	merged, err := geometry.UnionRing(sl.geometry, ring)
	if err != nil {
		// The previously committed geometry stays authoritative.
		return fmt.Errorf("failed to merge disc into %s geometry: %w", sl.name, err)
	}

	encoded, err := geometry.MarshalGeoJSON(merged)
	if err != nil {
		return fmt.Errorf("failed to encode %s geometry: %w", sl.name, err)
	}

	state := storage.SlotState{
		Geometry:    encoded,
		PointCount:  sl.pointCount + 1,
		LastUpdated: ts,
	}
	if _, err := s.store.RecordVisit(ctx, sl.name, state, storage.VisitedLocation{
		Latitude:  lat,
		Longitude: lng,
		Timestamp: ts,
		Source:    source,
	}); err != nil {
		return err
	}

	// Commit to memory only after the store accepted the mutation.
	sl.geometry = merged
	sl.pointCount = state.PointCount
	sl.lastUpdated = ts
	s.snapshots.Invalidate()
	return nil
}

// Revealed returns a snapshot of personal geometry, or nil when empty.
func (s *RevealedService) Revealed() *geometry.Geometry {
	return snapshotSlot(&s.personal)
}

// Shared returns a snapshot of shared geometry, or nil when empty.
func (s *RevealedService) Shared() *geometry.Geometry {
	return snapshotSlot(&s.shared)
}

// All returns the union of personal and shared geometry.
func (s *RevealedService) All() (*geometry.Geometry, error) {
	s.personal.mu.Lock()
	defer s.personal.mu.Unlock()
	s.shared.mu.Lock()
	defer s.shared.mu.Unlock()

	if s.personal.geometry == nil {
		return cloneOrNil(s.shared.geometry), nil
	}
	merged, err := geometry.Union(s.personal.geometry, s.shared.geometry)
	if err != nil {
		return nil, fmt.Errorf("failed to union personal and shared geometry: %w", err)
	}
	return merged, nil
}

// SharedOnly returns shared minus personal: the area peers revealed that
// the user has not visited. Nil when personal fully covers shared.
func (s *RevealedService) SharedOnly() (*geometry.Geometry, error) {
	s.personal.mu.Lock()
	defer s.personal.mu.Unlock()
	s.shared.mu.Lock()
	defer s.shared.mu.Unlock()

	diff, err := geometry.Difference(s.shared.geometry, s.personal.geometry)
	if err != nil {
		return nil, fmt.Errorf("failed to compute shared-only geometry: %w", err)
	}
	return diff, nil
}

// Metadata returns both slots' metadata.
func (s *RevealedService) Metadata() (personal, shared SlotMetadata) {
	s.personal.mu.Lock()
	personal = SlotMetadata{PointCount: s.personal.pointCount, LastUpdated: s.personal.lastUpdated}
	s.personal.mu.Unlock()

	s.shared.mu.Lock()
	shared = SlotMetadata{PointCount: s.shared.pointCount, LastUpdated: s.shared.lastUpdated}
	s.shared.mu.Unlock()
	return personal, shared
}

// ClearAll wipes both geometries and the entire history. Irreversible.
func (s *RevealedService) ClearAll(ctx context.Context) error {
	s.personal.mu.Lock()
	defer s.personal.mu.Unlock()
	s.shared.mu.Lock()
	defer s.shared.mu.Unlock()

	if err := s.store.ClearAll(ctx); err != nil {
		return err
	}
	s.personal.geometry = nil
	s.personal.pointCount = 0
	s.personal.lastUpdated = 0
	s.shared.geometry = nil
	s.shared.pointCount = 0
	s.shared.lastUpdated = 0
	s.snapshots.Invalidate()
	s.log.Infof("Cleared all revealed geometry and history")
	return nil
}

func snapshotSlot(sl *slot) *geometry.Geometry {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return cloneOrNil(sl.geometry)
}

func cloneOrNil(g *geometry.Geometry) *geometry.Geometry {
	if g == nil {
		return nil
	}
	return g.Clone()
}
