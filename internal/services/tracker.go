package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"fogtrack/internal/clients/location"
	"fogtrack/internal/config"
	"fogtrack/internal/lib/filter"
	"fogtrack/internal/lib/geo"
	"fogtrack/internal/lib/geometry"
)

// TrackerService consumes location fixes, drops insignificant ones, and
// feeds the survivors to the revealed-geometry pipeline. One instance per
// process; Run is the only goroutine that touches the live filter.
type TrackerService struct {
	revealed *RevealedService
	source   location.Source
	config   *config.TrackingConfig
	log      *zap.SugaredLogger

	// merging serializes the union pipeline. Fixes arriving while a merge
	// is in flight are dropped rather than queued; the next significant
	// fix re-reveals the same neighborhood anyway.
	merging sync.Mutex

	liveMu       sync.Mutex
	liveFilter   filter.Filter
	manualMu     sync.Mutex
	manualFilter filter.Filter

	accepted atomic.Int64
	dropped  atomic.Int64
}

// TrackerStats reports cumulative fix-processing counters.
type TrackerStats struct {
	Accepted int64 `json:"accepted"`
	Dropped  int64 `json:"dropped"`
}

func NewTrackerService(revealed *RevealedService, source location.Source, cfg *config.TrackingConfig, log *zap.SugaredLogger) *TrackerService {
	return &TrackerService{
		revealed:     revealed,
		source:       source,
		config:       cfg,
		log:          log,
		liveFilter:   cfg.NewFilter(),
		manualFilter: filter.NewLastPointFilter(cfg.ManualMinDistanceMiles),
	}
}

// Run subscribes to the location source and processes fixes until the
// context is cancelled.
func (t *TrackerService) Run(ctx context.Context) error {
	fixes, err := t.source.Subscribe(ctx)
	if err != nil {
		if errors.Is(err, location.ErrPermissionDenied) {
			t.log.Warnf("Location permission denied, tracking disabled")
			return err
		}
		return err
	}
	t.log.Infof("Tracking started (strategy=%s, min_distance=%.3fmi)", t.config.FilterStrategy, t.config.MinDistanceMiles)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fix, ok := <-fixes:
			if !ok {
				return nil
			}
			t.handleFix(ctx, fix)
		}
	}
}

func (t *TrackerService) handleFix(ctx context.Context, fix location.Fix) {
	candidate := geo.Point{Latitude: fix.Latitude, Longitude: fix.Longitude}
	t.liveMu.Lock()
	significant := t.liveFilter.IsSignificant(candidate)
	t.liveMu.Unlock()
	if !significant {
		t.dropped.Add(1)
		return
	}
	if !t.merging.TryLock() {
		// Merge in flight; skip instead of building a backlog.
		t.dropped.Add(1)
		return
	}
	defer t.merging.Unlock()

	if err := t.revealed.AddVisitedLocation(ctx, fix.Latitude, fix.Longitude); err != nil {
		var mergeErr *geometry.MergeError
		if errors.As(err, &mergeErr) {
			// A degenerate disc must not kill the tracking loop.
			t.log.Errorf("Dropping fix (%.5f, %.5f): %v", fix.Latitude, fix.Longitude, err)
			t.dropped.Add(1)
			return
		}
		t.log.Errorf("Failed to record fix (%.5f, %.5f): %v", fix.Latitude, fix.Longitude, err)
		t.dropped.Add(1)
		return
	}
	t.liveMu.Lock()
	t.liveFilter.Record(candidate)
	t.liveMu.Unlock()
	t.accepted.Add(1)
}

// AddManualLocation records a manually placed point. Manual placement uses
// its own filter with a tighter threshold so fine adjustment near the
// current position still registers.
func (t *TrackerService) AddManualLocation(ctx context.Context, lat, lng float64) (bool, error) {
	candidate, err := geo.NewPoint(lat, lng)
	if err != nil {
		return false, err
	}

	t.manualMu.Lock()
	defer t.manualMu.Unlock()

	if !t.manualFilter.IsSignificant(candidate) {
		return false, nil
	}

	t.merging.Lock()
	err = t.revealed.AddVisitedLocation(ctx, lat, lng)
	t.merging.Unlock()
	if err != nil {
		return false, err
	}
	t.manualFilter.Record(candidate)
	t.accepted.Add(1)
	return true, nil
}

// Offset shifts the current fix by the given degree deltas and records the
// result as a manual point. Fails when no fix has been produced yet.
func (t *TrackerService) Offset(ctx context.Context, dLat, dLng float64) (bool, error) {
	fix, err := t.source.Current(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to resolve current location: %w", err)
	}
	return t.AddManualLocation(ctx, fix.Latitude+dLat, fix.Longitude+dLng)
}

// ResetFilters clears both filters, e.g. after ClearAll.
func (t *TrackerService) ResetFilters() {
	t.manualMu.Lock()
	t.manualFilter.Reset()
	t.manualMu.Unlock()
	t.liveMu.Lock()
	t.liveFilter.Reset()
	t.liveMu.Unlock()
}

func (t *TrackerService) Stats() TrackerStats {
	return TrackerStats{
		Accepted: t.accepted.Load(),
		Dropped:  t.dropped.Load(),
	}
}
