package services

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fogtrack/internal/cache"
	"fogtrack/internal/config"
	"fogtrack/internal/lib/geometry"
	"fogtrack/internal/storage"
)

func newTestRevealed(t *testing.T) (*RevealedService, storage.Store) {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "fogtrack.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := &config.DefaultConfig().Tracking
	svc, err := NewRevealedService(store, cache.NewSnapshots(), cfg, zap.NewNop().Sugar())
	require.NoError(t, err)
	return svc, store
}

func TestAddVisitedLocationBootstrap(t *testing.T) {
	svc, _ := newTestRevealed(t)
	ctx := context.Background()

	require.NoError(t, svc.AddVisitedLocation(ctx, 37.7749, -122.4194))

	g := svc.Revealed()
	require.NotNil(t, g)
	assert.Equal(t, geometry.KindPolygon, g.Kind())

	personal, shared := svc.Metadata()
	assert.Equal(t, 1, personal.PointCount)
	assert.Equal(t, 0, shared.PointCount)
	assert.NotZero(t, personal.LastUpdated)
}

func TestOverlappingDiscsStaySinglePolygon(t *testing.T) {
	svc, _ := newTestRevealed(t)
	ctx := context.Background()

	// 0.0011 degrees of latitude apart, well inside 2x the 0.1mi radius.
	require.NoError(t, svc.AddVisitedLocation(ctx, 37.7749, -122.4194))
	require.NoError(t, svc.AddVisitedLocation(ctx, 37.7760, -122.4194))

	g := svc.Revealed()
	require.NotNil(t, g)
	assert.Equal(t, geometry.KindPolygon, g.Kind())

	personal, _ := svc.Metadata()
	assert.Equal(t, 2, personal.PointCount)
}

func TestDisjointDiscsBecomeMultiPolygon(t *testing.T) {
	svc, _ := newTestRevealed(t)
	ctx := context.Background()

	require.NoError(t, svc.AddVisitedLocation(ctx, 37.7749, -122.4194))
	// ~2 miles north, far outside disc reach.
	require.NoError(t, svc.AddVisitedLocation(ctx, 37.8040, -122.4194))

	g := svc.Revealed()
	require.NotNil(t, g)
	assert.Equal(t, geometry.KindMultiPolygon, g.Kind())
	assert.Len(t, g.MultiPolygon(), 2)
}

func TestSharedSlotIsIndependent(t *testing.T) {
	svc, _ := newTestRevealed(t)
	ctx := context.Background()

	require.NoError(t, svc.AddVisitedLocation(ctx, 37.7749, -122.4194))
	require.NoError(t, svc.AddSharedLocation(ctx, 37.8040, -122.4194, 1700000000000))

	assert.NotNil(t, svc.Revealed())
	assert.NotNil(t, svc.Shared())

	personal, shared := svc.Metadata()
	assert.Equal(t, 1, personal.PointCount)
	assert.Equal(t, 1, shared.PointCount)
	assert.Equal(t, int64(1700000000000), shared.LastUpdated)
}

func TestAllUnionsBothSlots(t *testing.T) {
	svc, _ := newTestRevealed(t)
	ctx := context.Background()

	require.NoError(t, svc.AddVisitedLocation(ctx, 37.7749, -122.4194))
	require.NoError(t, svc.AddSharedLocation(ctx, 37.8040, -122.4194, 1700000000000))

	all, err := svc.All()
	require.NoError(t, err)
	require.NotNil(t, all)
	assert.Equal(t, geometry.KindMultiPolygon, all.Kind())

	areaAll := geometry.Area(all)
	areaPersonal := geometry.Area(svc.Revealed())
	assert.Greater(t, areaAll, areaPersonal)
}

func TestSharedOnlyExcludesPersonalArea(t *testing.T) {
	svc, _ := newTestRevealed(t)
	ctx := context.Background()

	// Peer reveals the same place the user already visited.
	require.NoError(t, svc.AddVisitedLocation(ctx, 37.7749, -122.4194))
	require.NoError(t, svc.AddSharedLocation(ctx, 37.7749, -122.4194, 1700000000000))

	diff, err := svc.SharedOnly()
	require.NoError(t, err)
	if diff != nil {
		// Identical discs may leave numerical slivers; anything left must
		// be negligible next to the disc itself.
		assert.Less(t, geometry.Area(diff), geometry.Area(svc.Shared())*0.01)
	}

	// A distant shared point survives the subtraction.
	require.NoError(t, svc.AddSharedLocation(ctx, 37.8040, -122.4194, 1700000001000))
	diff, err = svc.SharedOnly()
	require.NoError(t, err)
	require.NotNil(t, diff)
}

func TestGeometrySurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fogtrack.db")
	ctx := context.Background()
	cfg := &config.DefaultConfig().Tracking
	log := zap.NewNop().Sugar()

	store, err := storage.Open(path)
	require.NoError(t, err)
	svc, err := NewRevealedService(store, cache.NewSnapshots(), cfg, log)
	require.NoError(t, err)
	require.NoError(t, svc.AddVisitedLocation(ctx, 37.7749, -122.4194))
	require.NoError(t, svc.AddVisitedLocation(ctx, 37.8040, -122.4194))
	before := geometry.Area(svc.Revealed())
	require.NoError(t, store.Close())

	store2, err := storage.Open(path)
	require.NoError(t, err)
	defer store2.Close()
	svc2, err := NewRevealedService(store2, cache.NewSnapshots(), cfg, log)
	require.NoError(t, err)

	reloaded := svc2.Revealed()
	require.NotNil(t, reloaded)
	assert.InEpsilon(t, before, geometry.Area(reloaded), 1e-9)
	personal, _ := svc2.Metadata()
	assert.Equal(t, 2, personal.PointCount)
}

func TestClearAllResetsEverything(t *testing.T) {
	svc, store := newTestRevealed(t)
	ctx := context.Background()

	require.NoError(t, svc.AddVisitedLocation(ctx, 37.7749, -122.4194))
	require.NoError(t, svc.AddSharedLocation(ctx, 37.8040, -122.4194, 1700000000000))
	require.NoError(t, svc.ClearAll(ctx))

	assert.Nil(t, svc.Revealed())
	assert.Nil(t, svc.Shared())

	rows, err := store.ListVisited(ctx, storage.SourceSelf)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRejectsInvalidCoordinates(t *testing.T) {
	svc, _ := newTestRevealed(t)
	err := svc.AddVisitedLocation(context.Background(), 91.0, 0.0)
	assert.Error(t, err)
	assert.Nil(t, svc.Revealed())
}
