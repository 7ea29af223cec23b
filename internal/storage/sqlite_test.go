package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "fogtrack.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSlotRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	loaded, err := store.LoadSlot(ctx, SlotPersonal)
	require.NoError(t, err)
	assert.Nil(t, loaded, "Unsaved slot loads as nil")

	state := SlotState{
		Geometry:    []byte(`{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}`),
		PointCount:  1,
		LastUpdated: 1700000000000,
	}
	require.NoError(t, store.SaveSlot(ctx, SlotPersonal, state))

	loaded, err = store.LoadSlot(ctx, SlotPersonal)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, state, *loaded)

	// Upsert replaces
	state.PointCount = 2
	state.LastUpdated = 1700000001000
	require.NoError(t, store.SaveSlot(ctx, SlotPersonal, state))
	loaded, err = store.LoadSlot(ctx, SlotPersonal)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.PointCount)
}

func TestVisitedHistory(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	// Out-of-order inserts come back ordered by timestamp
	id1, err := store.AppendVisited(ctx, VisitedLocation{Latitude: 37.7749, Longitude: -122.4194, Timestamp: 2000, Source: SourceSelf})
	require.NoError(t, err)
	id2, err := store.AppendVisited(ctx, VisitedLocation{Latitude: 37.7760, Longitude: -122.4194, Timestamp: 1000, Source: SourceSelf})
	require.NoError(t, err)
	assert.Greater(t, id2, id1)

	_, err = store.AppendVisited(ctx, VisitedLocation{Latitude: 40.0, Longitude: -100.0, Timestamp: 1500, Source: SourceShared})
	require.NoError(t, err)

	self, err := store.ListVisited(ctx, SourceSelf)
	require.NoError(t, err)
	require.Len(t, self, 2)
	assert.Equal(t, int64(1000), self[0].Timestamp)
	assert.Equal(t, int64(2000), self[1].Timestamp)

	shared, err := store.ListVisited(ctx, SourceShared)
	require.NoError(t, err)
	require.Len(t, shared, 1)
	assert.Equal(t, SourceShared, shared[0].Source)
}

func TestRecordVisit_WritesSlotAndHistoryTogether(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	state := SlotState{
		Geometry:    []byte(`{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}`),
		PointCount:  1,
		LastUpdated: 1700000000000,
	}
	id, err := store.RecordVisit(ctx, SlotPersonal, state, VisitedLocation{
		Latitude: 37.7749, Longitude: -122.4194, Timestamp: 1700000000000, Source: SourceSelf,
	})
	require.NoError(t, err)
	assert.Positive(t, id)

	loaded, err := store.LoadSlot(ctx, SlotPersonal)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, state, *loaded)

	rows, err := store.ListVisited(ctx, SourceSelf)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestRecordVisit_RollsBackSlotOnHistoryFailure(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	committed := SlotState{
		Geometry:    []byte(`{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}`),
		PointCount:  1,
		LastUpdated: 1700000000000,
	}
	_, err := store.RecordVisit(ctx, SlotPersonal, committed, VisitedLocation{
		Latitude: 37.7749, Longitude: -122.4194, Timestamp: 1700000000000, Source: SourceSelf,
	})
	require.NoError(t, err)

	// Sabotage the history table so the second write of the transaction
	// fails after the slot upsert succeeded.
	_, err = store.db.ExecContext(ctx, `DROP TABLE visited_locations`)
	require.NoError(t, err)

	next := committed
	next.PointCount = 2
	next.LastUpdated = 1700000001000
	_, err = store.RecordVisit(ctx, SlotPersonal, next, VisitedLocation{
		Latitude: 37.7760, Longitude: -122.4194, Timestamp: 1700000001000, Source: SourceSelf,
	})
	require.Error(t, err)

	// The slot upsert must have rolled back with the failed append.
	loaded, err := store.LoadSlot(ctx, SlotPersonal)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, committed, *loaded, "A failed visit must not advance the persisted slot")
}

func TestHasVisited_ExactTupleMatch(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.AppendVisited(ctx, VisitedLocation{Latitude: 37.7749, Longitude: -122.4194, Timestamp: 1000, Source: SourceSelf})
	require.NoError(t, err)

	found, err := store.HasVisited(ctx, 37.7749, -122.4194, 1000)
	require.NoError(t, err)
	assert.True(t, found)

	// Any field differing misses
	found, err = store.HasVisited(ctx, 37.7749, -122.4194, 1001)
	require.NoError(t, err)
	assert.False(t, found)

	found, err = store.HasVisited(ctx, 37.7750, -122.4194, 1000)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestClearAll(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.SaveSlot(ctx, SlotPersonal, SlotState{Geometry: []byte(`{}`), PointCount: 1, LastUpdated: 1}))
	_, err := store.AppendVisited(ctx, VisitedLocation{Latitude: 1, Longitude: 2, Timestamp: 3, Source: SourceSelf})
	require.NoError(t, err)

	require.NoError(t, store.ClearAll(ctx))

	loaded, err := store.LoadSlot(ctx, SlotPersonal)
	require.NoError(t, err)
	assert.Nil(t, loaded)

	self, err := store.ListVisited(ctx, SourceSelf)
	require.NoError(t, err)
	assert.Empty(t, self)
}

func TestUninitializedStoreFails(t *testing.T) {
	ctx := context.Background()
	var store *SQLiteStore

	_, err := store.LoadSlot(ctx, SlotPersonal)
	assert.ErrorIs(t, err, ErrStoreUninitialized)

	err = store.SaveSlot(ctx, SlotPersonal, SlotState{})
	assert.ErrorIs(t, err, ErrStoreUninitialized)

	_, err = store.AppendVisited(ctx, VisitedLocation{})
	assert.ErrorIs(t, err, ErrStoreUninitialized)

	err = store.ClearAll(ctx)
	assert.ErrorIs(t, err, ErrStoreUninitialized)
}

func TestMigration_AddsSourceColumn(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "legacy.db")

	// Build a pre-source-column database by hand.
	legacy, err := Open(path)
	require.NoError(t, err)
	_, err = legacy.db.Exec(`DROP TABLE visited_locations`)
	require.NoError(t, err)
	_, err = legacy.db.Exec(`
		CREATE TABLE visited_locations (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			latitude  REAL NOT NULL,
			longitude REAL NOT NULL,
			timestamp INTEGER NOT NULL
		)`)
	require.NoError(t, err)
	_, err = legacy.db.Exec(
		`INSERT INTO visited_locations (latitude, longitude, timestamp) VALUES (37.7749, -122.4194, 1000)`)
	require.NoError(t, err)
	require.NoError(t, legacy.Close())

	// Reopening migrates and defaults old rows to self.
	store, err := Open(path)
	require.NoError(t, err)
	defer store.Close()

	self, err := store.ListVisited(ctx, SourceSelf)
	require.NoError(t, err)
	require.Len(t, self, 1)
	assert.Equal(t, SourceSelf, self[0].Source)
}
