package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a local sqlite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// Open opens (creating if needed) the database at path and applies schema
// migrations. Use ":memory:" for an ephemeral store in tests.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	const schema = `
		CREATE TABLE IF NOT EXISTS geometry_slots (
			slot         TEXT PRIMARY KEY,
			geometry     TEXT NOT NULL,
			point_count  INTEGER NOT NULL,
			last_updated INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS visited_locations (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			latitude  REAL NOT NULL,
			longitude REAL NOT NULL,
			timestamp INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_visited_timestamp
			ON visited_locations(timestamp);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// Pre-existing installs have a visited_locations table without the
	// source column; add it, defaulting old rows to self.
	hasSource, err := s.hasColumn("visited_locations", "source")
	if err != nil {
		return err
	}
	if !hasSource {
		if _, err := s.db.Exec(
			`ALTER TABLE visited_locations ADD COLUMN source TEXT NOT NULL DEFAULT 'self'`,
		); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) hasColumn(table, column string) (bool, error) {
	rows, err := s.db.Query(fmt.Sprintf(`PRAGMA table_info(%s)`, table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// SaveSlot upserts a geometry slot.
func (s *SQLiteStore) SaveSlot(ctx context.Context, slot string, state SlotState) error {
	if s == nil || s.db == nil {
		return ErrStoreUninitialized
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO geometry_slots (slot, geometry, point_count, last_updated)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET
			geometry = excluded.geometry,
			point_count = excluded.point_count,
			last_updated = excluded.last_updated`,
		slot, string(state.Geometry), state.PointCount, state.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("failed to save geometry slot %q: %w", slot, err)
	}
	return nil
}

// LoadSlot returns a slot's state, or nil if it has never been saved.
func (s *SQLiteStore) LoadSlot(ctx context.Context, slot string) (*SlotState, error) {
	if s == nil || s.db == nil {
		return nil, ErrStoreUninitialized
	}
	var (
		geometry    string
		pointCount  int
		lastUpdated int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT geometry, point_count, last_updated FROM geometry_slots WHERE slot = ?`,
		slot,
	).Scan(&geometry, &pointCount, &lastUpdated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load geometry slot %q: %w", slot, err)
	}
	return &SlotState{
		Geometry:    []byte(geometry),
		PointCount:  pointCount,
		LastUpdated: lastUpdated,
	}, nil
}

// AppendVisited appends a history row and returns its assigned id.
func (s *SQLiteStore) AppendVisited(ctx context.Context, loc VisitedLocation) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrStoreUninitialized
	}
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO visited_locations (latitude, longitude, timestamp, source) VALUES (?, ?, ?, ?)`,
		loc.Latitude, loc.Longitude, loc.Timestamp, string(loc.Source),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to append visited location: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read inserted id: %w", err)
	}
	return id, nil
}

// RecordVisit upserts a geometry slot and appends the matching history row
// atomically, so a crash between the two writes cannot leave the persisted
// geometry claiming a point the history never recorded.
func (s *SQLiteStore) RecordVisit(ctx context.Context, slot string, state SlotState, loc VisitedLocation) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrStoreUninitialized
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin visit transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO geometry_slots (slot, geometry, point_count, last_updated)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET
			geometry = excluded.geometry,
			point_count = excluded.point_count,
			last_updated = excluded.last_updated`,
		slot, string(state.Geometry), state.PointCount, state.LastUpdated,
	); err != nil {
		return 0, fmt.Errorf("failed to save geometry slot %q: %w", slot, err)
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO visited_locations (latitude, longitude, timestamp, source) VALUES (?, ?, ?, ?)`,
		loc.Latitude, loc.Longitude, loc.Timestamp, string(loc.Source),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to append visited location: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read inserted id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit visit: %w", err)
	}
	return id, nil
}

// ListVisited returns history rows for a source, ordered by timestamp ascending.
func (s *SQLiteStore) ListVisited(ctx context.Context, source Source) ([]VisitedLocation, error) {
	if s == nil || s.db == nil {
		return nil, ErrStoreUninitialized
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, latitude, longitude, timestamp, source
		 FROM visited_locations WHERE source = ? ORDER BY timestamp ASC, id ASC`,
		string(source),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list visited locations: %w", err)
	}
	defer rows.Close()

	var locations []VisitedLocation
	for rows.Next() {
		var loc VisitedLocation
		var src string
		if err := rows.Scan(&loc.ID, &loc.Latitude, &loc.Longitude, &loc.Timestamp, &src); err != nil {
			return nil, fmt.Errorf("failed to scan visited location: %w", err)
		}
		loc.Source = Source(src)
		locations = append(locations, loc)
	}
	return locations, rows.Err()
}

// HasVisited reports whether an exact (lat, lng, ts) tuple exists.
func (s *SQLiteStore) HasVisited(ctx context.Context, lat, lng float64, ts int64) (bool, error) {
	if s == nil || s.db == nil {
		return false, ErrStoreUninitialized
	}
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM visited_locations WHERE latitude = ? AND longitude = ? AND timestamp = ? LIMIT 1`,
		lat, lng, ts,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check visited location: %w", err)
	}
	return true, nil
}

// ClearAll deletes all geometry slots and history rows.
func (s *SQLiteStore) ClearAll(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrStoreUninitialized
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin clear transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM geometry_slots`); err != nil {
		return fmt.Errorf("failed to clear geometry slots: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM visited_locations`); err != nil {
		return fmt.Errorf("failed to clear visited locations: %w", err)
	}
	return tx.Commit()
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return ErrStoreUninitialized
	}
	return s.db.Close()
}
