package auth

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StationRepository defines the interface for station device identity persistence.
type StationRepository interface {
	Create(ctx context.Context, station *Station) error
	GetByID(ctx context.Context, id string) (*Station, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (*Station, error)
	List(ctx context.Context) ([]Station, error)
	UpdateName(ctx context.Context, id, name string) error
	Delete(ctx context.Context, id string) error
	UpdateLastSeen(ctx context.Context, id string) error
	SetInstruments(ctx context.Context, stationID string, instrumentIDs []string) error
	GetInstrumentIDs(ctx context.Context, stationID string) ([]string, error)
}

// SQLiteStationRepository implements StationRepository using SQLite.
type SQLiteStationRepository struct {
	db *sql.DB
}

// NewStationRepository creates a new SQLite-backed station repository.
func NewStationRepository(db *sql.DB) *SQLiteStationRepository {
	// Ensure in-memory SQLite uses a single connection to avoid per-connection schemas in tests.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return &SQLiteStationRepository{db: db}
}

// Create inserts a new station device identity. The ID is generated if empty.
func (r *SQLiteStationRepository) Create(ctx context.Context, station *Station) error {
	if station.ID == "" {
		station.ID = "stn-" + uuid.NewString()[:16]
	}

	now := time.Now().UTC().Format(time.RFC3339)
	station.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO stations (id, name, token_hash, is_active, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		station.ID, station.Name, station.TokenHash,
		boolToInt(station.IsActive), nullString(station.CreatedBy), now,
	)
	if err != nil {
		return fmt.Errorf("creating station: %w", err)
	}

	return nil
}

// GetByID retrieves a station by its unique ID.
func (r *SQLiteStationRepository) GetByID(ctx context.Context, id string) (*Station, error) {
	return r.scanStation(r.db.QueryRowContext(ctx,
		`SELECT id, name, token_hash, is_active, last_seen_at, created_by, created_at
		 FROM stations WHERE id = ?`, id))
}

// GetByTokenHash retrieves a station by its token hash (used during authentication).
func (r *SQLiteStationRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*Station, error) {
	return r.scanStation(r.db.QueryRowContext(ctx,
		`SELECT id, name, token_hash, is_active, last_seen_at, created_by, created_at
		 FROM stations WHERE token_hash = ?`, tokenHash))
}

// List returns all registered stations.
func (r *SQLiteStationRepository) List(ctx context.Context) ([]Station, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, token_hash, is_active, last_seen_at, created_by, created_at
		 FROM stations ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing stations: %w", err)
	}
	defer rows.Close()

	var stations []Station
	for rows.Next() {
		var s Station
		var lastSeen, createdBy sql.NullString
		var isActive int
		var createdAt string

		if err := rows.Scan(&s.ID, &s.Name, &s.TokenHash, &isActive,
			&lastSeen, &createdBy, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning station: %w", err)
		}

		s.IsActive = isActive != 0
		if lastSeen.Valid {
			t, _ := time.Parse(time.RFC3339, lastSeen.String) //nolint:errcheck // format is controlled
			s.LastSeenAt = &t
		}
		if createdBy.Valid {
			s.CreatedBy = createdBy.String
		}
		s.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled

		stations = append(stations, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating stations: %w", err)
	}

	if stations == nil {
		stations = []Station{}
	}
	return stations, nil
}

// UpdateName changes a station's display name.
func (r *SQLiteStationRepository) UpdateName(ctx context.Context, id, name string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE stations SET name = ? WHERE id = ?", name, id)
	if err != nil {
		return fmt.Errorf("updating station name: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrStationNotFound
	}
	return nil
}

// Delete removes a station by ID. Instrument assignments are cascade-deleted.
func (r *SQLiteStationRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM stations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting station: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrStationNotFound
	}
	return nil
}

// UpdateLastSeen updates the station's last_seen_at timestamp to now.
func (r *SQLiteStationRepository) UpdateLastSeen(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.db.ExecContext(ctx,
		"UPDATE stations SET last_seen_at = ? WHERE id = ?", now, id)
	if err != nil {
		return fmt.Errorf("updating last seen: %w", err)
	}
	return nil
}

// SetInstruments replaces all instrument assignments for a station. Pass an empty slice to remove all.
func (r *SQLiteStationRepository) SetInstruments(ctx context.Context, stationID string, instrumentIDs []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is no-op after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM station_instrument_access WHERE station_id = ?", stationID); err != nil {
		return fmt.Errorf("clearing station instruments: %w", err)
	}

	for _, instrumentID := range instrumentIDs {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO station_instrument_access (station_id, instrument_id) VALUES (?, ?)",
			stationID, instrumentID); err != nil {
			return fmt.Errorf("assigning instrument %s to station: %w", instrumentID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing station instruments: %w", err)
	}
	return nil
}

// GetInstrumentIDs returns the instrument IDs assigned to a station.
//
//nolint:dupl // structurally similar to instrument_access queries
func (r *SQLiteStationRepository) GetInstrumentIDs(ctx context.Context, stationID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT instrument_id FROM station_instrument_access WHERE station_id = ? ORDER BY instrument_id", stationID)
	if err != nil {
		return nil, fmt.Errorf("getting station instruments: %w", err)
	}
	defer rows.Close()

	var instrumentIDs []string
	for rows.Next() {
		var instrumentID string
		if err := rows.Scan(&instrumentID); err != nil {
			return nil, fmt.Errorf("scanning instrument ID: %w", err)
		}
		instrumentIDs = append(instrumentIDs, instrumentID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating instrument IDs: %w", err)
	}

	if instrumentIDs == nil {
		instrumentIDs = []string{}
	}
	return instrumentIDs, nil
}

// scanStation scans a station from a single row query.
func (r *SQLiteStationRepository) scanStation(row *sql.Row) (*Station, error) {
	var s Station
	var lastSeen, createdBy sql.NullString
	var isActive int
	var createdAt string

	err := row.Scan(&s.ID, &s.Name, &s.TokenHash, &isActive,
		&lastSeen, &createdBy, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrStationNotFound
		}
		return nil, fmt.Errorf("scanning station: %w", err)
	}

	s.IsActive = isActive != 0
	if lastSeen.Valid {
		t, _ := time.Parse(time.RFC3339, lastSeen.String) //nolint:errcheck // format is controlled
		s.LastSeenAt = &t
	}
	if createdBy.Valid {
		s.CreatedBy = createdBy.String
	}
	s.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled

	return &s, nil
}
