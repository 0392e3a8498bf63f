package auth

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// InstrumentAccessRepository defines the interface for user instrument access persistence.
type InstrumentAccessRepository interface {
	SetInstrumentAccess(ctx context.Context, userID string, grants []InstrumentAccessGrant, createdBy string) error
	GetInstrumentAccess(ctx context.Context, userID string) ([]InstrumentAccess, error)
	GetAccessibleInstrumentIDs(ctx context.Context, userID string) ([]string, error)
	GetConfigureInstrumentIDs(ctx context.Context, userID string) ([]string, error)
	ClearInstrumentAccess(ctx context.Context, userID string) error
	ResolveInstrumentScope(ctx context.Context, userID string) (*InstrumentScope, error)
}

// InstrumentAccessGrant is the input for setting instrument access (used by API handlers).
type InstrumentAccessGrant struct {
	InstrumentID string `json:"instrument_id"`
	CanConfigure bool   `json:"can_configure"`
}

// SQLiteInstrumentAccessRepository implements InstrumentAccessRepository using SQLite.
type SQLiteInstrumentAccessRepository struct {
	db *sql.DB
}

// NewInstrumentAccessRepository creates a new SQLite-backed instrument access repository.
func NewInstrumentAccessRepository(db *sql.DB) *SQLiteInstrumentAccessRepository {
	return &SQLiteInstrumentAccessRepository{db: db}
}

// SetInstrumentAccess replaces all instrument access grants for a user.
// Pass an empty slice to revoke all instrument access (user becomes locked out).
func (r *SQLiteInstrumentAccessRepository) SetInstrumentAccess(ctx context.Context, userID string, grants []InstrumentAccessGrant, createdBy string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is no-op after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM user_instrument_access WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("clearing instrument access: %w", err)
	}

	for _, g := range grants {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO user_instrument_access (user_id, instrument_id, can_configure, created_by) VALUES (?, ?, ?, ?)",
			userID, g.InstrumentID, boolToInt(g.CanConfigure), nullString(createdBy)); err != nil {
			return fmt.Errorf("granting instrument %s: %w", g.InstrumentID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing instrument access: %w", err)
	}
	return nil
}

// GetInstrumentAccess returns all instrument access grants for a user.
func (r *SQLiteInstrumentAccessRepository) GetInstrumentAccess(ctx context.Context, userID string) ([]InstrumentAccess, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, instrument_id, can_configure, created_by, created_at
		 FROM user_instrument_access WHERE user_id = ? ORDER BY instrument_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("getting instrument access: %w", err)
	}
	defer rows.Close()

	var access []InstrumentAccess
	for rows.Next() {
		var ia InstrumentAccess
		var canConfigure int
		var createdBy sql.NullString
		var createdAt string

		if err := rows.Scan(&ia.UserID, &ia.InstrumentID, &canConfigure, &createdBy, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning instrument access: %w", err)
		}

		ia.CanConfigure = canConfigure != 0
		if createdBy.Valid {
			ia.CreatedBy = createdBy.String
		}
		ia.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled

		access = append(access, ia)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating instrument access: %w", err)
	}

	if access == nil {
		access = []InstrumentAccess{}
	}
	return access, nil
}

// GetAccessibleInstrumentIDs returns just the instrument IDs a user can access.
//
//nolint:dupl // structurally similar to GetConfigureInstrumentIDs
func (r *SQLiteInstrumentAccessRepository) GetAccessibleInstrumentIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT instrument_id FROM user_instrument_access WHERE user_id = ? ORDER BY instrument_id", userID)
	if err != nil {
		return nil, fmt.Errorf("getting accessible instruments: %w", err)
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

// GetConfigureInstrumentIDs returns instrument IDs where the user can change setup.
//
//nolint:dupl // structurally similar to GetAccessibleInstrumentIDs
func (r *SQLiteInstrumentAccessRepository) GetConfigureInstrumentIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT instrument_id FROM user_instrument_access WHERE user_id = ? AND can_configure = 1 ORDER BY instrument_id", userID)
	if err != nil {
		return nil, fmt.Errorf("getting configure instruments: %w", err)
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

// ClearInstrumentAccess removes all instrument access for a user (locks them out).
func (r *SQLiteInstrumentAccessRepository) ClearInstrumentAccess(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM user_instrument_access WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("clearing instrument access: %w", err)
	}
	return nil
}

// ResolveInstrumentScope builds an InstrumentScope for a user by querying their
// access grants. Returns a scope with the accessible instrument IDs and the
// configure instrument IDs. For users with no grants, returns an empty
// InstrumentScope (no access).
func (r *SQLiteInstrumentAccessRepository) ResolveInstrumentScope(ctx context.Context, userID string) (*InstrumentScope, error) {
	access, err := r.GetInstrumentAccess(ctx, userID)
	if err != nil {
		return nil, err
	}

	scope := &InstrumentScope{}
	for _, ia := range access {
		scope.InstrumentIDs = append(scope.InstrumentIDs, ia.InstrumentID)
		if ia.CanConfigure {
			scope.ConfigureInstrumentIDs = append(scope.ConfigureInstrumentIDs, ia.InstrumentID)
		}
	}

	if scope.InstrumentIDs == nil {
		scope.InstrumentIDs = []string{}
	}
	if scope.ConfigureInstrumentIDs == nil {
		scope.ConfigureInstrumentIDs = []string{}
	}

	return scope, nil
}
