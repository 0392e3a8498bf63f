package archive

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// SQLiteRepository stores archive records in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new archive repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// RecordMeasurement inserts a measurement record. The ID and TakenAt are
// generated if empty.
func (r *SQLiteRepository) RecordMeasurement(ctx context.Context, m *Measurement) error {
	if m.InstrumentID == "" {
		return fmt.Errorf("instrument id is required")
	}
	if m.Function == "" {
		return fmt.Errorf("function is required")
	}
	if m.ID == "" {
		m.ID = "msr-" + uuid.NewString()[:16]
	}
	if m.TakenAt.IsZero() {
		m.TakenAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO measurements (id, instrument_id, function, value, out_of_range, taken_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.InstrumentID, m.Function, m.Value,
		boolToInt(m.OutOfRange),
		m.TakenAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting measurement: %w", err)
	}

	return nil
}

// RecordAttributeWrite inserts an attribute write record. The ID and
// WrittenAt are generated if empty.
func (r *SQLiteRepository) RecordAttributeWrite(ctx context.Context, w *AttributeWrite) error {
	if w.InstrumentID == "" {
		return fmt.Errorf("instrument id is required")
	}
	if w.Path == "" {
		return fmt.Errorf("path is required")
	}
	if w.ID == "" {
		w.ID = "atw-" + uuid.NewString()[:16]
	}
	if w.WrittenAt.IsZero() {
		w.WrittenAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO attribute_writes (id, instrument_id, path, idx, value, written_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		w.ID, w.InstrumentID, w.Path, w.Index, w.Value,
		w.WrittenAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting attribute write: %w", err)
	}

	return nil
}

// ListMeasurements returns measurements matching the filter, newest first.
func (r *SQLiteRepository) ListMeasurements(ctx context.Context, filter MeasurementFilter) (*MeasurementList, error) {
	filter.Limit, filter.Offset = clampPage(filter.Limit, filter.Offset)

	// Build WHERE clause dynamically.
	var conditions []string
	var args []any

	if filter.InstrumentID != "" {
		conditions = append(conditions, "instrument_id = ?")
		args = append(args, filter.InstrumentID)
	}
	if filter.Function != "" {
		conditions = append(conditions, "function = ?")
		args = append(args, filter.Function)
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "taken_at >= ?")
		args = append(args, filter.Since.UTC().Format(time.RFC3339))
	}
	if !filter.Until.IsZero() {
		conditions = append(conditions, "taken_at < ?")
		args = append(args, filter.Until.UTC().Format(time.RFC3339))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	// Get total count.
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM measurements %s", where) //nolint:gosec // WHERE built from parameterised conditions, not user input
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting measurements: %w", err)
	}

	// Get paginated results.
	query := fmt.Sprintf( //nolint:gosec // WHERE built from parameterised conditions, not user input
		"SELECT id, instrument_id, function, value, out_of_range, taken_at FROM measurements %s ORDER BY taken_at DESC LIMIT ? OFFSET ?",
		where,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying measurements: %w", err)
	}
	defer rows.Close()

	measurements := []Measurement{}
	for rows.Next() {
		var m Measurement
		var outOfRange int
		var takenAt string

		if err := rows.Scan(&m.ID, &m.InstrumentID, &m.Function, &m.Value, &outOfRange, &takenAt); err != nil {
			return nil, fmt.Errorf("scanning measurement: %w", err)
		}

		m.OutOfRange = outOfRange != 0

		t, err := parseArchiveTimestamp(takenAt)
		if err != nil {
			return nil, fmt.Errorf("parsing measurement timestamp %q: %w", takenAt, err)
		}
		m.TakenAt = t

		measurements = append(measurements, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating measurements: %w", err)
	}

	return &MeasurementList{
		Measurements: measurements,
		Total:        total,
		Limit:        filter.Limit,
		Offset:       filter.Offset,
	}, nil
}

// ListAttributeWrites returns attribute writes matching the filter, newest first.
func (r *SQLiteRepository) ListAttributeWrites(ctx context.Context, filter AttributeWriteFilter) (*AttributeWriteList, error) {
	filter.Limit, filter.Offset = clampPage(filter.Limit, filter.Offset)

	var conditions []string
	var args []any

	if filter.InstrumentID != "" {
		conditions = append(conditions, "instrument_id = ?")
		args = append(args, filter.InstrumentID)
	}
	if filter.Path != "" {
		conditions = append(conditions, "path = ?")
		args = append(args, filter.Path)
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "written_at >= ?")
		args = append(args, filter.Since.UTC().Format(time.RFC3339))
	}
	if !filter.Until.IsZero() {
		conditions = append(conditions, "written_at < ?")
		args = append(args, filter.Until.UTC().Format(time.RFC3339))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM attribute_writes %s", where) //nolint:gosec // WHERE built from parameterised conditions, not user input
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting attribute writes: %w", err)
	}

	query := fmt.Sprintf( //nolint:gosec // WHERE built from parameterised conditions, not user input
		"SELECT id, instrument_id, path, idx, value, written_at FROM attribute_writes %s ORDER BY written_at DESC LIMIT ? OFFSET ?",
		where,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying attribute writes: %w", err)
	}
	defer rows.Close()

	writes := []AttributeWrite{}
	for rows.Next() {
		var w AttributeWrite
		var writtenAt string

		if err := rows.Scan(&w.ID, &w.InstrumentID, &w.Path, &w.Index, &w.Value, &writtenAt); err != nil {
			return nil, fmt.Errorf("scanning attribute write: %w", err)
		}

		t, err := parseArchiveTimestamp(writtenAt)
		if err != nil {
			return nil, fmt.Errorf("parsing attribute write timestamp %q: %w", writtenAt, err)
		}
		w.WrittenAt = t

		writes = append(writes, w)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating attribute writes: %w", err)
	}

	return &AttributeWriteList{
		Writes: writes,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}

// Stats returns record counts and the overall time span of the archive.
func (r *SQLiteRepository) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM measurements").Scan(&stats.Measurements); err != nil {
		return nil, fmt.Errorf("counting measurements: %w", err)
	}
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM attribute_writes").Scan(&stats.AttributeWrites); err != nil {
		return nil, fmt.Errorf("counting attribute writes: %w", err)
	}

	var oldest, newest sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT MIN(ts), MAX(ts) FROM (
		   SELECT taken_at AS ts FROM measurements
		   UNION ALL
		   SELECT written_at AS ts FROM attribute_writes
		 )`,
	).Scan(&oldest, &newest)
	if err != nil {
		return nil, fmt.Errorf("querying archive time span: %w", err)
	}

	if oldest.Valid {
		t, err := parseArchiveTimestamp(oldest.String)
		if err != nil {
			return nil, fmt.Errorf("parsing oldest record timestamp %q: %w", oldest.String, err)
		}
		stats.OldestRecord = &t
	}
	if newest.Valid {
		t, err := parseArchiveTimestamp(newest.String)
		if err != nil {
			return nil, fmt.Errorf("parsing newest record timestamp %q: %w", newest.String, err)
		}
		stats.NewestRecord = &t
	}

	return stats, nil
}

// Prune deletes archive records older than the given duration from both
// tables and returns the total number of rows removed.
func (r *SQLiteRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)

	var pruned int64

	result, err := r.db.ExecContext(ctx, "DELETE FROM measurements WHERE taken_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning measurements: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	pruned += n

	result, err = r.db.ExecContext(ctx, "DELETE FROM attribute_writes WHERE written_at < ?", cutoff)
	if err != nil {
		return pruned, fmt.Errorf("pruning attribute writes: %w", err)
	}
	n, err = result.RowsAffected()
	if err != nil {
		return pruned, fmt.Errorf("checking rows affected: %w", err)
	}
	pruned += n

	return pruned, nil
}

// clampPage applies the default and maximum page bounds.
func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// boolToInt converts a bool to 0/1 for SQLite INTEGER columns.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// parseArchiveTimestamp parses a timestamp stored in SQLite.
func parseArchiveTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("timestamp is empty")
	}

	timestamp, err := time.Parse(time.RFC3339, value)
	if err == nil {
		return timestamp, nil
	}

	fallback, fallbackErr := time.Parse("2006-01-02T15:04:05Z", value)
	if fallbackErr == nil {
		return fallback, nil
	}

	return time.Time{}, err
}
