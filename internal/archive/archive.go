// Package archive provides the local measurement archive: every completed
// measurement and every attribute write is recorded to SQLite so bench
// history survives restarts and stays queryable when the time-series
// database is unavailable.
package archive

import (
	"context"
	"time"
)

// Measurement represents one archived instrument reading.
type Measurement struct {
	ID           string    `json:"id"`
	InstrumentID string    `json:"instrument_id"`
	Function     string    `json:"function"`
	Value        float64   `json:"value"`
	OutOfRange   bool      `json:"out_of_range"`
	TakenAt      time.Time `json:"taken_at"`
}

// AttributeWrite represents one archived attribute change.
type AttributeWrite struct {
	ID           string    `json:"id"`
	InstrumentID string    `json:"instrument_id"`
	Path         string    `json:"path"`
	Index        int       `json:"index"`
	Value        string    `json:"value"`
	WrittenAt    time.Time `json:"written_at"`
}

// MeasurementFilter controls which archived measurements to return.
type MeasurementFilter struct {
	InstrumentID string    // optional: filter by instrument
	Function     string    // optional: filter by measurement function (current, power, ...)
	Since        time.Time // optional: only readings taken at or after this time
	Until        time.Time // optional: only readings taken before this time
	Limit        int       // default 50, max 500
	Offset       int       // pagination offset
}

// AttributeWriteFilter controls which archived attribute writes to return.
type AttributeWriteFilter struct {
	InstrumentID string    // optional: filter by instrument
	Path         string    // optional: filter by attribute path
	Since        time.Time // optional: only writes at or after this time
	Until        time.Time // optional: only writes before this time
	Limit        int       // default 50, max 500
	Offset       int       // pagination offset
}

// MeasurementList contains paginated measurement results.
type MeasurementList struct {
	Measurements []Measurement `json:"measurements"`
	Total        int           `json:"total"`
	Limit        int           `json:"limit"`
	Offset       int           `json:"offset"`
}

// AttributeWriteList contains paginated attribute write results.
type AttributeWriteList struct {
	Writes []AttributeWrite `json:"writes"`
	Total  int              `json:"total"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

// Stats summarises the archive contents.
type Stats struct {
	Measurements    int64      `json:"measurements"`
	AttributeWrites int64      `json:"attribute_writes"`
	OldestRecord    *time.Time `json:"oldest_record,omitempty"`
	NewestRecord    *time.Time `json:"newest_record,omitempty"`
}

// Repository defines the interface for archive operations.
type Repository interface {
	RecordMeasurement(ctx context.Context, m *Measurement) error
	RecordAttributeWrite(ctx context.Context, w *AttributeWrite) error
	ListMeasurements(ctx context.Context, filter MeasurementFilter) (*MeasurementList, error)
	ListAttributeWrites(ctx context.Context, filter AttributeWriteFilter) (*AttributeWriteList, error)
	Stats(ctx context.Context) (*Stats, error)
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}
