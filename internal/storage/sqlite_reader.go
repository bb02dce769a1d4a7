package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SampleReader provides an iterator-based interface for reading the samples
// of a flight with an optional time filter.
type SampleReader interface {
	// Flight returns the flight this reader is accessing.
	Flight() *Flight

	// Next advances the iterator and returns true if there is another sample
	// to read, false when the iteration is complete or if an error occurred.
	Next(context.Context) bool

	// Current returns the current sample. If called after Next() returns
	// false, the behavior is undefined.
	Current() *SampleRecord

	// Error returns any error that occurred during iteration.
	Error() error

	// Close releases any resources associated with the reader.
	Close() error
}

// ReaderOption configures a SampleReader
type ReaderOption func(*SqliteSampleReader)

// WithStartTime excludes samples taken before t
func WithStartTime(t time.Time) ReaderOption {
	return func(r *SqliteSampleReader) {
		r.startTime = &t
	}
}

// WithEndTime excludes samples taken after t
func WithEndTime(t time.Time) ReaderOption {
	return func(r *SqliteSampleReader) {
		r.endTime = &t
	}
}

// WithTimeRange sets both start and end time filters
func WithTimeRange(startTime, endTime time.Time) ReaderOption {
	return func(r *SqliteSampleReader) {
		r.startTime = &startTime
		r.endTime = &endTime
	}
}

func newSqliteSampleReader(ctx context.Context, db *sql.DB, flightID string, opts ...ReaderOption) (*SqliteSampleReader, error) {
	sr := &SqliteSampleReader{
		db:       db,
		flightID: flightID,
	}
	for _, opt := range opts {
		opt(sr)
	}
	if err := sr.init(ctx); err != nil {
		return nil, fmt.Errorf("initializing reader: %w", err)
	}
	return sr, nil
}

// SqliteSampleReader implements SampleReader for the Sqlite backend
type SqliteSampleReader struct {
	db *sql.DB

	flightID string
	flight   *Flight

	startTime *time.Time // Optional start of time range filter
	endTime   *time.Time // Optional end of time range filter

	current *SampleRecord
	rows    *sql.Rows
	err     error
}

func (sr *SqliteSampleReader) init(ctx context.Context) error {
	if sr.db == nil {
		return errors.New("database connection required")
	}
	if sr.flightID == "" {
		return errors.New("flight ID required")
	}

	steps := []struct {
		msg string
		fn  func(context.Context) error
	}{
		{msg: "loading flight", fn: sr.loadFlight},
		{msg: "initializing filters", fn: sr.initFilters},
		{msg: "initializing query", fn: sr.initQuery},
	}
	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			return fmt.Errorf("%s: %w", s.msg, err)
		}
	}
	return nil
}

func (sr *SqliteSampleReader) loadFlight(ctx context.Context) (err error) {
	stmt, err := sr.db.PrepareContext(ctx, selectFlightSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	var data flightData
	if err = stmt.QueryRowContext(ctx, sr.flightID).Scan(&data.ID, &data.StartTime, &data.Mode, &data.Config); err != nil {
		return fmt.Errorf("querying flight: %w", err)
	}

	sr.flight = toFlight(&data)
	return
}

func (sr *SqliteSampleReader) initFilters(context.Context) error {
	if sr.startTime != nil && sr.endTime != nil && sr.startTime.After(*sr.endTime) {
		return fmt.Errorf("start time %s is after end time %s", sr.startTime, sr.endTime)
	}

	if sr.startTime == nil {
		start := time.Time{}
		sr.startTime = &start
	}
	if sr.endTime == nil {
		end := time.Date(9999, time.December, 31, 23, 59, 59, 0, time.UTC)
		sr.endTime = &end
	}

	start, end := sr.startTime.UTC(), sr.endTime.UTC()
	sr.startTime, sr.endTime = &start, &end
	return nil
}

func (sr *SqliteSampleReader) initQuery(ctx context.Context) (err error) {
	if sr.rows, err = sr.db.QueryContext(ctx, selectSamplesSQL, sr.flightID, *sr.startTime, *sr.endTime); err != nil {
		return fmt.Errorf("querying samples: %w", err)
	}
	return nil
}

func (sr *SqliteSampleReader) Flight() *Flight {
	return sr.flight
}

func (sr *SqliteSampleReader) Next(ctx context.Context) bool {
	if sr.err != nil || sr.rows == nil {
		return false
	}

	select {
	case <-ctx.Done():
		sr.err = ctx.Err()
		return false
	default:
	}

	if !sr.rows.Next() {
		return false
	}

	var rec SampleRecord
	if err := sr.rows.Scan(&rec.Timestamp, &rec.Altitude, &rec.Latitude, &rec.Longitude, &rec.GyroX, &rec.GyroY, &rec.GyroZ); err != nil {
		sr.err = fmt.Errorf("scanning sample: %w", err)
		return false
	}

	sr.current = &rec
	return true
}

func (sr *SqliteSampleReader) Current() *SampleRecord {
	return sr.current
}

func (sr *SqliteSampleReader) Error() error {
	if sr.err != nil {
		return sr.err
	}
	if sr.rows != nil {
		return sr.rows.Err()
	}
	return nil
}

func (sr *SqliteSampleReader) Close() error {
	if sr.rows != nil {
		err := sr.rows.Close()
		sr.current = nil
		sr.rows = nil
		return err
	}
	return nil
}
