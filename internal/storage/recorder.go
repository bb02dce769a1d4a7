package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/roman-kulish/flight-control/internal/status"
	"github.com/roman-kulish/flight-control/internal/telemetry"
)

// DefaultBatchSize is the number of samples buffered before they are written
const DefaultBatchSize = 50

// WithLogger sets the logger for the recorder
func WithLogger(logger *slog.Logger) func(r *Recorder) {
	return func(r *Recorder) {
		r.logger = logger.With(slog.String("component", "recorder"))
	}
}

// WithBatchSize sets the number of samples written per transaction
func WithBatchSize(n int) func(r *Recorder) {
	return func(r *Recorder) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// Recorder writes the samples and status reports of one flight. Samples are
// buffered and written in batches; status reports are written immediately.
type Recorder struct {
	store    Store
	flightID string

	batchSize int
	mu        sync.Mutex
	pending   []*telemetry.Sample

	logger *slog.Logger
}

// NewRecorder creates a recorder for an existing flight
func NewRecorder(store Store, flightID string, options ...func(r *Recorder)) *Recorder {
	r := Recorder{
		store:     store,
		flightID:  flightID,
		batchSize: DefaultBatchSize,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&r)
	}

	r.pending = make([]*telemetry.Sample, 0, r.batchSize)
	return &r
}

// FlightID returns the flight the recorder writes to
func (r *Recorder) FlightID() string {
	return r.flightID
}

// RecordSample buffers s and writes the buffer once it is full
func (r *Recorder) RecordSample(ctx context.Context, s *telemetry.Sample) error {
	if s == nil {
		return nil
	}

	r.mu.Lock()
	r.pending = append(r.pending, s)
	if len(r.pending) < r.batchSize {
		r.mu.Unlock()
		return nil
	}
	batch := r.pending
	r.pending = make([]*telemetry.Sample, 0, r.batchSize)
	r.mu.Unlock()

	return r.write(ctx, batch)
}

// RecordStatus writes a status report
func (r *Recorder) RecordStatus(ctx context.Context, msg status.Message) error {
	if err := r.store.StoreStatus(ctx, r.flightID, msg); err != nil {
		return fmt.Errorf("recording status: %w", err)
	}
	return nil
}

// Flush writes the buffered samples
func (r *Recorder) Flush(ctx context.Context) error {
	r.mu.Lock()
	batch := r.pending
	r.pending = make([]*telemetry.Sample, 0, r.batchSize)
	r.mu.Unlock()

	return r.write(ctx, batch)
}

func (r *Recorder) write(ctx context.Context, batch []*telemetry.Sample) error {
	if len(batch) == 0 {
		return nil
	}

	if err := r.store.StoreSamples(ctx, r.flightID, batch); err != nil {
		return fmt.Errorf("recording %d samples: %w", len(batch), err)
	}

	r.logger.Debug("samples recorded", slog.Int("count", len(batch)))
	return nil
}
