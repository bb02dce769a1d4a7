package storage

import (
	"context"

	"github.com/roman-kulish/flight-control/internal/status"
	"github.com/roman-kulish/flight-control/internal/telemetry"
)

// Store persists what happens during a flight: the sensor samples received
// and the status reports sent to the ground station. All write operations are
// atomic.
type Store interface {
	// CreateFlight starts a new flight and returns its unique identifier.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - mode: Flight mode the controller runs in (e.g., "test", "prelaunch")
	//   - config: Optional controller configuration. Can be string, []byte, or JSON-serializable object
	//
	// Returns:
	//   - flightID: Unique identifier for the created flight
	//   - error: If flight creation fails or context is cancelled
	CreateFlight(ctx context.Context, mode string, config any) (flightID string, err error)

	// Flight retrieves a flight by its ID.
	Flight(ctx context.Context, id string) (*Flight, error)

	// Flights returns all flights ordered by start time.
	Flights(ctx context.Context) ([]*Flight, error)

	// StoreSamples saves sensor samples of a flight in a single transaction.
	StoreSamples(ctx context.Context, flightID string, samples []*telemetry.Sample) error

	// StoreStatus saves a status report of a flight.
	StoreStatus(ctx context.Context, flightID string, msg status.Message) error

	// StatusEvents returns the status reports of a flight in the order they
	// were stored.
	StatusEvents(ctx context.Context, flightID string) ([]StatusEvent, error)

	// Close releases all database connections and resources.
	// It is safe to call Close multiple times.
	Close() error
}
