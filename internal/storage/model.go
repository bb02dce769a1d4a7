package storage

import (
	"time"

	"github.com/roman-kulish/flight-control/internal/status"
)

// Flight is a single run of the flight controller
type Flight struct {
	ID        string
	StartTime time.Time
	Mode      string
	Config    *string // Controller configuration at start, JSON
}

// SampleRecord is a stored sensor sample
type SampleRecord struct {
	Timestamp time.Time
	Altitude  float64
	Latitude  float64
	Longitude float64
	GyroX     float64
	GyroY     float64
	GyroZ     float64
}

// StatusEvent is a stored status report
type StatusEvent struct {
	Timestamp     time.Time
	QDM           status.Flag
	Ignition      status.Flag
	Stabilization status.Flag
}
