package app

import (
	"encoding/json"
	"math"
	"time"

	"github.com/roman-kulish/flight-control/internal/flight"
	"github.com/roman-kulish/flight-control/internal/sensor"
	"github.com/roman-kulish/flight-control/internal/storage"
	"github.com/roman-kulish/flight-control/internal/telemetry"
)

// Point is a recorded sample reduced to what the chart plots
type Point struct {
	Timestamp time.Time
	Altitude  float64
	SpinRate  float64 // Filtered, as the controller saw it
}

// FlightSeries accumulates one flight worth of samples and status reports
type FlightSeries struct {
	Flight *storage.Flight
	Limits flight.Limits

	Points []Point
	Events []storage.StatusEvent

	TimestampStart, TimestampEnd time.Time
	AltitudeMin, AltitudeMax     float64
	SpinRateMax                  float64

	// InWindow counts samples that satisfied the launch condition
	InWindow int

	history *sensor.History
}

// recordedConfig is the part of the stored controller configuration the chart
// cares about
type recordedConfig struct {
	Flight struct {
		Limits *struct {
			MinAltitude float64 `json:"minAltitude"`
			MaxAltitude float64 `json:"maxAltitude"`
			MaxSpinRate float64 `json:"maxSpinRate"`
		} `json:"limits"`
	} `json:"flight"`
}

func NewFlightSeries(f *storage.Flight) *FlightSeries {
	return &FlightSeries{
		Flight:      f,
		Limits:      limitsOf(f),
		AltitudeMin: math.MaxFloat64,
		AltitudeMax: -math.MaxFloat64,
		history:     sensor.NewHistory(),
	}
}

// limitsOf returns the launch window the flight ran with, falling back to the
// defaults when the configuration was not recorded or cannot be read
func limitsOf(f *storage.Flight) flight.Limits {
	limits := flight.DefaultLimits()
	if f == nil || f.Config == nil {
		return limits
	}

	var config recordedConfig
	if err := json.Unmarshal([]byte(*f.Config), &config); err != nil || config.Flight.Limits == nil {
		return limits
	}

	recorded := flight.Limits{
		MinAltitude: config.Flight.Limits.MinAltitude,
		MaxAltitude: config.Flight.Limits.MaxAltitude,
		MaxSpinRate: config.Flight.Limits.MaxSpinRate,
	}
	if recorded.Validate() != nil {
		return limits
	}
	return recorded
}

func (s *FlightSeries) Update(rec *storage.SampleRecord) {
	if rec == nil {
		return
	}

	s.history.Ingest(&telemetry.Sample{
		Timestamp: rec.Timestamp,
		GPS:       telemetry.GPS{Altitude: rec.Altitude, Latitude: rec.Latitude, Longitude: rec.Longitude},
		Gyro:      telemetry.Gyro{X: rec.GyroX, Y: rec.GyroY, Z: rec.GyroZ},
	})

	// cannot fail, the history holds at least the sample above
	spin, _ := s.history.FilteredSpinRate()

	if s.TimestampStart.IsZero() || s.TimestampStart.After(rec.Timestamp) {
		s.TimestampStart = rec.Timestamp
	}
	if s.TimestampEnd.IsZero() || s.TimestampEnd.Before(rec.Timestamp) {
		s.TimestampEnd = rec.Timestamp
	}

	s.AltitudeMin = min(s.AltitudeMin, rec.Altitude)
	s.AltitudeMax = max(s.AltitudeMax, rec.Altitude)
	s.SpinRateMax = max(s.SpinRateMax, spin)

	if s.Limits.InAltitudeWindow(rec.Altitude) && spin <= s.Limits.MaxSpinRate {
		s.InWindow++
	}

	s.Points = append(s.Points, Point{
		Timestamp: rec.Timestamp,
		Altitude:  rec.Altitude,
		SpinRate:  spin,
	})
}

// AddEvents attaches the status reports sent during the flight. Reports
// outside the sampled time range widen it.
func (s *FlightSeries) AddEvents(events []storage.StatusEvent) {
	for _, e := range events {
		if s.TimestampStart.IsZero() || s.TimestampStart.After(e.Timestamp) {
			s.TimestampStart = e.Timestamp
		}
		if s.TimestampEnd.IsZero() || s.TimestampEnd.Before(e.Timestamp) {
			s.TimestampEnd = e.Timestamp
		}
	}
	s.Events = append(s.Events, events...)
}

func (s *FlightSeries) Empty() bool {
	return len(s.Points) == 0 && len(s.Events) == 0
}

// Duration is the time covered by the series
func (s *FlightSeries) Duration() time.Duration {
	return s.TimestampEnd.Sub(s.TimestampStart)
}
