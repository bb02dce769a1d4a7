package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEmptySample is returned for a null or empty payload. Such lines carry
	// no reading and are skipped.
	ErrEmptySample = errors.New("empty sample")

	// ErrIncompleteSample is returned when either the GPS or the gyro part is missing
	ErrIncompleteSample = errors.New("incomplete sample")
)

// Provider exposes the latest sensor sample produced by the acquisition side.
type Provider interface {
	Latest() (*Sample, bool)
}

// GPS holds the position part of a sensor sample
type GPS struct {
	Altitude  float64 `json:"alt"` // Altitude in meters
	Latitude  float64 `json:"lat"` // Latitude in degrees
	Longitude float64 `json:"lon"` // Longitude in degrees
}

// Gyro holds the angular velocity part of a sensor sample
type Gyro struct {
	X float64 `json:"x"` // Degrees per second
	Y float64 `json:"y"` // Degrees per second
	Z float64 `json:"z"` // Degrees per second
}

// Sample is a single reading of the payload sensors. Once read from a
// Provider it must be treated as immutable.
type Sample struct {
	Timestamp time.Time `json:"time"` // Timestamp of sensor measurement
	GPS       GPS       `json:"GPS"`  // GPS fix
	Gyro      Gyro      `json:"gyro"` // Gyroscope reading
}

// Altitude is a helper returning the GPS altitude in meters
func (s *Sample) Altitude() float64 {
	return s.GPS.Altitude
}

// wireSample keeps the sample parts raw so absent and empty parts can be told
// apart from zero readings
type wireSample struct {
	Timestamp time.Time       `json:"time"`
	GPS       json.RawMessage `json:"GPS"`
	Gyro      json.RawMessage `json:"gyro"`
}

// ParseSample decodes a JSON encoded sample as produced by the acquisition
// process. A sample without a timestamp is stamped with the current time.
func ParseSample(p []byte) (*Sample, error) {
	var w wireSample
	if err := json.Unmarshal(p, &w); err != nil {
		return nil, fmt.Errorf("decoding sample: %w", err)
	}

	s := Sample{Timestamp: w.Timestamp}

	hasGPS, err := decodePart(w.GPS, &s.GPS)
	if err != nil {
		return nil, fmt.Errorf("decoding GPS: %w", err)
	}
	hasGyro, err := decodePart(w.Gyro, &s.Gyro)
	if err != nil {
		return nil, fmt.Errorf("decoding gyro: %w", err)
	}

	switch {
	case !hasGPS && !hasGyro:
		return nil, ErrEmptySample
	case !hasGPS:
		return nil, fmt.Errorf("%w: no GPS", ErrIncompleteSample)
	case !hasGyro:
		return nil, fmt.Errorf("%w: no gyro", ErrIncompleteSample)
	}

	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now().UTC()
	}
	return &s, nil
}

// decodePart decodes a sample part into v. It reports false when the part is
// absent, null or an empty object.
func decodePart(raw json.RawMessage, v any) (bool, error) {
	if len(raw) == 0 {
		return false, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return false, err
	}
	if len(fields) == 0 {
		return false, nil
	}

	if err := json.Unmarshal(raw, v); err != nil {
		return false, err
	}
	return true, nil
}
