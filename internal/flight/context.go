package flight

import (
	"fmt"
	"strings"
	"time"
)

const (
	ModeTest Mode = iota + 1
	ModePrelaunch
)

// Mode selects the ignition sequence
type Mode int

func (m Mode) String() string {
	switch m {
	case ModeTest:
		return "test"
	case ModePrelaunch:
		return "prelaunch"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode parses "test" or "prelaunch"
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "test":
		return ModeTest, nil
	case "prelaunch", "pre-launch":
		return ModePrelaunch, nil
	default:
		return 0, fmt.Errorf("invalid flight mode: %q", s)
	}
}

// Limits are the launch window the safety gates check against
type Limits struct {
	MinAltitude float64 // Meters, inclusive
	MaxAltitude float64 // Meters, inclusive
	MaxSpinRate float64 // Degrees per second, exclusive
}

// DefaultLimits returns the launch window used in flight
func DefaultLimits() Limits {
	return Limits{
		MinAltitude: 24500,
		MaxAltitude: 25500,
		MaxSpinRate: 5,
	}
}

// InAltitudeWindow returns true if alt is within [MinAltitude, MaxAltitude]
func (l Limits) InAltitudeWindow(alt float64) bool {
	return alt >= l.MinAltitude && alt <= l.MaxAltitude
}

// Validate checks the limits are usable
func (l Limits) Validate() error {
	if l.MinAltitude > l.MaxAltitude {
		return fmt.Errorf("flight.Limits: min altitude %.1f above max altitude %.1f", l.MinAltitude, l.MaxAltitude)
	}
	if l.MaxSpinRate <= 0 {
		return fmt.Errorf("flight.Limits: max spin rate must be positive: %.2f", l.MaxSpinRate)
	}
	return nil
}

// Timings are the durations of the ignition sequences
type Timings struct {
	TestPulse      time.Duration // Ignition pulse in test mode
	PrelaunchPulse time.Duration // Ignition pulse in prelaunch mode
	LoggerGrace    time.Duration // Wait between dropping the logging line and firing
}

// DefaultTimings returns the flight ignition timings
func DefaultTimings() Timings {
	return Timings{
		TestPulse:      100 * time.Millisecond,
		PrelaunchPulse: 10 * time.Second,
		LoggerGrace:    5 * time.Second,
	}
}

// Validate checks the timings are usable
func (t Timings) Validate() error {
	if t.TestPulse <= 0 || t.PrelaunchPulse <= 0 {
		return fmt.Errorf("flight.Timings: ignition pulses must be positive: test=%s, prelaunch=%s", t.TestPulse, t.PrelaunchPulse)
	}
	if t.LoggerGrace < 0 {
		return fmt.Errorf("flight.Timings: logger grace must not be negative: %s", t.LoggerGrace)
	}
	return nil
}

// Snapshot is a copy of the controller state
type Snapshot struct {
	Altitude    *float64 // Last known altitude, nil before the first sample
	SpinRate    *float64 // Last computed spin rate, nil before the first evaluation
	Mode        Mode
	LinkHealthy bool
	QDMEngaged  bool
	Ignited     bool
	Stabilized  bool
}

// flightContext is the mutable controller state
type flightContext struct {
	altitude    *float64
	spinRate    *float64
	mode        Mode
	linkHealthy bool

	qdmEngaged bool
	ignited    bool
	stabilized bool
}

func (c *flightContext) snapshot() Snapshot {
	s := Snapshot{
		Mode:        c.mode,
		LinkHealthy: c.linkHealthy,
		QDMEngaged:  c.qdmEngaged,
		Ignited:     c.ignited,
		Stabilized:  c.stabilized,
	}
	if c.altitude != nil {
		alt := *c.altitude
		s.Altitude = &alt
	}
	if c.spinRate != nil {
		rate := *c.spinRate
		s.SpinRate = &rate
	}
	return s
}
