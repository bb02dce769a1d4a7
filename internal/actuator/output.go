package actuator

import (
	"fmt"
	"strconv"
)

const (
	PinQDM Pin = iota
	PinIgnition
	PinStabilization
	PinLoggingEnable
)

const (
	Low Level = iota
	High
)

// Pin is a logical actuator line
type Pin int

func (p Pin) String() string {
	switch p {
	case PinQDM:
		return "qdm"
	case PinIgnition:
		return "ignition"
	case PinStabilization:
		return "stabilization"
	case PinLoggingEnable:
		return "logging-enable"
	default:
		return "pin(" + strconv.Itoa(int(p)) + ")"
	}
}

// Level is a digital output level
type Level int

func (l Level) String() string {
	if l == High {
		return "high"
	}
	return "low"
}

// Output is the digital-output capability the actuators are driven through
type Output interface {
	SetLevel(pin Pin, level Level) error
	Close() error
}

// PinMap assigns a BCM GPIO number to every logical pin
type PinMap struct {
	QDM           int `yaml:"qdm" json:"qdm"`
	Ignition      int `yaml:"ignition" json:"ignition"`
	Stabilization int `yaml:"stabilization" json:"stabilization"`
	LoggingEnable int `yaml:"loggingEnable" json:"loggingEnable"`
}

// DefaultPinMap returns the flight computer wiring
func DefaultPinMap() PinMap {
	return PinMap{
		QDM:           13,
		Ignition:      6,
		Stabilization: 21,
		LoggingEnable: 22,
	}
}

// BCM returns the GPIO number for the logical pin
func (m PinMap) BCM(p Pin) (int, error) {
	switch p {
	case PinQDM:
		return m.QDM, nil
	case PinIgnition:
		return m.Ignition, nil
	case PinStabilization:
		return m.Stabilization, nil
	case PinLoggingEnable:
		return m.LoggingEnable, nil
	default:
		return 0, fmt.Errorf("unknown pin: %s", p)
	}
}

// Validate checks that every pin has a distinct, valid BCM number
func (m PinMap) Validate() error {
	seen := make(map[int]Pin, 4)
	for _, p := range []Pin{PinQDM, PinIgnition, PinStabilization, PinLoggingEnable} {
		n, _ := m.BCM(p)
		if n < 0 || n > 27 {
			return fmt.Errorf("actuator.PinMap: %s: invalid BCM pin %d", p, n)
		}
		if other, ok := seen[n]; ok {
			return fmt.Errorf("actuator.PinMap: %s and %s share BCM pin %d", other, p, n)
		}
		seen[n] = p
	}
	return nil
}
