package actuator

import "fmt"

// HardwareFault is returned when a digital output could not be driven
type HardwareFault struct {
	Pin   Pin
	Level Level
	Err   error
}

func NewHardwareFault(pin Pin, level Level, err error) *HardwareFault {
	return &HardwareFault{Pin: pin, Level: level, Err: err}
}

func (e *HardwareFault) Error() string {
	return fmt.Sprintf("hardware fault: setting %s %s: %s", e.Pin, e.Level, e.Err)
}

func (e *HardwareFault) Unwrap() error {
	return e.Err
}
