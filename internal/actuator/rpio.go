package actuator

import (
	"fmt"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"
)

// gpioLine is the part of rpio.Pin the output needs
type gpioLine interface {
	Input()
	Output()
	Write(state rpio.State)
	Read() rpio.State
}

// RPIOOutput drives BCM GPIO lines through /dev/gpiomem
type RPIOOutput struct {
	mu    sync.Mutex
	lines map[Pin]gpioLine
	unmap func() error
	open  bool
}

// OpenRPIO maps the GPIO registers and configures every pin of m as an
// output. Failing here is fatal: no actuation is possible without it.
func OpenRPIO(m PinMap) (*RPIOOutput, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("opening gpio: %w", err)
	}

	lines := make(map[Pin]gpioLine, 4)
	for _, p := range []Pin{PinQDM, PinIgnition, PinStabilization, PinLoggingEnable} {
		n, _ := m.BCM(p)
		lines[p] = rpio.Pin(n)
	}

	return newRPIOOutput(lines, rpio.Close), nil
}

func newRPIOOutput(lines map[Pin]gpioLine, unmap func() error) *RPIOOutput {
	for _, line := range lines {
		line.Output()
	}

	return &RPIOOutput{
		lines: lines,
		unmap: unmap,
		open:  true,
	}
}

// SetLevel writes the level and reads it back; a mismatch is reported as a
// fault since the register write itself cannot fail.
func (o *RPIOOutput) SetLevel(p Pin, level Level) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.open {
		return NewHardwareFault(p, level, ErrOutputClosed)
	}

	line, ok := o.lines[p]
	if !ok {
		return NewHardwareFault(p, level, fmt.Errorf("pin not configured"))
	}

	state := rpio.Low
	if level == High {
		state = rpio.High
	}

	line.Write(state)
	if got := line.Read(); got != state {
		return NewHardwareFault(p, level, fmt.Errorf("read back %d, expected %d", got, state))
	}

	return nil
}

// Close switches every line back to input, releasing whatever it was driving,
// and unmaps the GPIO registers.
func (o *RPIOOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.open {
		return nil
	}
	o.open = false

	for _, line := range o.lines {
		line.Input()
	}

	return o.unmap()
}
