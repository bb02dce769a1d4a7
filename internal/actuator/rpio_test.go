package actuator

import (
	"errors"
	"testing"

	"github.com/stianeikeland/go-rpio/v4"
)

type fakeLine struct {
	output bool
	state  rpio.State
	stuck  bool
}

func (l *fakeLine) Input()  { l.output = false }
func (l *fakeLine) Output() { l.output = true }

func (l *fakeLine) Write(state rpio.State) {
	if !l.stuck {
		l.state = state
	}
}

func (l *fakeLine) Read() rpio.State {
	return l.state
}

func newFakeLines() map[Pin]*fakeLine {
	return map[Pin]*fakeLine{
		PinQDM:           {},
		PinIgnition:      {},
		PinStabilization: {},
		PinLoggingEnable: {},
	}
}

func openFake(fakes map[Pin]*fakeLine, unmap func() error) *RPIOOutput {
	lines := make(map[Pin]gpioLine, len(fakes))
	for p, l := range fakes {
		lines[p] = l
	}
	return newRPIOOutput(lines, unmap)
}

func TestRPIOOutput_SetLevel(t *testing.T) {
	fakes := newFakeLines()
	fakes[PinIgnition].stuck = true

	out := openFake(fakes, func() error { return nil })

	for p, l := range fakes {
		if !l.output {
			t.Errorf("Pin %s should be configured as output", p)
		}
	}

	if err := out.SetLevel(PinQDM, High); err != nil {
		t.Fatalf("SetLevel failed: %v", err)
	}
	if fakes[PinQDM].state != rpio.High {
		t.Error("Expected QDM line high")
	}

	var fault *HardwareFault
	if err := out.SetLevel(PinIgnition, High); !errors.As(err, &fault) || fault.Pin != PinIgnition {
		t.Errorf("Expected hardware fault on read back mismatch, got %v", err)
	}
}

func TestRPIOOutput_CloseReleasesLines(t *testing.T) {
	fakes := newFakeLines()

	var unmapped int
	out := openFake(fakes, func() error {
		unmapped++
		return nil
	})

	if err := out.SetLevel(PinStabilization, High); err != nil {
		t.Fatalf("SetLevel failed: %v", err)
	}

	if err := out.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := out.Close(); err != nil {
		t.Fatalf("Second Close failed: %v", err)
	}

	for p, l := range fakes {
		if l.output {
			t.Errorf("Pin %s should be released to input", p)
		}
	}
	if unmapped != 1 {
		t.Errorf("Expected registers unmapped once, got %d", unmapped)
	}
	if err := out.SetLevel(PinQDM, High); !errors.Is(err, ErrOutputClosed) {
		t.Errorf("Expected ErrOutputClosed after Close, got %v", err)
	}
}
