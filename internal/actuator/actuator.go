package actuator

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// WithLogger sets the logger for the actuators
func WithLogger(logger *slog.Logger) func(a *Actuators) {
	return func(a *Actuators) {
		a.logger = logger.With(slog.String("component", "actuators"))
	}
}

// WithSleep replaces the function used to time pulses and grace periods
func WithSleep(sleep func(time.Duration)) func(a *Actuators) {
	return func(a *Actuators) {
		a.sleep = sleep
	}
}

// Actuators drives the payload actuators through a digital output. Every
// operation holds the same mutex, so nothing can touch the outputs while an
// ignition pulse is in progress.
type Actuators struct {
	out   Output
	sleep func(time.Duration)

	mu     sync.Mutex
	logger *slog.Logger
}

// New creates actuators on top of the given output with a discard logger
func New(out Output, options ...func(a *Actuators)) *Actuators {
	a := Actuators{
		out:    out,
		sleep:  time.Sleep,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&a)
	}

	return &a
}

// Init drives every line to its safe startup level: QDM disengaged, ignition
// and stabilization off, logging-enable high.
func (a *Actuators) Init() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	steps := []struct {
		pin   Pin
		level Level
	}{
		{PinQDM, Low},
		{PinIgnition, Low},
		{PinStabilization, Low},
		{PinLoggingEnable, High},
	}
	for _, step := range steps {
		if err := a.set(step.pin, step.level); err != nil {
			return fmt.Errorf("initializing outputs: %w", err)
		}
	}

	a.logger.Info("outputs initialized")
	return nil
}

// SetQDM engages (high) or disengages (low) the quick-disconnect relay
func (a *Actuators) SetQDM(engage bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.set(PinQDM, levelOf(engage))
}

// SetStabilization turns the stabilization line on or off
func (a *Actuators) SetStabilization(active bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.set(PinStabilization, levelOf(active))
}

// SetLogging drives the logging-enable line
func (a *Actuators) SetLogging(enabled bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.set(PinLoggingEnable, levelOf(enabled))
}

// PulseIgnition holds the ignition line high for d and then drives it low.
// The call blocks for the whole pulse and cannot be interrupted.
func (a *Actuators) PulseIgnition(d time.Duration) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.pulse(PinIgnition, d)
}

// Sequence runs fn with exclusive access to the outputs. It is used for
// multi-step sequences that must not interleave with other actuator calls.
func (a *Actuators) Sequence(fn func(s *Sequencer) error) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	return fn(&Sequencer{a: a})
}

// Close releases the underlying output
func (a *Actuators) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.out.Close()
}

func (a *Actuators) set(pin Pin, level Level) error {
	if err := a.out.SetLevel(pin, level); err != nil {
		var fault *HardwareFault
		if !errors.As(err, &fault) {
			fault = NewHardwareFault(pin, level, err)
		}
		a.logger.Error(fault.Error())
		return fault
	}

	a.logger.Debug("output set", slog.String("pin", pin.String()), slog.String("level", level.String()))
	return nil
}

func (a *Actuators) pulse(pin Pin, d time.Duration) error {
	if err := a.set(pin, High); err != nil {
		return err
	}

	a.sleep(d)

	return a.set(pin, Low)
}

// Sequencer exposes the actuator operations inside Actuators.Sequence. It must
// not be used after the sequence function returns.
type Sequencer struct {
	a *Actuators
}

func (s *Sequencer) SetLogging(enabled bool) error {
	return s.a.set(PinLoggingEnable, levelOf(enabled))
}

func (s *Sequencer) PulseIgnition(d time.Duration) error {
	return s.a.pulse(PinIgnition, d)
}

func (s *Sequencer) Wait(d time.Duration) {
	s.a.sleep(d)
}

func levelOf(on bool) Level {
	if on {
		return High
	}
	return Low
}
