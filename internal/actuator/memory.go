package actuator

import (
	"errors"
	"sync"
	"time"
)

// ErrOutputClosed is returned when driving an output after Close
var ErrOutputClosed = errors.New("output closed")

// Event records a single level change on a MemoryOutput
type Event struct {
	Time  time.Time
	Pin   Pin
	Level Level
}

// MemoryOutput is an in-memory digital output. It backs the simulated GPIO
// backend used on the bench and records every level change.
type MemoryOutput struct {
	mu     sync.Mutex
	levels map[Pin]Level
	events []Event
	faults map[Pin]error
	closed bool
}

// NewMemoryOutput creates an in-memory output with every pin low
func NewMemoryOutput() *MemoryOutput {
	return &MemoryOutput{
		levels: make(map[Pin]Level),
		faults: make(map[Pin]error),
	}
}

func (m *MemoryOutput) SetLevel(pin Pin, level Level) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrOutputClosed
	}
	if err := m.faults[pin]; err != nil {
		return err
	}

	m.levels[pin] = level
	m.events = append(m.events, Event{Time: time.Now(), Pin: pin, Level: level})
	return nil
}

func (m *MemoryOutput) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

// Level returns the current level of pin
func (m *MemoryOutput) Level(pin Pin) Level {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.levels[pin]
}

// Events returns a copy of all recorded level changes, oldest first
func (m *MemoryOutput) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]Event(nil), m.events...)
}

// InjectFault makes every subsequent SetLevel on pin fail with err. A nil err
// clears the fault.
func (m *MemoryOutput) InjectFault(pin Pin, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err == nil {
		delete(m.faults, pin)
		return
	}
	m.faults[pin] = err
}
