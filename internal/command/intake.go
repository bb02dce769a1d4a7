package command

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"sync/atomic"
)

// DefaultCapacity is the number of commands the intake buffers
const DefaultCapacity = 10

// ErrCommandOverflow is logged when a command is dropped because the intake is full
var ErrCommandOverflow = errors.New("command intake full")

// WithLogger sets the logger for the intake
func WithLogger(logger *slog.Logger) func(i *Intake) {
	return func(i *Intake) {
		i.logger = logger.With(slog.String("component", "intake"))
	}
}

// Intake is a bounded command queue between the radio receive loop and the
// controller. The producer never blocks: when the queue is full the newest
// command is dropped.
type Intake struct {
	queue   chan Command
	dropped atomic.Uint64
	logger  *slog.Logger
}

// NewIntake creates an intake holding up to capacity commands
func NewIntake(capacity int, options ...func(i *Intake)) (*Intake, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("invalid intake capacity: %d", capacity)
	}

	i := Intake{
		queue:  make(chan Command, capacity),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&i)
	}

	return &i, nil
}

// Offer enqueues cmd without blocking. It returns false if the command was
// dropped because the intake is full.
func (i *Intake) Offer(cmd Command) bool {
	select {
	case i.queue <- cmd:
		return true

	default:
		i.dropped.Add(1)
		i.logger.Warn(ErrCommandOverflow.Error(), slog.String("command", cmd.Kind.String()))
		return false
	}
}

// TryDequeueAll returns a sequence over the commands currently pending. The
// sequence never blocks: it ends as soon as the intake is observed empty.
// Each yielded command is removed from the intake, so ranging again only sees
// commands that arrived later.
func (i *Intake) TryDequeueAll() iter.Seq[Command] {
	return func(yield func(Command) bool) {
		for {
			select {
			case cmd := <-i.queue:
				if !yield(cmd) {
					return
				}

			default:
				return
			}
		}
	}
}

// Len returns the number of pending commands
func (i *Intake) Len() int {
	return len(i.queue)
}

// Cap returns the intake capacity
func (i *Intake) Cap() int {
	return cap(i.queue)
}

// Dropped returns the number of commands dropped on overflow
func (i *Intake) Dropped() uint64 {
	return i.dropped.Load()
}
