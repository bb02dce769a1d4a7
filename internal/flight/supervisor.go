package flight

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"
)

const (
	// DefaultLinkPollInterval is how often the link health is checked while
	// waiting for the ground station
	DefaultLinkPollInterval = 500 * time.Millisecond

	// DefaultLinkTimeout is how long the link may stay down before QDM is engaged
	DefaultLinkTimeout = 300 * time.Second

	// DefaultTickInterval is the pause between two command dispatch rounds
	DefaultTickInterval = 100 * time.Millisecond
)

// ErrLinkLost is returned by Supervisor.Run after the link stayed down past
// the deadline and the fail-safe QDM was engaged.
var ErrLinkLost = errors.New("ground station link lost")

// Link reports the ground station link health
type Link interface {
	Healthy() bool
}

// Clock is the time source of the supervisor
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// WithSupervisorLogger sets the logger for the supervisor
func WithSupervisorLogger(logger *slog.Logger) func(s *Supervisor) {
	return func(s *Supervisor) {
		s.logger = logger.With(slog.String("component", "supervisor"))
	}
}

// WithClock replaces the system clock
func WithClock(clock Clock) func(s *Supervisor) {
	return func(s *Supervisor) {
		s.clock = clock
	}
}

// WithLinkPolicy sets the poll interval and the deadline of the link wait
func WithLinkPolicy(pollInterval, timeout time.Duration) func(s *Supervisor) {
	return func(s *Supervisor) {
		if pollInterval > 0 {
			s.pollInterval = pollInterval
		}
		if timeout > 0 {
			s.linkTimeout = timeout
		}
	}
}

// WithTickInterval sets the pause between dispatch rounds
func WithTickInterval(d time.Duration) func(s *Supervisor) {
	return func(s *Supervisor) {
		if d > 0 {
			s.tickInterval = d
		}
	}
}

// Supervisor runs the control loop: it dispatches ground station commands
// while the link is up and engages QDM when the link stays down past the
// deadline.
type Supervisor struct {
	controller *Controller
	link       Link
	clock      Clock

	pollInterval time.Duration
	linkTimeout  time.Duration
	tickInterval time.Duration

	logger *slog.Logger
}

// NewSupervisor creates a supervisor with a discard logger and the system clock
func NewSupervisor(controller *Controller, link Link, options ...func(s *Supervisor)) *Supervisor {
	s := Supervisor{
		controller:   controller,
		link:         link,
		clock:        systemClock{},
		pollInterval: DefaultLinkPollInterval,
		linkTimeout:  DefaultLinkTimeout,
		tickInterval: DefaultTickInterval,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

// Run blocks until ctx is cancelled or the link is lost. In the latter case
// QDM is engaged once and ErrLinkLost is returned.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		if err := s.waitForLink(ctx); err != nil {
			if !errors.Is(err, ErrLinkLost) {
				return err
			}

			s.logger.Error("link down past deadline, engaging QDM", slog.Duration("timeout", s.linkTimeout))
			if qdmErr := s.controller.CheckQDM(ctx, false); qdmErr != nil {
				s.logger.Error(qdmErr.Error())
			}
			return err
		}

		s.controller.DispatchCommands(ctx)

		if err := s.clock.Sleep(ctx, s.tickInterval); err != nil {
			return err
		}
	}
}

func (s *Supervisor) waitForLink(ctx context.Context) error {
	deadline := s.clock.Now().Add(s.linkTimeout)
	reported := false

	for {
		healthy := s.link.Healthy()
		s.controller.setLinkHealthy(healthy)

		if healthy {
			if reported {
				s.logger.Info("link restored")
			}
			return nil
		}

		if !reported {
			s.logger.Warn("link down, waiting for ground station", slog.Duration("timeout", s.linkTimeout))
			reported = true
		}

		if !s.clock.Now().Before(deadline) {
			return ErrLinkLost
		}

		if err := s.clock.Sleep(ctx, s.pollInterval); err != nil {
			return err
		}
	}
}
