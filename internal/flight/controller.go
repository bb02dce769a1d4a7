package flight

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/roman-kulish/flight-control/internal/actuator"
	"github.com/roman-kulish/flight-control/internal/command"
	"github.com/roman-kulish/flight-control/internal/sensor"
	"github.com/roman-kulish/flight-control/internal/status"
	"github.com/roman-kulish/flight-control/internal/telemetry"
)

var (
	// ErrLaunchConditionNotMet is returned by Ignite when the launch gate is
	// enabled and the payload is outside the launch window.
	ErrLaunchConditionNotMet = errors.New("launch condition not met")

	// ErrOutsideAltitudeWindow is returned by Stabilize when the stabilization
	// gate is enabled and the altitude is outside the launch window.
	ErrOutsideAltitudeWindow = errors.New("altitude outside launch window")
)

// Actuators is the actuator capability the controller drives
type Actuators interface {
	SetQDM(engage bool) error
	SetStabilization(active bool) error
	PulseIgnition(d time.Duration) error
	Sequence(fn func(s *actuator.Sequencer) error) error
}

// SampleRecorder persists sensor samples. It is optional.
type SampleRecorder interface {
	RecordSample(ctx context.Context, s *telemetry.Sample) error
}

// Overrides bypass the safety gates. Both default to true, which keeps the
// gates off until they are switched on in the configuration.
type Overrides struct {
	LaunchCheck        bool // Ignite without evaluating the launch condition
	StabilizationCheck bool // Stabilize without checking the altitude window
}

// DefaultOverrides returns the overrides used in flight
func DefaultOverrides() Overrides {
	return Overrides{
		LaunchCheck:        true,
		StabilizationCheck: true,
	}
}

// WithLogger sets the logger for the controller
func WithLogger(logger *slog.Logger) func(c *Controller) {
	return func(c *Controller) {
		c.logger = logger.With(slog.String("component", "controller"))
	}
}

// WithSampleRecorder stores every sensor sample the controller receives
func WithSampleRecorder(recorder SampleRecorder) func(c *Controller) {
	return func(c *Controller) {
		c.recorder = recorder
	}
}

// WithOverrides sets the safety gate overrides
func WithOverrides(overrides Overrides) func(c *Controller) {
	return func(c *Controller) {
		c.overrides = overrides
	}
}

// WithLimits sets the launch window
func WithLimits(limits Limits) func(c *Controller) {
	return func(c *Controller) {
		c.limits = limits
	}
}

// WithTimings sets the ignition timings
func WithTimings(timings Timings) func(c *Controller) {
	return func(c *Controller) {
		c.timings = timings
	}
}

// Controller is the flight state machine. It consumes sensor updates and
// ground station commands, evaluates the safety predicates, drives the
// actuators and reports every outcome. Actuator and transport failures are
// logged and reflected in status reports; they never stop the controller.
type Controller struct {
	actuators Actuators
	reporter  *status.Reporter
	history   *sensor.History
	intake    *command.Intake
	recorder  SampleRecorder

	overrides Overrides
	limits    Limits
	timings   Timings

	mu    sync.Mutex
	state flightContext

	logger *slog.Logger
}

// NewController creates a controller running in the given mode
func NewController(mode Mode, actuators Actuators, reporter *status.Reporter, history *sensor.History, intake *command.Intake, options ...func(c *Controller)) (*Controller, error) {
	if mode != ModeTest && mode != ModePrelaunch {
		return nil, fmt.Errorf("invalid flight mode: %s", mode)
	}
	if actuators == nil || reporter == nil || history == nil || intake == nil {
		return nil, fmt.Errorf("controller requires actuators, reporter, history and intake")
	}

	c := Controller{
		actuators: actuators,
		reporter:  reporter,
		history:   history,
		intake:    intake,
		overrides: DefaultOverrides(),
		limits:    DefaultLimits(),
		timings:   DefaultTimings(),
		state:     flightContext{mode: mode},
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&c)
	}

	if err := c.limits.Validate(); err != nil {
		return nil, err
	}
	if err := c.timings.Validate(); err != nil {
		return nil, err
	}

	return &c, nil
}

// Mode returns the configured flight mode
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state.mode
}

// Snapshot returns a copy of the flight context
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state.snapshot()
}

// OnSensorUpdate ingests a sensor sample and forwards it to the ground
// station. A nil sample is skipped.
func (c *Controller) OnSensorUpdate(ctx context.Context, sample *telemetry.Sample) {
	if sample == nil {
		return
	}

	c.history.Ingest(sample)

	alt := sample.Altitude()
	c.mu.Lock()
	c.state.altitude = &alt
	c.mu.Unlock()

	if c.recorder != nil {
		if err := c.recorder.RecordSample(ctx, sample); err != nil {
			c.logger.Error("recording sample", slog.String("error", err.Error()))
		}
	}

	c.reporter.Emit(ctx, sample, status.CategoryBalloon)
}

// EvaluateLaunchCondition returns true if the altitude is inside the launch
// window and the filtered spin rate is below the limit. It returns
// sensor.ErrInsufficientData if either value is not known yet.
func (c *Controller) EvaluateLaunchCondition() (bool, error) {
	rate, err := c.history.FilteredSpinRate()
	if err != nil {
		return false, fmt.Errorf("computing spin rate: %w", err)
	}

	c.mu.Lock()
	c.state.spinRate = &rate
	altitude := c.state.altitude
	c.mu.Unlock()

	if altitude == nil {
		return false, fmt.Errorf("altitude unknown: %w", sensor.ErrInsufficientData)
	}

	inWindow := c.limits.InAltitudeWindow(*altitude)
	ok := inWindow && rate < c.limits.MaxSpinRate

	c.logger.Info("launch condition evaluated",
		slog.Float64("altitude", *altitude),
		slog.Float64("spinRate", rate),
		slog.Bool("inWindow", inWindow),
		slog.Bool("ready", ok))

	return ok, nil
}

// Stabilize activates the stabilization line and reports the outcome
func (c *Controller) Stabilize(ctx context.Context) error {
	msg := c.reporter.BuildStatus()
	defer func() { c.reporter.Emit(ctx, msg, status.CategoryStatus) }()

	if !c.overrides.StabilizationCheck {
		if err := c.checkAltitudeWindow(); err != nil {
			return fmt.Errorf("stabilization refused: %w", err)
		}
	}

	if err := c.actuators.SetStabilization(true); err != nil {
		return fmt.Errorf("activating stabilization: %w", err)
	}

	c.mu.Lock()
	c.state.stabilized = true
	c.mu.Unlock()

	msg.Stabilization = status.OK
	return nil
}

// Ignite runs the ignition sequence of the given mode and reports the outcome.
// In test mode the igniter is pulsed briefly. In prelaunch mode the logging
// line is dropped, the logger is given a grace period and the igniter is
// pulsed for the full burn; the logging line stays low afterwards.
func (c *Controller) Ignite(ctx context.Context, mode Mode) error {
	msg := c.reporter.BuildStatus()
	defer func() { c.reporter.Emit(ctx, msg, status.CategoryStatus) }()

	if !c.overrides.LaunchCheck {
		ok, err := c.EvaluateLaunchCondition()
		if err != nil {
			return fmt.Errorf("ignition refused: %w", err)
		}
		if !ok {
			return fmt.Errorf("ignition refused: %w", ErrLaunchConditionNotMet)
		}
	}

	c.logger.Info("ignition sequence started", slog.String("mode", mode.String()))

	var err error
	switch mode {
	case ModeTest:
		err = c.actuators.PulseIgnition(c.timings.TestPulse)

	case ModePrelaunch:
		err = c.actuators.Sequence(func(s *actuator.Sequencer) error {
			if err := s.SetLogging(false); err != nil {
				return err
			}
			s.Wait(c.timings.LoggerGrace)
			return s.PulseIgnition(c.timings.PrelaunchPulse)
		})

	default:
		err = fmt.Errorf("invalid flight mode: %s", mode)
	}
	if err != nil {
		return fmt.Errorf("ignition sequence (%s): %w", mode, err)
	}

	c.mu.Lock()
	c.state.ignited = true
	c.mu.Unlock()

	msg.Ignition = status.OK
	return nil
}

// CheckQDM drives the quick-disconnect relay. Disengaging is routine and not
// reported; engaging is reported with QDM=1, or QDM=0 if the relay could not
// be driven.
func (c *Controller) CheckQDM(ctx context.Context, shouldDisengage bool) error {
	if shouldDisengage {
		if err := c.actuators.SetQDM(false); err != nil {
			return fmt.Errorf("disengaging QDM: %w", err)
		}

		c.mu.Lock()
		c.state.qdmEngaged = false
		c.mu.Unlock()
		return nil
	}

	msg := c.reporter.BuildStatus()
	defer func() { c.reporter.Emit(ctx, msg, status.CategoryStatus) }()

	if err := c.actuators.SetQDM(true); err != nil {
		return fmt.Errorf("engaging QDM: %w", err)
	}

	c.mu.Lock()
	c.state.qdmEngaged = true
	c.mu.Unlock()

	msg.QDM = status.OK
	return nil
}

// DispatchCommands executes every pending command in arrival order. Command
// failures are logged; unknown commands are ignored.
func (c *Controller) DispatchCommands(ctx context.Context) {
	mode := c.Mode()

	for cmd := range c.intake.TryDequeueAll() {
		var err error
		switch cmd.Kind {
		case command.KindQDM:
			err = c.CheckQDM(ctx, false)
		case command.KindStabilize:
			err = c.Stabilize(ctx)
		case command.KindIgnition:
			err = c.Ignite(ctx, mode)
		default:
			c.logger.Debug("ignoring unknown command", slog.String("command", cmd.Kind.String()))
			continue
		}

		if err != nil {
			c.logger.Error(err.Error(), slog.String("command", cmd.Kind.String()))
		}
	}
}

func (c *Controller) setLinkHealthy(healthy bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state.linkHealthy = healthy
}

func (c *Controller) checkAltitudeWindow() error {
	c.mu.Lock()
	altitude := c.state.altitude
	c.mu.Unlock()

	if altitude == nil {
		return fmt.Errorf("altitude unknown: %w", sensor.ErrInsufficientData)
	}
	if !c.limits.InAltitudeWindow(*altitude) {
		return fmt.Errorf("%w: %.1f m", ErrOutsideAltitudeWindow, *altitude)
	}
	return nil
}
