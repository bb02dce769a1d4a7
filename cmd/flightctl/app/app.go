package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/flight-control/internal/actuator"
	"github.com/roman-kulish/flight-control/internal/command"
	"github.com/roman-kulish/flight-control/internal/flight"
	"github.com/roman-kulish/flight-control/internal/radio"
	"github.com/roman-kulish/flight-control/internal/sensor"
	"github.com/roman-kulish/flight-control/internal/status"
	"github.com/roman-kulish/flight-control/internal/storage"
	"github.com/roman-kulish/flight-control/internal/telemetry"
)

const (
	storageDir  = "data"
	storageFile = "flights.sqlite"
)

// devices opens the hardware the controller talks to
type devices struct {
	output func(config *GPIOConfig) (actuator.Output, error)
	link   func(config *RadioConfig, options ...func(t *radio.Transport)) (*radio.Transport, error)
}

var hardware = devices{
	output: openOutput,
	link: func(config *RadioConfig, options ...func(t *radio.Transport)) (*radio.Transport, error) {
		return radio.Open(config.Port, config.BaudRate, options...)
	},
}

// Run drives the payload until ctx is cancelled. Failing to open or
// initialize the digital outputs aborts before anything is actuated.
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	return run(ctx, config, logger, hardware)
}

func run(ctx context.Context, config *Config, logger *slog.Logger, dev devices) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("controller panic", slog.Any("panic", r))
			err = fmt.Errorf("controller panic: %v", r)
		}
	}()

	mode, err := config.Flight.ParsedMode()
	if err != nil {
		return err
	}

	out, err := dev.output(&config.GPIO)
	if err != nil {
		return fmt.Errorf("opening GPIO backend '%s': %w", config.GPIO.Backend, err)
	}

	acts := actuator.New(out, actuator.WithLogger(logger))
	defer func() {
		if cErr := acts.Close(); cErr != nil {
			logger.Error("closing outputs", slog.String("error", cErr.Error()))
		}
	}()

	if err = acts.Init(); err != nil {
		return err
	}

	logger.Info("outputs at safe levels, waiting for them to settle", slog.Duration("delay", time.Duration(config.GPIO.SettleDelay)))
	if err = sleepCtx(ctx, time.Duration(config.GPIO.SettleDelay)); err != nil {
		return nil
	}

	intake, err := command.NewIntake(config.Radio.IntakeCapacity, command.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("creating command intake: %w", err)
	}

	link, err := dev.link(&config.Radio,
		radio.WithLogger(logger),
		radio.WithOutboundQueue(config.Radio.OutboundQueue),
		radio.WithStaleAfter(time.Duration(config.Radio.StaleAfter)))
	if err != nil {
		return fmt.Errorf("opening radio: %w", err)
	}
	defer func() { _ = link.Close() }()

	link.Bind(intake)
	if err = link.Start(ctx); err != nil {
		return fmt.Errorf("starting radio: %w", err)
	}

	var reporterOptions []func(r *status.Reporter)
	controllerOptions := []func(c *flight.Controller){
		flight.WithLogger(logger),
		flight.WithOverrides(config.Flight.ControllerOverrides()),
		flight.WithLimits(config.Flight.ControllerLimits()),
		flight.WithTimings(config.Flight.ControllerTimings()),
	}

	if config.Storage.Enabled {
		store, recorder, err := createRecorder(ctx, config, mode, logger)
		if err != nil {
			return fmt.Errorf("creating flight recorder: %w", err)
		}
		defer func() {
			if fErr := recorder.Flush(context.WithoutCancel(ctx)); fErr != nil {
				logger.Error(fErr.Error())
			}
			if cErr := store.Close(); cErr != nil {
				logger.Error("closing flight recorder", slog.String("error", cErr.Error()))
			}
		}()

		reporterOptions = append(reporterOptions, status.WithRecorder(recorder))
		controllerOptions = append(controllerOptions, flight.WithSampleRecorder(recorder))
	}

	reporter := status.NewReporter(link, append(reporterOptions, status.WithLogger(logger))...)

	controller, err := flight.NewController(mode, acts, reporter, sensor.NewHistory(), intake, controllerOptions...)
	if err != nil {
		return fmt.Errorf("creating controller: %w", err)
	}

	mailbox := telemetry.NewMailbox()

	source, err := createSource(&config.Sensor, mailbox, logger)
	if err != nil {
		return fmt.Errorf("creating sensor source: %w", err)
	}
	if source != nil {
		errs, err := source.BeginSampling(ctx)
		if err != nil {
			return fmt.Errorf("starting sensor source: %w", err)
		}
		defer source.Stop()

		go func() {
			for err := range errs {
				logger.Error("sensor source stopped", slog.String("error", err.Error()))
			}
		}()
	}

	// only samples the collector has not seen yet reach the controller
	var lastSeq uint64
	collector, err := sensor.NewCollector(mailbox, func(s *telemetry.Sample) {
		seq := mailbox.Seq()
		if seq == lastSeq {
			s = nil
		}
		lastSeq = seq
		controller.OnSensorUpdate(ctx, s)
	}, config.Sensor.Frequency, sensor.WithCollectorLogger(logger))
	if err != nil {
		return fmt.Errorf("creating collector: %w", err)
	}
	if err = collector.Start(ctx); err != nil {
		return fmt.Errorf("starting collector: %w", err)
	}
	defer collector.Stop()

	supervisor := flight.NewSupervisor(controller, link,
		flight.WithSupervisorLogger(logger),
		flight.WithTickInterval(time.Duration(config.Flight.TickInterval)),
		flight.WithLinkPolicy(time.Duration(config.Flight.LinkPollInterval), time.Duration(config.Flight.LinkTimeout)))

	logger.Info("flight controller running",
		slog.String("mode", mode.String()),
		slog.String("window", fmt.Sprintf("%sm..%sm", humanize.Ftoa(config.Flight.Limits.MinAltitude), humanize.Ftoa(config.Flight.Limits.MaxAltitude))),
		slog.Bool("launchCheckOverride", config.Flight.Overrides.LaunchCheck),
		slog.Bool("stabilizationCheckOverride", config.Flight.Overrides.StabilizationCheck))

	err = supervisor.Run(ctx)
	switch {
	case errors.Is(err, flight.ErrLinkLost):
		// QDM is engaged; keep recording until shutdown
		logger.Error("fail-safe engaged, controller stopped dispatching commands")
		<-ctx.Done()
		return nil

	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		logger.Info("shutting down")
		return nil
	}

	return err
}

func openOutput(config *GPIOConfig) (actuator.Output, error) {
	switch config.Backend {
	case GPIOBackendRPIO:
		return actuator.OpenRPIO(config.Pins)
	case GPIOBackendMemory:
		return actuator.NewMemoryOutput(), nil
	default:
		return nil, fmt.Errorf("unknown GPIO backend '%s'", config.Backend)
	}
}

func createSource(config *SensorConfig, mailbox *telemetry.Mailbox, logger *slog.Logger) (*sensor.Source, error) {
	var handler sensor.Handler
	switch config.Source {
	case SensorSourceProcess:
		h, err := sensor.NewProcessHandler(config.Command, config.Args, logger)
		if err != nil {
			return nil, err
		}
		handler = h

	case SensorSourceSerial:
		handler = sensor.NewSerialHandler(config.SerialPort, config.BaudRate)

	case SensorSourceNone:
		logger.Warn("no sensor source configured, samples must be provided externally")
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown sensor source '%s'", config.Source)
	}

	return sensor.NewSource(handler, mailbox,
		sensor.WithLogger(logger),
		sensor.WithParseErrorsThreshold(config.ParseErrorsThreshold)), nil
}

func createRecorder(ctx context.Context, config *Config, mode flight.Mode, logger *slog.Logger) (*storage.SqliteStore, *storage.Recorder, error) {
	dir := config.Storage.DataDirectory
	if dir == "" {
		dir = storageDir
	}
	if !filepath.IsAbs(dir) {
		wd, err := os.Getwd()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to get current working directory: %w", err)
		}
		dir = filepath.Join(wd, dir)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating storage directory '%s': %w", dir, err)
	}

	dbPath := filepath.Join(dir, storageFile)
	store := storage.NewSqliteStore(dbPath)

	flightID, err := store.CreateFlight(ctx, mode.String(), config)
	if err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("creating flight: %w", err)
	}

	attrs := []any{slog.String("flightID", flightID), slog.String("path", dbPath)}
	if stat, err := os.Stat(dbPath); err == nil {
		attrs = append(attrs, slog.String("size", humanize.Bytes(uint64(stat.Size()))))
	}
	logger.Info("flight recorder ready", attrs...)

	recorder := storage.NewRecorder(store, flightID,
		storage.WithLogger(logger),
		storage.WithBatchSize(config.Storage.BatchSize))

	return store, recorder, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
