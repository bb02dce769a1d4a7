package app

import (
	"context"
	"errors"
	"fmt"
	"image/png"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/flight-control/internal/storage"
)

var ErrNoFlights = errors.New("no flights recorded")

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	if _, err := os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
		return fmt.Errorf("database file '%s' does not exist: %w", config.DBPath, err)
	}

	store := storage.NewSqliteStore(config.DBPath)
	defer store.Close()

	if config.List {
		return listFlights(ctx, store, config, logger)
	}
	return renderFlight(ctx, store, config, logger)
}

func listFlights(ctx context.Context, store *storage.SqliteStore, config *Config, logger *slog.Logger) error {
	flights, err := store.Flights(ctx)
	if err != nil {
		return err
	}
	if len(flights) == 0 {
		return ErrNoFlights
	}

	for _, f := range flights {
		n, err := store.CountSamples(ctx, f.ID)
		if err != nil {
			return err
		}

		logger.Info("flight",
			slog.String("id", f.ID),
			slog.String("mode", f.Mode),
			slog.String("start", f.StartTime.In(config.TimeZone).Format(time.DateTime)),
			slog.String("started", humanize.Time(f.StartTime)),
			slog.String("samples", humanize.Comma(n)))
	}
	return nil
}

func findFlight(ctx context.Context, store *storage.SqliteStore, id string) (*storage.Flight, error) {
	if id != "" {
		f, err := store.Flight(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("loading flight '%s': %w", id, err)
		}
		return f, nil
	}

	flights, err := store.Flights(ctx)
	if err != nil {
		return nil, err
	}
	if len(flights) == 0 {
		return nil, ErrNoFlights
	}
	return flights[len(flights)-1], nil
}

func readSeries(ctx context.Context, store *storage.SqliteStore, config *Config, f *storage.Flight, logger *slog.Logger) (*FlightSeries, error) {
	var opts []storage.ReaderOption
	var filters []any
	switch {
	case config.StartTime != nil && config.EndTime != nil:
		opts = append(opts, storage.WithTimeRange(config.StartTime.UTC(), config.EndTime.UTC()))

		filters = append(filters,
			slog.String("minTimestamp", config.StartTime.UTC().Format(time.DateTime)),
			slog.String("maxTimestamp", config.EndTime.UTC().Format(time.DateTime)))

	case config.StartTime != nil:
		opts = append(opts, storage.WithStartTime(config.StartTime.UTC()))
		filters = append(filters, slog.String("minTimestamp", config.StartTime.UTC().Format(time.DateTime)))

	case config.EndTime != nil:
		opts = append(opts, storage.WithEndTime(config.EndTime.UTC()))
		filters = append(filters, slog.String("maxTimestamp", config.EndTime.UTC().Format(time.DateTime)))
	}

	logger.Info("reader configuration", append(filters, slog.String("flightID", f.ID))...)

	iter, err := store.ReadSamples(ctx, f.ID, opts...)
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	series := NewFlightSeries(f)
	for iter.Next(ctx) {
		series.Update(iter.Current())
	}
	if err = iter.Error(); err != nil {
		return nil, err
	}

	events, err := store.StatusEvents(ctx, f.ID)
	if err != nil {
		return nil, err
	}
	for _, e := range events {
		if config.StartTime != nil && e.Timestamp.Before(*config.StartTime) {
			continue
		}
		if config.EndTime != nil && e.Timestamp.After(*config.EndTime) {
			continue
		}
		series.AddEvents([]storage.StatusEvent{e})
	}

	return series, nil
}

func renderFlight(ctx context.Context, store *storage.SqliteStore, config *Config, logger *slog.Logger) error {
	f, err := findFlight(ctx, store, config.FlightID)
	if err != nil {
		return err
	}

	series, err := readSeries(ctx, store, config, f, logger)
	if err != nil {
		return err
	}

	logger.Info("finished reading flight",
		slog.Group("stats",
			slog.String("minTimestamp", series.TimestampStart.In(config.TimeZone).Format(time.DateTime)),
			slog.String("maxTimestamp", series.TimestampEnd.In(config.TimeZone).Format(time.DateTime)),
			slog.String("samples", humanize.Comma(int64(len(series.Points)))),
			slog.Int("statusReports", len(series.Events)),
			slog.String("maxAltitude", humanize.SIWithDigits(series.AltitudeMax, 2, "m")),
			slog.String("maxSpinRate", humanize.FtoaWithDigits(series.SpinRateMax, 2)),
		))

	renderer, err := NewChartRenderer(RenderConfig{
		Width:    config.Width,
		Height:   config.Height,
		Location: config.TimeZone,
	})
	if err != nil {
		return fmt.Errorf("creating chart renderer: %w", err)
	}

	img, err := renderer.Render(series)
	if err != nil {
		return fmt.Errorf("rendering chart: %w", err)
	}

	out, err := os.Create(config.OutputFile)
	if err != nil {
		return err
	}

	if err = png.Encode(out, img); err != nil {
		_ = out.Close()
		return err
	}
	if err = out.Close(); err != nil {
		return err
	}

	logger.Info("chart written",
		slog.Group("image",
			slog.String("destination", config.OutputFile),
			slog.Int("width", config.Width),
			slog.Int("height", config.Height),
		))
	return nil
}
