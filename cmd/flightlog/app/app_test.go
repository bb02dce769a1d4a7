package app

import (
	"context"
	"errors"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/roman-kulish/flight-control/internal/status"
	"github.com/roman-kulish/flight-control/internal/storage"
	"github.com/roman-kulish/flight-control/internal/telemetry"
)

func recordFlight(t *testing.T, dbPath string) string {
	t.Helper()
	ctx := context.Background()

	store := storage.NewSqliteStore(dbPath)
	defer func() {
		if err := store.Close(); err != nil {
			t.Fatalf("Failed to close store: %v", err)
		}
	}()

	flightID, err := store.CreateFlight(ctx, "prelaunch", map[string]any{
		"flight": map[string]any{"limits": map[string]any{"minAltitude": 100, "maxAltitude": 200, "maxSpinRate": 5}},
	})
	if err != nil {
		t.Fatalf("Failed to create flight: %v", err)
	}

	start := time.Now().UTC().Add(-time.Minute)
	samples := make([]*telemetry.Sample, 0, 60)
	for i := 0; i < 60; i++ {
		samples = append(samples, &telemetry.Sample{
			Timestamp: start.Add(time.Duration(i) * time.Second),
			GPS:       telemetry.GPS{Altitude: float64(i * 5)},
			Gyro:      telemetry.Gyro{X: 1, Y: 2, Z: 2},
		})
	}
	if err = store.StoreSamples(ctx, flightID, samples); err != nil {
		t.Fatalf("Failed to store samples: %v", err)
	}

	msg := status.New()
	msg.Stabilization = status.OK
	if err = store.StoreStatus(ctx, flightID, msg); err != nil {
		t.Fatalf("Failed to store status: %v", err)
	}

	return flightID
}

func TestRun_RendersLatestFlight(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "flights.sqlite")
	flightID := recordFlight(t, dbPath)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	config := NewConfig()
	config.DBPath = dbPath
	config.OutputFile = filepath.Join(dir, "chart.png")
	config.Width, config.Height = 640, 320

	if err := Run(context.Background(), config, logger); err != nil {
		t.Fatalf("Failed to render: %v", err)
	}

	f, err := os.Open(config.OutputFile)
	if err != nil {
		t.Fatalf("Failed to open chart: %v", err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("Failed to decode chart: %v", err)
	}
	if size := img.Bounds().Size(); size.X != 640 || size.Y != 320 {
		t.Errorf("Expected 640x320 chart, got %v", size)
	}

	store := storage.NewSqliteStore(dbPath)
	defer store.Close()

	series, err := readSeries(context.Background(), store, config, &storage.Flight{ID: flightID}, logger)
	if err != nil {
		t.Fatalf("Failed to read series: %v", err)
	}
	if len(series.Points) != 60 || len(series.Events) != 1 {
		t.Errorf("Expected 60 points and 1 event, got %d and %d", len(series.Points), len(series.Events))
	}

	recorded, err := store.Flight(context.Background(), flightID)
	if err != nil {
		t.Fatalf("Failed to load flight: %v", err)
	}
	if limits := limitsOf(recorded); limits.MinAltitude != 100 || limits.MaxAltitude != 200 {
		t.Errorf("Expected recorded launch window, got %+v", limits)
	}
}

func TestRun_List(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "flights.sqlite")
	recordFlight(t, dbPath)

	config := NewConfig()
	config.DBPath = dbPath
	config.List = true

	if err := Run(context.Background(), config, slog.New(slog.NewTextHandler(io.Discard, nil))); err != nil {
		t.Fatalf("Failed to list flights: %v", err)
	}
}

func TestRun_Errors(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := t.TempDir()

	config := NewConfig()
	config.DBPath = filepath.Join(dir, "missing.sqlite")
	config.OutputFile = filepath.Join(dir, "chart.png")
	if err := Run(context.Background(), config, logger); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected missing database error, got %v", err)
	}

	config.DBPath = filepath.Join(dir, "flights.sqlite")
	recordFlight(t, config.DBPath)

	config.FlightID = "no-such-flight"
	if err := Run(context.Background(), config, logger); err == nil {
		t.Error("Expected error for unknown flight")
	}
	if _, err := os.Stat(config.OutputFile); !os.IsNotExist(err) {
		t.Error("No chart should be written for an unknown flight")
	}
}
