package app

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/roman-kulish/flight-control/internal/actuator"
	"github.com/roman-kulish/flight-control/internal/radio"
	"github.com/roman-kulish/flight-control/internal/status"
	"github.com/roman-kulish/flight-control/internal/storage"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("Condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func benchConfig(t *testing.T) *Config {
	t.Helper()

	config := DefaultConfig()
	config.GPIO.Backend = GPIOBackendMemory
	config.GPIO.SettleDelay = 0
	config.Sensor.Source = SensorSourceNone
	config.Sensor.Frequency = 50
	config.Radio.Port = "bench"
	config.Flight.TickInterval = Duration(5 * time.Millisecond)
	config.Flight.LinkPollInterval = Duration(5 * time.Millisecond)
	config.Flight.LinkTimeout = Duration(50 * time.Millisecond)
	config.Storage.DataDirectory = t.TempDir()

	if err := config.Validate(); err != nil {
		t.Fatalf("Invalid bench config: %v", err)
	}
	return config
}

func TestRun_CommandsAndFailSafe(t *testing.T) {
	config := benchConfig(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	out := actuator.NewMemoryOutput()
	local, remote := net.Pipe()

	dev := devices{
		output: func(*GPIOConfig) (actuator.Output, error) { return out, nil },
		link: func(_ *RadioConfig, options ...func(t *radio.Transport)) (*radio.Transport, error) {
			return radio.New(local, options...), nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- run(ctx, config, logger, dev) }()

	if _, err := remote.Write([]byte("{\"command\":\"Stabilize\"}\n")); err != nil {
		t.Fatalf("Failed to send command: %v", err)
	}

	_ = remote.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(remote).ReadBytes('\n')
	if err != nil {
		t.Fatalf("Failed to read status: %v", err)
	}

	var msg status.Message
	if err = json.Unmarshal(line, &msg); err != nil {
		t.Fatalf("Failed to decode status %q: %v", line, err)
	}
	if msg.Stabilization != status.OK {
		t.Errorf("Expected Stabilization=1, got %s", msg)
	}
	if out.Level(actuator.PinStabilization) != actuator.High {
		t.Error("Stabilization line should be high")
	}

	// losing the ground station engages QDM once the deadline passes
	_ = remote.Close()
	waitFor(t, func() bool { return out.Level(actuator.PinQDM) == actuator.High })

	cancel()
	select {
	case err = <-done:
		if err != nil {
			t.Fatalf("Unexpected run error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	store := storage.NewSqliteStore(filepath.Join(config.Storage.DataDirectory, storageFile))
	defer store.Close()

	flights, err := store.Flights(context.Background())
	if err != nil {
		t.Fatalf("Failed to read flights: %v", err)
	}
	if len(flights) != 1 || flights[0].Mode != "test" || flights[0].Config == nil {
		t.Fatalf("Expected one recorded test flight, got %+v", flights)
	}

	events, err := store.StatusEvents(context.Background(), flights[0].ID)
	if err != nil {
		t.Fatalf("Failed to read status events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Expected 2 status events, got %d", len(events))
	}
	if events[0].Stabilization != status.OK || events[1].QDM != status.OK {
		t.Errorf("Unexpected status events: %+v", events)
	}
}

func TestRun_OutputFailureIsFatal(t *testing.T) {
	config := benchConfig(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	linkOpened := false
	dev := devices{
		output: func(*GPIOConfig) (actuator.Output, error) { return nil, errors.New("/dev/gpiomem: permission denied") },
		link: func(*RadioConfig, ...func(t *radio.Transport)) (*radio.Transport, error) {
			linkOpened = true
			return nil, errors.New("unexpected")
		},
	}

	if err := run(context.Background(), config, logger, dev); err == nil {
		t.Fatal("Expected error")
	}
	if linkOpened {
		t.Error("Radio should not be opened when the outputs are unavailable")
	}

	out := actuator.NewMemoryOutput()
	out.InjectFault(actuator.PinLoggingEnable, errors.New("stuck"))
	dev.output = func(*GPIOConfig) (actuator.Output, error) { return out, nil }

	err := run(context.Background(), config, logger, dev)
	var fault *actuator.HardwareFault
	if !errors.As(err, &fault) {
		t.Fatalf("Expected hardware fault from init, got %v", err)
	}
	if linkOpened {
		t.Error("Radio should not be opened when the outputs cannot be initialized")
	}
}
