package radio

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/roman-kulish/flight-control/internal/command"
	"github.com/roman-kulish/flight-control/internal/status"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("Condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestTransport_ReceivesCommands(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()

	intake, _ := command.NewIntake(command.DefaultCapacity)

	tr := New(local)
	tr.Bind(intake)
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start transport: %v", err)
	}
	defer tr.Close()

	lines := "{\"command\":\"QDM\"}\nnot json\n\n{\"command\":\"Ignition\"}\n"
	if _, err := remote.Write([]byte(lines)); err != nil {
		t.Fatalf("Failed to write: %v", err)
	}

	waitFor(t, func() bool { return intake.Len() == 2 })

	var kinds []command.Kind
	for cmd := range intake.TryDequeueAll() {
		kinds = append(kinds, cmd.Kind)
	}
	if len(kinds) != 2 || kinds[0] != command.KindQDM || kinds[1] != command.KindIgnition {
		t.Errorf("Unexpected commands: %v", kinds)
	}
}

func TestTransport_SurvivesOversizedLine(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()

	intake, _ := command.NewIntake(command.DefaultCapacity)

	tr := New(local)
	tr.Bind(intake)
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start transport: %v", err)
	}
	defer tr.Close()

	noise := strings.Repeat("x", MaxLineLength+6*1024)
	if _, err := remote.Write([]byte(noise + "\n{\"command\":\"QDM\"}\n")); err != nil {
		t.Fatalf("Failed to write: %v", err)
	}

	waitFor(t, func() bool { return intake.Len() == 1 })

	if !tr.Healthy() {
		t.Error("Transport should stay healthy after dropping an oversized line")
	}
	for cmd := range intake.TryDequeueAll() {
		if cmd.Kind != command.KindQDM {
			t.Errorf("Expected QDM, got %s", cmd.Kind)
		}
	}
}

func TestTransport_SendWritesJSONLine(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()

	tr := New(local)
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start transport: %v", err)
	}
	defer tr.Close()

	msg := status.New()
	msg.Ignition = status.OK
	if err := tr.Send(msg, status.CategoryStatus); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	_ = remote.SetReadDeadline(time.Now().Add(time.Second))
	line, err := bufio.NewReader(remote).ReadString('\n')
	if err != nil {
		t.Fatalf("Failed to read line: %v", err)
	}

	expected := "{\"origin\":\"status\",\"QDM\":0,\"Ignition\":1,\"Stabilization\":0}\n"
	if line != expected {
		t.Errorf("Expected %q, got %q", expected, line)
	}
}

func TestTransport_SendNeverBlocks(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()

	// not started: nothing drains the queue
	tr := New(local, WithOutboundQueue(1))

	if err := tr.Send(status.New(), status.CategoryStatus); err != nil {
		t.Fatalf("First send should be queued: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- tr.Send(status.New(), status.CategoryStatus) }()

	select {
	case err := <-done:
		var fault *TransportFault
		if !errors.As(err, &fault) || !errors.Is(err, ErrQueueFull) {
			t.Errorf("Expected queue full fault, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Send blocked on a full queue")
	}

	_ = tr.Close()
	if err := tr.Send(status.New(), status.CategoryStatus); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed after Close, got %v", err)
	}
}

func TestTransport_Health(t *testing.T) {
	local, remote := net.Pipe()

	tr := New(local, WithStaleAfter(50*time.Millisecond))
	if tr.Healthy() {
		t.Error("Transport should not be healthy before Start")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := tr.Start(ctx); err != nil {
		t.Fatalf("Failed to start transport: %v", err)
	}
	if !tr.Healthy() {
		t.Error("Transport should be healthy right after Start")
	}

	time.Sleep(80 * time.Millisecond)
	if tr.Healthy() {
		t.Error("Transport should be stale without inbound traffic")
	}

	if _, err := remote.Write([]byte("\n")); err != nil {
		t.Fatalf("Failed to write: %v", err)
	}
	waitFor(t, tr.Healthy)

	_ = remote.Close()
	waitFor(t, func() bool { return !tr.Healthy() })

	cancel()
	waitFor(t, func() bool { return !tr.isRunning.Load() })
}
