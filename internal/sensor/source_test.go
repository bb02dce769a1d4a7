package sensor

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/roman-kulish/flight-control/internal/telemetry"
)

type stringHandler struct {
	data   string
	closed atomic.Bool
}

func (h *stringHandler) Open(_ context.Context) (io.ReadCloser, error) {
	return &closeTracker{Reader: strings.NewReader(h.data), closed: &h.closed}, nil
}

func (h *stringHandler) Name() string {
	return "string"
}

type closeTracker struct {
	io.Reader
	closed *atomic.Bool
}

func (c *closeTracker) Close() error {
	c.closed.Store(true)
	return nil
}

type failingHandler struct{}

func (failingHandler) Open(_ context.Context) (io.ReadCloser, error) {
	return nil, errors.New("no such device")
}

func (failingHandler) Name() string {
	return "failing"
}

func TestSource_PublishesLatestSample(t *testing.T) {
	h := &stringHandler{data: strings.Join([]string{
		`{"GPS":{"alt":100},"gyro":{"x":1}}`,
		``,
		`{"GPS":{"alt":200},"gyro":{"x":2}}`,
		`not json`,
		`{"GPS":{"alt":300},"gyro":{"x":3}}`,
	}, "\n")}

	mailbox := telemetry.NewMailbox()
	src := NewSource(h, mailbox)

	done, err := src.BeginSampling(context.Background())
	if err != nil {
		t.Fatalf("Failed to begin sampling: %v", err)
	}

	select {
	case err, ok := <-done:
		if ok && err != nil {
			t.Fatalf("Unexpected sampling error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Sampling did not stop at end of stream")
	}

	latest, ok := mailbox.Latest()
	if !ok {
		t.Fatal("Expected a sample in the mailbox")
	}
	if latest.Altitude() != 300 {
		t.Errorf("Expected altitude 300, got %f", latest.Altitude())
	}
	if mailbox.Seq() != 3 {
		t.Errorf("Expected 3 samples published, got %d", mailbox.Seq())
	}
	if src.IsSampling() {
		t.Error("Source should not be sampling after end of stream")
	}
}

func TestSource_SkipsEmptyPayloads(t *testing.T) {
	h := &stringHandler{data: strings.Join([]string{
		`{"GPS":{"alt":24800},"gyro":{"x":1,"y":2,"z":3}}`,
		`null`,
		`{}`,
		`{"GPS":null,"gyro":null}`,
	}, "\n")}

	mailbox := telemetry.NewMailbox()
	src := NewSource(h, mailbox, WithParseErrorsThreshold(1))

	done, err := src.BeginSampling(context.Background())
	if err != nil {
		t.Fatalf("Failed to begin sampling: %v", err)
	}

	select {
	case err, ok := <-done:
		if ok && err != nil {
			t.Fatalf("Empty payloads should not count as parse errors: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Sampling did not stop at end of stream")
	}

	if mailbox.Seq() != 1 {
		t.Errorf("Expected 1 sample published, got %d", mailbox.Seq())
	}
	latest, ok := mailbox.Latest()
	if !ok || latest.Altitude() != 24800 || latest.Gyro.Z != 3 {
		t.Errorf("Expected the first sample to survive, got %+v", latest)
	}
}

func TestSource_DropsOversizedLine(t *testing.T) {
	h := &stringHandler{data: strings.Join([]string{
		`{"GPS":{"alt":100},"gyro":{"x":1}}`,
		strings.Repeat("x", MaxLineLength+6*1024),
		`{"GPS":{"alt":200},"gyro":{"x":2}}`,
	}, "\n")}

	mailbox := telemetry.NewMailbox()
	src := NewSource(h, mailbox, WithParseErrorsThreshold(1))

	done, err := src.BeginSampling(context.Background())
	if err != nil {
		t.Fatalf("Failed to begin sampling: %v", err)
	}

	select {
	case err, ok := <-done:
		if ok && err != nil {
			t.Fatalf("Unexpected sampling error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Sampling did not stop at end of stream")
	}

	if mailbox.Seq() != 2 {
		t.Errorf("Expected 2 samples published, got %d", mailbox.Seq())
	}
	if latest, ok := mailbox.Latest(); !ok || latest.Altitude() != 200 {
		t.Errorf("Expected the sample after the oversized line, got %+v", latest)
	}
}

func TestSource_TooManyParseErrors(t *testing.T) {
	h := &stringHandler{data: "a\nb\nc\n{\"GPS\":{\"alt\":1}}\n"}

	src := NewSource(h, telemetry.NewMailbox(), WithParseErrorsThreshold(3))

	done, err := src.BeginSampling(context.Background())
	if err != nil {
		t.Fatalf("Failed to begin sampling: %v", err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, ErrTooManyParseErrors) {
			t.Errorf("Expected ErrTooManyParseErrors, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Sampling did not stop")
	}
}

func TestWithParseErrorsThreshold_ZeroKeepsDefault(t *testing.T) {
	src := NewSource(&stringHandler{}, telemetry.NewMailbox(), WithParseErrorsThreshold(0))
	if src.parseErrorsThreshold != ParseErrorsThreshold {
		t.Errorf("Expected default threshold %d, got %d", ParseErrorsThreshold, src.parseErrorsThreshold)
	}
}

func TestSource_OpenFailure(t *testing.T) {
	src := NewSource(failingHandler{}, telemetry.NewMailbox())

	if _, err := src.BeginSampling(context.Background()); err == nil {
		t.Fatal("Expected error from failing handler")
	}
	if src.IsSampling() {
		t.Error("Source should be reset after open failure")
	}
}

func TestSource_StopClosesStream(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	h := &pipeHandler{r: pr}
	src := NewSource(h, telemetry.NewMailbox())

	done, err := src.BeginSampling(context.Background())
	if err != nil {
		t.Fatalf("Failed to begin sampling: %v", err)
	}

	if _, err = src.BeginSampling(context.Background()); err == nil {
		t.Error("Expected error when sampling twice")
	}

	src.Stop()

	select {
	case err, ok := <-done:
		if ok && err != nil {
			t.Errorf("Expected clean stop, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Sampling did not stop")
	}
}

type pipeHandler struct {
	r *io.PipeReader
}

func (h *pipeHandler) Open(_ context.Context) (io.ReadCloser, error) {
	return h.r, nil
}

func (h *pipeHandler) Name() string {
	return "pipe"
}
