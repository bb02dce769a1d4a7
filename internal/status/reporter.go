package status

import (
	"context"
	"io"
	"log/slog"
)

// Sender hands messages to the radio. Implementations must not block on a
// congested or broken link.
type Sender interface {
	Send(msg any, category Category) error
}

// Recorder persists status reports. It is optional.
type Recorder interface {
	RecordStatus(ctx context.Context, msg Message) error
}

// WithLogger sets the logger for the reporter
func WithLogger(logger *slog.Logger) func(r *Reporter) {
	return func(r *Reporter) {
		r.logger = logger.With(slog.String("component", "reporter"))
	}
}

// WithRecorder stores every emitted status report
func WithRecorder(recorder Recorder) func(r *Reporter) {
	return func(r *Reporter) {
		r.recorder = recorder
	}
}

// Reporter emits status reports and sensor samples to the ground station.
// Transport and recorder failures are logged and never returned.
type Reporter struct {
	sender   Sender
	recorder Recorder
	logger   *slog.Logger
}

// NewReporter creates a reporter with a discard logger
func NewReporter(sender Sender, options ...func(r *Reporter)) *Reporter {
	r := Reporter{
		sender: sender,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&r)
	}

	return &r
}

// BuildStatus returns a fresh zero status template
func (r *Reporter) BuildStatus() Message {
	return New()
}

// Emit sends msg with the given category. Status messages are also recorded.
func (r *Reporter) Emit(ctx context.Context, msg any, category Category) {
	if err := r.sender.Send(msg, category); err != nil {
		r.logger.Error("sending message", slog.String("category", category.String()), slog.String("error", err.Error()))
	}

	report, ok := msg.(Message)
	if !ok {
		return
	}

	r.logger.Info("status reported", slog.String("status", report.String()))

	if r.recorder == nil {
		return
	}
	if err := r.recorder.RecordStatus(ctx, report); err != nil {
		r.logger.Error("recording status", slog.String("error", err.Error()))
	}
}
