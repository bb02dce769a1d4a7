package sensor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/roman-kulish/flight-control/internal/telemetry"
)

const (
	// ParseErrorsThreshold defines the number of consecutive parse errors allowed
	ParseErrorsThreshold = 5

	// MaxLineLength is the longest line accepted from the acquisition stream.
	// Longer lines are dropped.
	MaxLineLength = 64 * 1024
)

var (
	// ErrTooManyParseErrors is returned when the number of consecutive parse errors exceeds the threshold
	ErrTooManyParseErrors = errors.New("too many consecutive parse errors")

	// ErrBrokenPipe is returned when there's an error reading from the acquisition stream
	ErrBrokenPipe = errors.New("broken pipe")
)

// Handler opens the line oriented stream an acquisition device writes its
// samples to, one JSON document per line.
type Handler interface {
	Open(ctx context.Context) (io.ReadCloser, error)
	Name() string
}

// WithLogger sets the logger for the source
func WithLogger(logger *slog.Logger) func(s *Source) {
	return func(s *Source) {
		s.logger = logger.With(
			slog.String("component", "source"),
			slog.String("handler", s.handler.Name()),
		)
	}
}

// WithParseErrorsThreshold sets the threshold for consecutive parse errors
func WithParseErrorsThreshold(threshold uint8) func(s *Source) {
	return func(s *Source) {
		if threshold > 0 {
			s.parseErrorsThreshold = threshold
		}
	}
}

// Source reads samples from an acquisition handler and publishes each one
// to a mailbox, overwriting whatever was there before.
type Source struct {
	handler Handler
	mailbox *telemetry.Mailbox

	isSampling atomic.Bool
	cancel     context.CancelFunc
	wg         sync.WaitGroup

	parseErrorsThreshold uint8
	logger               *slog.Logger
}

// NewSource creates a new Source instance with a discard logger
func NewSource(h Handler, mailbox *telemetry.Mailbox, options ...func(s *Source)) *Source {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger

	s := Source{
		handler:              h,
		mailbox:              mailbox,
		logger:               logger,
		parseErrorsThreshold: ParseErrorsThreshold,
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

// BeginSampling opens the handler stream and starts publishing samples. The
// returned channel is closed when sampling stops; it yields an error first if
// sampling stopped because of a failure.
func (s *Source) BeginSampling(ctx context.Context) (<-chan error, error) {
	if !s.isSampling.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("source is already running")
	}

	ctx, s.cancel = context.WithCancel(ctx)

	stream, err := s.handler.Open(ctx)
	if err != nil {
		s.cancel()
		s.isSampling.Store(false) // Reset running state on error
		return nil, fmt.Errorf("opening %s: %w", s.handler.Name(), err)
	}

	samplingStopped := make(chan error, 1)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(samplingStopped)

		// unblocks the scanner when the context is cancelled
		go func() {
			<-ctx.Done()
			_ = stream.Close()
		}()

		s.logger.Info("starting samples acquisition...")

		err := s.readSamples(ctx, stream)
		s.cancel()

		s.logger.Info("samples acquisition stopped")
		s.isSampling.Store(false)

		if err != nil {
			s.logger.Error(err.Error())
			samplingStopped <- err
		}
	}()

	return samplingStopped, nil
}

// Stop cancels sampling and waits for the reader goroutine to exit
func (s *Source) Stop() {
	if !s.isSampling.Load() {
		return // already stopped
	}

	s.cancel()
	s.wg.Wait()
}

// IsSampling returns true if the source is running
func (s *Source) IsSampling() bool {
	return s.isSampling.Load()
}

// readSamples reads r line by line, parses samples and publishes them.
func (s *Source) readSamples(ctx context.Context, r io.Reader) error {
	var parseErrors uint8

	reader := bufio.NewReaderSize(r, MaxLineLength)
	for {
		p, err := reader.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			s.logger.Warn("dropping oversized line", slog.Int("limit", MaxLineLength))
			err = discardLine(reader)
			p = nil
		}

		if line := strings.TrimSpace(string(p)); line != "" {
			if perr := s.publish(line, &parseErrors); perr != nil {
				return perr
			}
		}

		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return nil // stream closed on cancellation
		}
		if errors.Is(err, io.EOF) || errors.Is(err, fs.ErrClosed) {
			return nil
		}
		return fmt.Errorf("%w: error reading samples: %w", ErrBrokenPipe, err)
	}
}

// publish parses a single line and puts the sample into the mailbox. Null and
// empty payloads are skipped without counting as parse errors.
func (s *Source) publish(line string, parseErrors *uint8) error {
	sample, err := telemetry.ParseSample([]byte(line))
	if errors.Is(err, telemetry.ErrEmptySample) {
		s.logger.Debug("skipping empty sample")
		return nil
	}
	if err != nil {
		*parseErrors++
		s.logger.Warn(fmt.Sprintf("error parsing sample: %s", err.Error()), slog.String("line", line))

		if *parseErrors >= s.parseErrorsThreshold {
			return ErrTooManyParseErrors
		}
		return nil
	}

	*parseErrors = 0 // reset counter
	s.mailbox.Put(sample)
	return nil
}

// discardLine skips the rest of the current line
func discardLine(r *bufio.Reader) error {
	for {
		_, err := r.ReadSlice('\n')
		if !errors.Is(err, bufio.ErrBufferFull) {
			return err
		}
	}
}
