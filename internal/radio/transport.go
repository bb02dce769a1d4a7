package radio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"

	"github.com/roman-kulish/flight-control/internal/command"
	"github.com/roman-kulish/flight-control/internal/status"
)

const (
	// DefaultOutboundQueue is the number of messages buffered for the writer
	DefaultOutboundQueue = 64

	// MaxLineLength is the longest inbound message accepted. Longer lines are
	// dropped and reading carries on.
	MaxLineLength = 64 * 1024
)

// WithLogger sets the logger for the transport
func WithLogger(logger *slog.Logger) func(t *Transport) {
	return func(t *Transport) {
		t.logger = logger.With(slog.String("component", "radio"))
	}
}

// WithOutboundQueue sets the size of the outbound message queue
func WithOutboundQueue(size int) func(t *Transport) {
	return func(t *Transport) {
		if size > 0 {
			t.outbound = make(chan []byte, size)
		}
	}
}

// WithStaleAfter marks the link unhealthy when nothing was received for d.
// Zero disables the check.
func WithStaleAfter(d time.Duration) func(t *Transport) {
	return func(t *Transport) {
		t.staleAfter = d
	}
}

// Transport exchanges newline-delimited JSON messages with the ground station
// over a radio modem. Sending never blocks the caller: messages are queued
// and written by a dedicated goroutine.
type Transport struct {
	rw io.ReadWriteCloser

	outbound   chan []byte
	staleAfter time.Duration

	intakeMu sync.RWMutex
	intake   *command.Intake

	isRunning  atomic.Bool
	linkFailed atomic.Bool
	lastRx     atomic.Int64
	closeOnce  sync.Once
	closeErr   error
	done       chan struct{}
	wg         sync.WaitGroup

	logger *slog.Logger
}

// Open opens the radio modem on a serial port
func Open(port string, baudRate int, options ...func(t *Transport)) (*Transport, error) {
	p, err := serial.Open(port, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, fmt.Errorf("opening serial port %s: %w", port, err)
	}

	return New(p, options...), nil
}

// New creates a transport on top of rw with a discard logger
func New(rw io.ReadWriteCloser, options ...func(t *Transport)) *Transport {
	t := Transport{
		rw:       rw,
		outbound: make(chan []byte, DefaultOutboundQueue),
		done:     make(chan struct{}),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&t)
	}

	return &t
}

// Bind registers the intake decoded commands are delivered to
func (t *Transport) Bind(intake *command.Intake) {
	t.intakeMu.Lock()
	defer t.intakeMu.Unlock()

	t.intake = intake
}

// Start launches the receive and send goroutines. They stop when ctx is
// cancelled or the transport is closed.
func (t *Transport) Start(ctx context.Context) error {
	if !t.isRunning.CompareAndSwap(false, true) {
		return fmt.Errorf("transport is already running")
	}

	t.lastRx.Store(time.Now().UnixNano())

	t.wg.Add(2)
	go t.receive()
	go t.send()

	go func() {
		select {
		case <-ctx.Done():
			_ = t.Close()
		case <-t.done:
		}
	}()

	return nil
}

// Send marshals msg and queues it for transmission
func (t *Transport) Send(msg any, category status.Category) error {
	select {
	case <-t.done:
		return NewTransportFault("send", ErrClosed)
	default:
	}

	p, err := json.Marshal(msg)
	if err != nil {
		return NewTransportFault("send", fmt.Errorf("marshaling %s message: %w", category, err))
	}
	if len(p) == 0 || bytes.Equal(p, []byte("{}")) || bytes.Equal(p, []byte("null")) {
		return nil // nothing worth sending
	}

	select {
	case t.outbound <- p:
		return nil
	default:
		return NewTransportFault("send", ErrQueueFull)
	}
}

// Healthy reports whether the link is usable
func (t *Transport) Healthy() bool {
	if !t.isRunning.Load() || t.linkFailed.Load() {
		return false
	}
	if t.staleAfter <= 0 {
		return true
	}

	last := time.Unix(0, t.lastRx.Load())
	return time.Since(last) < t.staleAfter
}

// Close stops the goroutines and closes the underlying port. It is safe to
// call Close multiple times.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)
		t.closeErr = t.rw.Close()
		t.wg.Wait()
		t.isRunning.Store(false)
	})

	return t.closeErr
}

func (t *Transport) receive() {
	defer t.wg.Done()

	reader := bufio.NewReaderSize(t.rw, MaxLineLength)
	for {
		p, err := reader.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			t.lastRx.Store(time.Now().UnixNano())
			t.logger.Warn("dropping oversized inbound message", slog.Int("limit", MaxLineLength))
			err = discardLine(reader)
			p = nil
		}

		if len(p) > 0 {
			t.lastRx.Store(time.Now().UnixNano())
			t.dispatch(strings.TrimSpace(string(p)))
		}

		if err != nil {
			t.receiveFailed(err)
			return
		}
	}
}

// receiveFailed latches the link as failed unless the transport was closed on purpose
func (t *Transport) receiveFailed(err error) {
	select {
	case <-t.done:
		return // closed on purpose
	default:
	}

	t.linkFailed.Store(true)
	t.logger.Error(NewTransportFault("receive", err).Error())
}

func (t *Transport) dispatch(line string) {
	if line == "" {
		return
	}

	cmd, err := command.Decode([]byte(line))
	if err != nil {
		t.logger.Warn(fmt.Sprintf("dropping inbound message: %s", err.Error()), slog.String("line", line))
		return
	}

	t.intakeMu.RLock()
	intake := t.intake
	t.intakeMu.RUnlock()

	if intake == nil {
		t.logger.Warn("no intake bound, dropping command", slog.String("command", cmd.Kind.String()))
		return
	}

	intake.Offer(cmd)
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

func (t *Transport) send() {
	defer t.wg.Done()

	for {
		select {
		case <-t.done:
			return

		case p := <-t.outbound:
			if _, err := t.rw.Write(append(p, '\n')); err != nil {
				if errors.Is(err, io.ErrClosedPipe) {
					return
				}
				t.logger.Error(NewTransportFault("write", err).Error())
			}
		}
	}
}
