package sensor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"

	"go.bug.st/serial"
)

const (
	ProcessHandlerName = "process"
	SerialHandlerName  = "serial"
)

// processHandler runs the acquisition program and reads its stdout
type processHandler struct {
	binPath string
	args    []string
	logger  *slog.Logger
}

// NewProcessHandler creates a handler running the given acquisition program.
// The program must write one JSON sample per line to stdout; stderr lines are
// logged as warnings.
func NewProcessHandler(program string, args []string, logger *slog.Logger) (Handler, error) {
	binPath, err := FindRuntime(program)
	if err != nil {
		return nil, fmt.Errorf("error finding runtime: %w", err)
	}

	return &processHandler{binPath: binPath, args: args, logger: logger}, nil
}

func (h *processHandler) Open(ctx context.Context) (io.ReadCloser, error) {
	cmd := exec.CommandContext(ctx, h.binPath, h.args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("error creating stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("error creating stderr pipe: %w", err)
	}

	if err = cmd.Start(); err != nil {
		return nil, fmt.Errorf("error starting command: %w", err)
	}

	go h.handleStderr(stderr)

	return &processStream{Reader: stdout, cmd: cmd}, nil
}

func (h *processHandler) Name() string {
	return ProcessHandlerName
}

// handleStderr reads from stderr and logs each line
func (h *processHandler) handleStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		h.logger.Warn(fmt.Sprintf("%s >> %s", h.binPath, line)) // simple logging here
	}
}

// processStream kills the acquisition program on Close
type processStream struct {
	io.Reader
	cmd *exec.Cmd
}

func (p *processStream) Close() error {
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}

	var exitErr *exec.ExitError
	if err := p.cmd.Wait(); err != nil && !errors.As(err, &exitErr) && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("command exited with error: %w", err)
	}
	return nil
}

// serialHandler reads samples straight from a sensor board on a serial port
type serialHandler struct {
	port     string
	baudRate int
}

// NewSerialHandler creates a handler reading from the given serial port
func NewSerialHandler(port string, baudRate int) Handler {
	return &serialHandler{port: port, baudRate: baudRate}
}

func (h *serialHandler) Open(_ context.Context) (io.ReadCloser, error) {
	port, err := serial.Open(h.port, &serial.Mode{BaudRate: h.baudRate})
	if err != nil {
		return nil, fmt.Errorf("opening serial port %s: %w", h.port, err)
	}

	// boards reset when the port opens, discard the banner
	_ = port.ResetInputBuffer()
	if err = port.SetReadTimeout(serial.NoTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("configuring serial port %s: %w", h.port, err)
	}

	return port, nil
}

func (h *serialHandler) Name() string {
	return SerialHandlerName
}
