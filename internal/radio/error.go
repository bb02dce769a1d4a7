package radio

import (
	"errors"
	"fmt"
)

var (
	// ErrQueueFull is returned when the outbound queue cannot take another message
	ErrQueueFull = errors.New("outbound queue full")

	// ErrClosed is returned when sending on a closed transport
	ErrClosed = errors.New("transport closed")
)

// TransportFault wraps radio send and receive failures
type TransportFault struct {
	Op  string
	Err error
}

func NewTransportFault(op string, err error) *TransportFault {
	return &TransportFault{Op: op, Err: err}
}

func (e *TransportFault) Error() string {
	return fmt.Sprintf("transport fault: %s: %s", e.Op, e.Err)
}

func (e *TransportFault) Unwrap() error {
	return e.Err
}
