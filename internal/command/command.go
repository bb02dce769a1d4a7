package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	KindQDM       Kind = "QDM"
	KindStabilize Kind = "Stabilize"
	KindIgnition  Kind = "Ignition"
)

// ErrMissingKind is returned when an inbound message has no command field
var ErrMissingKind = errors.New("missing command kind")

// Kind is the command discriminator sent by the ground station. Kinds this
// controller does not know are kept as-is and ignored by the dispatcher.
type Kind string

func (k Kind) String() string {
	return string(k)
}

// Known returns true for kinds the controller acts on
func (k Kind) Known() bool {
	switch k {
	case KindQDM, KindStabilize, KindIgnition:
		return true
	default:
		return false
	}
}

// Command is a single ground station command, consumed exactly once
type Command struct {
	Kind       Kind
	Raw        json.RawMessage
	ReceivedAt time.Time
}

// Decode parses an inbound command message of the form {"command": "..."}
func Decode(p []byte) (Command, error) {
	var envelope struct {
		Command Kind `json:"command"`
	}
	if err := json.Unmarshal(p, &envelope); err != nil {
		return Command{}, fmt.Errorf("decoding command: %w", err)
	}
	if envelope.Command == "" {
		return Command{}, ErrMissingKind
	}

	return Command{
		Kind:       envelope.Command,
		Raw:        append(json.RawMessage(nil), p...),
		ReceivedAt: time.Now().UTC(),
	}, nil
}
