package status

import (
	"encoding/json"
	"fmt"
)

const (
	// CategoryStatus is used for actuator status reports
	CategoryStatus Category = "status"

	// CategoryBalloon is used for forwarded sensor samples
	CategoryBalloon Category = "balloon"

	// Origin is the fixed origin field of every status message
	Origin = "status"
)

// Category tells the transport what kind of message it is sending
type Category string

func (c Category) String() string {
	return string(c)
}

// Flag is a 0/1 actuator status field
type Flag int

const (
	Failed Flag = 0
	OK     Flag = 1
)

// FlagOf converts a success bool into a status flag
func FlagOf(ok bool) Flag {
	if ok {
		return OK
	}
	return Failed
}

// Message is the actuator status report sent to the ground station
type Message struct {
	Origin        string `json:"origin"`
	QDM           Flag   `json:"QDM"`
	Ignition      Flag   `json:"Ignition"`
	Stabilization Flag   `json:"Stabilization"`
}

// New returns the zero status template
func New() Message {
	return Message{Origin: Origin}
}

func (m Message) String() string {
	return fmt.Sprintf("QDM=%d Ignition=%d Stabilization=%d", m.QDM, m.Ignition, m.Stabilization)
}

// UnmarshalJSON decodes a status message and rejects anything that is not a
// status report or carries a flag other than 0 or 1.
func (m *Message) UnmarshalJSON(p []byte) error {
	type message Message

	var v message
	if err := json.Unmarshal(p, &v); err != nil {
		return err
	}
	if v.Origin != Origin {
		return fmt.Errorf("status.Message: unexpected origin %q", v.Origin)
	}
	for name, f := range map[string]Flag{"QDM": v.QDM, "Ignition": v.Ignition, "Stabilization": v.Stabilization} {
		if f != Failed && f != OK {
			return fmt.Errorf("status.Message: invalid %s flag %d", name, f)
		}
	}

	*m = Message(v)
	return nil
}
