// Package alert converts validated water level readings into blockage state
// with hysteresis, one-way escalation and time-boxed re-alerting.
package alert

import (
	"fmt"
	"time"

	"github.com/juju/errors"
)

type State uint8

const (
	Normal State = iota
	Flooded
	Escalated
)

func (s State) String() string {
	switch s {
	case Normal:
		return "normal"
	case Flooded:
		return "flooded"
	case Escalated:
		return "escalated"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// Type is wire value of alert_type.
type Type uint8

const (
	NormalReading Type = iota
	BlockageDetected
	BlockageCleared
)

func (t Type) String() string {
	switch t {
	case NormalReading:
		return "normal_reading"
	case BlockageDetected:
		return "blockage_detected"
	case BlockageCleared:
		return "blockage_cleared"
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

func (t Type) MarshalText() ([]byte, error) {
	if t > BlockageCleared {
		return nil, errors.NotValidf("alert type=%d", uint8(t))
	}
	return []byte(t.String()), nil
}

// Status is wire value of alert_status, derived so that
// status=false with blockage_detected cannot exist.
func (t Type) Status() bool { return t == BlockageDetected }

type Reason uint8

const (
	ReasonEnter Reason = iota + 1
	ReasonEscalate
	ReasonRepeat
	ReasonClear
	ReasonHeartbeat
)

func (r Reason) String() string {
	switch r {
	case ReasonEnter:
		return "enter"
	case ReasonEscalate:
		return "escalate"
	case ReasonRepeat:
		return "repeat"
	case ReasonClear:
		return "clear"
	case ReasonHeartbeat:
		return "heartbeat"
	}
	return fmt.Sprintf("Reason(%d)", uint8(r))
}

type Event struct {
	Type   Type
	Reason Reason
	State  State // after transition
	Level  float64
	At     time.Time
}

func (e Event) String() string {
	return fmt.Sprintf("%s/%s state=%s level=%.1f", e.Type, e.Reason, e.State, e.Level)
}

// Heartbeat is plain normal reading event, emitted by caller policy.
func Heartbeat(level float64, at time.Time) Event {
	return Event{Type: NormalReading, Reason: ReasonHeartbeat, State: Normal, Level: level, At: at}
}
