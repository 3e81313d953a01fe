package alert

import (
	"time"

	"github.com/juju/errors"
)

// Thresholds in level units (cm).
type Config struct {
	Flood    float64
	Escalate float64
	Clear    float64
	Repeat   time.Duration
}

func (c Config) Validate() error {
	if !(c.Clear < c.Flood) {
		return errors.NotValidf("alert clear=%v must be below flood=%v", c.Clear, c.Flood)
	}
	if c.Escalate < c.Flood {
		return errors.NotValidf("alert escalate=%v must not be below flood=%v", c.Escalate, c.Flood)
	}
	if c.Repeat <= 0 {
		return errors.NotValidf("alert repeat=%v", c.Repeat)
	}
	return nil
}

// Machine owns alert state for node lifetime. Not safe for concurrent use.
type Machine struct {
	cfg       Config
	state     State
	lastAlert time.Time
	lastType  Type
}

func NewMachine(cfg Config) (*Machine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &Machine{cfg: cfg, state: Normal}, nil
}

func (self *Machine) State() State { return self.state }

// Evaluate applies one valid reading. Invalid readings must not reach here,
// caller skips the whole cycle instead.
func (self *Machine) Evaluate(level float64, now time.Time) (Event, bool) {
	ev := Event{Level: level, At: now}
	switch {
	case self.state == Normal:
		if level < self.cfg.Flood {
			return Event{}, false
		}
		self.state = Flooded
		ev.Type, ev.Reason = BlockageDetected, ReasonEnter

	case level <= self.cfg.Clear:
		self.state = Normal
		ev.Type, ev.Reason = BlockageCleared, ReasonClear

	case self.state == Flooded && level >= self.cfg.Escalate:
		self.state = Escalated
		ev.Type, ev.Reason = BlockageDetected, ReasonEscalate

	case now.Sub(self.lastAlert) >= self.cfg.Repeat:
		ev.Type, ev.Reason = self.lastType, ReasonRepeat

	default:
		return Event{}, false
	}
	if ev.Type != BlockageCleared {
		self.lastAlert = now
		self.lastType = ev.Type
	}
	ev.State = self.state
	return ev, true
}
