// Package node runs measurement cycle: acquire -> evaluate -> maybe encode and transmit.
// Node owns all mutable state, cycles never overlap.
package node

import (
	"context"
	"fmt"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"

	"github.com/temoto/floodnode/internal/alert"
	"github.com/temoto/floodnode/internal/sensor"
	"github.com/temoto/floodnode/internal/tele"
	"github.com/temoto/floodnode/log2"
)

const DefaultInterval = 2 * time.Second

type LevelMode uint8

const (
	// reading is water level
	LevelDirect LevelMode = iota
	// sensor looks down from basin top, level = basin height - reading
	LevelInvert
)

func ParseLevelMode(s string) (LevelMode, error) {
	switch s {
	case "", "direct":
		return LevelDirect, nil
	case "invert":
		return LevelInvert, nil
	}
	return 0, errors.NotValidf("level_mode=%s valid: direct, invert", s)
}

func (m LevelMode) String() string {
	switch m {
	case LevelDirect:
		return "direct"
	case LevelInvert:
		return "invert"
	}
	return fmt.Sprintf("LevelMode(%d)", uint8(m))
}

type Config struct {
	Interval      time.Duration
	ReportNormal  time.Duration // 0 disables normal_reading heartbeat
	LevelMode     LevelMode
	BasinHeightCM float64
}

type Acquirer interface {
	Acquire() sensor.Sample
}

type Node struct {
	cfg     Config
	log     *log2.Log
	acq     Acquirer
	machine *alert.Machine
	tele    *tele.Tele

	lastReport time.Time
	now        func() time.Time
}

type CycleResult struct {
	Sample  sensor.Sample
	Level   float64
	Event   alert.Event
	Emitted bool
	Packet  tele.Packet
	SendErr error
}

func (r CycleResult) String() string {
	if !r.Sample.Valid {
		return fmt.Sprintf("sample invalid: %v", r.Sample.Err)
	}
	if !r.Emitted {
		return fmt.Sprintf("level=%.1fcm no event", r.Level)
	}
	status := "sent"
	if r.SendErr != nil {
		status = "send failed: " + r.SendErr.Error()
	}
	return fmt.Sprintf("level=%.1fcm capacity=%.0f%% event=%s %s", r.Level, r.Packet.CapacityPct, r.Event, status)
}

func New(cfg Config, acq Acquirer, machine *alert.Machine, t *tele.Tele, log *log2.Log) *Node {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Node{
		cfg:     cfg,
		log:     log,
		acq:     acq,
		machine: machine,
		tele:    t,
		now:     time.Now,
	}
}

func (self *Node) State() alert.State { return self.machine.State() }

func (self *Node) level(value float64) float64 {
	if self.cfg.LevelMode == LevelInvert {
		l := self.cfg.BasinHeightCM - value
		if l < 0 {
			l = 0
		}
		return l
	}
	return value
}

// Cycle runs one measurement. Invalid sample skips everything else.
func (self *Node) Cycle() CycleResult {
	r := CycleResult{Sample: self.acq.Acquire()}
	if !r.Sample.Valid {
		return r
	}
	at := r.Sample.At
	if at.IsZero() {
		at = self.now()
	}
	r.Level = self.level(r.Sample.Value)

	r.Event, r.Emitted = self.machine.Evaluate(r.Level, at)
	if !r.Emitted && self.heartbeatDue(at) {
		r.Event, r.Emitted = alert.Heartbeat(r.Level, at), true
	}
	if !r.Emitted {
		return r
	}
	self.lastReport = at
	switch r.Event.Reason {
	case alert.ReasonEnter, alert.ReasonEscalate, alert.ReasonClear:
		self.log.Infof("alert %s", r.Event)
	default:
		self.log.Debugf("alert %s", r.Event)
	}

	r.Packet, r.SendErr = self.tele.Send(r.Event)
	if r.SendErr != nil {
		self.log.Errorf("node: %v", r.SendErr)
	}
	m := self.tele.Metrics()
	self.log.Infof("tele packets=%d bytes=%d bps=%.1f capacity=%.0f%%",
		m.PacketsSent(), m.BytesSent(), tele.BitsPerSecond(m.BytesSent(), m.Uptime(at)), r.Packet.CapacityPct)
	return r
}

func (self *Node) heartbeatDue(at time.Time) bool {
	if self.cfg.ReportNormal <= 0 || self.machine.State() != alert.Normal {
		return false
	}
	return self.lastReport.IsZero() || at.Sub(self.lastReport) >= self.cfg.ReportNormal
}

// Run cycles on interval until alive is stopped or ctx done. A stuck exchange
// delays next cycle by at most its timeout budget.
func (self *Node) Run(ctx context.Context, a *alive.Alive) {
	tmr := time.NewTicker(self.cfg.Interval)
	defer tmr.Stop()
	for {
		r := self.Cycle()
		if !r.Sample.Valid {
			self.log.Debugf("node cycle skipped: %v", r.Sample.Err)
		}
		select {
		case <-tmr.C:
		case <-a.StopChan():
			return
		case <-ctx.Done():
			return
		}
	}
}
