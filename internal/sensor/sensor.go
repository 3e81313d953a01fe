// Package sensor acquires distance samples from ultrasonic ranging sensor
// streaming 4 byte frames over UART.
package sensor

import (
	"time"

	"github.com/temoto/floodnode/hardware/uart"
	"github.com/temoto/floodnode/log2"
)

const (
	DefaultMinMM   = 30
	DefaultMaxMM   = 4500
	DefaultDivisor = 10 // mm -> cm
	// sensor streams ~10 frames/s, poll cadence is seconds, keep enough to hold backlog
	readChunk = 256
)

type Config struct {
	MinMM   uint16
	MaxMM   uint16
	Divisor float64
}

func (c *Config) setDefaults() {
	if c.MinMM == 0 {
		c.MinMM = DefaultMinMM
	}
	if c.MaxMM == 0 {
		c.MaxMM = DefaultMaxMM
	}
	if c.Divisor == 0 {
		c.Divisor = DefaultDivisor
	}
}

// Sample is one acquisition result. Invalid samples carry Err and must be discarded.
type Sample struct {
	Raw   uint16  // millimeters as received
	Value float64 // Raw/Divisor, node working unit
	Valid bool
	Err   error
	At    time.Time
}

type Stat struct {
	Valid   uint32
	Invalid uint32
}

type syncState uint8

const (
	synced    syncState = iota // pending starts at frame boundary
	tentative                  // boundary assumed right after one rejected frame
	lost                       // boundary unknown
)

type Acquirer struct {
	cfg     Config
	sync    syncState
	port    uart.Port
	log     *log2.Log
	now     func() time.Time
	pending []byte
	buf     [readChunk]byte
	stat    Stat
}

func NewAcquirer(port uart.Port, cfg Config, log *log2.Log, now func() time.Time) *Acquirer {
	cfg.setDefaults()
	if now == nil {
		now = time.Now
	}
	return &Acquirer{
		cfg:     cfg,
		port:    port,
		log:     log,
		now:     now,
		pending: make([]byte, 0, readChunk+FrameLength),
	}
}

func (a *Acquirer) Stat() Stat { return a.stat }

// Acquire never blocks: it consumes what the port has buffered right now
// and returns the freshest valid frame. Incomplete tail is kept for next call.
func (a *Acquirer) Acquire() Sample {
	s := a.acquire()
	s.At = a.now()
	if s.Valid {
		a.stat.Valid++
	} else {
		a.stat.Invalid++
		a.log.Debugf("sensor: %v", s.Err)
	}
	return s
}

func (a *Acquirer) acquire() Sample {
	if err := a.drain(); err != nil {
		return invalid(&FrameError{Reason: ReasonIO, Cause: err})
	}

	// result only matters when no valid frame was found
	var result error = &FrameError{Reason: ReasonShort, Frame: append([]byte(nil), a.pending...)}
	var mm uint16
	found := false
	accept := func(v uint16) {
		mm, found = v, true
		a.sync = synced
		a.pending = a.pending[FrameLength:]
	}
	for len(a.pending) >= FrameLength {
		if a.sync == lost {
			i := indexHeader(a.pending)
			if i < 0 {
				result = &FrameError{Reason: ReasonSentinel, Frame: append([]byte(nil), a.pending...)}
				a.pending = a.pending[:0]
				break
			}
			if i > 0 {
				result = &FrameError{Reason: ReasonSentinel, Frame: append([]byte(nil), a.pending[:i]...)}
				a.pending = a.pending[i:]
				continue
			}
			v, err := DecodeFrame(a.pending)
			if err != nil {
				result = err
				a.pending = a.pending[1:]
				continue
			}
			// candidate may be built from pieces of two frames, trust it only with valid successor
			if len(a.pending) < 2*FrameLength {
				break
			}
			if _, err := DecodeFrame(a.pending[FrameLength:]); err != nil {
				a.pending = a.pending[1:]
				continue
			}
			accept(v)
			continue
		}

		v, err := DecodeFrame(a.pending)
		if err != nil {
			result = err
			if a.sync == synced {
				// corrupted bytes keep frame length, next frame starts right after
				a.sync = tentative
				a.pending = a.pending[FrameLength:]
			} else {
				a.sync = lost
				a.pending = a.pending[1:]
			}
			continue
		}
		accept(v)
	}
	a.compact()

	if !found {
		return invalid(result)
	}
	if mm < a.cfg.MinMM || mm > a.cfg.MaxMM {
		return invalid(&FrameError{Reason: ReasonRange, Raw: mm})
	}
	return Sample{Raw: mm, Value: float64(mm) / a.cfg.Divisor, Valid: true}
}

func (a *Acquirer) drain() error {
	n, err := a.port.Buffered()
	if err != nil {
		return err
	}
	for n > 0 {
		m := n
		if m > len(a.buf) {
			m = len(a.buf)
		}
		got, err := a.port.Read(a.buf[:m])
		if err != nil {
			return err
		}
		if got == 0 {
			break
		}
		a.pending = append(a.pending, a.buf[:got]...)
		// only the newest frames matter
		if over := len(a.pending) - readChunk; over > 0 {
			a.pending = a.pending[over:]
			a.sync = lost
		}
		n -= got
	}
	return nil
}

func (a *Acquirer) compact() {
	if len(a.pending) == 0 {
		a.pending = a.pending[:0]
		return
	}
	a.pending = append(a.pending[:0:0], a.pending...)
}

func indexHeader(b []byte) int {
	for i, x := range b {
		if x == FrameHeader {
			return i
		}
	}
	return -1
}

func invalid(err error) Sample { return Sample{Err: err} }
