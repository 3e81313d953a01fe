// Package power samples node consumption from bus power monitor.
// Unavailable monitor is normal operation: telemetry omits the field.
package power

import (
	"github.com/juju/errors"

	"github.com/temoto/floodnode/log2"
)

var ErrUnavailable = errors.New("power monitor unavailable")

type Monitor interface {
	BusVoltage() (float64, error) // V
	Current() (float64, error)    // mA
}

type Sampler struct {
	dev Monitor
	log *log2.Log
}

// NewSampler with nil dev or non-nil initErr always reports ErrUnavailable.
func NewSampler(dev Monitor, initErr error, log *log2.Log) *Sampler {
	if initErr != nil {
		log.Errorf("power: monitor init err=%v", initErr)
		dev = nil
	}
	return &Sampler{dev: dev, log: log}
}

func IsUnavailable(err error) bool { return errors.Cause(err) == ErrUnavailable }

// Read returns instantaneous watts.
func (s *Sampler) Read() (float64, error) {
	if s == nil || s.dev == nil {
		return 0, ErrUnavailable
	}
	volts, err := s.dev.BusVoltage()
	if err != nil {
		s.log.Debugf("power: %v", err)
		return 0, errors.Wrap(err, ErrUnavailable)
	}
	milliamps, err := s.dev.Current()
	if err != nil {
		s.log.Debugf("power: %v", err)
		return 0, errors.Wrap(err, ErrUnavailable)
	}
	return Watts(volts, milliamps), nil
}

func Watts(volts, milliamps float64) float64 { return volts * milliamps / 1000 }
