// Package led drives status indicator, a single GPIO output line.
package led

import (
	"time"

	"github.com/juju/errors"
	gpio "github.com/temoto/gpio-cdev-go"
)

const consumerLabel = "floodnode-led"

type Indicator interface {
	Pulse(d time.Duration)
	Close() error
}

type Noop struct{}

func (Noop) Pulse(time.Duration) {}
func (Noop) Close() error        { return nil }

type GPIO struct {
	chip  gpio.Chiper
	lines gpio.Lineser
	set   gpio.LineSetFunc
	sleep func(time.Duration)
}

// Open requests output line on chip device, e.g. "/dev/gpiochip0".
func Open(chipName string, pin uint32) (*GPIO, error) {
	chip, err := gpio.Open(chipName, consumerLabel)
	if err != nil {
		return nil, errors.Annotatef(err, "led open chip=%s", chipName)
	}
	l, err := NewGPIO(chip, pin)
	if err != nil {
		chip.Close()
		return nil, err
	}
	return l, nil
}

func NewGPIO(chip gpio.Chiper, pin uint32) (*GPIO, error) {
	lines, err := chip.OpenLines(gpio.GPIOHANDLE_REQUEST_OUTPUT, consumerLabel, pin)
	if err != nil {
		return nil, errors.Annotatef(err, "led request line=%d", pin)
	}
	return &GPIO{
		chip:  chip,
		lines: lines,
		set:   lines.SetFunc(pin),
		sleep: time.Sleep,
	}, nil
}

// Pulse blocks for d. Flush errors are ignored, indicator is cosmetic.
func (l *GPIO) Pulse(d time.Duration) {
	l.set(1)
	_ = l.lines.Flush()
	l.sleep(d)
	l.set(0)
	_ = l.lines.Flush()
}

func (l *GPIO) Close() error {
	err := l.lines.Close()
	if cerr := l.chip.Close(); err == nil {
		err = cerr
	}
	return err
}
