package state

import (
	"sync"
	"sync/atomic"

	"github.com/juju/errors"

	"github.com/temoto/floodnode/hardware/ds3231"
	"github.com/temoto/floodnode/hardware/i2c"
	"github.com/temoto/floodnode/hardware/ina219"
	"github.com/temoto/floodnode/hardware/led"
	"github.com/temoto/floodnode/hardware/uart"
	"github.com/temoto/floodnode/internal/clock"
	"github.com/temoto/floodnode/internal/modem"
	"github.com/temoto/floodnode/internal/power"
	"github.com/temoto/floodnode/log2"
)

type hardware struct {
	Sensor struct {
		once
		Port uart.Port
	}
	Modem struct {
		once
		Port   uart.Port
		Driver *modem.Driver
	}
	I2C struct {
		once
		Bus i2c.Bus
	}
	power struct {
		once
		s *power.Sampler
	}
	clock struct {
		once
		s clock.Source
	}
	led struct {
		once
		l led.Indicator
	}
}

func openPort(driver, device string, baud int) (uart.Port, error) {
	p, err := uart.New(driver)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if err = p.Open(device, baud); err != nil {
		return nil, errors.Annotatef(err, "uart open device=%s baud=%d", device, baud)
	}
	return p, nil
}

// SensorPort returns ranging sensor channel. Port set before first call is kept, tests use it.
func (g *Global) SensorPort() (uart.Port, error) {
	x := &g.Hardware.Sensor // short alias
	_ = x.do(func() error {
		if x.Port != nil {
			return nil
		}
		cfg := &g.Config.Hardware.Sensor
		x.Port, x.err = openPort(cfg.UartDriver, cfg.UartDevice, cfg.Baud)
		return x.err
	})
	return x.Port, x.err
}

func (g *Global) Modem() (*modem.Driver, error) {
	x := &g.Hardware.Modem
	_ = x.do(func() error {
		cfg := &g.Config.Hardware.Modem
		if x.Port == nil {
			if x.Port, x.err = openPort(cfg.UartDriver, cfg.UartDevice, cfg.Baud); x.err != nil {
				return x.err
			}
		}
		modemLog := g.Log.Clone(log2.LInfo)
		if cfg.LogDebug {
			modemLog.SetLevel(log2.LDebug)
		}
		x.Driver = modem.NewDriver(x.Port, g.Config.ModemConfig(), g.LED(), modemLog)
		return nil
	})
	return x.Driver, x.err
}

func (g *Global) I2C() (i2c.Bus, error) {
	x := &g.Hardware.I2C
	_ = x.do(func() error {
		if x.Bus != nil {
			return nil
		}
		cfg := &g.Config.Hardware.I2C
		x.Bus, x.err = i2c.New(cfg.Driver, byte(cfg.Bus))
		return errors.Annotatef(x.err, "config: i2c driver=%s", cfg.Driver)
	})
	return x.Bus, x.err
}

// Power never fails, unavailable monitor yields sampler that reports ErrUnavailable.
func (g *Global) Power() *power.Sampler {
	x := &g.Hardware.power
	_ = x.do(func() error {
		cfg := &g.Config.Hardware.Power
		if !cfg.Enable {
			x.s = power.NewSampler(nil, nil, g.Log)
			return nil
		}
		bus, err := g.I2C()
		if err != nil {
			x.s = power.NewSampler(nil, err, g.Log)
			return nil
		}
		dev := ina219.New(bus, byte(cfg.Addr), cfg.ShuntMilliOhm)
		x.s = power.NewSampler(dev, dev.Init(), g.Log)
		return nil
	})
	return x.s
}

// Clock never fails, see clock.NewRTC fallback.
func (g *Global) Clock() clock.Source {
	x := &g.Hardware.clock
	_ = x.do(func() error {
		cfg := &g.Config.Hardware.RTC
		if cfg.Driver == "system" {
			x.s = clock.System()
			return nil
		}
		var rtc clock.RTC
		if bus, err := g.I2C(); err != nil {
			g.Log.Errorf("clock: %v", err)
		} else if err = bus.Init(); err != nil {
			g.Log.Errorf("clock: i2c init err=%v", err)
		} else {
			rtc = ds3231.New(bus, byte(cfg.Addr))
		}
		x.s = clock.NewRTC(rtc, g.BuildTime, g.Log)
		return nil
	})
	return x.s
}

// LED never fails, broken indicator is replaced with noop.
func (g *Global) LED() led.Indicator {
	x := &g.Hardware.led
	_ = x.do(func() error {
		cfg := &g.Config.Hardware.LED
		x.l = led.Noop{}
		if !cfg.Enable {
			return nil
		}
		l, err := led.Open(cfg.Chip, uint32(cfg.Pin))
		if err != nil {
			g.Log.Errorf("led: %v", err)
			return nil
		}
		x.l = l
		return nil
	})
	return x.l
}

func (h *hardware) close(log *log2.Log) {
	closeLog := func(what string, err error) {
		if err != nil {
			log.Errorf("close %s err=%v", what, err)
		}
	}
	if h.Sensor.Port != nil {
		closeLog("sensor", h.Sensor.Port.Close())
	}
	if h.Modem.Port != nil {
		closeLog("modem", h.Modem.Port.Close())
	}
	if h.I2C.Bus != nil {
		closeLog("i2c", h.I2C.Bus.Close())
	}
	if h.led.l != nil {
		closeLog("led", h.led.l.Close())
	}
}

type once struct {
	sync.Mutex
	called uint32 // atomic bool
	err    error
}

func (o *once) done() bool {
	return atomic.LoadUint32(&o.called) == 1
}

func (o *once) do(f func() error) error {
	if o.done() { // fast path
		return o.err
	}
	o.Lock()
	defer o.Unlock()
	if o.done() {
		return o.err
	}
	o.err = f()
	atomic.StoreUint32(&o.called, 1)
	return o.err
}
