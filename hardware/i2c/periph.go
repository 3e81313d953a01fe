package i2c

import (
	"sync"

	"github.com/juju/errors"
	"periph.io/x/periph/conn/i2c"
	"periph.io/x/periph/conn/i2c/i2creg"
	"periph.io/x/periph/host"
)

type periphBus struct {
	name string
	lk   sync.Mutex
	bus  i2c.BusCloser
}

// NewPeriphBus opens bus by periph registry name, e.g. "1" or "I2C1".
func NewPeriphBus(name string) Bus { return &periphBus{name: name} }

func (b *periphBus) Init() error {
	b.lk.Lock()
	defer b.lk.Unlock()
	return b.init()
}

func (b *periphBus) init() error {
	if b.bus != nil {
		return nil
	}
	if _, err := host.Init(); err != nil {
		return errors.Annotate(err, "periph/init")
	}
	bus, err := i2creg.Open(b.name)
	if err != nil {
		return errors.Annotatef(err, "i2creg.Open name=%s", b.name)
	}
	b.bus = bus
	return nil
}

func (b *periphBus) Tx(addr byte, bw []byte, br []byte) error {
	b.lk.Lock()
	defer b.lk.Unlock()
	if err := b.init(); err != nil {
		return err
	}
	return errors.Annotatef(b.bus.Tx(uint16(addr), bw, br), "i2c Tx addr=%02x", addr)
}

func (b *periphBus) Close() error {
	b.lk.Lock()
	defer b.lk.Unlock()
	if b.bus == nil {
		return nil
	}
	err := b.bus.Close()
	b.bus = nil
	return err
}
