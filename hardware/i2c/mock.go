package i2c

import (
	"sync"

	"github.com/juju/errors"
)

// MockBus holds register contents per device address.
// Write stores payload at register, read returns stored bytes from register.
// Absent device responds with error, like missing ACK.
type MockBus struct {
	lk   sync.Mutex
	Regs map[byte]map[byte][]byte
	Err  error
	Txs  int
}

func NewMockBus() *MockBus {
	return &MockBus{Regs: make(map[byte]map[byte][]byte)}
}

func (m *MockBus) Init() error  { return m.Err }
func (m *MockBus) Close() error { return nil }

func (m *MockBus) Set(addr, reg byte, data ...byte) {
	m.lk.Lock()
	defer m.lk.Unlock()
	dev, ok := m.Regs[addr]
	if !ok {
		dev = make(map[byte][]byte)
		m.Regs[addr] = dev
	}
	dev[reg] = append([]byte(nil), data...)
}

func (m *MockBus) Get(addr, reg byte) []byte {
	m.lk.Lock()
	defer m.lk.Unlock()
	return append([]byte(nil), m.Regs[addr][reg]...)
}

func (m *MockBus) Tx(addr byte, bw []byte, br []byte) error {
	m.lk.Lock()
	m.Txs++
	err := m.Err
	dev, ok := m.Regs[addr]
	m.lk.Unlock()
	if err != nil {
		return err
	}
	if !ok {
		return errors.NotFoundf("i2c mock device addr=%02x", addr)
	}
	if len(bw) == 0 {
		return errors.Errorf("i2c mock addr=%02x register pointer required", addr)
	}
	reg := bw[0]
	if len(bw) > 1 {
		m.Set(addr, reg, bw[1:]...)
	}
	if len(br) != 0 {
		m.lk.Lock()
		stored := dev[reg]
		for i := range br {
			br[i] = 0
		}
		copy(br, stored)
		m.lk.Unlock()
	}
	return nil
}
