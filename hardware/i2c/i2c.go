// Package i2c provides Bus to talk with power monitor and real-time clock.
// Drivers: "file" uses kernel /dev/i2c-N ioctl directly, "periph" goes through periph.io registry.
package i2c

// Thanks to
// https://github.com/kidoman/embd and https://bitbucket.org/gmcbay/i2c

import (
	"fmt"
	"os"
	"sync"
	"syscall"
	"unsafe"

	"github.com/juju/errors"
)

const (
	// as defined in /usr/include/linux/i2c-dev.h
	I2C_RDWR = 0x0707 /* Combined R/W transfer (one STOP only) */

	// i2c_msg flags
	// as defined in /usr/include/linux/i2c.h
	I2C_M_RD = 0x0001 /* read data, from slave to master */
)

type i2c_msg struct {
	addr  uint16
	flags uint16
	len   uint16
	buf   uintptr
}

type i2c_rdwr_ioctl_data struct {
	msgs uintptr
	nmsg uint32
}

// Bus is shared by devices, transactions never overlap.
type Bus interface {
	Init() error
	Close() error
	Tx(addr byte, bw []byte, br []byte) error
}

// New returns Bus for driver name from config.
func New(driver string, busNo byte) (Bus, error) {
	switch driver {
	case "", "file":
		return NewFileBus(busNo), nil
	case "periph":
		return NewPeriphBus(fmt.Sprintf("%d", busNo)), nil
	}
	return nil, errors.NotValidf("i2c driver=%s valid: file, periph", driver)
}

type fileBus struct {
	busNo       byte
	file        *os.File
	lk          sync.Mutex
	initialized bool
}

func NewFileBus(busNo byte) Bus {
	return &fileBus{busNo: busNo}
}

func (b *fileBus) Init() error {
	b.lk.Lock()
	defer b.lk.Unlock()
	return b.init()
}

func (b *fileBus) init() error {
	if b.initialized {
		return nil
	}

	var err error
	path := fmt.Sprintf("/dev/i2c-%d", b.busNo)
	if b.file, err = os.OpenFile(path, os.O_RDWR, os.ModeExclusive); err != nil {
		return errors.Annotatef(err, "i2c open %s", path)
	}
	b.initialized = true

	return nil
}

func (b *fileBus) Tx(addr byte, bw []byte, br []byte) error {
	b.lk.Lock()
	defer b.lk.Unlock()

	if err := b.init(); err != nil {
		return err
	}

	nmsg := uint32(0)
	msgs := [2]i2c_msg{}
	if len(bw) != 0 {
		msgs[nmsg] = i2c_msg{
			addr: uint16(addr), flags: 0,
			buf: uintptr(unsafe.Pointer(&bw[0])), len: uint16(len(bw)),
		}
		nmsg++
	}
	if len(br) != 0 {
		msgs[nmsg] = i2c_msg{
			addr: uint16(addr), flags: I2C_M_RD,
			buf: uintptr(unsafe.Pointer(&br[0])), len: uint16(len(br)),
		}
		nmsg++
	}
	if nmsg == 0 {
		return errors.Errorf("i2c Tx addr=%02x both bw=br=empty nothing to do", addr)
	}

	rdwr_data := i2c_rdwr_ioctl_data{
		msgs: uintptr(unsafe.Pointer(&msgs[0])),
		nmsg: nmsg,
	}
	_, _, errno := syscall.Syscall(syscall.SYS_IOCTL,
		uintptr(b.file.Fd()), uintptr(I2C_RDWR), uintptr(unsafe.Pointer(&rdwr_data)))
	if errno != 0 {
		return errors.Annotatef(syscall.Errno(errno), "i2c Tx addr=%02x", addr)
	}
	return nil
}

func (b *fileBus) Close() error {
	b.lk.Lock()
	defer b.lk.Unlock()

	if !b.initialized {
		return nil
	}
	b.initialized = false
	return b.file.Close()
}
