//go:build linux

package uart

import (
	"os"
	"syscall"
	"unsafe"

	"github.com/juju/errors"
	"golang.org/x/sys/unix"

	"github.com/temoto/floodnode/helpers"
)

const (
	cNCCS     = 19
	cTCSETSF2 = 0x402c542d
)

type cc_t byte
type speed_t uint32
type tcflag_t uint32
type termios2 struct {
	c_iflag  tcflag_t    // input mode flags
	c_oflag  tcflag_t    // output mode flags
	c_cflag  tcflag_t    // control mode flags
	c_lflag  tcflag_t    // local mode flags
	c_line   cc_t        // line discipline
	c_cc     [cNCCS]cc_t // control characters
	c_ispeed speed_t     // input speed
	c_ospeed speed_t     // output speed
}

var baudFlags = map[int]tcflag_t{
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
}

type filePort struct {
	f  *os.File
	t2 termios2
}

func NewFilePort() *filePort { return &filePort{} }

func (self *filePort) Open(path string, baud int) error {
	if self.f != nil {
		self.f.Close()
		self.f = nil
	}
	speed, ok := baudFlags[baud]
	if !ok {
		return UnsupportedBaud(baud)
	}
	f, err := os.OpenFile(path, syscall.O_RDWR|syscall.O_NOCTTY|syscall.O_CLOEXEC, 0600)
	if err != nil {
		return errors.Annotatef(err, "uart open path=%s", path)
	}
	// raw 8N1, VMIN=0 VTIME=0 makes read(2) return immediately
	self.t2 = termios2{
		c_cflag:  syscall.CLOCAL | syscall.CREAD | syscall.CS8 | speed,
		c_ispeed: speed_t(speed),
		c_ospeed: speed_t(speed),
	}
	if err = ioctl(f.Fd(), cTCSETSF2, uintptr(unsafe.Pointer(&self.t2))); err != nil {
		f.Close()
		return errors.Annotatef(err, "uart termios path=%s baud=%d", path, baud)
	}
	self.f = f
	return nil
}

func (self *filePort) Close() error {
	if self.f == nil {
		return nil
	}
	err := self.f.Close()
	self.f = nil
	return err
}

func (self *filePort) Write(p []byte) (int, error) {
	if self.f == nil {
		return 0, os.ErrClosed
	}
	if err := helpers.WriteAll(self.f, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (self *filePort) Read(p []byte) (int, error) {
	if self.f == nil {
		return 0, os.ErrClosed
	}
	n, err := syscall.Read(int(self.f.Fd()), p)
	if err == syscall.EAGAIN {
		return 0, nil
	}
	if n < 0 {
		n = 0
	}
	return n, err
}

func (self *filePort) Buffered() (int, error) {
	if self.f == nil {
		return 0, os.ErrClosed
	}
	n, err := unix.IoctlGetInt(int(self.f.Fd()), unix.TIOCINQ)
	return n, errors.Trace(err)
}

func (self *filePort) Discard() error {
	if self.f == nil {
		return os.ErrClosed
	}
	return unix.IoctlSetInt(int(self.f.Fd()), unix.TCFLSH, unix.TCIFLUSH)
}

func ioctl(fd uintptr, op, arg uintptr) error {
	r, _, errno := syscall.Syscall(syscall.SYS_IOCTL, fd, op, arg)
	if errno != 0 {
		return os.NewSyscallError("SYS_IOCTL", errno)
	}
	if r != 0 {
		return errors.Errorf("ioctl op=%x unknown error r=%d", op, r)
	}
	return nil
}
