// Package uart talks to byte-oriented serial channels: ranging sensor and cellular modem.
// All reads are non-blocking, callers poll Buffered() and own the timeout budget.
package uart

import (
	"fmt"
)

type Port interface {
	Open(path string, baud int) error
	Close() error
	Write(p []byte) (int, error)
	// Read returns immediately with what is available, possibly 0 bytes.
	Read(p []byte) (int, error)
	// Buffered reports number of received bytes ready to Read.
	Buffered() (int, error)
	// Discard drops received but not yet read bytes.
	Discard() error
}

var SupportedBauds = []int{9600, 19200, 38400, 57600, 115200}

func baudSupported(baud int) bool {
	for _, b := range SupportedBauds {
		if b == baud {
			return true
		}
	}
	return false
}

type UnsupportedBaud int

func (self UnsupportedBaud) Error() string {
	return fmt.Sprintf("uart: unsupported baud rate %d", int(self))
}

// New returns Port for driver name from config.
func New(driver string) (Port, error) {
	switch driver {
	case "", "file":
		return NewFilePort(), nil
	case "null":
		return NewNullPort(), nil
	}
	return nil, fmt.Errorf("uart: unknown driver=%s valid: file, null", driver)
}
