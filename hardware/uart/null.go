package uart

import (
	"bytes"
	"os"
	"sync"
)

// NullPort is in-memory Port for tests and bench runs without hardware.
// Feed() makes bytes available to Read. OnWrite may answer written data,
// that is how tests script a modem. Chunk>0 limits bytes per Read,
// simulating slow trickle of a real line.
type NullPort struct {
	lk      sync.Mutex
	rx      bytes.Buffer
	tx      bytes.Buffer
	open    bool
	Chunk   int
	OnWrite func(p []byte)
	// Garble, if set, transforms every written chunk before it is recorded
	Garble func(p []byte) []byte
}

func NewNullPort() *NullPort { return &NullPort{open: true} }

func (self *NullPort) Open(path string, baud int) error {
	if baud != 0 && !baudSupported(baud) {
		return UnsupportedBaud(baud)
	}
	self.lk.Lock()
	self.open = true
	self.lk.Unlock()
	return nil
}

func (self *NullPort) Close() error {
	self.lk.Lock()
	self.open = false
	self.lk.Unlock()
	return nil
}

func (self *NullPort) Write(p []byte) (int, error) {
	self.lk.Lock()
	if !self.open {
		self.lk.Unlock()
		return 0, os.ErrClosed
	}
	b := p
	if self.Garble != nil {
		b = self.Garble(append([]byte(nil), p...))
	}
	self.tx.Write(b)
	onWrite := self.OnWrite
	self.lk.Unlock()

	if onWrite != nil {
		onWrite(b)
	}
	return len(p), nil
}

func (self *NullPort) Read(p []byte) (int, error) {
	self.lk.Lock()
	defer self.lk.Unlock()
	if !self.open {
		return 0, os.ErrClosed
	}
	if self.Chunk > 0 && len(p) > self.Chunk {
		p = p[:self.Chunk]
	}
	n, _ := self.rx.Read(p)
	return n, nil
}

func (self *NullPort) Buffered() (int, error) {
	self.lk.Lock()
	defer self.lk.Unlock()
	if !self.open {
		return 0, os.ErrClosed
	}
	n := self.rx.Len()
	if self.Chunk > 0 && n > self.Chunk {
		n = self.Chunk
	}
	return n, nil
}

func (self *NullPort) Discard() error {
	self.lk.Lock()
	self.rx.Reset()
	self.lk.Unlock()
	return nil
}

func (self *NullPort) Feed(b []byte) {
	self.lk.Lock()
	self.rx.Write(b)
	self.lk.Unlock()
}

func (self *NullPort) FeedString(s string) { self.Feed([]byte(s)) }

// Written returns and resets everything written so far.
func (self *NullPort) Written() []byte {
	self.lk.Lock()
	defer self.lk.Unlock()
	b := append([]byte(nil), self.tx.Bytes()...)
	self.tx.Reset()
	return b
}
