//go:build !linux

package uart

import "github.com/juju/errors"

type filePort struct{ NullPort }

func NewFilePort() *filePort { return &filePort{} }

func (self *filePort) Open(path string, baud int) error {
	return errors.NotSupportedf("uart file driver on this OS")
}
