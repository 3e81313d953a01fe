package i2c

import (
	"encoding/binary"

	"github.com/juju/errors"
)

// Register helpers for pointer-addressed devices.

func ReadRegs(bus Bus, addr, reg byte, buf []byte) error {
	return errors.Annotatef(bus.Tx(addr, []byte{reg}, buf), "read reg=%02x", reg)
}

func WriteRegs(bus Bus, addr, reg byte, data ...byte) error {
	bw := make([]byte, 0, 1+len(data))
	bw = append(bw, reg)
	bw = append(bw, data...)
	return errors.Annotatef(bus.Tx(addr, bw, nil), "write reg=%02x", reg)
}

func ReadReg8(bus Bus, addr, reg byte) (byte, error) {
	var buf [1]byte
	err := ReadRegs(bus, addr, reg, buf[:])
	return buf[0], err
}

// ReadReg16 reads big-endian 16 bit register.
func ReadReg16(bus Bus, addr, reg byte) (uint16, error) {
	var buf [2]byte
	if err := ReadRegs(bus, addr, reg, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}

func WriteReg16(bus Bus, addr, reg byte, value uint16) error {
	return WriteRegs(bus, addr, reg, byte(value>>8), byte(value))
}
