// Package ds3231 reads and sets Maxim DS3231 real-time clock.
// Clock keeps UTC, 24 hour mode, years 2000-2099.
package ds3231

import (
	"time"

	"github.com/juju/errors"

	"github.com/temoto/floodnode/hardware/i2c"
)

const DefaultAddr byte = 0x68

const (
	regSeconds byte = 0x00
	regStatus  byte = 0x0f

	statusOSF byte = 0x80 // oscillator stop flag
)

type Dev struct {
	bus  i2c.Bus
	addr byte
}

func New(bus i2c.Bus, addr byte) *Dev {
	if addr == 0 {
		addr = DefaultAddr
	}
	return &Dev{bus: bus, addr: addr}
}

// LostPower reports oscillator stop flag: time registers are not trustworthy.
func (d *Dev) LostPower() (bool, error) {
	status, err := i2c.ReadReg8(d.bus, d.addr, regStatus)
	if err != nil {
		return false, errors.Annotate(err, "ds3231 status")
	}
	return status&statusOSF != 0, nil
}

func (d *Dev) Read() (time.Time, error) {
	var buf [7]byte
	if err := i2c.ReadRegs(d.bus, d.addr, regSeconds, buf[:]); err != nil {
		return time.Time{}, errors.Annotate(err, "ds3231 time")
	}
	sec := fromBCD(buf[0] & 0x7f)
	min := fromBCD(buf[1] & 0x7f)
	var hour int
	if buf[2]&0x40 != 0 { // 12 hour mode
		hour = fromBCD(buf[2]&0x1f) % 12
		if buf[2]&0x20 != 0 {
			hour += 12
		}
	} else {
		hour = fromBCD(buf[2] & 0x3f)
	}
	day := fromBCD(buf[4] & 0x3f)
	month := fromBCD(buf[5] & 0x1f)
	year := 2000 + fromBCD(buf[6])
	if sec > 59 || min > 59 || hour > 23 || day < 1 || day > 31 || month < 1 || month > 12 {
		return time.Time{}, errors.NotValidf("ds3231 time registers=%x", buf)
	}
	return time.Date(year, time.Month(month), day, hour, min, sec, 0, time.UTC), nil
}

// Set writes time and clears oscillator stop flag.
func (d *Dev) Set(t time.Time) error {
	t = t.UTC()
	if t.Year() < 2000 || t.Year() > 2099 {
		return errors.NotValidf("ds3231 year=%d", t.Year())
	}
	err := i2c.WriteRegs(d.bus, d.addr, regSeconds,
		toBCD(t.Second()),
		toBCD(t.Minute()),
		toBCD(t.Hour()),
		toBCD(int(t.Weekday())+1),
		toBCD(t.Day()),
		toBCD(int(t.Month())),
		toBCD(t.Year()-2000),
	)
	if err != nil {
		return errors.Annotate(err, "ds3231 set time")
	}
	status, err := i2c.ReadReg8(d.bus, d.addr, regStatus)
	if err != nil {
		return errors.Annotate(err, "ds3231 status")
	}
	return errors.Annotate(i2c.WriteRegs(d.bus, d.addr, regStatus, status&^statusOSF), "ds3231 clear OSF")
}

func fromBCD(b byte) int { return int(b>>4)*10 + int(b&0x0f) }
func toBCD(i int) byte   { return byte(i/10)<<4 | byte(i%10) }
