// Package ina219 reads bus voltage and current from TI INA219 power monitor.
package ina219

import (
	"github.com/juju/errors"

	"github.com/temoto/floodnode/hardware/i2c"
)

const DefaultAddr byte = 0x40

const (
	regConfig      byte = 0x00
	regShuntVolt   byte = 0x01
	regBusVolt     byte = 0x02
	regCalibration byte = 0x05
)

// 32V bus range, 320mV shunt range, 12 bit ADC, continuous shunt+bus
const configDefault uint16 = 0x399f

const (
	busVoltLSB   = 0.004   // V
	shuntVoltLSB = 0.00001 // V
)

type Dev struct {
	bus         i2c.Bus
	addr        byte
	shuntOhm    float64
	initialized bool
}

func New(bus i2c.Bus, addr byte, shuntMilliOhm int) *Dev {
	if addr == 0 {
		addr = DefaultAddr
	}
	if shuntMilliOhm <= 0 {
		shuntMilliOhm = 100
	}
	return &Dev{bus: bus, addr: addr, shuntOhm: float64(shuntMilliOhm) / 1000}
}

// Init writes configuration and reads it back, that doubles as presence check.
func (d *Dev) Init() error {
	if err := d.bus.Init(); err != nil {
		return errors.Annotate(err, "ina219 bus")
	}
	if err := i2c.WriteReg16(d.bus, d.addr, regConfig, configDefault); err != nil {
		return errors.Annotatef(err, "ina219 addr=%02x config", d.addr)
	}
	got, err := i2c.ReadReg16(d.bus, d.addr, regConfig)
	if err != nil {
		return errors.Annotatef(err, "ina219 addr=%02x config readback", d.addr)
	}
	if got != configDefault {
		return errors.Errorf("ina219 addr=%02x config readback=%04x expected=%04x", d.addr, got, configDefault)
	}
	d.initialized = true
	return nil
}

// BusVoltage in volts.
func (d *Dev) BusVoltage() (float64, error) {
	if !d.initialized {
		return 0, errors.New("ina219 not initialized")
	}
	raw, err := i2c.ReadReg16(d.bus, d.addr, regBusVolt)
	if err != nil {
		return 0, errors.Annotate(err, "ina219 bus voltage")
	}
	// bit0 OVF math overflow
	if raw&0x01 != 0 {
		return 0, errors.Errorf("ina219 bus voltage overflow raw=%04x", raw)
	}
	return float64(raw>>3) * busVoltLSB, nil
}

// Current in milliamperes, derived from shunt voltage and resistance.
func (d *Dev) Current() (float64, error) {
	if !d.initialized {
		return 0, errors.New("ina219 not initialized")
	}
	raw, err := i2c.ReadReg16(d.bus, d.addr, regShuntVolt)
	if err != nil {
		return 0, errors.Annotate(err, "ina219 shunt voltage")
	}
	shuntV := float64(int16(raw)) * shuntVoltLSB
	return shuntV / d.shuntOhm * 1000, nil
}
