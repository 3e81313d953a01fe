package ina219

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temoto/floodnode/hardware/i2c"
)

func TestRead(t *testing.T) {
	t.Parallel()
	bus := i2c.NewMockBus()
	bus.Set(DefaultAddr, regConfig, 0, 0)
	// 5.0V -> 1250<<3
	bus.Set(DefaultAddr, regBusVolt, 0x27, 0x10)
	// 12.5mV over 100mOhm = 125mA, raw 1250
	bus.Set(DefaultAddr, regShuntVolt, 0x04, 0xe2)

	d := New(bus, 0, 0)
	require.NoError(t, d.Init())
	assert.Equal(t, []byte{0x39, 0x9f}, bus.Get(DefaultAddr, regConfig))

	v, err := d.BusVoltage()
	require.NoError(t, err)
	assert.InDelta(t, 5.0, v, 1e-9)
	ma, err := d.Current()
	require.NoError(t, err)
	assert.InDelta(t, 125.0, ma, 1e-6)
}

func TestNegativeCurrent(t *testing.T) {
	t.Parallel()
	bus := i2c.NewMockBus()
	bus.Set(DefaultAddr, regConfig)
	bus.Set(DefaultAddr, regShuntVolt, 0xfb, 0x1e) // -1250
	d := New(bus, DefaultAddr, 100)
	require.NoError(t, d.Init())
	ma, err := d.Current()
	require.NoError(t, err)
	assert.InDelta(t, -125.0, ma, 1e-6)
}

func TestAbsent(t *testing.T) {
	t.Parallel()
	d := New(i2c.NewMockBus(), DefaultAddr, 100)
	assert.Error(t, d.Init())
	_, err := d.BusVoltage()
	assert.Error(t, err)
}

func TestOverflow(t *testing.T) {
	t.Parallel()
	bus := i2c.NewMockBus()
	bus.Set(DefaultAddr, regConfig)
	bus.Set(DefaultAddr, regBusVolt, 0xff, 0xf9)
	d := New(bus, DefaultAddr, 100)
	require.NoError(t, d.Init())
	_, err := d.BusVoltage()
	assert.Error(t, err)
}
