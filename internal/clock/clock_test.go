package clock

import (
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temoto/floodnode/hardware/ds3231"
	"github.com/temoto/floodnode/hardware/i2c"
	"github.com/temoto/floodnode/log2"
)

type fakeRTC struct {
	lost    bool
	lostErr error
	t       time.Time
	readErr error
	setErr  error
	set     []time.Time
}

func (f *fakeRTC) LostPower() (bool, error) { return f.lost, f.lostErr }
func (f *fakeRTC) Read() (time.Time, error) { return f.t, f.readErr }
func (f *fakeRTC) Set(t time.Time) error {
	f.set = append(f.set, t)
	return f.setErr
}

var build = time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC)

func TestStamp(t *testing.T) {
	t.Parallel()
	rtc := &fakeRTC{t: time.Date(2026, 10, 19, 8, 30, 5, 0, time.UTC)}
	s := NewRTC(rtc, build, log2.NewTest(t, log2.LDebug))
	s.since = func(time.Time) time.Duration { return 90 * time.Second }
	assert.False(t, s.Seeded)
	assert.Equal(t, "2026-10-19T08:31:35", Stamp(s))
}

func TestSeed(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		rtc     RTC
		seeded  bool
		wantSet bool
	}{
		{"lost-power", &fakeRTC{lost: true}, true, true},
		{"lost-power-set-fails", &fakeRTC{lost: true, setErr: errors.New("nack")}, true, true},
		{"status-err", &fakeRTC{lostErr: errors.New("nack")}, true, false},
		{"read-err", &fakeRTC{readErr: errors.New("nack")}, true, false},
		{"absent", nil, true, false},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			s := NewRTC(c.rtc, build, log2.NewTest(t, log2.LDebug))
			s.since = func(time.Time) time.Duration { return 0 }
			assert.Equal(t, c.seeded, s.Seeded)
			assert.Equal(t, build, s.Now())
			if f, ok := c.rtc.(*fakeRTC); ok && c.wantSet {
				require.Len(t, f.set, 1)
				assert.Equal(t, build, f.set[0])
			}
		})
	}
}

func TestMonotonic(t *testing.T) {
	t.Parallel()
	s := NewRTC(&fakeRTC{t: build}, build, log2.NewTest(t, log2.LDebug))
	a := s.Now()
	b := s.Now()
	assert.False(t, b.Before(a))
}

func TestDS3231LostPower(t *testing.T) {
	t.Parallel()
	bus := i2c.NewMockBus()
	bus.Set(ds3231.DefaultAddr, 0x0f, 0x80)
	dev := ds3231.New(bus, 0)
	s := NewRTC(dev, build, log2.NewTest(t, log2.LDebug))
	assert.True(t, s.Seeded)
	lost, err := dev.LostPower()
	require.NoError(t, err)
	assert.False(t, lost)
	got, err := dev.Read()
	require.NoError(t, err)
	assert.Equal(t, build, got)
}

func TestResolveBuildTime(t *testing.T) {
	t.Parallel()
	assert.Equal(t, build, ResolveBuildTime("2026-03-07T12:00:00Z"))
	assert.Equal(t, build, ResolveBuildTime("2026-03-07T12:00:00"))
	assert.False(t, ResolveBuildTime("garbage").IsZero())
}
