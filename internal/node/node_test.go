package node_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/alive/v2"

	"github.com/temoto/floodnode/hardware/uart"
	"github.com/temoto/floodnode/internal/alert"
	"github.com/temoto/floodnode/internal/clock"
	"github.com/temoto/floodnode/internal/node"
	"github.com/temoto/floodnode/internal/power"
	"github.com/temoto/floodnode/internal/sensor"
	"github.com/temoto/floodnode/internal/tele"
	"github.com/temoto/floodnode/log2"
)

type fakeTransport struct {
	bodies [][]byte
	err    error
}

func (f *fakeTransport) Post(url string, body []byte) error {
	f.bodies = append(f.bodies, body)
	return f.err
}

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time { return c.t }

type tenv struct {
	port      *uart.NullPort
	clock     *testClock
	transport *fakeTransport
	metrics   *tele.Metrics
	node      *node.Node
}

var alertConfig = alert.Config{Flood: 4.7, Escalate: 9.0, Clear: 4.2, Repeat: 5 * time.Minute}

func newTenv(t testing.TB, cfg node.Config) *tenv {
	log := log2.NewTest(t, log2.LDebug)
	env := &tenv{
		port:      uart.NewNullPort(),
		clock:     &testClock{t: time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)},
		transport: &fakeTransport{},
	}
	if cfg.BasinHeightCM == 0 {
		cfg.BasinHeightCM = 20
	}
	acq := sensor.NewAcquirer(env.port, sensor.Config{}, log, env.clock.Now)
	machine, err := alert.NewMachine(alertConfig)
	require.NoError(t, err)
	env.metrics = tele.NewMetrics(nil, env.clock.t)
	enc := tele.NewEncoder(tele.Identity{SensorID: "drain-01", BasinHeightCM: cfg.BasinHeightCM},
		power.NewSampler(nil, nil, log), env.clock, log)
	tl := tele.New(enc, env.transport, env.metrics, "http://ingest.example/api/sensor-data", log)
	env.node = node.New(cfg, acq, machine, tl, log)
	return env
}

// cycle feeds one frame for level in cm, advances clock and runs one cycle.
func (env *tenv) cycle(levelCM float64, after time.Duration) node.CycleResult {
	env.clock.t = env.clock.t.Add(after)
	f := sensor.EncodeFrame(uint16(levelCM*10 + 0.5))
	env.port.Feed(f[:])
	return env.node.Cycle()
}

func TestEndToEnd(t *testing.T) {
	t.Parallel()
	env := newTenv(t, node.Config{})
	types := []string{}
	statuses := []bool{}
	for _, level := range []float64{3.0, 4.8, 9.5, 4.0} {
		r := env.cycle(level, time.Second)
		require.True(t, r.Sample.Valid)
		if r.Emitted {
			require.NoError(t, r.SendErr)
			var m map[string]interface{}
			require.NoError(t, json.Unmarshal(r.Packet.Bytes, &m))
			types = append(types, m["alert_type"].(string))
			statuses = append(statuses, m["alert_status"].(bool))
			assert.Equal(t, level, m["water_level_cm"])
			assert.NotContains(t, m, "power_consumption_watts")
		}
	}
	assert.Equal(t, []string{"blockage_detected", "blockage_detected", "blockage_cleared"}, types)
	assert.Equal(t, []bool{true, true, false}, statuses)
	assert.Equal(t, uint64(3), env.metrics.PacketsSent())
	assert.Equal(t, alert.Normal, env.node.State())
}

func TestInvalidSampleSkipsCycle(t *testing.T) {
	t.Parallel()
	env := newTenv(t, node.Config{})
	require.True(t, env.cycle(5.0, 0).Emitted)

	for i := 0; i < 10; i++ {
		env.clock.t = env.clock.t.Add(time.Minute)
		env.port.Feed([]byte{0xff, 0x00, 0x32, 0x00}) // bad checksum
		r := env.node.Cycle()
		assert.False(t, r.Sample.Valid)
		assert.False(t, r.Emitted)
	}
	env.clock.t = env.clock.t.Add(time.Minute)
	assert.False(t, env.node.Cycle().Sample.Valid, "no bytes")
	assert.Equal(t, uint64(1), env.metrics.PacketsSent())

	// frame sync is lost, first good frame waits for successor
	f := sensor.EncodeFrame(50)
	env.port.Feed(f[:])
	assert.False(t, env.node.Cycle().Emitted)

	r := env.cycle(5.0, time.Second)
	require.True(t, r.Emitted)
	assert.Equal(t, alert.ReasonRepeat, r.Event.Reason)
}

func TestHeartbeat(t *testing.T) {
	t.Parallel()
	env := newTenv(t, node.Config{ReportNormal: 10 * time.Minute})
	n := 0
	for i := 0; i <= 25; i++ {
		r := env.cycle(3.5, time.Minute)
		if r.Emitted {
			n++
			assert.Equal(t, alert.NormalReading, r.Event.Type)
			var m map[string]interface{}
			require.NoError(t, json.Unmarshal(r.Packet.Bytes, &m))
			assert.Equal(t, "normal_reading", m["alert_type"])
			assert.Equal(t, false, m["alert_status"])
		}
	}
	assert.Equal(t, 3, n)

	// no heartbeat while flooded, repeat handles it
	r := env.cycle(5.0, time.Minute)
	require.True(t, r.Emitted)
	assert.Equal(t, alert.BlockageDetected, r.Event.Type)
	r = env.cycle(5.0, 11*time.Minute)
	assert.Equal(t, alert.ReasonRepeat, r.Event.Reason)
}

func TestLevelInvert(t *testing.T) {
	t.Parallel()
	env := newTenv(t, node.Config{LevelMode: node.LevelInvert, BasinHeightCM: 20})
	r := env.cycle(18.0, time.Second) // 2cm of water
	assert.InDelta(t, 2.0, r.Level, 1e-9)
	assert.False(t, r.Emitted)
	r = env.cycle(15.0, time.Second)
	assert.InDelta(t, 5.0, r.Level, 1e-9)
	require.True(t, r.Emitted)
	assert.InDelta(t, 25.0, r.Packet.CapacityPct, 1e-9)
	r = env.cycle(400.0, time.Second)
	assert.Equal(t, 0.0, r.Level)
	assert.Equal(t, alert.BlockageCleared, r.Event.Type)
}

func TestSendFailureNotFatal(t *testing.T) {
	t.Parallel()
	env := newTenv(t, node.Config{})
	env.transport.err = errors.New("modem step=url result=TIMEOUT")
	r := env.cycle(5.0, time.Second)
	require.True(t, r.Emitted)
	assert.Error(t, r.SendErr)
	assert.Contains(t, r.String(), "send failed")
	assert.Equal(t, alert.Flooded, env.node.State())

	env.transport.err = nil
	r = env.cycle(4.0, time.Second)
	require.True(t, r.Emitted)
	assert.NoError(t, r.SendErr)
	assert.Equal(t, uint64(2), env.metrics.PacketsSent())
	assert.Len(t, env.transport.bodies, 2)
}

func TestRunStop(t *testing.T) {
	t.Parallel()
	env := newTenv(t, node.Config{Interval: time.Millisecond})
	a := alive.NewAlive()
	done := make(chan struct{})
	go func() {
		env.node.Run(context.Background(), a)
		close(done)
	}()
	a.Stop()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func TestParseLevelMode(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in     string
		expect node.LevelMode
		ok     bool
	}{
		{"", node.LevelDirect, true},
		{"direct", node.LevelDirect, true},
		{"invert", node.LevelInvert, true},
		{"up", 0, false},
	}
	for _, c := range cases {
		c := c
		t.Run(c.in, func(t *testing.T) {
			m, err := node.ParseLevelMode(c.in)
			if !c.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, c.expect, m)
		})
	}
}

var _ clock.Source = &testClock{}
