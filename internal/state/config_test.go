package state

import (
	"strings"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temoto/floodnode/hardware/uart"
	"github.com/temoto/floodnode/internal/node"
	"github.com/temoto/floodnode/internal/sensor"
	"github.com/temoto/floodnode/log2"
)

const testBase = `
node { sensor_id = "drain-01" latitude = -6.2 longitude = 106.8 }
alert { flood_cm = 4.7 escalate_cm = 9.0 clear_cm = 4.2 basin_height_cm = 20.0 }
hardware {
	sensor { uart_driver = "null" }
	modem { uart_driver = "null" }
	rtc { driver = "system" }
}
tele { endpoint = "http://ingest.example/api/sensor-data" }
`

func TestReadConfig(t *testing.T) {
	t.Parallel()

	type Case struct {
		name      string
		input     string
		check     func(testing.TB, *Global)
		expectErr string
	}
	cases := []Case{
		{"defaults", testBase, func(t testing.TB, g *Global) {
			c := g.Config
			assert.Equal(t, "drain-01", c.Node.SensorID)
			assert.Equal(t, -6.2, c.Node.Latitude)
			assert.Equal(t, DefaultBaud, c.Hardware.Sensor.Baud)
			assert.Equal(t, "modem", c.Tele.Transport)
			assert.Equal(t, "file", c.Hardware.I2C.Driver)
			assert.Equal(t, 0x40, c.Hardware.Power.Addr)
			ac := c.AlertConfig()
			assert.Equal(t, 4.7, ac.Flood)
			assert.Equal(t, DefaultRepeat, ac.Repeat)
			nc := c.NodeConfig()
			assert.Equal(t, node.DefaultInterval, nc.Interval)
			assert.Equal(t, time.Duration(0), nc.ReportNormal)
			assert.Equal(t, node.LevelDirect, nc.LevelMode)
			mc := c.ModemConfig()
			assert.Equal(t, 2*time.Second, mc.CommandTimeout)
			assert.Equal(t, DefaultLEDPulse, mc.LEDPulse)
		}, ""},

		{"overrides", testBase + `
node { interval_ms = 500 report_normal_sec = 600 level_mode = "invert" }
alert { repeat_sec = 60 }
hardware { modem { apn = "internet" init_retries = 5 } }
tele { command_timeout_ms = 1500 transport = "http" }`,
			func(t testing.TB, g *Global) {
				c := g.Config
				assert.Equal(t, "drain-01", c.Node.SensorID, "blocks merge")
				nc := c.NodeConfig()
				assert.Equal(t, 500*time.Millisecond, nc.Interval)
				assert.Equal(t, 10*time.Minute, nc.ReportNormal)
				assert.Equal(t, node.LevelInvert, nc.LevelMode)
				assert.Equal(t, time.Minute, c.AlertConfig().Repeat)
				mc := c.ModemConfig()
				assert.Equal(t, "internet", mc.APN)
				assert.Equal(t, 5, mc.InitRetries)
				assert.Equal(t, 1500*time.Millisecond, mc.CommandTimeout)
				assert.Equal(t, "http", c.Tele.Transport)
			}, ""},

		{"include-optional", testBase + `
include "sensor-calibration" {}
include "non-exist" { optional = true }`,
			func(t testing.TB, g *Global) {
				assert.Equal(t, 40, g.Config.Hardware.Sensor.MinMM)
				assert.Equal(t, sensor.Config{MinMM: 40, MaxMM: 2000}, g.Config.SensorConfig())
			}, ""},

		{"include-overwrites", testBase + `
include "flood-5.5" {}`,
			func(t testing.TB, g *Global) {
				assert.Equal(t, 5.5, g.Config.Alert.FloodCM)
			}, ""},

		{"error-syntax", `hello`, nil, "key 'hello' expected start of object"},
		{"error-include-loop", `include "include-loop" {}`, nil, "config include loop: from=include-loop include=include-loop"},
		{"error-include-required", testBase + `include "non-exist" {}`, nil, "config required name=non-exist"},
		{"error-empty", ``, nil, "node.sensor_id=empty"},
		{"error-hysteresis", testBase + `alert { clear_cm = 4.7 }`, nil, "must be below flood"},
		{"error-escalate", testBase + `alert { escalate_cm = 3.0 clear_cm = 1.0 }`, nil, "must not be below flood"},
		{"error-basin", testBase + `alert { basin_height_cm = 0.0 }`, nil, "basin_height_cm"},
		{"error-driver", testBase + `hardware { i2c { driver = "bitbang" } }`, nil, "hardware.i2c.driver"},
		{"error-transport", testBase + `tele { transport = "mqtt" }`, nil, "tele.transport"},
		{"error-level-mode", testBase + `node { level_mode = "up" }`, nil, "level_mode=up"},
		{"error-led", testBase + `hardware { led { enable = true } }`, nil, "hardware.led.chip"},
		{"error-sensor-range", testBase + `hardware { sensor { min_mm = 500 max_mm = 100 } }`, nil, "min_mm=500"},
	}
	mkCheck := func(c Case) func(*testing.T) {
		return func(t *testing.T) {
			log := log2.NewTest(t, log2.LDebug)
			ctx, g := NewContext(log)

			fs := NewMockFullReader(map[string]string{
				"test-inline":        c.input,
				"sensor-calibration": "hardware { sensor { min_mm = 40 max_mm = 2000 } }",
				"include-loop":       `include "include-loop" {}`,
				"flood-5.5":          "alert { flood_cm = 5.5 }",
			})
			cfg, err := ReadConfig(log, fs, "test-inline")
			if err == nil {
				err = g.Init(ctx, cfg)
			}
			if c.expectErr == "" {
				if err != nil {
					t.Fatalf("error expected=nil actual='%v'", errors.ErrorStack(err))
				}
				if c.check != nil {
					c.check(t, g)
				}
			} else {
				require.Error(t, err)
				if !strings.Contains(err.Error(), c.expectErr) {
					t.Fatalf("error expected='%s' actual='%v'", c.expectErr, err)
				}
			}
		}
	}
	for _, c := range cases {
		t.Run(c.name, mkCheck(c))
	}
}

func TestFunctionalBundled(t *testing.T) {
	// not Parallel
	t.Logf("this test needs OS open|read|stat access to file `../../floodnode.hcl`")

	log := log2.NewTest(t, log2.LDebug)
	cfg := MustReadConfig(log, NewOsFullReader(), "../../floodnode.hcl")
	require.NoError(t, cfg.Validate())
}

func TestNodeAssembly(t *testing.T) {
	t.Parallel()
	log := log2.NewTest(t, log2.LDebug)
	ctx, g := NewContext(log)
	fs := NewMockFullReader(map[string]string{"test-inline": testBase + `tele { transport = "http" }`})
	g.MustInit(ctx, MustReadConfig(log, fs, "test-inline"))

	tr := &recordTransport{}
	g.Transport = tr
	n, err := g.Node(ctx)
	require.NoError(t, err)

	port, err := g.SensorPort()
	require.NoError(t, err)
	null, ok := port.(*uart.NullPort)
	require.True(t, ok)
	f := sensor.EncodeFrame(48)
	null.Feed(f[:])
	r := n.Cycle()
	require.True(t, r.Emitted, r.String())
	assert.NoError(t, r.SendErr)
	require.Len(t, tr.bodies, 1)
	assert.Contains(t, string(tr.bodies[0]), `"alert_type":"blockage_detected"`)
	assert.Equal(t, uint64(1), g.Metrics.PacketsSent())

	assert.False(t, g.Power() == nil)
	_, err = g.Power().Read()
	assert.Error(t, err, "power disabled")
	g.Stop()
	g.Close()
}

type recordTransport struct{ bodies [][]byte }

func (r *recordTransport) Post(url string, body []byte) error {
	r.bodies = append(r.bodies, body)
	return nil
}
