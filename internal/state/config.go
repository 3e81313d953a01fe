package state

import (
	"path/filepath"
	"time"

	"github.com/hashicorp/hcl"
	"github.com/juju/errors"

	"github.com/temoto/floodnode/hardware/ina219"
	"github.com/temoto/floodnode/helpers"
	"github.com/temoto/floodnode/internal/alert"
	"github.com/temoto/floodnode/internal/modem"
	"github.com/temoto/floodnode/internal/node"
	"github.com/temoto/floodnode/internal/sensor"
	"github.com/temoto/floodnode/internal/tele"
	"github.com/temoto/floodnode/log2"
)

const (
	DefaultBaud      = 9600
	DefaultRepeat    = 5 * time.Minute
	DefaultLEDPulse  = 200 * time.Millisecond
	DefaultTransport = "modem"
	DefaultRTCDriver = "ds3231"
	DefaultI2CDriver = "file"
)

type Config struct {
	// includeSeen contains absolute paths to prevent include loops
	includeSeen map[string]struct{}
	// only used for Unmarshal, do not access
	XXX_Include []ConfigSource `hcl:"include"`

	Node struct {
		SensorID        string  `hcl:"sensor_id"`
		Latitude        float64 `hcl:"latitude"`
		Longitude       float64 `hcl:"longitude"`
		IntervalMs      int     `hcl:"interval_ms"`
		ReportNormalSec int     `hcl:"report_normal_sec"`
		LevelMode       string  `hcl:"level_mode"`
	} `hcl:"node"`

	Alert struct {
		FloodCM       float64 `hcl:"flood_cm"`
		EscalateCM    float64 `hcl:"escalate_cm"`
		ClearCM       float64 `hcl:"clear_cm"`
		RepeatSec     int     `hcl:"repeat_sec"`
		BasinHeightCM float64 `hcl:"basin_height_cm"`
	} `hcl:"alert"`

	Hardware struct {
		Sensor struct {
			UartDevice string  `hcl:"uart_device"`
			UartDriver string  `hcl:"uart_driver"`
			Baud       int     `hcl:"baud"`
			MinMM      int     `hcl:"min_mm"`
			MaxMM      int     `hcl:"max_mm"`
			Divisor    float64 `hcl:"divisor"`
		} `hcl:"sensor"`
		Modem struct {
			UartDevice  string `hcl:"uart_device"`
			UartDriver  string `hcl:"uart_driver"`
			Baud        int    `hcl:"baud"`
			APN         string `hcl:"apn"`
			LogDebug    bool   `hcl:"log_debug"`
			InitRetries int    `hcl:"init_retries"`
		} `hcl:"modem"`
		I2C struct {
			Driver string `hcl:"driver"`
			Bus    int    `hcl:"bus"`
		} `hcl:"i2c"`
		Power struct {
			Enable        bool `hcl:"enable"`
			Addr          int  `hcl:"addr"`
			ShuntMilliOhm int  `hcl:"shunt_mohm"`
		} `hcl:"power"`
		RTC struct {
			Driver string `hcl:"driver"`
			Addr   int    `hcl:"addr"`
		} `hcl:"rtc"`
		LED struct {
			Enable  bool   `hcl:"enable"`
			Chip    string `hcl:"chip"`
			Pin     int    `hcl:"pin"`
			PulseMs int    `hcl:"pulse_ms"`
		} `hcl:"led"`
	} `hcl:"hardware"`

	Tele struct {
		Endpoint         string `hcl:"endpoint"`
		Transport        string `hcl:"transport"`
		CommandTimeoutMs int    `hcl:"command_timeout_ms"`
		DataTimeoutMs    int    `hcl:"data_timeout_ms"`
		ActionTimeoutMs  int    `hcl:"action_timeout_ms"`
		MetricsListen    string `hcl:"metrics_listen"`
	} `hcl:"tele"`
}

type ConfigSource struct {
	Name     string `hcl:"name,key"`
	Optional bool   `hcl:"optional"`
}

func (c *Config) read(log *log2.Log, fs FullReader, source ConfigSource, errs *[]error) {
	norm := fs.Normalize(source.Name)
	if _, ok := c.includeSeen[norm]; ok {
		*errs = append(*errs, errors.Errorf("config duplicate source=%s", source.Name))
		return
	}
	log.Debugf("config reading source='%s' path=%s", source.Name, norm)
	c.includeSeen[source.Name] = struct{}{}
	c.includeSeen[norm] = struct{}{}

	bs, err := fs.ReadAll(norm)
	if bs == nil && err == nil {
		if !source.Optional {
			err = errors.NotFoundf("config required name=%s path=%s", source.Name, norm)
			*errs = append(*errs, err)
		}
		return
	}
	if err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config source=%s", source.Name))
		return
	}

	err = hcl.Unmarshal(bs, c)
	if err != nil {
		err = errors.Annotatef(err, "config unmarshal source=%s content='%s'", source.Name, string(bs))
		*errs = append(*errs, err)
		return
	}

	var includes []ConfigSource
	includes, c.XXX_Include = c.XXX_Include, nil
	for _, include := range includes {
		includeNorm := fs.Normalize(include.Name)
		if _, ok := c.includeSeen[includeNorm]; ok {
			err = errors.Errorf("config include loop: from=%s include=%s", source.Name, include.Name)
			*errs = append(*errs, err)
			continue
		}
		c.read(log, fs, include, errs)
	}
}

// ReadConfig reads names in order, later values overwrite earlier. Does not Validate.
func ReadConfig(log *log2.Log, fs FullReader, names ...string) (*Config, error) {
	if len(names) == 0 {
		return nil, errors.New("code error ReadConfig() without names")
	}

	if osfs, ok := fs.(*OsFullReader); ok {
		dir, name := filepath.Split(names[0])
		if err := osfs.SetBase(dir); err != nil {
			return nil, errors.Trace(err)
		}
		names[0] = name
	}
	c := &Config{
		includeSeen: make(map[string]struct{}),
	}
	errs := make([]error, 0, 8)
	for _, name := range names {
		c.read(log, fs, ConfigSource{Name: name}, &errs)
	}
	return c, helpers.FoldErrors(errs)
}

func MustReadConfig(log *log2.Log, fs FullReader, names ...string) *Config {
	c, err := ReadConfig(log, fs, names...)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	return c
}

func oneOf(field, value string, valid ...string) error {
	for _, v := range valid {
		if value == v {
			return nil
		}
	}
	return errors.NotValidf("config: %s=%q valid: %v", field, value, valid)
}

// Validate applies defaults and checks consistency. All problems are reported at once.
func (c *Config) Validate() error {
	errs := make([]error, 0, 8)
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if c.Node.SensorID == "" {
		add(errors.NotValidf("config: node.sensor_id=empty"))
	}
	if _, err := node.ParseLevelMode(c.Node.LevelMode); err != nil {
		add(errors.Annotate(err, "config: node"))
	}
	if c.Alert.BasinHeightCM <= 0 {
		add(errors.NotValidf("config: alert.basin_height_cm=%v", c.Alert.BasinHeightCM))
	}
	if c.Alert.RepeatSec <= 0 {
		c.Alert.RepeatSec = int(DefaultRepeat / time.Second)
	}
	add(errors.Annotate(c.AlertConfig().Validate(), "config"))

	hw := &c.Hardware
	if hw.Sensor.UartDriver == "" {
		hw.Sensor.UartDriver = "file"
	}
	add(oneOf("hardware.sensor.uart_driver", hw.Sensor.UartDriver, "file", "null"))
	if hw.Sensor.Baud == 0 {
		hw.Sensor.Baud = DefaultBaud
	}
	if hw.Modem.UartDriver == "" {
		hw.Modem.UartDriver = "file"
	}
	add(oneOf("hardware.modem.uart_driver", hw.Modem.UartDriver, "file", "null"))
	if hw.Modem.Baud == 0 {
		hw.Modem.Baud = DefaultBaud
	}
	if hw.Sensor.MinMM < 0 || hw.Sensor.MaxMM < 0 || (hw.Sensor.MaxMM != 0 && hw.Sensor.MinMM >= hw.Sensor.MaxMM) {
		add(errors.NotValidf("config: hardware.sensor min_mm=%d max_mm=%d", hw.Sensor.MinMM, hw.Sensor.MaxMM))
	}
	if hw.I2C.Driver == "" {
		hw.I2C.Driver = DefaultI2CDriver
	}
	add(oneOf("hardware.i2c.driver", hw.I2C.Driver, "file", "periph"))
	if hw.Power.Addr == 0 {
		hw.Power.Addr = int(ina219.DefaultAddr)
	}
	if hw.RTC.Driver == "" {
		hw.RTC.Driver = DefaultRTCDriver
	}
	add(oneOf("hardware.rtc.driver", hw.RTC.Driver, "ds3231", "system"))
	if hw.LED.Enable && hw.LED.Chip == "" {
		add(errors.NotValidf("config: hardware.led.chip=empty"))
	}

	if c.Tele.Endpoint == "" {
		add(errors.NotValidf("config: tele.endpoint=empty"))
	}
	if c.Tele.Transport == "" {
		c.Tele.Transport = DefaultTransport
	}
	add(oneOf("tele.transport", c.Tele.Transport, "modem", "http"))

	return helpers.FoldErrors(errs)
}

func (c *Config) AlertConfig() alert.Config {
	return alert.Config{
		Flood:    c.Alert.FloodCM,
		Escalate: c.Alert.EscalateCM,
		Clear:    c.Alert.ClearCM,
		Repeat:   helpers.IntSecondDefault(c.Alert.RepeatSec, DefaultRepeat),
	}
}

// NodeConfig expects Validate() passed.
func (c *Config) NodeConfig() node.Config {
	mode, _ := node.ParseLevelMode(c.Node.LevelMode)
	return node.Config{
		Interval:      helpers.IntMillisecondDefault(c.Node.IntervalMs, node.DefaultInterval),
		ReportNormal:  helpers.IntSecondDefault(c.Node.ReportNormalSec, 0),
		LevelMode:     mode,
		BasinHeightCM: c.Alert.BasinHeightCM,
	}
}

func (c *Config) SensorConfig() sensor.Config {
	s := &c.Hardware.Sensor
	return sensor.Config{MinMM: uint16(s.MinMM), MaxMM: uint16(s.MaxMM), Divisor: s.Divisor}
}

func (c *Config) ModemConfig() modem.Config {
	return modem.Config{
		CommandTimeout: helpers.IntMillisecondDefault(c.Tele.CommandTimeoutMs, modem.DefaultCommandTimeout),
		DataTimeout:    helpers.IntMillisecondDefault(c.Tele.DataTimeoutMs, modem.DefaultDataTimeout),
		ActionTimeout:  helpers.IntMillisecondDefault(c.Tele.ActionTimeoutMs, modem.DefaultActionTimeout),
		LEDPulse:       helpers.IntMillisecondDefault(c.Hardware.LED.PulseMs, DefaultLEDPulse),
		APN:            c.Hardware.Modem.APN,
		InitRetries:    c.Hardware.Modem.InitRetries,
	}
}

func (c *Config) Identity() tele.Identity {
	return tele.Identity{
		SensorID:      c.Node.SensorID,
		Latitude:      c.Node.Latitude,
		Longitude:     c.Node.Longitude,
		BasinHeightCM: c.Alert.BasinHeightCM,
	}
}
