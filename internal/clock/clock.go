// Package clock provides timestamps for scheduling and telemetry annotation.
package clock

import (
	"runtime/debug"
	"sync"
	"time"

	"github.com/juju/errors"

	"github.com/temoto/floodnode/log2"
)

// Layout is sortable and human readable, no zone suffix.
const Layout = "2006-01-02T15:04:05"

var ErrLostPower = errors.New("rtc lost power")

type Source interface {
	Now() time.Time
}

func Stamp(s Source) string { return s.Now().Format(Layout) }

type RTC interface {
	LostPower() (bool, error)
	Read() (time.Time, error)
	Set(time.Time) error
}

type system struct{}

func (system) Now() time.Time { return time.Now().UTC() }

func System() Source { return system{} }

// RTCSource reads hardware clock once at boot, then advances it with monotonic elapsed time.
// Construction never fails: any clock trouble falls back to build time.
type RTCSource struct {
	mu      sync.Mutex
	base    time.Time
	started time.Time
	since   func(time.Time) time.Duration
	Seeded  bool // base came from build time
}

func NewRTC(rtc RTC, buildTime time.Time, log *log2.Log) *RTCSource {
	self := &RTCSource{started: time.Now(), since: time.Since}
	base, err := seed(rtc, buildTime)
	switch {
	case err == nil:
	case errors.Cause(err) == ErrLostPower:
		log.Infof("clock: rtc lost power, seeded from build time %s", buildTime.Format(Layout))
		self.Seeded = true
	default:
		log.Errorf("clock: rtc unavailable, using build time err=%v", err)
		self.Seeded = true
	}
	self.base = base.UTC()
	return self
}

func seed(rtc RTC, buildTime time.Time) (time.Time, error) {
	if rtc == nil {
		return buildTime, errors.NotFoundf("rtc")
	}
	lost, err := rtc.LostPower()
	if err != nil {
		return buildTime, errors.Annotate(err, "rtc status")
	}
	if lost {
		if err := rtc.Set(buildTime); err != nil {
			return buildTime, errors.Annotate(err, "rtc set after power loss")
		}
		return buildTime, ErrLostPower
	}
	t, err := rtc.Read()
	if err != nil {
		return buildTime, errors.Annotate(err, "rtc read")
	}
	return t, nil
}

func (self *RTCSource) Now() time.Time {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.base.Add(self.since(self.started))
}

var buildTimeLayouts = []string{time.RFC3339, Layout}

// ResolveBuildTime prefers linker-injected value, then VCS commit time, then now.
func ResolveBuildTime(ldflag string) time.Time {
	for _, layout := range buildTimeLayouts {
		if t, err := time.Parse(layout, ldflag); err == nil {
			return t.UTC()
		}
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key != "vcs.time" {
				continue
			}
			if t, err := time.Parse(time.RFC3339, s.Value); err == nil {
				return t.UTC()
			}
		}
	}
	return time.Now().UTC()
}
