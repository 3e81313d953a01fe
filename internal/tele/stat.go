package tele

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/temoto/floodnode/helpers/atomic_clock"
)

// Metrics are monotonic for process lifetime. Safe to read from other goroutines,
// e.g. metrics HTTP listener.
type Metrics struct {
	packets uint64
	bytes   uint64
	start   atomic_clock.Clock

	promPackets prometheus.Counter
	promBytes   prometheus.Counter
	promSteps   *prometheus.CounterVec
	promErrors  prometheus.Counter
}

// NewMetrics registers counters in reg, nil reg keeps them private.
func NewMetrics(reg prometheus.Registerer, start time.Time) *Metrics {
	self := &Metrics{
		promPackets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "floodnode_packets_sent_total",
			Help: "Telemetry transmission attempts.",
		}),
		promBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "floodnode_bytes_sent_total",
			Help: "Telemetry payload bytes handed to transport.",
		}),
		promSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "floodnode_transport_steps_total",
			Help: "Modem POST step outcomes.",
		}, []string{"step", "result"}),
		promErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "floodnode_errors_total",
			Help: "Errors reported to log.",
		}),
	}
	self.start.SetTime(start)
	if reg != nil {
		reg.MustRegister(self.promPackets, self.promBytes, self.promSteps, self.promErrors)
	}
	return self
}

// Record accounts one transmission attempt regardless of outcome.
func (self *Metrics) Record(payloadLen int) {
	atomic.AddUint64(&self.packets, 1)
	atomic.AddUint64(&self.bytes, uint64(payloadLen))
	self.promPackets.Inc()
	self.promBytes.Add(float64(payloadLen))
}

func (self *Metrics) Step(step, result string) { self.promSteps.WithLabelValues(step, result).Inc() }
func (self *Metrics) Error(error)              { self.promErrors.Inc() }

func (self *Metrics) PacketsSent() uint64    { return atomic.LoadUint64(&self.packets) }
func (self *Metrics) BytesSent() uint64      { return atomic.LoadUint64(&self.bytes) }
func (self *Metrics) UptimeStart() time.Time { return self.start.Time() }

func (self *Metrics) Uptime(now time.Time) time.Duration { return self.start.Elapsed(now) }

// BitsPerSecond is average throughput since start, 0 before first second.
func BitsPerSecond(bytesSent uint64, elapsed time.Duration) float64 {
	sec := elapsed.Seconds()
	if sec < 1 {
		return 0
	}
	return float64(bytesSent) * 8 / sec
}
