package state

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/temoto/alive/v2"

	"github.com/temoto/floodnode/internal/alert"
	"github.com/temoto/floodnode/internal/node"
	"github.com/temoto/floodnode/internal/power"
	"github.com/temoto/floodnode/internal/sensor"
	"github.com/temoto/floodnode/internal/tele"
	"github.com/temoto/floodnode/log2"
)

type Global struct {
	Alive        *alive.Alive
	BuildVersion string
	BuildTime    time.Time
	Config       *Config
	Hardware     hardware // hardware.go
	Log          *log2.Log
	Metrics      *tele.Metrics
	Registry     *prometheus.Registry

	// test code may set before Init
	Transport tele.Transporter

	metricsSrv *http.Server
}

const ContextKey = "run/state-global"

func NewContext(log *log2.Log) (context.Context, *Global) {
	g := &Global{
		Alive: alive.NewAlive(),
		Log:   log,
	}
	ctx := context.Background()
	ctx = context.WithValue(ctx, log2.ContextKey, log)
	ctx = context.WithValue(ctx, ContextKey, g)
	return ctx, g
}

func GetGlobal(ctx context.Context) *Global {
	v := ctx.Value(ContextKey)
	if v == nil {
		panic(fmt.Sprintf("context['%s'] is nil", ContextKey))
	}
	if g, ok := v.(*Global); ok {
		return g
	}
	panic(fmt.Sprintf("context['%s'] expected type *Global actual=%#v", ContextKey, v))
}

// If `Init` fails, consider `Global` is in broken state.
func (g *Global) Init(ctx context.Context, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return errors.Annotate(err, "config")
	}
	g.Config = cfg
	g.Log.Infof("build version=%s time=%s", g.BuildVersion, g.BuildTime.Format(time.RFC3339))

	g.Registry = prometheus.NewRegistry()
	g.Metrics = tele.NewMetrics(g.Registry, time.Now())
	g.Log.SetErrorFunc(g.Metrics.Error)

	if addr := g.Config.Tele.MetricsListen; addr != "" {
		g.metricsSrv = tele.ServeMetrics(addr, g.Registry, g.Log)
		g.Log.Infof("metrics listen=%s", addr)
	}
	return nil
}

func (g *Global) MustInit(ctx context.Context, cfg *Config) {
	if err := g.Init(ctx, cfg); err != nil {
		g.Fatal(err)
	}
}

func (g *Global) Error(err error, args ...interface{}) {
	if err != nil {
		if len(args) != 0 {
			msg := args[0].(string)
			args = args[1:]
			err = errors.Annotatef(err, msg, args...)
		}
		g.Log.Error(err)
	}
}

func (g *Global) Fatal(err error, args ...interface{}) {
	if err != nil {
		g.Error(err, args...)
		g.StopWait(5 * time.Second)
		g.Log.Fatal(errors.ErrorStack(err))
	}
}

func (g *Global) Stop() { g.Alive.Stop() }

// StopWait returns false if running tasks did not finish within timeout.
func (g *Global) StopWait(timeout time.Duration) bool {
	g.Alive.Stop()
	select {
	case <-g.Alive.WaitChan():
		return true
	case <-time.After(timeout):
		return false
	}
}

// Close releases hardware after Alive stopped.
func (g *Global) Close() {
	if g.metricsSrv != nil {
		_ = g.metricsSrv.Close()
	}
	g.Hardware.close(g.Log)
}

// Tele assembles encoder and configured transport.
func (g *Global) Tele(ctx context.Context) (*tele.Tele, error) {
	transport := g.Transport
	if transport == nil {
		var err error
		if transport, err = g.newTransport(ctx); err != nil {
			return nil, errors.Trace(err)
		}
	}
	sampler := g.Power()
	enc := tele.NewEncoder(g.Config.Identity(), sampler, g.Clock(), g.Log)
	return tele.New(enc, transport, g.Metrics, g.Config.Tele.Endpoint, g.Log), nil
}

func (g *Global) newTransport(ctx context.Context) (tele.Transporter, error) {
	switch g.Config.Tele.Transport {
	case "http":
		return tele.NewHTTPTransport(&http.Client{Timeout: g.Config.ModemConfig().ActionTimeout}), nil
	case "modem":
		d, err := g.Modem()
		if err != nil {
			return nil, errors.Trace(err)
		}
		if err = d.Init(ctx); err != nil {
			// modem may recover later, every Post is bounded by timeouts anyway
			g.Log.Errorf("%v", err)
		}
		return tele.NewModemTransport(d, g.Metrics), nil
	}
	return nil, errors.NotSupportedf("tele.transport=%s", g.Config.Tele.Transport)
}

// Node assembles measurement controller from configured hardware.
func (g *Global) Node(ctx context.Context) (*node.Node, error) {
	port, err := g.SensorPort()
	if err != nil {
		return nil, errors.Annotate(err, "sensor")
	}
	acq := sensor.NewAcquirer(port, g.Config.SensorConfig(), g.Log, nil)
	machine, err := alert.NewMachine(g.Config.AlertConfig())
	if err != nil {
		return nil, errors.Trace(err)
	}
	t, err := g.Tele(ctx)
	if err != nil {
		return nil, errors.Annotate(err, "tele")
	}
	return node.New(g.Config.NodeConfig(), acq, machine, t, g.Log), nil
}

var _ tele.PowerReader = (*power.Sampler)(nil)
