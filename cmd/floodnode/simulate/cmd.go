// Bench generator: random water levels posted directly over HTTP,
// no sensor or modem required.
package simulate

import (
	"context"
	"math"
	"time"

	"github.com/juju/errors"

	"github.com/temoto/floodnode/cmd/floodnode/subcmd"
	"github.com/temoto/floodnode/helpers"
	"github.com/temoto/floodnode/internal/alert"
	"github.com/temoto/floodnode/internal/state"
)

const (
	minLevel = 20
	maxLevel = 60
)

var Mod = subcmd.Mod{Name: "simulate", Usage: "post random readings over HTTP", Main: Main}

func Main(ctx context.Context, config *state.Config) error {
	g := state.GetGlobal(ctx)
	config.Tele.Transport = "http"
	config.Hardware.RTC.Driver = "system"
	config.Hardware.Power.Enable = false
	g.MustInit(ctx, config)
	defer g.Close()
	subcmd.StopOnSignal(g)

	t, err := g.Tele(ctx)
	if err != nil {
		return errors.Annotate(err, "tele")
	}
	machine, err := alert.NewMachine(g.Config.AlertConfig())
	if err != nil {
		return errors.Trace(err)
	}
	rnd := helpers.RandUnix()
	interval := g.Config.NodeConfig().Interval

	for g.Alive.IsRunning() {
		level := math.Round((minLevel+rnd.Float64()*(maxLevel-minLevel))*10) / 10
		if ev, ok := Reading(machine, level, time.Now()); !ok {
			g.Log.Debugf("level=%.1fcm state=%s no transition", level, machine.State())
		} else if p, err := t.Send(ev); err != nil {
			g.Log.Error(err)
		} else {
			g.Log.Infof("sent level=%.1fcm type=%s bytes=%d", level, ev.Type, len(p.Bytes))
		}
		select {
		case <-time.After(interval):
		case <-g.Alive.StopChan():
		}
	}
	return nil
}

// Reading returns machine transition event, or heartbeat while Normal.
// Flooded readings without transition are not reported.
func Reading(m *alert.Machine, level float64, now time.Time) (alert.Event, bool) {
	if ev, ok := m.Evaluate(level, now); ok {
		return ev, true
	}
	if m.State() == alert.Normal {
		return alert.Heartbeat(level, now), true
	}
	return alert.Event{}, false
}
