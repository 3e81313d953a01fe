// Main mode of operation: measurement loop until signal.
package run

import (
	"context"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"

	"github.com/temoto/floodnode/cmd/floodnode/subcmd"
	"github.com/temoto/floodnode/internal/state"
)

var Mod = subcmd.Mod{Name: "run", Usage: "measure and report until stopped", Main: Main}

func Main(ctx context.Context, config *state.Config) error {
	g := state.GetGlobal(ctx)
	g.MustInit(ctx, config)
	defer g.Close()
	subcmd.StopOnSignal(g)

	n, err := g.Node(ctx)
	if err != nil {
		return errors.Annotate(err, "node init")
	}

	subcmd.SdNotify(daemon.SdNotifyReady)
	g.Log.Infof("node init complete sensor_id=%s interval=%v", g.Config.Node.SensorID, g.Config.NodeConfig().Interval)

	if !g.Alive.Add(1) {
		return nil
	}
	go func() {
		defer g.Alive.Done()
		n.Run(ctx, g.Alive)
	}()
	g.Alive.Wait()
	return nil
}
