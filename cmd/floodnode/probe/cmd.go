// One measurement cycle with hardware report, for installation and bench checks.
package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/juju/errors"

	"github.com/temoto/floodnode/cmd/floodnode/subcmd"
	"github.com/temoto/floodnode/internal/clock"
	"github.com/temoto/floodnode/internal/state"
)

var Mod = subcmd.Mod{Name: "probe", Usage: "run one cycle and print result", Main: Main}

func Main(ctx context.Context, config *state.Config) error {
	g := state.GetGlobal(ctx)
	g.MustInit(ctx, config)
	defer g.Close()

	fmt.Printf("clock: %s\n", clock.Stamp(g.Clock()))
	if w, err := g.Power().Read(); err != nil {
		fmt.Printf("power: %v\n", err)
	} else {
		fmt.Printf("power: %.3fW\n", w)
	}

	n, err := g.Node(ctx)
	if err != nil {
		return errors.Annotate(err, "node init")
	}
	// sensor streams frames continuously, give it time to fill the buffer
	time.Sleep(g.Config.NodeConfig().Interval)
	r := n.Cycle()
	fmt.Printf("cycle: %s\n", r)
	if r.Emitted {
		fmt.Printf("payload: %s\n", r.Packet.Bytes)
	}
	return nil
}
