// Interactive AT console over modem serial port.
package atcli

import (
	"context"
	"fmt"
	"strings"

	"github.com/c-bata/go-prompt"
	"github.com/juju/errors"

	"github.com/temoto/floodnode/cmd/floodnode/subcmd"
	"github.com/temoto/floodnode/helpers/cli"
	"github.com/temoto/floodnode/internal/modem"
	"github.com/temoto/floodnode/internal/state"
)

const modName = "at-cli"

var Mod = subcmd.Mod{Name: modName, Usage: "interactive AT console", Main: Main}

func Main(ctx context.Context, config *state.Config) error {
	g := state.GetGlobal(ctx)
	config.Hardware.Modem.LogDebug = true
	g.MustInit(ctx, config)
	defer g.Close()

	d, err := g.Modem()
	if err != nil {
		return errors.Annotate(err, "modem")
	}
	g.Log.Debugf("modem ready, type AT commands, `init` runs boot handshake, `post {json}` sends to endpoint")

	cli.MainLoop(modName, newExecutor(ctx, d), newCompleter())
	return nil
}

var suggests = []prompt.Suggest{
	{Text: "AT", Description: "ping"},
	{Text: "AT+CSQ", Description: "signal quality"},
	{Text: "AT+CREG?", Description: "network registration"},
	{Text: "AT+SAPBR=2,1", Description: "bearer status"},
	{Text: "AT+HTTPINIT", Description: "start HTTP service"},
	{Text: "AT+HTTPTERM", Description: "stop HTTP service"},
	{Text: "init", Description: "boot handshake"},
	{Text: "post", Description: "post JSON payload to tele.endpoint"},
}

func newCompleter() func(d prompt.Document) []prompt.Suggest {
	return func(d prompt.Document) []prompt.Suggest {
		return prompt.FilterHasPrefix(suggests, d.GetWordBeforeCursor(), true)
	}
}

func newExecutor(ctx context.Context, d *modem.Driver) func(string) {
	g := state.GetGlobal(ctx)
	return func(line string) {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			return
		case line == "init":
			if err := d.Init(ctx); err != nil {
				g.Log.Error(err)
			}
		case strings.HasPrefix(line, "post "):
			payload := strings.TrimSpace(line[len("post "):])
			if err := d.Post(g.Config.Tele.Endpoint, []byte(payload)); err != nil {
				g.Log.Error(err)
			} else {
				fmt.Println("post OK")
			}
		default:
			r, resp := d.Exchange(line, d.Config().CommandTimeout, modem.MatchFinal)
			fmt.Printf("%s %q\n", r, resp)
		}
	}
}
