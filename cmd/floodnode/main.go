package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"

	"github.com/temoto/floodnode/cmd/floodnode/atcli"
	"github.com/temoto/floodnode/cmd/floodnode/probe"
	"github.com/temoto/floodnode/cmd/floodnode/run"
	"github.com/temoto/floodnode/cmd/floodnode/simulate"
	"github.com/temoto/floodnode/cmd/floodnode/subcmd"
	"github.com/temoto/floodnode/internal/clock"
	"github.com/temoto/floodnode/internal/state"
	"github.com/temoto/floodnode/log2"
)

var log = log2.NewStderr(log2.LDebug)

// set with -ldflags "-X main.BuildVersion=... -X main.BuildTime=..."
var (
	BuildVersion string = "unknown"
	BuildTime    string
)

var modules = []subcmd.Mod{
	run.Mod,
	probe.Mod,
	atcli.Mod,
	simulate.Mod,
}

func main() {
	flagConfig := flag.String("config", "floodnode.hcl", "")
	flagVersion := flag.Bool("version", false, "print build version and exit")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] [%s]\n", os.Args[0], subcmd.Names(modules))
		flag.PrintDefaults()
	}
	flag.Parse()

	if *flagVersion {
		fmt.Printf("floodnode %s\n", BuildVersion)
		return
	}

	command := flag.Arg(0)
	if command == "" {
		command = "run"
	}
	mod, err := subcmd.Parse(command, modules)
	if err != nil {
		log.Fatal(err)
	}

	if subcmd.SdNotify("start") {
		// under systemd assume journal logging, remove timestamp
		log.SetFlags(log2.LServiceFlags)
	} else {
		log.SetFlags(log2.LInteractiveFlags)
	}

	log.Infof("floodnode version=%s starting %s", BuildVersion, mod.Name)
	ctx, g := state.NewContext(log)
	g.BuildVersion = BuildVersion
	g.BuildTime = clock.ResolveBuildTime(BuildTime)

	config := state.MustReadConfig(log, state.NewOsFullReader(), *flagConfig)
	if err := mod.Main(ctx, config); err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	subcmd.SdNotify(daemon.SdNotifyStopping)
	log.Infof("floodnode %s stopped", mod.Name)
}
