/*
This is an example of application that will use the
engine package to test things out
*/
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/prism/engine"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/testbed"
)

func main() {
	configPath := flag.String("config", "prism.toml", "path to the TOML configuration")
	flag.Parse()

	config, err := core.LoadConfig(*configPath)
	if err != nil {
		core.LogFatal("failed to load configuration: %s", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer stop()

	tb := testbed.NewTestGame(config)

	e, err := engine.New(tb.Game)
	if err != nil {
		core.LogFatal("failed to create engine: %s", err)
	}

	if err := e.Initialize(ctx); err != nil {
		core.LogError("failed to initialize engine: %s", err)
		_ = e.Shutdown()
		os.Exit(1)
	}

	runErr := e.Run(ctx)
	if err := e.Shutdown(); err != nil {
		core.LogError("shutdown: %s", err)
	}
	if runErr != nil {
		os.Exit(1)
	}
}
