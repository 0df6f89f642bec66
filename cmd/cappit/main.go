package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/thatjpcsguy/cappit/internal/cmd"
	"github.com/thatjpcsguy/cappit/internal/errors"
	"github.com/thatjpcsguy/cappit/internal/logging"
)

var version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := cmd.NewRootCmd(version).ExecuteContext(ctx)
	stop()

	if err != nil {
		logging.Failure("%v", err)
		os.Exit(errors.GetExitCode(err))
	}
}
