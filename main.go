package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	omcore "github.com/chirino/memory-service/internal/cmd/om-core"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "om-core",
		Usage: "OpenMemory core service",
		Commands: []*cli.Command{
			omcore.ServeCommand(),
			omcore.SweepCommand(),
		},
	}
	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
