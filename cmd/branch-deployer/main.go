package main

import (
	"context"
	"os"

	"github.com/savaki/branch-deployer/cmd/branch-deployer/commands"
	"github.com/savaki/branch-deployer/internal/di"
	"github.com/urfave/cli/v2"
)

func main() {
	logger := di.ProvideLogger()
	ctx := logger.WithContext(context.Background())

	app := &cli.App{
		Name:  "branch-deployer",
		Usage: "Operate per-branch feature environments",
		Description: `Operator tooling for the branch deployer webhook.

This tool provides commands for:
  - Signing payloads to exercise the webhook by hand
  - Inspecting the lifecycle history of branch environments
  - Clearing stuck branch locks and tearing down orphaned environments`,
		Commands: []*cli.Command{
			commands.SignCommand(&logger),
			commands.EnvironmentsCommand(&logger),
			commands.UnlockCommand(&logger),
			commands.TeardownCommand(&logger),
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		logger.Error().Err(err).Msg("Application error")
		os.Exit(1)
	}
}
