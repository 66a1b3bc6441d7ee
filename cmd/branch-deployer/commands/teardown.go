package commands

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/savaki/branch-deployer/internal/di"
	"github.com/savaki/branch-deployer/internal/orchestrator"
	"github.com/urfave/cli/v2"
)

// TeardownCommand returns the teardown command for removing a branch environment by hand
func TeardownCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "teardown",
		Usage: "Delete the environment of a branch without a webhook delivery",
		Description: `Runs the same delete path as a branch deletion event, including the
branch lock and lifecycle history. Configuration is read from SSM exactly as
the webhook does. Branches outside the configured prefix are refused.

Examples:
  branch-deployer teardown --env dev --branch feature-login`,
		Flags: []cli.Flag{
			envFlag(),
			&cli.StringFlag{
				Name:     "branch",
				Aliases:  []string{"b"},
				Usage:    "Branch name",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			return teardownAction(c, logger)
		},
	}
}

func teardownAction(c *cli.Context, logger *zerolog.Logger) error {
	container, err := di.New(c.String("env"), di.WithProviders(func() zerolog.Logger { return *logger }))
	if err != nil {
		return fmt.Errorf("failed to build container: %w", err)
	}

	controller, err := di.Get[*orchestrator.Controller](container)
	if err != nil {
		return err
	}

	outcome := controller.Teardown(c.Context, c.String("branch"))
	fmt.Fprintln(c.App.Writer, outcome.Message)
	for _, warning := range outcome.Warnings {
		fmt.Fprintf(c.App.Writer, "warning: %s\n", warning)
	}

	if outcome.State != orchestrator.StateCompleted || outcome.Failed() {
		return fmt.Errorf("teardown of %s did not complete: %s", c.String("branch"), outcome.Kind)
	}
	return nil
}
