package commands

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/savaki/branch-deployer/internal/dao/lockdao"
	"github.com/savaki/branch-deployer/internal/naming"
	"github.com/urfave/cli/v2"
)

// UnlockCommand returns the unlock command for clearing a stuck branch lock
func UnlockCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "unlock",
		Usage: "Remove the lifecycle lock of a branch regardless of holder",
		Description: `Locks expire on their own after an hour. Use unlock when an invocation
died mid-operation and the branch must be processed sooner.

Examples:
  branch-deployer unlock --env dev --branch feature/login`,
		Flags: []cli.Flag{
			envFlag(),
			&cli.StringFlag{
				Name:    "table",
				Usage:   "DynamoDB table name (default: {env}-branch-deployer-locks)",
				EnvVars: []string{"LOCKS_TABLE"},
			},
			&cli.StringFlag{
				Name:     "branch",
				Aliases:  []string{"b"},
				Usage:    "Branch name",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			return unlockAction(c, logger)
		},
	}
}

func unlockAction(c *cli.Context, logger *zerolog.Logger) error {
	env := c.String("env")
	tableName := c.String("table")
	if tableName == "" {
		tableName = lockdao.TableName(env)
	}

	client, err := createDynamoDB(c.Context)
	if err != nil {
		return err
	}
	dao := lockdao.New(client, tableName)

	id := lockdao.NewID(env, naming.Sanitize(naming.BranchName(c.String("branch"))))
	lock, err := dao.Find(c.Context, id)
	if err != nil {
		return err
	}
	if lock == nil {
		fmt.Fprintf(c.App.Writer, "No lock held for %s\n", id)
		return nil
	}

	if err := dao.Delete(c.Context, id); err != nil {
		return err
	}

	logger.Info().
		Str("lock_id", id.String()).
		Str("holder", lock.Holder).
		Str("operation", lock.Operation).
		Msg("Removed branch lock")
	fmt.Fprintf(c.App.Writer, "Removed lock %s held by %s (%s)\n", id, lock.Holder, lock.Operation)
	return nil
}
