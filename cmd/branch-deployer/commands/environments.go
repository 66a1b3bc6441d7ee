package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/rs/zerolog"
	"github.com/savaki/branch-deployer/internal/dao/envdao"
	"github.com/savaki/branch-deployer/internal/naming"
	"github.com/urfave/cli/v2"
)

// EnvironmentsCommand returns the environments command for inspecting lifecycle history
func EnvironmentsCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:    "environments",
		Aliases: []string{"envs"},
		Usage:   "Show branch environment lifecycle history",
		Description: `List the most recent lifecycle operation of every branch, or the full
history of one branch.

Examples:
  # Latest state of every branch environment in dev
  branch-deployer environments --env dev

  # History of one branch
  branch-deployer environments --env dev --branch feature/login

  # Machine readable output
  branch-deployer environments --env dev --json`,
		Flags: []cli.Flag{
			envFlag(),
			&cli.StringFlag{
				Name:    "table",
				Usage:   "DynamoDB table name (default: {env}-branch-deployer-environments)",
				EnvVars: []string{"ENVIRONMENTS_TABLE"},
			},
			&cli.StringFlag{
				Name:    "branch",
				Aliases: []string{"b"},
				Usage:   "Branch name; the full history of this branch is shown",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output as JSON",
			},
		},
		Action: func(c *cli.Context) error {
			return environmentsAction(c, logger)
		},
	}
}

func environmentsAction(c *cli.Context, logger *zerolog.Logger) error {
	env := c.String("env")
	tableName := c.String("table")
	if tableName == "" {
		tableName = envdao.TableName(env)
	}

	client, err := createDynamoDB(c.Context)
	if err != nil {
		return err
	}
	dao := envdao.New(client, tableName)

	var records []envdao.Record
	if branch := c.String("branch"); branch != "" {
		sanitized := naming.Sanitize(naming.BranchName(branch))
		logger.Debug().Str("table", tableName).Str("branch", sanitized).Msg("Querying branch history")
		records, err = dao.Query(c.Context, env, sanitized)
	} else {
		logger.Debug().Str("table", tableName).Msg("Querying latest environments")
		records, err = dao.QueryLatest(c.Context, env)
	}
	if err != nil {
		return err
	}

	if c.Bool("json") {
		return displayRecordsJSON(c.App.Writer, records)
	}
	displayRecords(c.App.Writer, records)
	return nil
}

// displayRecords prints one line per lifecycle record
func displayRecords(w io.Writer, records []envdao.Record) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No environments found")
		return
	}

	fmt.Fprintf(w, "%-30s %-8s %-12s %-10s %-20s %s\n", "BRANCH", "OP", "STATUS", "STRATEGY", "UPDATED", "DETAIL")
	fmt.Fprintln(w, strings.Repeat("=", 100))
	for _, r := range records {
		detail := strings.Join(r.Warnings, "; ")
		if r.ErrorMsg != nil {
			detail = aws.ToString(r.ErrorMsg)
		}
		fmt.Fprintf(w, "%-30s %-8s %-12s %-10s %-20s %s\n",
			r.Branch,
			r.Operation,
			r.Status,
			r.Strategy,
			time.Unix(r.UpdatedAt, 0).UTC().Format(time.DateTime),
			detail,
		)
	}
}

// displayRecordsJSON prints the records as a JSON array
func displayRecordsJSON(w io.Writer, records []envdao.Record) error {
	if records == nil {
		records = []envdao.Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal records: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

func envFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "env",
		Aliases:  []string{"e"},
		Usage:    "Deployment environment (dev, stg, or prd) - determines which tables to use",
		Required: true,
		EnvVars:  []string{"ENV"},
	}
}

func createDynamoDB(ctx context.Context) (*dynamodb.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg), nil
}
