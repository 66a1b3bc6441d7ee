package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/savaki/branch-deployer/internal/webhook"
	"github.com/urfave/cli/v2"
)

// SignCommand returns the sign command for producing X-Hub-Signature-256 values
func SignCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "sign",
		Usage: "Print the X-Hub-Signature-256 header for a payload",
		Description: `Sign a webhook payload with the shared secret.

Examples:
  # Sign a payload file
  branch-deployer sign --payload create.json --secret s3cr3t

  # Sign from stdin and call a local server
  cat create.json | branch-deployer sign --secret s3cr3t`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "payload",
				Aliases: []string{"p"},
				Usage:   "Path to the JSON payload; stdin when omitted",
			},
			&cli.StringFlag{
				Name:     "secret",
				Aliases:  []string{"s"},
				Usage:    "Webhook shared secret",
				Required: true,
				EnvVars:  []string{"WEBHOOK_SECRET"},
			},
		},
		Action: func(c *cli.Context) error {
			return signAction(c, logger)
		},
	}
}

func signAction(c *cli.Context, logger *zerolog.Logger) error {
	payload, err := readPayload(c.String("payload"))
	if err != nil {
		return err
	}

	logger.Debug().Int("bytes", len(payload)).Msg("Signing payload")
	fmt.Fprintln(c.App.Writer, webhook.Sign(payload, c.String("secret")))
	return nil
}

func readPayload(path string) ([]byte, error) {
	if path == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read payload from stdin: %w", err)
		}
		return data, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read payload %s: %w", path, err)
	}
	return data, nil
}
