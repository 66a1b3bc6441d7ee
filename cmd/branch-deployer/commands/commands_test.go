package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/rs/zerolog"
	"github.com/savaki/branch-deployer/internal/dao/envdao"
	"github.com/savaki/branch-deployer/internal/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func TestSignCommand(t *testing.T) {
	payload := []byte(`{"ref":"feature-42","ref_type":"branch"}`)
	path := filepath.Join(t.TempDir(), "payload.json")
	require.NoError(t, os.WriteFile(path, payload, 0o600))

	var out bytes.Buffer
	logger := zerolog.Nop()
	app := &cli.App{
		Writer:   &out,
		Commands: []*cli.Command{SignCommand(&logger)},
	}

	err := app.Run([]string{"branch-deployer", "sign", "--payload", path, "--secret", "s3cr3t"})
	require.NoError(t, err)

	signature := webhook.Sign(payload, "s3cr3t")
	assert.Equal(t, signature+"\n", out.String())
	assert.True(t, webhook.Verify(payload, "s3cr3t", signature))
}

func TestSignCommand_MissingFile(t *testing.T) {
	logger := zerolog.Nop()
	app := &cli.App{
		Writer:   &bytes.Buffer{},
		Commands: []*cli.Command{SignCommand(&logger)},
	}

	err := app.Run([]string{"branch-deployer", "sign", "--payload", filepath.Join(t.TempDir(), "missing.json"), "--secret", "s3cr3t"})
	assert.Error(t, err)
}

func TestDisplayRecords(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		var out bytes.Buffer
		displayRecords(&out, nil)
		assert.Equal(t, "No environments found\n", out.String())
	})

	t.Run("records", func(t *testing.T) {
		var out bytes.Buffer
		displayRecords(&out, []envdao.Record{
			{
				Branch:    "feature-42",
				Operation: envdao.OperationCreate,
				Status:    envdao.StatusSuccess,
				Strategy:  "pipeline",
				UpdatedAt: 1_700_000_000,
				Warnings:  []string{"application stack not discovered"},
			},
			{
				Branch:    "feature-43",
				Operation: envdao.OperationDelete,
				Status:    envdao.StatusFailed,
				Strategy:  "build",
				UpdatedAt: 1_700_000_000,
				ErrorMsg:  aws.String("access denied"),
			},
		})

		s := out.String()
		assert.Contains(t, s, "BRANCH")
		assert.Contains(t, s, "feature-42")
		assert.Contains(t, s, "application stack not discovered")
		assert.Contains(t, s, "2023-11-14 22:13:20")
		assert.Contains(t, s, "access denied")
	})
}

func TestDisplayRecordsJSON(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, displayRecordsJSON(&out, nil))

	var records []envdao.Record
	require.NoError(t, json.Unmarshal(out.Bytes(), &records))
	assert.Empty(t, records)
	assert.Equal(t, "[]\n", out.String())
}
