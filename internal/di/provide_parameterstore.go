package di

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog"
	"github.com/savaki/branch-deployer/internal/services"
)

// ProvideSSMClient provides an SSM client for Parameter Store access
// Returns nil if SSM is disabled (for local development)
func ProvideSSMClient(awsConfig aws.Config) *ssm.Client {
	// Check if SSM should be disabled (local development)
	if os.Getenv("DISABLE_SSM") == "true" {
		return nil
	}

	return ssm.NewFromConfig(awsConfig)
}

// ProvideParameterStore provides a ParameterStore implementation
// Uses SSM Parameter Store in AWS, falls back to environment variables when disabled
func ProvideParameterStore(ctx context.Context, ssmClient *ssm.Client, env string) services.ParameterStore {
	logger := zerolog.Ctx(ctx)

	if ssmClient == nil {
		logger.Info().Msg("Using environment variables for configuration (SSM disabled)")
		return services.NewEnvParameterStore(env)
	}

	logger.Info().Msg("Using AWS Systems Manager Parameter Store for configuration")
	return services.NewSSMParameterStore(ssmClient, env)
}

// ProvideAppConfig loads application configuration from Parameter Store or environment variables
func ProvideAppConfig(ctx context.Context, store services.ParameterStore) (*services.Config, error) {
	logger := zerolog.Ctx(ctx)

	config, err := store.GetConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	logger.Info().
		Str("strategy", config.Strategy).
		Str("branch_prefix", config.BranchPrefix).
		Str("create_event", config.CreateEvent).
		Dur("stack_delete_timeout", config.StackDeleteTimeout).
		Bool("cross_account", config.AppAccountID != "").
		Bool("has_lock_table", config.LockTable != "").
		Bool("has_environment_table", config.EnvironmentTable != "").
		Msg("Configuration loaded successfully")

	return config, nil
}

// ProvideSecretSource returns the webhook secret, read lazily from Secrets Manager
// unless overridden
func ProvideSecretSource(config *services.Config, client *secretsmanager.Client, override WebhookSecretOverride) services.SecretSource {
	if override != "" {
		return services.StaticSecret(override)
	}
	return services.NewWebhookSecret(client, config.WebhookSecretID)
}

// ProvideBranchRegistry tracks branches in Parameter Store. It always talks to
// SSM, even when configuration comes from the environment.
func ProvideBranchRegistry(awsConfig aws.Config, config *services.Config) *services.BranchRegistry {
	return services.NewBranchRegistry(ssm.NewFromConfig(awsConfig), config.ParameterPrefix)
}
