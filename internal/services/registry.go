package services

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/rs/zerolog"
	"github.com/savaki/branch-deployer/internal/errors"
	"github.com/savaki/branch-deployer/internal/naming"
)

// RegistryClient defines the SSM operations needed to track branches
type RegistryClient interface {
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
	DeleteParameter(ctx context.Context, params *ssm.DeleteParameterInput, optFns ...func(*ssm.Options)) (*ssm.DeleteParameterOutput, error)
}

// BranchRegistry records each provisioned branch as a String parameter keyed by
// the sanitized branch name whose value is the raw branch name.
type BranchRegistry struct {
	client RegistryClient
	prefix string
}

func NewBranchRegistry(client RegistryClient, prefix string) *BranchRegistry {
	return &BranchRegistry{
		client: client,
		prefix: prefix,
	}
}

// Key returns the parameter name tracking names
func (r *BranchRegistry) Key(names naming.Names) string {
	return r.prefix + names.Sanitized
}

// Register creates or overwrites the tracking parameter
func (r *BranchRegistry) Register(ctx context.Context, names naming.Names) error {
	key := r.Key(names)

	_, err := r.client.PutParameter(ctx, &ssm.PutParameterInput{
		Name:      aws.String(key),
		Value:     aws.String(names.Branch),
		Type:      types.ParameterTypeString,
		Overwrite: aws.Bool(true),
	})
	if err != nil {
		return errors.E(errors.KindRegistrationFailed, "put parameter "+key, err)
	}

	zerolog.Ctx(ctx).Info().
		Str("parameter", key).
		Str("branch", names.Branch).
		Msg("Registered branch")
	return nil
}

// Unregister removes the tracking parameter. A parameter that does not exist is not an error.
func (r *BranchRegistry) Unregister(ctx context.Context, names naming.Names) error {
	logger := zerolog.Ctx(ctx)
	key := r.Key(names)

	_, err := r.client.DeleteParameter(ctx, &ssm.DeleteParameterInput{
		Name: aws.String(key),
	})
	if err != nil {
		var notFound *types.ParameterNotFound
		if errors.As(err, &notFound) {
			logger.Info().Str("parameter", key).Msg("Branch was not registered")
			return nil
		}
		return errors.E(errors.KindUnknown, "delete parameter "+key, err)
	}

	logger.Info().Str("parameter", key).Msg("Unregistered branch")
	return nil
}
