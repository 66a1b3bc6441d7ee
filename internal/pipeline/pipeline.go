// Package pipeline clones a template CodePipeline for a branch and removes it again.
package pipeline

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/codepipeline"
	"github.com/aws/aws-sdk-go-v2/service/codepipeline/types"
	"github.com/rs/zerolog"
	"github.com/savaki/branch-deployer/internal/constants"
	"github.com/savaki/branch-deployer/internal/errors"
	"github.com/savaki/branch-deployer/internal/naming"
)

// Client defines the CodePipeline operations needed to manage branch pipelines
type Client interface {
	GetPipeline(ctx context.Context, params *codepipeline.GetPipelineInput, optFns ...func(*codepipeline.Options)) (*codepipeline.GetPipelineOutput, error)
	CreatePipeline(ctx context.Context, params *codepipeline.CreatePipelineInput, optFns ...func(*codepipeline.Options)) (*codepipeline.CreatePipelineOutput, error)
	DeletePipeline(ctx context.Context, params *codepipeline.DeletePipelineInput, optFns ...func(*codepipeline.Options)) (*codepipeline.DeletePipelineOutput, error)
}

// Manager materializes and deletes branch pipelines
type Manager struct {
	client Client
}

func NewManager(client Client) *Manager {
	return &Manager{client: client}
}

// Template fetches the declaration of the named pipeline
func (m *Manager) Template(ctx context.Context, name string) (*types.PipelineDeclaration, error) {
	const op = "get template pipeline"

	out, err := m.client.GetPipeline(ctx, &codepipeline.GetPipelineInput{
		Name: aws.String(name),
	})
	if err != nil {
		var notFound *types.PipelineNotFoundException
		if errors.As(err, &notFound) {
			return nil, errors.E(errors.KindTemplateNotFound, op, err)
		}
		return nil, errors.E(errors.KindUnknown, op, err)
	}
	if out.Pipeline == nil {
		return nil, errors.E(errors.KindTemplateInvalid, op, nil)
	}
	return out.Pipeline, nil
}

// Materialize clones the template pipeline for branch and registers it as pipelineName.
// The template itself is never modified. If a pipeline named pipelineName already exists
// the returned error has kind PipelineAlreadyExists.
func (m *Manager) Materialize(ctx context.Context, templateName, branch, pipelineName string) (*types.PipelineDeclaration, error) {
	const op = "create pipeline"
	logger := zerolog.Ctx(ctx)

	template, err := m.Template(ctx, templateName)
	if err != nil {
		return nil, err
	}

	decl, err := Render(template, branch, pipelineName)
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("template", templateName).
		Str("pipeline_name", pipelineName).
		Str("branch", branch).
		Msg("Creating branch pipeline")

	_, err = m.client.CreatePipeline(ctx, &codepipeline.CreatePipelineInput{
		Pipeline: decl,
		Tags: []types.Tag{
			{Key: aws.String(constants.TagManagedBy), Value: aws.String(constants.AppName)},
			{Key: aws.String(constants.TagBranch), Value: aws.String(branch)},
		},
	})
	if err != nil {
		var inUse *types.PipelineNameInUseException
		if errors.As(err, &inUse) {
			return decl, errors.E(errors.KindPipelineAlreadyExists, op, err)
		}
		return nil, errors.E(errors.KindRegistrationFailed, op, err)
	}

	return decl, nil
}

// Delete removes the named pipeline. A pipeline that does not exist is not an error.
func (m *Manager) Delete(ctx context.Context, name string) error {
	logger := zerolog.Ctx(ctx)

	_, err := m.client.DeletePipeline(ctx, &codepipeline.DeletePipelineInput{
		Name: aws.String(name),
	})
	if err != nil {
		var notFound *types.PipelineNotFoundException
		if errors.As(err, &notFound) {
			logger.Info().Str("pipeline_name", name).Msg("Pipeline already deleted")
			return nil
		}
		return errors.E(errors.KindUnknown, "delete pipeline", err)
	}

	logger.Info().Str("pipeline_name", name).Msg("Deleted branch pipeline")
	return nil
}

// DeployStackName returns the branch-prefixed StackName of the last Deploy action in
// the template pipeline, or "" when the template deploys no stack.
func (m *Manager) DeployStackName(ctx context.Context, templateName, branch string) (string, error) {
	template, err := m.Template(ctx, templateName)
	if err != nil {
		return "", err
	}

	stackName := deployStackName(template)
	if stackName == "" {
		return "", nil
	}
	return naming.PrefixStackName(branch, stackName), nil
}
