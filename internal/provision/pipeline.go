package provision

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/savaki/branch-deployer/internal/constants"
	"github.com/savaki/branch-deployer/internal/errors"
	"github.com/savaki/branch-deployer/internal/naming"
	"github.com/savaki/branch-deployer/internal/stacks"
)

// PipelineStrategy clones a template pipeline for every branch
type PipelineStrategy struct {
	pipelines    Pipelines
	stacks       Stacks
	templateName string
	roleARN      string
}

func NewPipelineStrategy(pipelines Pipelines, stacks Stacks, templateName, roleARN string) *PipelineStrategy {
	return &PipelineStrategy{
		pipelines:    pipelines,
		stacks:       stacks,
		templateName: templateName,
		roleARN:      roleARN,
	}
}

func (s *PipelineStrategy) Name() string {
	return constants.StrategyPipeline
}

// Provision materializes the template as names.PipelineName. A pipeline that
// already exists is left in place.
func (s *PipelineStrategy) Provision(ctx context.Context, names naming.Names) error {
	_, err := s.pipelines.Materialize(ctx, s.templateName, names.Branch, names.PipelineName)
	if errors.Is(err, errors.KindPipelineAlreadyExists) {
		zerolog.Ctx(ctx).Info().
			Str("pipeline_name", names.PipelineName).
			Msg("Pipeline already exists")
		return nil
	}
	return err
}

// Teardown deletes the branch pipeline, then the stack it deployed
func (s *PipelineStrategy) Teardown(ctx context.Context, names naming.Names) (*stacks.Result, error) {
	logger := zerolog.Ctx(ctx)

	if err := s.pipelines.Delete(ctx, names.PipelineName); err != nil {
		return nil, err
	}

	appStack, err := s.pipelines.DeployStackName(ctx, s.templateName, names.Branch)
	if err != nil {
		if !errors.Is(err, errors.KindTemplateNotFound) {
			return nil, err
		}
		logger.Warn().Err(err).Str("template", s.templateName).Msg("Template pipeline missing")
	}

	return s.stacks.Teardown(ctx, stacks.Plan{
		Branch:       names.Branch,
		AppStackName: appStack,
		RoleARN:      s.roleARN,
	})
}
