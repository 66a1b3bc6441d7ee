package provision

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/codebuild"
	"github.com/aws/aws-sdk-go-v2/service/codebuild/types"
	"github.com/rs/zerolog"
	"github.com/savaki/branch-deployer/internal/constants"
	"github.com/savaki/branch-deployer/internal/errors"
	"github.com/savaki/branch-deployer/internal/naming"
	"github.com/savaki/branch-deployer/internal/stacks"
)

// BuildClient defines the CodeBuild operations needed by the build strategy
type BuildClient interface {
	StartBuild(ctx context.Context, params *codebuild.StartBuildInput, optFns ...func(*codebuild.Options)) (*codebuild.StartBuildOutput, error)
}

// BuildStrategy starts a build that deploys a per-branch pipeline stack
type BuildStrategy struct {
	builds                BuildClient
	stacks                Stacks
	project               string
	pipelineStackTemplate string
	roleARN               string
}

func NewBuildStrategy(builds BuildClient, stacks Stacks, project, pipelineStackTemplate, roleARN string) *BuildStrategy {
	return &BuildStrategy{
		builds:                builds,
		stacks:                stacks,
		project:               project,
		pipelineStackTemplate: pipelineStackTemplate,
		roleARN:               roleARN,
	}
}

func (s *BuildStrategy) Name() string {
	return constants.StrategyBuild
}

// Provision starts the build project against the branch
func (s *BuildStrategy) Provision(ctx context.Context, names naming.Names) error {
	out, err := s.builds.StartBuild(ctx, &codebuild.StartBuildInput{
		ProjectName:   aws.String(s.project),
		SourceVersion: aws.String(names.Branch),
		EnvironmentVariablesOverride: []types.EnvironmentVariable{
			{
				Name:  aws.String(constants.BranchEnvVar),
				Value: aws.String(names.Branch),
				Type:  types.EnvironmentVariableTypePlaintext,
			},
		},
	})
	if err != nil {
		return errors.E(errors.KindBuildFailed, "start build "+s.project, err)
	}

	event := zerolog.Ctx(ctx).Info().
		Str("project", s.project).
		Str("branch", names.Branch)
	if out.Build != nil {
		event = event.Str("build_id", aws.ToString(out.Build.Id))
	}
	event.Msg("Started pipeline build")
	return nil
}

// Teardown deletes the pipeline stack, then the application stack named in its template
func (s *BuildStrategy) Teardown(ctx context.Context, names naming.Names) (*stacks.Result, error) {
	logger := zerolog.Ctx(ctx)
	pipelineStack := naming.StackName(s.pipelineStackTemplate, names.Branch)

	appStack, err := s.stacks.AppStackName(ctx, pipelineStack)
	if err != nil {
		if !errors.Is(err, errors.KindDiscoveryIncomplete) {
			return nil, err
		}
		logger.Warn().Err(err).Str("pipeline_stack", pipelineStack).Msg("Unable to discover application stack")
	}

	return s.stacks.Teardown(ctx, stacks.Plan{
		Branch:            names.Branch,
		PipelineStackName: pipelineStack,
		AppStackName:      appStack,
		RoleARN:           s.roleARN,
	})
}
