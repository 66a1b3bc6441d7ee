// Package provision holds the strategies that create and remove the delivery
// pipeline of a branch.
package provision

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/codepipeline/types"
	"github.com/savaki/branch-deployer/internal/constants"
	"github.com/savaki/branch-deployer/internal/errors"
	"github.com/savaki/branch-deployer/internal/naming"
	"github.com/savaki/branch-deployer/internal/services"
	"github.com/savaki/branch-deployer/internal/stacks"
)

// Strategy provisions and tears down the pipeline of a single branch
type Strategy interface {
	// Name identifies the strategy in logs and history records
	Name() string

	// Provision creates the branch pipeline. Calling it again for a branch
	// that is already provisioned succeeds.
	Provision(ctx context.Context, names naming.Names) error

	// Teardown removes the branch pipeline and the stacks it deployed
	Teardown(ctx context.Context, names naming.Names) (*stacks.Result, error)
}

// Pipelines is the subset of pipeline.Manager used by the pipeline strategy
type Pipelines interface {
	Materialize(ctx context.Context, templateName, branch, pipelineName string) (*types.PipelineDeclaration, error)
	Delete(ctx context.Context, name string) error
	DeployStackName(ctx context.Context, templateName, branch string) (string, error)
}

// Stacks is the subset of stacks.Coordinator used by both strategies
type Stacks interface {
	AppStackName(ctx context.Context, pipelineStackName string) (string, error)
	Teardown(ctx context.Context, plan stacks.Plan) (*stacks.Result, error)
}

// New returns the strategy selected by config
func New(config *services.Config, pipelines Pipelines, stackCoordinator Stacks, builds BuildClient) (Strategy, error) {
	roleARN := stacks.RoleARN(config.AppAccountID, config.CrossAccountRoleName)

	switch config.Strategy {
	case constants.StrategyPipeline:
		return NewPipelineStrategy(pipelines, stackCoordinator, config.PipelineTemplate, roleARN), nil
	case constants.StrategyBuild:
		return NewBuildStrategy(builds, stackCoordinator, config.BuildProject, config.PipelineStackTemplate, roleARN), nil
	default:
		return nil, fmt.Errorf("%w: %q", errors.ErrUnknownStrategy, config.Strategy)
	}
}
