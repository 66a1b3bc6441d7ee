package di

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/codebuild"
	"github.com/aws/aws-sdk-go-v2/service/codepipeline"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/savaki/branch-deployer/internal/dao/envdao"
	"github.com/savaki/branch-deployer/internal/dao/lockdao"
	"github.com/savaki/branch-deployer/internal/naming"
	"github.com/savaki/branch-deployer/internal/orchestrator"
	"github.com/savaki/branch-deployer/internal/pipeline"
	"github.com/savaki/branch-deployer/internal/provision"
	"github.com/savaki/branch-deployer/internal/services"
	"github.com/savaki/branch-deployer/internal/stacks"
)

// ProvideFilter compiles the branch prefix once per cold start
func ProvideFilter(config *services.Config) (*naming.Filter, error) {
	return naming.NewFilter(config.BranchPrefix)
}

func ProvidePipelineManager(client *codepipeline.Client) *pipeline.Manager {
	return pipeline.NewManager(client)
}

func ProvideStackCoordinator(awsConfig aws.Config, cfn *cloudformation.Client, stsClient *sts.Client, config *services.Config) *stacks.Coordinator {
	factory := stacks.NewAssumeRoleFactory(stsClient, awsConfig)
	return stacks.NewCoordinator(cfn, factory, config.StackDeleteTimeout)
}

func ProvideStrategy(config *services.Config, pipelines *pipeline.Manager, coordinator *stacks.Coordinator, builds *codebuild.Client) (provision.Strategy, error) {
	return provision.New(config, pipelines, coordinator, builds)
}

func ProvideController(
	config *services.Config,
	secret services.SecretSource,
	filter *naming.Filter,
	registry *services.BranchRegistry,
	strategy provision.Strategy,
	locks *lockdao.DAO,
	environments *envdao.DAO,
) *orchestrator.Controller {
	var opts []orchestrator.Option
	if locks != nil {
		opts = append(opts, orchestrator.WithLocker(locks))
	}
	if environments != nil {
		opts = append(opts, orchestrator.WithRecorder(environments))
	}
	return orchestrator.New(config, secret, filter, registry, strategy, opts...)
}
