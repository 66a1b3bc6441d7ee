package services

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/savaki/branch-deployer/internal/constants"
	"github.com/savaki/branch-deployer/internal/errors"
	"github.com/savaki/branch-deployer/internal/naming"
)

// Defaults applied when a setting is absent
const (
	DefaultBranchPrefix       = "^(feat|bug|hotfix)-"
	DefaultPipelineSuffix     = "-pipeline"
	DefaultStackDeleteTimeout = 10 * time.Minute
)

// Config holds all application configuration. It is loaded once per cold start
// and never modified afterwards.
type Config struct {
	Env                   string
	Strategy              string // pipeline or build
	BranchPrefix          string
	PipelineSuffix        string
	PipelineTemplate      string // pipeline strategy: template pipeline name
	WebhookSecretID       string
	AppAccountID          string
	CrossAccountRoleName  string
	BuildProject          string // build strategy: CodeBuild project
	PipelineStackTemplate string // build strategy: pipeline stack name containing BRANCH_NAME
	ParameterPrefix       string
	StackDeleteTimeout    time.Duration
	LockTable             string
	EnvironmentTable      string
	CreateEvent           string // event kind that provisions a branch: push or create
}

// Validate checks the settings required by the selected strategy
func (c *Config) Validate() error {
	var problems []string

	switch c.Strategy {
	case constants.StrategyPipeline:
		if c.PipelineTemplate == "" {
			problems = append(problems, "pipeline strategy requires a pipeline template")
		}
	case constants.StrategyBuild:
		if c.BuildProject == "" {
			problems = append(problems, "build strategy requires a build project")
		}
		if c.PipelineStackTemplate == "" {
			problems = append(problems, "build strategy requires a pipeline stack template")
		}
	default:
		return fmt.Errorf("%w: %w: %q", errors.ErrInvalidConfig, errors.ErrUnknownStrategy, c.Strategy)
	}

	if c.WebhookSecretID == "" {
		problems = append(problems, "webhook secret id is required")
	}
	if (c.AppAccountID == "") != (c.CrossAccountRoleName == "") {
		problems = append(problems, "app account id and cross account role name must be set together")
	}
	if c.CreateEvent != "push" && c.CreateEvent != "create" {
		problems = append(problems, fmt.Sprintf("create event must be push or create, got %q", c.CreateEvent))
	}
	if c.StackDeleteTimeout >= constants.LockTTL {
		problems = append(problems, fmt.Sprintf("stack delete timeout %v must be shorter than the branch lock ttl %v", c.StackDeleteTimeout, constants.LockTTL))
	}
	if _, err := naming.NewFilter(c.BranchPrefix); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", errors.ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// ParameterStore defines the interface for loading configuration
type ParameterStore interface {
	// GetConfig loads all application configuration
	GetConfig(ctx context.Context) (*Config, error)
}

// SSMClient defines the SSM operations needed to load configuration
type SSMClient interface {
	GetParametersByPath(ctx context.Context, params *ssm.GetParametersByPathInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error)
}

// SSMParameterStore implements ParameterStore using AWS Systems Manager Parameter Store.
// Parameters live under /<env>/branch-deployer/.
type SSMParameterStore struct {
	client SSMClient
	env    string
}

// NewSSMParameterStore creates a new SSM-backed parameter store
func NewSSMParameterStore(client SSMClient, env string) *SSMParameterStore {
	return &SSMParameterStore{
		client: client,
		env:    env,
	}
}

// GetConfig loads all application configuration from Parameter Store
func (s *SSMParameterStore) GetConfig(ctx context.Context) (*Config, error) {
	path := fmt.Sprintf("/%s/%s", s.env, constants.AppName)

	params := make(map[string]string)
	paginator := ssm.NewGetParametersByPathPaginator(s.client, &ssm.GetParametersByPathInput{
		Path:           aws.String(path),
		Recursive:      aws.Bool(true),
		WithDecryption: aws.Bool(true),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get parameters by path %s: %w", path, err)
		}
		for _, param := range page.Parameters {
			if param.Name != nil && param.Value != nil {
				params[strings.TrimPrefix(*param.Name, path+"/")] = *param.Value
			}
		}
	}

	config := &Config{
		Env:                   s.env,
		Strategy:              params["strategy"],
		BranchPrefix:          params["branch-prefix"],
		PipelineSuffix:        params["pipeline-suffix"],
		PipelineTemplate:      params["pipeline-template"],
		WebhookSecretID:       params["webhook-secret-id"],
		AppAccountID:          params["app-account-id"],
		CrossAccountRoleName:  params["cross-account-role-name"],
		BuildProject:          params["build-project"],
		PipelineStackTemplate: params["pipeline-stack-template"],
		ParameterPrefix:       params["parameter-prefix"],
		LockTable:             params["lock-table"],
		EnvironmentTable:      params["environment-table"],
		CreateEvent:           params["create-event"],
	}

	timeout, err := parseTimeout(params["stack-delete-timeout"])
	if err != nil {
		return nil, err
	}
	config.StackDeleteTimeout = timeout

	setDefaults(config)
	return config, nil
}

// EnvParameterStore implements ParameterStore using environment variables.
// Used for local development and when DISABLE_SSM=true.
type EnvParameterStore struct {
	env    string
	getenv func(string) string
}

// NewEnvParameterStore creates a new environment variable-backed parameter store
func NewEnvParameterStore(env string) *EnvParameterStore {
	return &EnvParameterStore{
		env:    env,
		getenv: os.Getenv,
	}
}

// GetConfig loads all application configuration from environment variables
func (e *EnvParameterStore) GetConfig(ctx context.Context) (*Config, error) {
	config := &Config{
		Env:                   e.env,
		Strategy:              e.getenv("STRATEGY"),
		BranchPrefix:          e.getenv("BRANCH_PREFIX"),
		PipelineSuffix:        e.getenv("PIPELINE_SUFFIX"),
		PipelineTemplate:      e.getenv("PIPELINE_TEMPLATE"),
		WebhookSecretID:       e.getenv("WEBHOOK_SECRET_ID"),
		AppAccountID:          e.getenv("APP_ACCOUNT_ID"),
		CrossAccountRoleName:  e.getenv("CROSS_ACCOUNT_ROLE_NAME"),
		BuildProject:          e.getenv("BUILD_PROJECT"),
		PipelineStackTemplate: e.getenv("PIPELINE_STACK_TEMPLATE"),
		ParameterPrefix:       e.getenv("PARAMETER_PREFIX"),
		LockTable:             e.getenv("LOCK_TABLE"),
		EnvironmentTable:      e.getenv("ENVIRONMENT_TABLE"),
		CreateEvent:           e.getenv("CREATE_EVENT"),
	}

	timeout, err := parseTimeout(e.getenv("STACK_DELETE_TIMEOUT"))
	if err != nil {
		return nil, err
	}
	config.StackDeleteTimeout = timeout

	setDefaults(config)
	return config, nil
}

func parseTimeout(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w: stack delete timeout %q: %w", errors.ErrInvalidConfig, s, err)
	}
	return d, nil
}

func setDefaults(config *Config) {
	if config.Strategy == "" {
		config.Strategy = constants.StrategyPipeline
	}
	if config.BranchPrefix == "" {
		config.BranchPrefix = DefaultBranchPrefix
	}
	if config.PipelineSuffix == "" {
		config.PipelineSuffix = DefaultPipelineSuffix
	}
	if config.StackDeleteTimeout <= 0 {
		config.StackDeleteTimeout = DefaultStackDeleteTimeout
	}
	if config.CreateEvent == "" {
		// the build strategy reacts to branch creation, the template strategy to every push
		if config.Strategy == constants.StrategyBuild {
			config.CreateEvent = "create"
		} else {
			config.CreateEvent = "push"
		}
	}
}
