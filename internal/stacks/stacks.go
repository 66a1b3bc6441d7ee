// Package stacks tears down the CloudFormation stacks that back a branch environment.
package stacks

import (
	"context"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/rs/zerolog"
	"github.com/savaki/branch-deployer/internal/errors"
)

// DefaultDeleteTimeout bounds the wait for the application stack to reach DELETE_COMPLETE
const DefaultDeleteTimeout = 10 * time.Minute

// Client defines the CloudFormation operations needed for teardown.
// DescribeStacks is used by the StackDeleteComplete waiter.
type Client interface {
	GetTemplate(ctx context.Context, params *cloudformation.GetTemplateInput, optFns ...func(*cloudformation.Options)) (*cloudformation.GetTemplateOutput, error)
	DeleteStack(ctx context.Context, params *cloudformation.DeleteStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DeleteStackOutput, error)
	DescribeStacks(ctx context.Context, params *cloudformation.DescribeStacksInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeStacksOutput, error)
}

// Plan names the stacks to remove for a branch
type Plan struct {
	Branch            string
	PipelineStackName string // home account; empty when the strategy creates no pipeline stack
	AppStackName      string // empty when discovery found nothing
	RoleARN           string // role in the application account; empty to use home credentials
}

// Result reports what Teardown removed
type Result struct {
	PipelineStackName string  // deletion initiated
	AppStackName      string  // deletion confirmed
	Warnings          []error // non-fatal problems, e.g. DiscoveryIncomplete
}

// Coordinator deletes stacks in dependency order: pipeline stack first, then the
// application stack, waiting for the latter to finish.
type Coordinator struct {
	home          Client
	factory       ClientFactory
	deleteTimeout time.Duration
}

func NewCoordinator(home Client, factory ClientFactory, deleteTimeout time.Duration) *Coordinator {
	if deleteTimeout <= 0 {
		deleteTimeout = DefaultDeleteTimeout
	}
	return &Coordinator{
		home:          home,
		factory:       factory,
		deleteTimeout: deleteTimeout,
	}
}

// Teardown removes the stacks named by plan. Credentials for the application
// account are assumed before anything is deleted and discarded afterwards.
func (c *Coordinator) Teardown(ctx context.Context, plan Plan) (*Result, error) {
	logger := zerolog.Ctx(ctx).With().Str("branch", plan.Branch).Logger()
	result := &Result{}

	if plan.AppStackName == "" {
		logger.Warn().Msg("Application stack not discovered; only the pipeline side will be removed")
		result.Warnings = append(result.Warnings, errors.E(errors.KindDiscoveryIncomplete, "discover application stack", nil))
	}

	appClient := c.home
	if plan.AppStackName != "" && plan.RoleARN != "" {
		logger.Info().Str("role_arn", plan.RoleARN).Msg("Assuming role in application account")
		assumed, err := c.factory.ForRole(ctx, plan.RoleARN)
		if err != nil {
			return result, err
		}
		appClient = assumed
	}

	if plan.PipelineStackName != "" {
		if err := c.deleteStack(ctx, c.home, plan.PipelineStackName); err != nil {
			return result, err
		}
		result.PipelineStackName = plan.PipelineStackName
	}

	if plan.AppStackName != "" {
		if err := c.deleteStack(ctx, appClient, plan.AppStackName); err != nil {
			return result, err
		}
		if err := c.waitDeleted(ctx, appClient, plan.AppStackName); err != nil {
			return result, err
		}
		result.AppStackName = plan.AppStackName
	}

	return result, nil
}

func (c *Coordinator) deleteStack(ctx context.Context, client Client, stackName string) error {
	logger := zerolog.Ctx(ctx)

	_, err := client.DeleteStack(ctx, &cloudformation.DeleteStackInput{
		StackName: aws.String(stackName),
	})
	if err != nil {
		if errors.IsStackMissing(err) {
			logger.Info().Str("stack_name", stackName).Msg("Stack already deleted")
			return nil
		}
		return errors.E(errors.KindStackDeleteFailed, "delete stack "+stackName, err)
	}

	logger.Info().Str("stack_name", stackName).Msg("Stack deletion initiated")
	return nil
}

func (c *Coordinator) waitDeleted(ctx context.Context, client Client, stackName string) error {
	logger := zerolog.Ctx(ctx)
	op := "wait for stack " + stackName

	logger.Info().
		Str("stack_name", stackName).
		Dur("timeout", c.deleteTimeout).
		Msg("Waiting for stack deletion")

	waiter := cloudformation.NewStackDeleteCompleteWaiter(client)
	err := waiter.Wait(ctx, &cloudformation.DescribeStacksInput{
		StackName: aws.String(stackName),
	}, c.deleteTimeout)
	if err != nil {
		if strings.Contains(err.Error(), "exceeded max wait time") {
			return errors.E(errors.KindStackDeleteTimeout, op, err)
		}
		return errors.E(errors.KindStackDeleteFailed, op, err)
	}

	logger.Info().Str("stack_name", stackName).Msg("Stack deleted")
	return nil
}
