package stacks

import (
	"context"
	stderrors "errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
	"github.com/savaki/branch-deployer/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// calls records every mutating call across clients, in order
type calls struct {
	log []string
}

type mockClient struct {
	name               string
	calls              *calls
	getTemplateFunc    func(ctx context.Context, params *cloudformation.GetTemplateInput, optFns ...func(*cloudformation.Options)) (*cloudformation.GetTemplateOutput, error)
	deleteStackFunc    func(ctx context.Context, params *cloudformation.DeleteStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DeleteStackOutput, error)
	describeStacksFunc func(ctx context.Context, params *cloudformation.DescribeStacksInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeStacksOutput, error)
}

func (m *mockClient) GetTemplate(ctx context.Context, params *cloudformation.GetTemplateInput, optFns ...func(*cloudformation.Options)) (*cloudformation.GetTemplateOutput, error) {
	if m.getTemplateFunc != nil {
		return m.getTemplateFunc(ctx, params, optFns...)
	}
	return nil, stderrors.New("getTemplateFunc not set")
}

func (m *mockClient) DeleteStack(ctx context.Context, params *cloudformation.DeleteStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DeleteStackOutput, error) {
	if m.calls != nil {
		m.calls.log = append(m.calls.log, m.name+":delete:"+aws.ToString(params.StackName))
	}
	if m.deleteStackFunc != nil {
		return m.deleteStackFunc(ctx, params, optFns...)
	}
	return &cloudformation.DeleteStackOutput{}, nil
}

func (m *mockClient) DescribeStacks(ctx context.Context, params *cloudformation.DescribeStacksInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeStacksOutput, error) {
	if m.describeStacksFunc != nil {
		return m.describeStacksFunc(ctx, params, optFns...)
	}
	// Default: stack is gone
	return nil, stackMissing(aws.ToString(params.StackName))
}

type mockFactory struct {
	forRoleFunc func(ctx context.Context, roleARN string) (Client, error)
	roles       []string
}

func (m *mockFactory) ForRole(ctx context.Context, roleARN string) (Client, error) {
	m.roles = append(m.roles, roleARN)
	return m.forRoleFunc(ctx, roleARN)
}

func stackMissing(name string) error {
	return &smithy.GenericAPIError{Code: "ValidationError", Message: "Stack with id " + name + " does not exist"}
}

func stackWithStatus(status types.StackStatus) func(context.Context, *cloudformation.DescribeStacksInput, ...func(*cloudformation.Options)) (*cloudformation.DescribeStacksOutput, error) {
	return func(ctx context.Context, params *cloudformation.DescribeStacksInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeStacksOutput, error) {
		return &cloudformation.DescribeStacksOutput{
			Stacks: []types.Stack{{StackName: params.StackName, StackStatus: status}},
		}, nil
	}
}

func testContext() context.Context {
	logger := zerolog.New(io.Discard)
	return logger.WithContext(context.Background())
}

func TestCoordinator_Teardown_Order(t *testing.T) {
	log := &calls{}
	home := &mockClient{name: "home", calls: log}
	app := &mockClient{name: "app", calls: log}
	factory := &mockFactory{
		forRoleFunc: func(ctx context.Context, roleARN string) (Client, error) {
			log.log = append(log.log, "assume:"+roleARN)
			return app, nil
		},
	}

	c := NewCoordinator(home, factory, time.Minute)
	result, err := c.Teardown(testContext(), Plan{
		Branch:            "feature-42",
		PipelineStackName: "web-pipeline-feature-42",
		AppStackName:      "web-app-feature-42",
		RoleARN:           "arn:aws:iam::222222222222:role/cleanup",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"assume:arn:aws:iam::222222222222:role/cleanup",
		"home:delete:web-pipeline-feature-42",
		"app:delete:web-app-feature-42",
	}, log.log)
	assert.Equal(t, "web-pipeline-feature-42", result.PipelineStackName)
	assert.Equal(t, "web-app-feature-42", result.AppStackName)
	assert.Empty(t, result.Warnings)
}

func TestCoordinator_Teardown_HomeAccount(t *testing.T) {
	log := &calls{}
	home := &mockClient{name: "home", calls: log, describeStacksFunc: stackWithStatus(types.StackStatusDeleteComplete)}

	c := NewCoordinator(home, nil, time.Minute)
	result, err := c.Teardown(testContext(), Plan{
		Branch:       "feature-42",
		AppStackName: "feature-42-app",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"home:delete:feature-42-app"}, log.log)
	assert.Equal(t, "", result.PipelineStackName)
	assert.Equal(t, "feature-42-app", result.AppStackName)
}

func TestCoordinator_Teardown_DiscoveryIncomplete(t *testing.T) {
	log := &calls{}
	home := &mockClient{name: "home", calls: log}
	factory := &mockFactory{
		forRoleFunc: func(ctx context.Context, roleARN string) (Client, error) {
			t.Fatal("no role should be assumed without an application stack")
			return nil, nil
		},
	}

	c := NewCoordinator(home, factory, time.Minute)
	result, err := c.Teardown(testContext(), Plan{
		Branch:            "feature-42",
		PipelineStackName: "web-pipeline-feature-42",
		RoleARN:           "arn:aws:iam::222222222222:role/cleanup",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"home:delete:web-pipeline-feature-42"}, log.log)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, errors.KindDiscoveryIncomplete, errors.KindOf(result.Warnings[0]))
}

func TestCoordinator_Teardown_AssumeRoleFailed(t *testing.T) {
	log := &calls{}
	home := &mockClient{name: "home", calls: log}
	factory := &mockFactory{
		forRoleFunc: func(ctx context.Context, roleARN string) (Client, error) {
			return nil, errors.E(errors.KindAssumeRoleFailed, "assume role", stderrors.New("access denied"))
		},
	}

	c := NewCoordinator(home, factory, time.Minute)
	_, err := c.Teardown(testContext(), Plan{
		Branch:            "feature-42",
		PipelineStackName: "web-pipeline-feature-42",
		AppStackName:      "web-app-feature-42",
		RoleARN:           "arn:aws:iam::222222222222:role/cleanup",
	})
	require.Error(t, err)
	assert.Equal(t, errors.KindAssumeRoleFailed, errors.KindOf(err))
	assert.Empty(t, log.log, "nothing deleted when credentials cannot be assumed")
}

func TestCoordinator_Teardown_StackMissing(t *testing.T) {
	home := &mockClient{
		deleteStackFunc: func(ctx context.Context, params *cloudformation.DeleteStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DeleteStackOutput, error) {
			return nil, stackMissing(aws.ToString(params.StackName))
		},
	}

	c := NewCoordinator(home, nil, time.Minute)
	_, err := c.Teardown(testContext(), Plan{
		Branch:            "feature-42",
		PipelineStackName: "web-pipeline-feature-42",
		AppStackName:      "web-app-feature-42",
	})
	assert.NoError(t, err)
}

func TestCoordinator_Teardown_WaitErrors(t *testing.T) {
	tests := []struct {
		name     string
		describe func(context.Context, *cloudformation.DescribeStacksInput, ...func(*cloudformation.Options)) (*cloudformation.DescribeStacksOutput, error)
		timeout  time.Duration
		wantKind errors.Kind
	}{
		{
			name:     "delete failed",
			describe: stackWithStatus(types.StackStatusDeleteFailed),
			timeout:  time.Minute,
			wantKind: errors.KindStackDeleteFailed,
		},
		{
			name:     "timeout",
			describe: stackWithStatus(types.StackStatusDeleteInProgress),
			timeout:  time.Millisecond,
			wantKind: errors.KindStackDeleteTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			home := &mockClient{describeStacksFunc: tt.describe}

			c := NewCoordinator(home, nil, tt.timeout)
			_, err := c.Teardown(testContext(), Plan{Branch: "feature-42", AppStackName: "feature-42-app"})
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, errors.KindOf(err))
		})
	}
}

func TestCoordinator_Teardown_DeleteError(t *testing.T) {
	home := &mockClient{
		deleteStackFunc: func(ctx context.Context, params *cloudformation.DeleteStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DeleteStackOutput, error) {
			return nil, &smithy.GenericAPIError{Code: "AccessDenied", Message: "denied"}
		},
	}

	c := NewCoordinator(home, nil, time.Minute)
	_, err := c.Teardown(testContext(), Plan{Branch: "feature-42", AppStackName: "feature-42-app"})
	require.Error(t, err)
	assert.Equal(t, errors.KindStackDeleteFailed, errors.KindOf(err))
}

func TestNewCoordinator_DefaultTimeout(t *testing.T) {
	c := NewCoordinator(&mockClient{}, nil, 0)
	assert.Equal(t, DefaultDeleteTimeout, c.deleteTimeout)
}
