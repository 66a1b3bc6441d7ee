package stacks

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	ststypes "github.com/aws/aws-sdk-go-v2/service/sts/types"
	"github.com/savaki/branch-deployer/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSTSClient struct {
	assumeRoleFunc func(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
	inputs         []*sts.AssumeRoleInput
}

func (m *mockSTSClient) AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error) {
	m.inputs = append(m.inputs, params)
	return m.assumeRoleFunc(ctx, params, optFns...)
}

func TestRoleARN(t *testing.T) {
	assert.Equal(t, "arn:aws:iam::222222222222:role/cleanup", RoleARN("222222222222", "cleanup"))
	assert.Equal(t, "", RoleARN("", "cleanup"))
	assert.Equal(t, "", RoleARN("222222222222", ""))
}

func TestAssumeRoleFactory_ForRole(t *testing.T) {
	stsClient := &mockSTSClient{
		assumeRoleFunc: func(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error) {
			return &sts.AssumeRoleOutput{
				Credentials: &ststypes.Credentials{
					AccessKeyId:     aws.String("AKIDEXAMPLE"),
					SecretAccessKey: aws.String("secret"),
					SessionToken:    aws.String("token"),
					Expiration:      aws.Time(time.Now().Add(time.Hour)),
				},
			}, nil
		},
	}

	var got aws.Config
	f := NewAssumeRoleFactory(stsClient, aws.Config{Region: "us-east-1"})
	f.newClient = func(cfg aws.Config) Client {
		got = cfg
		return &mockClient{}
	}

	client, err := f.ForRole(testContext(), "arn:aws:iam::222222222222:role/cleanup")
	require.NoError(t, err)
	require.NotNil(t, client)

	require.Len(t, stsClient.inputs, 1)
	assert.Equal(t, "arn:aws:iam::222222222222:role/cleanup", aws.ToString(stsClient.inputs[0].RoleArn))
	assert.Equal(t, "CleanupChildStacks", aws.ToString(stsClient.inputs[0].RoleSessionName))

	assert.Equal(t, "us-east-1", got.Region)
	creds, err := got.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AKIDEXAMPLE", creds.AccessKeyID)
	assert.Equal(t, "secret", creds.SecretAccessKey)
	assert.Equal(t, "token", creds.SessionToken)
}

func TestAssumeRoleFactory_ForRole_NotCached(t *testing.T) {
	stsClient := &mockSTSClient{
		assumeRoleFunc: func(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error) {
			return &sts.AssumeRoleOutput{
				Credentials: &ststypes.Credentials{
					AccessKeyId:     aws.String("AKIDEXAMPLE"),
					SecretAccessKey: aws.String("secret"),
					SessionToken:    aws.String("token"),
					Expiration:      aws.Time(time.Now().Add(time.Hour)),
				},
			}, nil
		},
	}
	f := NewAssumeRoleFactory(stsClient, aws.Config{})
	f.newClient = func(cfg aws.Config) Client { return &mockClient{} }

	_, err := f.ForRole(testContext(), "arn:aws:iam::222222222222:role/cleanup")
	require.NoError(t, err)
	_, err = f.ForRole(testContext(), "arn:aws:iam::222222222222:role/cleanup")
	require.NoError(t, err)

	assert.Len(t, stsClient.inputs, 2)
}

func TestAssumeRoleFactory_ForRole_Failed(t *testing.T) {
	stsClient := &mockSTSClient{
		assumeRoleFunc: func(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error) {
			return nil, stderrors.New("access denied")
		},
	}
	f := NewAssumeRoleFactory(stsClient, aws.Config{})

	_, err := f.ForRole(testContext(), "arn:aws:iam::222222222222:role/cleanup")
	require.Error(t, err)
	assert.Equal(t, errors.KindAssumeRoleFailed, errors.KindOf(err))
}
