package stacks

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/savaki/branch-deployer/internal/constants"
	"github.com/savaki/branch-deployer/internal/errors"
)

// RoleARN returns the ARN of roleName in account, or "" if either is empty
func RoleARN(account, roleName string) string {
	if account == "" || roleName == "" {
		return ""
	}
	return fmt.Sprintf("arn:aws:iam::%s:role/%s", account, roleName)
}

// ClientFactory creates CloudFormation clients acting as a role in another account
type ClientFactory interface {
	ForRole(ctx context.Context, roleARN string) (Client, error)
}

// AssumeRoleFactory assumes roleARN through STS on every call. Credentials are
// fetched eagerly so a failure surfaces before any stack is touched.
type AssumeRoleFactory struct {
	stsClient stscreds.AssumeRoleAPIClient
	cfg       aws.Config
	newClient func(cfg aws.Config) Client
}

func NewAssumeRoleFactory(stsClient stscreds.AssumeRoleAPIClient, cfg aws.Config) *AssumeRoleFactory {
	return &AssumeRoleFactory{
		stsClient: stsClient,
		cfg:       cfg,
		newClient: func(cfg aws.Config) Client {
			return cloudformation.NewFromConfig(cfg)
		},
	}
}

// ForRole returns a client for roleARN
func (f *AssumeRoleFactory) ForRole(ctx context.Context, roleARN string) (Client, error) {
	const op = "assume role"

	provider := stscreds.NewAssumeRoleProvider(f.stsClient, roleARN, func(o *stscreds.AssumeRoleOptions) {
		o.RoleSessionName = constants.CleanupSessionName
	})

	creds, err := provider.Retrieve(ctx)
	if err != nil {
		return nil, errors.E(errors.KindAssumeRoleFailed, op, err)
	}
	if !creds.HasKeys() {
		return nil, errors.E(errors.KindAssumeRoleFailed, op, errors.ErrCredentialsMissing)
	}

	cfg := f.cfg.Copy()
	cfg.Credentials = credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken)

	return f.newClient(cfg), nil
}
