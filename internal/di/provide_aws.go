package di

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/codebuild"
	"github.com/aws/aws-sdk-go-v2/service/codepipeline"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

func ProvideAWSConfig(ctx context.Context) (aws.Config, error) {
	return config.LoadDefaultConfig(ctx)
}

func ProvideDynamoDB(config aws.Config) *dynamodb.Client {
	return dynamodb.NewFromConfig(config)
}

func ProvideCloudFormation(config aws.Config) *cloudformation.Client {
	return cloudformation.NewFromConfig(config)
}

func ProvideCodePipeline(config aws.Config) *codepipeline.Client {
	return codepipeline.NewFromConfig(config)
}

func ProvideCodeBuild(config aws.Config) *codebuild.Client {
	return codebuild.NewFromConfig(config)
}

func ProvideSTS(config aws.Config) *sts.Client {
	return sts.NewFromConfig(config)
}

func ProvideSecretsManager(config aws.Config) *secretsmanager.Client {
	return secretsmanager.NewFromConfig(config)
}
