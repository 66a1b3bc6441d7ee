package di

import (
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/savaki/branch-deployer/internal/dao/envdao"
	"github.com/savaki/branch-deployer/internal/dao/lockdao"
	"github.com/savaki/branch-deployer/internal/services"
)

// ProvideLockDAO returns nil when no lock table is configured
func ProvideLockDAO(config *services.Config, client *dynamodb.Client) *lockdao.DAO {
	if config.LockTable == "" {
		return nil
	}
	return lockdao.New(client, config.LockTable)
}

// ProvideEnvDAO returns nil when no environment table is configured
func ProvideEnvDAO(config *services.Config, client *dynamodb.Client) *envdao.DAO {
	if config.EnvironmentTable == "" {
		return nil
	}
	return envdao.New(client, config.EnvironmentTable)
}
