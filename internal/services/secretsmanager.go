package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/savaki/branch-deployer/internal/errors"
)

// SecretSource provides the shared webhook secret
type SecretSource interface {
	Get(ctx context.Context) (string, error)
}

// SecretsClient defines the Secrets Manager operations needed to read the webhook secret
type SecretsClient interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// WebhookSecret resolves the webhook secret on first use and keeps it for the
// life of the process. Failed lookups are not cached.
type WebhookSecret struct {
	client   SecretsClient
	secretID string

	mu    sync.Mutex
	value string
}

func NewWebhookSecret(client SecretsClient, secretID string) *WebhookSecret {
	return &WebhookSecret{
		client:   client,
		secretID: secretID,
	}
}

// Get returns the webhook secret. The stored value may be the secret itself or a
// JSON object holding the secret under a key equal to the secret id.
func (w *WebhookSecret) Get(ctx context.Context) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.value != "" {
		return w.value, nil
	}

	result, err := w.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(w.secretID),
	})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return "", fmt.Errorf("%w: %s", errors.ErrSecretNotFound, w.secretID)
		}
		return "", fmt.Errorf("failed to get secret %s: %w", w.secretID, err)
	}

	value := parseSecret(w.secretID, aws.ToString(result.SecretString))
	if value == "" {
		return "", fmt.Errorf("%w: %s has no usable value", errors.ErrSecretNotFound, w.secretID)
	}

	w.value = value
	return value, nil
}

func parseSecret(secretID, raw string) string {
	var keyed map[string]any
	if err := json.Unmarshal([]byte(raw), &keyed); err != nil {
		return raw
	}
	if v, ok := keyed[secretID].(string); ok {
		return v
	}
	return ""
}

// StaticSecret is a SecretSource holding a fixed value, for local runs
type StaticSecret string

func (s StaticSecret) Get(ctx context.Context) (string, error) {
	if s == "" {
		return "", errors.ErrSecretNotFound
	}
	return string(s), nil
}
