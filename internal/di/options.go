package di

// WebhookSecretOverride replaces the Secrets Manager lookup when not empty
type WebhookSecretOverride string

// Option is a function that configures the dependency injection container.
type Option func(*options)

// WithWebhookSecret uses secret instead of reading it from Secrets Manager.
// Intended for local serving and invocation.
func WithWebhookSecret(secret string) Option {
	return func(opts *options) {
		opts.webhookSecret = WebhookSecretOverride(secret)
	}
}

// WithProviders adds constructor functions to the dependency injection container.
// Each provider should be a constructor function that returns one or more values.
// Providers can declare dependencies as function parameters, which will be
// automatically resolved by the container.
//
// Example:
//
//	WithProviders(
//	    di.ProvideLogger,
//	    func(config *services.Config) *Service { return &Service{Config: config} },
//	)
func WithProviders(providers ...any) Option {
	return func(opts *options) {
		opts.providers = append(opts.providers, providers...)
	}
}

type options struct {
	webhookSecret WebhookSecretOverride
	providers     []any
}
