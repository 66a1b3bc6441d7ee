package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/rs/zerolog"
	"github.com/savaki/branch-deployer/internal/constants"
	"github.com/savaki/branch-deployer/internal/di"
	"github.com/savaki/branch-deployer/internal/orchestrator"
	"github.com/savaki/branch-deployer/internal/services"
	"github.com/savaki/branch-deployer/internal/webhook"
	"github.com/urfave/cli/v2"
)

// GitHub caps webhook payloads at 25MB
const maxBodyBytes = 25 << 20

// Controller handles a single webhook delivery
type Controller interface {
	Handle(ctx context.Context, event webhook.Event) orchestrator.Outcome
}

type Handler struct {
	controller Controller
}

func NewHandler(container di.Container) *Handler {
	return &Handler{
		controller: di.MustGet[*orchestrator.Controller](container),
	}
}

// loggingMiddleware logs details about each request and response
func loggingMiddleware(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Inject logger into request context
			ctx := logger.WithContext(r.Context())
			r = r.WithContext(ctx)

			// Create a custom response writer to capture status code
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			zerolog.Ctx(ctx).Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("remote_addr", r.RemoteAddr).
				Str("user_agent", r.UserAgent()).
				Msg("Incoming request")

			next.ServeHTTP(rw, r)

			zerolog.Ctx(ctx).Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status_code", rw.statusCode).
				Dur("duration", time.Since(start)).
				Msg("Request completed")
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// handleWebhook always answers 200 with the outcome message as a JSON string.
// GitHub retries non-2xx deliveries, and every failure is already reported in the body.
func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("Failed to read request body")
		h.jsonResponse(w, fmt.Sprintf("Error: %v", err))
		return
	}

	outcome := h.controller.Handle(r.Context(), webhook.NewEvent(r.Header, body))
	h.jsonResponse(w, outcome.Message)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, "ok")
}

// jsonResponse writes message as a JSON string with status 200
func (h *Handler) jsonResponse(w http.ResponseWriter, message string) {
	body, err := json.Marshal(message)
	if err != nil {
		body = []byte(`"failed to marshal response"`)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// setupRouter configures all HTTP routes
func (h *Handler) setupRouter() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("POST /", h.handleWebhook)
	return mux
}

func setupContainer(env, secret string) (di.Container, error) {
	return di.New(env,
		di.WithWebhookSecret(secret),
		di.WithProviders(
			di.ProvideLogger,
		),
	)
}

// serveAction starts a local HTTP server for testing
func serveAction(c *cli.Context) error {
	addr := fmt.Sprintf(":%s", c.String("port"))

	container, err := setupContainer(c.String("env"), c.String("secret"))
	if err != nil {
		return fmt.Errorf("failed to setup DI container: %w", err)
	}

	logger := di.MustGet[zerolog.Logger](container)
	handler := NewHandler(container)

	logger.Info().
		Str("addr", addr).
		Str("env", c.String("env")).
		Bool("static_secret", c.String("secret") != "").
		Msg("Starting HTTP server")

	server := &http.Server{
		Addr:              addr,
		Handler:           loggingMiddleware(logger)(handler.setupRouter()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return server.ListenAndServe()
}

// invokeAction feeds a payload file through the controller, signing it with the
// configured webhook secret
func invokeAction(c *cli.Context) error {
	body, err := os.ReadFile(c.String("payload"))
	if err != nil {
		return fmt.Errorf("failed to read payload: %w", err)
	}

	container, err := setupContainer(c.String("env"), c.String("secret"))
	if err != nil {
		return fmt.Errorf("failed to setup DI container: %w", err)
	}

	ctx := di.MustGet[context.Context](container)
	secret, err := di.MustGet[services.SecretSource](container).Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to read webhook secret: %w", err)
	}

	header := http.Header{}
	header.Set(constants.HeaderEvent, c.String("event"))
	header.Set(constants.HeaderSignature, webhook.Sign(body, secret))
	header.Set(constants.HeaderDeliveryID, c.String("delivery-id"))

	handler := NewHandler(container)
	outcome := handler.controller.Handle(ctx, webhook.NewEvent(header, body))

	data, err := json.MarshalIndent(map[string]any{
		"state":    outcome.State,
		"kind":     outcome.Kind,
		"branch":   outcome.Branch,
		"message":  outcome.Message,
		"warnings": outcome.Warnings,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal outcome: %w", err)
	}

	fmt.Println(string(data))
	return nil
}

func main() {
	logger := di.ProvideLogger().With().Str("lambda", "webhook").Logger()

	// Check if running in Lambda environment
	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" {
		env := os.Getenv("ENV")
		if env == "" {
			env = os.Getenv("ENVIRONMENT")
		}
		if env == "" {
			logger.Error().Msg("ENV or ENVIRONMENT variable is required")
			os.Exit(1)
		}

		logger.Info().Str("env", env).Msg("Initializing Lambda handler")

		container, err := setupContainer(env, "")
		if err != nil {
			logger.Error().Err(err).Msg("Failed to setup DI container")
			os.Exit(1)
		}

		handler, err := newLambdaHandler(container)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to initialize handler")
			os.Exit(1)
		}

		httpHandler := loggingMiddleware(logger)(handler.setupRouter())

		// API Gateway REST API proxy integration
		lambda.Start(httpadapter.New(httpHandler).ProxyWithContext)
		return
	}

	// CLI mode for local testing
	app := &cli.App{
		Name:  "webhook",
		Usage: "GitHub branch lifecycle webhook",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "env",
				Usage:    "Environment name",
				EnvVars:  []string{"ENV", "ENVIRONMENT"},
				Required: true,
			},
			&cli.StringFlag{
				Name:    "secret",
				Usage:   "Webhook secret; overrides Secrets Manager",
				EnvVars: []string{"WEBHOOK_SECRET"},
			},
			&cli.BoolFlag{
				Name:    "disable-ssm",
				Usage:   "Disable AWS Systems Manager Parameter Store (use environment variables)",
				EnvVars: []string{"DISABLE_SSM"},
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("disable-ssm") {
				return os.Setenv("DISABLE_SSM", "true")
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Start local HTTP server for testing",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "port",
						Usage: "Port to listen on",
						Value: "8080",
					},
				},
				Action: serveAction,
			},
			{
				Name:  "invoke",
				Usage: "Run a payload file through the controller",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "payload",
						Usage:    "Path to the JSON webhook payload",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "event",
						Usage:    "GitHub event kind: push, create or delete",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "delivery-id",
						Usage: "GitHub delivery id to log",
						Value: "local",
					},
				},
				Action: invokeAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Error().Err(err).Msg("Application error")
		os.Exit(1)
	}
}

// newLambdaHandler resolves the controller; configuration errors are returned
func newLambdaHandler(container di.Container) (*Handler, error) {
	controller, err := di.Get[*orchestrator.Controller](container)
	if err != nil {
		return nil, err
	}
	return &Handler{controller: controller}, nil
}
