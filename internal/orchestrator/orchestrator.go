package orchestrator

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/savaki/branch-deployer/internal/dao/envdao"
	"github.com/savaki/branch-deployer/internal/dao/lockdao"
	"github.com/savaki/branch-deployer/internal/errors"
	"github.com/savaki/branch-deployer/internal/naming"
	"github.com/savaki/branch-deployer/internal/provision"
	"github.com/savaki/branch-deployer/internal/services"
	"github.com/savaki/branch-deployer/internal/stacks"
	"github.com/savaki/branch-deployer/internal/webhook"
	"github.com/segmentio/ksuid"
)

// State is a step of the branch lifecycle state machine
type State string

const (
	StateReceived   State = "Received"
	StateVerifying  State = "Verifying"
	StateRejected   State = "Rejected"
	StateAdmitting  State = "Admitting"
	StateFiltered   State = "Filtered"
	StateProcessing State = "Processing"
	StateCompleted  State = "Completed"
)

// EventManual is the event kind recorded for operator initiated teardowns
const EventManual = "manual"

// MessageRejected is returned for unauthenticated events and non-branch refs
const MessageRejected = `Not one of the following events: ["Branch creation", "Branch deletion"]`

// Outcome is the terminal result of handling one event. Message is the body
// returned to the sender.
type Outcome struct {
	State    State
	Kind     errors.Kind // empty on success
	Branch   string
	Message  string
	Warnings []string
}

// Failed reports whether processing ended in an error
func (o Outcome) Failed() bool {
	return o.State == StateCompleted && o.Kind != ""
}

// Registry tracks the branches that currently own an environment
type Registry interface {
	Register(ctx context.Context, names naming.Names) error
	Unregister(ctx context.Context, names naming.Names) error
}

// Locker serializes lifecycle operations on a branch
type Locker interface {
	Acquire(ctx context.Context, input lockdao.AcquireInput) (*lockdao.Record, bool, error)
	Release(ctx context.Context, input lockdao.ReleaseInput) error
}

// Recorder keeps the lifecycle history of branch environments
type Recorder interface {
	Create(ctx context.Context, input envdao.CreateInput) (envdao.Record, error)
	Finish(ctx context.Context, input envdao.FinishInput) error
}

// Controller turns webhook events into branch environment lifecycle operations
type Controller struct {
	env            string
	pipelineSuffix string
	createEvent    string
	secret         services.SecretSource
	filter         *naming.Filter
	registry       Registry
	strategy       provision.Strategy
	locker         Locker
	recorder       Recorder
	newID          func() string
}

type Option func(*Controller)

// WithLocker enables per-branch locking
func WithLocker(locker Locker) Option {
	return func(c *Controller) {
		c.locker = locker
	}
}

// WithRecorder enables lifecycle history
func WithRecorder(recorder Recorder) Option {
	return func(c *Controller) {
		c.recorder = recorder
	}
}

func New(config *services.Config, secret services.SecretSource, filter *naming.Filter, registry Registry, strategy provision.Strategy, opts ...Option) *Controller {
	c := &Controller{
		env:            config.Env,
		pipelineSuffix: config.PipelineSuffix,
		createEvent:    config.CreateEvent,
		secret:         secret,
		filter:         filter,
		registry:       registry,
		strategy:       strategy,
		newID:          func() string { return ksuid.New().String() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Handle runs event through the state machine. It never returns an error;
// failures are reported in the Outcome.
func (c *Controller) Handle(ctx context.Context, event webhook.Event) Outcome {
	logger := zerolog.Ctx(ctx).With().
		Str("event_kind", event.Kind).
		Str("delivery_id", event.DeliveryID).
		Str("strategy", c.strategy.Name()).
		Logger()
	ctx = logger.WithContext(ctx)

	logger.Info().Str("state", string(StateReceived)).Msg("Received event")

	outcome := c.handle(ctx, event)

	log := logger.Info()
	if outcome.Failed() {
		log = logger.Error()
	}
	log.Str("state", string(outcome.State)).
		Str("kind", string(outcome.Kind)).
		Str("branch", outcome.Branch).
		Strs("warnings", outcome.Warnings).
		Msg(outcome.Message)

	return outcome
}

func (c *Controller) handle(ctx context.Context, event webhook.Event) Outcome {
	logger := zerolog.Ctx(ctx)

	// Verifying
	if !c.verify(ctx, event) {
		return Outcome{State: StateRejected, Kind: errors.KindAuthentication, Message: MessageRejected}
	}

	ref, err := webhook.ParseRef(event.Kind, event.Body)
	if err != nil {
		logger.Warn().Err(err).Msg("Unable to parse payload")
		return Outcome{State: StateRejected, Kind: errors.KindUnsupportedEvent, Message: MessageRejected}
	}
	if ref.Type != webhook.RefTypeBranch {
		logger.Info().Str("ref", ref.Full).Str("ref_type", ref.Type).Msg("Ignoring non-branch ref")
		return Outcome{State: StateRejected, Kind: errors.KindUnsupportedEvent, Message: MessageRejected}
	}

	// Admitting
	branch := naming.BranchName(ref.Full)
	logger.Debug().
		Str("state", string(StateAdmitting)).
		Str("ref", ref.Full).
		Str("repository", ref.Repository).
		Msg("Admitting branch")

	if !c.filter.Admit(branch) {
		return filtered(branch, errors.KindAdmissionRejected, fmt.Sprintf("Branch name %s does not match the prefix %s", branch, c.filter.Pattern()))
	}

	var operation envdao.Operation
	switch {
	case event.Kind == webhook.KindDelete:
		operation = envdao.OperationDelete
	case event.Kind == c.createEvent && ref.Deleted:
		return filtered(branch, errors.KindUnsupportedEvent, fmt.Sprintf("Unsupported event: %s (branch deleted)", event.Kind))
	case event.Kind == c.createEvent:
		operation = envdao.OperationCreate
	default:
		return filtered(branch, errors.KindUnsupportedEvent, fmt.Sprintf("Unsupported event: %s", event.Kind))
	}

	// Processing
	return c.process(ctx, event, operation, naming.Derive(branch, c.pipelineSuffix))
}

// Teardown runs the delete path for branch without a webhook delivery. The
// branch is named exactly as a webhook ref would be and the admission filter
// still applies.
func (c *Controller) Teardown(ctx context.Context, branch string) Outcome {
	branch = naming.BranchName(branch)

	logger := zerolog.Ctx(ctx).With().
		Str("event_kind", EventManual).
		Str("strategy", c.strategy.Name()).
		Logger()
	ctx = logger.WithContext(ctx)

	if !c.filter.Admit(branch) {
		return filtered(branch, errors.KindAdmissionRejected, fmt.Sprintf("Branch name %s does not match the prefix %s", branch, c.filter.Pattern()))
	}

	outcome := c.process(ctx, webhook.Event{Kind: EventManual}, envdao.OperationDelete, naming.Derive(branch, c.pipelineSuffix))
	logger.Info().
		Str("state", string(outcome.State)).
		Str("kind", string(outcome.Kind)).
		Strs("warnings", outcome.Warnings).
		Msg(outcome.Message)
	return outcome
}

func filtered(branch string, kind errors.Kind, message string) Outcome {
	return Outcome{State: StateFiltered, Kind: kind, Branch: branch, Message: message}
}

// verify fails closed: a secret that cannot be read rejects the event
func (c *Controller) verify(ctx context.Context, event webhook.Event) bool {
	logger := zerolog.Ctx(ctx)

	secret, err := c.secret.Get(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Unable to read webhook secret")
		return false
	}

	if !webhook.Verify(event.Body, secret, event.Signature) {
		logger.Warn().Msg("Signature verification failed")
		return false
	}
	return true
}

func (c *Controller) process(ctx context.Context, event webhook.Event, operation envdao.Operation, names naming.Names) Outcome {
	logger := zerolog.Ctx(ctx).With().
		Str("branch", names.Branch).
		Str("pipeline_name", names.PipelineName).
		Str("operation", string(operation)).
		Logger()
	ctx = logger.WithContext(ctx)

	logger.Info().Str("state", string(StateProcessing)).Msg("Processing branch")

	holder := c.newID()

	acquired, err := c.lock(ctx, names, operation, holder, event.DeliveryID)
	if err != nil {
		return failed(names.Branch, err)
	}
	if !acquired {
		return filtered(names.Branch, errors.KindBranchBusy, fmt.Sprintf("Branch %s is busy with another lifecycle operation", names.Branch))
	}
	defer c.unlock(ctx, names, holder)

	id := c.begin(ctx, event, operation, names, holder)

	var (
		result  *stacks.Result
		message string
	)
	switch operation {
	case envdao.OperationCreate:
		err = c.create(ctx, names)
		message = fmt.Sprintf("Done feature pipeline generation for: %s", names.Branch)
	case envdao.OperationDelete:
		result, err = c.delete(ctx, names)
		message = fmt.Sprintf("Done feature pipeline deletion for: %s", names.Branch)
	}

	warnings := warningsOf(result)
	c.finish(ctx, id, result, warnings, err)

	if err != nil {
		outcome := failed(names.Branch, err)
		outcome.Warnings = warnings
		return outcome
	}

	return Outcome{
		State:    StateCompleted,
		Branch:   names.Branch,
		Message:  message,
		Warnings: warnings,
	}
}

func failed(branch string, err error) Outcome {
	return Outcome{
		State:   StateCompleted,
		Kind:    errors.KindOf(err),
		Branch:  branch,
		Message: fmt.Sprintf("Error: %v", err),
	}
}

func (c *Controller) create(ctx context.Context, names naming.Names) error {
	if err := c.registry.Register(ctx, names); err != nil {
		return err
	}
	return c.strategy.Provision(ctx, names)
}

func (c *Controller) delete(ctx context.Context, names naming.Names) (*stacks.Result, error) {
	if err := c.registry.Unregister(ctx, names); err != nil {
		return nil, err
	}
	return c.strategy.Teardown(ctx, names)
}

func (c *Controller) lock(ctx context.Context, names naming.Names, operation envdao.Operation, holder, deliveryID string) (bool, error) {
	if c.locker == nil {
		return true, nil
	}

	existing, acquired, err := c.locker.Acquire(ctx, lockdao.AcquireInput{
		Env:        c.env,
		Branch:     names.Sanitized,
		Holder:     holder,
		Operation:  string(operation),
		DeliveryID: deliveryID,
	})
	if err != nil {
		return false, fmt.Errorf("failed to lock branch %s: %w", names.Branch, err)
	}
	if !acquired && existing != nil {
		zerolog.Ctx(ctx).Warn().
			Str("holder", existing.Holder).
			Str("held_operation", existing.Operation).
			Str("held_delivery_id", existing.DeliveryID).
			Msg("Branch is locked")
	}
	return acquired, nil
}

func (c *Controller) unlock(ctx context.Context, names naming.Names, holder string) {
	if c.locker == nil {
		return
	}

	err := c.locker.Release(ctx, lockdao.ReleaseInput{
		ID:     lockdao.NewID(c.env, names.Sanitized),
		Holder: holder,
	})
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("Failed to release branch lock")
	}
}

// begin records the start of the operation. History is best effort.
func (c *Controller) begin(ctx context.Context, event webhook.Event, operation envdao.Operation, names naming.Names, sk string) envdao.ID {
	if c.recorder == nil {
		return ""
	}

	record, err := c.recorder.Create(ctx, envdao.CreateInput{
		Env:          c.env,
		Branch:       names.Branch,
		Sanitized:    names.Sanitized,
		SK:           sk,
		Operation:    operation,
		Strategy:     c.strategy.Name(),
		EventKind:    event.Kind,
		DeliveryID:   event.DeliveryID,
		PipelineName: names.PipelineName,
	})
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("Failed to record lifecycle operation")
		return ""
	}
	return record.GetID()
}

func (c *Controller) finish(ctx context.Context, id envdao.ID, result *stacks.Result, warnings []string, err error) {
	if c.recorder == nil || id == "" {
		return
	}

	input := envdao.FinishInput{
		ID:       id,
		Status:   envdao.StatusSuccess,
		Warnings: warnings,
	}
	if result != nil {
		input.PipelineStackName = result.PipelineStackName
		input.AppStackName = result.AppStackName
	}
	if err != nil {
		msg := err.Error()
		input.Status = envdao.StatusFailed
		input.ErrorMsg = &msg
	}

	if err := c.recorder.Finish(ctx, input); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("id", id.String()).Msg("Failed to finish lifecycle record")
	}
}

func warningsOf(result *stacks.Result) []string {
	if result == nil {
		return nil
	}
	var warnings []string
	for _, w := range result.Warnings {
		warnings = append(warnings, w.Error())
	}
	return warnings
}
