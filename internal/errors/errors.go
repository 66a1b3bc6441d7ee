package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aws/smithy-go"
)

var (
	ErrStackNotFound      = errors.New("stack not found")
	ErrPipelineNotFound   = errors.New("pipeline not found")
	ErrParameterNotFound  = errors.New("parameter not found")
	ErrSecretNotFound     = errors.New("webhook secret not found")
	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrUnknownStrategy    = errors.New("unknown provisioning strategy")
	ErrNoPipelineResource = errors.New("no AWS::CodePipeline::Pipeline resource in template")
	ErrCredentialsMissing = errors.New("assume role returned no credentials")
)

// Kind classifies a failure so callers can branch on it without inspecting messages.
type Kind string

const (
	KindUnknown               Kind = "UnknownFailure"
	KindAuthentication        Kind = "AuthenticationFailure"
	KindUnsupportedEvent      Kind = "UnsupportedEvent"
	KindAdmissionRejected     Kind = "AdmissionRejected"
	KindTemplateNotFound      Kind = "TemplateNotFound"
	KindTemplateInvalid       Kind = "TemplateInvalid"
	KindPipelineAlreadyExists Kind = "PipelineAlreadyExists"
	KindRegistrationFailed    Kind = "RegistrationFailed"
	KindBuildFailed           Kind = "BuildFailed"
	KindAssumeRoleFailed      Kind = "AssumeRoleFailed"
	KindStackDeleteTimeout    Kind = "StackDeleteTimeout"
	KindStackDeleteFailed     Kind = "StackDeleteFailed"
	KindDiscoveryIncomplete   Kind = "DiscoveryIncomplete"
	KindBranchBusy            Kind = "BranchBusy"
)

// Error is a failure tagged with a Kind and the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// E builds a tagged error. Err may be nil.
func E(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Err != nil:
		return e.Err.Error()
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of the outermost tagged error in the chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// As is errors.As from the standard library, re-exported so callers need only this package.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Code returns the AWS API error code carried by err, or "" if err is not an API error.
func Code(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// IsStackMissing reports whether err is CloudFormation's response for a stack that does not exist.
func IsStackMissing(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.ErrorCode() == "ValidationError" && strings.Contains(apiErr.ErrorMessage(), "does not exist")
}
