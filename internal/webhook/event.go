package webhook

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v66/github"
	"github.com/savaki/branch-deployer/internal/constants"
)

// GitHub event kinds the controller understands
const (
	KindPush   = "push"
	KindCreate = "create"
	KindDelete = "delete"
)

// Ref types
const (
	RefTypeBranch = "branch"
	RefTypeTag    = "tag"
)

// Event is an inbound webhook delivery. Body holds the bytes exactly as received.
type Event struct {
	Kind       string
	Signature  string
	DeliveryID string
	Body       []byte
}

// NewEvent extracts the GitHub headers from h. Header lookup is case-insensitive.
func NewEvent(h http.Header, body []byte) Event {
	return Event{
		Kind:       h.Get(constants.HeaderEvent),
		Signature:  h.Get(constants.HeaderSignature),
		DeliveryID: h.Get(constants.HeaderDeliveryID),
		Body:       body,
	}
}

// Ref is the git reference carried by a payload
type Ref struct {
	Full       string // e.g. refs/heads/feature-42
	Type       string // branch or tag
	Deleted    bool   // push event describing a deleted ref
	Repository string // owner/name, informational
}

// ParseRef reads ref and ref_type from the payload. ref_type defaults to branch.
// Pushes to refs/tags/ are reported as tags.
func ParseRef(kind string, body []byte) (Ref, error) {
	var envelope struct {
		Ref     string  `json:"ref"`
		RefType *string `json:"ref_type"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Ref{}, fmt.Errorf("failed to parse payload: %w", err)
	}

	ref := Ref{
		Full: envelope.Ref,
		Type: RefTypeBranch,
	}
	if envelope.RefType != nil {
		ref.Type = *envelope.RefType
	}

	if github.EventForType(kind) == nil {
		return ref, nil
	}

	payload, err := github.ParseWebHook(kind, body)
	if err != nil {
		return Ref{}, fmt.Errorf("failed to parse %s payload: %w", kind, err)
	}

	switch e := payload.(type) {
	case *github.PushEvent:
		ref.Deleted = e.GetDeleted()
		ref.Repository = e.GetRepo().GetFullName()
		if envelope.RefType == nil && strings.HasPrefix(e.GetRef(), "refs/tags/") {
			ref.Type = RefTypeTag
		}
	case *github.CreateEvent:
		ref.Repository = e.GetRepo().GetFullName()
	case *github.DeleteEvent:
		ref.Repository = e.GetRepo().GetFullName()
	}

	return ref, nil
}
