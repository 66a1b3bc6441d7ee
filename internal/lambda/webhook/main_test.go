package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/savaki/branch-deployer/internal/errors"
	"github.com/savaki/branch-deployer/internal/orchestrator"
	"github.com/savaki/branch-deployer/internal/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockController struct {
	handleFunc func(ctx context.Context, event webhook.Event) orchestrator.Outcome
	events     []webhook.Event
}

func (m *mockController) Handle(ctx context.Context, event webhook.Event) orchestrator.Outcome {
	m.events = append(m.events, event)
	if m.handleFunc != nil {
		return m.handleFunc(ctx, event)
	}
	return orchestrator.Outcome{State: orchestrator.StateCompleted, Message: "Done feature pipeline generation for: feature-42"}
}

func serve(t *testing.T, handler http.Handler, req *http.Request) (int, string) {
	t.Helper()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var message string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &message))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	return rec.Code, message
}

func TestHandler_Webhook(t *testing.T) {
	controller := &mockController{}
	h := &Handler{controller: controller}
	router := loggingMiddleware(zerolog.New(io.Discard))(h.setupRouter())

	body := []byte(`{"ref": "refs/heads/feature-42"}`)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	req.Header.Set("x-github-event", "push")
	req.Header.Set("x-hub-signature-256", "sha256=abc")
	req.Header.Set("x-github-delivery", "72d3162e-cc78-11e3-81ab-4c9367dc0958")

	code, message := serve(t, router, req)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Done feature pipeline generation for: feature-42", message)

	require.Len(t, controller.events, 1)
	event := controller.events[0]
	assert.Equal(t, "push", event.Kind)
	assert.Equal(t, "sha256=abc", event.Signature)
	assert.Equal(t, "72d3162e-cc78-11e3-81ab-4c9367dc0958", event.DeliveryID)
	assert.Equal(t, body, event.Body)
}

func TestHandler_AlwaysOK(t *testing.T) {
	outcomes := []orchestrator.Outcome{
		{State: orchestrator.StateRejected, Kind: errors.KindAuthentication, Message: orchestrator.MessageRejected},
		{State: orchestrator.StateFiltered, Kind: errors.KindAdmissionRejected, Message: "Branch name main does not match the prefix feature-"},
		{State: orchestrator.StateCompleted, Kind: errors.KindStackDeleteTimeout, Message: "Error: wait for stack web-app: exceeded max wait time"},
	}

	for _, outcome := range outcomes {
		t.Run(string(outcome.State), func(t *testing.T) {
			h := &Handler{controller: &mockController{
				handleFunc: func(ctx context.Context, event webhook.Event) orchestrator.Outcome {
					return outcome
				},
			}}

			req := httptest.NewRequest(http.MethodPost, "/prod/webhook", bytes.NewReader([]byte(`{}`)))
			code, message := serve(t, h.setupRouter(), req)

			assert.Equal(t, http.StatusOK, code)
			assert.Equal(t, outcome.Message, message)
		})
	}
}

func TestHandler_LoggerInContext(t *testing.T) {
	var buf bytes.Buffer
	controller := &mockController{
		handleFunc: func(ctx context.Context, event webhook.Event) orchestrator.Outcome {
			zerolog.Ctx(ctx).Info().Msg("inside controller")
			return orchestrator.Outcome{Message: "ok"}
		},
	}
	h := &Handler{controller: controller}
	router := loggingMiddleware(zerolog.New(&buf))(h.setupRouter())

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte(`{}`)))
	_, _ = serve(t, router, req)

	assert.Contains(t, buf.String(), "inside controller")
	assert.Contains(t, buf.String(), `"status_code":200`)
}

func TestHandler_Health(t *testing.T) {
	h := &Handler{controller: &mockController{}}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	code, message := serve(t, h.setupRouter(), req)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", message)
}
