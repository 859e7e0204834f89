package web_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/dukex/orchestrator/pkg/models"
	"github.com/dukex/orchestrator/pkg/signing"
	"github.com/dukex/orchestrator/pkg/web"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func statusUpdate(status string) map[string]any {
	return map[string]any{
		"id":      "evt_1",
		"object":  "event",
		"created": 1715342400,
		"type":    "status_update",
		"data":    map[string]any{"status": status},
	}
}

func decodeWebhookResponse(t *testing.T, body []byte) web.WebhookResponse {
	t.Helper()

	var response web.WebhookResponse
	require.NoError(t, json.Unmarshal(body, &response))

	return response
}

func TestWebhook_StatusUpdate(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)
	run, envelope := env.trigger(t)
	assert.Equal(t, models.RunStateQueued, run.State)

	resp, body := env.do(t, http.MethodPost, "/webhook", envelope, statusUpdate("RUNNING"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decodeWebhookResponse(t, body).Success)

	assert.Equal(t, models.RunStateRunning, env.storedRun(t, run.ID).State)
}

func TestWebhook_Unauthenticated(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)
	run, envelope := env.trigger(t)

	otherSigner, err := signing.NewSigner("fedcba9876543210fedcba9876543210", "webhook")
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		body  any
	}{
		{name: "missing token", token: "", body: statusUpdate("running")},
		{name: "garbage token", token: "garbage", body: statusUpdate("running")},
		{name: "unsigned token", token: run.ID, body: statusUpdate("running")},
		{name: "tampered token", token: envelope + "x", body: statusUpdate("running")},
		{name: "signed by another key", token: otherSigner.Sign(env.storedRun(t, run.ID).WebhookToken), body: statusUpdate("running")},
		{name: "unknown run", token: env.signer.Sign(signing.NewToken()), body: statusUpdate("running")},
		{name: "garbage token and garbage body", token: "garbage", body: "{not json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.do(t, http.MethodPost, "/webhook", tt.token, tt.body)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.False(t, decodeWebhookResponse(t, body).Success)
		})
	}

	assert.Equal(t, models.RunStateQueued, env.storedRun(t, run.ID).State)
}

func TestWebhook_InvalidBody(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)
	run, envelope := env.trigger(t)

	tests := []struct {
		name string
		body any
	}{
		{name: "not json", body: "{not json"},
		{name: "empty object", body: map[string]any{}},
		{name: "missing data", body: map[string]any{"type": "status_update"}},
		{name: "unknown type", body: map[string]any{"type": "heartbeat", "data": map[string]any{}}},
		{name: "unknown status", body: statusUpdate("exploded")},
		{name: "status of wrong type", body: map[string]any{"type": "status_update", "data": map[string]any{"status": 1}}},
		{name: "fractional progress", body: map[string]any{"type": "progress_update", "data": map[string]any{"progress": 12.5}}},
		{name: "progress missing", body: map[string]any{"type": "progress_update", "data": map[string]any{"status": "running"}}},
		{name: "log without message", body: map[string]any{"type": "log_message", "data": map[string]any{"priority": "INFO"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.do(t, http.MethodPost, "/webhook", envelope, tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.False(t, decodeWebhookResponse(t, body).Success)
		})
	}

	stored := env.storedRun(t, run.ID)
	assert.Equal(t, models.RunStateQueued, stored.State)
	assert.Empty(t, stored.Messages)
}

func TestWebhook_ProgressAndLogs(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)
	run, envelope := env.trigger(t)

	updates := []map[string]any{
		{"type": "progress_update", "data": map[string]any{"progress": 40}},
		{"type": "log_message", "data": map[string]any{"priority": "warning", "message": "slow upstream"}},
		{"type": "progress_update", "data": map[string]any{"progress": 140}},
		statusUpdate("success"),
		statusUpdate("failed"),
		{"type": "log_message", "data": map[string]any{"message": "cleanup finished"}},
	}

	for _, update := range updates {
		resp, body := env.do(t, http.MethodPost, "/webhook", envelope, update)
		require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	}

	stored := env.storedRun(t, run.ID)
	assert.Equal(t, models.RunStateSuccess, stored.State)
	assert.Equal(t, 100, stored.Progress)
	require.Len(t, stored.Messages, 2)
	assert.Equal(t, models.PriorityWarning, stored.Messages[0].Priority)
	assert.Equal(t, "slow upstream", stored.Messages[0].Message)
	assert.Equal(t, models.PriorityInfo, stored.Messages[1].Priority)
}
