// Package web exposes the webhook endpoint and the operations API.
package web

// WebhookResponse is the body of every webhook response.
type WebhookResponse struct {
	Success bool `json:"success"`
}

// TriggerRunRequest starts a manual run. A missing conf falls back to the
// definition's static configuration.
type TriggerRunRequest struct {
	Conf map[string]any `json:"conf"`
}

// UpdateDefinitionRequest pauses or resumes a definition.
type UpdateDefinitionRequest struct {
	Paused *bool `json:"paused" validate:"required"`
}

type SetVariableRequest struct {
	Value *string `json:"value" validate:"required"`
}
