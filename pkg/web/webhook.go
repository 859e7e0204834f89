package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/orchestrator/pkg/metrics"
	"github.com/dukex/orchestrator/pkg/models"
	"github.com/dukex/orchestrator/pkg/persistence"
	"github.com/dukex/orchestrator/pkg/services"
	"github.com/gofiber/fiber/v3"
	"github.com/xeipuuv/gojsonschema"
)

const webhookSchema = `{
	"type": "object",
	"required": ["type", "data"],
	"properties": {
		"id": {"type": "string"},
		"object": {"type": "string"},
		"created": {"type": "number"},
		"type": {"enum": ["status_update", "progress_update", "log_message"]},
		"data": {"type": "object"}
	},
	"oneOf": [
		{
			"properties": {
				"type": {"const": "status_update"},
				"data": {"required": ["status"], "properties": {"status": {"type": "string"}}}
			}
		},
		{
			"properties": {
				"type": {"const": "progress_update"},
				"data": {"required": ["progress"], "properties": {"progress": {"type": "integer"}}}
			}
		},
		{
			"properties": {
				"type": {"const": "log_message"},
				"data": {
					"required": ["message"],
					"properties": {"priority": {"type": "string"}, "message": {"type": "string"}}
				}
			}
		}
	]
}`

var errInvalidWebhookBody = errors.New("invalid webhook body")

// WebhookHandler receives the updates pipelines post about their runs. The
// bearer token is checked before the body is looked at, so an unauthenticated
// caller always gets 401.
type WebhookHandler struct {
	runs    *services.Runs
	metrics *metrics.Metrics
	logger  *slog.Logger
	schema  *gojsonschema.Schema
}

func NewWebhookHandler(runs *services.Runs, m *metrics.Metrics, logger *slog.Logger) (*WebhookHandler, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(webhookSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile webhook schema: %w", err)
	}

	return &WebhookHandler{
		runs:    runs,
		metrics: m,
		logger:  logger.With("module", "webhook"),
		schema:  schema,
	}, nil
}

func (h *WebhookHandler) Handle(c fiber.Ctx) error {
	ctx := c.Context()

	envelope, ok := bearerToken(c.Get(fiber.HeaderAuthorization))
	if !ok {
		return h.reply(c, fiber.StatusUnauthorized, metrics.WebhookUnauthenticated)
	}

	run, err := h.runs.Authenticate(ctx, envelope)
	if err != nil {
		if services.IsUnauthenticated(err) {
			h.logger.WarnContext(ctx, "rejected webhook", "remote_addr", c.IP(), "error", err)

			return h.reply(c, fiber.StatusUnauthorized, metrics.WebhookUnauthenticated)
		}

		h.logger.ErrorContext(ctx, "failed to authenticate webhook", "error", err)

		return h.reply(c, fiber.StatusInternalServerError, metrics.WebhookFailed)
	}

	update, err := h.decode(c.Body())
	if err != nil {
		h.logger.WarnContext(ctx, "invalid webhook body", "run_id", run.ID, "error", err)

		return h.reply(c, fiber.StatusBadRequest, metrics.WebhookInvalid)
	}

	_, err = h.runs.ApplyUpdate(ctx, run.ID, update)

	switch {
	case err == nil:
	case services.IsValidationError(err):
		h.logger.WarnContext(ctx, "rejected webhook update", "run_id", run.ID, "error", err)

		return h.reply(c, fiber.StatusBadRequest, metrics.WebhookInvalid)
	case persistence.IsRunNotFound(err):
		return h.reply(c, fiber.StatusUnauthorized, metrics.WebhookUnauthenticated)
	default:
		h.logger.ErrorContext(ctx, "failed to apply webhook update", "run_id", run.ID, "error", err)

		return h.reply(c, fiber.StatusInternalServerError, metrics.WebhookFailed)
	}

	h.logger.DebugContext(ctx, "webhook applied", "run_id", run.ID)

	return h.reply(c, fiber.StatusOK, metrics.WebhookApplied)
}

func (h *WebhookHandler) reply(c fiber.Ctx, status int, outcome string) error {
	h.metrics.Webhook(outcome)

	return c.Status(status).JSON(WebhookResponse{Success: status == fiber.StatusOK})
}

// decode validates body against the webhook schema and returns its update.
func (h *WebhookHandler) decode(body []byte) (models.Update, error) {
	result, err := h.schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidWebhookBody, err)
	}

	if !result.Valid() {
		reasons := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			reasons = append(reasons, desc.String())
		}

		return nil, fmt.Errorf("%w: %s", errInvalidWebhookBody, strings.Join(reasons, "; "))
	}

	var event models.WebhookEvent

	err = json.Unmarshal(body, &event)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidWebhookBody, err)
	}

	return event.Decode()
}

// bearerToken extracts the token of an "Authorization: Bearer <token>" header.
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}

	token = strings.TrimSpace(token)

	return token, token != ""
}
