package web

import (
	"net/http"
	"time"

	"github.com/dukex/orchestrator/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// APIHandlers serve the operations API.
type APIHandlers struct {
	runs      *services.Runs
	sync      *services.Sync
	clusters  *services.Clusters
	validator *validator.Validate
}

func NewAPIHandlers(
	runs *services.Runs,
	sync *services.Sync,
	clusters *services.Clusters,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		runs:      runs,
		sync:      sync,
		clusters:  clusters,
		validator: validator,
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	persistenceCheck, ok := h.clusters.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Orchestrator API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if ok {
		status = "healthy"
		message = "Orchestrator API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"persistence": persistenceCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) ListClusters(c fiber.Ctx) error {
	clusters, err := h.clusters.List(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(clusters)
}

// SyncCluster runs a full sync of one cluster and returns its counts.
func (h *APIHandlers) SyncCluster(c fiber.Ctx) error {
	result, err := h.sync.Cluster(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) ClusterVariables(c fiber.Ctx) error {
	variables, err := h.clusters.Variables(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(variables)
}

func (h *APIHandlers) SetClusterVariable(c fiber.Ctx) error {
	var req SetVariableRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	err := h.clusters.SetVariable(c.Context(), c.Params("id"), c.Params("key"), *req.Value)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// TriggerRun starts a manual run of a definition.
func (h *APIHandlers) TriggerRun(c fiber.Ctx) error {
	var req TriggerRunRequest

	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	run, err := h.runs.TriggerByID(c.Context(), c.Params("id"), req.Conf, services.TriggerOptions{
		Kind: services.RunKindManual,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(run)
}

func (h *APIHandlers) UpdateDefinition(c fiber.Ctx) error {
	var req UpdateDefinitionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	definition, err := h.runs.SetPaused(c.Context(), c.Params("id"), *req.Paused)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(definition)
}

func (h *APIHandlers) GetRun(c fiber.Ctx) error {
	run, err := h.runs.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(run)
}

func (h *APIHandlers) RefreshRun(c fiber.Ctx) error {
	run, err := h.runs.Refresh(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(run)
}

func (h *APIHandlers) RunTasks(c fiber.Ctx) error {
	tasks, err := h.runs.TaskInstances(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(tasks)
}

func (h *APIHandlers) TaskLogs(c fiber.Ctx) error {
	logs, err := h.runs.TaskLog(c.Context(), c.Params("id"), c.Params("taskId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)

	return c.SendString(logs)
}

// PipelineRun returns the run identified by the pipeline identity token in
// the Authorization header.
func (h *APIHandlers) PipelineRun(c fiber.Ctx) error {
	token, ok := bearerToken(c.Get(fiber.HeaderAuthorization))
	if !ok {
		return unauthorized(c, "missing bearer token")
	}

	run, err := h.runs.Identify(c.Context(), token)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(run)
}
