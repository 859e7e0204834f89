package web

import (
	"log/slog"

	"github.com/dukex/orchestrator/pkg/metrics"
	"github.com/dukex/orchestrator/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Config struct {
	Runs     *services.Runs
	Sync     *services.Sync
	Clusters *services.Clusters
	Metrics  *metrics.Metrics
	// Gatherer serves /metrics when set.
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// NewApp builds the HTTP application: the webhook endpoint, the operations
// API, health checks and metrics.
func NewApp(config Config) (*fiber.App, error) {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	webhook, err := NewWebhookHandler(config.Runs, config.Metrics, config.Logger)
	if err != nil {
		return nil, err
	}

	handlers := NewAPIHandlers(config.Runs, config.Sync, config.Clusters,
		validator.New(validator.WithRequiredStructEnabled()))

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())
	app.Get("/health", handlers.HealthCheck)

	if config.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(config.Gatherer, promhttp.HandlerOpts{})))
	}

	app.Post("/webhook", webhook.Handle)
	app.Get("/pipeline/run", handlers.PipelineRun)

	clusters := app.Group("/clusters")
	clusters.Get("/", handlers.ListClusters)
	clusters.Post("/:id/sync", handlers.SyncCluster)
	clusters.Get("/:id/variables", handlers.ClusterVariables)
	clusters.Put("/:id/variables/:key", handlers.SetClusterVariable)

	definitions := app.Group("/definitions")
	definitions.Post("/:id/runs", handlers.TriggerRun)
	definitions.Patch("/:id", handlers.UpdateDefinition)

	runs := app.Group("/runs")
	runs.Get("/:id", handlers.GetRun)
	runs.Post("/:id/refresh", handlers.RefreshRun)
	runs.Get("/:id/tasks", handlers.RunTasks)
	runs.Get("/:id/tasks/:taskId/logs", handlers.TaskLogs)

	return app, nil
}
