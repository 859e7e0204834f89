package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/orchestrator/pkg/airflow"
	"github.com/dukex/orchestrator/pkg/cmd"
	"github.com/dukex/orchestrator/pkg/eventbus"
	"github.com/dukex/orchestrator/pkg/lease"
	"github.com/dukex/orchestrator/pkg/log"
	"github.com/dukex/orchestrator/pkg/metrics"
	"github.com/dukex/orchestrator/pkg/otelhelper"
	"github.com/dukex/orchestrator/pkg/persistence"
	"github.com/dukex/orchestrator/pkg/services"
	"github.com/dukex/orchestrator/pkg/signing"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"
	cli "github.com/urfave/cli/v3"
)

const serviceName = "orchestrator"

var ErrMissingWebhookURL = errors.New("webhook URL is required to trigger runs")

// runtime holds what every subcommand opens at startup.
type runtime struct {
	logger   *slog.Logger
	store    persistence.Persistence
	bus      eventbus.EventBus
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	redis    *redis.Client
	closers  []func(context.Context) error
}

func newRuntime(ctx context.Context, command *cli.Command, module string) (*runtime, error) {
	log.Setup(command.String("log-level"))

	r := &runtime{
		logger:   log.WithModule(module),
		registry: prometheus.NewRegistry(),
	}

	r.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	r.metrics = metrics.New(r.registry)

	if command.Bool("otel") {
		shutdown, err := otelhelper.Setup(ctx, serviceName+"-"+module)
		if err != nil {
			return nil, fmt.Errorf("failed to set up tracing: %w", err)
		}

		r.closers = append(r.closers, shutdown)
	}

	store, err := cmd.NewPersistence(ctx, r.logger, command.String("database-url"))
	if err != nil {
		r.Close(ctx)

		return nil, fmt.Errorf("failed to open persistence: %w", err)
	}

	r.store = store
	r.closers = append(r.closers, store.Close)

	bus, err := cmd.NewEventBus(command.String("event-bus"), command.StringSlice("kafka-brokers"), serviceName+"-"+module, r.logger)
	if err != nil {
		r.Close(ctx)

		return nil, err
	}

	if bus != nil {
		r.bus = bus
		r.closers = append(r.closers, func(context.Context) error { return bus.Close() })
	}

	return r, nil
}

// Close releases everything in reverse opening order.
func (r *runtime) Close(ctx context.Context) {
	for i := len(r.closers) - 1; i >= 0; i-- {
		err := r.closers[i](ctx)
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close resource", "error", err)
		}
	}

	r.closers = nil
}

func (r *runtime) deps(command *cli.Command) services.Deps {
	deps := services.Deps{
		Persistence: r.store,
		Remotes:     services.AirflowRemotes(airflow.Options{Timeout: command.Duration("remote-timeout")}),
		Metrics:     r.metrics,
		Logger:      r.logger,
	}

	if r.bus != nil {
		deps.Publisher = r.bus
	}

	return deps
}

// runs builds the run service. Triggering needs the signing key and the
// public webhook URL.
func (r *runtime) runs(command *cli.Command) (*services.Runs, error) {
	secret := command.String("secret-key")

	signer, err := signing.NewSigner(secret, "webhook")
	if err != nil {
		return nil, err
	}

	issuer, err := signing.NewIdentityIssuer(secret, command.Duration("token-max-age"))
	if err != nil {
		return nil, err
	}

	webhookURL := command.String("webhook-url")
	if webhookURL == "" {
		return nil, ErrMissingWebhookURL
	}

	return services.NewRuns(r.deps(command), services.RunsConfig{
		Signer:      signer,
		Identity:    issuer,
		WebhookURL:  webhookURL,
		TokenMaxAge: command.Duration("token-max-age"),
	}), nil
}

// lease returns nil when no Redis URL is configured, leaving the loop always
// active.
func (r *runtime) lease(ctx context.Context, command *cli.Command, key string, ttl time.Duration) (*lease.Lease, error) {
	url := command.String("redis-url")
	if url == "" {
		r.logger.WarnContext(ctx, "no redis URL configured, running without a lease", "key", key)

		return nil, nil
	}

	if r.redis == nil {
		client, err := lease.NewClient(ctx, url)
		if err != nil {
			return nil, err
		}

		r.redis = client
		r.closers = append(r.closers, func(context.Context) error { return client.Close() })
	}

	l, err := lease.New(r.redis, key, ttl, r.logger)
	if err != nil {
		return nil, err
	}

	r.closers = append(r.closers, l.Release)

	return l, nil
}

// serveMetrics exposes the registry on addr until ctx is done. An empty addr
// disables it.
func (r *runtime) serveMetrics(ctx context.Context, addr string) {
	if addr == "" {
		return
	}

	app := fiber.New()
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})))

	go func() {
		err := app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
		if err != nil {
			r.logger.ErrorContext(ctx, "metrics server stopped", "error", err)
		}
	}()

	r.closers = append(r.closers, app.ShutdownWithContext)
}
