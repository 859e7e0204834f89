package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukex/orchestrator/pkg/airflow"
	cli "github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := NewCommand().Run(ctx, os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// NewCommand builds the orchestrator CLI. Flags declared here are shared by
// every subcommand.
func NewCommand() *cli.Command {
	return &cli.Command{
		Name:                  "orchestrator",
		Usage:                 "Schedule, trigger and track pipeline runs on Airflow clusters",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence (postgres://, file:// or memory://)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "secret-key",
				Usage:   "Key used to sign webhook and pipeline tokens (at least 32 bytes)",
				Sources: cli.EnvVars("SECRET_KEY"),
			},
			&cli.StringFlag{
				Name:    "webhook-url",
				Usage:   "Public URL of the webhook endpoint handed to pipelines",
				Sources: cli.EnvVars("WEBHOOK_URL"),
			},
			&cli.DurationFlag{
				Name:    "remote-timeout",
				Usage:   "Timeout of every call to a cluster API",
				Value:   airflow.DefaultTimeout,
				Sources: cli.EnvVars("REMOTE_TIMEOUT"),
			},
			&cli.DurationFlag{
				Name:    "token-max-age",
				Usage:   "Maximum age of a webhook token, 0 disables expiry",
				Value:   7 * 24 * time.Hour,
				Sources: cli.EnvVars("TOKEN_MAX_AGE"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (none, gochannel, kafka)",
				Value:   "none",
				Sources: cli.EnvVars("EVENT_BUS"),
			},
			&cli.StringSliceFlag{
				Name:    "kafka-brokers",
				Usage:   "Kafka brokers used by the kafka event bus",
				Value:   []string{"localhost:9092"},
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL holding the scheduler and syncer leases, empty runs without a lease",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.BoolFlag{
				Name:    "otel",
				Usage:   "Export traces with the OTLP HTTP exporter",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
		},
		Commands: []*cli.Command{
			APICommand(),
			SchedulerCommand(),
			SyncerCommand(),
			SyncCommand(),
			ClustersCommand(),
			EventsCommand(),
		},
	}
}
