package main

import (
	"context"

	"github.com/dukex/orchestrator/pkg/lease"
	"github.com/dukex/orchestrator/pkg/scheduler"
	cli "github.com/urfave/cli/v3"
)

func SchedulerCommand() *cli.Command {
	return &cli.Command{
		Name:  "scheduler",
		Usage: "Trigger scheduled definitions as their cron expressions come due",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:    "window",
				Usage:   "Look-ahead of one scheduling cycle",
				Value:   scheduler.DefaultWindow,
				Sources: cli.EnvVars("SCHEDULER_WINDOW"),
			},
			&cli.StringFlag{
				Name:    "metrics-addr",
				Usage:   "Address serving Prometheus metrics, empty disables it",
				Sources: cli.EnvVars("METRICS_ADDR"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			rt, err := newRuntime(ctx, command, "scheduler")
			if err != nil {
				return err
			}
			defer rt.Close(context.WithoutCancel(ctx))

			runs, err := rt.runs(command)
			if err != nil {
				return err
			}

			window := command.Duration("window")

			config := scheduler.Config{
				Window:  window,
				Metrics: rt.metrics,
				Logger:  rt.logger,
			}

			// The lease outlives one cycle so a healthy holder keeps it.
			l, err := rt.lease(ctx, command, lease.SchedulerKey, 2*window)
			if err != nil {
				return err
			}

			if l != nil {
				config.Lease = l
			}

			rt.serveMetrics(ctx, command.String("metrics-addr"))

			return scheduler.New(rt.store, runs, config).Run(ctx)
		},
	}
}
