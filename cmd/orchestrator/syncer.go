package main

import (
	"context"

	"github.com/dukex/orchestrator/pkg/lease"
	"github.com/dukex/orchestrator/pkg/services"
	"github.com/dukex/orchestrator/pkg/syncer"
	cli "github.com/urfave/cli/v3"
)

func SyncerCommand() *cli.Command {
	return &cli.Command{
		Name:  "syncer",
		Usage: "Periodically reconcile local runs with every cluster",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:    "interval",
				Usage:   "Time between two sync passes",
				Value:   syncer.DefaultInterval,
				Sources: cli.EnvVars("SYNC_INTERVAL"),
			},
			&cli.DurationFlag{
				Name:    "full-sync-every",
				Usage:   "Minimum time between full syncs of clusters with auto sync",
				Value:   syncer.DefaultFullSyncEvery,
				Sources: cli.EnvVars("FULL_SYNC_EVERY"),
			},
			&cli.IntFlag{
				Name:    "limit",
				Usage:   "Recent runs fetched per cluster on incremental passes",
				Value:   syncer.DefaultLimit,
				Sources: cli.EnvVars("SYNC_LIMIT"),
			},
			&cli.StringFlag{
				Name:    "metrics-addr",
				Usage:   "Address serving Prometheus metrics, empty disables it",
				Sources: cli.EnvVars("METRICS_ADDR"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			rt, err := newRuntime(ctx, command, "syncer")
			if err != nil {
				return err
			}
			defer rt.Close(context.WithoutCancel(ctx))

			interval := command.Duration("interval")

			config := syncer.Config{
				Interval:      interval,
				FullSyncEvery: command.Duration("full-sync-every"),
				Limit:         command.Int("limit"),
				Logger:        rt.logger,
			}

			l, err := rt.lease(ctx, command, lease.SyncerKey, 2*interval)
			if err != nil {
				return err
			}

			if l != nil {
				config.Lease = l
			}

			rt.serveMetrics(ctx, command.String("metrics-addr"))

			return syncer.New(rt.store, services.NewSync(rt.deps(command)), config).Run(ctx)
		},
	}
}
