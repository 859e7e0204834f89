package main

import (
	"context"
	"strconv"
	"time"

	"github.com/dukex/orchestrator/pkg/services"
	"github.com/dukex/orchestrator/pkg/web"
	cli "github.com/urfave/cli/v3"
)

const (
	defaultPort     = 9091
	shutdownTimeout = 10 * time.Second
)

func APICommand() *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Serve the webhook endpoint and the operations API",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			rt, err := newRuntime(ctx, command, "api")
			if err != nil {
				return err
			}
			defer rt.Close(context.WithoutCancel(ctx))

			runs, err := rt.runs(command)
			if err != nil {
				return err
			}

			deps := rt.deps(command)

			app, err := web.NewApp(web.Config{
				Runs:     runs,
				Sync:     services.NewSync(deps),
				Clusters: services.NewClusters(deps),
				Metrics:  rt.metrics,
				Gatherer: rt.registry,
				Logger:   rt.logger,
			})
			if err != nil {
				return err
			}

			go func() {
				<-ctx.Done()

				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
				defer cancel()

				if err := app.ShutdownWithContext(shutdownCtx); err != nil {
					rt.logger.ErrorContext(shutdownCtx, "failed to shut down API", "error", err)
				}
			}()

			rt.logger.InfoContext(ctx, "starting orchestrator API", "port", command.Int("port"))

			return app.Listen(":" + strconv.Itoa(command.Int("port")))
		},
	}
}
