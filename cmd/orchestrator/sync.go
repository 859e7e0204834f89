package main

import (
	"context"
	"encoding/json"

	"github.com/dukex/orchestrator/pkg/models"
	"github.com/dukex/orchestrator/pkg/services"
	cli "github.com/urfave/cli/v3"
)

// SyncCommand runs one full sync and prints the counts as JSON.
func SyncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Run a full sync of one cluster, or of every cluster",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "cluster",
				Usage: "ID of the cluster to sync, all clusters when empty",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			rt, err := newRuntime(ctx, command, "sync")
			if err != nil {
				return err
			}
			defer rt.Close(context.WithoutCancel(ctx))

			sync := services.NewSync(rt.deps(command))

			var result models.SyncResult

			if id := command.String("cluster"); id != "" {
				result, err = sync.Cluster(ctx, id)
			} else {
				result, err = sync.All(ctx)
			}

			encoder := json.NewEncoder(command.Root().Writer)
			encoder.SetIndent("", "  ")

			if encodeErr := encoder.Encode(result); encodeErr != nil {
				return encodeErr
			}

			return err
		},
	}
}
