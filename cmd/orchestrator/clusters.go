package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/dukex/orchestrator/pkg/config"
	"github.com/dukex/orchestrator/pkg/services"
	cli "github.com/urfave/cli/v3"
)

func ClustersCommand() *cli.Command {
	return &cli.Command{
		Name:  "clusters",
		Usage: "Manage cluster registrations",
		Commands: []*cli.Command{
			{
				Name:  "import",
				Usage: "Register the clusters declared in a YAML file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "YAML file with a top-level clusters list",
						Required: true,
						Sources:  cli.EnvVars("CLUSTERS_FILE"),
					},
				},
				Action: importClusters,
			},
			{
				Name:   "list",
				Usage:  "List registered clusters",
				Action: listClusters,
			},
		},
	}
}

func importClusters(ctx context.Context, command *cli.Command) error {
	clusters, err := config.LoadClusters(command.String("file"))
	if err != nil {
		return err
	}

	rt, err := newRuntime(ctx, command, "clusters")
	if err != nil {
		return err
	}
	defer rt.Close(context.WithoutCancel(ctx))

	err = services.NewClusters(rt.deps(command)).Import(ctx, clusters)
	if err != nil {
		return err
	}

	for _, cluster := range clusters {
		fmt.Fprintf(command.Root().Writer, "%s\t%s\n", cluster.ID, cluster.Name)
	}

	return nil
}

func listClusters(ctx context.Context, command *cli.Command) error {
	rt, err := newRuntime(ctx, command, "clusters")
	if err != nil {
		return err
	}
	defer rt.Close(context.WithoutCancel(ctx))

	clusters, err := services.NewClusters(rt.deps(command)).List(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(command.Root().Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tURL\tAUTO SYNC\tLAST SYNCED")

	for _, cluster := range clusters {
		lastSynced := "never"
		if cluster.LastSyncedAt != nil {
			lastSynced = cluster.LastSyncedAt.Format("2006-01-02T15:04:05Z07:00")
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n", cluster.ID, cluster.Name, cluster.URL, cluster.AutoSync, lastSynced)
	}

	return w.Flush()
}
