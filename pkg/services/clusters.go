package services

import (
	"context"
	"fmt"

	"github.com/dukex/orchestrator/pkg/airflow"
	"github.com/dukex/orchestrator/pkg/models"
	"github.com/dukex/orchestrator/pkg/persistence"
)

// Clusters manages cluster registrations and their remote variables.
type Clusters struct {
	Deps
}

func NewClusters(deps Deps) *Clusters {
	return &Clusters{Deps: deps.withDefaults()}
}

// HealthCheck checks the health of the persistence layer.
func (c *Clusters) HealthCheck(ctx context.Context) (string, bool) {
	if c.Persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := c.Persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

func (c *Clusters) List(ctx context.Context) ([]*models.Cluster, error) {
	return c.Persistence.Clusters(ctx)
}

func (c *Clusters) Get(ctx context.Context, id string) (*models.Cluster, error) {
	return c.Persistence.ClusterByID(ctx, id)
}

// Import validates and saves clusters in one transaction. Clusters with an ID
// replace the stored registration and keep their sync history.
func (c *Clusters) Import(ctx context.Context, clusters []*models.Cluster) error {
	if len(clusters) == 0 {
		return ErrClusterRequired
	}

	for i, cluster := range clusters {
		err := cluster.Validate()
		if err != nil {
			return NewValidationError("Import", fmt.Sprintf("cluster #%d (%s) is invalid", i+1, cluster.Name), err)
		}
	}

	return c.Persistence.WithTx(ctx, func(ctx context.Context, tx persistence.Store) error {
		for _, cluster := range clusters {
			if cluster.ID != "" {
				existing, err := tx.ClusterByID(ctx, cluster.ID)
				if err == nil {
					cluster.CreatedAt = existing.CreatedAt
					cluster.LastSyncedAt = existing.LastSyncedAt
				} else if !persistence.IsClusterNotFound(err) {
					return err
				}
			}

			err := tx.SaveCluster(ctx, cluster)
			if err != nil {
				return err
			}

			c.Logger.InfoContext(ctx, "cluster imported", "cluster_id", cluster.ID, "name", cluster.Name)
		}

		return nil
	})
}

func (c *Clusters) Variables(ctx context.Context, clusterID string) ([]airflow.Variable, error) {
	remote, err := c.remoteByID(ctx, clusterID)
	if err != nil {
		return nil, err
	}

	return remote.ListVariables(ctx)
}

func (c *Clusters) SetVariable(ctx context.Context, clusterID, key, value string) error {
	remote, err := c.remoteByID(ctx, clusterID)
	if err != nil {
		return err
	}

	return remote.UpsertVariable(ctx, key, value)
}

func (c *Clusters) remoteByID(ctx context.Context, clusterID string) (Remote, error) {
	cluster, err := c.Persistence.ClusterByID(ctx, clusterID)
	if err != nil {
		return nil, err
	}

	return c.remoteFor(cluster)
}
