// Package persistence provides the storage abstraction for clusters,
// definitions and runs.
package persistence

import (
	"context"

	"github.com/dukex/orchestrator/pkg/models"
)

// Store holds the orchestrator state. Lookups return typed not-found errors
// instead of nil values. Save methods upsert by ID and assign one when empty.
type Store interface {
	Clusters(ctx context.Context) ([]*models.Cluster, error)
	ClusterByID(ctx context.Context, id string) (*models.Cluster, error)
	SaveCluster(ctx context.Context, cluster *models.Cluster) error

	Definitions(ctx context.Context) ([]*models.Definition, error)
	DefinitionsByCluster(ctx context.Context, clusterID string) ([]*models.Definition, error)
	DefinitionByID(ctx context.Context, id string) (*models.Definition, error)
	DefinitionByExternalID(ctx context.Context, clusterID, externalID string) (*models.Definition, error)
	SaveDefinition(ctx context.Context, definition *models.Definition) error
	// DeleteDefinitions removes definitions and every run they own.
	DeleteDefinitions(ctx context.Context, ids []string) error

	RunsByDefinition(ctx context.Context, definitionID string) ([]*models.Run, error)
	LatestRun(ctx context.Context, definitionID string) (*models.Run, error)
	RunByID(ctx context.Context, id string) (*models.Run, error)
	RunByExternalID(ctx context.Context, definitionID, externalID string) (*models.Run, error)
	// LockRun loads a run and holds it exclusively until the enclosing
	// transaction ends. Outside a transaction it behaves like RunByID.
	LockRun(ctx context.Context, id string) (*models.Run, error)
	LockRunByWebhookToken(ctx context.Context, token string) (*models.Run, error)
	SaveRun(ctx context.Context, run *models.Run) error
	DeleteRuns(ctx context.Context, ids []string) error
}

// Persistence is a Store that can run atomic units of work.
type Persistence interface {
	Store

	// WithTx runs fn against a transactional Store. Changes are committed
	// when fn returns nil and discarded otherwise.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
