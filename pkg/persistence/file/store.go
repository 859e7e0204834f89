package file

import (
	"context"

	"github.com/dukex/orchestrator/pkg/models"
	"github.com/dukex/orchestrator/pkg/persistence"
)

// Reads take the lock and go straight to the committed state. Writes are
// single-statement transactions.

func (p *Persistence) Clusters(ctx context.Context) ([]*models.Cluster, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.state.Clusters(ctx)
}

func (p *Persistence) ClusterByID(ctx context.Context, id string) (*models.Cluster, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.state.ClusterByID(ctx, id)
}

func (p *Persistence) SaveCluster(ctx context.Context, cluster *models.Cluster) error {
	return p.WithTx(ctx, func(ctx context.Context, tx persistence.Store) error {
		return tx.SaveCluster(ctx, cluster)
	})
}

func (p *Persistence) Definitions(ctx context.Context) ([]*models.Definition, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.state.Definitions(ctx)
}

func (p *Persistence) DefinitionsByCluster(ctx context.Context, clusterID string) ([]*models.Definition, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.state.DefinitionsByCluster(ctx, clusterID)
}

func (p *Persistence) DefinitionByID(ctx context.Context, id string) (*models.Definition, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.state.DefinitionByID(ctx, id)
}

func (p *Persistence) DefinitionByExternalID(ctx context.Context, clusterID, externalID string) (*models.Definition, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.state.DefinitionByExternalID(ctx, clusterID, externalID)
}

func (p *Persistence) SaveDefinition(ctx context.Context, definition *models.Definition) error {
	return p.WithTx(ctx, func(ctx context.Context, tx persistence.Store) error {
		return tx.SaveDefinition(ctx, definition)
	})
}

func (p *Persistence) DeleteDefinitions(ctx context.Context, ids []string) error {
	return p.WithTx(ctx, func(ctx context.Context, tx persistence.Store) error {
		return tx.DeleteDefinitions(ctx, ids)
	})
}

func (p *Persistence) RunsByDefinition(ctx context.Context, definitionID string) ([]*models.Run, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.state.RunsByDefinition(ctx, definitionID)
}

func (p *Persistence) LatestRun(ctx context.Context, definitionID string) (*models.Run, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.state.LatestRun(ctx, definitionID)
}

func (p *Persistence) RunByID(ctx context.Context, id string) (*models.Run, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.state.RunByID(ctx, id)
}

func (p *Persistence) RunByExternalID(ctx context.Context, definitionID, externalID string) (*models.Run, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.state.RunByExternalID(ctx, definitionID, externalID)
}

func (p *Persistence) LockRun(ctx context.Context, id string) (*models.Run, error) {
	return p.RunByID(ctx, id)
}

func (p *Persistence) LockRunByWebhookToken(ctx context.Context, token string) (*models.Run, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.state.LockRunByWebhookToken(ctx, token)
}

func (p *Persistence) SaveRun(ctx context.Context, run *models.Run) error {
	return p.WithTx(ctx, func(ctx context.Context, tx persistence.Store) error {
		return tx.SaveRun(ctx, run)
	})
}

func (p *Persistence) DeleteRuns(ctx context.Context, ids []string) error {
	return p.WithTx(ctx, func(ctx context.Context, tx persistence.Store) error {
		return tx.DeleteRuns(ctx, ids)
	})
}
