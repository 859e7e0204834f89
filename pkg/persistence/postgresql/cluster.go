package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/orchestrator/pkg/models"
	"github.com/dukex/orchestrator/pkg/persistence"
	"github.com/google/uuid"
)

const clusterColumns = `
			id
		  , name
		  , url
		  , username
		  , password
		  , auto_sync
		  , last_synced_at
		  , created_at
		  , updated_at`

func (s *store) Clusters(ctx context.Context) ([]*models.Cluster, error) {
	rows, err := s.q.QueryContext(ctx, "SELECT"+clusterColumns+" FROM clusters ORDER BY name, id")
	if err != nil {
		return nil, fmt.Errorf("failed to query clusters: %w", err)
	}

	defer s.closeRows(ctx, rows)

	clusters := make([]*models.Cluster, 0)

	for rows.Next() {
		cluster, err := scanCluster(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cluster: %w", err)
		}

		clusters = append(clusters, cluster)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating clusters: %w", err)
	}

	return clusters, nil
}

func (s *store) ClusterByID(ctx context.Context, id string) (*models.Cluster, error) {
	row := s.q.QueryRowContext(ctx, "SELECT"+clusterColumns+" FROM clusters WHERE id = $1", id)

	cluster, err := scanCluster(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewClusterError("ClusterByID", id, persistence.ErrClusterNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to scan cluster: %w", err)
	}

	return cluster, nil
}

func (s *store) SaveCluster(ctx context.Context, cluster *models.Cluster) error {
	now := time.Now().UTC()

	if cluster.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate cluster ID: %w", err)
		}

		cluster.ID = id.String()
	}

	if cluster.CreatedAt.IsZero() {
		cluster.CreatedAt = now
	}

	cluster.UpdatedAt = now

	query := `
		INSERT INTO clusters (id, name, url, username, password, auto_sync, last_synced_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			url = EXCLUDED.url,
			username = EXCLUDED.username,
			password = EXCLUDED.password,
			auto_sync = EXCLUDED.auto_sync,
			last_synced_at = EXCLUDED.last_synced_at,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.q.ExecContext(ctx, query,
		cluster.ID,
		cluster.Name,
		cluster.URL,
		cluster.Username,
		cluster.Password,
		cluster.AutoSync,
		cluster.LastSyncedAt,
		cluster.CreatedAt,
		cluster.UpdatedAt,
	)
	if err != nil {
		return persistence.NewClusterError("SaveCluster", cluster.ID, err)
	}

	return nil
}

func scanCluster(row scanner) (*models.Cluster, error) {
	var (
		cluster      models.Cluster
		lastSyncedAt sql.NullTime
	)

	err := row.Scan(
		&cluster.ID,
		&cluster.Name,
		&cluster.URL,
		&cluster.Username,
		&cluster.Password,
		&cluster.AutoSync,
		&lastSyncedAt,
		&cluster.CreatedAt,
		&cluster.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	cluster.LastSyncedAt = timePtr(lastSyncedAt)
	cluster.CreatedAt = cluster.CreatedAt.UTC()
	cluster.UpdatedAt = cluster.UpdatedAt.UTC()

	return &cluster, nil
}
