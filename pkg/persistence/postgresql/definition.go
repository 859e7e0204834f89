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
	"github.com/lib/pq"
)

const definitionColumns = `
			id
		  , cluster_id
		  , external_id
		  , description
		  , schedule
		  , config
		  , sample_config
		  , paused
		  , created_at
		  , updated_at`

func (s *store) Definitions(ctx context.Context) ([]*models.Definition, error) {
	return s.queryDefinitions(ctx, "SELECT"+definitionColumns+" FROM definitions ORDER BY cluster_id, external_id")
}

func (s *store) DefinitionsByCluster(ctx context.Context, clusterID string) ([]*models.Definition, error) {
	return s.queryDefinitions(ctx,
		"SELECT"+definitionColumns+" FROM definitions WHERE cluster_id = $1 ORDER BY external_id", clusterID)
}

func (s *store) DefinitionByID(ctx context.Context, id string) (*models.Definition, error) {
	row := s.q.QueryRowContext(ctx, "SELECT"+definitionColumns+" FROM definitions WHERE id = $1", id)

	definition, err := scanDefinition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewDefinitionError("DefinitionByID", id, persistence.ErrDefinitionNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to scan definition: %w", err)
	}

	return definition, nil
}

func (s *store) DefinitionByExternalID(ctx context.Context, clusterID, externalID string) (*models.Definition, error) {
	row := s.q.QueryRowContext(ctx,
		"SELECT"+definitionColumns+" FROM definitions WHERE cluster_id = $1 AND external_id = $2", clusterID, externalID)

	definition, err := scanDefinition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewDefinitionError("DefinitionByExternalID", externalID, persistence.ErrDefinitionNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to scan definition: %w", err)
	}

	return definition, nil
}

func (s *store) SaveDefinition(ctx context.Context, definition *models.Definition) error {
	now := time.Now().UTC()

	if definition.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate definition ID: %w", err)
		}

		definition.ID = id.String()
	}

	if definition.CreatedAt.IsZero() {
		definition.CreatedAt = now
	}

	definition.UpdatedAt = now

	configJSON, err := marshalJSON(definition.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	sampleConfigJSON, err := marshalJSON(definition.SampleConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal sample config: %w", err)
	}

	query := `
		INSERT INTO definitions (id, cluster_id, external_id, description, schedule, config, sample_config, paused, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			external_id = EXCLUDED.external_id,
			description = EXCLUDED.description,
			schedule = EXCLUDED.schedule,
			config = EXCLUDED.config,
			sample_config = EXCLUDED.sample_config,
			paused = EXCLUDED.paused,
			updated_at = EXCLUDED.updated_at
	`

	_, err = s.q.ExecContext(ctx, query,
		definition.ID,
		definition.ClusterID,
		definition.ExternalID,
		definition.Description,
		nullStringPtr(definition.Schedule),
		configJSON,
		sampleConfigJSON,
		definition.Paused,
		definition.CreatedAt,
		definition.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return persistence.NewDefinitionError("SaveDefinition", definition.ExternalID, persistence.ErrDuplicateExternalID)
	}

	if err != nil {
		return persistence.NewDefinitionError("SaveDefinition", definition.ID, err)
	}

	return nil
}

func (s *store) DeleteDefinitions(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	_, err := s.q.ExecContext(ctx, "DELETE FROM definitions WHERE id = ANY($1)", pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to delete definitions: %w", err)
	}

	return nil
}

func (s *store) queryDefinitions(ctx context.Context, query string, args ...any) ([]*models.Definition, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query definitions: %w", err)
	}

	defer s.closeRows(ctx, rows)

	definitions := make([]*models.Definition, 0)

	for rows.Next() {
		definition, err := scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan definition: %w", err)
		}

		definitions = append(definitions, definition)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating definitions: %w", err)
	}

	return definitions, nil
}

func scanDefinition(row scanner) (*models.Definition, error) {
	var (
		definition   models.Definition
		schedule     sql.NullString
		config       []byte
		sampleConfig []byte
	)

	err := row.Scan(
		&definition.ID,
		&definition.ClusterID,
		&definition.ExternalID,
		&definition.Description,
		&schedule,
		&config,
		&sampleConfig,
		&definition.Paused,
		&definition.CreatedAt,
		&definition.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	definition.Schedule = stringPtr(schedule)

	definition.Config, err = unmarshalJSON(config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	definition.SampleConfig, err = unmarshalJSON(sampleConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal sample config: %w", err)
	}

	definition.CreatedAt = definition.CreatedAt.UTC()
	definition.UpdatedAt = definition.UpdatedAt.UTC()

	return &definition, nil
}
