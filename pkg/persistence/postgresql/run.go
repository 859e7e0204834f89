package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/orchestrator/pkg/models"
	"github.com/dukex/orchestrator/pkg/persistence"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const runColumns = `
			id
		  , definition_id
		  , external_id
		  , execution_date
		  , state
		  , conf
		  , webhook_token
		  , messages
		  , progress
		  , last_refreshed_at
		  , favorite_label
		  , created_at
		  , updated_at`

func (s *store) RunsByDefinition(ctx context.Context, definitionID string) ([]*models.Run, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT"+runColumns+" FROM runs WHERE definition_id = $1 ORDER BY execution_date DESC, created_at DESC", definitionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	defer s.closeRows(ctx, rows)

	runs := make([]*models.Run, 0)

	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		runs = append(runs, run)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

func (s *store) LatestRun(ctx context.Context, definitionID string) (*models.Run, error) {
	return s.queryRun(ctx, "LatestRun", definitionID,
		"SELECT"+runColumns+" FROM runs WHERE definition_id = $1 ORDER BY execution_date DESC, created_at DESC LIMIT 1",
		definitionID)
}

func (s *store) RunByID(ctx context.Context, id string) (*models.Run, error) {
	return s.queryRun(ctx, "RunByID", id, "SELECT"+runColumns+" FROM runs WHERE id = $1", id)
}

func (s *store) RunByExternalID(ctx context.Context, definitionID, externalID string) (*models.Run, error) {
	return s.queryRun(ctx, "RunByExternalID", externalID,
		"SELECT"+runColumns+" FROM runs WHERE definition_id = $1 AND external_id = $2", definitionID, externalID)
}

func (s *store) LockRun(ctx context.Context, id string) (*models.Run, error) {
	return s.queryRun(ctx, "LockRun", id, "SELECT"+runColumns+" FROM runs WHERE id = $1"+s.forUpdate(), id)
}

func (s *store) LockRunByWebhookToken(ctx context.Context, token string) (*models.Run, error) {
	if token == "" {
		return nil, persistence.NewRunError("LockRunByWebhookToken", "", persistence.ErrRunNotFound)
	}

	return s.queryRun(ctx, "LockRunByWebhookToken", "",
		"SELECT"+runColumns+" FROM runs WHERE webhook_token = $1"+s.forUpdate(), token)
}

func (s *store) SaveRun(ctx context.Context, run *models.Run) error {
	now := time.Now().UTC()

	if run.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate run ID: %w", err)
		}

		run.ID = id.String()
	}

	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}

	run.UpdatedAt = now

	confJSON, err := marshalJSON(run.Conf)
	if err != nil {
		return fmt.Errorf("failed to marshal conf: %w", err)
	}

	messages := run.Messages
	if messages == nil {
		messages = []models.LogMessage{}
	}

	messagesJSON, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to marshal messages: %w", err)
	}

	query := `
		INSERT INTO runs (id, definition_id, external_id, execution_date, state, conf, webhook_token,
			messages, progress, last_refreshed_at, favorite_label, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			external_id = EXCLUDED.external_id,
			execution_date = EXCLUDED.execution_date,
			state = EXCLUDED.state,
			conf = EXCLUDED.conf,
			webhook_token = EXCLUDED.webhook_token,
			messages = EXCLUDED.messages,
			progress = EXCLUDED.progress,
			last_refreshed_at = EXCLUDED.last_refreshed_at,
			favorite_label = EXCLUDED.favorite_label,
			updated_at = EXCLUDED.updated_at
	`

	_, err = s.q.ExecContext(ctx, query,
		run.ID,
		run.DefinitionID,
		run.ExternalID,
		run.ExecutionDate.UTC(),
		string(run.State),
		confJSON,
		nullString(run.WebhookToken),
		messagesJSON,
		run.Progress,
		run.LastRefreshedAt,
		nullStringPtr(run.FavoriteLabel),
		run.CreatedAt,
		run.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return persistence.NewRunError("SaveRun", run.ExternalID, persistence.ErrDuplicateExternalID)
	}

	if err != nil {
		return persistence.NewRunError("SaveRun", run.ID, err)
	}

	return nil
}

func (s *store) DeleteRuns(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	_, err := s.q.ExecContext(ctx, "DELETE FROM runs WHERE id = ANY($1)", pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to delete runs: %w", err)
	}

	return nil
}

func (s *store) queryRun(ctx context.Context, op, id, query string, args ...any) (*models.Run, error) {
	run, err := scanRun(s.q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewRunError(op, id, persistence.ErrRunNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	return run, nil
}

func scanRun(row scanner) (*models.Run, error) {
	var (
		run             models.Run
		state           string
		conf            []byte
		webhookToken    sql.NullString
		messages        []byte
		lastRefreshedAt sql.NullTime
		favoriteLabel   sql.NullString
	)

	err := row.Scan(
		&run.ID,
		&run.DefinitionID,
		&run.ExternalID,
		&run.ExecutionDate,
		&state,
		&conf,
		&webhookToken,
		&messages,
		&run.Progress,
		&lastRefreshedAt,
		&favoriteLabel,
		&run.CreatedAt,
		&run.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	run.State = models.RunState(state)
	run.WebhookToken = webhookToken.String
	run.LastRefreshedAt = timePtr(lastRefreshedAt)
	run.FavoriteLabel = stringPtr(favoriteLabel)

	run.Conf, err = unmarshalJSON(conf)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal conf: %w", err)
	}

	err = json.Unmarshal(messages, &run.Messages)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal messages: %w", err)
	}

	run.ExecutionDate = run.ExecutionDate.UTC()
	run.CreatedAt = run.CreatedAt.UTC()
	run.UpdatedAt = run.UpdatedAt.UTC()

	return &run, nil
}
