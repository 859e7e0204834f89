package postgresql_test

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/dukex/orchestrator/pkg/models"
	"github.com/dukex/orchestrator/pkg/persistence"
	"github.com/dukex/orchestrator/pkg/persistence/postgresql"
	"github.com/dukex/orchestrator/pkg/testutil"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	// Drop tables in reverse dependency order (children first, parents last)
	for _, table := range []string{"runs", "definitions", "clusters", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("orchestrator_test"),
			postgres.WithUsername("orchestrator"),
			postgres.WithPassword("orchestrator"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = p.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return p, ctx, databaseURL
}

func seedDefinition(ctx context.Context, t *testing.T, store persistence.Store) (*models.Cluster, *models.Definition) {
	t.Helper()

	cluster := testutil.CreateTestCluster()
	require.NoError(t, store.SaveCluster(ctx, cluster))

	definition := testutil.CreateTestDefinition(cluster.ID,
		testutil.WithSchedule("*/5 * * * *"),
		testutil.WithConfig(map[string]any{"country": "BE"}))
	require.NoError(t, store.SaveDefinition(ctx, definition))

	return cluster, definition
}

func TestNewPersistence_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		err := db.Close()
		require.NoError(t, err)
	}()

	for _, table := range []string{"clusters", "definitions", "runs", "schema_migrations"} {
		var exists bool

		err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "%s table should exist", table)
	}

	var version int

	err = db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 2, version)
}

func TestNewPersistence_MigrationsAreIdempotent(t *testing.T) {
	p, ctx, databaseURL := setupTestDB(t)

	cluster, _ := seedDefinition(ctx, t, p)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	again, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	defer func() {
		require.NoError(t, again.Close(ctx))
	}()

	_, err = again.ClusterByID(ctx, cluster.ID)
	require.NoError(t, err)
}

func TestNewPersistence_HealthCheck(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	err := p.HealthCheck(ctx)
	assert.NoError(t, err)
}

func TestPersistence_ClusterRoundTrip(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	cluster := &models.Cluster{Name: "prod", URL: "http://airflow.local", Username: "admin", Password: "secret", AutoSync: true}
	require.NoError(t, p.SaveCluster(ctx, cluster))
	assert.NotEmpty(t, cluster.ID)
	assert.False(t, cluster.CreatedAt.IsZero())

	syncedAt := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	cluster.LastSyncedAt = &syncedAt
	require.NoError(t, p.SaveCluster(ctx, cluster))

	retrieved, err := p.ClusterByID(ctx, cluster.ID)
	require.NoError(t, err)
	assert.Equal(t, "secret", retrieved.Password)
	assert.True(t, retrieved.AutoSync)
	require.NotNil(t, retrieved.LastSyncedAt)
	assert.True(t, retrieved.LastSyncedAt.Equal(syncedAt))

	clusters, err := p.Clusters(ctx)
	require.NoError(t, err)
	assert.Len(t, clusters, 1)

	_, err = p.ClusterByID(ctx, "missing")
	assert.True(t, persistence.IsClusterNotFound(err))
}

func TestPersistence_DefinitionRoundTrip(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	cluster, definition := seedDefinition(ctx, t, p)

	retrieved, err := p.DefinitionByExternalID(ctx, cluster.ID, "etl")
	require.NoError(t, err)
	assert.Equal(t, definition.ID, retrieved.ID)
	require.NotNil(t, retrieved.Schedule)
	assert.Equal(t, "*/5 * * * *", *retrieved.Schedule)
	assert.Equal(t, map[string]any{"country": "BE"}, retrieved.Config)
	assert.Nil(t, retrieved.SampleConfig)

	duplicate := &models.Definition{ClusterID: cluster.ID, ExternalID: "etl"}
	err = p.SaveDefinition(ctx, duplicate)
	require.ErrorIs(t, err, persistence.ErrDuplicateExternalID)

	_, err = p.DefinitionByID(ctx, "missing")
	assert.True(t, persistence.IsDefinitionNotFound(err))

	all, err := p.Definitions(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestPersistence_RunRoundTrip(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	_, definition := seedDefinition(ctx, t, p)

	label := "golden"
	executionDate := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	run := &models.Run{
		DefinitionID:  definition.ID,
		ExternalID:    "manual__1",
		ExecutionDate: executionDate,
		State:         models.RunStateQueued,
		Conf:          map[string]any{"limit": float64(10)},
		WebhookToken:  "token-1",
		FavoriteLabel: &label,
	}
	run.AppendMessage("warning", "disk almost full", executionDate)
	require.NoError(t, p.SaveRun(ctx, run))

	retrieved, err := p.RunByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStateQueued, retrieved.State)
	assert.True(t, retrieved.ExecutionDate.Equal(executionDate))
	assert.Equal(t, run.Conf, retrieved.Conf)
	assert.Equal(t, "token-1", retrieved.WebhookToken)
	require.Len(t, retrieved.Messages, 1)
	assert.Equal(t, models.PriorityWarning, retrieved.Messages[0].Priority)
	require.NotNil(t, retrieved.FavoriteLabel)
	assert.Equal(t, "golden", *retrieved.FavoriteLabel)

	byToken, err := p.LockRunByWebhookToken(ctx, "token-1")
	require.NoError(t, err)
	assert.Equal(t, run.ID, byToken.ID)

	byExternal, err := p.RunByExternalID(ctx, definition.ID, "manual__1")
	require.NoError(t, err)
	assert.Equal(t, run.ID, byExternal.ID)

	// Runs discovered by sync carry no token and must not collide.
	for _, externalID := range []string{"scheduled__a", "scheduled__b"} {
		require.NoError(t, p.SaveRun(ctx, &models.Run{
			DefinitionID:  definition.ID,
			ExternalID:    externalID,
			ExecutionDate: executionDate.Add(time.Hour),
			State:         models.RunStateSuccess,
		}))
	}

	latest, err := p.LatestRun(ctx, definition.ID)
	require.NoError(t, err)
	assert.NotEqual(t, run.ID, latest.ID)

	_, err = p.LockRunByWebhookToken(ctx, "")
	assert.True(t, persistence.IsRunNotFound(err))

	_, err = p.RunByID(ctx, "missing")
	assert.True(t, persistence.IsRunNotFound(err))
}

func TestPersistence_DeleteDefinitionsCascadesRuns(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	_, definition := seedDefinition(ctx, t, p)

	run := testutil.CreateTestRun(definition.ID, testutil.WithState(models.RunStateRunning))
	require.NoError(t, p.SaveRun(ctx, run))

	require.NoError(t, p.DeleteDefinitions(ctx, []string{definition.ID}))
	require.NoError(t, p.DeleteDefinitions(ctx, nil))

	_, err := p.RunByID(ctx, run.ID)
	assert.True(t, persistence.IsRunNotFound(err))
}

func TestPersistence_WithTxRollsBack(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	_, definition := seedDefinition(ctx, t, p)
	boom := errors.New("boom")

	err := p.WithTx(ctx, func(ctx context.Context, tx persistence.Store) error {
		require.NoError(t, tx.SaveRun(ctx, &models.Run{
			DefinitionID:  definition.ID,
			ExternalID:    "manual__1",
			ExecutionDate: time.Now(),
			State:         models.RunStateQueued,
		}))

		return boom
	})
	require.ErrorIs(t, err, boom)

	runs, err := p.RunsByDefinition(ctx, definition.ID)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestPersistence_LockRunSerializesUpdates(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	_, definition := seedDefinition(ctx, t, p)

	run := testutil.CreateTestRun(definition.ID, testutil.WithState(models.RunStateRunning))
	require.NoError(t, p.SaveRun(ctx, run))

	const writers = 10

	var wg sync.WaitGroup

	for i := range writers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			err := p.WithTx(ctx, func(ctx context.Context, tx persistence.Store) error {
				locked, err := tx.LockRun(ctx, run.ID)
				if err != nil {
					return err
				}

				locked.AppendMessage("INFO", "message", time.Unix(int64(i), 0))

				return tx.SaveRun(ctx, locked)
			})
			assert.NoError(t, err)
		}()
	}

	wg.Wait()

	retrieved, err := p.RunByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Len(t, retrieved.Messages, writers)
}
