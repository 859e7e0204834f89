package services_test

import (
	"testing"
	"time"

	"github.com/dukex/orchestrator/pkg/airflow"
	"github.com/dukex/orchestrator/pkg/models"
	"github.com/dukex/orchestrator/pkg/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestClusters_Import(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	clusters := services.NewClusters(f.deps)

	err := clusters.Import(t.Context(), []*models.Cluster{
		{Name: "prod", URL: "https://airflow.prod/api/v1", Username: "admin", Password: "secret", AutoSync: true},
		{Name: "staging", URL: "https://airflow.staging/api/v1"},
	})
	require.NoError(t, err)

	list, err := clusters.List(t.Context())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "prod", list[0].Name)
	assert.Equal(t, "secret", list[0].Password)
	assert.True(t, list[0].AutoSync)
}

func TestClusters_Import_KeepsSyncHistory(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	cluster, _ := f.cluster(t, "prod")

	synced := epoch.Add(-30 * time.Minute)
	cluster.LastSyncedAt = &synced
	require.NoError(t, f.store.SaveCluster(t.Context(), cluster))

	err := services.NewClusters(f.deps).Import(t.Context(), []*models.Cluster{
		{ID: cluster.ID, Name: "production", URL: "https://airflow.prod/api/v1"},
	})
	require.NoError(t, err)

	stored, err := f.store.ClusterByID(t.Context(), cluster.ID)
	require.NoError(t, err)
	assert.Equal(t, "production", stored.Name)
	require.NotNil(t, stored.LastSyncedAt)
	assert.True(t, stored.LastSyncedAt.Equal(synced))
}

func TestClusters_Import_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		clusters []*models.Cluster
	}{
		{name: "empty", clusters: nil},
		{name: "missing name", clusters: []*models.Cluster{{URL: "https://airflow.prod"}}},
		{name: "invalid url", clusters: []*models.Cluster{{Name: "prod", URL: "not a url"}}},
		{name: "one bad entry", clusters: []*models.Cluster{
			{Name: "prod", URL: "https://airflow.prod"},
			{Name: "broken"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)

			err := services.NewClusters(f.deps).Import(t.Context(), tt.clusters)
			require.Error(t, err)
			assert.True(t, services.IsValidationError(err))

			stored, err := f.store.Clusters(t.Context())
			require.NoError(t, err)
			assert.Empty(t, stored)
		})
	}
}

func TestClusters_Variables(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	cluster, remote := f.cluster(t, "prod")

	remote.On("ListVariables", mock.Anything).Return([]airflow.Variable{{Key: "region", Value: "eu"}}, nil)
	remote.On("UpsertVariable", mock.Anything, "region", "us").Return(nil)

	clusters := services.NewClusters(f.deps)

	vars, err := clusters.Variables(t.Context(), cluster.ID)
	require.NoError(t, err)
	assert.Equal(t, []airflow.Variable{{Key: "region", Value: "eu"}}, vars)

	require.NoError(t, clusters.SetVariable(t.Context(), cluster.ID, "region", "us"))
	remote.AssertExpectations(t)
}

func TestClusters_HealthCheck(t *testing.T) {
	t.Parallel()

	message, ok := services.NewClusters(newFixture(t).deps).HealthCheck(t.Context())
	assert.True(t, ok)
	assert.Equal(t, "Persistence layer is healthy", message)
}
