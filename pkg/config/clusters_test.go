package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dukex/orchestrator/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "clusters.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadClusters(t *testing.T) {
	t.Setenv("TEST_AIRFLOW_PASSWORD", "s3cret")

	path := writeFile(t, `
clusters:
  - name: prod
    url: https://airflow.example.com/api/v1
    username: admin
    password: ${TEST_AIRFLOW_PASSWORD}
    auto_sync: true
  - id: staging-id
    name: staging
    url: https://staging.example.com/api/v1
`)

	clusters, err := config.LoadClusters(path)
	require.NoError(t, err)
	require.Len(t, clusters, 2)
	assert.Equal(t, "prod", clusters[0].Name)
	assert.Equal(t, "admin", clusters[0].Username)
	assert.Equal(t, "s3cret", clusters[0].Password)
	assert.True(t, clusters[0].AutoSync)
	assert.Equal(t, "staging-id", clusters[1].ID)
	assert.False(t, clusters[1].AutoSync)
}

func TestLoadClusters_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{name: "missing file", path: filepath.Join(t.TempDir(), "missing.yaml")},
		{name: "invalid yaml", path: writeFile(t, "clusters: [unclosed")},
		{name: "empty list", path: writeFile(t, "clusters: []\n"), wantErr: config.ErrNoClusters},
		{name: "no clusters key", path: writeFile(t, "other: true\n"), wantErr: config.ErrNoClusters},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := config.LoadClusters(tt.path)
			require.Error(t, err)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}
