package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/dukex/orchestrator/pkg/models"
	"github.com/dukex/orchestrator/pkg/persistence/file"
	"github.com/dukex/orchestrator/pkg/signing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer

	command := NewCommand()
	command.Writer = &out
	command.ErrWriter = io.Discard

	err := command.Run(context.Background(), append([]string{"orchestrator"}, args...))

	return out.String(), err
}

func writeFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "clusters.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestClustersImportAndList(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	databaseURL := "file://" + dir

	path := writeFile(t, `
clusters:
  - name: prod
    url: https://airflow.example.com/api/v1
    username: admin
    password: admin
`)

	out, err := run(t, "--database-url", databaseURL, "clusters", "import", "--file", path)
	require.NoError(t, err)
	assert.Contains(t, out, "prod")

	store, err := file.NewPersistence(slog.New(slog.NewTextHandler(io.Discard, nil)), databaseURL)
	require.NoError(t, err)

	clusters, err := store.Clusters(t.Context())
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	assert.Equal(t, "admin", clusters[0].Password)

	out, err = run(t, "--database-url", databaseURL, "clusters", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "AUTO SYNC")
	assert.Contains(t, out, "https://airflow.example.com/api/v1")
	assert.Contains(t, out, "never")
}

func TestClustersImport_Invalid(t *testing.T) {
	path := writeFile(t, `
clusters:
  - name: broken
    url: not a url
`)

	_, err := run(t, "--database-url", file.MemoryURL, "clusters", "import", "--file", path)
	require.Error(t, err)
}

func TestSync_NoClusters(t *testing.T) {
	out, err := run(t, "--database-url", file.MemoryURL, "sync")
	require.NoError(t, err)

	var result models.SyncResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, models.SyncResult{}, result)
}

func TestSync_UnknownCluster(t *testing.T) {
	_, err := run(t, "--database-url", file.MemoryURL, "sync", "--cluster", "missing")
	require.Error(t, err)
}

func TestRuntime_TriggerConfiguration(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr error
	}{
		{
			name:    "weak secret",
			args:    []string{"--secret-key", "short", "--webhook-url", "http://orchestrator.local/webhook", "scheduler"},
			wantErr: signing.ErrWeakSecret,
		},
		{
			name:    "missing webhook url",
			args:    []string{"--secret-key", testSecret, "api"},
			wantErr: ErrMissingWebhookURL,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, append([]string{"--database-url", file.MemoryURL}, tt.args...)...)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestEventsTail_RequiresEventBus(t *testing.T) {
	_, err := run(t, "--database-url", file.MemoryURL, "events", "tail")
	require.ErrorIs(t, err, ErrNoEventBus)
}

func TestRuntime_UnsupportedEventBus(t *testing.T) {
	_, err := run(t, "--database-url", file.MemoryURL, "--event-bus", "carrier-pigeon", "sync")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported event bus")
}
