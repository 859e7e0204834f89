// Package testutil provides test data builders for the orchestrator models.
package testutil

import (
	"time"

	"github.com/dukex/orchestrator/pkg/models"
	"github.com/google/uuid"
)

// CreateTestCluster creates an unsaved cluster with default values that can be
// overridden.
func CreateTestCluster(overrides ...func(*models.Cluster)) *models.Cluster {
	cluster := &models.Cluster{
		Name:     "prod",
		URL:      "http://airflow.local/api/v1",
		Username: "admin",
		Password: "secret",
	}

	for _, override := range overrides {
		override(cluster)
	}

	return cluster
}

// WithClusterURL points the cluster at url, usually an httptest server.
func WithClusterURL(url string) func(*models.Cluster) {
	return func(c *models.Cluster) {
		c.URL = url
	}
}

func WithAutoSync() func(*models.Cluster) {
	return func(c *models.Cluster) {
		c.AutoSync = true
	}
}

// CreateTestDefinition creates an unsaved definition of clusterID.
func CreateTestDefinition(clusterID string, overrides ...func(*models.Definition)) *models.Definition {
	definition := &models.Definition{
		ClusterID:  clusterID,
		ExternalID: "etl",
	}

	for _, override := range overrides {
		override(definition)
	}

	return definition
}

func WithExternalID(externalID string) func(*models.Definition) {
	return func(d *models.Definition) {
		d.ExternalID = externalID
	}
}

func WithSchedule(expression string) func(*models.Definition) {
	return func(d *models.Definition) {
		d.Schedule = &expression
	}
}

func WithConfig(config map[string]any) func(*models.Definition) {
	return func(d *models.Definition) {
		d.Config = config
	}
}

// CreateTestRun creates an unsaved queued run of definitionID with a unique
// external ID.
func CreateTestRun(definitionID string, overrides ...func(*models.Run)) *models.Run {
	run := &models.Run{
		DefinitionID:  definitionID,
		ExternalID:    "manual__" + uuid.NewString(),
		ExecutionDate: time.Now().UTC().Truncate(time.Second),
		State:         models.RunStateQueued,
		WebhookToken:  uuid.NewString(),
	}

	for _, override := range overrides {
		override(run)
	}

	return run
}

func WithState(state models.RunState) func(*models.Run) {
	return func(r *models.Run) {
		r.State = state
	}
}

func WithRunExternalID(externalID string) func(*models.Run) {
	return func(r *models.Run) {
		r.ExternalID = externalID
	}
}

func WithExecutionDate(at time.Time) func(*models.Run) {
	return func(r *models.Run) {
		r.ExecutionDate = at
	}
}
