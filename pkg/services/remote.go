package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/orchestrator/pkg/airflow"
	"github.com/dukex/orchestrator/pkg/eventbus"
	"github.com/dukex/orchestrator/pkg/metrics"
	"github.com/dukex/orchestrator/pkg/models"
	"github.com/dukex/orchestrator/pkg/persistence"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Remote is the part of the cluster API the services use.
type Remote interface {
	ListDAGs(ctx context.Context) ([]airflow.DAG, error)
	ListDAGRuns(ctx context.Context, dagID string, limit int, all bool) ([]airflow.DAGRun, error)
	ListRecentDAGRuns(ctx context.Context, limit int) ([]airflow.DAGRun, error)
	TriggerDAGRun(ctx context.Context, dagID string, req airflow.TriggerRequest) (*airflow.DAGRun, error)
	GetDAGRun(ctx context.Context, dagID, runID string) (*airflow.DAGRun, error)
	ListTaskInstances(ctx context.Context, dagID, runID string) ([]airflow.TaskInstance, error)
	GetTaskLog(ctx context.Context, dagID, runID, taskID string) (string, error)
	ListVariables(ctx context.Context) ([]airflow.Variable, error)
	UpsertVariable(ctx context.Context, key, value string) error
	SetPaused(ctx context.Context, dagID string, paused bool) error
}

var _ Remote = (*airflow.Client)(nil)

// RemoteFactory builds the client of a cluster.
type RemoteFactory func(cluster *models.Cluster) (Remote, error)

// AirflowRemotes returns a RemoteFactory backed by airflow.Client.
func AirflowRemotes(opts airflow.Options) RemoteFactory {
	return func(cluster *models.Cluster) (Remote, error) {
		client, err := airflow.NewClient(cluster, opts)
		if err != nil {
			return nil, err
		}

		return client, nil
	}
}

// Deps are the collaborators shared by every service. Publisher and Metrics
// are optional.
type Deps struct {
	Persistence persistence.Persistence
	Remotes     RemoteFactory
	Publisher   eventbus.EventPublisher
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
	Clock       clockwork.Clock
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}

	return d
}

func (d Deps) remoteFor(cluster *models.Cluster) (Remote, error) {
	remote, err := d.Remotes(cluster)
	if err != nil {
		return nil, fmt.Errorf("failed to build client for cluster %s: %w", cluster.ID, err)
	}

	return remote, nil
}

// definitionTarget loads a definition with its cluster and remote client.
func (d Deps) definitionTarget(ctx context.Context, definitionID string) (*models.Definition, *models.Cluster, Remote, error) {
	definition, err := d.Persistence.DefinitionByID(ctx, definitionID)
	if err != nil {
		return nil, nil, nil, err
	}

	cluster, err := d.Persistence.ClusterByID(ctx, definition.ClusterID)
	if err != nil {
		return nil, nil, nil, err
	}

	remote, err := d.remoteFor(cluster)
	if err != nil {
		return nil, nil, nil, err
	}

	return definition, cluster, remote, nil
}

// publish delivers an event after the change it describes was committed.
// Delivery failures are logged only.
func (d Deps) publish(ctx context.Context, key string, event eventbus.Event) {
	if d.Publisher == nil {
		return
	}

	err := d.Publisher.Publish(ctx, key, event)
	if err != nil {
		d.Logger.WarnContext(ctx, "failed to publish event", "event_type", event.GetType(), "key", key, "error", err)
	}
}

func newEventID() string {
	return uuid.NewString()
}
