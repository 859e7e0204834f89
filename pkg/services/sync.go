package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/orchestrator/pkg/airflow"
	"github.com/dukex/orchestrator/pkg/events"
	"github.com/dukex/orchestrator/pkg/models"
	"github.com/dukex/orchestrator/pkg/persistence"
)

// Sync modes.
const (
	SyncModeFull        = "full"
	SyncModeIncremental = "incremental"
)

// Sync reconciles local definitions and runs with their clusters.
type Sync struct {
	Deps
}

func NewSync(deps Deps) *Sync {
	return &Sync{Deps: deps.withDefaults()}
}

type remoteDefinition struct {
	dag  airflow.DAG
	runs []airflow.DAGRun
}

type stateChange struct {
	run  *models.Run
	from models.RunState
}

// Cluster fully reconciles one cluster in a single transaction. Remote data
// is fetched first; any remote failure aborts with nothing written.
func (s *Sync) Cluster(ctx context.Context, clusterID string) (models.SyncResult, error) {
	result, err := s.cluster(ctx, clusterID)
	if err != nil {
		s.Metrics.SyncFailed(SyncModeFull)

		return models.SyncResult{}, err
	}

	return result, nil
}

func (s *Sync) cluster(ctx context.Context, clusterID string) (models.SyncResult, error) {
	cluster, err := s.Persistence.ClusterByID(ctx, clusterID)
	if err != nil {
		return models.SyncResult{}, err
	}

	remote, err := s.remoteFor(cluster)
	if err != nil {
		return models.SyncResult{}, err
	}

	// Run rows are stamped with wall-clock time by the stores.
	fetchStarted := time.Now().UTC()

	fetched, err := s.fetchCluster(ctx, remote)
	if err != nil {
		return models.SyncResult{}, fmt.Errorf("failed to fetch cluster %s: %w", cluster.ID, err)
	}

	var (
		result  models.SyncResult
		changes []stateChange
	)

	err = s.Persistence.WithTx(ctx, func(ctx context.Context, tx persistence.Store) error {
		result, changes = models.SyncResult{}, nil

		locals, err := tx.DefinitionsByCluster(ctx, cluster.ID)
		if err != nil {
			return err
		}

		known := make(map[string]bool, len(fetched))
		for _, rd := range fetched {
			known[rd.dag.DAGID] = true
		}

		var orphans []string

		for _, local := range locals {
			if !known[local.ExternalID] {
				orphans = append(orphans, local.ID)
			}
		}

		err = tx.DeleteDefinitions(ctx, orphans)
		if err != nil {
			return err
		}

		result.Orphaned += len(orphans)

		for _, rd := range fetched {
			definition, err := s.upsertDefinition(ctx, tx, cluster.ID, rd.dag, &result)
			if err != nil {
				return err
			}

			runChanges, err := s.reconcileRuns(ctx, tx, definition, rd.runs, fetchStarted, &result)
			if err != nil {
				return err
			}

			changes = append(changes, runChanges...)
		}

		now := s.Clock.Now().UTC()
		cluster.LastSyncedAt = &now

		return tx.SaveCluster(ctx, cluster)
	})
	if err != nil {
		return models.SyncResult{}, fmt.Errorf("failed to sync cluster %s: %w", cluster.ID, err)
	}

	s.synced(ctx, cluster.ID, SyncModeFull, result, changes)

	return result, nil
}

// All syncs every cluster independently. The returned result sums the
// clusters that succeeded; failures are joined into the error.
func (s *Sync) All(ctx context.Context) (models.SyncResult, error) {
	clusters, err := s.Persistence.Clusters(ctx)
	if err != nil {
		return models.SyncResult{}, err
	}

	var (
		total models.SyncResult
		errs  []error
	)

	for _, cluster := range clusters {
		result, err := s.Cluster(ctx, cluster.ID)
		if err != nil {
			s.Logger.ErrorContext(ctx, "cluster sync failed", "cluster_id", cluster.ID, "error", err)
			errs = append(errs, err)

			continue
		}

		total = total.Add(result)
	}

	return total, errors.Join(errs...)
}

// Incremental upserts the latest limit runs of a cluster. Runs of unknown
// definitions are skipped and nothing is deleted.
func (s *Sync) Incremental(ctx context.Context, cluster *models.Cluster, limit int) (models.SyncResult, error) {
	result, changes, err := s.incremental(ctx, cluster, limit)
	if err != nil {
		s.Metrics.SyncFailed(SyncModeIncremental)

		return models.SyncResult{}, err
	}

	s.synced(ctx, cluster.ID, SyncModeIncremental, result, changes)

	return result, nil
}

func (s *Sync) incremental(ctx context.Context, cluster *models.Cluster, limit int) (models.SyncResult, []stateChange, error) {
	remote, err := s.remoteFor(cluster)
	if err != nil {
		return models.SyncResult{}, nil, err
	}

	recent, err := remote.ListRecentDAGRuns(ctx, limit)
	if err != nil {
		return models.SyncResult{}, nil, fmt.Errorf("failed to list recent runs of cluster %s: %w", cluster.ID, err)
	}

	var (
		result  models.SyncResult
		changes []stateChange
	)

	err = s.Persistence.WithTx(ctx, func(ctx context.Context, tx persistence.Store) error {
		result, changes = models.SyncResult{}, nil

		definitions, err := tx.DefinitionsByCluster(ctx, cluster.ID)
		if err != nil {
			return err
		}

		byExternalID := make(map[string]*models.Definition, len(definitions))
		for _, definition := range definitions {
			byExternalID[definition.ExternalID] = definition
		}

		for _, remoteRun := range recent {
			definition, ok := byExternalID[remoteRun.DAGID]
			if !ok {
				continue
			}

			local, err := tx.RunByExternalID(ctx, definition.ID, remoteRun.DAGRunID)
			if persistence.IsRunNotFound(err) {
				err = tx.SaveRun(ctx, newRunFromRemote(definition, remoteRun))
				if err != nil {
					return err
				}

				result.Created++

				continue
			}

			if err != nil {
				return err
			}

			local, err = tx.LockRun(ctx, local.ID)
			if err != nil {
				return err
			}

			from := local.State

			modified, stateChanged := applyRemoteRun(local, remoteRun)
			if !modified {
				result.Identical++

				continue
			}

			err = tx.SaveRun(ctx, local)
			if err != nil {
				return err
			}

			result.Updated++

			if stateChanged {
				changes = append(changes, stateChange{run: local, from: from})
			}
		}

		return nil
	})
	if err != nil {
		return models.SyncResult{}, nil, fmt.Errorf("failed to sync recent runs of cluster %s: %w", cluster.ID, err)
	}

	return result, changes, nil
}

func (s *Sync) fetchCluster(ctx context.Context, remote Remote) ([]remoteDefinition, error) {
	dags, err := remote.ListDAGs(ctx)
	if err != nil {
		return nil, err
	}

	fetched := make([]remoteDefinition, 0, len(dags))

	for _, dag := range dags {
		runs, err := remote.ListDAGRuns(ctx, dag.DAGID, airflow.DefaultPageLimit, true)
		if err != nil {
			return nil, err
		}

		fetched = append(fetched, remoteDefinition{dag: dag, runs: runs})
	}

	return fetched, nil
}

func (s *Sync) upsertDefinition(ctx context.Context, tx persistence.Store, clusterID string, dag airflow.DAG, result *models.SyncResult) (*models.Definition, error) {
	definition, err := tx.DefinitionByExternalID(ctx, clusterID, dag.DAGID)

	switch {
	case persistence.IsDefinitionNotFound(err):
		definition = &models.Definition{ClusterID: clusterID, ExternalID: dag.DAGID}
		result.Created++
	case err != nil:
		return nil, err
	default:
		result.Updated++
	}

	definition.Description = ""
	if dag.Description != nil {
		definition.Description = *dag.Description
	}

	definition.Paused = dag.IsPaused

	err = tx.SaveDefinition(ctx, definition)
	if err != nil {
		return nil, err
	}

	return definition, nil
}

// reconcileRuns mirrors remoteRuns onto the definition's local runs. Local
// runs created after fetchStarted may postdate the remote listing and are
// never treated as orphans.
func (s *Sync) reconcileRuns(ctx context.Context, tx persistence.Store, definition *models.Definition, remoteRuns []airflow.DAGRun, fetchStarted time.Time, result *models.SyncResult) ([]stateChange, error) {
	locals, err := tx.RunsByDefinition(ctx, definition.ID)
	if err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(remoteRuns))
	for _, remoteRun := range remoteRuns {
		known[remoteRun.DAGRunID] = true
	}

	byExternalID := make(map[string]*models.Run, len(locals))

	var orphans []string

	for _, local := range locals {
		if !known[local.ExternalID] {
			if !local.CreatedAt.After(fetchStarted) {
				orphans = append(orphans, local.ID)
			}

			continue
		}

		byExternalID[local.ExternalID] = local
	}

	err = tx.DeleteRuns(ctx, orphans)
	if err != nil {
		return nil, err
	}

	result.Orphaned += len(orphans)

	var changes []stateChange

	for _, remoteRun := range remoteRuns {
		local, ok := byExternalID[remoteRun.DAGRunID]
		if !ok {
			err = tx.SaveRun(ctx, newRunFromRemote(definition, remoteRun))
			if err != nil {
				return nil, err
			}

			result.Created++

			continue
		}

		local, err = tx.LockRun(ctx, local.ID)
		if err != nil {
			return nil, err
		}

		from := local.State

		_, stateChanged := applyRemoteRun(local, remoteRun)

		err = tx.SaveRun(ctx, local)
		if err != nil {
			return nil, err
		}

		result.Updated++

		if stateChanged {
			changes = append(changes, stateChange{run: local, from: from})
		}
	}

	return changes, nil
}

func (s *Sync) synced(ctx context.Context, clusterID, mode string, result models.SyncResult, changes []stateChange) {
	s.Metrics.Synced(mode, result)
	s.Logger.InfoContext(ctx, "cluster synced", "cluster_id", clusterID, "mode", mode, "result", result.String())

	for _, change := range changes {
		s.Metrics.StateChanged(change.run.State, events.SourceSync)
		s.publish(ctx, change.run.ID, events.RunStateChanged{
			BaseEvent:    events.NewBaseEvent(newEventID(), events.RunStateChangedEvent),
			RunID:        change.run.ID,
			DefinitionID: change.run.DefinitionID,
			From:         change.from,
			To:           change.run.State,
			Source:       events.SourceSync,
		})
	}

	s.publish(ctx, clusterID, events.ClusterSynced{
		BaseEvent: events.NewBaseEvent(newEventID(), events.ClusterSyncedEvent),
		ClusterID: clusterID,
		Mode:      mode,
		Result:    result,
	})
}

// newRunFromRemote builds the local record of a run first seen by sync.
// Unknown remote states start as queued.
func newRunFromRemote(definition *models.Definition, remoteRun airflow.DAGRun) *models.Run {
	state, err := models.ParseRunState(remoteRun.State)
	if err != nil {
		state = models.RunStateQueued
	}

	return &models.Run{
		DefinitionID:  definition.ID,
		ExternalID:    remoteRun.DAGRunID,
		ExecutionDate: remoteRun.ExecutionDate.UTC(),
		State:         state,
		Conf:          stripReservedConf(remoteRun.Conf),
	}
}

// applyRemoteRun copies the remote execution date and state onto local,
// honouring the terminal-state rule. It reports whether anything changed and
// whether the state did.
func applyRemoteRun(local *models.Run, remoteRun airflow.DAGRun) (bool, bool) {
	modified := false

	if !remoteRun.ExecutionDate.IsZero() && !local.ExecutionDate.Equal(remoteRun.ExecutionDate) {
		local.ExecutionDate = remoteRun.ExecutionDate.UTC()
		modified = true
	}

	stateChanged := false

	if state, err := models.ParseRunState(remoteRun.State); err == nil {
		stateChanged = local.Transition(state)
	}

	return modified || stateChanged, stateChanged
}
