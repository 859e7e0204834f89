package services

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/dukex/orchestrator/pkg/airflow"
	"github.com/dukex/orchestrator/pkg/events"
	"github.com/dukex/orchestrator/pkg/models"
	"github.com/dukex/orchestrator/pkg/persistence"
	"github.com/dukex/orchestrator/pkg/signing"
	"github.com/google/uuid"
)

// Run kinds, used as the dag_run_id prefix.
const (
	RunKindScheduled = "scheduled"
	RunKindManual    = "manual"
)

// Keys the orchestrator adds to the conf sent with every trigger.
const (
	ConfWebhookURL    = "_webhook_url"
	ConfWebhookToken  = "_webhook_token"
	ConfPipelineToken = "_pipeline_token"
)

// RunsConfig configures run triggering and webhook verification.
type RunsConfig struct {
	Signer   *signing.Signer
	Identity *signing.IdentityIssuer
	// WebhookURL is where pipelines post their updates.
	WebhookURL string
	// TokenMaxAge bounds the age of webhook envelopes. Zero disables expiry.
	TokenMaxAge time.Duration
}

type TriggerOptions struct {
	// ExecutionDate defaults to now.
	ExecutionDate time.Time
	// Kind defaults to RunKindManual.
	Kind string
}

// Runs triggers runs and drives their state machine.
type Runs struct {
	Deps

	config RunsConfig
}

func NewRuns(deps Deps, config RunsConfig) *Runs {
	return &Runs{Deps: deps.withDefaults(), config: config}
}

// Trigger starts definition on its cluster and records the queued run. conf
// is passed through untouched; a nil conf falls back to the definition's
// static Config. Nothing is stored when the remote call fails.
func (r *Runs) Trigger(ctx context.Context, definition *models.Definition, conf map[string]any, opts TriggerOptions) (*models.Run, error) {
	kind := opts.Kind
	if kind == "" {
		kind = RunKindManual
	}

	executionDate := opts.ExecutionDate
	if executionDate.IsZero() {
		executionDate = r.Clock.Now()
	}

	cluster, err := r.Persistence.ClusterByID(ctx, definition.ClusterID)
	if err != nil {
		return nil, err
	}

	remote, err := r.remoteFor(cluster)
	if err != nil {
		return nil, err
	}

	runID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate run ID: %w", err)
	}

	token := signing.NewToken()

	pipelineToken, err := r.config.Identity.Issue(runID.String(), definition.ID, cluster.ID)
	if err != nil {
		return nil, err
	}

	if conf == nil {
		conf = maps.Clone(definition.Config)
	}

	payload := maps.Clone(conf)
	if payload == nil {
		payload = make(map[string]any, 3)
	}

	payload[ConfWebhookURL] = r.config.WebhookURL
	payload[ConfWebhookToken] = r.config.Signer.Sign(token)
	payload[ConfPipelineToken] = pipelineToken

	request := airflow.TriggerRequest{
		DAGRunID:      kind + "__" + uuid.NewString(),
		ExecutionDate: executionDate.UTC(),
		Conf:          payload,
	}

	remoteRun, err := remote.TriggerDAGRun(ctx, definition.ExternalID, request)
	r.Metrics.RunTriggered(kind, err)

	if err != nil {
		return nil, fmt.Errorf("failed to trigger %s on cluster %s: %w", definition.ExternalID, cluster.ID, err)
	}

	run := &models.Run{
		ID:            runID.String(),
		DefinitionID:  definition.ID,
		ExternalID:    cmp.Or(remoteRun.DAGRunID, request.DAGRunID),
		ExecutionDate: request.ExecutionDate,
		State:         models.RunStateQueued,
		Conf:          conf,
		WebhookToken:  token,
	}

	if !remoteRun.ExecutionDate.IsZero() {
		run.ExecutionDate = remoteRun.ExecutionDate.UTC()
	}

	err = r.Persistence.SaveRun(ctx, run)
	if err != nil {
		return nil, fmt.Errorf("failed to save triggered run %s: %w", run.ExternalID, err)
	}

	r.Logger.InfoContext(ctx, "run triggered",
		"run_id", run.ID, "dag_id", definition.ExternalID, "dag_run_id", run.ExternalID, "kind", kind)

	r.publish(ctx, run.ID, events.RunTriggered{
		BaseEvent:     events.NewBaseEvent(newEventID(), events.RunTriggeredEvent),
		RunID:         run.ID,
		DefinitionID:  definition.ID,
		ClusterID:     cluster.ID,
		ExternalID:    run.ExternalID,
		ExecutionDate: run.ExecutionDate,
		Kind:          kind,
	})

	return run, nil
}

// TriggerByID loads the definition and triggers it.
func (r *Runs) TriggerByID(ctx context.Context, definitionID string, conf map[string]any, opts TriggerOptions) (*models.Run, error) {
	definition, err := r.Persistence.DefinitionByID(ctx, definitionID)
	if err != nil {
		return nil, err
	}

	return r.Trigger(ctx, definition, conf, opts)
}

// Authenticate resolves a webhook envelope to its run. Unknown runs are
// reported as unauthenticated.
func (r *Runs) Authenticate(ctx context.Context, envelope string) (*models.Run, error) {
	token, err := r.config.Signer.Unwrap(envelope, r.config.TokenMaxAge)
	if err != nil {
		return nil, err
	}

	run, err := r.Persistence.LockRunByWebhookToken(ctx, token)
	if persistence.IsRunNotFound(err) {
		return nil, fmt.Errorf("%w: %w", signing.ErrUnauthenticated, err)
	}

	if err != nil {
		return nil, err
	}

	return run, nil
}

// ApplyUpdate applies one webhook update to a run atomically. Status updates
// are ignored once the run is terminal; progress and log updates are always
// recorded.
func (r *Runs) ApplyUpdate(ctx context.Context, runID string, update models.Update) (*models.Run, error) {
	var (
		updated *models.Run
		from    models.RunState
		changed bool
	)

	err := r.Persistence.WithTx(ctx, func(ctx context.Context, tx persistence.Store) error {
		run, err := tx.LockRun(ctx, runID)
		if err != nil {
			return err
		}

		from = run.State

		switch u := update.(type) {
		case models.StatusUpdate:
			state, err := models.ParseRunState(u.Status)
			if err != nil {
				return NewValidationError("ApplyUpdate", "invalid status", err)
			}

			changed = run.Transition(state)
			if !changed {
				updated = run

				return nil
			}
		case models.ProgressUpdate:
			run.SetProgress(u.Progress)
		case models.LogMessageUpdate:
			run.AppendMessage(u.Priority, u.Message, r.Clock.Now().UTC())
		default:
			return NewValidationError("ApplyUpdate", fmt.Sprintf("unsupported update %T", update), nil)
		}

		updated = run

		return tx.SaveRun(ctx, run)
	})
	if err != nil {
		return nil, err
	}

	if changed {
		r.stateChanged(ctx, updated, from, events.SourceWebhook)
	}

	return updated, nil
}

// Refresh pulls the remote state of a run. Remote failures leave the run
// untouched.
func (r *Runs) Refresh(ctx context.Context, runID string) (*models.Run, error) {
	run, err := r.Persistence.RunByID(ctx, runID)
	if err != nil {
		return nil, err
	}

	definition, _, remote, err := r.definitionTarget(ctx, run.DefinitionID)
	if err != nil {
		return nil, err
	}

	remoteRun, err := remote.GetDAGRun(ctx, definition.ExternalID, run.ExternalID)
	if err != nil {
		r.Logger.WarnContext(ctx, "failed to refresh run", "run_id", run.ID, "error", err)

		return nil, err
	}

	state, stateErr := models.ParseRunState(remoteRun.State)
	if stateErr != nil {
		r.Logger.WarnContext(ctx, "ignoring remote run state", "run_id", run.ID, "error", stateErr)
	}

	var (
		from    models.RunState
		changed bool
	)

	err = r.Persistence.WithTx(ctx, func(ctx context.Context, tx persistence.Store) error {
		locked, err := tx.LockRun(ctx, runID)
		if err != nil {
			return err
		}

		from = locked.State
		if stateErr == nil {
			changed = locked.Transition(state)
		}

		now := r.Clock.Now().UTC()
		locked.LastRefreshedAt = &now
		run = locked

		return tx.SaveRun(ctx, locked)
	})
	if err != nil {
		return nil, err
	}

	if changed {
		r.stateChanged(ctx, run, from, events.SourceRefresh)
	}

	return run, nil
}

// Identify verifies a pipeline identity token and returns the run it names.
func (r *Runs) Identify(ctx context.Context, token string) (*models.Run, error) {
	claims, err := r.config.Identity.Verify(token)
	if err != nil {
		return nil, err
	}

	run, err := r.Persistence.RunByID(ctx, claims.RunID)
	if persistence.IsRunNotFound(err) {
		return nil, fmt.Errorf("%w: %w", signing.ErrUnauthenticated, err)
	}

	return run, err
}

func (r *Runs) Get(ctx context.Context, runID string) (*models.Run, error) {
	return r.Persistence.RunByID(ctx, runID)
}

// SetPaused pauses or resumes a definition remotely, then locally.
func (r *Runs) SetPaused(ctx context.Context, definitionID string, paused bool) (*models.Definition, error) {
	definition, _, remote, err := r.definitionTarget(ctx, definitionID)
	if err != nil {
		return nil, err
	}

	err = remote.SetPaused(ctx, definition.ExternalID, paused)
	if err != nil {
		return nil, err
	}

	definition.Paused = paused

	err = r.Persistence.SaveDefinition(ctx, definition)
	if err != nil {
		return nil, err
	}

	return definition, nil
}

func (r *Runs) TaskInstances(ctx context.Context, runID string) ([]airflow.TaskInstance, error) {
	run, definition, remote, err := r.runTarget(ctx, runID)
	if err != nil {
		return nil, err
	}

	return remote.ListTaskInstances(ctx, definition.ExternalID, run.ExternalID)
}

func (r *Runs) TaskLog(ctx context.Context, runID, taskID string) (string, error) {
	run, definition, remote, err := r.runTarget(ctx, runID)
	if err != nil {
		return "", err
	}

	return remote.GetTaskLog(ctx, definition.ExternalID, run.ExternalID, taskID)
}

func (r *Runs) runTarget(ctx context.Context, runID string) (*models.Run, *models.Definition, Remote, error) {
	run, err := r.Persistence.RunByID(ctx, runID)
	if err != nil {
		return nil, nil, nil, err
	}

	definition, _, remote, err := r.definitionTarget(ctx, run.DefinitionID)
	if err != nil {
		return nil, nil, nil, err
	}

	return run, definition, remote, nil
}

func (r *Runs) stateChanged(ctx context.Context, run *models.Run, from models.RunState, source string) {
	r.Metrics.StateChanged(run.State, source)
	r.Logger.InfoContext(ctx, "run state changed",
		"run_id", run.ID, "from", from, "to", run.State, "source", source)

	r.publish(ctx, run.ID, events.RunStateChanged{
		BaseEvent:    events.NewBaseEvent(newEventID(), events.RunStateChangedEvent),
		RunID:        run.ID,
		DefinitionID: run.DefinitionID,
		From:         from,
		To:           run.State,
		Source:       source,
	})
}

// stripReservedConf drops the keys added at trigger time from a remote conf.
func stripReservedConf(conf map[string]any) map[string]any {
	if conf == nil {
		return nil
	}

	clean := make(map[string]any, len(conf))
	for key, value := range conf {
		if key == ConfWebhookURL || key == ConfWebhookToken || key == ConfPipelineToken {
			continue
		}

		clean[key] = value
	}

	return clean
}

// IsUnauthenticated reports errors a webhook caller must see as 401.
func IsUnauthenticated(err error) bool {
	return errors.Is(err, signing.ErrUnauthenticated)
}
