package file

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/dukex/orchestrator/pkg/models"
	"github.com/dukex/orchestrator/pkg/persistence"
	"github.com/google/uuid"
)

// state is the unlocked in-memory store. Values go in and out as copies so
// callers never alias stored records.
type state struct {
	clusters    map[string]*models.Cluster
	definitions map[string]*models.Definition
	runs        map[string]*models.Run
}

var _ persistence.Store = (*state)(nil)

func newState() *state {
	return &state{
		clusters:    make(map[string]*models.Cluster),
		definitions: make(map[string]*models.Definition),
		runs:        make(map[string]*models.Run),
	}
}

func (s *state) clone() (*state, error) {
	data, err := json.Marshal(s.snapshot())
	if err != nil {
		return nil, fmt.Errorf("failed to copy state: %w", err)
	}

	var snap snapshot

	err = json.Unmarshal(data, &snap)
	if err != nil {
		return nil, fmt.Errorf("failed to copy state: %w", err)
	}

	return snap.state(), nil
}

func (s *state) Clusters(_ context.Context) ([]*models.Cluster, error) {
	clusters := make([]*models.Cluster, 0, len(s.clusters))
	for _, cluster := range s.clusters {
		clusters = append(clusters, cloneCluster(cluster))
	}

	slices.SortFunc(clusters, func(a, b *models.Cluster) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})

	return clusters, nil
}

func (s *state) ClusterByID(_ context.Context, id string) (*models.Cluster, error) {
	cluster, ok := s.clusters[id]
	if !ok {
		return nil, persistence.NewClusterError("ClusterByID", id, persistence.ErrClusterNotFound)
	}

	return cloneCluster(cluster), nil
}

func (s *state) SaveCluster(_ context.Context, cluster *models.Cluster) error {
	err := stamp(&cluster.ID, &cluster.CreatedAt, &cluster.UpdatedAt)
	if err != nil {
		return err
	}

	s.clusters[cluster.ID] = cloneCluster(cluster)

	return nil
}

func (s *state) Definitions(_ context.Context) ([]*models.Definition, error) {
	return s.filterDefinitions(func(*models.Definition) bool { return true }), nil
}

func (s *state) DefinitionsByCluster(_ context.Context, clusterID string) ([]*models.Definition, error) {
	return s.filterDefinitions(func(d *models.Definition) bool { return d.ClusterID == clusterID }), nil
}

func (s *state) DefinitionByID(_ context.Context, id string) (*models.Definition, error) {
	definition, ok := s.definitions[id]
	if !ok {
		return nil, persistence.NewDefinitionError("DefinitionByID", id, persistence.ErrDefinitionNotFound)
	}

	return cloneDefinition(definition), nil
}

func (s *state) DefinitionByExternalID(_ context.Context, clusterID, externalID string) (*models.Definition, error) {
	for _, definition := range s.definitions {
		if definition.ClusterID == clusterID && definition.ExternalID == externalID {
			return cloneDefinition(definition), nil
		}
	}

	return nil, persistence.NewDefinitionError("DefinitionByExternalID", externalID, persistence.ErrDefinitionNotFound)
}

func (s *state) SaveDefinition(_ context.Context, definition *models.Definition) error {
	if _, ok := s.clusters[definition.ClusterID]; !ok {
		return persistence.NewDefinitionError("SaveDefinition", definition.ID,
			persistence.NewClusterError("SaveDefinition", definition.ClusterID, persistence.ErrClusterNotFound))
	}

	for _, other := range s.definitions {
		if other.ID != definition.ID && other.ClusterID == definition.ClusterID && other.ExternalID == definition.ExternalID {
			return persistence.NewDefinitionError("SaveDefinition", definition.ExternalID, persistence.ErrDuplicateExternalID)
		}
	}

	err := stamp(&definition.ID, &definition.CreatedAt, &definition.UpdatedAt)
	if err != nil {
		return err
	}

	s.definitions[definition.ID] = cloneDefinition(definition)

	return nil
}

func (s *state) DeleteDefinitions(_ context.Context, ids []string) error {
	for _, id := range ids {
		delete(s.definitions, id)

		for runID, run := range s.runs {
			if run.DefinitionID == id {
				delete(s.runs, runID)
			}
		}
	}

	return nil
}

func (s *state) RunsByDefinition(_ context.Context, definitionID string) ([]*models.Run, error) {
	runs := make([]*models.Run, 0)

	for _, run := range s.runs {
		if run.DefinitionID == definitionID {
			runs = append(runs, cloneRun(run))
		}
	}

	slices.SortFunc(runs, func(a, b *models.Run) int {
		return cmp.Or(b.ExecutionDate.Compare(a.ExecutionDate), b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(a.ID, b.ID))
	})

	return runs, nil
}

func (s *state) LatestRun(ctx context.Context, definitionID string) (*models.Run, error) {
	runs, _ := s.RunsByDefinition(ctx, definitionID)
	if len(runs) == 0 {
		return nil, persistence.NewRunError("LatestRun", definitionID, persistence.ErrRunNotFound)
	}

	return runs[0], nil
}

func (s *state) RunByID(_ context.Context, id string) (*models.Run, error) {
	run, ok := s.runs[id]
	if !ok {
		return nil, persistence.NewRunError("RunByID", id, persistence.ErrRunNotFound)
	}

	return cloneRun(run), nil
}

func (s *state) RunByExternalID(_ context.Context, definitionID, externalID string) (*models.Run, error) {
	for _, run := range s.runs {
		if run.DefinitionID == definitionID && run.ExternalID == externalID {
			return cloneRun(run), nil
		}
	}

	return nil, persistence.NewRunError("RunByExternalID", externalID, persistence.ErrRunNotFound)
}

func (s *state) LockRun(ctx context.Context, id string) (*models.Run, error) {
	return s.RunByID(ctx, id)
}

func (s *state) LockRunByWebhookToken(_ context.Context, token string) (*models.Run, error) {
	if token != "" {
		for _, run := range s.runs {
			if run.WebhookToken == token {
				return cloneRun(run), nil
			}
		}
	}

	return nil, persistence.NewRunError("LockRunByWebhookToken", "", persistence.ErrRunNotFound)
}

func (s *state) SaveRun(_ context.Context, run *models.Run) error {
	if _, ok := s.definitions[run.DefinitionID]; !ok {
		return persistence.NewRunError("SaveRun", run.ID,
			persistence.NewDefinitionError("SaveRun", run.DefinitionID, persistence.ErrDefinitionNotFound))
	}

	for _, other := range s.runs {
		if other.ID == run.ID {
			continue
		}

		if (other.DefinitionID == run.DefinitionID && other.ExternalID == run.ExternalID) ||
			(run.WebhookToken != "" && other.WebhookToken == run.WebhookToken) {
			return persistence.NewRunError("SaveRun", run.ExternalID, persistence.ErrDuplicateExternalID)
		}
	}

	err := stamp(&run.ID, &run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		return err
	}

	run.ExecutionDate = run.ExecutionDate.UTC()
	s.runs[run.ID] = cloneRun(run)

	return nil
}

func (s *state) DeleteRuns(_ context.Context, ids []string) error {
	for _, id := range ids {
		delete(s.runs, id)
	}

	return nil
}

func (s *state) filterDefinitions(keep func(*models.Definition) bool) []*models.Definition {
	definitions := make([]*models.Definition, 0)

	for _, definition := range s.definitions {
		if keep(definition) {
			definitions = append(definitions, cloneDefinition(definition))
		}
	}

	slices.SortFunc(definitions, func(a, b *models.Definition) int {
		return cmp.Or(cmp.Compare(a.ClusterID, b.ClusterID), cmp.Compare(a.ExternalID, b.ExternalID))
	})

	return definitions
}

// stamp assigns an ID to new records and refreshes timestamps.
func stamp(id *string, createdAt, updatedAt *time.Time) error {
	now := time.Now().UTC()

	if *id == "" {
		generated, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate ID: %w", err)
		}

		*id = generated.String()
	}

	if createdAt.IsZero() {
		*createdAt = now
	}

	*updatedAt = now

	return nil
}

func cloneCluster(cluster *models.Cluster) *models.Cluster {
	c := *cluster
	if cluster.LastSyncedAt != nil {
		t := *cluster.LastSyncedAt
		c.LastSyncedAt = &t
	}

	return &c
}

func cloneDefinition(definition *models.Definition) *models.Definition {
	d := *definition
	if definition.Schedule != nil {
		schedule := *definition.Schedule
		d.Schedule = &schedule
	}

	d.Config = maps.Clone(definition.Config)
	d.SampleConfig = maps.Clone(definition.SampleConfig)

	return &d
}

func cloneRun(run *models.Run) *models.Run {
	r := *run
	r.Conf = maps.Clone(run.Conf)
	r.Messages = slices.Clone(run.Messages)

	if run.LastRefreshedAt != nil {
		t := *run.LastRefreshedAt
		r.LastRefreshedAt = &t
	}

	if run.FavoriteLabel != nil {
		label := *run.FavoriteLabel
		r.FavoriteLabel = &label
	}

	return &r
}
