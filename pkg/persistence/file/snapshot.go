package file

import (
	"cmp"
	"slices"

	"github.com/dukex/orchestrator/pkg/models"
)

// snapshot is the on-disk document. Secrets hidden from API responses are
// persisted through the record wrappers.
type snapshot struct {
	Clusters    []clusterRecord      `json:"clusters"`
	Definitions []*models.Definition `json:"definitions"`
	Runs        []runRecord          `json:"runs"`
}

type clusterRecord struct {
	models.Cluster

	Password string `json:"password,omitempty"`
}

type runRecord struct {
	models.Run

	WebhookToken string `json:"webhook_token,omitempty"`
}

func (s *state) snapshot() snapshot {
	snap := snapshot{
		Clusters:    make([]clusterRecord, 0, len(s.clusters)),
		Definitions: make([]*models.Definition, 0, len(s.definitions)),
		Runs:        make([]runRecord, 0, len(s.runs)),
	}

	for _, cluster := range s.clusters {
		snap.Clusters = append(snap.Clusters, clusterRecord{Cluster: *cluster, Password: cluster.Password})
	}

	for _, definition := range s.definitions {
		snap.Definitions = append(snap.Definitions, definition)
	}

	for _, run := range s.runs {
		snap.Runs = append(snap.Runs, runRecord{Run: *run, WebhookToken: run.WebhookToken})
	}

	slices.SortFunc(snap.Clusters, func(a, b clusterRecord) int { return cmp.Compare(a.ID, b.ID) })
	slices.SortFunc(snap.Definitions, func(a, b *models.Definition) int { return cmp.Compare(a.ID, b.ID) })
	slices.SortFunc(snap.Runs, func(a, b runRecord) int { return cmp.Compare(a.ID, b.ID) })

	return snap
}

func (snap snapshot) state() *state {
	s := newState()

	for _, record := range snap.Clusters {
		cluster := record.Cluster
		cluster.Password = record.Password
		s.clusters[cluster.ID] = &cluster
	}

	for _, definition := range snap.Definitions {
		s.definitions[definition.ID] = definition
	}

	for _, record := range snap.Runs {
		run := record.Run
		run.WebhookToken = record.WebhookToken
		s.runs[run.ID] = &run
	}

	return s
}
