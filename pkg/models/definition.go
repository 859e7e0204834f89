package models

import "time"

// Definition is a remotely executable pipeline (a DAG) owned by a cluster.
// ExternalID is the remote DAG id and is unique within the cluster.
type Definition struct {
	ID           string         `json:"id"`
	ClusterID    string         `json:"cluster_id"`
	ExternalID   string         `json:"external_id"`
	Description  string         `json:"description"`
	Schedule     *string        `json:"schedule,omitempty"`
	Config       map[string]any `json:"config,omitempty"`
	SampleConfig map[string]any `json:"sample_config,omitempty"`
	Paused       bool           `json:"paused"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Scheduled reports whether the scheduler should consider this definition.
func (d *Definition) Scheduled() bool {
	return d.Schedule != nil && *d.Schedule != "" && !d.Paused
}
