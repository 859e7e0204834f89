// Package events defines the lifecycle notifications published by the orchestrator.
package events

import (
	"time"

	"github.com/dukex/orchestrator/pkg/models"
)

type EventType string

// Topic carries every orchestrator event.
const Topic = "orchestrator.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	RunTriggeredEvent    EventType = "run.triggered"
	RunStateChangedEvent EventType = "run.state_changed"
	ClusterSyncedEvent   EventType = "cluster.synced"
)

// Sources of a run state change.
const (
	SourceWebhook = "webhook"
	SourceRefresh = "refresh"
	SourceSync    = "sync"
)

type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

func NewBaseEvent(id string, eventType EventType) BaseEvent {
	return BaseEvent{ID: id, Type: eventType, Timestamp: time.Now().UTC()}
}

type RunTriggered struct {
	BaseEvent

	RunID         string    `json:"run_id"`
	DefinitionID  string    `json:"definition_id"`
	ClusterID     string    `json:"cluster_id"`
	ExternalID    string    `json:"external_id"`
	ExecutionDate time.Time `json:"execution_date"`
	Kind          string    `json:"kind"`
}

func (e RunTriggered) GetType() EventType {
	return RunTriggeredEvent
}

type RunStateChanged struct {
	BaseEvent

	RunID        string          `json:"run_id"`
	DefinitionID string          `json:"definition_id"`
	From         models.RunState `json:"from"`
	To           models.RunState `json:"to"`
	Source       string          `json:"source"`
}

func (e RunStateChanged) GetType() EventType {
	return RunStateChangedEvent
}

type ClusterSynced struct {
	BaseEvent

	ClusterID string            `json:"cluster_id"`
	Mode      string            `json:"mode"`
	Result    models.SyncResult `json:"result"`
}

func (e ClusterSynced) GetType() EventType {
	return ClusterSyncedEvent
}
