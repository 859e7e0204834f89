package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// WebhookEventType discriminates the payload of a webhook event.
type WebhookEventType string

const (
	WebhookStatusUpdate   WebhookEventType = "status_update"
	WebhookProgressUpdate WebhookEventType = "progress_update"
	WebhookLogMessage     WebhookEventType = "log_message"
)

var (
	ErrUnknownEventType = errors.New("unknown webhook event type")
	ErrInvalidEventData = errors.New("invalid webhook event data")
)

// WebhookEvent is the JSON body a pipeline posts back to the orchestrator.
type WebhookEvent struct {
	ID      string           `json:"id"`
	Object  string           `json:"object"`
	Created float64          `json:"created"`
	Type    WebhookEventType `json:"type"`
	Data    json.RawMessage  `json:"data"`
}

// Update is one of StatusUpdate, ProgressUpdate or LogMessageUpdate.
type Update interface {
	updateType() WebhookEventType
}

type StatusUpdate struct {
	Status string `json:"status"`
}

type ProgressUpdate struct {
	Progress int `json:"progress"`
}

type LogMessageUpdate struct {
	Priority string `json:"priority"`
	Message  string `json:"message"`
}

func (StatusUpdate) updateType() WebhookEventType     { return WebhookStatusUpdate }
func (ProgressUpdate) updateType() WebhookEventType   { return WebhookProgressUpdate }
func (LogMessageUpdate) updateType() WebhookEventType { return WebhookLogMessage }

// Decode returns the typed update carried by the event.
func (e WebhookEvent) Decode() (Update, error) {
	switch e.Type {
	case WebhookStatusUpdate:
		var u StatusUpdate
		if err := e.decodeData(&u); err != nil {
			return nil, err
		}

		if _, err := ParseRunState(u.Status); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidEventData, err)
		}

		return u, nil
	case WebhookProgressUpdate:
		var u ProgressUpdate
		if err := e.decodeData(&u); err != nil {
			return nil, err
		}

		return u, nil
	case WebhookLogMessage:
		var u LogMessageUpdate
		if err := e.decodeData(&u); err != nil {
			return nil, err
		}

		return u, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, e.Type)
	}
}

func (e WebhookEvent) decodeData(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%w: missing data", ErrInvalidEventData)
	}

	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEventData, err)
	}

	return nil
}
