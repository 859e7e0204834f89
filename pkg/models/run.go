package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// RunState is the local state of a pipeline run.
type RunState string

const (
	RunStateQueued  RunState = "queued"
	RunStateRunning RunState = "running"
	RunStateSuccess RunState = "success"
	RunStateFailed  RunState = "failed"
)

// RunStatus is the generic display status derived from RunState.
type RunStatus string

const (
	RunStatusPending RunStatus = "PENDING"
	RunStatusRunning RunStatus = "RUNNING"
	RunStatusSuccess RunStatus = "SUCCESS"
	RunStatusError   RunStatus = "ERROR"
	RunStatusUnknown RunStatus = "UNKNOWN"
)

var ErrUnknownRunState = errors.New("unknown run state")

// ParseRunState maps the remote engine vocabulary onto a RunState.
func ParseRunState(value string) (RunState, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "queued":
		return RunStateQueued, nil
	case "running", "started":
		return RunStateRunning, nil
	case "success":
		return RunStateSuccess, nil
	case "failed", "failure", "error":
		return RunStateFailed, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRunState, value)
	}
}

// IsTerminal reports whether no further transition is allowed out of s.
func (s RunState) IsTerminal() bool {
	return s == RunStateSuccess || s == RunStateFailed
}

// rank orders states along queued, running, terminal.
func (s RunState) rank() int {
	switch {
	case s == RunStateQueued:
		return 0
	case s == RunStateRunning:
		return 1
	case s.IsTerminal():
		return 2
	default:
		return -1
	}
}

func (s RunState) Status() RunStatus {
	switch s {
	case RunStateQueued:
		return RunStatusPending
	case RunStateRunning:
		return RunStatusRunning
	case RunStateSuccess:
		return RunStatusSuccess
	case RunStateFailed:
		return RunStatusError
	default:
		return RunStatusUnknown
	}
}

// Log message priorities accepted from pipelines.
const (
	PriorityDebug    = "DEBUG"
	PriorityInfo     = "INFO"
	PriorityWarning  = "WARNING"
	PriorityError    = "ERROR"
	PriorityCritical = "CRITICAL"
)

// LogMessage is one entry of a run's message stream.
type LogMessage struct {
	Priority  string    `json:"priority"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Run is one execution attempt of a Definition.
type Run struct {
	ID              string         `json:"id"`
	DefinitionID    string         `json:"definition_id"`
	ExternalID      string         `json:"external_id"`
	ExecutionDate   time.Time      `json:"execution_date"`
	State           RunState       `json:"state"`
	Conf            map[string]any `json:"conf,omitempty"`
	WebhookToken    string         `json:"-"`
	Messages        []LogMessage   `json:"messages"`
	Progress        int            `json:"progress"`
	LastRefreshedAt *time.Time     `json:"last_refreshed_at,omitempty"`
	FavoriteLabel   *string        `json:"favorite_label,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

func (r *Run) Status() RunStatus {
	return r.State.Status()
}

func (r *Run) IsTerminal() bool {
	return r.State.IsTerminal()
}

// Transition moves the run forward to state. Terminal runs never change and
// a running run is never requeued. It returns true when the state changed.
func (r *Run) Transition(state RunState) bool {
	if r.State.IsTerminal() || r.State == state || state.rank() < r.State.rank() {
		return false
	}

	r.State = state

	return true
}

// SetProgress stores progress clamped to [0, 100].
func (r *Run) SetProgress(progress int) {
	r.Progress = min(max(progress, 0), 100)
}

func (r *Run) AppendMessage(priority, message string, at time.Time) {
	r.Messages = append(r.Messages, LogMessage{
		Priority:  normalizePriority(priority),
		Message:   message,
		Timestamp: at,
	})
}

func normalizePriority(priority string) string {
	p := strings.ToUpper(strings.TrimSpace(priority))
	switch p {
	case PriorityDebug, PriorityInfo, PriorityWarning, PriorityError, PriorityCritical:
		return p
	default:
		return PriorityInfo
	}
}
