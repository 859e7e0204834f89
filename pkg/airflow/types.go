package airflow

import "time"

// DAG is a pipeline definition as reported by the remote engine.
type DAG struct {
	DAGID       string  `json:"dag_id"`
	Description *string `json:"description"`
	IsPaused    bool    `json:"is_paused"`
	IsActive    bool    `json:"is_active"`
	Tags        []Tag   `json:"tags"`
}

type Tag struct {
	Name string `json:"name"`
}

// DAGRun is one remote execution of a DAG.
type DAGRun struct {
	DAGRunID      string         `json:"dag_run_id"`
	DAGID         string         `json:"dag_id"`
	ExecutionDate time.Time      `json:"execution_date"`
	State         string         `json:"state"`
	Conf          map[string]any `json:"conf"`
	StartDate     *time.Time     `json:"start_date"`
	EndDate       *time.Time     `json:"end_date"`
}

// TriggerRequest is the body of POST /dags/{id}/dagRuns.
type TriggerRequest struct {
	DAGRunID      string         `json:"dag_run_id"`
	ExecutionDate time.Time      `json:"execution_date"`
	Conf          map[string]any `json:"conf"`
}

type TaskInstance struct {
	TaskID     string     `json:"task_id"`
	State      *string    `json:"state"`
	TryNumber  int        `json:"try_number"`
	StartDate  *time.Time `json:"start_date"`
	EndDate    *time.Time `json:"end_date"`
	Duration   *float64   `json:"duration"`
	Operator   string     `json:"operator"`
	Hostname   string     `json:"hostname"`
	MapIndex   int        `json:"map_index"`
	PoolSlots  int        `json:"pool_slots"`
	QueuedWhen *time.Time `json:"queued_when"`
}

type Variable struct {
	Key         string  `json:"key"`
	Value       string  `json:"value"`
	Description *string `json:"description,omitempty"`
}

type dagCollection struct {
	DAGs         []DAG `json:"dags"`
	TotalEntries int   `json:"total_entries"`
}

type dagRunCollection struct {
	DAGRuns      []DAGRun `json:"dag_runs"`
	TotalEntries int      `json:"total_entries"`
}

type taskInstanceCollection struct {
	TaskInstances []TaskInstance `json:"task_instances"`
	TotalEntries  int            `json:"total_entries"`
}

type variableCollection struct {
	Variables    []Variable `json:"variables"`
	TotalEntries int        `json:"total_entries"`
}
