package mocks

import (
	"context"

	"github.com/dukex/orchestrator/pkg/airflow"
	"github.com/stretchr/testify/mock"
)

// MockRemote is a mock implementation of services.Remote.
type MockRemote struct {
	mock.Mock
}

func (m *MockRemote) ListDAGs(ctx context.Context) ([]airflow.DAG, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]airflow.DAG), args.Error(1)
}

func (m *MockRemote) ListDAGRuns(ctx context.Context, dagID string, limit int, all bool) ([]airflow.DAGRun, error) {
	args := m.Called(ctx, dagID, limit, all)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]airflow.DAGRun), args.Error(1)
}

func (m *MockRemote) ListRecentDAGRuns(ctx context.Context, limit int) ([]airflow.DAGRun, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]airflow.DAGRun), args.Error(1)
}

func (m *MockRemote) TriggerDAGRun(ctx context.Context, dagID string, req airflow.TriggerRequest) (*airflow.DAGRun, error) {
	args := m.Called(ctx, dagID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*airflow.DAGRun), args.Error(1)
}

func (m *MockRemote) GetDAGRun(ctx context.Context, dagID, runID string) (*airflow.DAGRun, error) {
	args := m.Called(ctx, dagID, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*airflow.DAGRun), args.Error(1)
}

func (m *MockRemote) ListTaskInstances(ctx context.Context, dagID, runID string) ([]airflow.TaskInstance, error) {
	args := m.Called(ctx, dagID, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]airflow.TaskInstance), args.Error(1)
}

func (m *MockRemote) GetTaskLog(ctx context.Context, dagID, runID, taskID string) (string, error) {
	args := m.Called(ctx, dagID, runID, taskID)

	return args.String(0), args.Error(1)
}

func (m *MockRemote) ListVariables(ctx context.Context) ([]airflow.Variable, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]airflow.Variable), args.Error(1)
}

func (m *MockRemote) UpsertVariable(ctx context.Context, key, value string) error {
	args := m.Called(ctx, key, value)

	return args.Error(0)
}

func (m *MockRemote) SetPaused(ctx context.Context, dagID string, paused bool) error {
	args := m.Called(ctx, dagID, paused)

	return args.Error(0)
}
