package web_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dukex/orchestrator/pkg/airflow"
	"github.com/dukex/orchestrator/pkg/metrics"
	"github.com/dukex/orchestrator/pkg/models"
	"github.com/dukex/orchestrator/pkg/persistence/file"
	"github.com/dukex/orchestrator/pkg/services"
	"github.com/dukex/orchestrator/pkg/signing"
	"github.com/dukex/orchestrator/pkg/testutil"
	"github.com/dukex/orchestrator/pkg/web"
	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// fakeAirflow is a minimal Airflow REST API keeping triggered runs in memory.
type fakeAirflow struct {
	mu        sync.Mutex
	dags      []airflow.DAG
	runs      map[string]*airflow.DAGRun
	variables map[string]string
	paused    map[string]bool
}

func newFakeAirflow(t *testing.T, dagIDs ...string) (*fakeAirflow, *httptest.Server) {
	t.Helper()

	fake := &fakeAirflow{
		runs:      make(map[string]*airflow.DAGRun),
		variables: map[string]string{"region": "eu"},
		paused:    make(map[string]bool),
	}

	for _, id := range dagIDs {
		fake.dags = append(fake.dags, airflow.DAG{DAGID: id, IsActive: true})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/dags", fake.listDAGs)
	mux.HandleFunc("PATCH /api/v1/dags/{dag}", fake.patchDAG)
	mux.HandleFunc("GET /api/v1/dags/{dag}/dagRuns", fake.listRuns)
	mux.HandleFunc("POST /api/v1/dags/{dag}/dagRuns", fake.trigger)
	mux.HandleFunc("GET /api/v1/dags/{dag}/dagRuns/{run}", fake.getRun)
	mux.HandleFunc("GET /api/v1/dags/{dag}/dagRuns/{run}/taskInstances", fake.taskInstances)
	mux.HandleFunc("GET /api/v1/dags/{dag}/dagRuns/{run}/taskInstances/{task}/logs/1", fake.taskLog)
	mux.HandleFunc("GET /api/v1/variables", fake.listVariables)
	mux.HandleFunc("GET /api/v1/variables/{key}", fake.getVariable)
	mux.HandleFunc("POST /api/v1/variables", fake.putVariable)
	mux.HandleFunc("PATCH /api/v1/variables/{key}", fake.putVariable)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return fake, server
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeAirflow) listDAGs(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	writeJSON(w, map[string]any{"dags": f.dags, "total_entries": len(f.dags)})
}

func (f *fakeAirflow) patchDAG(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IsPaused bool `json:"is_paused"`
	}

	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	f.paused[r.PathValue("dag")] = body.IsPaused
	f.mu.Unlock()

	writeJSON(w, airflow.DAG{DAGID: r.PathValue("dag"), IsPaused: body.IsPaused})
}

func (f *fakeAirflow) listRuns(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	runs := []airflow.DAGRun{}

	for _, run := range f.runs {
		if run.DAGID == r.PathValue("dag") {
			runs = append(runs, *run)
		}
	}

	writeJSON(w, map[string]any{"dag_runs": runs, "total_entries": len(runs)})
}

func (f *fakeAirflow) trigger(w http.ResponseWriter, r *http.Request) {
	var req airflow.TriggerRequest

	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)

		return
	}

	run := &airflow.DAGRun{
		DAGRunID:      req.DAGRunID,
		DAGID:         r.PathValue("dag"),
		ExecutionDate: req.ExecutionDate,
		State:         "queued",
		Conf:          req.Conf,
	}

	f.mu.Lock()
	f.runs[run.DAGRunID] = run
	f.mu.Unlock()

	writeJSON(w, run)
}

func (f *fakeAirflow) getRun(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	run, ok := f.runs[r.PathValue("run")]
	if !ok {
		http.NotFound(w, r)

		return
	}

	writeJSON(w, run)
}

func (f *fakeAirflow) taskInstances(w http.ResponseWriter, _ *http.Request) {
	state := "success"

	writeJSON(w, map[string]any{
		"task_instances": []airflow.TaskInstance{{TaskID: "extract", State: &state, TryNumber: 1}},
		"total_entries":  1,
	})
}

func (f *fakeAirflow) taskLog(w http.ResponseWriter, r *http.Request) {
	if r.PathValue("task") != "extract" {
		http.NotFound(w, r)

		return
	}

	_, _ = io.WriteString(w, "extracting\ndone\n")
}

func (f *fakeAirflow) listVariables(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	variables := []airflow.Variable{}
	for key, value := range f.variables {
		variables = append(variables, airflow.Variable{Key: key, Value: value})
	}

	writeJSON(w, map[string]any{"variables": variables, "total_entries": len(variables)})
}

func (f *fakeAirflow) getVariable(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	value, ok := f.variables[r.PathValue("key")]
	if !ok {
		http.NotFound(w, r)

		return
	}

	writeJSON(w, airflow.Variable{Key: r.PathValue("key"), Value: value})
}

func (f *fakeAirflow) putVariable(w http.ResponseWriter, r *http.Request) {
	var v airflow.Variable

	_ = json.NewDecoder(r.Body).Decode(&v)

	f.mu.Lock()
	f.variables[v.Key] = v.Value
	f.mu.Unlock()

	writeJSON(w, v)
}

func (f *fakeAirflow) setState(dagRunID, state string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.runs[dagRunID].State = state
}

// confOf returns the conf the orchestrator sent with a triggered run.
func (f *fakeAirflow) confOf(t *testing.T, dagRunID string) map[string]any {
	t.Helper()

	f.mu.Lock()
	defer f.mu.Unlock()

	run, ok := f.runs[dagRunID]
	require.True(t, ok, "run %s was not triggered", dagRunID)

	return run.Conf
}

type testEnv struct {
	app        *fiber.App
	store      *file.Persistence
	airflow    *fakeAirflow
	cluster    *models.Cluster
	definition *models.Definition
	signer     *signing.Signer
}

func setupTestApp(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := file.NewPersistence(logger, file.MemoryURL)
	require.NoError(t, err)

	fake, server := newFakeAirflow(t, "etl")

	cluster := testutil.CreateTestCluster(testutil.WithClusterURL(server.URL + "/api/v1"))
	require.NoError(t, store.SaveCluster(t.Context(), cluster))

	definition := testutil.CreateTestDefinition(cluster.ID, testutil.WithConfig(map[string]any{"mode": "full"}))
	require.NoError(t, store.SaveDefinition(t.Context(), definition))

	signer, err := signing.NewSigner(testSecret, "webhook")
	require.NoError(t, err)

	issuer, err := signing.NewIdentityIssuer(testSecret, time.Hour)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	deps := services.Deps{
		Persistence: store,
		Remotes:     services.AirflowRemotes(airflow.Options{Timeout: 5 * time.Second}),
		Metrics:     m,
		Logger:      logger,
	}

	app, err := web.NewApp(web.Config{
		Runs: services.NewRuns(deps, services.RunsConfig{
			Signer:      signer,
			Identity:    issuer,
			WebhookURL:  "http://orchestrator.local/webhook",
			TokenMaxAge: time.Hour,
		}),
		Sync:     services.NewSync(deps),
		Clusters: services.NewClusters(deps),
		Metrics:  m,
		Gatherer: reg,
		Logger:   logger,
	})
	require.NoError(t, err)

	return &testEnv{
		app:        app,
		store:      store,
		airflow:    fake,
		cluster:    cluster,
		definition: definition,
		signer:     signer,
	}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader

	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		payload, err := json.Marshal(b)
		require.NoError(t, err)

		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, payload
}

// trigger starts a manual run through the API and returns it with the
// webhook envelope handed to the pipeline.
func (e *testEnv) trigger(t *testing.T) (*models.Run, string) {
	t.Helper()

	resp, body := e.do(t, http.MethodPost, "/definitions/"+e.definition.ID+"/runs", "", web.TriggerRunRequest{
		Conf: map[string]any{"country": "BE"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var run models.Run
	require.NoError(t, json.Unmarshal(body, &run))

	envelope, ok := e.airflow.confOf(t, run.ExternalID)[services.ConfWebhookToken].(string)
	require.True(t, ok)

	return &run, envelope
}

func (e *testEnv) storedRun(t *testing.T, id string) *models.Run {
	t.Helper()

	run, err := e.store.RunByID(t.Context(), id)
	require.NoError(t, err)

	return run
}
