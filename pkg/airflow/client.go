// Package airflow is a thin client for the Airflow stable REST API. Every
// method maps to one HTTP round trip and never retries; retry policy belongs
// to callers.
package airflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dukex/orchestrator/pkg/models"
	"github.com/dukex/orchestrator/pkg/otelhelper"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultPageLimit = 100

	maxErrorDetail = 512
)

var ErrInvalidBaseURL = errors.New("invalid cluster base URL")

// Options configures clients built for a cluster.
type Options struct {
	Timeout   time.Duration
	Transport http.RoundTripper
}

// Client talks to the API of one cluster using its basic credentials.
type Client struct {
	baseURL  *url.URL
	username string
	password string
	http     *http.Client
	tracer   trace.Tracer
}

// NewClient builds a client for cluster.
func NewClient(cluster *models.Cluster, opts Options) (*Client, error) {
	base, err := url.Parse(cluster.URL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, cluster.URL)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	return &Client{
		baseURL:  base,
		username: cluster.Username,
		password: cluster.Password,
		http: &http.Client{
			Transport: otelhttp.NewTransport(transport),
			Timeout:   timeout,
		},
		tracer: otelhelper.Tracer("github.com/dukex/orchestrator/pkg/airflow"),
	}, nil
}

// ListDAGs returns the DAGs known to the cluster.
func (c *Client) ListDAGs(ctx context.Context) ([]DAG, error) {
	var out dagCollection

	err := c.do(ctx, "list_dags", http.MethodGet, c.endpoint(nil, "dags"), nil, &out)
	if err != nil {
		return nil, err
	}

	return out.DAGs, nil
}

// ListDAGRuns returns the most recent runs of a DAG ordered by end date. With
// all set, pages are fetched by offset until total_entries is reached or a
// page comes back short.
func (c *Client) ListDAGRuns(ctx context.Context, dagID string, limit int, all bool) ([]DAGRun, error) {
	if limit <= 0 {
		limit = DefaultPageLimit
	}

	var runs []DAGRun

	for offset := 0; ; offset += limit {
		query := url.Values{
			"order_by": {"-end_date"},
			"limit":    {strconv.Itoa(limit)},
			"offset":   {strconv.Itoa(offset)},
		}

		var page dagRunCollection

		err := c.do(ctx, "list_dag_runs", http.MethodGet, c.endpoint(query, "dags", dagID, "dagRuns"), nil, &page)
		if err != nil {
			return nil, err
		}

		runs = append(runs, page.DAGRuns...)

		if !all || len(page.DAGRuns) < limit || len(runs) >= page.TotalEntries {
			return runs, nil
		}
	}
}

// ListRecentDAGRuns returns the latest runs across every DAG of the cluster.
func (c *Client) ListRecentDAGRuns(ctx context.Context, limit int) ([]DAGRun, error) {
	if limit <= 0 {
		limit = DefaultPageLimit
	}

	query := url.Values{
		"order_by": {"-execution_date"},
		"limit":    {strconv.Itoa(limit)},
	}

	var out dagRunCollection

	err := c.do(ctx, "list_recent_dag_runs", http.MethodGet, c.endpoint(query, "dags", "~", "dagRuns"), nil, &out)
	if err != nil {
		return nil, err
	}

	return out.DAGRuns, nil
}

// TriggerDAGRun creates a new run of dagID.
func (c *Client) TriggerDAGRun(ctx context.Context, dagID string, req TriggerRequest) (*DAGRun, error) {
	var out DAGRun

	err := c.do(ctx, "trigger_dag_run", http.MethodPost, c.endpoint(nil, "dags", dagID, "dagRuns"), req, &out)
	if err != nil {
		return nil, err
	}

	return &out, nil
}

func (c *Client) GetDAGRun(ctx context.Context, dagID, runID string) (*DAGRun, error) {
	var out DAGRun

	err := c.do(ctx, "get_dag_run", http.MethodGet, c.endpoint(nil, "dags", dagID, "dagRuns", runID), nil, &out)
	if err != nil {
		return nil, err
	}

	return &out, nil
}

func (c *Client) ListTaskInstances(ctx context.Context, dagID, runID string) ([]TaskInstance, error) {
	var out taskInstanceCollection

	err := c.do(ctx, "list_task_instances", http.MethodGet,
		c.endpoint(nil, "dags", dagID, "dagRuns", runID, "taskInstances"), nil, &out)
	if err != nil {
		return nil, err
	}

	return out.TaskInstances, nil
}

// GetTaskLog returns the plain-text log of the first try of a task.
func (c *Client) GetTaskLog(ctx context.Context, dagID, runID, taskID string) (string, error) {
	var out bytes.Buffer

	err := c.do(ctx, "get_task_log", http.MethodGet,
		c.endpoint(nil, "dags", dagID, "dagRuns", runID, "taskInstances", taskID, "logs", "1"), nil, &out)
	if err != nil {
		return "", err
	}

	return out.String(), nil
}

func (c *Client) ListVariables(ctx context.Context) ([]Variable, error) {
	var out variableCollection

	err := c.do(ctx, "list_variables", http.MethodGet, c.endpoint(nil, "variables"), nil, &out)
	if err != nil {
		return nil, err
	}

	return out.Variables, nil
}

func (c *Client) GetVariable(ctx context.Context, key string) (*Variable, error) {
	var out Variable

	err := c.do(ctx, "get_variable", http.MethodGet, c.endpoint(nil, "variables", key), nil, &out)
	if err != nil {
		return nil, err
	}

	return &out, nil
}

func (c *Client) CreateVariable(ctx context.Context, key, value string) error {
	return c.do(ctx, "create_variable", http.MethodPost, c.endpoint(nil, "variables"),
		Variable{Key: key, Value: value}, nil)
}

func (c *Client) UpdateVariable(ctx context.Context, key, value string) error {
	return c.do(ctx, "update_variable", http.MethodPatch, c.endpoint(nil, "variables", key),
		Variable{Key: key, Value: value}, nil)
}

// UpsertVariable updates key, creating it when the cluster does not know it.
func (c *Client) UpsertVariable(ctx context.Context, key, value string) error {
	_, err := c.GetVariable(ctx, key)
	if IsNotFound(err) {
		return c.CreateVariable(ctx, key, value)
	}

	if err != nil {
		return err
	}

	return c.UpdateVariable(ctx, key, value)
}

// SetPaused pauses or resumes a DAG.
func (c *Client) SetPaused(ctx context.Context, dagID string, paused bool) error {
	query := url.Values{"update_mask": {"is_paused"}}

	return c.do(ctx, "set_paused", http.MethodPatch, c.endpoint(query, "dags", dagID),
		map[string]bool{"is_paused": paused}, nil)
}

func (c *Client) endpoint(query url.Values, elems ...string) string {
	escaped := make([]string, len(elems))
	for i, elem := range elems {
		escaped[i] = url.PathEscape(elem)
	}

	u := c.baseURL.JoinPath(escaped...)
	if query != nil {
		u.RawQuery = query.Encode()
	}

	return u.String()
}

// do performs one request. out may be nil, a *bytes.Buffer for raw bodies or
// a value to decode JSON into.
func (c *Client) do(ctx context.Context, operation, method, endpoint string, body, out any) error {
	ctx, span := otelhelper.StartSpan(ctx, c.tracer, "airflow."+operation,
		attribute.String(otelhelper.OperationKey, operation))
	defer span.End()

	remoteErr := func(status int, detail string, err error) error {
		rerr := &RemoteExecutionError{
			Operation:  operation,
			Method:     method,
			URL:        endpoint,
			StatusCode: status,
			Detail:     detail,
			Err:        err,
		}
		otelhelper.SetError(span, rerr)

		return rerr
	}

	var reader io.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", operation, err)
		}

		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return remoteErr(0, "", err)
	}

	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if _, raw := out.(*bytes.Buffer); raw {
		req.Header.Set("Accept", "text/plain")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return remoteErr(0, "", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorDetail))

		return remoteErr(resp.StatusCode, string(bytes.TrimSpace(detail)), nil)
	}

	switch dst := out.(type) {
	case nil:
		_, _ = io.Copy(io.Discard, resp.Body)
	case *bytes.Buffer:
		if _, err := dst.ReadFrom(resp.Body); err != nil {
			return remoteErr(resp.StatusCode, "", err)
		}
	default:
		if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
			return remoteErr(resp.StatusCode, "invalid response body", err)
		}
	}

	return nil
}
