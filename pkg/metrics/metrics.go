// Package metrics exposes the orchestrator's Prometheus collectors. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/dukex/orchestrator/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "orchestrator"

// Webhook outcomes.
const (
	WebhookApplied         = "applied"
	WebhookUnauthenticated = "unauthenticated"
	WebhookInvalid         = "invalid"
	WebhookFailed          = "failed"
)

type Metrics struct {
	runsTriggered    *prometheus.CounterVec
	dispatchLag      prometheus.Histogram
	invalidSchedules prometheus.Counter
	syncRecords      *prometheus.CounterVec
	syncFailures     *prometheus.CounterVec
	webhooks         *prometheus.CounterVec
	stateChanges     *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		runsTriggered: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_triggered_total",
			Help:      "Runs triggered on remote clusters",
		}, []string{"kind", "result"}),
		dispatchLag: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scheduler_dispatch_lag_seconds",
			Help:      "Delay between a scheduled fire time and the trigger call",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		invalidSchedules: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_invalid_schedules_total",
			Help:      "Definitions skipped because of an unparsable cron expression",
		}),
		syncRecords: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_records_total",
			Help:      "Records reconciled by sync passes",
		}, []string{"mode", "outcome"}),
		syncFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_failures_total",
			Help:      "Cluster sync passes that failed",
		}, []string{"mode"}),
		webhooks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_requests_total",
			Help:      "Webhook deliveries by outcome",
		}, []string{"outcome"}),
		stateChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_state_changes_total",
			Help:      "Run state transitions by target state and source",
		}, []string{"state", "source"}),
	}
}

func (m *Metrics) RunTriggered(kind string, err error) {
	if m == nil {
		return
	}

	result := "success"
	if err != nil {
		result = "error"
	}

	m.runsTriggered.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) DispatchLag(lag time.Duration) {
	if m == nil {
		return
	}

	m.dispatchLag.Observe(max(lag, 0).Seconds())
}

func (m *Metrics) InvalidSchedule() {
	if m == nil {
		return
	}

	m.invalidSchedules.Inc()
}

func (m *Metrics) Synced(mode string, result models.SyncResult) {
	if m == nil {
		return
	}

	m.syncRecords.WithLabelValues(mode, "created").Add(float64(result.Created))
	m.syncRecords.WithLabelValues(mode, "updated").Add(float64(result.Updated))
	m.syncRecords.WithLabelValues(mode, "identical").Add(float64(result.Identical))
	m.syncRecords.WithLabelValues(mode, "orphaned").Add(float64(result.Orphaned))
}

func (m *Metrics) SyncFailed(mode string) {
	if m == nil {
		return
	}

	m.syncFailures.WithLabelValues(mode).Inc()
}

func (m *Metrics) Webhook(outcome string) {
	if m == nil {
		return
	}

	m.webhooks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) StateChanged(state models.RunState, source string) {
	if m == nil {
		return
	}

	m.stateChanges.WithLabelValues(string(state), source).Inc()
}
