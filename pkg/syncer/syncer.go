// Package syncer keeps local runs close to their clusters between full syncs.
package syncer

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukex/orchestrator/pkg/models"
	"github.com/dukex/orchestrator/pkg/services"
	"github.com/jonboulle/clockwork"
)

const (
	DefaultInterval      = time.Minute
	DefaultFullSyncEvery = time.Hour
	DefaultLimit         = 100
)

type Store interface {
	Clusters(ctx context.Context) ([]*models.Cluster, error)
}

// Reconciler is implemented by *services.Sync.
type Reconciler interface {
	Cluster(ctx context.Context, clusterID string) (models.SyncResult, error)
	Incremental(ctx context.Context, cluster *models.Cluster, limit int) (models.SyncResult, error)
}

type Lease interface {
	Acquire(ctx context.Context) (bool, error)
}

type Config struct {
	Interval time.Duration
	// FullSyncEvery bounds how often clusters with AutoSync get a full sync.
	FullSyncEvery time.Duration
	// Limit is the number of recent runs fetched per incremental pass.
	Limit  int
	Clock  clockwork.Clock
	Lease  Lease
	Logger *slog.Logger
}

// Syncer runs an incremental sync of every cluster each interval. Clusters
// with AutoSync get a full sync instead once their last one is older than
// FullSyncEvery.
type Syncer struct {
	store      Store
	reconciler Reconciler
	config     Config
}

func New(store Store, reconciler Reconciler, config Config) *Syncer {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}

	if config.FullSyncEvery <= 0 {
		config.FullSyncEvery = DefaultFullSyncEvery
	}

	if config.Limit <= 0 {
		config.Limit = DefaultLimit
	}

	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}

	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Syncer{store: store, reconciler: reconciler, config: config}
}

func (s *Syncer) Run(ctx context.Context) error {
	s.config.Logger.InfoContext(ctx, "syncer started",
		"interval", s.config.Interval, "full_sync_every", s.config.FullSyncEvery, "limit", s.config.Limit)

	ticker := s.config.Clock.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		s.RunOnce(ctx)

		select {
		case <-ctx.Done():
			s.config.Logger.InfoContext(ctx, "syncer stopped")

			return nil
		case <-ticker.Chan():
		}
	}
}

// RunOnce syncs every cluster once. Failures are logged and do not stop the
// pass.
func (s *Syncer) RunOnce(ctx context.Context) models.SyncResult {
	var total models.SyncResult

	if s.config.Lease != nil {
		held, err := s.config.Lease.Acquire(ctx)
		if err != nil {
			s.config.Logger.ErrorContext(ctx, "failed to acquire syncer lease", "error", err)

			return total
		}

		if !held {
			return total
		}
	}

	clusters, err := s.store.Clusters(ctx)
	if err != nil {
		s.config.Logger.ErrorContext(ctx, "failed to list clusters", "error", err)

		return total
	}

	for _, cluster := range clusters {
		if ctx.Err() != nil {
			return total
		}

		var (
			result models.SyncResult
			mode   = services.SyncModeIncremental
		)

		if s.fullSyncDue(cluster) {
			mode = services.SyncModeFull
			result, err = s.reconciler.Cluster(ctx, cluster.ID)
		} else {
			result, err = s.reconciler.Incremental(ctx, cluster, s.config.Limit)
		}

		if err != nil {
			s.config.Logger.ErrorContext(ctx, "cluster sync failed", "cluster_id", cluster.ID, "mode", mode, "error", err)

			continue
		}

		total = total.Add(result)
	}

	return total
}

func (s *Syncer) fullSyncDue(cluster *models.Cluster) bool {
	if !cluster.AutoSync {
		return false
	}

	return cluster.LastSyncedAt == nil || s.config.Clock.Since(*cluster.LastSyncedAt) >= s.config.FullSyncEvery
}
