// Package scheduler fires scheduled definitions. Every cycle looks one window
// ahead, orders the definitions due inside it and triggers each one at its
// fire time, correcting the sleeps for the time already spent in the cycle.
package scheduler

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/dukex/orchestrator/pkg/metrics"
	"github.com/dukex/orchestrator/pkg/models"
	"github.com/dukex/orchestrator/pkg/persistence"
	"github.com/dukex/orchestrator/pkg/services"
	"github.com/jonboulle/clockwork"
)

const DefaultWindow = 5 * time.Minute

// Store is the read side of the run state store the scheduler needs.
type Store interface {
	Definitions(ctx context.Context) ([]*models.Definition, error)
	LatestRun(ctx context.Context, definitionID string) (*models.Run, error)
}

// Triggerer starts a run of a definition.
type Triggerer interface {
	Trigger(ctx context.Context, definition *models.Definition, conf map[string]any, opts services.TriggerOptions) (*models.Run, error)
}

// Lease reports whether this process may dispatch.
type Lease interface {
	Acquire(ctx context.Context) (bool, error)
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// ClockSleep sleeps on clock.
func ClockSleep(clock clockwork.Clock) SleepFunc {
	return func(ctx context.Context, d time.Duration) error {
		timer := clock.NewTimer(d)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.Chan():
			return nil
		}
	}
}

// Dispatch is a definition due inside the current window.
type Dispatch struct {
	Definition *models.Definition
	Delay      time.Duration
	FireTime   time.Time
}

type Config struct {
	// Window is the look-ahead of one cycle. Defaults to DefaultWindow.
	Window time.Duration
	Clock  clockwork.Clock
	// Sleep defaults to ClockSleep(Clock).
	Sleep   SleepFunc
	Lease   Lease
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

type Scheduler struct {
	store   Store
	trigger Triggerer
	window  time.Duration
	clock   clockwork.Clock
	sleep   SleepFunc
	lease   Lease
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func New(store Store, trigger Triggerer, config Config) *Scheduler {
	s := &Scheduler{
		store:   store,
		trigger: trigger,
		window:  config.Window,
		clock:   config.Clock,
		sleep:   config.Sleep,
		lease:   config.Lease,
		metrics: config.Metrics,
		logger:  config.Logger,
	}

	if s.window <= 0 {
		s.window = DefaultWindow
	}

	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}

	if s.sleep == nil {
		s.sleep = ClockSleep(s.clock)
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}

	return s
}

// Run loops RunCycle until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "scheduler started", "window", s.window)

	for {
		err := s.RunCycle(ctx)
		if ctx.Err() != nil {
			s.logger.InfoContext(ctx, "scheduler stopped")

			return nil
		}

		if err != nil {
			s.logger.ErrorContext(ctx, "scheduler cycle failed", "error", err)
		}
	}
}

// RunCycle plans one window, dispatches it and sleeps until the window ends.
// Only a cancelled context makes it return early.
func (s *Scheduler) RunCycle(ctx context.Context) error {
	t0 := s.clock.Now().UTC()

	if s.holdsLease(ctx) {
		dispatches, err := s.Plan(ctx, t0)
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to plan scheduler cycle", "error", err)
		}

		for _, dispatch := range dispatches {
			err := s.dispatch(ctx, t0, dispatch)
			if err != nil {
				return err
			}
		}
	}

	remaining := s.window - s.clock.Since(t0)
	if remaining > 0 {
		return s.sleep(ctx, remaining)
	}

	return ctx.Err()
}

// Plan returns the definitions firing before t0+window, earliest first.
// Definitions whose fire time already passed are due immediately.
func (s *Scheduler) Plan(ctx context.Context, t0 time.Time) ([]Dispatch, error) {
	definitions, err := s.store.Definitions(ctx)
	if err != nil {
		return nil, err
	}

	var dispatches []Dispatch

	for _, definition := range definitions {
		if !definition.Scheduled() {
			continue
		}

		reference := t0.UTC()

		latest, err := s.store.LatestRun(ctx, definition.ID)

		switch {
		case err == nil:
			reference = latest.ExecutionDate
		case !persistence.IsRunNotFound(err):
			s.logger.ErrorContext(ctx, "failed to load latest run", "definition_id", definition.ID, "error", err)

			continue
		}

		fireTime, err := definition.NextFireTime(reference)
		if err != nil {
			s.metrics.InvalidSchedule()
			s.logger.WarnContext(ctx, "skipping definition with invalid schedule",
				"definition_id", definition.ID, "dag_id", definition.ExternalID, "error", err)

			continue
		}

		delay := fireTime.Sub(t0)
		if delay < s.window {
			dispatches = append(dispatches, Dispatch{Definition: definition, Delay: delay, FireTime: fireTime})
		}
	}

	slices.SortStableFunc(dispatches, func(a, b Dispatch) int {
		return cmp.Compare(a.Delay, b.Delay)
	})

	return dispatches, nil
}

func (s *Scheduler) dispatch(ctx context.Context, t0 time.Time, dispatch Dispatch) error {
	corrected := dispatch.Delay - s.clock.Since(t0)
	if corrected > 0 {
		err := s.sleep(ctx, corrected)
		if err != nil {
			return err
		}
	}

	s.metrics.DispatchLag(s.clock.Since(dispatch.FireTime))

	run, err := s.trigger.Trigger(ctx, dispatch.Definition, nil, services.TriggerOptions{
		ExecutionDate: dispatch.FireTime,
		Kind:          services.RunKindScheduled,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to trigger scheduled run",
			"definition_id", dispatch.Definition.ID, "fire_time", dispatch.FireTime, "error", err)

		return nil
	}

	s.logger.InfoContext(ctx, "scheduled run dispatched",
		"definition_id", dispatch.Definition.ID, "run_id", run.ID, "fire_time", dispatch.FireTime)

	return nil
}

func (s *Scheduler) holdsLease(ctx context.Context) bool {
	if s.lease == nil {
		return true
	}

	held, err := s.lease.Acquire(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to acquire scheduler lease", "error", err)

		return false
	}

	if !held {
		s.logger.DebugContext(ctx, "scheduler lease held by another process")
	}

	return held
}
