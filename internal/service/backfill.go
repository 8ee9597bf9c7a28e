package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// RouteComputer runs the route calculator over every stored row.
type RouteComputer interface {
	ComputeAll(ctx context.Context) (RouteSummary, error)
}

// PendingSweeper drops abandoned upload decisions.
type PendingSweeper interface {
	ExpirePending(ttl time.Duration) int
}

// BackfillJob recomputes distances in the background. Triggers arriving while
// a run is in progress collapse into a single follow-up run.
type BackfillJob struct {
	routes     RouteComputer
	sweeper    PendingSweeper
	pendingTTL time.Duration
	logger     *slog.Logger

	trigger chan struct{}
	cron    *cron.Cron
}

// NewBackfillJob constructs a BackfillJob. sweeper may be nil.
func NewBackfillJob(routes RouteComputer, sweeper PendingSweeper, pendingTTL time.Duration, logger *slog.Logger) *BackfillJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &BackfillJob{
		routes:     routes,
		sweeper:    sweeper,
		pendingTTL: pendingTTL,
		logger:     logger,
		trigger:    make(chan struct{}, 1),
	}
}

// Trigger requests a run without blocking.
func (j *BackfillJob) Trigger() {
	select {
	case j.trigger <- struct{}{}:
	default:
	}
}

// Schedule registers a periodic trigger and pending sweep using a cron spec
// such as "@every 1h". An empty spec schedules nothing.
func (j *BackfillJob) Schedule(spec string) error {
	if spec == "" {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(spec, j.tick); err != nil {
		return fmt.Errorf("service.BackfillJob.Schedule: %q: %w", spec, err)
	}
	j.cron = c
	return nil
}

func (j *BackfillJob) tick() {
	if j.sweeper != nil && j.pendingTTL > 0 {
		j.sweeper.ExpirePending(j.pendingTTL)
	}
	j.Trigger()
}

// Run processes triggers until ctx is cancelled.
func (j *BackfillJob) Run(ctx context.Context) {
	if j.cron != nil {
		j.cron.Start()
		defer func() { <-j.cron.Stop().Done() }()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-j.trigger:
			j.runOnce(ctx)
		}
	}
}

func (j *BackfillJob) runOnce(ctx context.Context) {
	start := time.Now()
	sum, err := j.routes.ComputeAll(ctx)
	if err != nil {
		j.logger.Error("route backfill failed", "error", err)
		return
	}
	j.logger.Info("route backfill finished",
		"rows", sum.Rows,
		"routed", sum.Routed,
		"warnings", len(sum.Warnings),
		"duration", time.Since(start),
	)
}
