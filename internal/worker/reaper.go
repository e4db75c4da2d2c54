package worker

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"learner-records-api/internal/models"
	"learner-records-api/internal/queue"
	"learner-records-api/internal/telemetry"
)

// StaleSource lists jobs stuck in a non-terminal state past a cutoff.
type StaleSource interface {
	StaleJobs(ctx context.Context, cutoff time.Time, limit int) ([]models.Job, error)
}

// FailureReporter terminalizes a job with a reason.
type FailureReporter interface {
	ReportFailure(ctx context.Context, jobID, message string) error
}

// Reaper force-fails jobs whose unit of work died without reporting an
// outcome. Without it, a crashed worker process leaves ledger rows
// non-terminal forever.
type Reaper struct {
	stale      StaleSource
	reporter   FailureReporter
	queue      *queue.RedisQueue
	maxRuntime time.Duration
	interval   time.Duration
	logger     *slog.Logger
}

// NewReaper builds a reaper.
func NewReaper(stale StaleSource, reporter FailureReporter, q *queue.RedisQueue, maxRuntime, interval time.Duration, logger *slog.Logger) *Reaper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reaper{
		stale:      stale,
		reporter:   reporter,
		queue:      q,
		maxRuntime: maxRuntime,
		interval:   interval,
		logger:     logger.With("component", "reaper"),
	}
}

// Run sweeps on the configured interval until the context is cancelled. A
// small startup jitter keeps multiple instances from sweeping in lockstep.
func (r *Reaper) Run(ctx context.Context) error {
	if jitter := r.interval / 10; jitter > 0 {
		sleep(ctx, time.Duration(rand.Int63n(int64(jitter))))
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if err := r.Sweep(ctx); err != nil {
			r.logger.ErrorContext(ctx, "sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Sweep fails every job that has been non-terminal longer than the max
// runtime and drops it from the queue.
func (r *Reaper) Sweep(ctx context.Context) error {
	cutoff := time.Now().Add(-r.maxRuntime)
	stuck, err := r.stale.StaleJobs(ctx, cutoff, 100)
	if err != nil {
		return fmt.Errorf("list stale jobs: %w", err)
	}
	for _, job := range stuck {
		reason := fmt.Sprintf("exceeded max runtime %s in state %s", r.maxRuntime, models.DisplayState(job.State))
		if err := r.reporter.ReportFailure(ctx, job.ID, reason); err != nil {
			r.logger.ErrorContext(ctx, "reap job", "job_id", job.ID, "error", err)
			continue
		}
		if r.queue != nil {
			_ = r.queue.Remove(ctx, job.ID)
		}
		telemetry.JobsReaped.Inc()
		r.logger.WarnContext(ctx, "reaped stuck job", "job_id", job.ID, "state", job.State)
	}
	return nil
}
