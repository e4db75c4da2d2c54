// Package worker executes units of work off the request path. The processor
// leases job ids from the queue, dispatches to a per-kind handler, and routes
// every outcome into exactly one of the two terminal reporting operations so
// no job is ever left dangling by an in-process failure.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"learner-records-api/internal/export"
	"learner-records-api/internal/jobs"
	"learner-records-api/internal/models"
	"learner-records-api/internal/queue"
	"learner-records-api/internal/telemetry"
)

// Result is what a successful unit of work produces: rows to serialize, the
// artifact format, and optional status text for the ledger.
type Result struct {
	Rows   []*export.Row
	Format string
	Text   *string
}

// Handler performs the work for one job kind. A returned error is retried
// with backoff up to the job's attempt budget, then reported as failure.
type Handler func(ctx context.Context, job models.Job) (Result, error)

// Ledger is the slice of the store the processor needs.
type Ledger interface {
	GetJob(ctx context.Context, id string) (models.Job, error)
	TransitionJob(ctx context.Context, id, state string, text *string) error
	UpdateJobAttempts(ctx context.Context, id string, attempts int, lastErr string) error
}

// Processor drives the worker execution loop.
type Processor struct {
	queue          *queue.RedisQueue
	ledger         Ledger
	jobs           *jobs.Service
	handlers       map[string]Handler
	pollInterval   time.Duration
	backoffInitial time.Duration
	backoffMax     time.Duration
	logger         *slog.Logger
}

// NewProcessor creates a processor.
func NewProcessor(q *queue.RedisQueue, ledger Ledger, jobSvc *jobs.Service, pollInterval, backoffInitial, backoffMax time.Duration, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		queue:          q,
		ledger:         ledger,
		jobs:           jobSvc,
		handlers:       make(map[string]Handler),
		pollInterval:   pollInterval,
		backoffInitial: backoffInitial,
		backoffMax:     backoffMax,
		logger:         logger.With("component", "worker"),
	}
}

// RegisterHandler binds a handler to a job kind.
func (p *Processor) RegisterHandler(kind string, handler Handler) {
	if kind == "" || handler == nil {
		return
	}
	p.handlers[kind] = handler
}

// Run starts the main worker loop until context cancellation.
func (p *Processor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, _ = p.queue.PromoteScheduled(ctx, time.Now(), 100)
		if reclaimed, _ := p.queue.RequeueExpired(ctx, time.Now(), 100); len(reclaimed) > 0 {
			p.logger.WarnContext(ctx, "reclaimed expired leases", "count", len(reclaimed))
		}
		if depth, err := p.queue.ReadyDepth(ctx); err == nil {
			telemetry.QueueDepthGauge.Set(float64(depth))
		}

		jobID, err := p.queue.DequeueWithLease(ctx)
		if err != nil || jobID == "" {
			sleep(ctx, p.pollInterval)
			continue
		}
		p.processOne(ctx, jobID)
	}
}

func (p *Processor) processOne(ctx context.Context, jobID string) {
	// Heartbeat the visibility lease for as long as the job runs. Without it
	// a handler slower than the lease gets reclaimed by RequeueExpired and
	// executed a second time concurrently.
	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	hbDone := make(chan struct{})
	go func() {
		defer close(hbDone)
		p.keepLeaseAlive(hbCtx, jobID)
	}()
	defer func() {
		stopHeartbeat()
		<-hbDone
		_ = p.queue.Ack(ctx, jobID)
	}()

	job, err := p.ledger.GetJob(ctx, jobID)
	if err != nil {
		p.logger.ErrorContext(ctx, "leased unknown job", "job_id", jobID, "error", err)
		return
	}
	if models.IsTerminalState(job.State) {
		return
	}

	if err := p.ledger.TransitionJob(ctx, job.ID, models.StateInProgress, nil); err != nil {
		p.logger.ErrorContext(ctx, "transition to in progress", "job_id", job.ID, "error", err)
		return
	}
	telemetry.InFlightGauge.Inc()
	defer telemetry.InFlightGauge.Dec()

	result, err := p.runHandler(ctx, job)
	if err == nil {
		if err := p.jobs.ReportSuccess(ctx, job.ID, result.Rows, result.Format, result.Text); err != nil {
			p.logger.ErrorContext(ctx, "report success", "job_id", job.ID, "error", err)
			_ = p.jobs.ReportFailure(ctx, job.ID, fmt.Sprintf("could not store result: %v", err))
		}
		return
	}

	attempts := job.Attempts + 1
	if attempts >= job.MaxAttempts {
		_ = p.jobs.ReportFailure(ctx, job.ID, err.Error())
		return
	}
	backoff := backoffWithJitter(p.backoffInitial, p.backoffMax, attempts)
	if uerr := p.ledger.UpdateJobAttempts(ctx, job.ID, attempts, err.Error()); uerr != nil {
		p.logger.ErrorContext(ctx, "record retry", "job_id", job.ID, "error", uerr)
	}
	_ = p.queue.Schedule(ctx, job.ID, time.Now().Add(backoff))
	telemetry.JobRetries.Inc()
	p.logger.WarnContext(ctx, "job retry scheduled",
		"job_id", job.ID, "attempts", attempts, "backoff", backoff, "error", err)
}

// keepLeaseAlive extends the job's visibility lease at half-TTL intervals
// until the context is cancelled.
func (p *Processor) keepLeaseAlive(ctx context.Context, jobID string) {
	ttl := p.queue.LeaseTTL()
	ticker := time.NewTicker(ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.queue.ExtendLease(ctx, jobID, ttl); err != nil && ctx.Err() == nil {
				p.logger.WarnContext(ctx, "extend lease", "job_id", jobID, "error", err)
			}
		}
	}
}

// runHandler dispatches to the registered handler, converting panics into
// ordinary errors so a crashing unit of work still terminalizes its job.
func (p *Processor) runHandler(ctx context.Context, job models.Job) (result Result, err error) {
	handler, ok := p.handlers[job.Kind]
	if !ok {
		return Result{}, fmt.Errorf("no handler registered for kind %q", job.Kind)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in handler for kind %q: %v", job.Kind, r)
		}
	}()
	return handler(ctx, job)
}

func backoffWithJitter(base, max time.Duration, attempt int) time.Duration {
	if attempt <= 0 {
		return base
	}
	exp := float64(base) * math.Pow(2, float64(attempt-1))
	wait := time.Duration(exp)
	if wait > max {
		wait = max
	}
	if wait <= 1 {
		return base
	}
	jitter := time.Duration(rand.Int63n(int64(wait / 2)))
	return wait/2 + jitter
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
