// Package jobs is the API for asynchronous work: starting a unit of work
// with a durable, pollable handle, reporting its terminal outcome, and
// reading its status. Every background task, regardless of domain logic,
// terminates through exactly ReportSuccess or ReportFailure; that uniformity
// is what lets one status endpoint serve every task kind.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"learner-records-api/internal/export"
	"learner-records-api/internal/models"
	"learner-records-api/internal/resultstore"
	"learner-records-api/internal/roles"
	"learner-records-api/internal/telemetry"
)

// ErrForbidden is returned when a user may not read a job's status.
var ErrForbidden = errors.New("forbidden")

// Ledger is the persistent job record store.
type Ledger interface {
	CreateJob(ctx context.Context, ownerID, kind string, payload map[string]any, maxAttempts int) (models.Job, error)
	GetJob(ctx context.Context, id string) (models.Job, error)
	ListJobsForUser(ctx context.Context, ownerID string, limit int) ([]models.Job, error)
	MarkJobSucceeded(ctx context.Context, id, resultPath, format string, text *string) error
	MarkJobFailed(ctx context.Context, id, reason string) error
	MarkJobCanceled(ctx context.Context, id string) error
}

// Enqueuer schedules a job id for pickup outside the request cycle and can
// withdraw one before a worker leases it.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobID string) error
	Remove(ctx context.Context, jobID string) error
}

// GlobalReader checks capabilities granted outside any organization scope.
type GlobalReader interface {
	HasGlobal(ctx context.Context, userID string, c roles.Capability) (bool, error)
}

// Service wires the ledger, queue, and result store together.
type Service struct {
	ledger      Ledger
	queue       Enqueuer
	results     resultstore.Store
	perms       GlobalReader
	maxAttempts int
	logger      *slog.Logger
}

// NewService builds a job service.
func NewService(ledger Ledger, queue Enqueuer, results resultstore.Store, perms GlobalReader, maxAttempts int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		ledger:      ledger,
		queue:       queue,
		results:     results,
		perms:       perms,
		maxAttempts: maxAttempts,
		logger:      logger.With("component", "jobs"),
	}
}

// Start accepts a unit of work for asynchronous execution: a pending ledger
// row is created and the job id is handed to the queue. The caller gets the
// durable handle immediately and never blocks on the work itself.
func (s *Service) Start(ctx context.Context, ownerID, kind string, payload map[string]any) (models.Job, error) {
	job, err := s.ledger.CreateJob(ctx, ownerID, kind, payload, s.maxAttempts)
	if err != nil {
		return models.Job{}, fmt.Errorf("create job: %w", err)
	}
	if err := s.queue.Enqueue(ctx, job.ID); err != nil {
		reason := fmt.Sprintf("Job %s failed. could not enqueue: %v", job.ID, err)
		_ = s.ledger.MarkJobFailed(ctx, job.ID, reason)
		return models.Job{}, fmt.Errorf("enqueue job %s: %w", job.ID, err)
	}
	telemetry.JobsStarted.Inc()
	s.logger.InfoContext(ctx, "job started", "job_id", job.ID, "kind", kind, "owner", ownerID)
	return job, nil
}

// ReportSuccess serializes rows in the requested format, stores the artifact
// under a path keyed by job id and format, and transitions the ledger to
// Succeeded with the result locator attached.
func (s *Service) ReportSuccess(ctx context.Context, jobID string, rows []*export.Row, format string, text *string) error {
	content, err := export.Serialize(rows, format)
	if err != nil {
		return fmt.Errorf("serialize result for job %s: %w", jobID, err)
	}
	key := resultstore.ArtifactKey(jobID, format)
	if err := s.results.Put(ctx, key, content, export.ContentType(format)); err != nil {
		return fmt.Errorf("store result for job %s: %w", jobID, err)
	}
	if err := s.ledger.MarkJobSucceeded(ctx, jobID, key, format, text); err != nil {
		return err
	}
	telemetry.JobsSucceeded.Inc()
	s.logger.InfoContext(ctx, "job succeeded", "job_id", jobID, "format", format, "bytes", len(content))
	return nil
}

// ReportFailure transitions the ledger to Failed. The recorded reason always
// carries the job id so operators can triage from the ledger row alone.
func (s *Service) ReportFailure(ctx context.Context, jobID, message string) error {
	reason := fmt.Sprintf("Job %s failed. %s", jobID, message)
	s.logger.ErrorContext(ctx, "job failed", "job_id", jobID, "reason", message)
	if err := s.ledger.MarkJobFailed(ctx, jobID, reason); err != nil {
		return err
	}
	telemetry.JobsFailed.Inc()
	return nil
}

// Cancel terminalizes a job that has not finished and withdraws it from the
// queue. There is no public endpoint for this; it backs operator tooling.
func (s *Service) Cancel(ctx context.Context, jobID string) error {
	if err := s.ledger.MarkJobCanceled(ctx, jobID); err != nil {
		return err
	}
	if err := s.queue.Remove(ctx, jobID); err != nil {
		return fmt.Errorf("remove canceled job %s from queue: %w", jobID, err)
	}
	s.logger.InfoContext(ctx, "job canceled", "job_id", jobID)
	return nil
}

// StatusView is the client-facing snapshot of one job.
type StatusView struct {
	JobID   string    `json:"job_id"`
	State   string    `json:"state"`
	Created time.Time `json:"created"`
	Text    *string   `json:"text"`
	Result  *string   `json:"result"`
}

// Status returns the current ledger snapshot for a job. Only the job's owner
// and holders of the global job-read capability may see it. A result URL is
// attached only in the Succeeded state.
func (s *Service) Status(ctx context.Context, userID, jobID string) (StatusView, error) {
	job, err := s.ledger.GetJob(ctx, jobID)
	if err != nil {
		return StatusView{}, err
	}
	if job.OwnerID != userID {
		global, err := s.perms.HasGlobal(ctx, userID, roles.JobGlobalRead)
		if err != nil {
			return StatusView{}, err
		}
		if !global {
			return StatusView{}, fmt.Errorf("job %s: %w", jobID, ErrForbidden)
		}
	}
	return s.view(ctx, job)
}

// List returns the caller's own jobs, newest first.
func (s *Service) List(ctx context.Context, userID string, limit int) ([]StatusView, error) {
	jobsList, err := s.ledger.ListJobsForUser(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	views := make([]StatusView, 0, len(jobsList))
	for _, job := range jobsList {
		view, err := s.view(ctx, job)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

func (s *Service) view(ctx context.Context, job models.Job) (StatusView, error) {
	view := StatusView{
		JobID:   job.ID,
		State:   models.DisplayState(job.State),
		Created: job.CreatedAt,
		Text:    job.Text,
	}
	if job.State == models.StateSucceeded && job.ResultPath != nil {
		url, err := s.results.URL(ctx, *job.ResultPath)
		if err != nil {
			return StatusView{}, fmt.Errorf("result url for job %s: %w", job.ID, err)
		}
		view.Result = &url
	}
	return view, nil
}
