package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"learner-records-api/internal/models"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// Store wraps pgxpool for Postgres persistence: the job ledger plus the
// organization/program registry and role assignments.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a pooled connection to Postgres.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

const jobColumns = `id, owner_id, kind, payload, state, attempts, max_attempts, text, result_path, result_format, created_at, updated_at`

// CreateJob inserts a fresh ledger row in the pending state and returns it.
func (s *Store) CreateJob(ctx context.Context, ownerID, kind string, payload map[string]any, maxAttempts int) (models.Job, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return models.Job{}, fmt.Errorf("marshal payload: %w", err)
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	id := uuid.New().String()
	now := time.Now().UTC()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO jobs (id, owner_id, kind, payload, state, attempts, max_attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $7, $7)
	`, id, ownerID, kind, payloadJSON, models.StatePending, maxAttempts, now)
	if err != nil {
		return models.Job{}, fmt.Errorf("insert job: %w", err)
	}

	return models.Job{
		ID:          id,
		OwnerID:     ownerID,
		Kind:        kind,
		Payload:     payload,
		State:       models.StatePending,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// GetJob fetches a ledger row by id.
func (s *Store) GetJob(ctx context.Context, id string) (models.Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	return scanJob(row)
}

// ListJobsForUser returns the caller's jobs, newest first.
func (s *Store) ListJobsForUser(ctx context.Context, ownerID string, limit int) ([]models.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// TransitionJob moves a ledger row to a new state, optionally replacing its
// status text. Terminal rows are never overwritten; an unknown id or a
// terminal row is a logic error in the caller, reported as ErrNotFound.
func (s *Store) TransitionJob(ctx context.Context, id, state string, text *string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs SET state = $2, text = COALESCE($3, text), updated_at = NOW()
		WHERE id = $1 AND state NOT IN ($4, $5, $6)
	`, id, state, text, models.StateSucceeded, models.StateFailed, models.StateCanceled)
	if err != nil {
		return fmt.Errorf("transition job %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transition job %s to %s: %w", id, state, ErrNotFound)
	}
	return nil
}

// MarkJobSucceeded records the terminal success state with the result locator.
func (s *Store) MarkJobSucceeded(ctx context.Context, id, resultPath, format string, text *string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs SET state = $2, result_path = $3, result_format = $4, text = COALESCE($5, text), updated_at = NOW()
		WHERE id = $1 AND state NOT IN ($6, $7, $8)
	`, id, models.StateSucceeded, resultPath, format, text,
		models.StateSucceeded, models.StateFailed, models.StateCanceled)
	if err != nil {
		return fmt.Errorf("mark job %s succeeded: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark job %s succeeded: %w", id, ErrNotFound)
	}
	return nil
}

// MarkJobFailed records the terminal failure state with a reason.
func (s *Store) MarkJobFailed(ctx context.Context, id, reason string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs SET state = $2, text = $3, updated_at = NOW()
		WHERE id = $1 AND state NOT IN ($4, $5, $6)
	`, id, models.StateFailed, reason,
		models.StateSucceeded, models.StateFailed, models.StateCanceled)
	if err != nil {
		return fmt.Errorf("mark job %s failed: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark job %s failed: %w", id, ErrNotFound)
	}
	return nil
}

// MarkJobCanceled records the terminal canceled state.
func (s *Store) MarkJobCanceled(ctx context.Context, id string) error {
	return s.TransitionJob(ctx, id, models.StateCanceled, nil)
}

// UpdateJobAttempts bumps the attempt counter after a retryable failure.
func (s *Store) UpdateJobAttempts(ctx context.Context, id string, attempts int, lastErr string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE jobs SET state = $2, attempts = $3, text = $4, updated_at = NOW()
		WHERE id = $1
	`, id, models.StateRetrying, attempts, lastErr)
	if err != nil {
		return fmt.Errorf("update job %s attempts: %w", id, err)
	}
	return nil
}

// StaleJobs returns non-terminal jobs untouched since the cutoff, for the
// reaper to force-fail.
func (s *Store) StaleJobs(ctx context.Context, cutoff time.Time, limit int) ([]models.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE state IN ($1, $2, $3) AND updated_at < $4
		ORDER BY updated_at ASC
		LIMIT $5
	`, models.StatePending, models.StateInProgress, models.StateRetrying, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("query stale jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func scanJob(row pgx.Row) (models.Job, error) {
	var job models.Job
	var payloadJSON []byte
	var text, resultPath, resultFormat pgtype.Text

	err := row.Scan(&job.ID, &job.OwnerID, &job.Kind, &payloadJSON, &job.State,
		&job.Attempts, &job.MaxAttempts, &text, &resultPath, &resultFormat,
		&job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Job{}, fmt.Errorf("job: %w", ErrNotFound)
	}
	if err != nil {
		return models.Job{}, fmt.Errorf("scan job: %w", err)
	}

	if err := json.Unmarshal(payloadJSON, &job.Payload); err != nil {
		return models.Job{}, fmt.Errorf("unmarshal payload: %w", err)
	}
	job.Text = textPtr(text)
	job.ResultPath = textPtr(resultPath)
	job.ResultFormat = textPtr(resultFormat)
	return job, nil
}

func textPtr(t pgtype.Text) *string {
	if t.Valid {
		return &t.String
	}
	return nil
}
