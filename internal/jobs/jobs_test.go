package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"learner-records-api/internal/export"
	"learner-records-api/internal/models"
	"learner-records-api/internal/roles"
)

type memLedger struct {
	jobs map[string]models.Job
}

func newMemLedger() *memLedger {
	return &memLedger{jobs: map[string]models.Job{}}
}

func (l *memLedger) CreateJob(_ context.Context, ownerID, kind string, payload map[string]any, maxAttempts int) (models.Job, error) {
	job := models.Job{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Kind:        kind,
		Payload:     payload,
		State:       models.StatePending,
		MaxAttempts: maxAttempts,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	l.jobs[job.ID] = job
	return job, nil
}

func (l *memLedger) GetJob(_ context.Context, id string) (models.Job, error) {
	job, ok := l.jobs[id]
	if !ok {
		return models.Job{}, fmt.Errorf("job %s: not found", id)
	}
	return job, nil
}

func (l *memLedger) ListJobsForUser(_ context.Context, ownerID string, limit int) ([]models.Job, error) {
	var out []models.Job
	for _, job := range l.jobs {
		if job.OwnerID == ownerID {
			out = append(out, job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (l *memLedger) MarkJobSucceeded(_ context.Context, id, resultPath, format string, text *string) error {
	job := l.jobs[id]
	job.State = models.StateSucceeded
	job.ResultPath = &resultPath
	job.ResultFormat = &format
	job.Text = text
	l.jobs[id] = job
	return nil
}

func (l *memLedger) MarkJobFailed(_ context.Context, id, reason string) error {
	job := l.jobs[id]
	job.State = models.StateFailed
	job.Text = &reason
	l.jobs[id] = job
	return nil
}

func (l *memLedger) MarkJobCanceled(_ context.Context, id string) error {
	job, ok := l.jobs[id]
	if !ok || models.IsTerminalState(job.State) {
		return fmt.Errorf("cancel job %s: not cancelable", id)
	}
	job.State = models.StateCanceled
	l.jobs[id] = job
	return nil
}

type memQueue struct {
	enqueued []string
	removed  []string
	fail     error
}

func (q *memQueue) Enqueue(_ context.Context, jobID string) error {
	if q.fail != nil {
		return q.fail
	}
	q.enqueued = append(q.enqueued, jobID)
	return nil
}

func (q *memQueue) Remove(_ context.Context, jobID string) error {
	q.removed = append(q.removed, jobID)
	return nil
}

type memResults struct {
	objects map[string][]byte
	types   map[string]string
}

func newMemResults() *memResults {
	return &memResults{objects: map[string][]byte{}, types: map[string]string{}}
}

func (s *memResults) Put(_ context.Context, key string, body []byte, contentType string) error {
	s.objects[key] = body
	s.types[key] = contentType
	return nil
}

func (s *memResults) Get(_ context.Context, key string) ([]byte, error) {
	body, ok := s.objects[key]
	if !ok {
		return nil, errors.New("no such artifact")
	}
	return body, nil
}

func (s *memResults) URL(_ context.Context, key string) (string, error) {
	return "https://results.example.com/" + key + "?sig=abc", nil
}

type memPerms struct {
	global map[string]bool
}

func (p *memPerms) HasGlobal(_ context.Context, userID string, _ roles.Capability) (bool, error) {
	return p.global[userID], nil
}

func newTestService() (*Service, *memLedger, *memQueue, *memResults, *memPerms) {
	ledger := newMemLedger()
	queue := &memQueue{}
	results := newMemResults()
	perms := &memPerms{global: map[string]bool{"auditor": true}}
	svc := NewService(ledger, queue, results, perms, 3, nil)
	return svc, ledger, queue, results, perms
}

func TestStartCreatesPendingJobAndEnqueues(t *testing.T) {
	ctx := context.Background()
	svc, ledger, queue, _, _ := newTestService()

	job, err := svc.Start(ctx, "staff-1", "list_program_enrollments", map[string]any{"program_key": "p"})
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, models.StatePending, job.State)
	assert.Equal(t, []string{job.ID}, queue.enqueued)

	stored, err := ledger.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "staff-1", stored.OwnerID)
	assert.Equal(t, 3, stored.MaxAttempts)
}

func TestStartEnqueueFailureMarksJobFailed(t *testing.T) {
	ctx := context.Background()
	svc, _, queue, _, _ := newTestService()
	queue.fail = errors.New("redis down")

	job, err := svc.Start(ctx, "staff-1", "list_program_enrollments", nil)
	require.Error(t, err)
	assert.Empty(t, job.ID)

	// The only ledger row is the failed one.
	views, err := svc.List(ctx, "staff-1", 10)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "Failed", views[0].State)
	require.NotNil(t, views[0].Text)
	assert.Contains(t, *views[0].Text, "failed")
}

func TestReportSuccessStoresArtifactAndResultURL(t *testing.T) {
	ctx := context.Background()
	svc, _, _, results, _ := newTestService()

	job, err := svc.Start(ctx, "staff-1", "list_program_enrollments", nil)
	require.NoError(t, err)

	rows := []*export.Row{export.NewRow().Set("student_key", "alice").Set("status", "enrolled")}
	require.NoError(t, svc.ReportSuccess(ctx, job.ID, rows, export.FormatJSON, nil))

	key := job.ID + ".json"
	body, err := results.Get(ctx, key)
	require.NoError(t, err)
	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "alice", decoded[0]["student_key"])
	assert.Equal(t, "application/json", results.types[key])

	view, err := svc.Status(ctx, "staff-1", job.ID)
	require.NoError(t, err)
	assert.Equal(t, "Succeeded", view.State)
	require.NotNil(t, view.Result)
	assert.Contains(t, *view.Result, key)
}

func TestReportSuccessUnsupportedFormat(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _, _ := newTestService()

	job, err := svc.Start(ctx, "staff-1", "list_program_enrollments", nil)
	require.NoError(t, err)

	err = svc.ReportSuccess(ctx, job.ID, nil, "xml", nil)
	assert.ErrorIs(t, err, export.ErrUnsupportedFormat)
}

func TestReportFailureRecordsReasonWithJobID(t *testing.T) {
	ctx := context.Background()
	svc, ledger, _, _, _ := newTestService()

	job, err := svc.Start(ctx, "staff-1", "list_program_enrollments", nil)
	require.NoError(t, err)
	require.NoError(t, svc.ReportFailure(ctx, job.ID, "backend unreachable"))

	stored, err := ledger.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateFailed, stored.State)
	require.NotNil(t, stored.Text)
	assert.Contains(t, *stored.Text, job.ID)
	assert.Contains(t, *stored.Text, "backend unreachable")
}

func TestCancelWithdrawsJobFromQueue(t *testing.T) {
	ctx := context.Background()
	svc, ledger, queue, _, _ := newTestService()

	job, err := svc.Start(ctx, "staff-1", "list_program_enrollments", nil)
	require.NoError(t, err)
	require.NoError(t, svc.Cancel(ctx, job.ID))

	stored, err := ledger.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateCanceled, stored.State)
	assert.Equal(t, []string{job.ID}, queue.removed)

	view, err := svc.Status(ctx, "staff-1", job.ID)
	require.NoError(t, err)
	assert.Equal(t, "Canceled", view.State)
	assert.Nil(t, view.Result)
}

func TestCancelTerminalJobFails(t *testing.T) {
	ctx := context.Background()
	svc, _, queue, _, _ := newTestService()

	job, err := svc.Start(ctx, "staff-1", "list_program_enrollments", nil)
	require.NoError(t, err)
	require.NoError(t, svc.ReportFailure(ctx, job.ID, "backend unreachable"))

	assert.Error(t, svc.Cancel(ctx, job.ID))
	assert.Empty(t, queue.removed)
}

func TestStatusAccessControl(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _, _ := newTestService()

	job, err := svc.Start(ctx, "staff-1", "list_program_enrollments", nil)
	require.NoError(t, err)

	// Owner reads.
	_, err = svc.Status(ctx, "staff-1", job.ID)
	assert.NoError(t, err)

	// Global job reader reads someone else's job.
	_, err = svc.Status(ctx, "auditor", job.ID)
	assert.NoError(t, err)

	// Anyone else is refused.
	_, err = svc.Status(ctx, "staff-2", job.ID)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestStatusRetryingDisplaysAsInProgress(t *testing.T) {
	ctx := context.Background()
	svc, ledger, _, _, _ := newTestService()

	job, err := svc.Start(ctx, "staff-1", "list_program_enrollments", nil)
	require.NoError(t, err)

	stored := ledger.jobs[job.ID]
	stored.State = models.StateRetrying
	ledger.jobs[job.ID] = stored

	view, err := svc.Status(ctx, "staff-1", job.ID)
	require.NoError(t, err)
	assert.Equal(t, "In Progress", view.State)
	assert.Nil(t, view.Result)
}

func TestStatusIsStableAcrossReads(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _, _ := newTestService()

	job, err := svc.Start(ctx, "staff-1", "list_program_enrollments", nil)
	require.NoError(t, err)
	text := "200 OK"
	rows := []*export.Row{export.NewRow().Set("student_key", "alice")}
	require.NoError(t, svc.ReportSuccess(ctx, job.ID, rows, export.FormatCSV, &text))

	first, err := svc.Status(ctx, "staff-1", job.ID)
	require.NoError(t, err)
	second, err := svc.Status(ctx, "staff-1", job.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	require.NotNil(t, first.Text)
	assert.Equal(t, "200 OK", *first.Text)
}

func TestListReturnsOwnJobsOnly(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _, _ := newTestService()

	_, err := svc.Start(ctx, "staff-1", "list_program_enrollments", nil)
	require.NoError(t, err)
	_, err = svc.Start(ctx, "staff-1", "list_course_grades", nil)
	require.NoError(t, err)
	_, err = svc.Start(ctx, "staff-2", "list_program_enrollments", nil)
	require.NoError(t, err)

	views, err := svc.List(ctx, "staff-1", 10)
	require.NoError(t, err)
	assert.Len(t, views, 2)
	for _, view := range views {
		assert.Equal(t, "Pending", view.State)
	}
}
