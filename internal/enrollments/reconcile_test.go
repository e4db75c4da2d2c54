package enrollments

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingForwarder records calls and plays back a canned backend response.
type countingForwarder struct {
	calls    int
	lastReqs []WriteRequest
	outcomes map[string]string
	code     int
	err      error
}

func (f *countingForwarder) forward(_ context.Context, reqs []WriteRequest) (map[string]string, int, error) {
	f.calls++
	f.lastReqs = reqs
	return f.outcomes, f.code, f.err
}

func newReconciler() *Reconciler {
	return &Reconciler{ValidStatuses: ProgramStatuses, BatchLimit: 25}
}

func TestReconcileAllSucceed(t *testing.T) {
	fwd := &countingForwarder{
		outcomes: map[string]string{"alice": "enrolled", "bob": "pending"},
		code:     http.StatusOK,
	}
	results, code, err := newReconciler().Reconcile(context.Background(), []WriteRequest{
		{StudentKey: "alice", Status: "enrolled"},
		{StudentKey: "bob", Status: "pending"},
	}, fwd.forward)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]string{"alice": "enrolled", "bob": "pending"}, results)
	assert.Equal(t, 1, fwd.calls)
	assert.Len(t, fwd.lastReqs, 2)
}

func TestReconcileMixedLocalAndBackendOutcomes(t *testing.T) {
	fwd := &countingForwarder{
		outcomes: map[string]string{"alice": "enrolled", "carol": "enrolled"},
		code:     http.StatusOK,
	}
	results, code, err := newReconciler().Reconcile(context.Background(), []WriteRequest{
		{StudentKey: "alice", Status: "enrolled"},
		{StudentKey: "alice", Status: "suspended"},
		{StudentKey: "bob", Status: "graduated"},
		{StudentKey: "carol", Status: "enrolled"},
	}, fwd.forward)
	require.NoError(t, err)
	assert.Equal(t, http.StatusMultiStatus, code)
	assert.Equal(t, map[string]string{
		"alice": ResultDuplicated,
		"bob":   ResultInvalidStatus,
		"carol": "enrolled",
	}, results)
	// The first alice occurrence was still forwarded; only its output slot
	// is claimed by the duplicate marker.
	require.Equal(t, 1, fwd.calls)
	assert.Equal(t, []WriteRequest{
		{StudentKey: "alice", Status: "enrolled"},
		{StudentKey: "carol", Status: "enrolled"},
	}, fwd.lastReqs)
}

func TestReconcileBackendFailureMarksForwardedEntries(t *testing.T) {
	fwd := &countingForwarder{err: errors.New("connection refused")}
	results, code, err := newReconciler().Reconcile(context.Background(), []WriteRequest{
		{StudentKey: "alice", Status: "enrolled"},
		{StudentKey: "bob", Status: "graduated"},
	}, fwd.forward)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, map[string]string{
		"alice": ResultInternalError,
		"bob":   ResultInvalidStatus,
	}, results)
}

func TestReconcileBackendErrorStatusCode(t *testing.T) {
	fwd := &countingForwarder{outcomes: map[string]string{}, code: http.StatusInternalServerError}
	results, code, err := newReconciler().Reconcile(context.Background(), []WriteRequest{
		{StudentKey: "alice", Status: "enrolled"},
	}, fwd.forward)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, map[string]string{"alice": ResultInternalError}, results)
}

func TestReconcileMultiStatusBackendCodeAccepted(t *testing.T) {
	fwd := &countingForwarder{
		outcomes: map[string]string{"alice": "enrolled", "bob": ResultConflict},
		code:     http.StatusMultiStatus,
	}
	results, code, err := newReconciler().Reconcile(context.Background(), []WriteRequest{
		{StudentKey: "alice", Status: "enrolled"},
		{StudentKey: "bob", Status: "enrolled"},
	}, fwd.forward)
	require.NoError(t, err)
	assert.Equal(t, http.StatusMultiStatus, code)
	assert.Equal(t, ResultConflict, results["bob"])
}

func TestReconcileAllFailuresAggregateTo422(t *testing.T) {
	fwd := &countingForwarder{}
	results, code, err := newReconciler().Reconcile(context.Background(), []WriteRequest{
		{StudentKey: "alice", Status: "graduated"},
		{StudentKey: "alice", Status: "graduated"},
	}, fwd.forward)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, map[string]string{"alice": ResultInvalidStatus}, results)
	assert.Zero(t, fwd.calls)
}

func TestReconcileOversizeBatchRejectedBeforeForwarding(t *testing.T) {
	fwd := &countingForwarder{}
	requests := make([]WriteRequest, 26)
	for i := range requests {
		requests[i] = WriteRequest{StudentKey: string(rune('a' + i)), Status: "enrolled"}
	}
	_, _, err := newReconciler().Reconcile(context.Background(), requests, fwd.forward)
	assert.ErrorIs(t, err, ErrBatchTooLarge)
	assert.Zero(t, fwd.calls)
}

func TestReconcileMalformedItemRejectsWholeBatch(t *testing.T) {
	fwd := &countingForwarder{}
	_, _, err := newReconciler().Reconcile(context.Background(), []WriteRequest{
		{StudentKey: "alice", Status: "enrolled"},
		{StudentKey: "", Status: "enrolled"},
	}, fwd.forward)
	assert.ErrorIs(t, err, ErrMalformedBatch)
	assert.Zero(t, fwd.calls)
}

func TestReconcileDuplicateInvalidFirstOccurrenceKeepsInvalidMarker(t *testing.T) {
	fwd := &countingForwarder{outcomes: map[string]string{}, code: http.StatusOK}
	results, code, err := newReconciler().Reconcile(context.Background(), []WriteRequest{
		{StudentKey: "alice", Status: "graduated"},
		{StudentKey: "alice", Status: "enrolled"},
	}, fwd.forward)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, map[string]string{"alice": ResultInvalidStatus}, results)
	assert.Zero(t, fwd.calls)
}
