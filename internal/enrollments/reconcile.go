package enrollments

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// Sentinel errors the API layer maps to HTTP status codes.
var (
	// ErrMalformedBatch means an item failed structural validation; the whole
	// batch is rejected with no partial processing.
	ErrMalformedBatch = errors.New("malformed enrollment batch")
	// ErrBatchTooLarge means the batch exceeds the configured limit.
	ErrBatchTooLarge = errors.New("enrollment batch too large")
)

// WriteRequest is one element of a client-submitted enrollment batch.
type WriteRequest struct {
	StudentKey string `json:"student_key" validate:"required"`
	Status     string `json:"status" validate:"required"`
}

// Forwarder sends the deduplicated, validated remainder of a batch to the
// enrollment backend in one call. It returns per-student outcomes and the
// backend's HTTP status code; a transport failure returns an error.
type Forwarder func(ctx context.Context, requests []WriteRequest) (map[string]string, int, error)

var validate = validator.New()

// Reconciler merges client write intent with backend write outcomes into a
// single per-student result map and an aggregate HTTP status code.
type Reconciler struct {
	// ValidStatuses is the externally-owned enumeration of acceptable
	// requested statuses (program vs. course scope).
	ValidStatuses map[string]bool
	// BatchLimit caps batch size; exceeding it fails fast before any
	// backend call.
	BatchLimit int
}

// Reconcile runs a batch through validation, deduplication, a single backend
// call, and aggregation.
//
// The returned map never holds a student key twice: local markers
// (duplicated, invalid-status) claim their slots before backend outcomes are
// merged, and the first claim wins.
func (r *Reconciler) Reconcile(ctx context.Context, requests []WriteRequest, forward Forwarder) (map[string]string, int, error) {
	for i, req := range requests {
		if err := validate.Struct(req); err != nil {
			return nil, 0, fmt.Errorf("%w: item %d: %v", ErrMalformedBatch, i, err)
		}
	}
	if len(requests) > r.BatchLimit {
		return nil, 0, fmt.Errorf("%w: %d entries exceeds limit %d", ErrBatchTooLarge, len(requests), r.BatchLimit)
	}

	results := map[string]string{}
	seen := map[string]bool{}
	forwarded := make([]WriteRequest, 0, len(requests))
	for _, req := range requests {
		if seen[req.StudentKey] {
			if _, claimed := results[req.StudentKey]; !claimed {
				results[req.StudentKey] = ResultDuplicated
			}
			continue
		}
		seen[req.StudentKey] = true
		if !r.ValidStatuses[req.Status] {
			results[req.StudentKey] = ResultInvalidStatus
			continue
		}
		forwarded = append(forwarded, req)
	}

	if len(forwarded) > 0 {
		outcomes, code, err := forward(ctx, forwarded)
		if err != nil || !writeCodeOK(code) {
			for _, req := range forwarded {
				if _, claimed := results[req.StudentKey]; !claimed {
					results[req.StudentKey] = ResultInternalError
				}
			}
			return results, http.StatusUnprocessableEntity, nil
		}
		for key, status := range outcomes {
			if _, claimed := results[key]; !claimed {
				results[key] = status
			}
		}
	}

	return results, aggregateCode(results), nil
}

func writeCodeOK(code int) bool {
	return (code >= 200 && code < 300) || code == http.StatusMultiStatus
}

// aggregateCode summarizes a merged result map: 200 when every entry
// succeeded, 207 on a mix, 422 when nothing succeeded.
func aggregateCode(results map[string]string) int {
	successes, failures := 0, 0
	for _, status := range results {
		if failureMarkers[status] {
			failures++
		} else {
			successes++
		}
	}
	switch {
	case failures == 0 && successes > 0:
		return http.StatusOK
	case successes > 0:
		return http.StatusMultiStatus
	default:
		return http.StatusUnprocessableEntity
	}
}
