// Package enrollments owns the bulk enrollment write path: request
// validation, the reconciliation of client intent with backend outcomes, and
// the LMS client the forwarded batches go through.
package enrollments

// Enrollment statuses accepted by the LMS. The reconciler treats these
// enumerations as externally owned; they mirror the backend's contract.
var (
	ProgramStatuses = statusSet("enrolled", "pending", "suspended", "canceled")
	CourseStatuses  = statusSet("active", "inactive")
)

// Per-student result markers produced by the reconciler itself. Everything
// else in a result map is a status echoed by this service or the backend.
const (
	ResultDuplicated    = "duplicated"
	ResultInvalidStatus = "invalid-status"
	ResultInternalError = "internal-error"
	ResultConflict      = "conflict"
)

// failureMarkers are result values that count as failures when computing the
// aggregate batch code. ResultConflict covers backend-reported conflicts.
var failureMarkers = map[string]bool{
	ResultDuplicated:    true,
	ResultInvalidStatus: true,
	ResultInternalError: true,
	ResultConflict:      true,
	"not-in-program":    true,
	"illegal-operation": true,
}

func statusSet(statuses ...string) map[string]bool {
	set := make(map[string]bool, len(statuses))
	for _, s := range statuses {
		set[s] = true
	}
	return set
}
