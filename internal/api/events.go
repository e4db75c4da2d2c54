package api

import (
	"net/http"
)

// Resource names used as keys into the tracking event table.
const (
	resourcePrograms                = "programs"
	resourceProgram                 = "program"
	resourceProgramCourses          = "program_courses"
	resourceProgramEnrollments      = "program_enrollments"
	resourceProgramEnrollmentUpload = "program_enrollment_upload"
	resourceCourseEnrollments       = "course_enrollments"
	resourceCourseEnrollmentUpload  = "course_enrollment_upload"
	resourceCourseGrades            = "course_grades"
	resourceJobs                    = "jobs"
	resourceJob                     = "job"
)

// trackingEvents is the explicit (resource, method) → event name table. A
// request whose combination is absent is a configuration error: logged and
// answered with 405 instead of dispatching.
var trackingEvents = map[string]map[string]string{
	resourcePrograms: {
		http.MethodGet: "registrar.v1.list_programs",
	},
	resourceProgram: {
		http.MethodGet: "registrar.v1.get_program",
	},
	resourceProgramCourses: {
		http.MethodGet: "registrar.v1.get_program_courses",
	},
	resourceProgramEnrollments: {
		http.MethodGet:   "registrar.v1.get_program_enrollment",
		http.MethodPost:  "registrar.v1.post_program_enrollment",
		http.MethodPatch: "registrar.v1.patch_program_enrollment",
	},
	resourceProgramEnrollmentUpload: {
		http.MethodPost: "registrar.v1.upload_program_enrollments",
	},
	resourceCourseEnrollments: {
		http.MethodGet:   "registrar.v1.get_course_enrollment",
		http.MethodPost:  "registrar.v1.post_course_enrollment",
		http.MethodPatch: "registrar.v1.patch_course_enrollment",
	},
	resourceCourseEnrollmentUpload: {
		http.MethodPost: "registrar.v1.upload_course_enrollments",
	},
	resourceCourseGrades: {
		http.MethodGet: "registrar.v1.get_course_grades",
	},
	resourceJobs: {
		http.MethodGet: "registrar.v1.list_job_statuses",
	},
	resourceJob: {
		http.MethodGet: "registrar.v1.get_job_status",
	},
}

// trackEvent resolves the tracking event for a resource at request entry.
func (s *Server) trackEvent(resource string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			event, ok := trackingEvents[resource][r.Method]
			if !ok {
				s.logger.Error("no tracking event configured",
					"resource", resource, "method", r.Method)
				writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
				return
			}
			s.logger.Info("tracking event",
				"event", event, "user", principalFrom(r.Context()), "path", r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}
}
