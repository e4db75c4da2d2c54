package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"learner-records-api/internal/enrollments"
	"learner-records-api/internal/export"
	"learner-records-api/internal/models"
	"learner-records-api/internal/roles"
	"learner-records-api/internal/telemetry"
	"learner-records-api/internal/worker"
)

// jobAcceptance is the 202 body returned when an async read is accepted.
type jobAcceptance struct {
	JobID  string `json:"job_id"`
	JobURL string `json:"job_url"`
}

func (s *Server) handleReadProgramEnrollments(w http.ResponseWriter, r *http.Request) {
	program, ok := s.authorizeProgram(w, r, roles.ReadEnrollments)
	if !ok {
		return
	}
	format, ok := s.resultFormat(w, r)
	if !ok {
		return
	}
	s.acceptJob(w, r, worker.KindListProgramEnrollments, map[string]any{
		"program_key": program.Key,
		"format":      format,
	})
}

func (s *Server) handleReadCourseEnrollments(w http.ResponseWriter, r *http.Request) {
	program, courseID, ok := s.authorizeCourse(w, r, roles.ReadEnrollments)
	if !ok {
		return
	}
	format, ok := s.resultFormat(w, r)
	if !ok {
		return
	}
	s.acceptJob(w, r, worker.KindListCourseEnrollments, map[string]any{
		"program_key": program.Key,
		"course_id":   courseID,
		"format":      format,
	})
}

func (s *Server) handleReadCourseGrades(w http.ResponseWriter, r *http.Request) {
	program, courseID, ok := s.authorizeCourse(w, r, roles.ReadEnrollments)
	if !ok {
		return
	}
	format, ok := s.resultFormat(w, r)
	if !ok {
		return
	}
	s.acceptJob(w, r, worker.KindListCourseGrades, map[string]any{
		"program_key": program.Key,
		"course_id":   courseID,
		"format":      format,
	})
}

func (s *Server) handleWriteProgramEnrollments(w http.ResponseWriter, r *http.Request) {
	program, ok := s.authorizeProgram(w, r, roles.WriteEnrollments)
	if !ok {
		return
	}
	requests, ok := s.decodeBatch(w, r)
	if !ok {
		return
	}
	method := r.Method
	s.reconcileAndRespond(w, r, enrollments.ProgramStatuses, requests,
		func(ctx context.Context, reqs []enrollments.WriteRequest) (map[string]string, int, error) {
			return s.lms.WriteProgramEnrollments(ctx, method, program.Key, reqs)
		})
}

func (s *Server) handleWriteCourseEnrollments(w http.ResponseWriter, r *http.Request) {
	program, courseID, ok := s.authorizeCourse(w, r, roles.WriteEnrollments)
	if !ok {
		return
	}
	requests, ok := s.decodeBatch(w, r)
	if !ok {
		return
	}
	method := r.Method
	s.reconcileAndRespond(w, r, enrollments.CourseStatuses, requests,
		func(ctx context.Context, reqs []enrollments.WriteRequest) (map[string]string, int, error) {
			return s.lms.WriteCourseEnrollments(ctx, method, program.Key, courseID, reqs)
		})
}

func (s *Server) handleUploadProgramEnrollments(w http.ResponseWriter, r *http.Request) {
	program, ok := s.authorizeProgram(w, r, roles.WriteEnrollments)
	if !ok {
		return
	}
	requests, release, ok := s.openUpload(w, r, program.Key)
	if !ok {
		return
	}
	defer release()
	s.reconcileAndRespond(w, r, enrollments.ProgramStatuses, requests,
		func(ctx context.Context, reqs []enrollments.WriteRequest) (map[string]string, int, error) {
			return s.lms.WriteProgramEnrollments(ctx, http.MethodPost, program.Key, reqs)
		})
}

func (s *Server) handleUploadCourseEnrollments(w http.ResponseWriter, r *http.Request) {
	program, courseID, ok := s.authorizeCourse(w, r, roles.WriteEnrollments)
	if !ok {
		return
	}
	requests, release, ok := s.openUpload(w, r, program.Key+"/"+courseID)
	if !ok {
		return
	}
	defer release()
	s.reconcileAndRespond(w, r, enrollments.CourseStatuses, requests,
		func(ctx context.Context, reqs []enrollments.WriteRequest) (map[string]string, int, error) {
			return s.lms.WriteCourseEnrollments(ctx, http.MethodPost, program.Key, courseID, reqs)
		})
}

// authorizeCourse authorizes the program and checks the course run belongs to
// it via the catalog, writing 404 when it does not.
func (s *Server) authorizeCourse(w http.ResponseWriter, r *http.Request, capability roles.Capability) (models.Program, string, bool) {
	program, ok := s.authorizeProgram(w, r, capability)
	if !ok {
		return models.Program{}, "", false
	}
	courseID := chi.URLParam(r, "courseID")
	discovered, err := s.catalog.Program(r.Context(), program.DiscoveryUUID)
	if err != nil {
		s.writeError(w, err)
		return models.Program{}, "", false
	}
	if !discovered.HasCourseRun(courseID) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "course not in program"})
		return models.Program{}, "", false
	}
	return program, courseID, true
}

// resultFormat validates the requested artifact format. Unsupported tokens
// are 404: that representation of the resource does not exist.
func (s *Server) resultFormat(w http.ResponseWriter, r *http.Request) (string, bool) {
	format := r.URL.Query().Get("fmt")
	if format == "" {
		format = export.FormatJSON
	}
	if format != export.FormatJSON && format != export.FormatCSV {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "format not supported"})
		return "", false
	}
	return format, true
}

// acceptJob starts a unit of work and answers 202 with the durable handle.
func (s *Server) acceptJob(w http.ResponseWriter, r *http.Request, kind string, payload map[string]any) {
	job, err := s.jobs.Start(r.Context(), principalFrom(r.Context()), kind, payload)
	if err != nil {
		s.writeError(w, err)
		return
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	writeJSON(w, http.StatusAccepted, jobAcceptance{
		JobID:  job.ID,
		JobURL: fmt.Sprintf("%s://%s/api/v1/jobs/%s", scheme, r.Host, job.ID),
	})
}

func (s *Server) decodeBatch(w http.ResponseWriter, r *http.Request) ([]enrollments.WriteRequest, bool) {
	var requests []enrollments.WriteRequest
	if err := json.NewDecoder(r.Body).Decode(&requests); err != nil {
		s.writeError(w, fmt.Errorf("%w: %v", enrollments.ErrMalformedBatch, err))
		return nil, false
	}
	return requests, true
}

// openUpload takes the scope's write lock and parses the uploaded CSV into
// write requests. The caller must invoke the returned release func.
func (s *Server) openUpload(w http.ResponseWriter, r *http.Request, scope string) ([]enrollments.WriteRequest, func(), bool) {
	user := principalFrom(r.Context())
	acquired, err := s.locks.Acquire(r.Context(), scope, user)
	if err != nil {
		s.writeError(w, err)
		return nil, nil, false
	}
	if !acquired {
		s.conflict(w, "an enrollment write is already in flight for this scope")
		return nil, nil, false
	}
	release := func() { _ = s.locks.Release(r.Context(), scope, user) }

	// Cap the request body before multipart parsing buffers it; the slack
	// covers multipart framing around the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.UploadMaxBytes+4096)
	file, _, err := r.FormFile("file")
	if err != nil {
		release()
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, fmt.Errorf("%w (limit %d bytes)", enrollments.ErrUploadTooLarge, s.cfg.UploadMaxBytes))
			return nil, nil, false
		}
		s.writeError(w, fmt.Errorf("%w: missing file field: %v", enrollments.ErrBadUpload, err))
		return nil, nil, false
	}
	defer file.Close()

	requests, err := enrollments.ParseUpload(file, s.cfg.UploadMaxBytes)
	if err != nil {
		release()
		s.writeError(w, err)
		return nil, nil, false
	}
	return requests, release, true
}

// reconcileAndRespond runs a batch through the reconciler and writes the
// merged per-student map with the aggregate status code.
func (s *Server) reconcileAndRespond(w http.ResponseWriter, r *http.Request, validStatuses map[string]bool,
	requests []enrollments.WriteRequest, forward enrollments.Forwarder) {
	reconciler := enrollments.Reconciler{
		ValidStatuses: validStatuses,
		BatchLimit:    s.cfg.WriteBatchLimit,
	}
	results, code, err := reconciler.Reconcile(r.Context(), requests, forward)
	if err != nil {
		s.writeError(w, err)
		return
	}
	telemetry.ObserveWriteBatch(code)
	writeJSON(w, code, results)
}
