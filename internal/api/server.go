// Package api exposes the HTTP surface: program metadata, synchronous bulk
// enrollment writes, asynchronous enrollment/grade reads, and job polling.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"learner-records-api/internal/catalog"
	"learner-records-api/internal/config"
	"learner-records-api/internal/enrollments"
	"learner-records-api/internal/jobs"
	"learner-records-api/internal/models"
	"learner-records-api/internal/roles"
	"learner-records-api/internal/telemetry"
)

// Registry reads the locally stored organization/program records.
type Registry interface {
	GetOrganization(ctx context.Context, key string) (models.Organization, error)
	GetProgram(ctx context.Context, key string) (models.Program, error)
	ListPrograms(ctx context.Context, orgKey string) ([]models.Program, error)
}

// PermissionResolver resolves capability sets for authorization decisions.
type PermissionResolver interface {
	Capabilities(ctx context.Context, userID, orgKey string) (roles.Set, error)
	HasGlobal(ctx context.Context, userID string, c roles.Capability) (bool, error)
	OrgsWithCapability(ctx context.Context, userID string, c roles.Capability) ([]string, error)
}

// JobAPI starts jobs and reads their status.
type JobAPI interface {
	Start(ctx context.Context, ownerID, kind string, payload map[string]any) (models.Job, error)
	Status(ctx context.Context, userID, jobID string) (jobs.StatusView, error)
	List(ctx context.Context, userID string, limit int) ([]jobs.StatusView, error)
}

// EnrollmentWriter forwards validated write batches to the LMS.
type EnrollmentWriter interface {
	WriteProgramEnrollments(ctx context.Context, method, programKey string, requests []enrollments.WriteRequest) (map[string]string, int, error)
	WriteCourseEnrollments(ctx context.Context, method, programKey, courseID string, requests []enrollments.WriteRequest) (map[string]string, int, error)
}

// CatalogSource resolves program structure from discovery.
type CatalogSource interface {
	Program(ctx context.Context, uuid string) (*catalog.Program, error)
}

// WriteLocker guards enrollment write scopes against concurrent writes.
type WriteLocker interface {
	Acquire(ctx context.Context, scope, holder string) (bool, error)
	Release(ctx context.Context, scope, holder string) error
}

// WriteLimiter throttles write traffic per user. May be nil to disable.
type WriteLimiter interface {
	AllowUser(ctx context.Context, userID string) (bool, error)
}

// Server wires HTTP handlers to their collaborators.
type Server struct {
	cfg      config.Config
	registry Registry
	perms    PermissionResolver
	jobs     JobAPI
	lms      EnrollmentWriter
	catalog  CatalogSource
	locks    WriteLocker
	limiter  WriteLimiter
	logger   *slog.Logger
}

// New constructs the API server.
func New(cfg config.Config, registry Registry, perms PermissionResolver, jobAPI JobAPI,
	lms EnrollmentWriter, cat CatalogSource, locks WriteLocker, limiter WriteLimiter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:      cfg,
		registry: registry,
		perms:    perms,
		jobs:     jobAPI,
		lms:      lms,
		catalog:  cat,
		locks:    locks,
		limiter:  limiter,
		logger:   logger.With("component", "api"),
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Mount("/metrics", telemetry.Handler())

	// Without S3, artifacts live on disk and are served directly.
	if s.cfg.ResultS3Bucket == "" {
		fs := http.StripPrefix("/results/", http.FileServer(http.Dir(s.cfg.ResultLocalDir)))
		r.Get("/results/*", fs.ServeHTTP)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.requirePrincipal)

		r.With(s.trackEvent(resourcePrograms)).Get("/programs", s.handleListPrograms)
		r.Route("/programs/{programKey}", func(r chi.Router) {
			r.With(s.trackEvent(resourceProgram)).Get("/", s.handleGetProgram)
			r.With(s.trackEvent(resourceProgramCourses)).Get("/courses", s.handleListCourses)

			r.Route("/enrollments", func(r chi.Router) {
				r.With(s.trackEvent(resourceProgramEnrollments)).Get("/", s.handleReadProgramEnrollments)
				r.With(s.trackEvent(resourceProgramEnrollments), s.throttleWrites).
					Post("/", s.handleWriteProgramEnrollments)
				r.With(s.trackEvent(resourceProgramEnrollments), s.throttleWrites).
					Patch("/", s.handleWriteProgramEnrollments)
				r.With(s.trackEvent(resourceProgramEnrollmentUpload), s.throttleWrites).
					Post("/upload", s.handleUploadProgramEnrollments)
			})

			r.Route("/courses/{courseID}", func(r chi.Router) {
				r.Route("/enrollments", func(r chi.Router) {
					r.With(s.trackEvent(resourceCourseEnrollments)).Get("/", s.handleReadCourseEnrollments)
					r.With(s.trackEvent(resourceCourseEnrollments), s.throttleWrites).
						Post("/", s.handleWriteCourseEnrollments)
					r.With(s.trackEvent(resourceCourseEnrollments), s.throttleWrites).
						Patch("/", s.handleWriteCourseEnrollments)
					r.With(s.trackEvent(resourceCourseEnrollmentUpload), s.throttleWrites).
						Post("/upload", s.handleUploadCourseEnrollments)
				})
				r.With(s.trackEvent(resourceCourseGrades)).Get("/grades", s.handleReadCourseGrades)
			})
		})

		r.With(s.trackEvent(resourceJobs)).Get("/jobs", s.handleListJobs)
		r.With(s.trackEvent(resourceJob)).Get("/jobs/{jobID}", s.handleGetJob)
	})

	return r
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
