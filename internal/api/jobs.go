package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"learner-records-api/internal/jobs"
)

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	view, err := s.jobs.Status(r.Context(), principalFrom(r.Context()), chi.URLParam(r, "jobID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	views, err := s.jobs.List(r.Context(), principalFrom(r.Context()), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if views == nil {
		views = []jobs.StatusView{}
	}
	writeJSON(w, http.StatusOK, views)
}
