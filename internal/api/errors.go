package api

import (
	"errors"
	"net/http"

	"learner-records-api/internal/enrollments"
	"learner-records-api/internal/export"
	"learner-records-api/internal/jobs"
	"learner-records-api/internal/store"
)

type errorBody struct {
	Error string `json:"error"`
}

// writeError maps known error kinds onto the HTTP taxonomy: 400 malformed
// payloads, 403 missing capability, 404 unresolved resources and unsupported
// export formats, 413 oversize batches and uploads, 500 everything else.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	case errors.Is(err, export.ErrUnsupportedFormat):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "format not supported"})
	case errors.Is(err, jobs.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorBody{Error: "forbidden"})
	case errors.Is(err, enrollments.ErrMalformedBatch), errors.Is(err, enrollments.ErrBadUpload):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case errors.Is(err, enrollments.ErrBatchTooLarge), errors.Is(err, enrollments.ErrUploadTooLarge):
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: err.Error()})
	default:
		s.logger.Error("internal error", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func (s *Server) forbidden(w http.ResponseWriter) {
	writeJSON(w, http.StatusForbidden, errorBody{Error: "forbidden"})
}

func (s *Server) conflict(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusConflict, errorBody{Error: msg})
}
