package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"learner-records-api/internal/models"
	"learner-records-api/internal/roles"
)

// permFilters maps the user_has_perm query values onto capabilities.
var permFilters = map[string]roles.Capability{
	"read_metadata":     roles.ReadMetadata,
	"read_enrollments":  roles.ReadEnrollments,
	"write_enrollments": roles.WriteEnrollments,
}

func (s *Server) handleListPrograms(w http.ResponseWriter, r *http.Request) {
	user := principalFrom(r.Context())
	capability := roles.ReadMetadata
	if perm := r.URL.Query().Get("user_has_perm"); perm != "" {
		c, ok := permFilters[perm]
		if !ok {
			writeJSON(w, http.StatusNotFound, errorBody{Error: "unknown permission filter"})
			return
		}
		capability = c
	}

	orgKey := r.URL.Query().Get("org")
	if orgKey != "" {
		if _, err := s.registry.GetOrganization(r.Context(), orgKey); err != nil {
			s.writeError(w, err)
			return
		}
		caps, err := s.perms.Capabilities(r.Context(), user, orgKey)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if !caps.Has(capability) {
			s.forbidden(w)
			return
		}
		programs, err := s.registry.ListPrograms(r.Context(), orgKey)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, programList(programs))
		return
	}

	// No filter: a global grant sees everything, otherwise the listing is
	// the union of the caller's permitted organizations.
	global, err := s.perms.HasGlobal(r.Context(), user, capability)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if global {
		programs, err := s.registry.ListPrograms(r.Context(), "")
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, programList(programs))
		return
	}
	orgs, err := s.perms.OrgsWithCapability(r.Context(), user, capability)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if len(orgs) == 0 {
		s.forbidden(w)
		return
	}
	var programs []models.Program
	for _, org := range orgs {
		batch, err := s.registry.ListPrograms(r.Context(), org)
		if err != nil {
			s.writeError(w, err)
			return
		}
		programs = append(programs, batch...)
	}
	writeJSON(w, http.StatusOK, programList(programs))
}

func (s *Server) handleGetProgram(w http.ResponseWriter, r *http.Request) {
	program, ok := s.authorizeProgram(w, r, roles.ReadMetadata)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, program)
}

func (s *Server) handleListCourses(w http.ResponseWriter, r *http.Request) {
	program, ok := s.authorizeProgram(w, r, roles.ReadMetadata)
	if !ok {
		return
	}
	discovered, err := s.catalog.Program(r.Context(), program.DiscoveryUUID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	runs := discovered.CourseRuns()
	if runs == nil {
		runs = []models.CourseRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// authorizeProgram loads the program from the URL and checks the caller's
// capability against its managing organization, writing 404/403 on failure.
// Authorization always precedes job creation and backend calls.
func (s *Server) authorizeProgram(w http.ResponseWriter, r *http.Request, capability roles.Capability) (models.Program, bool) {
	programKey := chi.URLParam(r, "programKey")
	program, err := s.registry.GetProgram(r.Context(), programKey)
	if err != nil {
		s.writeError(w, err)
		return models.Program{}, false
	}
	caps, err := s.perms.Capabilities(r.Context(), principalFrom(r.Context()), program.OrgKey)
	if err != nil {
		s.writeError(w, err)
		return models.Program{}, false
	}
	if !caps.Has(capability) {
		s.forbidden(w)
		return models.Program{}, false
	}
	return program, true
}

func programList(programs []models.Program) []models.Program {
	if programs == nil {
		return []models.Program{}
	}
	return programs
}
