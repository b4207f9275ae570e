package server

import (
	"net/http"
)

// listProjects serves GET /project: the known projects, scoped to the
// request's directory when one is set.
func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	var projects any
	var err error
	if dir := getDirectory(r.Context()); dir != "" {
		projects, err = s.projectService.ListForDir(r.Context(), dir)
	} else {
		projects, err = s.projectService.List(r.Context())
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

// getCurrentProject serves GET /project/current: the project resolved
// from the working directory.
func (s *Server) getCurrentProject(w http.ResponseWriter, r *http.Request) {
	var project any
	var err error
	if dir := getDirectory(r.Context()); dir != "" {
		project, err = s.projectService.CurrentForDir(r.Context(), dir)
	} else {
		project, err = s.projectService.Current(r.Context())
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, project)
}
