package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/todmy/knowledge-core/internal/auth"
	"github.com/todmy/knowledge-core/internal/storage"
)

// ProjectRequest represents a project creation request
type ProjectRequest struct {
	Name string `json:"name"`
}

// handleListProjects returns all projects for the authenticated user
func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.GetUserFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	uid, err := uuid.Parse(claims.UserID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	projects, err := s.projects.GetByUserID(r.Context(), uid)
	if err != nil {
		s.logger.Error("list projects", errField(err))
		respondError(w, http.StatusInternalServerError, "failed to fetch projects")
		return
	}

	response := make([]interface{}, 0, len(projects))
	for _, p := range projects {
		response = append(response, toModelProject(p))
	}

	respondJSON(w, http.StatusOK, response)
}

// handleCreateProject creates a new project
func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.GetUserFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	uid, err := uuid.Parse(claims.UserID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var req ProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	project := &storage.Project{
		UserID: uid,
		Name:   req.Name,
	}

	if err := s.projects.Create(r.Context(), project); err != nil {
		s.logger.Error("create project", errField(err))
		respondError(w, http.StatusInternalServerError, "failed to create project")
		return
	}

	respondJSON(w, http.StatusCreated, toModelProject(project))
}

// handleGetProject returns a specific project
func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	project, ok := s.requireProject(w, r)
	if !ok {
		return
	}

	respondJSON(w, http.StatusOK, toModelProject(project))
}

// handleDeleteProject deletes a project and everything it owns
func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	project, ok := s.requireProject(w, r)
	if !ok {
		return
	}

	if err := s.projects.Delete(r.Context(), project.ID); err != nil {
		s.logger.Error("delete project", errField(err))
		respondError(w, http.StatusInternalServerError, "failed to delete project")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// requireProject parses the projectID route parameter, loads the project,
// and verifies the authenticated user owns it. On failure it writes the
// error response and returns ok=false.
func (s *Server) requireProject(w http.ResponseWriter, r *http.Request) (*storage.Project, bool) {
	pid, err := uuid.Parse(chi.URLParam(r, "projectID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid project id")
		return nil, false
	}

	project, err := s.projects.GetByID(r.Context(), pid)
	if err != nil {
		s.logger.Error("fetch project", errField(err))
		respondError(w, http.StatusInternalServerError, "failed to fetch project")
		return nil, false
	}
	if project == nil {
		respondError(w, http.StatusNotFound, "project not found")
		return nil, false
	}

	claims, ok := auth.GetUserFromContext(r.Context())
	if !ok || project.UserID.String() != claims.UserID {
		respondError(w, http.StatusForbidden, "access denied")
		return nil, false
	}

	return project, true
}
