package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/traceloft/traceloft/pkg/contextkeys"
	"github.com/traceloft/traceloft/pkg/httputil"
	"github.com/traceloft/traceloft/pkg/rbac"
)

type createProjectRequest struct {
	Name string `json:"name"`
}

type projectMemberRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

type createEnvironmentRequest struct {
	Name string `json:"name"`
}

func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	orgID := mux.Vars(r)["orgID"]

	var req createProjectRequest
	if !httputil.DecodeJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.WriteBadRequest(w, "project name is required")
		return
	}

	project, err := s.orgs.CreateProject(r.Context(), contextkeys.GetUserID(r.Context()), orgID, req.Name)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteCreated(w, project)
}

func (s *Server) getProject(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	project, err := s.orgs.GetProject(r.Context(), contextkeys.GetUserID(r.Context()),
		vars["orgID"], vars["projectID"])
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteSuccess(w, project)
}

func (s *Server) addProjectMember(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var req projectMemberRequest
	if !httputil.DecodeJSONOrError(w, r, &req) {
		return
	}
	if req.UserID == "" {
		httputil.WriteBadRequest(w, "user_id is required")
		return
	}
	role, ok := rbac.ParseProjectRole(req.Role)
	if !ok {
		httputil.WriteBadRequest(w, "role must be one of ADMIN, DEVELOPER, VIEWER, ANNOTATOR")
		return
	}

	err := s.orgs.AddProjectMember(r.Context(), contextkeys.GetUserID(r.Context()),
		vars["orgID"], vars["projectID"], req.UserID, role)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteCreated(w, map[string]string{
		"project_id": vars["projectID"],
		"user_id":    req.UserID,
		"role":       string(role),
	})
}

func (s *Server) listProjectMembers(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	members, err := s.orgs.ListProjectMembers(r.Context(), contextkeys.GetUserID(r.Context()),
		vars["orgID"], vars["projectID"])
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteSuccess(w, members)
}

func (s *Server) updateProjectMember(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var req roleRequest
	if !httputil.DecodeJSONOrError(w, r, &req) {
		return
	}
	role, ok := rbac.ParseProjectRole(req.Role)
	if !ok {
		httputil.WriteBadRequest(w, "role must be one of ADMIN, DEVELOPER, VIEWER, ANNOTATOR")
		return
	}

	err := s.orgs.UpdateProjectMemberRole(r.Context(), contextkeys.GetUserID(r.Context()),
		vars["orgID"], vars["projectID"], vars["userID"], role)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]string{
		"project_id": vars["projectID"],
		"user_id":    vars["userID"],
		"role":       string(role),
	})
}

func (s *Server) removeProjectMember(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	err := s.orgs.RemoveProjectMember(r.Context(), contextkeys.GetUserID(r.Context()),
		vars["orgID"], vars["projectID"], vars["userID"])
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) createEnvironment(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var req createEnvironmentRequest
	if !httputil.DecodeJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.WriteBadRequest(w, "environment name is required")
		return
	}

	env, err := s.orgs.CreateEnvironment(r.Context(), contextkeys.GetUserID(r.Context()),
		vars["orgID"], vars["projectID"], req.Name)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteCreated(w, env)
}

func (s *Server) listEnvironments(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	envs, err := s.orgs.ListEnvironments(r.Context(), contextkeys.GetUserID(r.Context()),
		vars["orgID"], vars["projectID"])
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteSuccess(w, envs)
}
