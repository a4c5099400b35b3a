package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/traceloft/traceloft/pkg/contextkeys"
	"github.com/traceloft/traceloft/pkg/httputil"
	"github.com/traceloft/traceloft/pkg/rbac"
)

type createOrganizationRequest struct {
	Name string `json:"name"`
}

type orgMemberRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

type roleRequest struct {
	Role string `json:"role"`
}

func (s *Server) createOrganization(w http.ResponseWriter, r *http.Request) {
	var req createOrganizationRequest
	if !httputil.DecodeJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.WriteBadRequest(w, "organization name is required")
		return
	}

	org, err := s.orgs.CreateOrganization(r.Context(), contextkeys.GetUserID(r.Context()), req.Name)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteCreated(w, org)
}

func (s *Server) getOrganization(w http.ResponseWriter, r *http.Request) {
	orgID := mux.Vars(r)["orgID"]

	org, err := s.orgs.GetOrganization(r.Context(), contextkeys.GetUserID(r.Context()), orgID)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteSuccess(w, org)
}

func (s *Server) addOrgMember(w http.ResponseWriter, r *http.Request) {
	orgID := mux.Vars(r)["orgID"]

	var req orgMemberRequest
	if !httputil.DecodeJSONOrError(w, r, &req) {
		return
	}
	if req.UserID == "" {
		httputil.WriteBadRequest(w, "user_id is required")
		return
	}
	role, ok := rbac.ParseOrgRole(req.Role)
	if !ok {
		httputil.WriteBadRequest(w, "role must be one of OWNER, ADMIN, MEMBER")
		return
	}

	err := s.orgs.AddOrgMember(r.Context(), contextkeys.GetUserID(r.Context()), orgID, req.UserID, role)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteCreated(w, map[string]string{
		"organization_id": orgID,
		"user_id":         req.UserID,
		"role":            string(role),
	})
}

func (s *Server) updateOrgMember(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var req roleRequest
	if !httputil.DecodeJSONOrError(w, r, &req) {
		return
	}
	role, ok := rbac.ParseOrgRole(req.Role)
	if !ok {
		httputil.WriteBadRequest(w, "role must be one of OWNER, ADMIN, MEMBER")
		return
	}

	err := s.orgs.UpdateOrgMemberRole(r.Context(), contextkeys.GetUserID(r.Context()),
		vars["orgID"], vars["userID"], role)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]string{
		"organization_id": vars["orgID"],
		"user_id":         vars["userID"],
		"role":            string(role),
	})
}

func (s *Server) removeOrgMember(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	err := s.orgs.RemoveOrgMember(r.Context(), contextkeys.GetUserID(r.Context()),
		vars["orgID"], vars["userID"])
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}
