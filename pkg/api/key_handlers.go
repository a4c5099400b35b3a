package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/traceloft/traceloft/pkg/apikeys"
	"github.com/traceloft/traceloft/pkg/contextkeys"
	"github.com/traceloft/traceloft/pkg/httputil"
)

type createAPIKeyRequest struct {
	Name string `json:"name"`
	// EnvironmentID selects an environment-scoped key; empty means an
	// organization-wide key.
	EnvironmentID string `json:"environment_id"`
}

func keyScope(orgID, environmentID string) apikeys.KeyScope {
	if environmentID == "" {
		return apikeys.KeyScope{OrganizationID: orgID}
	}
	return apikeys.KeyScope{OrganizationID: orgID, EnvironmentID: environmentID}
}

func (s *Server) createAPIKey(w http.ResponseWriter, r *http.Request) {
	orgID := mux.Vars(r)["orgID"]

	var req createAPIKeyRequest
	if !httputil.DecodeJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.WriteBadRequest(w, "api key name is required")
		return
	}

	key, err := s.keys.Create(r.Context(), contextkeys.GetUserID(r.Context()),
		keyScope(orgID, req.EnvironmentID), req.Name)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteCreated(w, key)
}

func (s *Server) listAPIKeys(w http.ResponseWriter, r *http.Request) {
	orgID := mux.Vars(r)["orgID"]

	keys, err := s.keys.ListForOrganization(r.Context(), contextkeys.GetUserID(r.Context()), orgID)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteSuccess(w, keys)
}

func (s *Server) deleteAPIKey(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	environmentID := r.URL.Query().Get("environment_id")

	err := s.keys.Delete(r.Context(), contextkeys.GetUserID(r.Context()),
		keyScope(vars["orgID"], environmentID), vars["keyID"])
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}
