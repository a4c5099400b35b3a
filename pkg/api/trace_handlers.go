package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/traceloft/traceloft/pkg/contextkeys"
	"github.com/traceloft/traceloft/pkg/httputil"
	"github.com/traceloft/traceloft/pkg/otlp"
	"github.com/traceloft/traceloft/pkg/rbac"
)

// ingestTraces accepts an OTLP/JSON ExportTraceServiceRequest. The target
// environment comes from the caller's environment-scoped key, never from
// the request body.
func (s *Server) ingestTraces(w http.ResponseWriter, r *http.Request) {
	identity := contextkeys.GetIdentity(r.Context())

	var req otlp.ExportRequest
	if !httputil.DecodeJSONOrError(w, r, &req) {
		return
	}

	scope := rbac.EnvironmentScope(identity.OrganizationID, identity.ProjectID, identity.EnvironmentID)
	result, err := s.traces.Create(r.Context(), identity.OwnerID, scope, req)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteSuccess(w, result)
}

func traceScope(vars map[string]string) rbac.Scope {
	return rbac.EnvironmentScope(vars["orgID"], vars["projectID"], vars["envID"])
}

func (s *Server) listTraces(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	limit := httputil.QueryInt(r, "limit", 0)

	traces, err := s.traces.FindAll(r.Context(), contextkeys.GetUserID(r.Context()), traceScope(vars), limit)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteSuccess(w, traces)
}

func (s *Server) getTrace(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	trace, err := s.traces.FindByID(r.Context(), contextkeys.GetUserID(r.Context()),
		traceScope(vars), vars["traceID"])
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteSuccess(w, trace)
}

func (s *Server) updateTrace(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	err := s.traces.Update(r.Context(), contextkeys.GetUserID(r.Context()),
		traceScope(vars), vars["traceID"])
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]string{"trace_id": vars["traceID"]})
}

func (s *Server) deleteTrace(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	err := s.traces.Delete(r.Context(), contextkeys.GetUserID(r.Context()),
		traceScope(vars), vars["traceID"])
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}
