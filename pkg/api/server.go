// Package api exposes the HTTP surface: organization, project and
// environment management, API key lifecycle, and OTLP trace ingestion.
package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/traceloft/traceloft/pkg/apikeys"
	"github.com/traceloft/traceloft/pkg/ingest"
	"github.com/traceloft/traceloft/pkg/middleware"
	"github.com/traceloft/traceloft/pkg/observability"
	"github.com/traceloft/traceloft/pkg/orgs"
	"github.com/traceloft/traceloft/pkg/otlp"
	"github.com/traceloft/traceloft/pkg/rbac"
)

// OrgService is the organization, project and environment surface consumed
// by the handlers.
type OrgService interface {
	CreateOrganization(ctx context.Context, userID, name string) (*orgs.Organization, error)
	GetOrganization(ctx context.Context, userID, orgID string) (*orgs.Organization, error)
	AddOrgMember(ctx context.Context, actorID, orgID, targetID string, role rbac.OrgRole) error
	UpdateOrgMemberRole(ctx context.Context, actorID, orgID, targetID string, role rbac.OrgRole) error
	RemoveOrgMember(ctx context.Context, actorID, orgID, targetID string) error
	CreateProject(ctx context.Context, userID, orgID, name string) (*orgs.Project, error)
	GetProject(ctx context.Context, userID, orgID, projectID string) (*orgs.Project, error)
	AddProjectMember(ctx context.Context, actorID, orgID, projectID, targetID string, role rbac.ProjectRole) error
	UpdateProjectMemberRole(ctx context.Context, actorID, orgID, projectID, targetID string, role rbac.ProjectRole) error
	RemoveProjectMember(ctx context.Context, actorID, orgID, projectID, targetID string) error
	ListProjectMembers(ctx context.Context, userID, orgID, projectID string) ([]*orgs.ProjectMember, error)
	CreateEnvironment(ctx context.Context, userID, orgID, projectID, name string) (*orgs.Environment, error)
	ListEnvironments(ctx context.Context, userID, orgID, projectID string) ([]*orgs.Environment, error)
}

// KeyService is the API key surface consumed by the handlers.
type KeyService interface {
	Create(ctx context.Context, userID string, scope apikeys.KeyScope, name string) (*apikeys.APIKeyWithPlaintext, error)
	Delete(ctx context.Context, userID string, scope apikeys.KeyScope, keyID string) error
	ListForOrganization(ctx context.Context, userID, orgID string) ([]*apikeys.APIKey, error)
}

// TraceService is the trace surface consumed by the handlers.
type TraceService interface {
	Create(ctx context.Context, userID string, scope rbac.Scope, req otlp.ExportRequest) (*ingest.Result, error)
	FindAll(ctx context.Context, userID string, scope rbac.Scope, limit int) ([]*ingest.Trace, error)
	FindByID(ctx context.Context, userID string, scope rbac.Scope, otelTraceID string) (*ingest.TraceWithSpans, error)
	Delete(ctx context.Context, userID string, scope rbac.Scope, otelTraceID string) error
	Update(ctx context.Context, userID string, scope rbac.Scope, otelTraceID string) error
}

// Server routes authenticated HTTP requests to the service layer.
type Server struct {
	router *mux.Router
	orgs   OrgService
	keys   KeyService
	traces TraceService
	logger *logrus.Logger
}

// NewServer creates the API server and registers all routes. Every route
// requires an authenticated API key; management routes act as the key's
// owner.
func NewServer(orgSvc OrgService, keySvc KeyService, traceSvc TraceService,
	verifier middleware.KeyVerifier, metrics *observability.Metrics, logger *logrus.Logger) *Server {
	s := &Server{
		router: mux.NewRouter(),
		orgs:   orgSvc,
		keys:   keySvc,
		traces: traceSvc,
		logger: logger,
	}
	s.setupRoutes(verifier, metrics)
	return s
}

func (s *Server) setupRoutes(verifier middleware.KeyVerifier, metrics *observability.Metrics) {
	auth := middleware.NewAuthMiddleware(verifier)

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.Use(middleware.RequestID)
	v1.Use(middleware.Recover(s.logger))
	v1.Use(middleware.Observe(s.logger, metrics))
	v1.Use(auth.Handler)

	v1.HandleFunc("/organizations", s.createOrganization).Methods("POST")
	v1.HandleFunc("/organizations/{orgID}", s.getOrganization).Methods("GET")
	v1.HandleFunc("/organizations/{orgID}/members", s.addOrgMember).Methods("POST")
	v1.HandleFunc("/organizations/{orgID}/members/{userID}", s.updateOrgMember).Methods("PUT")
	v1.HandleFunc("/organizations/{orgID}/members/{userID}", s.removeOrgMember).Methods("DELETE")

	v1.HandleFunc("/organizations/{orgID}/projects", s.createProject).Methods("POST")
	v1.HandleFunc("/organizations/{orgID}/projects/{projectID}", s.getProject).Methods("GET")
	v1.HandleFunc("/organizations/{orgID}/projects/{projectID}/members", s.addProjectMember).Methods("POST")
	v1.HandleFunc("/organizations/{orgID}/projects/{projectID}/members", s.listProjectMembers).Methods("GET")
	v1.HandleFunc("/organizations/{orgID}/projects/{projectID}/members/{userID}", s.updateProjectMember).Methods("PUT")
	v1.HandleFunc("/organizations/{orgID}/projects/{projectID}/members/{userID}", s.removeProjectMember).Methods("DELETE")
	v1.HandleFunc("/organizations/{orgID}/projects/{projectID}/environments", s.createEnvironment).Methods("POST")
	v1.HandleFunc("/organizations/{orgID}/projects/{projectID}/environments", s.listEnvironments).Methods("GET")

	v1.HandleFunc("/organizations/{orgID}/api-keys", s.createAPIKey).Methods("POST")
	v1.HandleFunc("/organizations/{orgID}/api-keys", s.listAPIKeys).Methods("GET")
	v1.HandleFunc("/organizations/{orgID}/api-keys/{keyID}", s.deleteAPIKey).Methods("DELETE")

	v1.Handle("/traces", middleware.RequireEnvironmentKey(http.HandlerFunc(s.ingestTraces))).Methods("POST")
	v1.HandleFunc("/organizations/{orgID}/projects/{projectID}/environments/{envID}/traces", s.listTraces).Methods("GET")
	v1.HandleFunc("/organizations/{orgID}/projects/{projectID}/environments/{envID}/traces/{traceID}", s.getTrace).Methods("GET")
	v1.HandleFunc("/organizations/{orgID}/projects/{projectID}/environments/{envID}/traces/{traceID}", s.updateTrace).Methods("PUT")
	v1.HandleFunc("/organizations/{orgID}/projects/{projectID}/environments/{envID}/traces/{traceID}", s.deleteTrace).Methods("DELETE")
}

// Handler returns the server wrapped with OpenTelemetry HTTP
// instrumentation.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "traceloft.api")
}

// ServeHTTP implements http.Handler without the tracing wrapper, which
// keeps tests free of span noise.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
