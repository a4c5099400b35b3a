package rbac

import (
	"context"
	"database/sql"
	"errors"

	"github.com/traceloft/traceloft/pkg/apperrors"
)

// RoleResolver computes a user's effective role for a resource scope,
// top-down and short-circuiting. Organization OWNER and ADMIN implicitly
// hold the top project role at every project in the organization; everyone
// else needs an explicit membership row at the nested level.
//
// Every "no path to the resource" outcome is the same NotFound, regardless
// of which level failed, so callers can never distinguish "does not exist"
// from "not visible to you".
type RoleResolver struct {
	store *Store
}

// NewRoleResolver creates a resolver backed by the membership store.
func NewRoleResolver(store *Store) *RoleResolver {
	return &RoleResolver{store: store}
}

// errNoAccess is the single existence-hiding error surfaced for any caller
// without a path to the requested resource.
func errNoAccess() error {
	return apperrors.NotFound("resource not found")
}

// ResolveOrgRole returns the user's organization role, or NotFound when no
// membership row exists.
func (r *RoleResolver) ResolveOrgRole(ctx context.Context, userID, orgID string) (OrgRole, error) {
	role, err := r.store.GetOrgRole(ctx, userID, orgID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", errNoAccess()
	}
	if err != nil {
		return "", err
	}
	return role, nil
}

// ResolveProjectRole returns the user's effective project role.
//
// Org OWNER/ADMIN holds project ADMIN without an explicit row, but the
// project's existence in the org is still verified. Org MEMBER needs an
// explicit project membership row; its absence is NotFound, never
// PermissionDenied.
func (r *RoleResolver) ResolveProjectRole(ctx context.Context, userID, orgID, projectID string) (ProjectRole, error) {
	orgRole, err := r.ResolveOrgRole(ctx, userID, orgID)
	if err != nil {
		return "", err
	}

	if orgRole.IsElevated() {
		exists, err := r.store.ProjectExistsInOrg(ctx, orgID, projectID)
		if err != nil {
			return "", err
		}
		if !exists {
			return "", errNoAccess()
		}
		return ProjectRoleAdmin, nil
	}

	role, err := r.store.GetProjectRole(ctx, userID, projectID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", errNoAccess()
	}
	if err != nil {
		return "", err
	}
	return role, nil
}

// ResolveScope resolves the effective project role for an arbitrary scope
// chain. Environment-bearing scopes are resolved through the environment's
// owning project; an unknown environment is NotFound like any other missing
// link in the chain.
func (r *RoleResolver) ResolveScope(ctx context.Context, userID string, scope Scope) (ProjectRole, error) {
	projectID := scope.ProjectID

	if scope.EnvironmentID != "" {
		envProject, envOrg, err := r.store.ResolveEnvironment(ctx, scope.EnvironmentID)
		if errors.Is(err, sql.ErrNoRows) {
			return "", errNoAccess()
		}
		if err != nil {
			return "", err
		}
		// A scope that names a project the environment does not belong to
		// has no valid path.
		if projectID != "" && projectID != envProject {
			return "", errNoAccess()
		}
		if scope.OrganizationID != "" && scope.OrganizationID != envOrg {
			return "", errNoAccess()
		}
		return r.ResolveProjectRole(ctx, userID, envOrg, envProject)
	}

	if projectID == "" {
		return "", errNoAccess()
	}
	return r.ResolveProjectRole(ctx, userID, scope.OrganizationID, projectID)
}

// ProjectIDsWithRoles returns the projects in the organization where the
// user holds one of the given explicit roles. Elevated org roles are not
// expanded here; callers handle those before narrowing to explicit rows.
func (r *RoleResolver) ProjectIDsWithRoles(ctx context.Context, userID, orgID string, roles ...ProjectRole) ([]string, error) {
	return r.store.ProjectIDsWithRoles(ctx, userID, orgID, roles...)
}
