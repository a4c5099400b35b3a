package rbac

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"github.com/traceloft/traceloft/pkg/apperrors"
)

// Store provides the membership and existence lookups the resolver needs.
type Store struct {
	db *sql.DB
}

// NewStore creates a new membership store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// GetOrgRole returns the user's explicit organization role. sql.ErrNoRows
// is returned unmapped so the resolver can apply existence hiding.
func (s *Store) GetOrgRole(ctx context.Context, userID, orgID string) (OrgRole, error) {
	query := `
		SELECT role
		FROM organization_memberships
		WHERE organization_id = $1 AND member_id = $2
	`
	var role OrgRole
	err := s.db.QueryRowContext(ctx, query, orgID, userID).Scan(&role)
	if err == sql.ErrNoRows {
		return "", err
	}
	if err != nil {
		return "", apperrors.Database("failed to get organization role", err)
	}
	return role, nil
}

// GetProjectRole returns the user's explicit project role. sql.ErrNoRows is
// returned unmapped, as with GetOrgRole.
func (s *Store) GetProjectRole(ctx context.Context, userID, projectID string) (ProjectRole, error) {
	query := `
		SELECT role
		FROM project_memberships
		WHERE project_id = $1 AND member_id = $2
	`
	var role ProjectRole
	err := s.db.QueryRowContext(ctx, query, projectID, userID).Scan(&role)
	if err == sql.ErrNoRows {
		return "", err
	}
	if err != nil {
		return "", apperrors.Database("failed to get project role", err)
	}
	return role, nil
}

// ProjectExistsInOrg reports whether the project belongs to the given
// organization.
func (s *Store) ProjectExistsInOrg(ctx context.Context, orgID, projectID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM projects WHERE id = $1 AND organization_id = $2
		)
	`
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, projectID, orgID).Scan(&exists); err != nil {
		return false, apperrors.Database("failed to check project existence", err)
	}
	return exists, nil
}

// ResolveEnvironment returns the owning project and organization of an
// environment. sql.ErrNoRows is returned unmapped for existence hiding.
func (s *Store) ResolveEnvironment(ctx context.Context, envID string) (projectID, orgID string, err error) {
	query := `
		SELECT e.project_id, p.organization_id
		FROM environments e
		JOIN projects p ON p.id = e.project_id
		WHERE e.id = $1
	`
	err = s.db.QueryRowContext(ctx, query, envID).Scan(&projectID, &orgID)
	if err == sql.ErrNoRows {
		return "", "", err
	}
	if err != nil {
		return "", "", apperrors.Database("failed to resolve environment", err)
	}
	return projectID, orgID, nil
}

// ProjectIDsWithRoles returns the ids of projects in the organization where
// the user holds one of the given explicit roles.
func (s *Store) ProjectIDsWithRoles(ctx context.Context, userID, orgID string, roles ...ProjectRole) ([]string, error) {
	query := `
		SELECT pm.project_id
		FROM project_memberships pm
		JOIN projects p ON p.id = pm.project_id
		WHERE pm.member_id = $1 AND p.organization_id = $2 AND pm.role = ANY($3)
	`
	roleStrs := make([]string, len(roles))
	for i, r := range roles {
		roleStrs[i] = string(r)
	}
	rows, err := s.db.QueryContext(ctx, query, userID, orgID, pq.Array(roleStrs))
	if err != nil {
		return nil, apperrors.Database("failed to list project roles", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperrors.Database("failed to scan project id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Database("failed to iterate project roles", err)
	}
	return ids, nil
}
