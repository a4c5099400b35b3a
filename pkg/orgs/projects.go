package orgs

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/traceloft/traceloft/pkg/apperrors"
	"github.com/traceloft/traceloft/pkg/rbac"
)

// CreateProject creates a project inside an organization the creator owns
// or administers, granting the creator project ADMIN and writing the GRANT
// audit entry in the same transaction.
func (s *Service) CreateProject(ctx context.Context, userID, orgID, name string) (*Project, error) {
	if err := s.requireOrgManager(ctx, userID, orgID); err != nil {
		return nil, err
	}

	project := &Project{
		ID:             uuid.NewString(),
		OrganizationID: orgID,
		Name:           name,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperrors.Database("failed to begin transaction", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx,
		`INSERT INTO projects (id, organization_id, name, created_at) VALUES ($1, $2, $3, NOW()) RETURNING created_at`,
		project.ID, orgID, name,
	).Scan(&project.CreatedAt)
	if err != nil {
		if apperrors.IsUniqueViolation(err) {
			return nil, apperrors.AlreadyExistsf("project %q already exists in organization", name)
		}
		return nil, apperrors.Database("failed to create project", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO project_memberships (project_id, member_id, role, created_at) VALUES ($1, $2, $3, NOW())`,
		project.ID, userID, rbac.ProjectRoleAdmin,
	)
	if err != nil {
		return nil, apperrors.Database("failed to grant creator role", err)
	}

	if err := s.audits.Grant(ctx, tx, project.ID, userID, userID, string(rbac.ProjectRoleAdmin)); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, apperrors.Database("failed to commit project", err)
	}
	return project, nil
}

// GetProject returns a project visible to the caller.
func (s *Service) GetProject(ctx context.Context, userID, orgID, projectID string) (*Project, error) {
	if _, err := s.resolver.ResolveProjectRole(ctx, userID, orgID, projectID); err != nil {
		return nil, err
	}

	project := &Project{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, organization_id, name, created_at FROM projects WHERE id = $1 AND organization_id = $2`,
		projectID, orgID,
	).Scan(&project.ID, &project.OrganizationID, &project.Name, &project.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("resource not found")
	}
	if err != nil {
		return nil, apperrors.Database("failed to get project", err)
	}
	return project, nil
}

// CreateEnvironment creates an environment inside a project. Project ADMIN
// only.
func (s *Service) CreateEnvironment(ctx context.Context, userID, orgID, projectID, name string) (*Environment, error) {
	if _, err := s.gate.Authorize(ctx, userID, rbac.ResourceEnvironments, rbac.ActionCreate, rbac.ProjectScope(orgID, projectID)); err != nil {
		return nil, err
	}

	env := &Environment{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Name:      name,
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO environments (id, project_id, name, created_at) VALUES ($1, $2, $3, NOW()) RETURNING created_at`,
		env.ID, projectID, name,
	).Scan(&env.CreatedAt)
	if err != nil {
		if apperrors.IsUniqueViolation(err) {
			return nil, apperrors.AlreadyExistsf("environment %q already exists in project", name)
		}
		return nil, apperrors.Database("failed to create environment", err)
	}
	return env, nil
}

// ListEnvironments lists a project's environments; open to all four
// project roles.
func (s *Service) ListEnvironments(ctx context.Context, userID, orgID, projectID string) ([]*Environment, error) {
	if _, err := s.gate.Authorize(ctx, userID, rbac.ResourceEnvironments, rbac.ActionRead, rbac.ProjectScope(orgID, projectID)); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, name, created_at FROM environments WHERE project_id = $1 ORDER BY created_at ASC`,
		projectID,
	)
	if err != nil {
		return nil, apperrors.Database("failed to list environments", err)
	}
	defer rows.Close()

	var envs []*Environment
	for rows.Next() {
		env := &Environment{}
		if err := rows.Scan(&env.ID, &env.ProjectID, &env.Name, &env.CreatedAt); err != nil {
			return nil, apperrors.Database("failed to scan environment", err)
		}
		envs = append(envs, env)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Database("failed to iterate environments", err)
	}
	return envs, nil
}
