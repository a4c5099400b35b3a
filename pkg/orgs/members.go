package orgs

import (
	"context"
	"database/sql"
	"errors"

	"github.com/traceloft/traceloft/pkg/apperrors"
	"github.com/traceloft/traceloft/pkg/rbac"
)

// AddProjectMember adds a user to a project. The actor needs the
// project-membership create permission; the target must already hold an
// organization membership, failing PermissionDenied (not the
// existence-hiding NotFound) otherwise. The membership row and its GRANT
// audit entry commit together.
func (s *Service) AddProjectMember(ctx context.Context, actorID, orgID, projectID, targetID string, role rbac.ProjectRole) error {
	if _, err := s.gate.Authorize(ctx, actorID, rbac.ResourceProjectMemberships, rbac.ActionCreate, rbac.ProjectScope(orgID, projectID)); err != nil {
		return err
	}

	var hasOrgMembership bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM organization_memberships WHERE organization_id = $1 AND member_id = $2)`,
		orgID, targetID,
	).Scan(&hasOrgMembership)
	if err != nil {
		return apperrors.Database("failed to check organization membership", err)
	}
	if !hasOrgMembership {
		return apperrors.PermissionDenied("user must be a member of the organization before joining a project")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Database("failed to begin transaction", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO project_memberships (project_id, member_id, role, created_at) VALUES ($1, $2, $3, NOW())`,
		projectID, targetID, role,
	)
	if err != nil {
		if apperrors.IsUniqueViolation(err) {
			return apperrors.AlreadyExistsf("user %s is already a member of the project", targetID)
		}
		return apperrors.Database("failed to add project member", err)
	}

	if err := s.audits.Grant(ctx, tx, projectID, actorID, targetID, string(role)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Database("failed to commit project membership", err)
	}
	return nil
}

// UpdateProjectMemberRole changes a member's project role, recording a
// CHANGE audit entry in the same transaction. A project ADMIN may not
// change their own row.
func (s *Service) UpdateProjectMemberRole(ctx context.Context, actorID, orgID, projectID, targetID string, role rbac.ProjectRole) error {
	actorRole, err := s.gate.Authorize(ctx, actorID, rbac.ResourceProjectMemberships, rbac.ActionUpdate, rbac.ProjectScope(orgID, projectID))
	if err != nil {
		return err
	}
	if actorID == targetID && actorRole == rbac.ProjectRoleAdmin {
		return apperrors.PermissionDenied("admins cannot change their own membership")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Database("failed to begin transaction", err)
	}
	defer tx.Rollback()

	previous, err := memberRoleForUpdate(ctx, tx, projectID, targetID)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE project_memberships SET role = $1 WHERE project_id = $2 AND member_id = $3`,
		role, projectID, targetID,
	); err != nil {
		return apperrors.Database("failed to update project member", err)
	}

	if err := s.audits.Change(ctx, tx, projectID, actorID, targetID, string(previous), string(role)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Database("failed to commit role change", err)
	}
	return nil
}

// RemoveProjectMember removes a member, recording a REVOKE audit entry in
// the same transaction. A project ADMIN may not remove themselves;
// non-admin roles may.
func (s *Service) RemoveProjectMember(ctx context.Context, actorID, orgID, projectID, targetID string) error {
	if actorID == targetID {
		actorRole, err := s.resolver.ResolveProjectRole(ctx, actorID, orgID, projectID)
		if err != nil {
			return err
		}
		if actorRole == rbac.ProjectRoleAdmin {
			return apperrors.PermissionDenied("admins cannot remove their own membership")
		}
	} else {
		if _, err := s.gate.Authorize(ctx, actorID, rbac.ResourceProjectMemberships, rbac.ActionDelete, rbac.ProjectScope(orgID, projectID)); err != nil {
			return err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Database("failed to begin transaction", err)
	}
	defer tx.Rollback()

	previous, err := memberRoleForUpdate(ctx, tx, projectID, targetID)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM project_memberships WHERE project_id = $1 AND member_id = $2`,
		projectID, targetID,
	); err != nil {
		return apperrors.Database("failed to remove project member", err)
	}

	if err := s.audits.Revoke(ctx, tx, projectID, actorID, targetID, string(previous)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Database("failed to commit member removal", err)
	}
	return nil
}

// ListProjectMembers lists a project's explicit membership rows; open to
// all four project roles.
func (s *Service) ListProjectMembers(ctx context.Context, userID, orgID, projectID string) ([]*ProjectMember, error) {
	if _, err := s.gate.Authorize(ctx, userID, rbac.ResourceProjectMemberships, rbac.ActionRead, rbac.ProjectScope(orgID, projectID)); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT project_id, member_id, role, created_at FROM project_memberships WHERE project_id = $1 ORDER BY created_at ASC`,
		projectID,
	)
	if err != nil {
		return nil, apperrors.Database("failed to list project members", err)
	}
	defer rows.Close()

	var members []*ProjectMember
	for rows.Next() {
		m := &ProjectMember{}
		if err := rows.Scan(&m.ProjectID, &m.MemberID, &m.Role, &m.CreatedAt); err != nil {
			return nil, apperrors.Database("failed to scan project member", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Database("failed to iterate project members", err)
	}
	return members, nil
}

// memberRoleForUpdate reads the target's current role inside tx, locking
// the row so the audit entry records the role the mutation actually
// replaced.
func memberRoleForUpdate(ctx context.Context, tx *sql.Tx, projectID, targetID string) (rbac.ProjectRole, error) {
	var role rbac.ProjectRole
	err := tx.QueryRowContext(ctx,
		`SELECT role FROM project_memberships WHERE project_id = $1 AND member_id = $2 FOR UPDATE`,
		projectID, targetID,
	).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperrors.NotFound("project membership not found")
	}
	if err != nil {
		return "", apperrors.Database("failed to read project membership", err)
	}
	return role, nil
}
