// Package orgs implements the tenancy services: organizations, projects,
// environments and their memberships. Membership mutations and their audit
// entries commit in a single transaction; authorization goes through the
// rbac gate except for founder grants, which are atomic with resource
// creation and have no prior membership to check.
package orgs

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/traceloft/traceloft/pkg/apperrors"
	"github.com/traceloft/traceloft/pkg/audit"
	"github.com/traceloft/traceloft/pkg/rbac"
)

// Service carries the tenancy operations. All collaborators are injected
// once at construction.
type Service struct {
	db       *sql.DB
	resolver *rbac.RoleResolver
	gate     *rbac.PermissionGate
	audits   *audit.Store
}

// NewService creates the tenancy service.
func NewService(db *sql.DB, gate *rbac.PermissionGate, audits *audit.Store) *Service {
	return &Service{
		db:       db,
		resolver: gate.Resolver(),
		gate:     gate,
		audits:   audits,
	}
}

// CreateOrganization creates an organization and grants the creator OWNER
// atomically. The grant is deliberately not authorized: there is no prior
// membership to check.
func (s *Service) CreateOrganization(ctx context.Context, userID, name string) (*Organization, error) {
	org := &Organization{
		ID:   uuid.NewString(),
		Name: name,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperrors.Database("failed to begin transaction", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx,
		`INSERT INTO organizations (id, name, created_at) VALUES ($1, $2, NOW()) RETURNING created_at`,
		org.ID, org.Name,
	).Scan(&org.CreatedAt)
	if err != nil {
		if apperrors.IsUniqueViolation(err) {
			return nil, apperrors.AlreadyExistsf("organization %q already exists", name)
		}
		return nil, apperrors.Database("failed to create organization", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO organization_memberships (organization_id, member_id, role, created_at) VALUES ($1, $2, $3, NOW())`,
		org.ID, userID, rbac.OrgRoleOwner,
	)
	if err != nil {
		return nil, apperrors.Database("failed to grant founder role", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperrors.Database("failed to commit organization", err)
	}
	return org, nil
}

// AddOrgMember adds a user to the organization. Requires OWNER or ADMIN.
func (s *Service) AddOrgMember(ctx context.Context, actorID, orgID, targetID string, role rbac.OrgRole) error {
	if err := s.requireOrgManager(ctx, actorID, orgID); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO organization_memberships (organization_id, member_id, role, created_at) VALUES ($1, $2, $3, NOW())`,
		orgID, targetID, role,
	)
	if err != nil {
		if apperrors.IsUniqueViolation(err) {
			return apperrors.AlreadyExistsf("user %s is already a member of the organization", targetID)
		}
		return apperrors.Database("failed to add organization member", err)
	}
	return nil
}

// UpdateOrgMemberRole changes a member's organization role. An OWNER may
// not change their own row.
func (s *Service) UpdateOrgMemberRole(ctx context.Context, actorID, orgID, targetID string, role rbac.OrgRole) error {
	actorRole, err := s.requireOrgManagerRole(ctx, actorID, orgID)
	if err != nil {
		return err
	}
	if actorID == targetID && actorRole == rbac.OrgRoleOwner {
		return apperrors.PermissionDenied("owners cannot change their own membership")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE organization_memberships SET role = $1 WHERE organization_id = $2 AND member_id = $3`,
		role, orgID, targetID,
	)
	if err != nil {
		return apperrors.Database("failed to update organization member", err)
	}
	return requireRowAffected(res, "organization membership")
}

// RemoveOrgMember removes a member from the organization. Any member may
// remove themselves unless they are an OWNER; removing someone else
// requires OWNER or ADMIN.
func (s *Service) RemoveOrgMember(ctx context.Context, actorID, orgID, targetID string) error {
	actorRole, err := s.resolver.ResolveOrgRole(ctx, actorID, orgID)
	if err != nil {
		return err
	}
	if actorID == targetID {
		if actorRole == rbac.OrgRoleOwner {
			return apperrors.PermissionDenied("owners cannot remove their own membership")
		}
	} else if !actorRole.IsElevated() {
		return apperrors.PermissionDeniedf("role %s cannot remove organization members", actorRole)
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM organization_memberships WHERE organization_id = $1 AND member_id = $2`,
		orgID, targetID,
	)
	if err != nil {
		return apperrors.Database("failed to remove organization member", err)
	}
	return requireRowAffected(res, "organization membership")
}

// requireOrgManager fails unless the actor is org OWNER or ADMIN.
func (s *Service) requireOrgManager(ctx context.Context, actorID, orgID string) error {
	_, err := s.requireOrgManagerRole(ctx, actorID, orgID)
	return err
}

func (s *Service) requireOrgManagerRole(ctx context.Context, actorID, orgID string) (rbac.OrgRole, error) {
	role, err := s.resolver.ResolveOrgRole(ctx, actorID, orgID)
	if err != nil {
		return "", err
	}
	if !role.IsElevated() {
		return "", apperrors.PermissionDeniedf("role %s cannot manage organization members", role)
	}
	return role, nil
}

// requireRowAffected maps a zero-row mutation to NotFound.
func requireRowAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.Database("failed to read affected rows", err)
	}
	if n == 0 {
		return apperrors.NotFoundf("%s not found", what)
	}
	return nil
}

// GetOrganization returns an organization the caller is a member of.
// Non-members get NotFound so organization existence never leaks.
func (s *Service) GetOrganization(ctx context.Context, userID, orgID string) (*Organization, error) {
	if _, err := s.resolver.ResolveOrgRole(ctx, userID, orgID); err != nil {
		return nil, err
	}

	org := &Organization{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM organizations WHERE id = $1`,
		orgID,
	).Scan(&org.ID, &org.Name, &org.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("resource not found")
	}
	if err != nil {
		return nil, apperrors.Database("failed to get organization", err)
	}
	return org, nil
}
