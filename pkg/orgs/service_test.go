package orgs

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traceloft/traceloft/pkg/apperrors"
	"github.com/traceloft/traceloft/pkg/audit"
	"github.com/traceloft/traceloft/pkg/rbac"
)

func newMockService(t *testing.T) (*Service, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	gate := rbac.NewPermissionGate(rbac.NewRoleResolver(rbac.NewStore(db)))
	service := NewService(db, gate, audit.NewStore(db))
	return service, mock, db
}

func expectOrgRole(mock sqlmock.Sqlmock, userID, orgID, role string) {
	mock.ExpectQuery(`SELECT role\s+FROM organization_memberships`).
		WithArgs(orgID, userID).
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow(role))
}

func expectNoOrgRole(mock sqlmock.Sqlmock, userID, orgID string) {
	mock.ExpectQuery(`SELECT role\s+FROM organization_memberships`).
		WithArgs(orgID, userID).
		WillReturnError(sql.ErrNoRows)
}

func TestCreateOrganization(t *testing.T) {
	service, mock, db := newMockService(t)
	defer db.Close()
	ctx := context.Background()

	t.Run("creates org and founder owner in one transaction", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO organizations`).
			WithArgs(sqlmock.AnyArg(), "acme").
			WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
		mock.ExpectExec(`INSERT INTO organization_memberships`).
			WithArgs(sqlmock.AnyArg(), "user-1", rbac.OrgRoleOwner).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		org, err := service.CreateOrganization(ctx, "user-1", "acme")
		require.NoError(t, err)
		assert.Equal(t, "acme", org.Name)
		assert.NotEmpty(t, org.ID)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failed founder grant rolls back the org", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO organizations`).
			WithArgs(sqlmock.AnyArg(), "globex").
			WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
		mock.ExpectExec(`INSERT INTO organization_memberships`).
			WillReturnError(sql.ErrConnDone)
		mock.ExpectRollback()

		_, err := service.CreateOrganization(ctx, "user-1", "globex")
		require.Error(t, err)
		assert.True(t, apperrors.IsKind(err, apperrors.KindDatabase))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestOrgMemberGuards(t *testing.T) {
	service, mock, db := newMockService(t)
	defer db.Close()
	ctx := context.Background()

	t.Run("member cannot add members", func(t *testing.T) {
		expectOrgRole(mock, "user-member", "org-1", "MEMBER")

		err := service.AddOrgMember(ctx, "user-member", "org-1", "user-new", rbac.OrgRoleMember)
		assert.True(t, apperrors.IsPermissionDenied(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("outsider gets not found", func(t *testing.T) {
		expectNoOrgRole(mock, "user-outsider", "org-1")

		err := service.AddOrgMember(ctx, "user-outsider", "org-1", "user-new", rbac.OrgRoleMember)
		assert.True(t, apperrors.IsNotFound(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("owner cannot demote themselves", func(t *testing.T) {
		expectOrgRole(mock, "user-owner", "org-1", "OWNER")

		err := service.UpdateOrgMemberRole(ctx, "user-owner", "org-1", "user-owner", rbac.OrgRoleMember)
		assert.True(t, apperrors.IsPermissionDenied(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("owner cannot remove themselves", func(t *testing.T) {
		expectOrgRole(mock, "user-owner", "org-1", "OWNER")

		err := service.RemoveOrgMember(ctx, "user-owner", "org-1", "user-owner")
		assert.True(t, apperrors.IsPermissionDenied(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("plain member may remove themselves", func(t *testing.T) {
		expectOrgRole(mock, "user-member", "org-1", "MEMBER")
		mock.ExpectExec(`DELETE FROM organization_memberships`).
			WithArgs("org-1", "user-member").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := service.RemoveOrgMember(ctx, "user-member", "org-1", "user-member")
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate member translates to already exists", func(t *testing.T) {
		expectOrgRole(mock, "user-admin", "org-1", "ADMIN")
		mock.ExpectExec(`INSERT INTO organization_memberships`).
			WithArgs("org-1", "user-dup", rbac.OrgRoleMember).
			WillReturnError(uniqueViolation(t))

		err := service.AddOrgMember(ctx, "user-admin", "org-1", "user-dup", rbac.OrgRoleMember)
		assert.True(t, apperrors.IsAlreadyExists(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
