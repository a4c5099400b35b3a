package orgs

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traceloft/traceloft/pkg/apperrors"
	"github.com/traceloft/traceloft/pkg/audit"
)

func TestCreateProject(t *testing.T) {
	service, mock, db := newMockService(t)
	defer db.Close()
	ctx := context.Background()

	t.Run("owner creating a project is granted admin with one grant entry", func(t *testing.T) {
		expectOrgRole(mock, "user-owner", "org-1", "OWNER")
		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO projects`).
			WithArgs(sqlmock.AnyArg(), "org-1", "checkout").
			WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
		mock.ExpectExec(`INSERT INTO project_memberships`).
			WithArgs(sqlmock.AnyArg(), "user-owner", "ADMIN").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec(`INSERT INTO project_membership_audit`).
			WithArgs(sqlmock.AnyArg(), "user-owner", "user-owner", audit.ActionGrant, nil, "ADMIN").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		project, err := service.CreateProject(ctx, "user-owner", "org-1", "checkout")
		require.NoError(t, err)
		assert.Equal(t, "org-1", project.OrganizationID)
		assert.Equal(t, "checkout", project.Name)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("org member cannot create projects", func(t *testing.T) {
		expectOrgRole(mock, "user-member", "org-1", "MEMBER")

		_, err := service.CreateProject(ctx, "user-member", "org-1", "checkout")
		assert.True(t, apperrors.IsPermissionDenied(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate project name", func(t *testing.T) {
		expectOrgRole(mock, "user-owner", "org-1", "OWNER")
		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO projects`).
			WillReturnError(uniqueViolation(t))
		mock.ExpectRollback()

		_, err := service.CreateProject(ctx, "user-owner", "org-1", "checkout")
		assert.True(t, apperrors.IsAlreadyExists(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCreateEnvironment(t *testing.T) {
	service, mock, db := newMockService(t)
	defer db.Close()
	ctx := context.Background()

	t.Run("project admin creates environment", func(t *testing.T) {
		expectProjectAdminViaOrgAdmin(mock, "user-admin", "org-1", "proj-1")
		mock.ExpectQuery(`INSERT INTO environments`).
			WithArgs(sqlmock.AnyArg(), "proj-1", "production").
			WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

		env, err := service.CreateEnvironment(ctx, "user-admin", "org-1", "proj-1", "production")
		require.NoError(t, err)
		assert.Equal(t, "proj-1", env.ProjectID)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("developer cannot create environments", func(t *testing.T) {
		expectOrgRole(mock, "user-dev", "org-1", "MEMBER")
		mock.ExpectQuery(`SELECT role\s+FROM project_memberships`).
			WithArgs("proj-1", "user-dev").
			WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("DEVELOPER"))

		_, err := service.CreateEnvironment(ctx, "user-dev", "org-1", "proj-1", "staging")
		assert.True(t, apperrors.IsPermissionDenied(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCheckSpanQuota(t *testing.T) {
	service, mock, db := newMockService(t)
	defer db.Close()
	ctx := context.Background()

	t.Run("under the limit passes", func(t *testing.T) {
		mock.ExpectQuery(`SELECT plan_span_limit`).
			WithArgs("org-1").
			WillReturnRows(sqlmock.NewRows([]string{"plan_span_limit"}).AddRow(1000))
		mock.ExpectQuery(`FROM org_usage`).
			WithArgs("org-1", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"span_count"}).AddRow(900))

		require.NoError(t, service.CheckSpanQuota(ctx, "org-1", 50))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("breach fails with plan limit exceeded", func(t *testing.T) {
		mock.ExpectQuery(`SELECT plan_span_limit`).
			WithArgs("org-1").
			WillReturnRows(sqlmock.NewRows([]string{"plan_span_limit"}).AddRow(1000))
		mock.ExpectQuery(`FROM org_usage`).
			WithArgs("org-1", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"span_count"}).AddRow(990))

		err := service.CheckSpanQuota(ctx, "org-1", 50)
		assert.True(t, apperrors.IsPlanLimitExceeded(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("zero limit means unlimited", func(t *testing.T) {
		mock.ExpectQuery(`SELECT plan_span_limit`).
			WithArgs("org-1").
			WillReturnRows(sqlmock.NewRows([]string{"plan_span_limit"}).AddRow(0))

		require.NoError(t, service.CheckSpanQuota(ctx, "org-1", 1_000_000))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
