package rbac

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traceloft/traceloft/pkg/apperrors"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE organizations (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL
		);

		CREATE TABLE projects (
			id TEXT PRIMARY KEY,
			organization_id TEXT NOT NULL,
			name TEXT NOT NULL
		);

		CREATE TABLE environments (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			name TEXT NOT NULL
		);

		CREATE TABLE organization_memberships (
			organization_id TEXT NOT NULL,
			member_id TEXT NOT NULL,
			role TEXT NOT NULL,
			PRIMARY KEY (organization_id, member_id)
		);

		CREATE TABLE project_memberships (
			project_id TEXT NOT NULL,
			member_id TEXT NOT NULL,
			role TEXT NOT NULL,
			PRIMARY KEY (project_id, member_id)
		);
	`)
	require.NoError(t, err)

	return db
}

func seedHierarchy(t *testing.T, db *sql.DB) {
	t.Helper()

	stmts := []string{
		`INSERT INTO organizations (id, name) VALUES ('org-1', 'acme')`,
		`INSERT INTO organizations (id, name) VALUES ('org-2', 'globex')`,
		`INSERT INTO projects (id, organization_id, name) VALUES ('proj-1', 'org-1', 'checkout')`,
		`INSERT INTO projects (id, organization_id, name) VALUES ('proj-2', 'org-2', 'payments')`,
		`INSERT INTO environments (id, project_id, name) VALUES ('env-1', 'proj-1', 'production')`,

		// owner/admin/member of org-1
		`INSERT INTO organization_memberships VALUES ('org-1', 'user-owner', 'OWNER')`,
		`INSERT INTO organization_memberships VALUES ('org-1', 'user-admin', 'ADMIN')`,
		`INSERT INTO organization_memberships VALUES ('org-1', 'user-member', 'MEMBER')`,
		`INSERT INTO organization_memberships VALUES ('org-1', 'user-viewer', 'MEMBER')`,

		// explicit project roles for the org MEMBERs
		`INSERT INTO project_memberships VALUES ('proj-1', 'user-member', 'DEVELOPER')`,
		`INSERT INTO project_memberships VALUES ('proj-1', 'user-viewer', 'VIEWER')`,
	}
	for _, stmt := range stmts {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
}

func TestResolveOrgRole(t *testing.T) {
	db := setupTestDB(t)
	seedHierarchy(t, db)
	resolver := NewRoleResolver(NewStore(db))
	ctx := context.Background()

	t.Run("explicit role", func(t *testing.T) {
		role, err := resolver.ResolveOrgRole(ctx, "user-owner", "org-1")
		require.NoError(t, err)
		assert.Equal(t, OrgRoleOwner, role)
	})

	t.Run("no membership is not found", func(t *testing.T) {
		_, err := resolver.ResolveOrgRole(ctx, "user-outsider", "org-1")
		assert.True(t, apperrors.IsNotFound(err))
		assert.False(t, apperrors.IsPermissionDenied(err))
	})

	t.Run("membership in a different org does not leak", func(t *testing.T) {
		_, err := resolver.ResolveOrgRole(ctx, "user-owner", "org-2")
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func TestResolveProjectRole(t *testing.T) {
	db := setupTestDB(t)
	seedHierarchy(t, db)
	resolver := NewRoleResolver(NewStore(db))
	ctx := context.Background()

	t.Run("org owner is implicit project admin", func(t *testing.T) {
		role, err := resolver.ResolveProjectRole(ctx, "user-owner", "org-1", "proj-1")
		require.NoError(t, err)
		assert.Equal(t, ProjectRoleAdmin, role)
	})

	t.Run("org admin is implicit project admin without explicit row", func(t *testing.T) {
		role, err := resolver.ResolveProjectRole(ctx, "user-admin", "org-1", "proj-1")
		require.NoError(t, err)
		assert.Equal(t, ProjectRoleAdmin, role)
	})

	t.Run("elevated role still requires the project to exist in the org", func(t *testing.T) {
		_, err := resolver.ResolveProjectRole(ctx, "user-owner", "org-1", "proj-2")
		assert.True(t, apperrors.IsNotFound(err))

		_, err = resolver.ResolveProjectRole(ctx, "user-owner", "org-1", "proj-missing")
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("org member uses explicit project row", func(t *testing.T) {
		role, err := resolver.ResolveProjectRole(ctx, "user-member", "org-1", "proj-1")
		require.NoError(t, err)
		assert.Equal(t, ProjectRoleDeveloper, role)

		role, err = resolver.ResolveProjectRole(ctx, "user-viewer", "org-1", "proj-1")
		require.NoError(t, err)
		assert.Equal(t, ProjectRoleViewer, role)
	})

	t.Run("org member without project row is not found, never denied", func(t *testing.T) {
		_, err := db.Exec(`INSERT INTO organization_memberships VALUES ('org-1', 'user-noproj', 'MEMBER')`)
		require.NoError(t, err)

		_, err = resolver.ResolveProjectRole(ctx, "user-noproj", "org-1", "proj-1")
		assert.True(t, apperrors.IsNotFound(err))
		assert.False(t, apperrors.IsPermissionDenied(err))
	})

	t.Run("outsider gets the same not found at any depth", func(t *testing.T) {
		_, err := resolver.ResolveProjectRole(ctx, "user-outsider", "org-1", "proj-1")
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func TestResolveScope(t *testing.T) {
	db := setupTestDB(t)
	seedHierarchy(t, db)
	resolver := NewRoleResolver(NewStore(db))
	ctx := context.Background()

	t.Run("environment scope resolves through its project", func(t *testing.T) {
		role, err := resolver.ResolveScope(ctx, "user-member", Scope{EnvironmentID: "env-1"})
		require.NoError(t, err)
		assert.Equal(t, ProjectRoleDeveloper, role)
	})

	t.Run("unknown environment is not found", func(t *testing.T) {
		_, err := resolver.ResolveScope(ctx, "user-owner", Scope{EnvironmentID: "env-missing"})
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("mismatched project in scope is not found", func(t *testing.T) {
		_, err := resolver.ResolveScope(ctx, "user-owner", Scope{
			OrganizationID: "org-1",
			ProjectID:      "proj-2",
			EnvironmentID:  "env-1",
		})
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("project scope without environment", func(t *testing.T) {
		role, err := resolver.ResolveScope(ctx, "user-viewer", ProjectScope("org-1", "proj-1"))
		require.NoError(t, err)
		assert.Equal(t, ProjectRoleViewer, role)
	})

	t.Run("empty scope is not found", func(t *testing.T) {
		_, err := resolver.ResolveScope(ctx, "user-owner", Scope{OrganizationID: "org-1"})
		assert.True(t, apperrors.IsNotFound(err))
	})
}
