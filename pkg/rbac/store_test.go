package rbac

import (
	"context"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traceloft/traceloft/pkg/apperrors"
)

func TestProjectIDsWithRoles(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := NewStore(db)

	t.Run("returns matching project ids", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"project_id"}).
			AddRow("proj-1").
			AddRow("proj-3")

		mock.ExpectQuery(`SELECT pm.project_id`).
			WithArgs("user-1", "org-1", sqlmock.AnyArg()).
			WillReturnRows(rows)

		ids, err := store.ProjectIDsWithRoles(context.Background(), "user-1", "org-1", ProjectRoleAdmin, ProjectRoleDeveloper)
		require.NoError(t, err)
		assert.Equal(t, []string{"proj-1", "proj-3"}, ids)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty result", func(t *testing.T) {
		mock.ExpectQuery(`SELECT pm.project_id`).
			WithArgs("user-2", "org-1", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"project_id"}))

		ids, err := store.ProjectIDsWithRoles(context.Background(), "user-2", "org-1", ProjectRoleAdmin)
		require.NoError(t, err)
		assert.Empty(t, ids)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("driver error maps to database kind", func(t *testing.T) {
		mock.ExpectQuery(`SELECT pm.project_id`).
			WithArgs("user-3", "org-1", sqlmock.AnyArg()).
			WillReturnError(fmt.Errorf("connection refused"))

		_, err := store.ProjectIDsWithRoles(context.Background(), "user-3", "org-1", ProjectRoleAdmin)
		require.Error(t, err)
		assert.True(t, apperrors.IsKind(err, apperrors.KindDatabase))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
