package rbac

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traceloft/traceloft/pkg/apperrors"
)

func TestRoleAllowed(t *testing.T) {
	cases := []struct {
		name     string
		resource Resource
		action   Action
		role     ProjectRole
		want     bool
	}{
		{"developer creates api key", ResourceAPIKeys, ActionCreate, ProjectRoleDeveloper, true},
		{"viewer cannot create api key", ResourceAPIKeys, ActionCreate, ProjectRoleViewer, false},
		{"annotator reads traces", ResourceTraces, ActionRead, ProjectRoleAnnotator, true},
		{"developer cannot delete traces", ResourceTraces, ActionDelete, ProjectRoleDeveloper, false},
		{"admin deletes traces", ResourceTraces, ActionDelete, ProjectRoleAdmin, true},
		{"developer cannot manage memberships", ResourceProjectMemberships, ActionCreate, ProjectRoleDeveloper, false},
		{"viewer reads memberships", ResourceProjectMemberships, ActionRead, ProjectRoleViewer, true},
		{"unknown resource denies", Resource("widgets"), ActionRead, ProjectRoleAdmin, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, roleAllowed(tc.resource, tc.action, tc.role))
		})
	}
}

func TestAuthorize(t *testing.T) {
	db := setupTestDB(t)
	seedHierarchy(t, db)
	gate := NewPermissionGate(NewRoleResolver(NewStore(db)))
	ctx := context.Background()

	t.Run("allowed action returns the resolved role", func(t *testing.T) {
		role, err := gate.Authorize(ctx, "user-member", ResourceTraces, ActionCreate, ProjectScope("org-1", "proj-1"))
		require.NoError(t, err)
		assert.Equal(t, ProjectRoleDeveloper, role)
	})

	t.Run("insufficient role is denied with action and resource named", func(t *testing.T) {
		_, err := gate.Authorize(ctx, "user-viewer", ResourceTraces, ActionDelete, ProjectScope("org-1", "proj-1"))
		require.Error(t, err)
		assert.True(t, apperrors.IsPermissionDenied(err))
		assert.Contains(t, err.Error(), "delete")
		assert.Contains(t, err.Error(), "traces")
	})

	t.Run("no path to scope stays not found", func(t *testing.T) {
		_, err := gate.Authorize(ctx, "user-outsider", ResourceTraces, ActionRead, ProjectScope("org-1", "proj-1"))
		assert.True(t, apperrors.IsNotFound(err))
		assert.False(t, apperrors.IsPermissionDenied(err))
	})

	t.Run("implicit admin passes admin-only actions", func(t *testing.T) {
		role, err := gate.Authorize(ctx, "user-admin", ResourceTraces, ActionDelete, EnvironmentScope("org-1", "proj-1", "env-1"))
		require.NoError(t, err)
		assert.Equal(t, ProjectRoleAdmin, role)
	})
}

type decisionCall struct {
	resource string
	action   string
	allowed  bool
}

type captureRecorder struct {
	calls []decisionCall
}

func (r *captureRecorder) RecordAuthzDecision(resource, action string, allowed bool) {
	r.calls = append(r.calls, decisionCall{resource, action, allowed})
}

func TestAuthorizeRecordsDecisions(t *testing.T) {
	db := setupTestDB(t)
	seedHierarchy(t, db)
	gate := NewPermissionGate(NewRoleResolver(NewStore(db)))
	ctx := context.Background()

	recorder := &captureRecorder{}
	gate.SetRecorder(recorder)

	_, err := gate.Authorize(ctx, "user-member", ResourceTraces, ActionCreate, ProjectScope("org-1", "proj-1"))
	require.NoError(t, err)

	_, err = gate.Authorize(ctx, "user-viewer", ResourceTraces, ActionDelete, ProjectScope("org-1", "proj-1"))
	require.Error(t, err)

	_, err = gate.Authorize(ctx, "user-outsider", ResourceTraces, ActionRead, ProjectScope("org-1", "proj-1"))
	require.Error(t, err)

	require.Len(t, recorder.calls, 3)
	assert.Equal(t, decisionCall{"traces", "create", true}, recorder.calls[0])
	assert.Equal(t, decisionCall{"traces", "delete", false}, recorder.calls[1])
	assert.Equal(t, decisionCall{"traces", "read", false}, recorder.calls[2])
}
