package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseOrgRole(t *testing.T) {
	role, ok := ParseOrgRole("OWNER")
	assert.True(t, ok)
	assert.Equal(t, OrgRoleOwner, role)

	_, ok = ParseOrgRole("owner")
	assert.False(t, ok, "role strings are case sensitive")

	_, ok = ParseOrgRole("SUPERUSER")
	assert.False(t, ok)
}

func TestParseProjectRole(t *testing.T) {
	role, ok := ParseProjectRole("ANNOTATOR")
	assert.True(t, ok)
	assert.Equal(t, ProjectRoleAnnotator, role)

	_, ok = ParseProjectRole("")
	assert.False(t, ok)
}

func TestOrgRoleIsElevated(t *testing.T) {
	assert.True(t, OrgRoleOwner.IsElevated())
	assert.True(t, OrgRoleAdmin.IsElevated())
	assert.False(t, OrgRoleMember.IsElevated())
}
