package rbac

// OrgRole represents a user's role within an organization.
type OrgRole string

const (
	OrgRoleOwner  OrgRole = "OWNER"
	OrgRoleAdmin  OrgRole = "ADMIN"
	OrgRoleMember OrgRole = "MEMBER"
)

// IsElevated reports whether the org role implies the top project role at
// every project inside the organization.
func (r OrgRole) IsElevated() bool {
	return r == OrgRoleOwner || r == OrgRoleAdmin
}

// ProjectRole represents a user's role within a project.
type ProjectRole string

const (
	ProjectRoleAdmin     ProjectRole = "ADMIN"
	ProjectRoleDeveloper ProjectRole = "DEVELOPER"
	ProjectRoleViewer    ProjectRole = "VIEWER"
	ProjectRoleAnnotator ProjectRole = "ANNOTATOR"
)

// ParseOrgRole validates an org role string from an external caller.
func ParseOrgRole(s string) (OrgRole, bool) {
	switch role := OrgRole(s); role {
	case OrgRoleOwner, OrgRoleAdmin, OrgRoleMember:
		return role, true
	}
	return "", false
}

// ParseProjectRole validates a project role string from an external caller.
func ParseProjectRole(s string) (ProjectRole, bool) {
	switch role := ProjectRole(s); role {
	case ProjectRoleAdmin, ProjectRoleDeveloper, ProjectRoleViewer, ProjectRoleAnnotator:
		return role, true
	}
	return "", false
}

// Resource represents a resource kind gated by the permission tables.
type Resource string

const (
	ResourceAPIKeys            Resource = "api_keys"
	ResourceTraces             Resource = "traces"
	ResourceProjectMemberships Resource = "project_memberships"
	ResourceEnvironments       Resource = "environments"
)

// Action represents an action performed on a resource.
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Scope identifies the resource chain a request targets. OrganizationID is
// always set; ProjectID and EnvironmentID narrow the chain. An
// environment-only scope (EnvironmentID set, ProjectID empty) is resolved
// through the environment's owning project.
type Scope struct {
	OrganizationID string
	ProjectID      string
	EnvironmentID  string
}

// OrgScope builds an organization-level scope.
func OrgScope(orgID string) Scope {
	return Scope{OrganizationID: orgID}
}

// ProjectScope builds a project-level scope.
func ProjectScope(orgID, projectID string) Scope {
	return Scope{OrganizationID: orgID, ProjectID: projectID}
}

// EnvironmentScope builds an environment-level scope.
func EnvironmentScope(orgID, projectID, envID string) Scope {
	return Scope{OrganizationID: orgID, ProjectID: projectID, EnvironmentID: envID}
}

// OrgMembership is an explicit organization membership row.
type OrgMembership struct {
	OrganizationID string
	MemberID       string
	Role           OrgRole
}

// ProjectMembership is an explicit project membership row. Explicit rows
// are consulted only when the member's org role is neither OWNER nor ADMIN.
type ProjectMembership struct {
	ProjectID string
	MemberID  string
	Role      ProjectRole
}
