package orgs

import (
	"time"

	"github.com/traceloft/traceloft/pkg/rbac"
)

// Organization is the top-level tenant.
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Project belongs to exactly one organization.
type Project struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Name           string    `json:"name"`
	CreatedAt      time.Time `json:"created_at"`
}

// Environment belongs to exactly one project and is the scope traces and
// environment-scoped API keys attach to.
type Environment struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// OrgMember is an organization membership row.
type OrgMember struct {
	OrganizationID string       `json:"organization_id"`
	MemberID       string       `json:"member_id"`
	Role           rbac.OrgRole `json:"role"`
	CreatedAt      time.Time    `json:"created_at"`
}

// ProjectMember is a project membership row.
type ProjectMember struct {
	ProjectID string           `json:"project_id"`
	MemberID  string           `json:"member_id"`
	Role      rbac.ProjectRole `json:"role"`
	CreatedAt time.Time        `json:"created_at"`
}
