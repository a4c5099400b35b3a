package apikeys

import "time"

// KeyScope is the owner scope of an API key: exactly one of EnvironmentID
// or OrganizationID is set.
type KeyScope struct {
	EnvironmentID  string
	OrganizationID string
}

// IsOrgScoped reports whether the scope is an organization-wide key scope.
func (s KeyScope) IsOrgScoped() bool {
	return s.OrganizationID != "" && s.EnvironmentID == ""
}

// APIKey is a stored key row. The plaintext is never persisted; only the
// SHA-256 hash and a short display prefix survive creation.
type APIKey struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	KeyHash        string     `json:"-"`
	KeyPrefix      string     `json:"key_prefix"`
	OwnerID        string     `json:"owner_id"`
	EnvironmentID  *string    `json:"environment_id,omitempty"`
	OrganizationID *string    `json:"organization_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	LastUsedAt     *time.Time `json:"last_used_at,omitempty"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
}

// APIKeyWithPlaintext is the creation result; Plaintext is returned to the
// caller exactly once and never again.
type APIKeyWithPlaintext struct {
	APIKey
	Plaintext string `json:"plaintext"`
}

// Identity is the authenticated principal a verified key resolves to.
// For environment-scoped keys the full chain is populated; org-scoped keys
// carry only the organization.
type Identity struct {
	APIKeyID       string `json:"api_key_id"`
	OwnerID        string `json:"owner_id"`
	OrganizationID string `json:"organization_id"`
	ProjectID      string `json:"project_id,omitempty"`
	EnvironmentID  string `json:"environment_id,omitempty"`
}
