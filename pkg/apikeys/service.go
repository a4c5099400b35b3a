package apikeys

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/traceloft/traceloft/pkg/apperrors"
	"github.com/traceloft/traceloft/pkg/rbac"
)

const (
	envKeyPrefix = "tl-env-"
	orgKeyPrefix = "tl-org-"
)

// VerificationRecorder observes key verification outcomes, typically
// backing a metrics counter.
type VerificationRecorder interface {
	RecordKeyVerification(outcome string)
}

// Manager owns the API key lifecycle: creation, deletion, verification and
// listing. All operations except Verify run through the permission gate;
// Verify authenticates unauthenticated callers and is gated by nothing but
// the key itself.
type Manager struct {
	store     *Store
	gate      *rbac.PermissionGate
	generator *Generator
	cache     *IdentityCache
	recorder  VerificationRecorder
	logger    *logrus.Logger
}

// NewManager creates an API key manager.
func NewManager(store *Store, gate *rbac.PermissionGate, cache *IdentityCache, logger *logrus.Logger) *Manager {
	return &Manager{
		store:     store,
		gate:      gate,
		generator: NewGenerator(),
		cache:     cache,
		logger:    logger,
	}
}

// Create mints a new key in the given scope and returns it with its
// plaintext, which is never retrievable again.
//
// Environment-scoped creation requires ADMIN or DEVELOPER at the owning
// project. Organization-scoped creation requires org OWNER or ADMIN.
// Duplicate names among the scope's non-deleted keys are AlreadyExists.
func (m *Manager) Create(ctx context.Context, userID string, scope KeyScope, name string) (*APIKeyWithPlaintext, error) {
	prefix := envKeyPrefix
	if scope.IsOrgScoped() {
		prefix = orgKeyPrefix
		orgRole, err := m.gate.Resolver().ResolveOrgRole(ctx, userID, scope.OrganizationID)
		if err != nil {
			return nil, err
		}
		if !orgRole.IsElevated() {
			return nil, apperrors.PermissionDenied("only organization owners and admins can create organization keys")
		}
	} else {
		scopeRef := rbac.Scope{OrganizationID: scope.OrganizationID, EnvironmentID: scope.EnvironmentID}
		if _, err := m.gate.Authorize(ctx, userID, rbac.ResourceAPIKeys, rbac.ActionCreate, scopeRef); err != nil {
			return nil, err
		}
	}

	plaintext, hash, displayPrefix, err := m.generator.Generate(prefix)
	if err != nil {
		return nil, apperrors.Database("failed to generate api key", err)
	}

	key := &APIKey{
		ID:        uuid.New().String(),
		Name:      name,
		KeyHash:   hash,
		KeyPrefix: displayPrefix,
		OwnerID:   userID,
	}
	if scope.IsOrgScoped() {
		key.OrganizationID = &scope.OrganizationID
	} else {
		key.EnvironmentID = &scope.EnvironmentID
	}

	if err := m.store.Insert(ctx, key); err != nil {
		if apperrors.IsUniqueViolation(err) {
			return nil, apperrors.AlreadyExistsf("an API key named %q already exists", name)
		}
		return nil, err
	}

	m.logger.WithFields(logrus.Fields{
		"api_key_id": key.ID,
		"owner_id":   userID,
	}).Info("api key created")

	return &APIKeyWithPlaintext{APIKey: *key, Plaintext: plaintext}, nil
}

// Delete soft-deletes a key. ADMIN may delete any key in scope; DEVELOPER
// may delete only keys they own. The deleted key's cache entry is dropped so
// it stops verifying immediately.
func (m *Manager) Delete(ctx context.Context, userID string, scope KeyScope, keyID string) error {
	var role rbac.ProjectRole
	if scope.IsOrgScoped() {
		orgRole, err := m.gate.Resolver().ResolveOrgRole(ctx, userID, scope.OrganizationID)
		if err != nil {
			return err
		}
		if !orgRole.IsElevated() {
			return apperrors.PermissionDenied("only organization owners and admins can delete organization keys")
		}
		role = rbac.ProjectRoleAdmin
	} else {
		scopeRef := rbac.Scope{OrganizationID: scope.OrganizationID, EnvironmentID: scope.EnvironmentID}
		var err error
		role, err = m.gate.Authorize(ctx, userID, rbac.ResourceAPIKeys, rbac.ActionDelete, scopeRef)
		if err != nil {
			return err
		}
	}

	key, err := m.store.GetInScope(ctx, scope, keyID)
	if err != nil {
		return err
	}
	if role == rbac.ProjectRoleDeveloper && key.OwnerID != userID {
		return apperrors.PermissionDenied("you can only delete keys you created")
	}

	if err := m.store.SoftDelete(ctx, keyID); err != nil {
		return err
	}
	m.cache.Invalidate(ctx, key.KeyHash)

	m.logger.WithFields(logrus.Fields{
		"api_key_id": keyID,
		"deleted_by": userID,
	}).Info("api key deleted")
	return nil
}

// SetRecorder attaches a verification outcome recorder. A nil recorder
// means outcomes go unrecorded.
func (m *Manager) SetRecorder(recorder VerificationRecorder) {
	m.recorder = recorder
}

func (m *Manager) recordVerification(outcome string) {
	if m.recorder != nil {
		m.recorder.RecordKeyVerification(outcome)
	}
}

// Verify authenticates a plaintext key and returns the identity it grants.
// Any invalid, deleted, or unknown key is the same NotFound. A verified use
// that cannot be recorded in last_used_at fails the verification.
func (m *Manager) Verify(ctx context.Context, plaintext string) (*Identity, error) {
	hash := m.generator.Hash(plaintext)

	identity, cached := m.cache.Get(ctx, hash)
	if !cached {
		var err error
		identity, err = m.store.LookupByHash(ctx, hash)
		if err != nil {
			m.recordVerification("invalid")
			return nil, err
		}
		m.cache.Put(ctx, hash, identity)
	}

	if err := m.store.TouchLastUsed(ctx, identity.APIKeyID); err != nil {
		m.recordVerification("unrecorded_use")
		return nil, err
	}
	m.recordVerification("ok")
	return identity, nil
}

// ListForOrganization returns the keys the caller may see in the org.
// Org OWNER/ADMIN sees every key; an org MEMBER sees keys of projects where
// they hold ADMIN or DEVELOPER. Callers outside the org get NotFound.
func (m *Manager) ListForOrganization(ctx context.Context, userID, orgID string) ([]*APIKey, error) {
	orgRole, err := m.gate.Resolver().ResolveOrgRole(ctx, userID, orgID)
	if err != nil {
		return nil, err
	}

	if orgRole.IsElevated() {
		keys, err := m.store.ListForOrganization(ctx, orgID)
		if err != nil {
			return nil, err
		}
		return nonNil(keys), nil
	}

	projectIDs, err := m.gate.Resolver().ProjectIDsWithRoles(ctx, userID, orgID,
		rbac.ProjectRoleAdmin, rbac.ProjectRoleDeveloper)
	if err != nil {
		return nil, err
	}
	if len(projectIDs) == 0 {
		return []*APIKey{}, nil
	}
	keys, err := m.store.ListForProjects(ctx, projectIDs)
	if err != nil {
		return nil, err
	}
	return nonNil(keys), nil
}

func nonNil(keys []*APIKey) []*APIKey {
	if keys == nil {
		return []*APIKey{}
	}
	return keys
}
