package apikeys

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/traceloft/traceloft/pkg/apperrors"
)

// Store persists API keys.
type Store struct {
	db *sql.DB
}

// NewStore creates a new API key store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Insert stores a new key row. A duplicate non-deleted name within the
// scope surfaces as a unique violation for the caller to translate.
func (s *Store) Insert(ctx context.Context, key *APIKey) error {
	query := `
		INSERT INTO api_keys
			(id, name, key_hash, key_prefix, owner_id, environment_id, organization_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING created_at
	`
	err := s.db.QueryRowContext(ctx, query,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, key.OwnerID,
		key.EnvironmentID, key.OrganizationID,
	).Scan(&key.CreatedAt)
	if err != nil {
		if apperrors.IsUniqueViolation(err) {
			return err
		}
		return apperrors.Database("failed to insert api key", err)
	}
	return nil
}

// GetInScope fetches a non-deleted key by id within the given scope.
// Exactly one scope column participates in the match: an environment scope
// can never reach an organization key and vice versa, even though the scope
// struct carries the org id alongside the environment id.
func (s *Store) GetInScope(ctx context.Context, scope KeyScope, keyID string) (*APIKey, error) {
	query := `
		SELECT id, name, key_hash, key_prefix, owner_id, environment_id, organization_id, created_at, last_used_at
		FROM api_keys
		WHERE id = $1 AND deleted_at IS NULL
		  AND (environment_id = $2 OR organization_id = $3)
	`
	envArg := nullable(scope.EnvironmentID)
	orgArg := nullable(scope.OrganizationID)
	if scope.IsOrgScoped() {
		envArg = nil
	} else {
		orgArg = nil
	}

	key := &APIKey{}
	var envID, orgID sql.NullString
	var lastUsed sql.NullTime
	err := s.db.QueryRowContext(ctx, query, keyID, envArg, orgArg).Scan(
		&key.ID, &key.Name, &key.KeyHash, &key.KeyPrefix, &key.OwnerID,
		&envID, &orgID, &key.CreatedAt, &lastUsed,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("api key not found")
	}
	if err != nil {
		return nil, apperrors.Database("failed to get api key", err)
	}
	if envID.Valid {
		key.EnvironmentID = &envID.String
	}
	if orgID.Valid {
		key.OrganizationID = &orgID.String
	}
	if lastUsed.Valid {
		key.LastUsedAt = &lastUsed.Time
	}
	return key, nil
}

// SoftDelete marks the key deleted and rewrites its name to an id-derived
// placeholder so the original name becomes reusable within the scope.
func (s *Store) SoftDelete(ctx context.Context, keyID string) error {
	query := `
		UPDATE api_keys
		SET deleted_at = NOW(), name = 'deleted-' || id
		WHERE id = $1 AND deleted_at IS NULL
	`
	res, err := s.db.ExecContext(ctx, query, keyID)
	if err != nil {
		return apperrors.Database("failed to delete api key", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.Database("failed to read affected rows", err)
	}
	if n == 0 {
		return apperrors.NotFound("api key not found")
	}
	return nil
}

// LookupByHash resolves a key hash to its identity, considering only
// non-deleted keys owned by non-deleted users. The full scope chain is
// resolved for environment-scoped keys.
func (s *Store) LookupByHash(ctx context.Context, hash string) (*Identity, error) {
	query := `
		SELECT k.id, k.owner_id,
		       COALESCE(p.organization_id, k.organization_id, ''),
		       COALESCE(e.project_id, ''),
		       COALESCE(k.environment_id, '')
		FROM api_keys k
		JOIN users u ON u.id = k.owner_id AND u.deleted_at IS NULL
		LEFT JOIN environments e ON e.id = k.environment_id
		LEFT JOIN projects p ON p.id = e.project_id
		WHERE k.key_hash = $1 AND k.deleted_at IS NULL
	`
	identity := &Identity{}
	err := s.db.QueryRowContext(ctx, query, hash).Scan(
		&identity.APIKeyID, &identity.OwnerID,
		&identity.OrganizationID, &identity.ProjectID, &identity.EnvironmentID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("invalid API key")
	}
	if err != nil {
		return nil, apperrors.Database("failed to look up api key", err)
	}
	return identity, nil
}

// TouchLastUsed updates the key's last-used timestamp. Failures propagate:
// verification treats an unrecordable use as a failed verify.
func (s *Store) TouchLastUsed(ctx context.Context, keyID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE api_keys SET last_used_at = NOW() WHERE id = $1`,
		keyID,
	)
	if err != nil {
		return apperrors.Database("failed to update last_used_at", err)
	}
	return nil
}

// ListForOrganization returns every non-deleted key in the organization:
// environment-scoped keys of all its projects plus org-scoped keys.
func (s *Store) ListForOrganization(ctx context.Context, orgID string) ([]*APIKey, error) {
	query := `
		SELECT k.id, k.name, k.key_prefix, k.owner_id, k.environment_id, k.organization_id, k.created_at, k.last_used_at
		FROM api_keys k
		LEFT JOIN environments e ON e.id = k.environment_id
		LEFT JOIN projects p ON p.id = e.project_id
		WHERE k.deleted_at IS NULL
		  AND (p.organization_id = $1 OR k.organization_id = $1)
		ORDER BY k.created_at ASC
	`
	return s.queryKeys(ctx, query, orgID)
}

// ListForProjects returns non-deleted environment-scoped keys belonging to
// the given projects.
func (s *Store) ListForProjects(ctx context.Context, projectIDs []string) ([]*APIKey, error) {
	query := `
		SELECT k.id, k.name, k.key_prefix, k.owner_id, k.environment_id, k.organization_id, k.created_at, k.last_used_at
		FROM api_keys k
		JOIN environments e ON e.id = k.environment_id
		WHERE k.deleted_at IS NULL AND e.project_id = ANY($1)
		ORDER BY k.created_at ASC
	`
	return s.queryKeys(ctx, query, pq.Array(projectIDs))
}

func (s *Store) queryKeys(ctx context.Context, query string, args ...interface{}) ([]*APIKey, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Database("failed to list api keys", err)
	}
	defer rows.Close()

	var keys []*APIKey
	for rows.Next() {
		key := &APIKey{}
		var envID, orgID sql.NullString
		var lastUsed sql.NullTime
		if err := rows.Scan(
			&key.ID, &key.Name, &key.KeyPrefix, &key.OwnerID,
			&envID, &orgID, &key.CreatedAt, &lastUsed,
		); err != nil {
			return nil, apperrors.Database("failed to scan api key", err)
		}
		if envID.Valid {
			key.EnvironmentID = &envID.String
		}
		if orgID.Valid {
			key.OrganizationID = &orgID.String
		}
		if lastUsed.Valid {
			key.LastUsedAt = &lastUsed.Time
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Database("failed to iterate api keys", err)
	}
	return keys, nil
}

// nullable maps an empty string to a SQL NULL parameter.
func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
