// Package audit maintains the append-only ledger of project-membership
// mutations. Exactly one entry is written per mutation, inside the same
// transaction as the mutation itself; no component ever updates or deletes
// a written entry.
package audit

import (
	"context"
	"database/sql"

	"github.com/traceloft/traceloft/pkg/apperrors"
)

// Store writes and reads membership audit entries.
type Store struct {
	db *sql.DB
}

// NewStore creates a new audit store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Grant records a membership creation inside tx.
func (s *Store) Grant(ctx context.Context, tx *sql.Tx, projectID, actorID, targetID, newRole string) error {
	return insertEntry(ctx, tx, projectID, actorID, targetID, ActionGrant, nil, &newRole)
}

// Change records a role update inside tx.
func (s *Store) Change(ctx context.Context, tx *sql.Tx, projectID, actorID, targetID, previousRole, newRole string) error {
	return insertEntry(ctx, tx, projectID, actorID, targetID, ActionChange, &previousRole, &newRole)
}

// Revoke records a membership removal inside tx.
func (s *Store) Revoke(ctx context.Context, tx *sql.Tx, projectID, actorID, targetID, previousRole string) error {
	return insertEntry(ctx, tx, projectID, actorID, targetID, ActionRevoke, &previousRole, nil)
}

func insertEntry(ctx context.Context, tx *sql.Tx, projectID, actorID, targetID string, action Action, previousRole, newRole *string) error {
	query := `
		INSERT INTO project_membership_audit
			(project_id, actor_id, target_id, action, previous_role, new_role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`
	if _, err := tx.ExecContext(ctx, query, projectID, actorID, targetID, action, previousRole, newRole); err != nil {
		return apperrors.Database("failed to write audit entry", err)
	}
	return nil
}

// ListByProject returns the ledger for a project, newest first.
func (s *Store) ListByProject(ctx context.Context, projectID string, limit int) ([]*Entry, error) {
	query := `
		SELECT id, project_id, actor_id, target_id, action, previous_role, new_role, created_at
		FROM project_membership_audit
		WHERE project_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	return s.queryEntries(ctx, query, projectID, limit)
}

// ListByTarget returns every entry whose target is the given member,
// newest first.
func (s *Store) ListByTarget(ctx context.Context, projectID, targetID string, limit int) ([]*Entry, error) {
	query := `
		SELECT id, project_id, actor_id, target_id, action, previous_role, new_role, created_at
		FROM project_membership_audit
		WHERE project_id = $1 AND target_id = $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`
	return s.queryEntries(ctx, query, projectID, targetID, limit)
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...interface{}) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Database("failed to query audit entries", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry := &Entry{}
		var prev, next sql.NullString
		if err := rows.Scan(
			&entry.ID, &entry.ProjectID, &entry.ActorID, &entry.TargetID,
			&entry.Action, &prev, &next, &entry.CreatedAt,
		); err != nil {
			return nil, apperrors.Database("failed to scan audit entry", err)
		}
		if prev.Valid {
			entry.PreviousRole = &prev.String
		}
		if next.Valid {
			entry.NewRole = &next.String
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Database("failed to iterate audit entries", err)
	}
	return entries, nil
}
