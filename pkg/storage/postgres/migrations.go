package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations run in order inside one transaction each. Statements are
// idempotent so startup can apply them unconditionally.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		deleted_at TIMESTAMPTZ
	)`,

	`CREATE TABLE IF NOT EXISTS organizations (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		plan_span_limit BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS organization_memberships (
		organization_id TEXT NOT NULL REFERENCES organizations(id),
		member_id TEXT NOT NULL REFERENCES users(id),
		role TEXT NOT NULL CHECK (role IN ('OWNER', 'ADMIN', 'MEMBER')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (organization_id, member_id)
	)`,

	`CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL REFERENCES organizations(id),
		name TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (organization_id, name)
	)`,

	`CREATE TABLE IF NOT EXISTS project_memberships (
		project_id TEXT NOT NULL REFERENCES projects(id),
		member_id TEXT NOT NULL REFERENCES users(id),
		role TEXT NOT NULL CHECK (role IN ('ADMIN', 'DEVELOPER', 'VIEWER', 'ANNOTATOR')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (project_id, member_id)
	)`,

	`CREATE TABLE IF NOT EXISTS project_membership_audit (
		id BIGSERIAL PRIMARY KEY,
		project_id TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		target_id TEXT NOT NULL,
		action TEXT NOT NULL CHECK (action IN ('GRANT', 'CHANGE', 'REVOKE')),
		previous_role TEXT,
		new_role TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS environments (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL REFERENCES projects(id),
		name TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (project_id, name)
	)`,

	`CREATE TABLE IF NOT EXISTS api_keys (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		key_hash TEXT NOT NULL UNIQUE,
		key_prefix TEXT NOT NULL,
		owner_id TEXT NOT NULL REFERENCES users(id),
		environment_id TEXT REFERENCES environments(id),
		organization_id TEXT REFERENCES organizations(id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_used_at TIMESTAMPTZ,
		deleted_at TIMESTAMPTZ,
		CHECK (
			(environment_id IS NOT NULL AND organization_id IS NULL) OR
			(environment_id IS NULL AND organization_id IS NOT NULL)
		)
	)`,

	// Name uniqueness only applies among live keys: soft deletion rewrites
	// the name, so a deleted key never blocks reuse.
	`CREATE UNIQUE INDEX IF NOT EXISTS api_keys_env_name_live
		ON api_keys (environment_id, name) WHERE deleted_at IS NULL AND environment_id IS NOT NULL`,

	`CREATE UNIQUE INDEX IF NOT EXISTS api_keys_org_name_live
		ON api_keys (organization_id, name) WHERE deleted_at IS NULL AND organization_id IS NOT NULL`,

	`CREATE TABLE IF NOT EXISTS traces (
		otel_trace_id TEXT NOT NULL,
		environment_id TEXT NOT NULL REFERENCES environments(id),
		service_name TEXT,
		service_version TEXT,
		resource_attributes JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (otel_trace_id, environment_id)
	)`,

	`CREATE TABLE IF NOT EXISTS spans (
		otel_span_id TEXT NOT NULL,
		otel_trace_id TEXT NOT NULL,
		environment_id TEXT NOT NULL,
		parent_span_id TEXT,
		name TEXT NOT NULL,
		kind INTEGER NOT NULL DEFAULT 0,
		start_time_unix_nano BIGINT NOT NULL,
		end_time_unix_nano BIGINT NOT NULL,
		attributes JSONB,
		status_code INTEGER NOT NULL DEFAULT 0,
		status_message TEXT NOT NULL DEFAULT '',
		events JSONB,
		links JSONB,
		dropped_attributes_count INTEGER NOT NULL DEFAULT 0,
		dropped_events_count INTEGER NOT NULL DEFAULT 0,
		dropped_links_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (otel_span_id, otel_trace_id, environment_id)
	)`,

	`CREATE INDEX IF NOT EXISTS spans_trace_lookup
		ON spans (environment_id, otel_trace_id, start_time_unix_nano)`,

	`CREATE TABLE IF NOT EXISTS spans_outbox (
		id BIGSERIAL PRIMARY KEY,
		span_id TEXT NOT NULL,
		operation TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		processed_at TIMESTAMPTZ,
		UNIQUE (span_id, operation)
	)`,

	`CREATE INDEX IF NOT EXISTS spans_outbox_pending
		ON spans_outbox (created_at) WHERE processed_at IS NULL`,

	`CREATE TABLE IF NOT EXISTS org_usage (
		organization_id TEXT NOT NULL REFERENCES organizations(id),
		period TEXT NOT NULL,
		span_count BIGINT NOT NULL DEFAULT 0,
		PRIMARY KEY (organization_id, period)
	)`,
}

// Migrate applies the schema. Each statement runs in its own transaction so
// a partial failure reports the statement that broke.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range migrations {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("migration %d: begin: %w", i, err)
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", i, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d: commit: %w", i, err)
		}
	}
	return nil
}
