package orgs

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/traceloft/traceloft/pkg/apperrors"
)

// QuotaChecker is the single plan-limit lookup ingestion consults before a
// batch. Anything beyond this one counter check (billing, plan changes) is
// an external concern.
type QuotaChecker interface {
	CheckSpanQuota(ctx context.Context, orgID string, incoming int) error
	RecordSpanUsage(ctx context.Context, orgID string, stored int) error
}

// CheckSpanQuota fails with PlanLimitExceeded when the organization's
// span count for the current calendar month plus the incoming batch would
// breach its plan limit. A limit of zero means unlimited.
func (s *Service) CheckSpanQuota(ctx context.Context, orgID string, incoming int) error {
	var limit int64
	err := s.db.QueryRowContext(ctx,
		`SELECT plan_span_limit FROM organizations WHERE id = $1`,
		orgID,
	).Scan(&limit)
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NotFound("resource not found")
	}
	if err != nil {
		return apperrors.Database("failed to read plan limit", err)
	}
	if limit <= 0 {
		return nil
	}

	var used int64
	err = s.db.QueryRowContext(ctx,
		`SELECT COALESCE(span_count, 0) FROM org_usage WHERE organization_id = $1 AND period = $2`,
		orgID, currentPeriod(),
	).Scan(&used)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return apperrors.Database("failed to read span usage", err)
	}

	if used+int64(incoming) > limit {
		return apperrors.PlanLimitExceeded("span limit reached for the current billing period")
	}
	return nil
}

// RecordSpanUsage adds newly stored spans to the organization's counter for
// the current period.
func (s *Service) RecordSpanUsage(ctx context.Context, orgID string, stored int) error {
	if stored <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO org_usage (organization_id, period, span_count)
		VALUES ($1, $2, $3)
		ON CONFLICT (organization_id, period)
		DO UPDATE SET span_count = org_usage.span_count + EXCLUDED.span_count
	`, orgID, currentPeriod(), stored)
	if err != nil {
		return apperrors.Database("failed to record span usage", err)
	}
	return nil
}

func currentPeriod() string {
	return time.Now().UTC().Format("2006-01")
}
