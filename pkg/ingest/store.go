package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/traceloft/traceloft/pkg/apperrors"
)

// Store persists traces and spans.
type Store struct {
	db *sql.DB
}

// NewStore creates a new trace store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// UpsertTrace writes the trace row keyed by (otel_trace_id, environment_id).
// On conflict the service metadata is overwritten with the latest values;
// out-of-order span arrival means last write wins, by contract.
func (s *Store) UpsertTrace(ctx context.Context, trace *Trace) error {
	attrs, err := json.Marshal(trace.ResourceAttributes)
	if err != nil {
		return apperrors.Database("failed to encode resource attributes", err)
	}
	query := `
		INSERT INTO traces (otel_trace_id, environment_id, service_name, service_version, resource_attributes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (otel_trace_id, environment_id)
		DO UPDATE SET
			service_name = EXCLUDED.service_name,
			service_version = EXCLUDED.service_version,
			resource_attributes = EXCLUDED.resource_attributes,
			updated_at = NOW()
	`
	if _, err := s.db.ExecContext(ctx, query,
		trace.OtelTraceID, trace.EnvironmentID,
		trace.ServiceName, trace.ServiceVersion, attrs,
	); err != nil {
		return apperrors.Database("failed to upsert trace", err)
	}
	return nil
}

// InsertSpan inserts the span with conflict-do-nothing semantics and
// reports whether a new row was created. A duplicate delivery returns
// (false, nil): the unique constraint is the sole idempotency mechanism.
func (s *Store) InsertSpan(ctx context.Context, span *Span) (bool, error) {
	attrs, err := json.Marshal(span.Attributes)
	if err != nil {
		return false, apperrors.Database("failed to encode span attributes", err)
	}
	events, err := json.Marshal(span.Events)
	if err != nil {
		return false, apperrors.Database("failed to encode span events", err)
	}
	links, err := json.Marshal(span.Links)
	if err != nil {
		return false, apperrors.Database("failed to encode span links", err)
	}

	query := `
		INSERT INTO spans
			(otel_span_id, otel_trace_id, environment_id, parent_span_id, name, kind,
			 start_time_unix_nano, end_time_unix_nano, attributes, status_code,
			 status_message, events, links, dropped_attributes_count,
			 dropped_events_count, dropped_links_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, NOW())
		ON CONFLICT (otel_span_id, otel_trace_id, environment_id) DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, query,
		span.OtelSpanID, span.OtelTraceID, span.EnvironmentID,
		span.ParentSpanID, span.Name, span.Kind,
		span.StartTimeUnixNano, span.EndTimeUnixNano, attrs,
		span.StatusCode, span.StatusMessage, events, links,
		span.DroppedAttributes, span.DroppedEvents, span.DroppedLinks,
	)
	if err != nil {
		return false, apperrors.Database("failed to insert span", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperrors.Database("failed to read affected rows", err)
	}
	return n > 0, nil
}

// GetTrace fetches one trace in the environment.
func (s *Store) GetTrace(ctx context.Context, environmentID, otelTraceID string) (*Trace, error) {
	query := `
		SELECT otel_trace_id, environment_id, service_name, service_version, resource_attributes, created_at, updated_at
		FROM traces
		WHERE environment_id = $1 AND otel_trace_id = $2
	`
	trace, err := scanTrace(s.db.QueryRowContext(ctx, query, environmentID, otelTraceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("trace not found")
	}
	if err != nil {
		return nil, apperrors.Database("failed to get trace", err)
	}
	return trace, nil
}

// ListTraces returns the environment's traces, most recently updated first.
func (s *Store) ListTraces(ctx context.Context, environmentID string, limit int) ([]*Trace, error) {
	query := `
		SELECT otel_trace_id, environment_id, service_name, service_version, resource_attributes, created_at, updated_at
		FROM traces
		WHERE environment_id = $1
		ORDER BY updated_at DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, environmentID, limit)
	if err != nil {
		return nil, apperrors.Database("failed to list traces", err)
	}
	defer rows.Close()

	var traces []*Trace
	for rows.Next() {
		trace, err := scanTrace(rows)
		if err != nil {
			return nil, apperrors.Database("failed to scan trace", err)
		}
		traces = append(traces, trace)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Database("failed to iterate traces", err)
	}
	return traces, nil
}

// ListSpans returns the stored spans of one trace, in start-time order.
func (s *Store) ListSpans(ctx context.Context, environmentID, otelTraceID string) ([]*Span, error) {
	query := `
		SELECT otel_span_id, otel_trace_id, environment_id, parent_span_id, name, kind,
		       start_time_unix_nano, end_time_unix_nano, attributes, status_code,
		       status_message, events, links, dropped_attributes_count,
		       dropped_events_count, dropped_links_count, created_at
		FROM spans
		WHERE environment_id = $1 AND otel_trace_id = $2
		ORDER BY start_time_unix_nano ASC
	`
	rows, err := s.db.QueryContext(ctx, query, environmentID, otelTraceID)
	if err != nil {
		return nil, apperrors.Database("failed to list spans", err)
	}
	defer rows.Close()

	var spans []*Span
	for rows.Next() {
		span := &Span{}
		var parent sql.NullString
		var attrs, events, links []byte
		if err := rows.Scan(
			&span.OtelSpanID, &span.OtelTraceID, &span.EnvironmentID,
			&parent, &span.Name, &span.Kind,
			&span.StartTimeUnixNano, &span.EndTimeUnixNano, &attrs,
			&span.StatusCode, &span.StatusMessage, &events, &links,
			&span.DroppedAttributes, &span.DroppedEvents, &span.DroppedLinks,
			&span.CreatedAt,
		); err != nil {
			return nil, apperrors.Database("failed to scan span", err)
		}
		if parent.Valid {
			span.ParentSpanID = &parent.String
		}
		if err := decodeJSONColumns(span, attrs, events, links); err != nil {
			return nil, err
		}
		spans = append(spans, span)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Database("failed to iterate spans", err)
	}
	return spans, nil
}

// DeleteTrace removes a trace and its spans in one transaction, spans
// first. A missing trace is NotFound and nothing is deleted.
func (s *Store) DeleteTrace(ctx context.Context, environmentID, otelTraceID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Database("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM spans WHERE environment_id = $1 AND otel_trace_id = $2`,
		environmentID, otelTraceID,
	); err != nil {
		return apperrors.Database("failed to delete spans", err)
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM traces WHERE environment_id = $1 AND otel_trace_id = $2`,
		environmentID, otelTraceID,
	)
	if err != nil {
		return apperrors.Database("failed to delete trace", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.Database("failed to read affected rows", err)
	}
	if n == 0 {
		return apperrors.NotFound("trace not found")
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Database("failed to commit trace deletion", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTrace(row rowScanner) (*Trace, error) {
	trace := &Trace{}
	var name, version sql.NullString
	var attrs []byte
	if err := row.Scan(
		&trace.OtelTraceID, &trace.EnvironmentID,
		&name, &version, &attrs,
		&trace.CreatedAt, &trace.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if name.Valid {
		trace.ServiceName = &name.String
	}
	if version.Valid {
		trace.ServiceVersion = &version.String
	}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &trace.ResourceAttributes); err != nil {
			return nil, err
		}
	}
	return trace, nil
}

func decodeJSONColumns(span *Span, attrs, events, links []byte) error {
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &span.Attributes); err != nil {
			return apperrors.Database("failed to decode span attributes", err)
		}
	}
	if len(events) > 0 {
		if err := json.Unmarshal(events, &span.Events); err != nil {
			return apperrors.Database("failed to decode span events", err)
		}
	}
	if len(links) > 0 {
		if err := json.Unmarshal(links, &span.Links); err != nil {
			return apperrors.Database("failed to decode span links", err)
		}
	}
	return nil
}
