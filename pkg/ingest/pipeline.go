package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/traceloft/traceloft/pkg/apperrors"
	"github.com/traceloft/traceloft/pkg/otlp"
	"github.com/traceloft/traceloft/pkg/outbox"
	"github.com/traceloft/traceloft/pkg/rbac"
)

const defaultListLimit = 100

// OutboxWriter is the sync hand-off consumed by the pipeline.
type OutboxWriter interface {
	Enqueue(ctx context.Context, spanID, operation string) error
}

// QuotaChecker guards the per-organization span budget.
type QuotaChecker interface {
	CheckSpanQuota(ctx context.Context, orgID string, incoming int) error
	RecordSpanUsage(ctx context.Context, orgID string, count int) error
}

// Pipeline is the trace ingestion service. One authorization check covers a
// whole batch; storage is idempotent per span; the outbox hand-off is best
// effort and never rolls back a stored span.
type Pipeline struct {
	gate    *rbac.PermissionGate
	store   *Store
	outbox  OutboxWriter
	quotas  QuotaChecker
	archive *Archiver
	metrics *Metrics
	logger  *logrus.Logger
}

// NewPipeline creates a pipeline. archive may be nil to disable raw-payload
// archival; metrics may be nil in tests.
func NewPipeline(gate *rbac.PermissionGate, store *Store, ob OutboxWriter, quotas QuotaChecker,
	archive *Archiver, metrics *Metrics, logger *logrus.Logger) *Pipeline {
	return &Pipeline{
		gate:    gate,
		store:   store,
		outbox:  ob,
		quotas:  quotas,
		archive: archive,
		metrics: metrics,
		logger:  logger,
	}
}

func countSpans(groups []otlp.ResourceSpans) int {
	total := 0
	for _, group := range groups {
		for _, scope := range group.ScopeSpans {
			total += len(scope.Spans)
		}
	}
	return total
}

// Create ingests a batch of resource-span groups into the scoped
// environment. ADMIN or DEVELOPER at the owning project may ingest; the
// check runs once per batch. Processing is span-by-span: one failing span
// never aborts the batch, and the returned tally accounts for every span.
func (p *Pipeline) Create(ctx context.Context, userID string, scope rbac.Scope, req otlp.ExportRequest) (*Result, error) {
	if scope.EnvironmentID == "" {
		return nil, apperrors.NotFound("resource not found")
	}
	if _, err := p.gate.Authorize(ctx, userID, rbac.ResourceTraces, rbac.ActionCreate, scope); err != nil {
		return nil, err
	}

	total := countSpans(req.ResourceSpans)
	if err := p.quotas.CheckSpanQuota(ctx, scope.OrganizationID, total); err != nil {
		return nil, err
	}

	if p.archive != nil {
		if raw, err := json.Marshal(req); err == nil {
			p.archive.Archive(ctx, scope.EnvironmentID, raw)
		}
	}

	result := &Result{}
	for _, group := range req.ResourceSpans {
		p.ingestGroup(ctx, scope.EnvironmentID, group, result)
	}

	if result.AcceptedSpans > 0 {
		if err := p.quotas.RecordSpanUsage(ctx, scope.OrganizationID, result.AcceptedSpans); err != nil {
			p.logger.WithError(err).Warn("span usage recording failed")
		}
	}
	if p.metrics != nil {
		p.metrics.ObserveBatch(total, result)
	}

	p.logger.WithFields(logrus.Fields{
		"environment_id": scope.EnvironmentID,
		"accepted":       result.AcceptedSpans,
		"rejected":       result.RejectedSpans,
	}).Info("batch ingested")
	return result, nil
}

func (p *Pipeline) ingestGroup(ctx context.Context, environmentID string, group otlp.ResourceSpans, result *Result) {
	serviceName, serviceVersion := otlp.ServiceIdentity(group.Resource.Attributes)
	resourceAttrs := otlp.NormalizeAttributes(group.Resource.Attributes)

	for _, scopeSpans := range group.ScopeSpans {
		for _, span := range scopeSpans.Spans {
			p.ingestSpan(ctx, environmentID, serviceName, serviceVersion, resourceAttrs, span, result)
		}
	}
}

func (p *Pipeline) ingestSpan(ctx context.Context, environmentID string, serviceName, serviceVersion *string,
	resourceAttrs map[string]interface{}, span otlp.Span, result *Result) {
	if span.TraceID == "" || span.SpanID == "" {
		result.rejectErrored()
		return
	}

	trace := &Trace{
		OtelTraceID:        span.TraceID,
		EnvironmentID:      environmentID,
		ServiceName:        serviceName,
		ServiceVersion:     serviceVersion,
		ResourceAttributes: resourceAttrs,
	}
	if err := p.store.UpsertTrace(ctx, trace); err != nil {
		p.logger.WithError(err).WithField("otel_trace_id", span.TraceID).Warn("trace upsert failed")
		result.rejectErrored()
		return
	}

	inserted, err := p.store.InsertSpan(ctx, p.toStoredSpan(environmentID, span))
	if err != nil {
		p.logger.WithError(err).WithField("otel_span_id", span.SpanID).Warn("span insert failed")
		result.rejectErrored()
		return
	}
	if !inserted {
		result.rejectDuplicate()
		return
	}

	// The span is durably stored from here on; a failed hand-off only
	// affects the tally.
	if err := p.outbox.Enqueue(ctx, spanSyncKey(environmentID, span.TraceID, span.SpanID), outbox.OperationInsert); err != nil {
		p.logger.WithError(err).WithField("otel_span_id", span.SpanID).Warn("outbox hand-off failed")
		result.rejectHandoff()
		return
	}
	result.accept()
}

// spanSyncKey is the outbox dedup key: the span's full storage identity.
func spanSyncKey(environmentID, traceID, spanID string) string {
	return fmt.Sprintf("%s/%s/%s", environmentID, traceID, spanID)
}

func (p *Pipeline) toStoredSpan(environmentID string, span otlp.Span) *Span {
	stored := &Span{
		OtelSpanID:        span.SpanID,
		OtelTraceID:       span.TraceID,
		EnvironmentID:     environmentID,
		Name:              span.Name,
		Kind:              span.Kind,
		StartTimeUnixNano: uint64(span.StartTimeUnixNano),
		EndTimeUnixNano:   uint64(span.EndTimeUnixNano),
		Attributes:        otlp.NormalizeAttributes(span.Attributes),
		StatusCode:        span.Status.Code,
		StatusMessage:     span.Status.Message,
		DroppedAttributes: span.DroppedAttributesCount,
		DroppedEvents:     span.DroppedEventsCount,
		DroppedLinks:      span.DroppedLinksCount,
	}
	if span.ParentSpanID != "" {
		parent := span.ParentSpanID
		stored.ParentSpanID = &parent
	}
	for _, event := range span.Events {
		stored.Events = append(stored.Events, map[string]interface{}{
			"name":                     event.Name,
			"time_unix_nano":           uint64(event.TimeUnixNano),
			"attributes":               otlp.NormalizeAttributes(event.Attributes),
			"dropped_attributes_count": event.DroppedAttributesCount,
		})
	}
	for _, link := range span.Links {
		stored.Links = append(stored.Links, map[string]interface{}{
			"trace_id":                 link.TraceID,
			"span_id":                  link.SpanID,
			"attributes":               otlp.NormalizeAttributes(link.Attributes),
			"dropped_attributes_count": link.DroppedAttributesCount,
		})
	}
	return stored
}

// FindAll lists the environment's traces. Read is open to every project
// role.
func (p *Pipeline) FindAll(ctx context.Context, userID string, scope rbac.Scope, limit int) ([]*Trace, error) {
	if scope.EnvironmentID == "" {
		return nil, apperrors.NotFound("resource not found")
	}
	if _, err := p.gate.Authorize(ctx, userID, rbac.ResourceTraces, rbac.ActionRead, scope); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	traces, err := p.store.ListTraces(ctx, scope.EnvironmentID, limit)
	if err != nil {
		return nil, err
	}
	if traces == nil {
		traces = []*Trace{}
	}
	return traces, nil
}

// FindByID fetches one trace with its spans.
func (p *Pipeline) FindByID(ctx context.Context, userID string, scope rbac.Scope, otelTraceID string) (*TraceWithSpans, error) {
	if scope.EnvironmentID == "" {
		return nil, apperrors.NotFound("resource not found")
	}
	if _, err := p.gate.Authorize(ctx, userID, rbac.ResourceTraces, rbac.ActionRead, scope); err != nil {
		return nil, err
	}
	trace, err := p.store.GetTrace(ctx, scope.EnvironmentID, otelTraceID)
	if err != nil {
		return nil, err
	}
	spans, err := p.store.ListSpans(ctx, scope.EnvironmentID, otelTraceID)
	if err != nil {
		return nil, err
	}
	return &TraceWithSpans{Trace: trace, Spans: spans}, nil
}

// Delete removes a trace and its spans. ADMIN only.
func (p *Pipeline) Delete(ctx context.Context, userID string, scope rbac.Scope, otelTraceID string) error {
	if scope.EnvironmentID == "" {
		return apperrors.NotFound("resource not found")
	}
	if _, err := p.gate.Authorize(ctx, userID, rbac.ResourceTraces, rbac.ActionDelete, scope); err != nil {
		return err
	}
	return p.store.DeleteTrace(ctx, scope.EnvironmentID, otelTraceID)
}

// Update always fails: traces and spans are write-once.
func (p *Pipeline) Update(ctx context.Context, userID string, scope rbac.Scope, otelTraceID string) error {
	return apperrors.Immutable("traces are write-once and cannot be updated")
}
