// Package ingest implements the trace ingestion pipeline: authorized batch
// intake of OTLP spans, idempotent trace/span storage, and best-effort
// hand-off of newly stored spans to the sync outbox.
package ingest

import "time"

// Trace is the mutable aggregate identified by (otel_trace_id,
// environment_id). Service metadata is last-write-wins: later spans may
// carry richer resource context.
type Trace struct {
	OtelTraceID        string                 `json:"otel_trace_id"`
	EnvironmentID      string                 `json:"environment_id"`
	ServiceName        *string                `json:"service_name,omitempty"`
	ServiceVersion     *string                `json:"service_version,omitempty"`
	ResourceAttributes map[string]interface{} `json:"resource_attributes,omitempty"`
	CreatedAt          time.Time              `json:"created_at"`
	UpdatedAt          time.Time              `json:"updated_at"`
}

// Span is one stored span row. Immutable once inserted.
type Span struct {
	OtelSpanID        string                   `json:"otel_span_id"`
	OtelTraceID       string                   `json:"otel_trace_id"`
	EnvironmentID     string                   `json:"environment_id"`
	ParentSpanID      *string                  `json:"parent_span_id,omitempty"`
	Name              string                   `json:"name"`
	Kind              int32                    `json:"kind"`
	StartTimeUnixNano uint64                   `json:"start_time_unix_nano"`
	EndTimeUnixNano   uint64                   `json:"end_time_unix_nano"`
	Attributes        map[string]interface{}   `json:"attributes,omitempty"`
	StatusCode        int32                    `json:"status_code"`
	StatusMessage     string                   `json:"status_message,omitempty"`
	Events            []map[string]interface{} `json:"events,omitempty"`
	Links             []map[string]interface{} `json:"links,omitempty"`
	DroppedAttributes uint32                   `json:"dropped_attributes_count"`
	DroppedEvents     uint32                   `json:"dropped_events_count"`
	DroppedLinks      uint32                   `json:"dropped_links_count"`
	CreatedAt         time.Time                `json:"created_at"`
}

// TraceWithSpans is the findById projection: the trace plus its stored
// spans.
type TraceWithSpans struct {
	Trace *Trace  `json:"trace"`
	Spans []*Span `json:"spans"`
}

// Result is the per-batch outcome tally. A span is accepted only when it
// was newly inserted and its outbox hand-off succeeded; every other outcome
// lands in one of the split rejection counters. RejectedSpans is always the
// sum of the three.
type Result struct {
	AcceptedSpans   int `json:"accepted_spans"`
	RejectedSpans   int `json:"rejected_spans"`
	Duplicates      int `json:"duplicates"`
	Errored         int `json:"errored"`
	HandoffFailures int `json:"handoff_failures"`
}

func (r *Result) accept() {
	r.AcceptedSpans++
}

func (r *Result) rejectDuplicate() {
	r.Duplicates++
	r.RejectedSpans++
}

func (r *Result) rejectErrored() {
	r.Errored++
	r.RejectedSpans++
}

func (r *Result) rejectHandoff() {
	r.HandoffFailures++
	r.RejectedSpans++
}
