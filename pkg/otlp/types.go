// Package otlp models the OTLP/JSON trace payload consumed by ingestion
// and normalizes its typed attribute values into plain JSON-shaped Go
// values.
package otlp

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ExportRequest is the top-level OTLP trace export payload.
type ExportRequest struct {
	ResourceSpans []ResourceSpans `json:"resourceSpans"`
}

// ResourceSpans is one resource-span group: a resource description plus the
// instrumentation-scope groups of spans emitted under it.
type ResourceSpans struct {
	Resource   Resource     `json:"resource"`
	ScopeSpans []ScopeSpans `json:"scopeSpans"`
}

// Resource carries the attribute list describing the emitting entity.
type Resource struct {
	Attributes []KeyValue `json:"attributes"`
}

// ScopeSpans groups spans by instrumentation scope.
type ScopeSpans struct {
	Scope *InstrumentationScope `json:"scope,omitempty"`
	Spans []Span                `json:"spans"`
}

// InstrumentationScope identifies the library that produced the spans.
type InstrumentationScope struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// Span is one timed operation within a trace.
type Span struct {
	TraceID                string     `json:"traceId"`
	SpanID                 string     `json:"spanId"`
	ParentSpanID           string     `json:"parentSpanId,omitempty"`
	Name                   string     `json:"name"`
	Kind                   int32      `json:"kind,omitempty"`
	StartTimeUnixNano      FlexUint64 `json:"startTimeUnixNano"`
	EndTimeUnixNano        FlexUint64 `json:"endTimeUnixNano"`
	Attributes             []KeyValue `json:"attributes,omitempty"`
	Status                 Status     `json:"status"`
	Events                 []Event    `json:"events,omitempty"`
	Links                  []Link     `json:"links,omitempty"`
	DroppedAttributesCount uint32     `json:"droppedAttributesCount,omitempty"`
	DroppedEventsCount     uint32     `json:"droppedEventsCount,omitempty"`
	DroppedLinksCount      uint32     `json:"droppedLinksCount,omitempty"`
}

// Status is the span's final outcome.
type Status struct {
	Code    int32  `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Event is a timestamped annotation on a span.
type Event struct {
	TimeUnixNano           FlexUint64 `json:"timeUnixNano"`
	Name                   string     `json:"name"`
	Attributes             []KeyValue `json:"attributes,omitempty"`
	DroppedAttributesCount uint32     `json:"droppedAttributesCount,omitempty"`
}

// Link points at a span in this or another trace.
type Link struct {
	TraceID                string     `json:"traceId"`
	SpanID                 string     `json:"spanId"`
	Attributes             []KeyValue `json:"attributes,omitempty"`
	DroppedAttributesCount uint32     `json:"droppedAttributesCount,omitempty"`
}

// KeyValue is one typed attribute.
type KeyValue struct {
	Key   string   `json:"key"`
	Value AnyValue `json:"value"`
}

// AnyValue is the OTLP typed-value union. Exactly one field is set.
type AnyValue struct {
	StringValue *string       `json:"stringValue,omitempty"`
	BoolValue   *bool         `json:"boolValue,omitempty"`
	IntValue    *FlexInt64    `json:"intValue,omitempty"`
	DoubleValue *float64      `json:"doubleValue,omitempty"`
	ArrayValue  *ArrayValue   `json:"arrayValue,omitempty"`
	KvlistValue *KeyValueList `json:"kvlistValue,omitempty"`
	BytesValue  *string       `json:"bytesValue,omitempty"`
}

// ArrayValue is a homogeneous or mixed list of values.
type ArrayValue struct {
	Values []AnyValue `json:"values"`
}

// KeyValueList is a nested attribute map.
type KeyValueList struct {
	Values []KeyValue `json:"values"`
}

// FlexUint64 decodes the proto3 JSON mapping for 64-bit integers, which
// renders them as strings, while also accepting plain numbers from lenient
// exporters.
type FlexUint64 uint64

func (f *FlexUint64) UnmarshalJSON(data []byte) error {
	var raw json.Number
	if err := json.Unmarshal(data, &raw); err != nil {
		var s string
		if serr := json.Unmarshal(data, &s); serr != nil {
			return fmt.Errorf("invalid uint64 value %s", data)
		}
		raw = json.Number(s)
	}
	v, err := strconv.ParseUint(raw.String(), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid uint64 value %q: %w", raw.String(), err)
	}
	*f = FlexUint64(v)
	return nil
}

func (f FlexUint64) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatUint(uint64(f), 10))
}

// FlexInt64 is the signed counterpart of FlexUint64, used for intValue.
type FlexInt64 int64

func (f *FlexInt64) UnmarshalJSON(data []byte) error {
	var raw json.Number
	if err := json.Unmarshal(data, &raw); err != nil {
		var s string
		if serr := json.Unmarshal(data, &s); serr != nil {
			return fmt.Errorf("invalid int64 value %s", data)
		}
		raw = json.Number(s)
	}
	v, err := strconv.ParseInt(raw.String(), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid int64 value %q: %w", raw.String(), err)
	}
	*f = FlexInt64(v)
	return nil
}

func (f FlexInt64) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatInt(int64(f), 10))
}
