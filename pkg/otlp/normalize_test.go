package otlp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestNormalize(t *testing.T) {
	t.Run("scalar variants", func(t *testing.T) {
		b := true
		i := FlexInt64(42)
		d := 3.14
		assert.Equal(t, "checkout", Normalize(AnyValue{StringValue: strPtr("checkout")}))
		assert.Equal(t, true, Normalize(AnyValue{BoolValue: &b}))
		assert.Equal(t, int64(42), Normalize(AnyValue{IntValue: &i}))
		assert.Equal(t, 3.14, Normalize(AnyValue{DoubleValue: &d}))
		assert.Nil(t, Normalize(AnyValue{}))
	})

	t.Run("nested arrays and maps normalize recursively", func(t *testing.T) {
		inner := FlexInt64(7)
		value := AnyValue{
			ArrayValue: &ArrayValue{Values: []AnyValue{
				{StringValue: strPtr("a")},
				{KvlistValue: &KeyValueList{Values: []KeyValue{
					{Key: "depth", Value: AnyValue{IntValue: &inner}},
					{Key: "tags", Value: AnyValue{ArrayValue: &ArrayValue{Values: []AnyValue{
						{StringValue: strPtr("x")},
						{StringValue: strPtr("y")},
					}}}},
				}}},
			}},
		}

		assert.Equal(t, []interface{}{
			"a",
			map[string]interface{}{
				"depth": int64(7),
				"tags":  []interface{}{"x", "y"},
			},
		}, Normalize(value))
	})

	t.Run("duplicate keys keep the last value", func(t *testing.T) {
		attrs := []KeyValue{
			{Key: "env", Value: AnyValue{StringValue: strPtr("staging")}},
			{Key: "env", Value: AnyValue{StringValue: strPtr("production")}},
		}
		assert.Equal(t, map[string]interface{}{"env": "production"}, NormalizeAttributes(attrs))
	})
}

func TestServiceIdentity(t *testing.T) {
	t.Run("both keys present", func(t *testing.T) {
		name, version := ServiceIdentity([]KeyValue{
			{Key: "service.name", Value: AnyValue{StringValue: strPtr("checkout")}},
			{Key: "service.version", Value: AnyValue{StringValue: strPtr("1.4.2")}},
			{Key: "host.name", Value: AnyValue{StringValue: strPtr("web-1")}},
		})
		require.NotNil(t, name)
		require.NotNil(t, version)
		assert.Equal(t, "checkout", *name)
		assert.Equal(t, "1.4.2", *version)
	})

	t.Run("absent keys are nil", func(t *testing.T) {
		name, version := ServiceIdentity(nil)
		assert.Nil(t, name)
		assert.Nil(t, version)
	})

	t.Run("non-string service name is ignored", func(t *testing.T) {
		i := FlexInt64(1)
		name, _ := ServiceIdentity([]KeyValue{
			{Key: "service.name", Value: AnyValue{IntValue: &i}},
		})
		assert.Nil(t, name)
	})
}

func TestDecodeExportRequest(t *testing.T) {
	payload := `{
		"resourceSpans": [{
			"resource": {"attributes": [
				{"key": "service.name", "value": {"stringValue": "checkout"}}
			]},
			"scopeSpans": [{
				"scope": {"name": "traceloft-sdk", "version": "0.3.0"},
				"spans": [{
					"traceId": "0af7651916cd43dd8448eb211c80319c",
					"spanId": "b7ad6b7169203331",
					"name": "GET /cart",
					"kind": 2,
					"startTimeUnixNano": "1544712660000000000",
					"endTimeUnixNano": 1544712661000000000,
					"attributes": [
						{"key": "http.status_code", "value": {"intValue": "200"}}
					],
					"status": {"code": 1}
				}]
			}]
		}]
	}`

	var req ExportRequest
	require.NoError(t, json.Unmarshal([]byte(payload), &req))
	require.Len(t, req.ResourceSpans, 1)

	group := req.ResourceSpans[0]
	name, _ := ServiceIdentity(group.Resource.Attributes)
	require.NotNil(t, name)
	assert.Equal(t, "checkout", *name)

	require.Len(t, group.ScopeSpans, 1)
	require.Len(t, group.ScopeSpans[0].Spans, 1)
	span := group.ScopeSpans[0].Spans[0]
	assert.Equal(t, FlexUint64(1544712660000000000), span.StartTimeUnixNano)
	assert.Equal(t, FlexUint64(1544712661000000000), span.EndTimeUnixNano)
	require.NotNil(t, span.Attributes[0].Value.IntValue)
	assert.Equal(t, int64(200), int64(*span.Attributes[0].Value.IntValue))
}
