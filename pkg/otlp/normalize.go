package otlp

// Well-known resource attribute keys carrying service identity.
const (
	serviceNameKey    = "service.name"
	serviceVersionKey = "service.version"
)

// Normalize converts a typed attribute value into a plain JSON-shaped Go
// value. Arrays and nested key-value lists normalize recursively. A value
// with no variant set normalizes to nil.
func Normalize(v AnyValue) interface{} {
	switch {
	case v.StringValue != nil:
		return *v.StringValue
	case v.BoolValue != nil:
		return *v.BoolValue
	case v.IntValue != nil:
		return int64(*v.IntValue)
	case v.DoubleValue != nil:
		return *v.DoubleValue
	case v.BytesValue != nil:
		return *v.BytesValue
	case v.ArrayValue != nil:
		out := make([]interface{}, len(v.ArrayValue.Values))
		for i, elem := range v.ArrayValue.Values {
			out[i] = Normalize(elem)
		}
		return out
	case v.KvlistValue != nil:
		return NormalizeAttributes(v.KvlistValue.Values)
	default:
		return nil
	}
}

// NormalizeAttributes converts an attribute list into a plain map. Later
// duplicates of a key win, matching last-write-wins trace metadata.
func NormalizeAttributes(attrs []KeyValue) map[string]interface{} {
	out := make(map[string]interface{}, len(attrs))
	for _, kv := range attrs {
		out[kv.Key] = Normalize(kv.Value)
	}
	return out
}

// ServiceIdentity extracts service.name and service.version from a resource
// attribute list. An absent or non-string value yields nil.
func ServiceIdentity(attrs []KeyValue) (name, version *string) {
	for _, kv := range attrs {
		switch kv.Key {
		case serviceNameKey:
			if kv.Value.StringValue != nil {
				name = kv.Value.StringValue
			}
		case serviceVersionKey:
			if kv.Value.StringValue != nil {
				version = kv.Value.StringValue
			}
		}
	}
	return name, version
}
