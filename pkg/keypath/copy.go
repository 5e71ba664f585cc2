package keypath

import "encoding/json"

// DeepCopy returns a copy of v that shares no mutable state with it. Values
// are expected to be JSON-shaped (maps, slices, scalars); other composite
// values are normalized through encoding/json.
func DeepCopy(v any) any {
	switch t := v.(type) {
	case nil, bool, string, float64, float32, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, json.Number:
		return t
	case map[string]any:
		return deepCopyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = DeepCopy(item)
		}
		return out
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	case map[string]string:
		out := make(map[string]any, len(t))
		for k, s := range t {
			out[k] = s
		}
		return out
	case json.RawMessage:
		var generic any
		if err := json.Unmarshal(t, &generic); err != nil {
			return nil
		}
		return generic
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return t
		}
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return t
		}
		return generic
	}
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = DeepCopy(v)
	}
	return out
}
