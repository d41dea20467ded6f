package model

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Fields is an opaque form payload: field name to JSON-compatible value.
type Fields map[string]any

// Clone returns a deep copy. Nested maps and slices are copied so that later
// edits to f never leak into the clone.
func (f Fields) Clone() Fields {
	if f == nil {
		return Fields{}
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, vv := range t {
			m[k] = cloneValue(vv)
		}
		return m
	case Fields:
		return t.Clone()
	case []any:
		s := make([]any, len(t))
		for i, vv := range t {
			s[i] = cloneValue(vv)
		}
		return s
	case []string:
		return append([]string(nil), t...)
	case []float64:
		return append([]float64(nil), t...)
	default:
		return v
	}
}

// Number reads a numeric field. Strings holding a number are accepted since
// form inputs often arrive as text.
func (f Fields) Number(key string) (float64, bool) {
	v, ok := f[key]
	if !ok || v == nil {
		return 0, false
	}
	var n float64
	switch t := v.(type) {
	case float64:
		n = t
	case float32:
		n = float64(t)
	case int:
		n = float64(t)
	case int64:
		n = float64(t)
	case int32:
		n = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		n = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		n = parsed
	default:
		return 0, false
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

// Text reads a string field, trimmed.
func (f Fields) Text(key string) string {
	s, _ := f[key].(string)
	return strings.TrimSpace(s)
}

// Numbers collects every numeric field, skipping strings. It feeds metric
// records from submitted forms.
func (f Fields) Numbers() map[string]float64 {
	out := make(map[string]float64)
	for k, v := range f {
		if _, isText := v.(string); isText {
			continue
		}
		if n, ok := f.Number(k); ok {
			out[k] = n
		}
	}
	return out
}
