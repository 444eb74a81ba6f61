// Package rollback implements the Rollback Executor (spec.md §4.7): it
// applies an ordered list of rollback operations to an on-disk table file,
// deterministically transforming it back to a baseline snapshot's state.
package rollback

import (
	"github.com/peter-fm/tabdiff/pkg/tablesource"
)

// asInt extracts an int from a rollback-op parameter, tolerating the
// float64 shape json.Unmarshal produces for numbers when ops were loaded
// back from a persisted diffs/<a>-<b>.json report rather than passed
// in-process straight from the Change Detector.
func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case float64:
		return int(t), true
	}
	return 0, false
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// asValue extracts a tablesource.Value, tolerating both the typed struct
// (in-process) and the map[string]any shape json.Unmarshal produces for a
// struct with exported fields after a JSON round trip.
func asValue(v any) tablesource.Value {
	switch t := v.(type) {
	case tablesource.Value:
		return t
	case map[string]any:
		val := tablesource.Value{}
		if n, ok := t["Null"].(bool); ok {
			val.Null = n
		}
		if s, ok := t["Str"].(string); ok {
			val.Str = s
		}
		return val
	default:
		return tablesource.NullValue()
	}
}

// asValueMap extracts a map[string]tablesource.Value from an InsertRow op's
// "values" parameter, tolerating the same two shapes as asValue.
func asValueMap(v any) map[string]tablesource.Value {
	out := make(map[string]tablesource.Value)
	switch t := v.(type) {
	case map[string]tablesource.Value:
		for k, val := range t {
			out[k] = val
		}
	case map[string]any:
		for k, val := range t {
			out[k] = asValue(val)
		}
	}
	return out
}

func asStringSlice(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

