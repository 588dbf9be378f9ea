package server

import (
	"docvet/internal/types"
)

// Params arrive as map[string]any decoded from JSON, so numbers are
// float64 and lists are []any. The helpers below tolerate the native Go
// shapes too, which is what in-process callers and tests pass.

func requiredString(params map[string]any, key string) (string, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return "", types.NewInvalidParams("Missing required parameter: %s", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", types.NewInvalidParams("Parameter %s must be a non-empty string", key)
	}
	return s, nil
}

func stringOr(params map[string]any, key, def string) string {
	if v, ok := params[key].(string); ok && v != "" {
		return v
	}
	return def
}

func optionalString(params map[string]any, key string) (string, bool) {
	v, ok := params[key].(string)
	return v, ok
}

func boolOr(params map[string]any, key string, def bool) bool {
	if v, ok := params[key].(bool); ok {
		return v
	}
	return def
}

func intOr(params map[string]any, key string, def int) int {
	switch v := params[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return def
}

func floatOr(params map[string]any, key string, def float64) float64 {
	switch v := params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}

// idList accepts a single string or a list of strings, the contract every
// ids-taking method shares. Absent or null yields an empty list.
func idList(params map[string]any, key string) ([]string, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch ids := v.(type) {
	case string:
		if ids == "" {
			return nil, nil
		}
		return []string{ids}, nil
	case []string:
		return ids, nil
	case []any:
		out := make([]string, 0, len(ids))
		for _, item := range ids {
			s, ok := item.(string)
			if !ok {
				return nil, types.NewInvalidParams("Parameter %s must contain only strings", key)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, types.NewInvalidParams("Parameter %s must be a string or a list of strings", key)
	}
}

// stringList is idList minus the single-string shorthand, for parameters
// that are lists by contract (validation_types, cache_types, ...).
func stringList(params map[string]any, key string) ([]string, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch list := v.(type) {
	case []string:
		return list, nil
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, types.NewInvalidParams("Parameter %s must contain only strings", key)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, types.NewInvalidParams("Parameter %s must be a list of strings", key)
	}
}

func mapParam(params map[string]any, key string) map[string]any {
	if v, ok := params[key].(map[string]any); ok {
		return v
	}
	return nil
}
