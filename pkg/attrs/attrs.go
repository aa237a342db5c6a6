// Package attrs reads slog-style key/value lists ([k1, v1, k2, v2, ...])
// so audit lines and published audit events share one attribute list.
package attrs

import "slices"

// String returns the string value for key, or "" when the key is absent or
// its value is not a string.
func String(kv []any, key string) string {
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok && k == key {
			v, _ := kv[i+1].(string)
			return v
		}
	}
	return ""
}

// Strings collects every string-valued pair into a map, leaving out the
// skipped keys. A later duplicate key wins.
func Strings(kv []any, skip ...string) map[string]string {
	out := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok || slices.Contains(skip, k) {
			continue
		}
		if v, ok := kv[i+1].(string); ok {
			out[k] = v
		}
	}
	return out
}
