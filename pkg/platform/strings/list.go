// Package strings normalizes operator-supplied string lists such as broker
// addresses and network names.
package strings

import (
	"strings"
)

// SplitList splits a comma separated value into trimmed, non-empty,
// de-duplicated entries in their original order.
//
//	SplitList(" kafka-1:9092, kafka-2:9092,,kafka-1:9092")
//	// []string{"kafka-1:9092", "kafka-2:9092"}
func SplitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return Dedupe(strings.Split(raw, ","), strings.TrimSpace)
}

// Dedupe applies norm to each value and keeps the first occurrence of every
// non-empty result.
func Dedupe(values []string, norm func(string) string) []string {
	if len(values) == 0 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = norm(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Fold trims and lowercases a name for case-insensitive comparison.
func Fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
