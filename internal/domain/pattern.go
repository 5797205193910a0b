package domain

import "strings"

// MatchPattern implements the pattern matching rule shared by Shared
// State subscriptions and the Event Bus (§4.A, §4.B): exact match,
// prefix wildcard ("sensor.*"), or catch-all ("*" or empty).
func MatchPattern(pattern, key string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		prefix := pattern[:len(pattern)-1]
		return strings.HasPrefix(key, prefix)
	}
	return pattern == key
}
