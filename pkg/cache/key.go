package cache

import (
	"strings"
)

// keyPrefix is the first segment of every key written by this module.
const keyPrefix = "dashboard-news"

// Key identifies a cached value.
type Key struct {
	// Namespace groups keys by purpose (e.g. "endpoint").
	Namespace string

	// Parts are appended in order.
	Parts []string
}

// String generates a deterministic key string.
// Format: dashboard-news:namespace:part1:part2
//
// Example:
//
//	dashboard-news:endpoint:3f7a9c0d12ab44e1
func (k Key) String() string {
	parts := []string{keyPrefix}

	if ns := strings.Trim(k.Namespace, ":"); ns != "" {
		parts = append(parts, ns)
	}

	for _, p := range k.Parts {
		if p = strings.Trim(p, ":"); p != "" {
			parts = append(parts, p)
		}
	}

	return strings.Join(parts, ":")
}
