// Package id provides unique identifier generation for render jobs.
package id

import (
	"strings"

	"github.com/google/uuid"
)

// Generate creates a new unique job ID.
// Format: job-<uuid-without-dashes>
// Example: job-9f8d3a1c4b2e4f60a7d15c9e8b3f2a01
func Generate() string {
	return "job-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Valid reports whether s looks like an ID produced by Generate.
// IDs are joined into filesystem paths, so anything else is rejected
// before it can reach the disk layer.
func Valid(s string) bool {
	rest, ok := strings.CutPrefix(s, "job-")
	if !ok || len(rest) != 32 {
		return false
	}
	for _, r := range rest {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		default:
			return false
		}
	}
	return true
}
