// Package tagstore keeps the per-tag version epochs that records capture at
// write time and are validated against at read time. Touching a tag moves
// its version to "now" (unix ms), which retroactively invalidates every
// record that captured an older version.
package tagstore

import (
	"context"
)

// TagStore abstracts where tag versions live.
// Use Local for in-process versions, Adapter to colocate them with the data
// backend, or Redis for a shared store whose touches run as one atomic script.
type TagStore interface {
	// Versions returns the current version for each name; missing => 0.
	Versions(ctx context.Context, names []string) (map[string]int64, error)
	// Touch sets every named tag to version (a unix-ms epoch chosen by the
	// caller). Versions never move backwards.
	Touch(ctx context.Context, names []string, version int64) error
	// Close releases resources (no-op ok).
	Close(ctx context.Context) error
}
