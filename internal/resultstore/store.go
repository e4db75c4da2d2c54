// Package resultstore persists job result artifacts and hands out
// time-limited URLs for retrieving them.
package resultstore

import (
	"context"
	"path"
)

// Store is durable blob storage keyed by opaque path. Artifacts are written
// once and never modified.
type Store interface {
	// Put writes an artifact. Paths are prefixed by the store.
	Put(ctx context.Context, key string, body []byte, contentType string) error
	// Get reads an artifact back.
	Get(ctx context.Context, key string) ([]byte, error)
	// URL returns a fetchable URL for an artifact. The S3 backend bounds its
	// lifetime with a presign TTL; the dev-only local backend deliberately
	// waives expiry and serves a permanent static URL.
	URL(ctx context.Context, key string) (string, error)
}

// ArtifactKey derives the storage key for a job's result artifact.
func ArtifactKey(jobID, format string) string {
	return jobID + "." + format
}

func joinPrefix(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return path.Join(prefix, key)
}
