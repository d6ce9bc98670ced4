// Package cache stores JSON-encoded values with a time-to-live.
package cache

import (
	"context"
	"fmt"
	"time"
)

type Cache interface {
	GetJSON(ctx context.Context, key string, dst any) (hit bool, err error)
	SetJSON(ctx context.Context, key string, val any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// MatchKey is the cache key of a match result for a profile version.
func MatchKey(userID, jobID string, version int64) string {
	return fmt.Sprintf("match:%s:%s:v%d", userID, jobID, version)
}

// EmbeddingKey is the cache key of an entity's embedding vector.
func EmbeddingKey(kind, id string) string {
	return fmt.Sprintf("embedding:%s:%s", kind, id)
}
