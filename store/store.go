package store

import (
	"context"
	"time"
)

// StreamEntry is one record of an append-only stream. IDs are opaque
// but lexicographically monotonic within a stream.
type StreamEntry struct {
	ID     string
	Fields map[string]string
}

// Backend is the abstract key/hash/set/stream store the table state
// lives in. The redis implementation backs production; the memory
// implementation backs tests and single-node runs. Both must honor the
// same semantics: SetNX with TTL, compare-and-delete, monotonic stream
// IDs and approximate stream trimming.
type Backend interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	CompareAndDel(ctx context.Context, key, value string) (bool, error)
	Del(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)

	HGet(ctx context.Context, key, field string) (string, bool, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HSet(ctx context.Context, key string, fields map[string]string) error
	HDel(ctx context.Context, key string, fields ...string) error
	HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error)

	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	SIsMember(ctx context.Context, key, member string) (bool, error)
	SCard(ctx context.Context, key string) (int64, error)

	// XAdd appends to a stream, trimming it to roughly maxLen entries.
	XAdd(ctx context.Context, key string, maxLen int64, fields map[string]string) (string, error)
	// XRangeAfter reads entries with IDs strictly greater than afterID.
	XRangeAfter(ctx context.Context, key, afterID string, count int64) ([]StreamEntry, error)
	// XTail reads the last count entries in stream order.
	XTail(ctx context.Context, key string, count int64) ([]StreamEntry, error)
}
