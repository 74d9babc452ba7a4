// Package cache provides the typed key/value store the session runtime is
// built on. The Store interface is the minimal surface the repositories
// need. Production uses the Redis implementation in redis.go; MemoryStore
// backs local development and tests.
package cache

import (
	"context"
	"time"
)

// Store is a typed façade over a remote key/value service with hashes, sets,
// lists, strings and TTLs. No operation is cross-key transactional. Any call
// may fail with a transient error; admission callers treat failures as
// rejections, broadcast callers log and skip.
type Store interface {
	// Hash operations.
	HSetAll(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HSet(ctx context.Context, key, field, value string) error
	HIncrBy(ctx context.Context, key, field string, incr int64) (int64, error)

	// Set operations. SAdd reports whether the member was newly added —
	// this boolean is the vote dedup primitive.
	SAdd(ctx context.Context, key, member string) (bool, error)
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	SIsMember(ctx context.Context, key, member string) (bool, error)

	// List operations.
	LPush(ctx context.Context, key, value string) error
	LTrim(ctx context.Context, key string, start, stop int64) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	// String operations. GetDel is atomic get-and-delete and returns ""
	// when the key is absent. SetNX reports whether the key was set.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	GetDel(ctx context.Context, key string) (string, error)

	// Key operations.
	Exists(ctx context.Context, key string) (bool, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
}
