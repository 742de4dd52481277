package redis

import (
	"context"
	"time"
)

// Cache is the Redis surface used by the assessment cache and its Bloom filter.
type Cache interface {
	SetString(ctx context.Context, key, value string, exp time.Duration) error
	GetString(ctx context.Context, key string) (string, error)

	ScriptRun(ctx context.Context, script *Script, keys []string, args ...any) (any, error)
}
