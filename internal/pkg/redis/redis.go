// Package redis wraps go-redis behind the small Cache interface.
package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Nil is returned for missing keys and nil script replies.
const Nil = redis.Nil

// Script is a Lua script run with EVALSHA, falling back to EVAL.
type Script = redis.Script

// NewScript compiles a Lua script.
func NewScript(src string) *Script {
	return redis.NewScript(src)
}

// Redis implements Cache on a go-redis client.
type Redis struct {
	client redis.UniversalClient
}

// New wraps an existing client.
func New(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

// SetString implements Cache.
func (r *Redis) SetString(ctx context.Context, key, value string, exp time.Duration) error {
	return r.client.Set(ctx, key, value, exp).Err()
}

// GetString implements Cache. Missing keys return Nil.
func (r *Redis) GetString(ctx context.Context, key string) (string, error) {
	return r.client.Get(ctx, key).Result()
}

// ScriptRun implements Cache.
func (r *Redis) ScriptRun(ctx context.Context, script *Script, keys []string, args ...any) (any, error) {
	return script.Run(ctx, r.client, keys, args...).Result()
}

// Ping checks the connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}
