package data

import (
	"context"
	"fmt"
	"time"

	"deepfake/internal/conf"
	pkgredis "deepfake/internal/pkg/redis"

	"github.com/go-kratos/kratos/v2/log"
	redis "github.com/redis/go-redis/v9"
)

// NewRedisCache creates a new Redis cache from configuration. It returns a nil
// cache when Redis is not configured.
func NewRedisCache(c *conf.Data, logger log.Logger) (pkgredis.Cache, func(), error) {
	helper := log.NewHelper(logger)
	if !c.RedisEnabled() {
		helper.Info("redis not configured, assessment cache disabled")
		return nil, func() {}, nil
	}

	opts := &redis.Options{
		Addr:         c.Redis.Addr,
		Network:      c.Redis.Network,
		Password:     c.Redis.Password,
		DB:           c.Redis.DB,
		ReadTimeout:  c.Redis.ReadTimeout.AsDuration(),
		WriteTimeout: c.Redis.WriteTimeout.AsDuration(),
	}
	cache := pkgredis.New(redis.NewClient(opts))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := cache.Ping(ctx); err != nil {
		helper.Errorf("failed to connect to Redis at %s: %v", c.Redis.Addr, err)
		cache.Close()
		return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	helper.Infof("connected to Redis at %s", c.Redis.Addr)

	cleanup := func() {
		helper.Info("closing Redis connection")
		cache.Close()
	}

	return cache, cleanup, nil
}
