package data

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient wraps an optional redis connection. The service runs fine
// without one; availability is surfaced through the health endpoint.
type RedisClient struct {
	rdb *redis.Client
}

// NewRedisClient connects using a redis URL. An empty URL disables redis
// and returns a nil client, which is safe to call Available on.
func NewRedisClient(url string) (*RedisClient, error) {
	if url == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}

	return &RedisClient{rdb: redis.NewClient(opts)}, nil
}

// Available reports whether redis answers a ping within a short deadline.
func (c *RedisClient) Available(ctx context.Context) bool {
	if c == nil || c.rdb == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return c.rdb.Ping(ctx).Err() == nil
}

func (c *RedisClient) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}
