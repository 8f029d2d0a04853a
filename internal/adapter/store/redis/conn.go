// Package redisstore implements the job store and queue ports on the
// external Redis key/value service.
package redisstore

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// NewClient parses a redis URL and returns a connected client handle. The
// client pools connections internally; all store and queue calls share it.
func NewClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("op=redis.NewClient: %w", err)
	}
	return redis.NewClient(opt), nil
}

// Ping verifies connectivity, for startup and readiness checks.
func Ping(ctx context.Context, rdb *redis.Client) error {
	return rdb.Ping(ctx).Err()
}
