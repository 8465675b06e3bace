package services

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const targetKeyPrefix = "upload-target:"

// RedisTargetRegistry shares issued upload ids between service replicas.
type RedisTargetRegistry struct {
	client *redis.Client
}

func NewRedisTargetRegistry(ctx context.Context, addr, password string, db int) (*RedisTargetRegistry, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &RedisTargetRegistry{client: client}, nil
}

// NewRedisTargetRegistryFromClient wraps an existing client.
func NewRedisTargetRegistryFromClient(client *redis.Client) *RedisTargetRegistry {
	return &RedisTargetRegistry{client: client}
}

func (r *RedisTargetRegistry) Issue(ctx context.Context, id string, ttl time.Duration) error {
	return r.client.Set(ctx, targetKeyPrefix+id, 1, ttl).Err()
}

func (r *RedisTargetRegistry) Valid(ctx context.Context, id string) (bool, error) {
	n, err := r.client.Exists(ctx, targetKeyPrefix+id).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *RedisTargetRegistry) CheckConnection(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisTargetRegistry) Close() error {
	return r.client.Close()
}
