package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"omegamusic/config"
	"omegamusic/model"

	"github.com/go-redis/redis/v8"
)

// redisStoreKey 保存完整快照JSON的单一键
const redisStoreKey = "omega-music:store"

// RedisBackend persists the snapshot as one serialized blob under a single
// well-known key. Deployments using it are expected to run many short-lived
// process instances, so the Ledger reloads at every mutating entry.
type RedisBackend struct {
	client *redis.Client
}

// NewRedisBackend connects to Redis and verifies the connection.
func NewRedisBackend(cfg *config.Config) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisBackend{client: client}, nil
}

// Load fetches the snapshot blob. A missing key means nothing has been
// persisted yet.
func (b *RedisBackend) Load(ctx context.Context) (*model.Snapshot, error) {
	raw, err := b.client.Get(ctx, redisStoreKey).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get store key from Redis: %w", err)
	}
	snap := &model.Snapshot{}
	if err := json.Unmarshal([]byte(raw), snap); err != nil {
		return nil, fmt.Errorf("failed to decode store snapshot from Redis: %w", err)
	}
	snap.Normalize()
	return snap, nil
}

// Save replaces the snapshot blob.
func (b *RedisBackend) Save(ctx context.Context, snap *model.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := b.client.Set(ctx, redisStoreKey, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set store key in Redis: %w", err)
	}
	return nil
}

// Ping verifies the connection, for the redis CLI subcommand.
func (b *RedisBackend) Ping(ctx context.Context) error {
	if _, err := b.client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}
