package core

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisMemoryStore implements the Memory interface on Redis for services
// that need transcripts or state to survive restarts and be shared across
// replicas.
type RedisMemoryStore struct {
	client    *redis.Client
	namespace string
	logger    Logger
}

// NewRedisMemoryStore connects to Redis and verifies the connection
func NewRedisMemoryStore(redisURL, namespace string) (*RedisMemoryStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", ErrInvalidConfiguration)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", ErrConnectionFailed)
	}

	if namespace == "" {
		namespace = "toolmesh"
	}

	return &RedisMemoryStore{
		client:    client,
		namespace: namespace,
		logger:    &NoOpLogger{},
	}, nil
}

// SetLogger configures the logger for this store
func (r *RedisMemoryStore) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

func (r *RedisMemoryStore) key(key string) string {
	return fmt.Sprintf("%s:memory:%s", r.namespace, key)
}

// Get retrieves a value; a missing key returns "" without error
func (r *RedisMemoryStore) Get(ctx context.Context, key string) (string, error) {
	value, err := r.client.Get(ctx, r.key(key)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, nil
}

// Set stores a value with optional TTL (ttl <= 0 means no expiry)
func (r *RedisMemoryStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, r.key(key), value, ttl).Err(); err != nil {
		r.logger.Error("Failed to store memory entry", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// Delete removes a value
func (r *RedisMemoryStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// Exists checks if a key exists
func (r *RedisMemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check %s: %w", key, err)
	}
	return n > 0, nil
}

// Close releases the Redis connection
func (r *RedisMemoryStore) Close() error {
	return r.client.Close()
}
