package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Get(ctx context.Context, key string, dest interface{}) error {
	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("cache get %s: %w", key, err)
	}
	return json.Unmarshal([]byte(val), dest)
}

func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value: %w", err)
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	return c.client.Del(ctx, keys...).Err()
}

func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, key).Result()
	return n > 0, err
}

// analysisLockTTL bounds how long a crashed worker can hold a paper; the
// durable progress field lets the next run resume regardless.
const analysisLockTTL = 30 * time.Minute

func analysisLockKey(paperID uuid.UUID) string {
	return "analysis:lock:" + paperID.String()
}

// AcquireAnalysisLock serializes pipelines per paper. It returns false when
// another run holds the paper.
func (c *Cache) AcquireAnalysisLock(ctx context.Context, paperID uuid.UUID) (bool, error) {
	ok, err := c.client.SetNX(ctx, analysisLockKey(paperID), time.Now().Unix(), analysisLockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("acquire analysis lock: %w", err)
	}
	return ok, nil
}

func (c *Cache) ReleaseAnalysisLock(ctx context.Context, paperID uuid.UUID) error {
	return c.client.Del(ctx, analysisLockKey(paperID)).Err()
}
