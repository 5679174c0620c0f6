package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/fjod/go_pos/pos-terminal/internal/domain"
	"github.com/redis/go-redis/v9"
)

const defaultTTL = 15 * time.Minute

type RedisProductCache struct {
	client  redis.Cmdable
	baseTTL time.Duration
}

func NewRedisProductCache(client redis.Cmdable, ttl time.Duration) *RedisProductCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisProductCache{
		client:  client,
		baseTTL: ttl,
	}
}

func (r *RedisProductCache) Get(ctx context.Context, code string) (domain.Product, error) {
	data, err := r.client.Get(ctx, cacheKey(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Product{}, ErrCacheMiss
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("redis get failed: %w", err)
	}

	var p domain.Product
	if err := json.Unmarshal(data, &p); err != nil {
		return domain.Product{}, fmt.Errorf("unmarshal product failed: %w", err)
	}
	return p, nil
}

// Set stores p under the scanned code. The TTL is spread by up to a tenth
// so entries written together do not expire together.
func (r *RedisProductCache) Set(ctx context.Context, code string, p domain.Product) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal product failed: %w", err)
	}

	jitter := time.Duration(rand.Int63n(int64(r.baseTTL)/10 + 1))
	if err := r.client.Set(ctx, cacheKey(code), data, r.baseTTL+jitter).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func cacheKey(code string) string {
	return fmt.Sprintf("pos:product:%s", code)
}
