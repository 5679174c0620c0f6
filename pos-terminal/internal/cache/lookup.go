package cache

import (
	"context"
	"errors"

	"github.com/fjod/go_pos/pos-terminal/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ProductLookup resolves a scanned code to a product.
type ProductLookup interface {
	LookupProduct(ctx context.Context, code string) (domain.Product, error)
}

// CachedLookup serves lookups from a ProductCache and falls back to next.
// Only successful lookups are stored; a cache outage degrades to plain
// lookups. Concurrent misses for one code share a single backend call.
type CachedLookup struct {
	next  ProductLookup
	cache ProductCache
	log   *zap.Logger
	sfg   singleflight.Group
}

func NewCachedLookup(next ProductLookup, cache ProductCache, log *zap.Logger) *CachedLookup {
	if log == nil {
		log = zap.NewNop()
	}
	return &CachedLookup{next: next, cache: cache, log: log}
}

func (c *CachedLookup) LookupProduct(ctx context.Context, code string) (domain.Product, error) {
	p, err := c.cache.Get(ctx, code)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		c.log.Warn("product cache read failed", zap.String("code", code), zap.Error(err))
	}

	v, err, _ := c.sfg.Do(code, func() (interface{}, error) {
		p, err := c.next.LookupProduct(ctx, code)
		if err != nil {
			return domain.Product{}, err
		}

		if err := c.cache.Set(ctx, code, p); err != nil {
			c.log.Warn("product cache write failed", zap.String("code", code), zap.Error(err))
		}
		return p, nil
	})
	if err != nil {
		return domain.Product{}, err
	}
	return v.(domain.Product), nil
}
