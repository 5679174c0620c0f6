// Package cache keeps successful product lookups so a rescan of a known code
// can skip the backend.
package cache

import (
	"context"
	"errors"

	"github.com/fjod/go_pos/pos-terminal/internal/domain"
)

type ProductCache interface {
	Get(ctx context.Context, code string) (domain.Product, error)
	Set(ctx context.Context, code string, p domain.Product) error
}

var ErrCacheMiss = errors.New("cache miss")
