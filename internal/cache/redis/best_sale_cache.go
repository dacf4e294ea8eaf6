package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/carbitrage/internal/domain"
)

// missMarker records that an account has no qualifying sale for a
// make/model.
const missMarker = "-"

// BestSaleCache implements domain.BestSaleCache with JSON string keys.
//
// Key schema:
//
//	bestsale:{account}:{MAKE}:{MODEL} - JSON BestSale, or "-" for a known miss
type BestSaleCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewBestSaleCache creates a BestSaleCache.
func NewBestSaleCache(c *Client, ttl time.Duration) *BestSaleCache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &BestSaleCache{rdb: c.Underlying(), ttl: ttl}
}

func bestSaleKey(accountID, vehicleMake, model string) string {
	return "bestsale:" + accountID + ":" + strings.ToUpper(vehicleMake) + ":" + strings.ToUpper(model)
}

// Get implements domain.BestSaleCache. A cached miss is a hit that returns
// domain.ErrNotFound.
func (c *BestSaleCache) Get(ctx context.Context, accountID, vehicleMake, model string) (domain.BestSale, bool, error) {
	raw, err := c.rdb.Get(ctx, bestSaleKey(accountID, vehicleMake, model)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.BestSale{}, false, nil
	}
	if err != nil {
		return domain.BestSale{}, false, fmt.Errorf("redis: get best sale: %w", err)
	}
	if raw == missMarker {
		return domain.BestSale{}, true, domain.ErrNotFound
	}
	var b domain.BestSale
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		return domain.BestSale{}, false, fmt.Errorf("redis: unmarshal best sale: %w", err)
	}
	return b, true, nil
}

// Set implements domain.BestSaleCache.
func (c *BestSaleCache) Set(ctx context.Context, accountID string, sale domain.BestSale) error {
	data, err := json.Marshal(sale)
	if err != nil {
		return fmt.Errorf("redis: marshal best sale: %w", err)
	}
	if err := c.rdb.Set(ctx, bestSaleKey(accountID, sale.Make, sale.Model), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set best sale: %w", err)
	}
	return nil
}

// SetMiss implements domain.BestSaleCache.
func (c *BestSaleCache) SetMiss(ctx context.Context, accountID, vehicleMake, model string) error {
	if err := c.rdb.Set(ctx, bestSaleKey(accountID, vehicleMake, model), missMarker, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set best sale miss: %w", err)
	}
	return nil
}

// InvalidateAccount drops every cached best sale of an account, used after
// its fingerprints are refreshed.
func (c *BestSaleCache) InvalidateAccount(ctx context.Context, accountID string) error {
	iter := c.rdb.Scan(ctx, 0, "bestsale:"+accountID+":*", 200).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis: scan best sales: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis: invalidate best sales: %w", err)
	}
	return nil
}

var _ domain.BestSaleCache = (*BestSaleCache)(nil)
