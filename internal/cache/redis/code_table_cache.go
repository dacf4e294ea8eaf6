package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/carbitrage/internal/domain"
)

const codeTableKey = "codes:dms"

// CodeTableCache implements domain.CodeTableCache: the DMS code table is
// read through Redis with a fixed TTL and loaded from the store on a miss.
// A Redis failure degrades to a direct store read.
type CodeTableCache struct {
	rdb    *redis.Client
	store  domain.CodeTableStore
	ttl    time.Duration
	logger *slog.Logger
}

// NewCodeTableCache creates a CodeTableCache.
func NewCodeTableCache(c *Client, store domain.CodeTableStore, ttl time.Duration, logger *slog.Logger) *CodeTableCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CodeTableCache{
		rdb:    c.Underlying(),
		store:  store,
		ttl:    ttl,
		logger: logger.With(slog.String("component", "code_table_cache")),
	}
}

// Get returns the cached table, loading and caching it on a miss.
func (c *CodeTableCache) Get(ctx context.Context) (domain.CodeTable, error) {
	data, err := c.rdb.Get(ctx, codeTableKey).Bytes()
	switch {
	case err == nil:
		var ct domain.CodeTable
		if jerr := json.Unmarshal(data, &ct); jerr == nil {
			return ct, nil
		}
		c.logger.WarnContext(ctx, "discarding undecodable code table entry")
	case !errors.Is(err, redis.Nil):
		c.logger.WarnContext(ctx, "code table cache read failed", slog.String("error", err.Error()))
	}

	ct, err := c.store.LoadCodeTable(ctx)
	if err != nil {
		return domain.CodeTable{}, fmt.Errorf("redis: load code table: %w", err)
	}
	if payload, err := json.Marshal(ct); err == nil {
		if err := c.rdb.Set(ctx, codeTableKey, payload, c.ttl).Err(); err != nil {
			c.logger.WarnContext(ctx, "code table cache write failed", slog.String("error", err.Error()))
		}
	}
	return ct, nil
}

// Invalidate drops the cached table.
func (c *CodeTableCache) Invalidate(ctx context.Context) error {
	if err := c.rdb.Del(ctx, codeTableKey).Err(); err != nil {
		return fmt.Errorf("redis: invalidate code table: %w", err)
	}
	return nil
}

var _ domain.CodeTableCache = (*CodeTableCache)(nil)
