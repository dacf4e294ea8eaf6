package domain

import (
	"context"
	"time"
)

// CodeTableCache serves the DMS code table from a TTL cache in front of the
// store.
type CodeTableCache interface {
	Get(ctx context.Context) (CodeTable, error)
	Invalidate(ctx context.Context) error
}

// BestSaleCache memoizes best-sale lookups per account/make/model. Get
// reports a cache hit with its bool; a hit on a recorded miss returns
// ErrNotFound.
type BestSaleCache interface {
	Get(ctx context.Context, accountID, vehicleMake, model string) (BestSale, bool, error)
	Set(ctx context.Context, accountID string, sale BestSale) error
	SetMiss(ctx context.Context, accountID, vehicleMake, model string) error
	InvalidateAccount(ctx context.Context, accountID string) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string, limit int, window time.Duration) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// Channel and stream names shared by producers and consumers.
const (
	// ChannelAlerts carries JSON AlertEvents to live dashboards.
	ChannelAlerts = "alerts"
	// ChannelVerifyTrigger asks whichever process runs the verify loop for
	// an extra batch.
	ChannelVerifyTrigger = "verify:trigger"
	// StreamCrawlRuns carries JSON CrawlBatches from crawlers to ingestion.
	StreamCrawlRuns = "crawl:runs"
)

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int, block time.Duration) ([]StreamMessage, error)
}
