package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/alanyoungcy/carbitrage/internal/domain"
)

// RunApplier applies one crawl batch.
type RunApplier interface {
	ApplyRun(ctx context.Context, batch domain.CrawlBatch) (domain.CrawlRun, error)
}

// Cursor persists a consumer's stream position.
type Cursor interface {
	Get(ctx context.Context, name string) (string, error)
	Set(ctx context.Context, name, id string) error
}

// IngestConsumerConfig tunes an IngestConsumer.
type IngestConsumerConfig struct {
	Stream     string
	CursorName string
	BatchSize  int
	Block      time.Duration
	// RetryDelay is how long to wait before re-reading after a batch that
	// must be retried (source lock held or store failure).
	RetryDelay time.Duration
}

// IngestConsumer reads crawl batches from a durable stream and applies
// them in order. The cursor only advances past a message once it has been
// applied, was already applied, or can never be applied.
type IngestConsumer struct {
	bus    domain.SignalBus
	cursor Cursor
	ingest RunApplier
	cfg    IngestConsumerConfig
	logger *slog.Logger
}

// NewIngestConsumer creates an IngestConsumer.
func NewIngestConsumer(bus domain.SignalBus, cursor Cursor, ingest RunApplier, cfg IngestConsumerConfig, logger *slog.Logger) *IngestConsumer {
	if cfg.Stream == "" {
		cfg.Stream = domain.StreamCrawlRuns
	}
	if cfg.CursorName == "" {
		cfg.CursorName = "ingest"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 10 * time.Second
	}
	return &IngestConsumer{
		bus:    bus,
		cursor: cursor,
		ingest: ingest,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "ingest_consumer")),
	}
}

// Poll reads and applies at most one page of messages starting after the
// saved cursor. It reports how many messages were consumed and whether the
// caller should back off before polling again.
func (c *IngestConsumer) Poll(ctx context.Context) (consumed int, retry bool, err error) {
	last, err := c.cursor.Get(ctx, c.cfg.CursorName)
	if err != nil {
		return 0, true, err
	}
	msgs, err := c.bus.StreamRead(ctx, c.cfg.Stream, last, c.cfg.BatchSize, c.cfg.Block)
	if err != nil {
		return 0, true, err
	}
	for _, m := range msgs {
		if !c.handle(ctx, m) {
			return consumed, true, nil
		}
		if err := c.cursor.Set(ctx, c.cfg.CursorName, m.ID); err != nil {
			return consumed, true, err
		}
		consumed++
	}
	return consumed, false, nil
}

// handle applies one message and reports whether the cursor may advance.
func (c *IngestConsumer) handle(ctx context.Context, m domain.StreamMessage) bool {
	var batch domain.CrawlBatch
	if err := json.Unmarshal(m.Payload, &batch); err != nil {
		c.logger.ErrorContext(ctx, "undecodable crawl batch skipped",
			slog.String("message_id", m.ID),
			slog.String("error", err.Error()),
		)
		return true
	}

	_, err := c.ingest.ApplyRun(ctx, batch)
	switch {
	case err == nil, errors.Is(err, domain.ErrRunAlreadyApplied):
		return true
	case errors.Is(err, domain.ErrInvalidBatch):
		c.logger.ErrorContext(ctx, "invalid crawl batch skipped",
			slog.String("message_id", m.ID),
			slog.String("error", err.Error()),
		)
		return true
	case errors.Is(err, domain.ErrLockHeld):
		c.logger.InfoContext(ctx, "source busy, retrying later",
			slog.String("message_id", m.ID),
			slog.String("source", batch.Source),
		)
		return false
	default:
		if ctx.Err() == nil {
			c.logger.ErrorContext(ctx, "apply crawl batch failed",
				slog.String("message_id", m.ID),
				slog.String("run_id", batch.RunID),
				slog.String("error", err.Error()),
			)
		}
		return false
	}
}

// Run polls until ctx is cancelled.
func (c *IngestConsumer) Run(ctx context.Context) error {
	c.logger.Info("ingest consumer started",
		slog.String("stream", c.cfg.Stream),
		slog.String("cursor", c.cfg.CursorName),
	)
	for {
		if ctx.Err() != nil {
			c.logger.Info("ingest consumer stopped")
			return ctx.Err()
		}
		_, retry, err := c.Poll(ctx)
		if err != nil && ctx.Err() == nil {
			c.logger.ErrorContext(ctx, "poll crawl stream failed", slog.String("error", err.Error()))
		}
		if !retry {
			continue
		}
		select {
		case <-ctx.Done():
			c.logger.Info("ingest consumer stopped")
			return ctx.Err()
		case <-time.After(c.cfg.RetryDelay):
		}
	}
}
