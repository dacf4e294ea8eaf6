package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/alanyoungcy/carbitrage/internal/blob/s3"
	"github.com/alanyoungcy/carbitrage/internal/cache/redis"
	"github.com/alanyoungcy/carbitrage/internal/config"
	"github.com/alanyoungcy/carbitrage/internal/decision"
	"github.com/alanyoungcy/carbitrage/internal/domain"
	"github.com/alanyoungcy/carbitrage/internal/fingerprint"
	"github.com/alanyoungcy/carbitrage/internal/lifecycle"
	"github.com/alanyoungcy/carbitrage/internal/notify"
	"github.com/alanyoungcy/carbitrage/internal/scoring"
	"github.com/alanyoungcy/carbitrage/internal/server/handler"
	"github.com/alanyoungcy/carbitrage/internal/service"
	"github.com/alanyoungcy/carbitrage/internal/store/postgres"
	"github.com/alanyoungcy/carbitrage/internal/verify"
)

// Dependencies bundles every dependency the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	ListingStore     domain.ListingStore
	CrawlRunStore    domain.CrawlRunStore
	PresenceStore    domain.PresenceEventStore
	FingerprintStore domain.FingerprintStore
	SalesStore       domain.SalesStore
	HuntStore        domain.HuntStore
	CandidateStore   domain.CandidateStore
	LifecycleStore   domain.LifecycleStore
	CodeTableStore   domain.CodeTableStore
	AuditStore       domain.AuditStore

	// Caches and coordination
	CodeTables  domain.CodeTableCache
	BestSales   domain.BestSaleCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus
	Cursors     *redis.CursorStore

	// Blob storage. Archiver is nil when s3.enabled is false.
	Archiver domain.Archiver

	// Services
	Ingest       *service.IngestService
	Hunts        *service.HuntService
	Verify       *service.VerifyService
	Fingerprints *service.FingerprintService

	// Health checks by dependency name.
	Checks map[string]handler.Checker
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(step string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %s: %w", step, err)
	}

	deps := &Dependencies{Checks: map[string]handler.Checker{}}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Supabase.DSN,
		Host:     cfg.Supabase.Host,
		Port:     cfg.Supabase.Port,
		Database: cfg.Supabase.Database,
		User:     cfg.Supabase.User,
		Password: cfg.Supabase.Password,
		SSLMode:  cfg.Supabase.SSLMode,
		MaxConns: cfg.Supabase.PoolMaxConns,
		MinConns: cfg.Supabase.PoolMinConns,
	})
	if err != nil {
		return fail("postgres", err)
	}
	closers = append(closers, pgClient.Close)
	deps.Checks["postgres"] = pgClient.Ping

	if cfg.Supabase.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			return fail("postgres migrations", err)
		}
	}

	pool := pgClient.Pool()
	deps.ListingStore = postgres.NewListingStore(pool)
	deps.CrawlRunStore = postgres.NewCrawlRunStore(pool)
	deps.PresenceStore = postgres.NewPresenceEventStore(pool)
	deps.FingerprintStore = postgres.NewFingerprintStore(pool)
	deps.SalesStore = postgres.NewSalesStore(pool)
	deps.HuntStore = postgres.NewHuntStore(pool)
	deps.CandidateStore = postgres.NewCandidateStore(pool)
	// A claim lease outlives the slowest verification of one listing.
	lease := 2 * time.Duration(max(1, cfg.Verify.MaxRetries+1)) * (cfg.Verify.Timeout.Duration + cfg.Verify.MaxDelay.Duration)
	deps.LifecycleStore = postgres.NewLifecycleStore(pool, lease)
	deps.CodeTableStore = postgres.NewCodeTableStore(pool)
	deps.AuditStore = postgres.NewAuditStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		return fail("redis", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })
	deps.Checks["redis"] = redisClient.Ping

	deps.CodeTables = redis.NewCodeTableCache(redisClient, deps.CodeTableStore, cfg.Redis.CodeTableTTL.Duration, logger)
	deps.BestSales = redis.NewBestSaleCache(redisClient, cfg.Redis.BestSaleTTL.Duration)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient, cfg.Redis.StreamMaxLen)
	deps.Cursors = redis.NewCursorStore(redisClient)

	// --- S3 archive ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail("s3", err)
		}
		deps.Checks["s3"] = s3Client.Health
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), s3blob.NewReader(s3Client), deps.AuditStore)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if cfg.Notify.WebhookURL != "" {
		senders = append(senders, notify.NewWebhookSender(cfg.Notify.WebhookURL, cfg.Notify.WebhookSecret))
	}
	notifier := notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Services ---
	deps.Ingest = service.NewIngestService(
		deps.ListingStore,
		deps.CrawlRunStore,
		deps.CodeTables,
		deps.LockManager,
		deps.Archiver,
		lifecycle.NewTracker(lifecycle.Policy{
			ConfirmAfter: cfg.Lifecycle.ConfirmAfter,
			DelistAfter:  cfg.Lifecycle.DelistAfter,
			StaleAfter:   cfg.Lifecycle.StaleAfter.Duration,
		}),
		cfg.Lifecycle.IngestLockTTL.Duration,
		logger,
	)

	deps.Hunts = service.NewHuntService(service.HuntDeps{
		Hunts:        deps.HuntStore,
		Listings:     deps.ListingStore,
		Fingerprints: deps.FingerprintStore,
		BestSales:    deps.BestSales,
		Candidates:   deps.CandidateStore,
		Scorer: scoring.New(scoring.Params{
			GPTarget:       cfg.Scoring.GPTarget,
			ExitTargetDays: cfg.Scoring.ExitTargetDays,
			GapPctTarget:   cfg.Scoring.GapPctTarget,
			EventTopN:      cfg.Scoring.EventTopN,
		}),
		Classifier: decision.NewClassifier(decision.Policy{
			BuyMinGapDollars:   cfg.Decision.BuyMinGapDollars,
			BuyMinGapPct:       cfg.Decision.BuyMinGapPct,
			WatchMinGapDollars: cfg.Decision.WatchMinGapDollars,
			FastClearanceDays:  cfg.Decision.FastClearanceDays,
			UnverifiedSources:  cfg.Decision.UnverifiedSources,
		}),
		Notifier: notifier,
		Bus:      deps.SignalBus,
		Archiver: deps.Archiver,
	}, service.HuntConfig{
		MaxFingerprints:   cfg.Matching.MaxFingerprints,
		MaxPerFingerprint: cfg.Matching.MaxPerFingerprint,
		GeoMultipliers:    cfg.Matching.GeoMultipliers,
	}, logger)

	rules := make([]verify.SourceRule, 0, len(cfg.Verify.Sources))
	for _, s := range cfg.Verify.Sources {
		rules = append(rules, verify.SourceRule{
			Source:           s.Source,
			DetailURLPattern: s.DetailURLPattern,
			SoldPhrases:      s.SoldPhrases,
			ExpiredPhrases:   s.ExpiredPhrases,
		})
	}
	verifier, err := verify.New(
		verify.NewHTTPFetcher(cfg.Verify.Timeout.Duration, cfg.Verify.UserAgent),
		deps.RateLimiter,
		verify.Config{
			Retry: verify.RetryPolicy{
				MaxRetries: cfg.Verify.MaxRetries,
				BaseDelay:  cfg.Verify.BaseDelay.Duration,
				MaxDelay:   cfg.Verify.MaxDelay.Duration,
			},
			Concurrency:    cfg.Verify.Concurrency,
			Sources:        rules,
			HostRateLimit:  cfg.Verify.HostRateLimit,
			HostRateWindow: cfg.Verify.HostRateWindow.Duration,
		},
		logger,
	)
	if err != nil {
		return fail("verifier", err)
	}
	deps.Verify = service.NewVerifyService(deps.LifecycleStore, verifier, cfg.Verify.BatchSize, logger)

	deps.Fingerprints = service.NewFingerprintService(
		deps.SalesStore,
		deps.FingerprintStore,
		deps.BestSales,
		fingerprint.Options{
			Limit:        cfg.Matching.FingerprintLimit,
			MinTimesSold: cfg.Matching.MinTimesSold,
		},
		logger,
	)

	return deps, cleanup, nil
}
