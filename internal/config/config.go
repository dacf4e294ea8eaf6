// Package config defines the top-level configuration for the arbitrage
// engine and provides validation helpers.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by CARBITRAGE_* environment variables.
type Config struct {
	Supabase  SupabaseConfig  `toml:"supabase"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Matching  MatchingConfig  `toml:"matching"`
	Scoring   ScoringConfig   `toml:"scoring"`
	Decision  DecisionConfig  `toml:"decision"`
	Lifecycle LifecycleConfig `toml:"lifecycle"`
	Verify    VerifyConfig    `toml:"verify"`
	Pipeline  PipelineConfig  `toml:"pipeline"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// SupabaseConfig holds PostgreSQL / Supabase connection parameters.
type SupabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters and cache lifetimes.
type RedisConfig struct {
	Addr         string   `toml:"addr"`
	Password     string   `toml:"password"`
	DB           int      `toml:"db"`
	PoolSize     int      `toml:"pool_size"`
	MaxRetries   int      `toml:"max_retries"`
	TLSEnabled   bool     `toml:"tls_enabled"`
	CodeTableTTL duration `toml:"code_table_ttl"`
	BestSaleTTL  duration `toml:"best_sale_ttl"`
	StreamMaxLen int64    `toml:"stream_max_len"`
}

// S3Config holds S3-compatible object storage parameters. When Enabled is
// false crawl batches and candidate snapshots are not archived.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// MatchingConfig bounds the candidate set a hunt rebuild considers.
type MatchingConfig struct {
	// MaxFingerprints is how many top fingerprints per account are matched.
	MaxFingerprints int `toml:"max_fingerprints"`
	// MaxPerFingerprint keeps only the cheapest N listings per fingerprint.
	// Zero keeps all.
	MaxPerFingerprint int `toml:"max_per_fingerprint"`
	// MinTimesSold drops sales groups with fewer sales from fingerprints.
	MinTimesSold int `toml:"min_times_sold"`
	// FingerprintLimit caps how many fingerprints are stored per account.
	FingerprintLimit int `toml:"fingerprint_limit"`
	// GeoMultipliers scales scores by listing location (state or region).
	GeoMultipliers map[string]float64 `toml:"geo_multipliers"`
}

// ScoringConfig holds the opportunity score targets.
type ScoringConfig struct {
	GPTarget       float64 `toml:"gp_target"`
	ExitTargetDays float64 `toml:"exit_target_days"`
	GapPctTarget   float64 `toml:"gap_pct_target"`
	EventTopN      int     `toml:"event_top_n"`
}

// DecisionConfig holds the BUY/WATCH policy thresholds.
type DecisionConfig struct {
	BuyMinGapDollars   float64  `toml:"buy_min_gap_dollars"`
	BuyMinGapPct       float64  `toml:"buy_min_gap_pct"`
	WatchMinGapDollars float64  `toml:"watch_min_gap_dollars"`
	FastClearanceDays  float64  `toml:"fast_clearance_days"`
	UnverifiedSources  []string `toml:"unverified_sources"`
}

// LifecycleConfig holds presence-tracking thresholds.
type LifecycleConfig struct {
	ConfirmAfter  int      `toml:"confirm_after"`
	DelistAfter   int      `toml:"delist_after"`
	StaleAfter    duration `toml:"stale_after"`
	IngestLockTTL duration `toml:"ingest_lock_ttl"`
}

// VerifyConfig holds listing re-verification parameters.
type VerifyConfig struct {
	BatchSize      int                  `toml:"batch_size"`
	Concurrency    int                  `toml:"concurrency"`
	Timeout        duration             `toml:"timeout"`
	UserAgent      string               `toml:"user_agent"`
	MaxRetries     int                  `toml:"max_retries"`
	BaseDelay      duration             `toml:"base_delay"`
	MaxDelay       duration             `toml:"max_delay"`
	HostRateLimit  int                  `toml:"host_rate_limit"`
	HostRateWindow duration             `toml:"host_rate_window"`
	Sources        []VerifySourceConfig `toml:"sources"`
}

// VerifySourceConfig is the sold/expired detection rule for one source.
type VerifySourceConfig struct {
	Source           string   `toml:"source"`
	DetailURLPattern string   `toml:"detail_url_pattern"`
	SoldPhrases      []string `toml:"sold_phrases"`
	ExpiredPhrases   []string `toml:"expired_phrases"`
}

// PipelineConfig holds the schedules of the background loops.
type PipelineConfig struct {
	MatchInterval    duration `toml:"match_interval"`
	VerifyInterval   duration `toml:"verify_interval"`
	FingerprintCron  string   `toml:"fingerprint_cron"`
	IngestBatchSize  int      `toml:"ingest_batch_size"`
	IngestBlock      duration `toml:"ingest_block"`
	IngestRetryDelay duration `toml:"ingest_retry_delay"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
}

// NotifyConfig holds alert sink credentials. Events lists the decisions that
// alert (BUY, WATCH).
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	WebhookURL        string   `toml:"webhook_url"`
	WebhookSecret     string   `toml:"webhook_secret"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Supabase: SupabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			PoolSize:     20,
			MaxRetries:   3,
			CodeTableTTL: duration{time.Hour},
			BestSaleTTL:  duration{15 * time.Minute},
			StreamMaxLen: 10000,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "carbitrage-archive",
			ForcePathStyle: true,
		},
		Matching: MatchingConfig{
			MaxFingerprints:   20,
			MaxPerFingerprint: 3,
			MinTimesSold:      1,
			FingerprintLimit:  50,
			GeoMultipliers:    map[string]float64{},
		},
		Scoring: ScoringConfig{
			GPTarget:       4000,
			ExitTargetDays: 21,
			GapPctTarget:   25,
			EventTopN:      10,
		},
		Decision: DecisionConfig{
			BuyMinGapDollars:   3000,
			BuyMinGapPct:       10,
			WatchMinGapDollars: 0,
			FastClearanceDays:  14,
		},
		Lifecycle: LifecycleConfig{
			ConfirmAfter:  2,
			DelistAfter:   2,
			StaleAfter:    duration{72 * time.Hour},
			IngestLockTTL: duration{5 * time.Minute},
		},
		Verify: VerifyConfig{
			BatchSize:      50,
			Concurrency:    8,
			Timeout:        duration{20 * time.Second},
			UserAgent:      "Mozilla/5.0 (compatible; carbitrage-verifier/1.0)",
			MaxRetries:     3,
			BaseDelay:      duration{500 * time.Millisecond},
			MaxDelay:       duration{8 * time.Second},
			HostRateLimit:  30,
			HostRateWindow: duration{time.Minute},
		},
		Pipeline: PipelineConfig{
			MatchInterval:    duration{10 * time.Minute},
			VerifyInterval:   duration{15 * time.Minute},
			FingerprintCron:  "0 3 * * *",
			IngestBatchSize:  10,
			IngestBlock:      duration{5 * time.Second},
			IngestRetryDelay: duration{10 * time.Second},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"BUY", "WATCH"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"ingest":      true,
	"match":       true,
	"verify":      true,
	"fingerprint": true,
	"server":      true,
	"full":        true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validEvents = map[string]bool{
	"BUY":        true,
	"WATCH":      true,
	"UNVERIFIED": true,
	"IGNORE":     true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	if !validModes[strings.ToLower(c.Mode)] {
		add("unknown mode %q (valid: ingest, match, verify, fingerprint, server, full)", c.Mode)
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		add("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel)
	}

	// Supabase
	if strings.TrimSpace(c.Supabase.DSN) == "" {
		if c.Supabase.Host == "" {
			add("supabase: host must not be empty (or set supabase.dsn)")
		}
		if c.Supabase.Port <= 0 || c.Supabase.Port > 65535 {
			add("supabase: port must be 1-65535, got %d", c.Supabase.Port)
		}
		if c.Supabase.Database == "" {
			add("supabase: database must not be empty")
		}
	}
	if c.Supabase.PoolMaxConns < 1 {
		add("supabase: pool_max_conns must be >= 1")
	}
	if c.Supabase.PoolMinConns < 0 || c.Supabase.PoolMinConns > c.Supabase.PoolMaxConns {
		add("supabase: pool_min_conns must be between 0 and pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		add("redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		add("redis: pool_size must be >= 1")
	}
	if c.Redis.CodeTableTTL.Duration <= 0 || c.Redis.BestSaleTTL.Duration <= 0 {
		add("redis: code_table_ttl and best_sale_ttl must be > 0")
	}

	// S3
	if c.S3.Enabled && c.S3.Bucket == "" {
		add("s3: bucket must not be empty when enabled")
	}

	// Matching
	if c.Matching.MaxFingerprints < 1 {
		add("matching: max_fingerprints must be >= 1")
	}
	if c.Matching.MaxPerFingerprint < 0 {
		add("matching: max_per_fingerprint must be >= 0")
	}
	for region, m := range c.Matching.GeoMultipliers {
		if m <= 0 {
			add("matching: geo multiplier for %q must be > 0", region)
		}
	}

	// Scoring
	if c.Scoring.GPTarget <= 0 || c.Scoring.ExitTargetDays <= 0 || c.Scoring.GapPctTarget <= 0 {
		add("scoring: gp_target, exit_target_days and gap_pct_target must be > 0")
	}

	// Decision
	if c.Decision.BuyMinGapDollars < c.Decision.WatchMinGapDollars {
		add("decision: buy_min_gap_dollars must not be below watch_min_gap_dollars")
	}
	if c.Decision.BuyMinGapPct < 0 || c.Decision.BuyMinGapPct >= 100 {
		add("decision: buy_min_gap_pct must be in [0, 100)")
	}

	// Lifecycle
	if c.Lifecycle.ConfirmAfter < 1 || c.Lifecycle.DelistAfter < 1 {
		add("lifecycle: confirm_after and delist_after must be >= 1")
	}
	if c.Lifecycle.IngestLockTTL.Duration <= 0 {
		add("lifecycle: ingest_lock_ttl must be > 0")
	}

	// Verify
	if c.Verify.BatchSize < 1 {
		add("verify: batch_size must be >= 1")
	}
	if c.Verify.Concurrency < 1 {
		add("verify: concurrency must be >= 1")
	}
	if c.Verify.Timeout.Duration <= 0 {
		add("verify: timeout must be > 0")
	}
	seen := map[string]bool{}
	for i, s := range c.Verify.Sources {
		if s.Source == "" {
			add("verify: sources[%d]: source must not be empty", i)
			continue
		}
		if seen[s.Source] {
			add("verify: source %q configured twice", s.Source)
		}
		seen[s.Source] = true
	}

	// Pipeline
	if c.Pipeline.MatchInterval.Duration <= 0 || c.Pipeline.VerifyInterval.Duration <= 0 {
		add("pipeline: match_interval and verify_interval must be > 0")
	}
	if len(strings.Fields(c.Pipeline.FingerprintCron)) != 5 {
		add("pipeline: fingerprint_cron %q must have 5 fields", c.Pipeline.FingerprintCron)
	}

	// Server
	if c.Server.Enabled || c.Mode == "server" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			add("server: port must be 1-65535, got %d", c.Server.Port)
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			add("server: rate_window must be > 0 when rate_limit is set")
		}
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		add("notify: telegram_token and telegram_chat_id must be set together")
	}
	for _, raw := range []string{c.Notify.DiscordWebhookURL, c.Notify.WebhookURL} {
		if raw == "" {
			continue
		}
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			add("notify: webhook urls must be absolute http(s) urls")
		}
	}
	for _, e := range c.Notify.Events {
		if !validEvents[strings.ToUpper(e)] {
			add("notify: unknown event %q (valid: BUY, WATCH, UNVERIFIED, IGNORE)", e)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
