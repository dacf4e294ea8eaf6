package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies CARBITRAGE_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known CARBITRAGE_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Supabase ──
	setStr(&cfg.Supabase.DSN, "CARBITRAGE_SUPABASE_DSN")
	setStr(&cfg.Supabase.DSN, "CARBITRAGE_DATABASE_URL") // compatibility alias
	setStr(&cfg.Supabase.Host, "CARBITRAGE_SUPABASE_HOST")
	setInt(&cfg.Supabase.Port, "CARBITRAGE_SUPABASE_PORT")
	setStr(&cfg.Supabase.Database, "CARBITRAGE_SUPABASE_DATABASE")
	setStr(&cfg.Supabase.User, "CARBITRAGE_SUPABASE_USER")
	setStr(&cfg.Supabase.Password, "CARBITRAGE_SUPABASE_PASSWORD")
	setStr(&cfg.Supabase.SSLMode, "CARBITRAGE_SUPABASE_SSL_MODE")
	setInt(&cfg.Supabase.PoolMaxConns, "CARBITRAGE_SUPABASE_POOL_MAX_CONNS")
	setInt(&cfg.Supabase.PoolMinConns, "CARBITRAGE_SUPABASE_POOL_MIN_CONNS")
	setBool(&cfg.Supabase.RunMigrations, "CARBITRAGE_SUPABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "CARBITRAGE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CARBITRAGE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CARBITRAGE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CARBITRAGE_REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "CARBITRAGE_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.CodeTableTTL, "CARBITRAGE_REDIS_CODE_TABLE_TTL")
	setDuration(&cfg.Redis.BestSaleTTL, "CARBITRAGE_REDIS_BEST_SALE_TTL")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "CARBITRAGE_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "CARBITRAGE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CARBITRAGE_S3_REGION")
	setStr(&cfg.S3.Bucket, "CARBITRAGE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "CARBITRAGE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CARBITRAGE_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "CARBITRAGE_S3_FORCE_PATH_STYLE")

	// ── Matching / scoring / decision ──
	setInt(&cfg.Matching.MaxFingerprints, "CARBITRAGE_MATCHING_MAX_FINGERPRINTS")
	setInt(&cfg.Matching.MaxPerFingerprint, "CARBITRAGE_MATCHING_MAX_PER_FINGERPRINT")
	setFloat64(&cfg.Scoring.GPTarget, "CARBITRAGE_SCORING_GP_TARGET")
	setFloat64(&cfg.Scoring.ExitTargetDays, "CARBITRAGE_SCORING_EXIT_TARGET_DAYS")
	setFloat64(&cfg.Decision.BuyMinGapDollars, "CARBITRAGE_DECISION_BUY_MIN_GAP_DOLLARS")
	setFloat64(&cfg.Decision.BuyMinGapPct, "CARBITRAGE_DECISION_BUY_MIN_GAP_PCT")
	setFloat64(&cfg.Decision.WatchMinGapDollars, "CARBITRAGE_DECISION_WATCH_MIN_GAP_DOLLARS")
	setStringSlice(&cfg.Decision.UnverifiedSources, "CARBITRAGE_DECISION_UNVERIFIED_SOURCES")

	// ── Lifecycle / verify ──
	setInt(&cfg.Lifecycle.ConfirmAfter, "CARBITRAGE_LIFECYCLE_CONFIRM_AFTER")
	setInt(&cfg.Lifecycle.DelistAfter, "CARBITRAGE_LIFECYCLE_DELIST_AFTER")
	setDuration(&cfg.Lifecycle.StaleAfter, "CARBITRAGE_LIFECYCLE_STALE_AFTER")
	setInt(&cfg.Verify.BatchSize, "CARBITRAGE_VERIFY_BATCH_SIZE")
	setInt(&cfg.Verify.Concurrency, "CARBITRAGE_VERIFY_CONCURRENCY")
	setDuration(&cfg.Verify.Timeout, "CARBITRAGE_VERIFY_TIMEOUT")
	setStr(&cfg.Verify.UserAgent, "CARBITRAGE_VERIFY_USER_AGENT")
	setInt(&cfg.Verify.HostRateLimit, "CARBITRAGE_VERIFY_HOST_RATE_LIMIT")

	// ── Pipeline ──
	setDuration(&cfg.Pipeline.MatchInterval, "CARBITRAGE_PIPELINE_MATCH_INTERVAL")
	setDuration(&cfg.Pipeline.VerifyInterval, "CARBITRAGE_PIPELINE_VERIFY_INTERVAL")
	setStr(&cfg.Pipeline.FingerprintCron, "CARBITRAGE_PIPELINE_FINGERPRINT_CRON")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "CARBITRAGE_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "CARBITRAGE_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "CARBITRAGE_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "CARBITRAGE_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "CARBITRAGE_SERVER_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "CARBITRAGE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "CARBITRAGE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "CARBITRAGE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStr(&cfg.Notify.WebhookURL, "CARBITRAGE_NOTIFY_WEBHOOK_URL")
	setStr(&cfg.Notify.WebhookSecret, "CARBITRAGE_NOTIFY_WEBHOOK_SECRET")
	setStringSlice(&cfg.Notify.Events, "CARBITRAGE_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "CARBITRAGE_MODE")
	setStr(&cfg.LogLevel, "CARBITRAGE_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
