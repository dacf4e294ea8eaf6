package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	const doc = `
mode = "match"

[redis]
code_table_ttl = "30m"

[matching]
max_per_fingerprint = 5
[matching.geo_multipliers]
QLD = 1.1
WA = 0.9

[decision]
buy_min_gap_dollars = 4500
unverified_sources = ["facebook"]

[pipeline]
match_interval = "2m"
fingerprint_cron = "*/30 * * * *"

[[verify.sources]]
source = "pickles"
detail_url_pattern = "/cars/item/"
sold_phrases = ["sold at auction"]
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CARBITRAGE_SERVER_PORT", "9090")
	t.Setenv("CARBITRAGE_NOTIFY_EVENTS", "BUY, ")
	t.Setenv("CARBITRAGE_PIPELINE_VERIFY_INTERVAL", "90s")
	t.Setenv("CARBITRAGE_SUPABASE_PORT", "not-a-number")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("loaded config invalid: %v", err)
	}

	if cfg.Mode != "match" {
		t.Errorf("mode = %q", cfg.Mode)
	}
	if cfg.Redis.CodeTableTTL.Duration != 30*time.Minute {
		t.Errorf("code_table_ttl = %v", cfg.Redis.CodeTableTTL)
	}
	if cfg.Redis.BestSaleTTL.Duration != 15*time.Minute {
		t.Errorf("best_sale_ttl default lost: %v", cfg.Redis.BestSaleTTL)
	}
	if cfg.Matching.MaxPerFingerprint != 5 || cfg.Matching.MaxFingerprints != 20 {
		t.Errorf("matching = %+v", cfg.Matching)
	}
	if cfg.Matching.GeoMultipliers["QLD"] != 1.1 || len(cfg.Matching.GeoMultipliers) != 2 {
		t.Errorf("geo = %v", cfg.Matching.GeoMultipliers)
	}
	if cfg.Decision.BuyMinGapDollars != 4500 || cfg.Decision.BuyMinGapPct != 10 {
		t.Errorf("decision = %+v", cfg.Decision)
	}
	if len(cfg.Verify.Sources) != 1 || cfg.Verify.Sources[0].SoldPhrases[0] != "sold at auction" {
		t.Errorf("verify sources = %+v", cfg.Verify.Sources)
	}
	if cfg.Pipeline.MatchInterval.Duration != 2*time.Minute || cfg.Pipeline.VerifyInterval.Duration != 90*time.Second {
		t.Errorf("pipeline = %+v", cfg.Pipeline)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if len(cfg.Notify.Events) != 1 || cfg.Notify.Events[0] != "BUY" {
		t.Errorf("events = %v", cfg.Notify.Events)
	}
	if cfg.Supabase.Port != 5432 {
		t.Errorf("unparseable env override applied: port = %d", cfg.Supabase.Port)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[pipeline]\nmatch_interval = \"soon\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("bad duration accepted")
	}
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.Redis.Addr = ""
	cfg.Matching.GeoMultipliers = map[string]float64{"NT": 0}
	cfg.Decision.BuyMinGapDollars = 100
	cfg.Decision.WatchMinGapDollars = 500
	cfg.Verify.Sources = []VerifySourceConfig{{Source: "a"}, {Source: "a"}}
	cfg.Pipeline.FingerprintCron = "daily"
	cfg.Notify.TelegramToken = "tok"
	cfg.Notify.Events = []string{"SELL"}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid config accepted")
	}
	for _, want := range []string{
		`unknown mode "trade"`,
		"redis: addr",
		`geo multiplier for "NT"`,
		"buy_min_gap_dollars",
		`source "a" configured twice`,
		"fingerprint_cron",
		"telegram_token and telegram_chat_id",
		`unknown event "SELL"`,
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q:\n%v", want, err)
		}
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Supabase.Password = "pg-secret"
	cfg.Server.APIKey = "api-secret"
	cfg.Notify.WebhookSecret = "hook-secret"
	cfg.Matching.GeoMultipliers["QLD"] = 1.2

	out := RedactedConfig(&cfg)
	if out.Supabase.Password != redacted || out.Server.APIKey != redacted || out.Notify.WebhookSecret != redacted {
		t.Errorf("secrets not redacted: %+v", out)
	}
	if out.Redis.Password != "" {
		t.Error("empty secret should stay empty")
	}
	if cfg.Supabase.Password != "pg-secret" {
		t.Error("original mutated")
	}

	out.Matching.GeoMultipliers["QLD"] = 9
	out.Notify.Events[0] = "IGNORE"
	if cfg.Matching.GeoMultipliers["QLD"] != 1.2 || cfg.Notify.Events[0] != "BUY" {
		t.Error("redacted copy shares reference types with the original")
	}
}
