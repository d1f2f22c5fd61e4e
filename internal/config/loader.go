package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path (skipped when path is empty),
// merges it on top of the built-in defaults, applies LEDGER_* environment
// variable overrides, and returns the final Config. The returned Config has
// NOT been validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known LEDGER_* environment variables and
// overwrites the corresponding Config fields when a variable is set.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "LEDGER_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setInt(&cfg.Postgres.MaxConns, "LEDGER_POSTGRES_MAX_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "LEDGER_POSTGRES_RUN_MIGRATIONS")

	// ── ClickHouse ──
	setBool(&cfg.ClickHouse.Enabled, "LEDGER_CLICKHOUSE_ENABLED")
	setStr(&cfg.ClickHouse.DSN, "LEDGER_CLICKHOUSE_DSN")
	setBool(&cfg.ClickHouse.RunMigrations, "LEDGER_CLICKHOUSE_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "LEDGER_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "LEDGER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "LEDGER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "LEDGER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "LEDGER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "LEDGER_REDIS_MAX_RETRIES")

	// ── Solana ──
	setStr(&cfg.Solana.RPCURL, "LEDGER_SOLANA_RPC_URL")
	setDuration(&cfg.Solana.Timeout, "LEDGER_SOLANA_TIMEOUT")
	setInt(&cfg.Solana.MaxRetries, "LEDGER_SOLANA_MAX_RETRIES")
	setInt(&cfg.Solana.PageSize, "LEDGER_SOLANA_PAGE_SIZE")
	setInt(&cfg.Solana.MaxPages, "LEDGER_SOLANA_MAX_PAGES")

	// ── Classifier / resolver / matcher ──
	setStringSlice(&cfg.Classifier.KnownSources, "LEDGER_CLASSIFIER_KNOWN_SOURCES")
	setFloat64(&cfg.Resolver.NoiseFloor, "LEDGER_RESOLVER_NOISE_FLOOR")
	setFloat64(&cfg.Matcher.DustThreshold, "LEDGER_MATCHER_DUST_THRESHOLD")
	setStringSlice(&cfg.Matcher.AccountingBases, "LEDGER_MATCHER_ACCOUNTING_BASES")

	// ── Recompute / pipeline ──
	setInt(&cfg.Recompute.Parallelism, "LEDGER_RECOMPUTE_PARALLELISM")
	setDuration(&cfg.Recompute.LockTTL, "LEDGER_RECOMPUTE_LOCK_TTL")
	setStr(&cfg.Recompute.LockPrefix, "LEDGER_RECOMPUTE_LOCK_PREFIX")
	setInt(&cfg.Pipeline.Workers, "LEDGER_PIPELINE_WORKERS")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "LEDGER_LOG_LEVEL")
	setStr(&cfg.MetricsAddr, "LEDGER_METRICS_ADDR")
}

// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.

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
