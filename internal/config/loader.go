package config

import (
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path (skipped when path is empty),
// merges it on top of the built-in defaults, applies PREDICT_* environment
// variable overrides, and returns the final Config. The returned Config has
// NOT been validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PREDICT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "PREDICT_POSTGRES_DSN")
	setInt(&cfg.Postgres.MaxOpenConns, "PREDICT_POSTGRES_MAX_OPEN_CONNS")
	setInt(&cfg.Postgres.MaxIdleConns, "PREDICT_POSTGRES_MAX_IDLE_CONNS")
	setDuration(&cfg.Postgres.ConnMaxLifetime, "PREDICT_POSTGRES_CONN_MAX_LIFETIME")
	setStr(&cfg.Postgres.MigrationsDir, "PREDICT_MIGRATIONS_DIR")
	setBool(&cfg.Postgres.RunMigrations, "PREDICT_RUN_MIGRATIONS")

	// ── NATS ──
	setStr(&cfg.NATS.URL, "PREDICT_NATS_URL")
	setInt(&cfg.NATS.RawBuffer, "PREDICT_NATS_RAW_BUFFER")
	setInt(&cfg.NATS.PublishBuffer, "PREDICT_NATS_PUBLISH_BUFFER")

	// ── Server ──
	setStr(&cfg.Server.Addr, "PREDICT_HTTP_ADDR")

	// ── Core ──
	setInt(&cfg.Core.PersistChanSize, "PREDICT_PERSIST_CHAN_SIZE")
	setInt(&cfg.Core.ProjectionChanSize, "PREDICT_PROJECTION_CHAN_SIZE")
	setInt(&cfg.Core.PersistBatchSize, "PREDICT_PERSIST_BATCH_SIZE")
	setDuration(&cfg.Core.PersistFlushTimeout, "PREDICT_PERSIST_FLUSH_TIMEOUT")

	// ── Snapshot ──
	setInt64(&cfg.Snapshot.Interval, "PREDICT_SNAPSHOT_INTERVAL")
	setDuration(&cfg.Snapshot.CheckInterval, "PREDICT_SNAPSHOT_CHECK_INTERVAL")

	// ── Platform ──
	setStr(&cfg.Platform.Admin, "PREDICT_PLATFORM_ADMIN")
	setStr(&cfg.Platform.Treasury, "PREDICT_PLATFORM_TREASURY")
	setInt64(&cfg.Platform.DisputeBond, "PREDICT_PLATFORM_DISPUTE_BOND")
	setInt32(&cfg.Platform.DefaultFeeBps, "PREDICT_PLATFORM_DEFAULT_FEE_BPS")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "PREDICT_LOG_LEVEL")
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

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
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
