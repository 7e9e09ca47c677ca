package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load merges the TOML file at path (if any) over the defaults, then applies
// AUCTION_* environment overrides. The returned Config has NOT been
// validated; the caller should invoke Config.Validate() after Load.
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

// applyEnvOverrides reads AUCTION_* environment variables and overwrites the
// corresponding Config fields when a variable is set.
func applyEnvOverrides(cfg *Config) {
	// ── Server ──
	setInt(&cfg.Server.Port, "AUCTION_SERVER_PORT")
	setInt(&cfg.Server.Port, "PORT") // platform convention
	setStringSlice(&cfg.Server.CORSOrigins, "AUCTION_SERVER_CORS_ORIGINS")
	setDuration(&cfg.Server.RequestTimeout, "AUCTION_SERVER_REQUEST_TIMEOUT")

	// ── Auction ──
	setStr(&cfg.Auction.MinDeposit, "AUCTION_MIN_DEPOSIT")
	setDuration(&cfg.Auction.CommitDuration, "AUCTION_COMMIT_DURATION")
	setDuration(&cfg.Auction.RevealDuration, "AUCTION_REVEAL_DURATION")
	setInt(&cfg.Auction.MaxOrdersPerBatch, "AUCTION_MAX_ORDERS_PER_BATCH")
	setInt64(&cfg.Auction.SlashTreasuryBps, "AUCTION_SLASH_TREASURY_BPS")
	setInt(&cfg.Auction.EarlySettleMinReveals, "AUCTION_EARLY_SETTLE_MIN_REVEALS")
	setStr(&cfg.Auction.Treasury, "AUCTION_TREASURY")
	setStr(&cfg.Auction.Owner, "AUCTION_OWNER")
	setStringSlice(&cfg.Auction.Settlers, "AUCTION_SETTLERS")
	setStringSlice(&cfg.Auction.AllowList, "AUCTION_ALLOW_LIST")

	// ── Adaptive ──
	setBool(&cfg.Adaptive.Enabled, "AUCTION_ADAPTIVE_ENABLED")
	setInt(&cfg.Adaptive.TargetOrders, "AUCTION_ADAPTIVE_TARGET_ORDERS")
	setFloat64(&cfg.Adaptive.LowRevealRate, "AUCTION_ADAPTIVE_LOW_REVEAL_RATE")
	setFloat64(&cfg.Adaptive.Smoothing, "AUCTION_ADAPTIVE_SMOOTHING")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "AUCTION_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setInt(&cfg.Postgres.PoolMaxConns, "AUCTION_POSTGRES_POOL_MAX_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "AUCTION_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.URL, "AUCTION_REDIS_URL")
	setStr(&cfg.Redis.URL, "REDIS_URL") // compatibility alias
	setDuration(&cfg.Redis.CacheTTL, "AUCTION_REDIS_CACHE_TTL")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "AUCTION_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "AUCTION_S3_REGION")
	setStr(&cfg.S3.Bucket, "AUCTION_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "AUCTION_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "AUCTION_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "AUCTION_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "AUCTION_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "AUCTION_S3_FORCE_PATH_STYLE")

	// ── Cross-chain ──
	setBool(&cfg.CrossChain.Enabled, "AUCTION_CROSSCHAIN_ENABLED")
	setStr(&cfg.CrossChain.ChainName, "AUCTION_CROSSCHAIN_CHAIN_NAME")
	setStr(&cfg.CrossChain.SenderAddress, "AUCTION_CROSSCHAIN_SENDER_ADDRESS")
	setStr(&cfg.CrossChain.InboundChannel, "AUCTION_CROSSCHAIN_INBOUND_CHANNEL")
	setStr(&cfg.CrossChain.ResultChannel, "AUCTION_CROSSCHAIN_RESULT_CHANNEL")
	setStringMap(&cfg.CrossChain.TrustedSenders, "AUCTION_CROSSCHAIN_TRUSTED_SENDERS")
	setDuration(&cfg.CrossChain.ProcessedTTL, "AUCTION_CROSSCHAIN_PROCESSED_TTL")

	// ── Keeper ──
	setBool(&cfg.Keeper.Enabled, "AUCTION_KEEPER_ENABLED")
	setDuration(&cfg.Keeper.Interval, "AUCTION_KEEPER_INTERVAL")
	setStr(&cfg.Keeper.Address, "AUCTION_KEEPER_ADDRESS")
	setBool(&cfg.Keeper.SlashUnrevealed, "AUCTION_KEEPER_SLASH_UNREVEALED")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "AUCTION_LOG_LEVEL")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
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
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		*dst = cleaned
	}
}

// setStringMap parses "k1=v1,k2=v2".
func setStringMap(dst *map[string]string, key string) {
	if v := os.Getenv(key); v != "" {
		m := make(map[string]string)
		for _, pair := range strings.Split(v, ",") {
			k, val, ok := strings.Cut(strings.TrimSpace(pair), "=")
			if ok && k != "" {
				m[k] = val
			}
		}
		*dst = m
	}
}
