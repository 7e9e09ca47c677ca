// Package config defines the runtime configuration for the auction engine
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/atmx/auction-engine/internal/auction"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by AUCTION_* environment variables.
type Config struct {
	Server     ServerConfig     `toml:"server"`
	Auction    AuctionConfig    `toml:"auction"`
	Adaptive   AdaptiveConfig   `toml:"adaptive"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	CrossChain CrossChainConfig `toml:"crosschain"`
	Keeper     KeeperConfig     `toml:"keeper"`
	LogLevel   string           `toml:"log_level"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port           int      `toml:"port"`
	CORSOrigins    []string `toml:"cors_origins"`
	RequestTimeout duration `toml:"request_timeout"`
}

// AuctionConfig holds the engine parameters. Amounts are integer base-unit
// strings and addresses are hex.
type AuctionConfig struct {
	MinDeposit            string   `toml:"min_deposit"`
	CommitDuration        duration `toml:"commit_duration"`
	RevealDuration        duration `toml:"reveal_duration"`
	MaxOrdersPerBatch     int      `toml:"max_orders_per_batch"`
	SlashTreasuryBps      int64    `toml:"slash_treasury_bps"`
	EarlySettleMinReveals int      `toml:"early_settle_min_reveals"`
	Treasury              string   `toml:"treasury"`
	Owner                 string   `toml:"owner"`
	Settlers              []string `toml:"settlers"`
	AllowList             []string `toml:"allow_list"` // empty = anyone may commit
}

// AdaptiveConfig bounds the congestion-driven phase timing.
type AdaptiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	TargetOrders  int      `toml:"target_orders"`
	LowRevealRate float64  `toml:"low_reveal_rate"`
	Smoothing     float64  `toml:"smoothing"`
	MinCommit     duration `toml:"min_commit"`
	MaxCommit     duration `toml:"max_commit"`
	MinReveal     duration `toml:"min_reveal"`
	MaxReveal     duration `toml:"max_reveal"`
}

// PostgresConfig holds the history database connection. An empty DSN selects
// the in-memory store.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. An empty URL disables the
// read-through cache, shared replay protection and the cross-chain bus.
type RedisConfig struct {
	URL      string   `toml:"url"`
	CacheTTL duration `toml:"cache_ttl"`
}

// S3Config holds the settled-batch archive destination. An empty bucket
// disables archiving.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// CrossChainConfig configures the inbound message receiver and the result
// relay. TrustedSenders maps a source chain name to its sender contract.
type CrossChainConfig struct {
	Enabled        bool              `toml:"enabled"`
	ChainName      string            `toml:"chain_name"`
	SenderAddress  string            `toml:"sender_address"`
	InboundChannel string            `toml:"inbound_channel"`
	ResultChannel  string            `toml:"result_channel"`
	TrustedSenders map[string]string `toml:"trusted_senders"`
	ProcessedTTL   duration          `toml:"processed_ttl"`
}

// KeeperConfig controls the in-process keeper.
type KeeperConfig struct {
	Enabled         bool     `toml:"enabled"`
	Interval        duration `toml:"interval"`
	Address         string   `toml:"address"`
	SlashUnrevealed bool     `toml:"slash_unrevealed"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "8s", "250ms").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with the engine defaults.
func Defaults() Config {
	p := auction.DefaultParams()
	return Config{
		Server: ServerConfig{
			Port:           8080,
			CORSOrigins:    []string{"*"},
			RequestTimeout: duration{30 * time.Second},
		},
		Auction: AuctionConfig{
			MinDeposit:            p.MinDeposit.String(),
			CommitDuration:        duration{p.CommitDuration},
			RevealDuration:        duration{p.RevealDuration},
			SlashTreasuryBps:      p.SlashTreasuryBps,
			EarlySettleMinReveals: p.EarlySettleMinReveals,
		},
		Adaptive: AdaptiveConfig{
			TargetOrders:  p.Adaptive.TargetOrders,
			LowRevealRate: p.Adaptive.LowRevealRate,
			Smoothing:     p.Adaptive.Smoothing,
			MinCommit:     duration{p.Adaptive.MinCommit},
			MaxCommit:     duration{p.Adaptive.MaxCommit},
			MinReveal:     duration{p.Adaptive.MinReveal},
			MaxReveal:     duration{p.Adaptive.MaxReveal},
		},
		Postgres: PostgresConfig{
			PoolMaxConns:  10,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			CacheTTL: duration{30 * time.Second},
		},
		S3: S3Config{
			Region: "us-east-1",
			Prefix: "settled",
			UseSSL: true,
		},
		CrossChain: CrossChainConfig{
			ChainName:      "home",
			InboundChannel: "auction:xchain:inbound",
			ResultChannel:  "auction:xchain:results",
			TrustedSenders: map[string]string{},
		},
		Keeper: KeeperConfig{
			Enabled:  true,
			Interval: duration{250 * time.Millisecond},
		},
		LogLevel: "info",
	}
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	if _, err := c.AuctionParams(); err != nil {
		errs = append(errs, err.Error())
	}
	for _, a := range c.Auction.AllowList {
		if !common.IsHexAddress(a) {
			errs = append(errs, fmt.Sprintf("auction: allow_list entry %q is not an address", a))
		}
	}
	if c.Auction.Owner != "" && !common.IsHexAddress(c.Auction.Owner) {
		errs = append(errs, fmt.Sprintf("auction: owner %q is not an address", c.Auction.Owner))
	}

	if c.Postgres.DSN != "" && c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}

	if c.CrossChain.Enabled {
		if c.Redis.URL == "" {
			errs = append(errs, "crosschain: redis.url is required")
		}
		if len(c.CrossChain.TrustedSenders) == 0 {
			errs = append(errs, "crosschain: at least one trusted sender is required")
		}
		for chain, sender := range c.CrossChain.TrustedSenders {
			if !common.IsHexAddress(sender) {
				errs = append(errs, fmt.Sprintf("crosschain: trusted sender for %q is not an address", chain))
			}
		}
	}

	if c.Keeper.Enabled {
		if c.Keeper.Interval.Duration <= 0 {
			errs = append(errs, "keeper: interval must be positive")
		}
		if c.Keeper.Address != "" && !common.IsHexAddress(c.Keeper.Address) {
			errs = append(errs, fmt.Sprintf("keeper: address %q is not an address", c.Keeper.Address))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// AuctionParams converts the auction and adaptive sections into engine
// parameters.
func (c *Config) AuctionParams() (auction.Params, error) {
	var p auction.Params
	minDeposit, err := decimal.NewFromString(c.Auction.MinDeposit)
	if err != nil {
		return p, fmt.Errorf("auction: min_deposit %q: %w", c.Auction.MinDeposit, err)
	}
	if c.Auction.Treasury != "" && !common.IsHexAddress(c.Auction.Treasury) {
		return p, fmt.Errorf("auction: treasury %q is not an address", c.Auction.Treasury)
	}
	settlers := make([]common.Address, 0, len(c.Auction.Settlers))
	for _, s := range c.Auction.Settlers {
		if !common.IsHexAddress(s) {
			return p, fmt.Errorf("auction: settler %q is not an address", s)
		}
		settlers = append(settlers, common.HexToAddress(s))
	}

	p = auction.Params{
		MinDeposit:            minDeposit,
		CommitDuration:        c.Auction.CommitDuration.Duration,
		RevealDuration:        c.Auction.RevealDuration.Duration,
		MaxOrdersPerBatch:     c.Auction.MaxOrdersPerBatch,
		SlashTreasuryBps:      c.Auction.SlashTreasuryBps,
		EarlySettleMinReveals: c.Auction.EarlySettleMinReveals,
		Treasury:              common.HexToAddress(c.Auction.Treasury),
		Settlers:              settlers,
		Adaptive: auction.AdaptiveParams{
			Enabled:       c.Adaptive.Enabled,
			TargetOrders:  c.Adaptive.TargetOrders,
			LowRevealRate: c.Adaptive.LowRevealRate,
			Smoothing:     c.Adaptive.Smoothing,
			MinCommit:     c.Adaptive.MinCommit.Duration,
			MaxCommit:     c.Adaptive.MaxCommit.Duration,
			MinReveal:     c.Adaptive.MinReveal.Duration,
			MaxReveal:     c.Adaptive.MaxReveal.Duration,
		},
	}
	return p, p.Validate()
}
