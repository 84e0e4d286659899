// Package config defines the top-level configuration for the up/down bot
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by POLYBOT_* environment variables.
type Config struct {
	Wallet     WalletConfig     `toml:"wallet"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Builder    BuilderConfig    `toml:"builder"`
	Markets    MarketsConfig    `toml:"markets"`
	Trading    TradingConfig    `toml:"trading"`
	Supabase   SupabaseConfig   `toml:"supabase"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Notify     NotifyConfig     `toml:"notify"`
	Server     ServerConfig     `toml:"server"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// WalletConfig holds Ethereum wallet credentials.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
	// ProxyAddress is the funder (proxy or Safe) holding the positions. Empty
	// means the EOA derived from the private key.
	ProxyAddress string `toml:"proxy_address"`
}

// PolymarketConfig holds Polymarket API endpoints and chain parameters.
type PolymarketConfig struct {
	ClobHost              string   `toml:"clob_host"`
	GammaHost             string   `toml:"gamma_host"`
	WsHost                string   `toml:"ws_host"`
	RelayerHost           string   `toml:"relayer_host"`
	RPCURL                string   `toml:"rpc_url"`
	ChainID               int      `toml:"chain_id"`
	SignatureType         int      `toml:"signature_type"`
	NegRisk               bool     `toml:"neg_risk"`
	RequestTimeout        duration `toml:"request_timeout"`
	RelayerConfirmTimeout duration `toml:"relayer_confirm_timeout"`
	UseWebsocket          bool     `toml:"use_websocket"`
	FeedMaxAge            duration `toml:"feed_max_age"`
	AutoApprove           bool     `toml:"auto_approve"`
}

// BuilderConfig holds Polymarket builder-program API credentials used to sign
// relayer submissions.
type BuilderConfig struct {
	ApiKey        string `toml:"api_key"`
	ApiSecret     string `toml:"api_secret"`
	ApiPassphrase string `toml:"api_passphrase"`
}

// MarketsConfig selects which Up/Down markets are followed.
type MarketsConfig struct {
	Period       string `toml:"period"`
	EnableETH    bool   `toml:"enable_eth"`
	EnableSolana bool   `toml:"enable_solana"`
	EnableXRP    bool   `toml:"enable_xrp"`
	// DiscoveryLookback is how many earlier periods are tried when the
	// current period's market is not listed yet.
	DiscoveryLookback int `toml:"discovery_lookback"`
}

// TradingConfig holds detector and trader parameters.
type TradingConfig struct {
	// Variant is "reactive" (price-trigger) or "market_start" (fixed limit
	// orders at the start of each period).
	Variant          string   `toml:"variant"`
	CheckInterval    duration `toml:"check_interval"`
	FixedTradeAmount float64  `toml:"fixed_trade_amount"`
	TriggerPrice     float64  `toml:"trigger_price"`
	MaxBuyPrice      float64  `toml:"max_buy_price"`
	MinElapsed       duration `toml:"min_elapsed"`
	MinTimeRemaining duration `toml:"min_time_remaining"`
	SellPrice        float64  `toml:"sell_price"`
	// StopLossPrice sells the position when its bid falls to this level. Zero
	// disables the stop loss.
	StopLossPrice  float64 `toml:"stop_loss_price"`
	HoldToClosure  bool    `toml:"hold_to_closure"`
	LimitPrice     float64 `toml:"limit_price"`
	LimitShares    float64 `toml:"limit_shares"`
	UseMarketOrder bool    `toml:"use_market_order"`

	StartWindow                duration `toml:"start_window"`
	PendingCheckInterval       duration `toml:"pending_check_interval"`
	MarketClosureCheckInterval duration `toml:"market_closure_check_interval"`
	SummaryInterval            duration `toml:"summary_interval"`
	FillTimeout                duration `toml:"fill_timeout"`
	RolloverRetryInterval      duration `toml:"rollover_retry_interval"`
	MaxRedemptionAttempts      int      `toml:"max_redemption_attempts"`
	MergeCompleteSets          bool     `toml:"merge_complete_sets"`

	EventLogPath string `toml:"event_log_path"`
	HistoryDir   string `toml:"history_dir"`
}

// SupabaseConfig holds PostgreSQL / Supabase connection parameters.
type SupabaseConfig struct {
	Enabled       bool   `toml:"enabled"`
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

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled      bool     `toml:"enabled"`
	Addr         string   `toml:"addr"`
	Password     string   `toml:"password"`
	DB           int      `toml:"db"`
	PoolSize     int      `toml:"pool_size"`
	MaxRetries   int      `toml:"max_retries"`
	TLSEnabled   bool     `toml:"tls_enabled"`
	QuoteTTL     duration `toml:"quote_ttl"`
	StreamMaxLen int      `toml:"stream_max_len"`
}

// S3Config holds S3-compatible object storage parameters.
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

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// ServerConfig holds the read-only status API settings.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"` // if empty, authentication is disabled
	CORSOrigins []string `toml:"cors_origins"`
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

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			ClobHost:              "https://clob.polymarket.com",
			GammaHost:             "https://gamma-api.polymarket.com",
			WsHost:                "wss://ws-subscriptions-clob.polymarket.com",
			RelayerHost:           "https://relayer-v2.polymarket.com",
			RPCURL:                "https://polygon-rpc.com",
			ChainID:               137,
			SignatureType:         2,
			RequestTimeout:        duration{15 * time.Second},
			RelayerConfirmTimeout: duration{120 * time.Second},
			FeedMaxAge:            duration{3 * time.Second},
		},
		Markets: MarketsConfig{
			Period:            "15m",
			EnableETH:         true,
			EnableSolana:      false,
			EnableXRP:         false,
			DiscoveryLookback: 3,
		},
		Trading: TradingConfig{
			Variant:                    "reactive",
			CheckInterval:              duration{time.Second},
			FixedTradeAmount:           1.0,
			TriggerPrice:               0.90,
			MaxBuyPrice:                0.95,
			MinElapsed:                 duration{10 * time.Minute},
			MinTimeRemaining:           duration{30 * time.Second},
			SellPrice:                  0.99,
			StopLossPrice:              0,
			LimitPrice:                 0.45,
			LimitShares:                5,
			StartWindow:                duration{2 * time.Second},
			PendingCheckInterval:       duration{500 * time.Millisecond},
			MarketClosureCheckInterval: duration{10 * time.Second},
			SummaryInterval:            duration{30 * time.Second},
			FillTimeout:                duration{60 * time.Second},
			RolloverRetryInterval:      duration{5 * time.Second},
			MaxRedemptionAttempts:      20,
			EventLogPath:               "history.log",
			HistoryDir:                 "history",
		},
		Supabase: SupabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  5,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			PoolSize:     10,
			MaxRetries:   3,
			QuoteTTL:     duration{time.Minute},
			StreamMaxLen: 10000,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "updownbot-archive",
			ForcePathStyle: true,
		},
		Notify: NotifyConfig{
			Events: []string{
				string(domain.EventBuyFilled),
				string(domain.EventSellFilled),
				string(domain.EventStopLoss),
				string(domain.EventRedemptionSuccess),
				string(domain.EventRedemptionAbandoned),
			},
		},
		Server: ServerConfig{
			Port: 8080,
		},
		Mode:     "trade",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade":   true,
	"monitor": true,
}

// validVariants enumerates the accepted values for TradingConfig.Variant.
var validVariants = map[string]bool{
	"reactive":     true,
	"market_start": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// PeriodLength parses Markets.Period.
func (c *Config) PeriodLength() (domain.PeriodLength, error) {
	return domain.ParsePeriodLength(c.Markets.Period)
}

// EnabledAssets returns BTC plus every optional asset switched on.
func (c *Config) EnabledAssets() []domain.Asset {
	out := []domain.Asset{domain.AssetBTC}
	if c.Markets.EnableETH {
		out = append(out, domain.AssetETH)
	}
	if c.Markets.EnableSolana {
		out = append(out, domain.AssetSOL)
	}
	if c.Markets.EnableXRP {
		out = append(out, domain.AssetXRP)
	}
	return out
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, monitor)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Wallet: trading needs a signing key.
	if mode == "trade" {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for mode trade")
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
	}

	// Polymarket
	if c.Polymarket.ClobHost == "" {
		errs = append(errs, "polymarket: clob_host must not be empty")
	}
	if c.Polymarket.GammaHost == "" {
		errs = append(errs, "polymarket: gamma_host must not be empty")
	}
	if c.Polymarket.ChainID <= 0 {
		errs = append(errs, "polymarket: chain_id must be positive")
	}
	if c.Polymarket.SignatureType < 0 || c.Polymarket.SignatureType > 2 {
		errs = append(errs, fmt.Sprintf("polymarket: signature_type must be 0 (EOA), 1 (proxy) or 2 (Safe), got %d", c.Polymarket.SignatureType))
	}
	if c.Polymarket.SignatureType != 0 && mode == "trade" && c.Wallet.ProxyAddress == "" {
		errs = append(errs, "wallet: proxy_address is required when signature_type is 1 or 2")
	}

	// Builder: all three fields are set together or left empty.
	bk := c.Builder.ApiKey != ""
	bs := c.Builder.ApiSecret != ""
	bp := c.Builder.ApiPassphrase != ""
	if bk || bs || bp {
		if !(bk && bs && bp) {
			errs = append(errs, "builder: api_key, api_secret, and api_passphrase must all be set together")
		}
	}

	// Markets
	if _, err := c.PeriodLength(); err != nil {
		errs = append(errs, fmt.Sprintf("markets: period must be 15m or 1h, got %q", c.Markets.Period))
	}
	if c.Markets.DiscoveryLookback < 0 {
		errs = append(errs, "markets: discovery_lookback must be >= 0")
	}

	// Trading
	t := c.Trading
	if !validVariants[strings.ToLower(t.Variant)] {
		errs = append(errs, fmt.Sprintf("trading: unknown variant %q (valid: reactive, market_start)", t.Variant))
	}
	if t.CheckInterval.Duration <= 0 {
		errs = append(errs, "trading: check_interval must be > 0")
	}
	if t.FixedTradeAmount <= 0 {
		errs = append(errs, "trading: fixed_trade_amount must be > 0")
	}
	if !inUnit(t.TriggerPrice) || !inUnit(t.MaxBuyPrice) || !inUnit(t.SellPrice) {
		errs = append(errs, "trading: trigger_price, max_buy_price and sell_price must be within (0, 1]")
	}
	if t.TriggerPrice > t.MaxBuyPrice {
		errs = append(errs, "trading: trigger_price must not exceed max_buy_price")
	}
	if t.StopLossPrice < 0 || t.StopLossPrice >= 1 {
		errs = append(errs, "trading: stop_loss_price must be within [0, 1)")
	}
	if strings.ToLower(t.Variant) == "market_start" {
		if !inUnit(t.LimitPrice) {
			errs = append(errs, "trading: limit_price must be within (0, 1]")
		}
		if t.LimitShares <= 0 {
			errs = append(errs, "trading: limit_shares must be > 0")
		}
	}
	if t.MinTimeRemaining.Duration < 0 || t.MinElapsed.Duration < 0 {
		errs = append(errs, "trading: min_elapsed and min_time_remaining must be >= 0")
	}
	if t.PendingCheckInterval.Duration <= 0 || t.MarketClosureCheckInterval.Duration <= 0 {
		errs = append(errs, "trading: pending_check_interval and market_closure_check_interval must be > 0")
	}
	if t.MaxRedemptionAttempts < 1 {
		errs = append(errs, "trading: max_redemption_attempts must be >= 1")
	}

	// Supabase
	if c.Supabase.Enabled {
		if strings.TrimSpace(c.Supabase.DSN) == "" {
			if c.Supabase.Host == "" {
				errs = append(errs, "supabase: host must not be empty (or set supabase.dsn)")
			}
			if c.Supabase.Port <= 0 || c.Supabase.Port > 65535 {
				errs = append(errs, fmt.Sprintf("supabase: port must be 1-65535, got %d", c.Supabase.Port))
			}
			if c.Supabase.Database == "" {
				errs = append(errs, "supabase: database must not be empty")
			}
		}
		if c.Supabase.PoolMaxConns < 1 {
			errs = append(errs, "supabase: pool_max_conns must be >= 1")
		}
		if c.Supabase.PoolMinConns > c.Supabase.PoolMaxConns {
			errs = append(errs, "supabase: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Server
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func inUnit(p float64) bool { return p > 0 && p <= 1 }
