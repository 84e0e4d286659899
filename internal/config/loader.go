package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies POLYBOT_* environment variable overrides, and
// returns the final Config. A missing file is not an error: defaults plus
// environment are enough to run. The returned Config has NOT been validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return nil, fmt.Errorf("config: decode %s: %w", path, err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: stat %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known POLYBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "POLYBOT_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.PrivateKey, "POLYMARKET_PRIVATE_KEY") // compatibility alias
	setStr(&cfg.Wallet.EncryptedKeyPath, "POLYBOT_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "POLYBOT_WALLET_KEY_PASSWORD")
	setStr(&cfg.Wallet.ProxyAddress, "POLYBOT_WALLET_PROXY_ADDRESS")
	setStr(&cfg.Wallet.ProxyAddress, "POLYMARKET_PROXY_WALLET_ADDRESS") // compatibility alias

	// ── Polymarket ──
	setStr(&cfg.Polymarket.ClobHost, "POLYBOT_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.GammaHost, "POLYBOT_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.WsHost, "POLYBOT_POLYMARKET_WS_HOST")
	setStr(&cfg.Polymarket.RelayerHost, "POLYBOT_POLYMARKET_RELAYER_HOST")
	setStr(&cfg.Polymarket.RPCURL, "POLYBOT_POLYMARKET_RPC_URL")
	setInt(&cfg.Polymarket.ChainID, "POLYBOT_POLYMARKET_CHAIN_ID")
	setInt(&cfg.Polymarket.SignatureType, "POLYBOT_POLYMARKET_SIGNATURE_TYPE")
	setBool(&cfg.Polymarket.NegRisk, "POLYBOT_POLYMARKET_NEG_RISK")
	setBool(&cfg.Polymarket.UseWebsocket, "POLYBOT_POLYMARKET_USE_WEBSOCKET")
	setBool(&cfg.Polymarket.AutoApprove, "POLYBOT_POLYMARKET_AUTO_APPROVE")
	setDuration(&cfg.Polymarket.RequestTimeout, "POLYBOT_POLYMARKET_REQUEST_TIMEOUT")

	// ── Builder ──
	setStr(&cfg.Builder.ApiKey, "POLYBOT_BUILDER_API_KEY")
	setStr(&cfg.Builder.ApiSecret, "POLYBOT_BUILDER_API_SECRET")
	setStr(&cfg.Builder.ApiPassphrase, "POLYBOT_BUILDER_API_PASSPHRASE")

	// ── Markets ──
	setStr(&cfg.Markets.Period, "POLYBOT_MARKETS_PERIOD")
	setBool(&cfg.Markets.EnableETH, "POLYBOT_MARKETS_ENABLE_ETH")
	setBool(&cfg.Markets.EnableSolana, "POLYBOT_MARKETS_ENABLE_SOLANA")
	setBool(&cfg.Markets.EnableXRP, "POLYBOT_MARKETS_ENABLE_XRP")
	setInt(&cfg.Markets.DiscoveryLookback, "POLYBOT_MARKETS_DISCOVERY_LOOKBACK")

	// ── Trading ──
	setStr(&cfg.Trading.Variant, "POLYBOT_TRADING_VARIANT")
	setDuration(&cfg.Trading.CheckInterval, "POLYBOT_TRADING_CHECK_INTERVAL")
	setFloat64(&cfg.Trading.FixedTradeAmount, "POLYBOT_TRADING_FIXED_TRADE_AMOUNT")
	setFloat64(&cfg.Trading.TriggerPrice, "POLYBOT_TRADING_TRIGGER_PRICE")
	setFloat64(&cfg.Trading.MaxBuyPrice, "POLYBOT_TRADING_MAX_BUY_PRICE")
	setDuration(&cfg.Trading.MinElapsed, "POLYBOT_TRADING_MIN_ELAPSED")
	setDuration(&cfg.Trading.MinTimeRemaining, "POLYBOT_TRADING_MIN_TIME_REMAINING")
	setFloat64(&cfg.Trading.SellPrice, "POLYBOT_TRADING_SELL_PRICE")
	setFloat64(&cfg.Trading.StopLossPrice, "POLYBOT_TRADING_STOP_LOSS_PRICE")
	setBool(&cfg.Trading.HoldToClosure, "POLYBOT_TRADING_HOLD_TO_CLOSURE")
	setFloat64(&cfg.Trading.LimitPrice, "POLYBOT_TRADING_LIMIT_PRICE")
	setFloat64(&cfg.Trading.LimitShares, "POLYBOT_TRADING_LIMIT_SHARES")
	setBool(&cfg.Trading.UseMarketOrder, "POLYBOT_TRADING_USE_MARKET_ORDER")
	setDuration(&cfg.Trading.MarketClosureCheckInterval, "POLYBOT_TRADING_MARKET_CLOSURE_CHECK_INTERVAL")
	setInt(&cfg.Trading.MaxRedemptionAttempts, "POLYBOT_TRADING_MAX_REDEMPTION_ATTEMPTS")
	setBool(&cfg.Trading.MergeCompleteSets, "POLYBOT_TRADING_MERGE_COMPLETE_SETS")
	setStr(&cfg.Trading.EventLogPath, "POLYBOT_TRADING_EVENT_LOG_PATH")
	setStr(&cfg.Trading.HistoryDir, "POLYBOT_TRADING_HISTORY_DIR")

	// ── Supabase ──
	setBool(&cfg.Supabase.Enabled, "POLYBOT_SUPABASE_ENABLED")
	setStr(&cfg.Supabase.DSN, "POLYBOT_SUPABASE_DSN")
	setStr(&cfg.Supabase.DSN, "POLYBOT_SUPABASE_URL") // compatibility alias
	setStr(&cfg.Supabase.Host, "POLYBOT_SUPABASE_HOST")
	setInt(&cfg.Supabase.Port, "POLYBOT_SUPABASE_PORT")
	setStr(&cfg.Supabase.Database, "POLYBOT_SUPABASE_DATABASE")
	setStr(&cfg.Supabase.User, "POLYBOT_SUPABASE_USER")
	setStr(&cfg.Supabase.Password, "POLYBOT_SUPABASE_PASSWORD")
	setStr(&cfg.Supabase.SSLMode, "POLYBOT_SUPABASE_SSLMODE")
	setInt(&cfg.Supabase.PoolMaxConns, "POLYBOT_SUPABASE_POOL_MAX_CONNS")
	setInt(&cfg.Supabase.PoolMinConns, "POLYBOT_SUPABASE_POOL_MIN_CONNS")
	setBool(&cfg.Supabase.RunMigrations, "POLYBOT_SUPABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "POLYBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "POLYBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POLYBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "POLYBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "POLYBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "POLYBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "POLYBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "POLYBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "POLYBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "POLYBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "POLYBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "POLYBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "POLYBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "POLYBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "POLYBOT_S3_FORCE_PATH_STYLE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "POLYBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "POLYBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "POLYBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "POLYBOT_NOTIFY_EVENTS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "POLYBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "POLYBOT_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "POLYBOT_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "POLYBOT_SERVER_CORS_ORIGINS")

	// ── Top-level ──
	setStr(&cfg.Mode, "POLYBOT_MODE")
	setStr(&cfg.LogLevel, "POLYBOT_LOG_LEVEL")
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
