package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	s3blob "github.com/alanyoungcy/updownbot/internal/blob/s3"
	"github.com/alanyoungcy/updownbot/internal/cache/redis"
	"github.com/alanyoungcy/updownbot/internal/config"
	"github.com/alanyoungcy/updownbot/internal/crypto"
	"github.com/alanyoungcy/updownbot/internal/detector"
	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/feed"
	"github.com/alanyoungcy/updownbot/internal/monitor"
	"github.com/alanyoungcy/updownbot/internal/notify"
	"github.com/alanyoungcy/updownbot/internal/platform/polymarket"
	"github.com/alanyoungcy/updownbot/internal/server"
	"github.com/alanyoungcy/updownbot/internal/server/handler"
	"github.com/alanyoungcy/updownbot/internal/server/ws"
	"github.com/alanyoungcy/updownbot/internal/service"
	"github.com/alanyoungcy/updownbot/internal/store/postgres"
	"github.com/alanyoungcy/updownbot/internal/trader"
)

// Dependencies bundles everything the application modes run. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Period domain.PeriodLength

	// Exchange
	Clob     *polymarket.ClobClient
	Exchange *polymarket.Exchange
	Feed     *feed.BookFeed

	// Core
	Monitor  *monitor.Monitor
	Detector detector.Detector
	Trader   *trader.Trader
	Rollover *Rollover

	// Persistence and caches; nil when disabled.
	Positions   domain.PositionJournal
	Events      domain.EventStore
	QuoteCache  domain.QuoteMirror
	LockManager domain.LockManager
	EventBus    domain.EventBus
	Archiver    domain.PeriodArchiver

	// Services
	TradeLog *service.TradeLog
	History  *service.PriceHistory
	Archive  *service.ArchiveService
	Notifier *notify.Notifier

	// Status API; nil when disabled.
	Hub    *ws.Hub
	Server *server.Server
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(format string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf(format, err)
	}

	period, err := cfg.PeriodLength()
	if err != nil {
		return nil, nil, fmt.Errorf("wire: %w", err)
	}
	trading := strings.ToLower(cfg.Mode) == "trade"
	timeout := cfg.Polymarket.RequestTimeout.Duration

	deps := &Dependencies{Period: period}

	// --- Wallet (trade mode only) ---
	var signer *crypto.Signer
	if trading {
		key, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Wallet.PrivateKey,
			EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      cfg.Wallet.KeyPassword,
		})
		if err != nil {
			return fail("wire: wallet: %w", err)
		}
		if signer, err = crypto.NewSigner(key, cfg.Polymarket.ChainID); err != nil {
			return fail("wire: signer: %w", err)
		}
	}

	// --- Exchange clients ---
	var funder common.Address
	if cfg.Wallet.ProxyAddress != "" {
		funder = common.HexToAddress(cfg.Wallet.ProxyAddress)
	}
	deps.Clob = polymarket.NewClobClient(polymarket.ClobConfig{
		BaseURL:       cfg.Polymarket.ClobHost,
		Timeout:       timeout,
		SignatureType: cfg.Polymarket.SignatureType,
		Funder:        funder,
	}, signer)
	gamma := polymarket.NewGammaClient(cfg.Polymarket.GammaHost, timeout)

	var relayer *polymarket.RelayerClient
	builder := crypto.APICredentials{
		Key:        cfg.Builder.ApiKey,
		Secret:     cfg.Builder.ApiSecret,
		Passphrase: cfg.Builder.ApiPassphrase,
	}
	if trading && cfg.Polymarket.RelayerHost != "" && !builder.Empty() {
		relayer = polymarket.NewRelayerClient(polymarket.RelayerConfig{
			BaseURL:        cfg.Polymarket.RelayerHost,
			Timeout:        timeout,
			ConfirmTimeout: cfg.Polymarket.RelayerConfirmTimeout.Duration,
			From:           deps.Clob.Funder(),
			Builder:        builder,
		}, logger)
	} else if trading {
		logger.Warn("relayer not configured: redemption, merges and approvals are unavailable")
	}

	var caller polymarket.ContractCaller
	if trading && cfg.Polymarket.RPCURL != "" {
		rpc, err := ethclient.DialContext(ctx, cfg.Polymarket.RPCURL)
		if err != nil {
			return fail("wire: rpc: %w", err)
		}
		closers = append(closers, rpc.Close)
		caller = rpc
	}
	deps.Exchange = polymarket.NewExchange(gamma, deps.Clob, relayer, caller)

	var stream feed.QuoteStream
	if cfg.Polymarket.UseWebsocket && cfg.Polymarket.WsHost != "" {
		stream = polymarket.NewWSClient(cfg.Polymarket.WsHost, logger)
	}
	deps.Feed = feed.NewBookFeed(stream, deps.Exchange, cfg.Polymarket.FeedMaxAge.Duration, logger)

	// --- PostgreSQL ---
	if cfg.Supabase.Enabled {
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
			return fail("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Supabase.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail("wire: postgres migrations: %w", err)
			}
		}
		pool := pgClient.Pool()
		deps.Positions = postgres.NewPositionStore(pool)
		deps.Events = postgres.NewEventStore(pool)
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.QuoteCache = redis.NewQuoteCache(redisClient, cfg.Redis.QuoteTTL.Duration)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.EventBus = redis.NewEventBus(redisClient, cfg.Redis.StreamMaxLen)
	}

	// --- S3 blob storage ---
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
			return fail("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), s3blob.NewReader(s3Client))
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Services ---
	history, err := service.NewPriceHistory(cfg.Trading.HistoryDir, logger)
	if err != nil {
		return fail("wire: %w", err)
	}
	closers = append(closers, func() { _ = history.Close() })
	deps.History = history

	if cfg.Server.Enabled {
		deps.Hub = ws.NewHub(logger, ws.Config{Mode: strings.ToLower(cfg.Mode), Period: period.Label()})
	}

	logOpts := []service.TradeLogOption{service.WithNotifier(deps.Notifier)}
	if deps.EventBus != nil {
		logOpts = append(logOpts, service.WithEventBus(deps.EventBus))
	}
	if deps.Events != nil {
		logOpts = append(logOpts, service.WithEventStore(deps.Events))
	}
	if deps.Hub != nil {
		logOpts = append(logOpts, service.WithBroadcaster(deps.Hub))
	}
	tradeLog, err := service.NewTradeLog(cfg.Trading.EventLogPath, logger, logOpts...)
	if err != nil {
		return fail("wire: %w", err)
	}
	closers = append(closers, func() { _ = tradeLog.Close() })
	deps.TradeLog = tradeLog

	if deps.Archiver != nil {
		deps.Archive = service.NewArchiveService(deps.Archiver, history, logger)
	}

	// --- Core ---
	monOpts := []monitor.Option{monitor.WithHistory(history)}
	if deps.QuoteCache != nil {
		monOpts = append(monOpts, monitor.WithQuoteMirror(deps.QuoteCache))
	}
	deps.Monitor = monitor.New(monitor.Config{
		Period: period,
		Assets: cfg.EnabledAssets(),
	}, deps.Feed, deps.Exchange, logger, monOpts...)

	deps.Detector = newDetector(cfg, logger)

	if trading {
		deps.Trader = newTrader(cfg, period, deps, logger)
	}

	discoverer := NewDiscoverer(deps.Exchange, period, cfg.EnabledAssets(), cfg.Markets.DiscoveryLookback, logger)
	rollOpts := []RolloverOption{
		WithTracker(deps.Feed),
		WithEventRecorder(deps.TradeLog),
		WithRetryInterval(cfg.Trading.RolloverRetryInterval.Duration),
	}
	if trading {
		rollOpts = append(rollOpts, WithDetector(deps.Detector), WithTrader(deps.Trader))
	}
	if deps.Archive != nil {
		rollOpts = append(rollOpts, WithArchive(deps.Archive))
	}
	deps.Rollover = NewRollover(period, discoverer, deps.Monitor, logger, rollOpts...)

	if cfg.Server.Enabled {
		deps.Server = newServer(cfg, deps, logger)
	}

	return deps, cleanup, nil
}

func newServer(cfg *config.Config, deps *Dependencies, logger *slog.Logger) *server.Server {
	var (
		summary handler.SummarySource
		live    handler.PositionLister
	)
	if deps.Trader != nil {
		summary = deps.Trader
		live = deps.Trader
	}
	return server.NewServer(server.Config{
		Port:        cfg.Server.Port,
		CORSOrigins: cfg.Server.CORSOrigins,
		APIKey:      cfg.Server.APIKey,
	}, server.Handlers{
		Health:    handler.NewHealthHandler(),
		Status:    handler.NewStatusHandler(strings.ToLower(cfg.Mode), deps.Period, deps.Monitor, summary, deps.Feed),
		Positions: handler.NewPositionHandler(live, deps.Positions, logger),
		Events:    handler.NewEventHandler(deps.Events, logger),
	}, deps.Hub, logger)
}

func newDetector(cfg *config.Config, logger *slog.Logger) detector.Detector {
	t := cfg.Trading
	if strings.ToLower(t.Variant) == "market_start" {
		return detector.NewMarketStart(detector.MarketStartConfig{
			LimitPrice:     t.LimitPrice,
			StartWindow:    t.StartWindow.Duration,
			UseMarketOrder: t.UseMarketOrder,
		}, logger)
	}
	return detector.NewReactive(detector.ReactiveConfig{
		TriggerPrice:     t.TriggerPrice,
		MaxBuyPrice:      t.MaxBuyPrice,
		MinElapsed:       t.MinElapsed.Duration,
		MinTimeRemaining: t.MinTimeRemaining.Duration,
	}, logger)
}

func newTrader(cfg *config.Config, period domain.PeriodLength, deps *Dependencies, logger *slog.Logger) *trader.Trader {
	t := cfg.Trading
	var opts []trader.Option
	if deps.Positions != nil {
		opts = append(opts, trader.WithJournal(deps.Positions))
	}
	if deps.LockManager != nil {
		opts = append(opts, trader.WithLocks(deps.LockManager))
	}
	if obs, ok := deps.Detector.(trader.CycleObserver); ok {
		opts = append(opts, trader.WithCycleObserver(obs))
	}
	return trader.New(trader.Config{
		Period:                period,
		FixedTradeAmount:      t.FixedTradeAmount,
		MinTimeRemaining:      t.MinTimeRemaining.Duration,
		SellPrice:             t.SellPrice,
		StopLossPrice:         t.StopLossPrice,
		HoldToClosure:         t.HoldToClosure,
		LimitShares:           t.LimitShares,
		FillTimeout:           t.FillTimeout.Duration,
		MaxRedemptionAttempts: t.MaxRedemptionAttempts,
		MergeCompleteSets:     t.MergeCompleteSets,
		NegRisk:               cfg.Polymarket.NegRisk,
	}, deps.Exchange, deps.TradeLog, logger, opts...)
}
