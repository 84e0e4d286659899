package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/scheduler"
)

// TradeMode derives API credentials, checks approvals, discovers the first
// markets and reconciles restored positions, then runs the monitor,
// detector, trader and rollover loops until ctx is cancelled.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode",
		slog.String("variant", a.cfg.Trading.Variant),
		slog.String("period", deps.Period.Label()),
		slog.String("funder", deps.Clob.Funder().Hex()),
	)

	if _, err := deps.Clob.DeriveAPIKey(ctx); err != nil {
		return fmt.Errorf("trade mode: %w", err)
	}
	a.checkApprovals(ctx, deps.Exchange)

	if err := deps.Rollover.Start(ctx); err != nil {
		return fmt.Errorf("trade mode: initial discovery: %w", err)
	}
	n, err := deps.Trader.SyncTradesWithPortfolio(ctx)
	if err != nil {
		a.logger.WarnContext(ctx, "portfolio sync incomplete", slog.String("error", err.Error()))
	}
	if n > 0 {
		a.logger.InfoContext(ctx, "restored positions", slog.Int("count", n))
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return deps.TradeLog.Run(ctx) })
	g.Go(func() error { return deps.Feed.Run(ctx) })
	g.Go(func() error { return deps.Rollover.Run(ctx) })
	a.startServer(ctx, g, deps)

	// Snapshots flow monitor -> detector -> trader on one goroutine.
	g.Go(func() error {
		return deps.Monitor.Subscribe(ctx, a.cfg.Trading.CheckInterval.Duration, func(ctx context.Context, snap domain.Snapshot) {
			if opps := deps.Detector.Detect(snap); len(opps) > 0 {
				deps.Trader.Handle(ctx, opps)
			}
		})
	})

	g.Go(func() error {
		return scheduler.Run(ctx, a.logger,
			scheduler.Task{
				Name:     "pending_trades",
				Interval: a.cfg.Trading.PendingCheckInterval.Duration,
				Run:      deps.Trader.CheckPendingTrades,
			},
			scheduler.Task{
				Name:     "market_closure",
				Interval: a.cfg.Trading.MarketClosureCheckInterval.Duration,
				Run:      deps.Trader.CheckMarketClosure,
			},
			scheduler.Task{
				Name:     "trade_summary",
				Interval: a.cfg.Trading.SummaryInterval.Duration,
				Run: func(ctx context.Context) error {
					deps.Trader.PrintTradeSummary(ctx)
					return nil
				},
			},
		)
	})

	return g.Wait()
}

// MonitorMode only follows prices: markets are discovered and rolled over,
// every poll lands in the price history, and no orders are placed.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode",
		slog.String("period", deps.Period.Label()),
	)

	if err := deps.Rollover.Start(ctx); err != nil {
		return fmt.Errorf("monitor mode: initial discovery: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return deps.TradeLog.Run(ctx) })
	g.Go(func() error { return deps.Feed.Run(ctx) })
	g.Go(func() error { return deps.Rollover.Run(ctx) })
	a.startServer(ctx, g, deps)
	g.Go(func() error {
		return deps.Monitor.Subscribe(ctx, a.cfg.Trading.CheckInterval.Duration, func(ctx context.Context, snap domain.Snapshot) {
			a.logger.DebugContext(ctx, "snapshot",
				slog.Int64("period", snap.PeriodTimestamp),
				slog.Int64("remaining_s", snap.RemainingSeconds),
			)
		})
	})
	g.Go(func() error {
		return scheduler.Every(ctx, scheduler.Task{
			Name:     "feed_stats",
			Interval: 5 * time.Minute,
			Run: func(ctx context.Context) error {
				streamed, fetched := deps.Feed.Stats()
				a.logger.InfoContext(ctx, "book feed stats",
					slog.Int64("streamed", streamed),
					slog.Int64("fetched", fetched),
				)
				return nil
			},
		}, a.logger)
	})

	return g.Wait()
}

// startServer runs the status API and its event hub when enabled.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Server == nil {
		return
	}
	if deps.Hub != nil {
		g.Go(func() error { return deps.Hub.Run(ctx) })
	}
	g.Go(func() error { return deps.Server.Run(ctx) })
}

// checkApprovals logs the exchange approval state and, when auto_approve is
// set, grants the missing approvals. Failures are not fatal; sells may be
// rejected until approvals are in place.
func (a *App) checkApprovals(ctx context.Context, approvals domain.Approvals) {
	status, err := approvals.ApprovalStatus(ctx)
	if err != nil {
		a.logger.WarnContext(ctx, "approval check skipped", slog.String("error", err.Error()))
		return
	}
	missing := 0
	for _, s := range status {
		if !s.Approved {
			missing++
			a.logger.WarnContext(ctx, "operator not approved", slog.String("operator", s.Operator))
		}
	}
	if missing == 0 {
		a.logger.InfoContext(ctx, "token approvals in place")
		return
	}
	if !a.cfg.Polymarket.AutoApprove {
		return
	}
	if err := approvals.SetApprovals(ctx); err != nil {
		a.logger.WarnContext(ctx, "set approvals failed", slog.String("error", err.Error()))
		return
	}
	a.logger.InfoContext(ctx, "token approvals granted", slog.Int("count", missing))
}
