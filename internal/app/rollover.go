package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/scheduler"
)

// MarketHolder is the monitor side of a rollover.
type MarketHolder interface {
	Markets() domain.MarketSet
	ReplaceMarkets(set domain.MarketSet) error
}

// TokenTracker follows the token ids of the current markets.
type TokenTracker interface {
	Track(ctx context.Context, tokenIDs []string) error
}

// PeriodResetter clears per-period detector memory.
type PeriodResetter interface {
	ResetPeriod()
}

// PeriodTrader is the trader side of a rollover.
type PeriodTrader interface {
	ResetPeriod(previous int64)
	CleanupOldAbandonedTrades(current int64) []domain.Position
}

// PeriodArchive stores a finished period and the positions purged with it.
type PeriodArchive interface {
	Archive(ctx context.Context, finished int64, positions []domain.Position) error
}

// EventRecorder receives rollover events.
type EventRecorder interface {
	Record(ctx context.Context, ev domain.TradingEvent)
}

// Rollover moves every component to the next period at each boundary.
type Rollover struct {
	period     domain.PeriodLength
	discoverer *Discoverer
	markets    MarketHolder
	tracker    TokenTracker
	detector   PeriodResetter
	trader     PeriodTrader
	archive    PeriodArchive
	events     EventRecorder
	retry      time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// RolloverOption configures optional Rollover collaborators.
type RolloverOption func(*Rollover)

// WithTracker subscribes the book feed to each new market set.
func WithTracker(t TokenTracker) RolloverOption { return func(r *Rollover) { r.tracker = t } }

// WithDetector resets detector memory at each boundary.
func WithDetector(d PeriodResetter) RolloverOption { return func(r *Rollover) { r.detector = d } }

// WithTrader resets and purges the trader at each boundary.
func WithTrader(t PeriodTrader) RolloverOption { return func(r *Rollover) { r.trader = t } }

// WithArchive archives each finished period.
func WithArchive(a PeriodArchive) RolloverOption { return func(r *Rollover) { r.archive = a } }

// WithEventRecorder records a NEW MARKET STARTED event per market.
func WithEventRecorder(e EventRecorder) RolloverOption { return func(r *Rollover) { r.events = e } }

// WithRetryInterval sets the delay between failed rediscoveries.
func WithRetryInterval(d time.Duration) RolloverOption {
	return func(r *Rollover) {
		if d > 0 {
			r.retry = d
		}
	}
}

// NewRollover creates a Rollover that feeds markets from discoverer.
func NewRollover(period domain.PeriodLength, discoverer *Discoverer, markets MarketHolder, logger *slog.Logger, opts ...RolloverOption) *Rollover {
	r := &Rollover{
		period:     period,
		discoverer: discoverer,
		markets:    markets,
		retry:      5 * time.Second,
		logger:     logger.With(slog.String("component", "rollover")),
		now:        time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Start runs the initial discovery and installs its markets. Any failure is
// fatal to the caller.
func (r *Rollover) Start(ctx context.Context) error {
	set, err := r.discoverer.Discover(ctx, r.now())
	if err != nil {
		return err
	}
	if err := r.install(ctx, set); err != nil {
		return err
	}
	r.announce(ctx, set)
	return nil
}

// Run rolls over at every period boundary until ctx is done. It only
// returns early when discovery violates the distinct-condition invariant.
func (r *Rollover) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	if err := r.catchUp(ctx); err != nil {
		return err
	}

	err := scheduler.Aligned(ctx, r.period.NextBoundary, func(ctx context.Context, boundary time.Time) {
		if err := r.Rollover(ctx, boundary); err != nil {
			cancel(err)
		}
	})
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	return err
}

// Rollover performs one period change: resets period memory, rediscovers
// until it succeeds, swaps the markets in, then purges and archives what
// the finished period left behind.
func (r *Rollover) Rollover(ctx context.Context, boundary time.Time) error {
	previous := r.markets.Markets().Period
	current := r.period.Start(boundary)
	r.logger.InfoContext(ctx, "period boundary",
		slog.Int64("previous", previous),
		slog.Int64("current", current),
	)

	if r.detector != nil {
		r.detector.ResetPeriod()
	}
	if r.trader != nil {
		r.trader.ResetPeriod(previous)
	}

	set, err := r.rediscover(ctx, boundary)
	if err != nil {
		return err
	}
	if err := r.install(ctx, set); err != nil {
		if errors.Is(err, domain.ErrStalePeriod) {
			r.logger.WarnContext(ctx, "discovered markets are stale", slog.String("error", err.Error()))
			return nil
		}
		return err
	}
	r.announce(ctx, set)

	var purged []domain.Position
	if r.trader != nil {
		purged = r.trader.CleanupOldAbandonedTrades(set.Period)
	}
	if r.archive != nil && (previous > 0 || len(purged) > 0) {
		if err := r.archive.Archive(ctx, previous, purged); err != nil {
			r.logger.WarnContext(ctx, "archive failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

// catchUp replaces markets installed at start that belong to an earlier
// period. It returns once every market matches the current period.
func (r *Rollover) catchUp(ctx context.Context) error {
	current := r.markets.Markets()
	if len(lagging(current)) == 0 {
		return nil
	}
	set, err := r.rediscover(ctx, time.Unix(current.Period, 0))
	if err != nil {
		return err
	}
	if err := r.install(ctx, set); err != nil {
		return err
	}
	r.announce(ctx, set)
	return nil
}

// rediscover retries discovery every retry interval while the old markets
// keep being served. A set still holding an earlier period's market counts
// as a failed attempt. Only a duplicate condition and cancellation stop it.
func (r *Rollover) rediscover(ctx context.Context, boundary time.Time) (domain.MarketSet, error) {
	for attempt := 1; ; attempt++ {
		set, err := r.discoverer.Discover(ctx, boundary)
		if err == nil {
			stale := lagging(set)
			if len(stale) == 0 {
				return set, nil
			}
			err = fmt.Errorf("app: %v not listed for period %d yet", stale, set.Period)
		}
		if ctx.Err() != nil {
			return domain.MarketSet{}, ctx.Err()
		}
		if errors.Is(err, domain.ErrDuplicateCondition) {
			return domain.MarketSet{}, err
		}
		r.logger.WarnContext(ctx, "rediscovery failed, keeping previous markets",
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", r.retry),
			slog.String("error", err.Error()),
		)
		if err := scheduler.Sleep(ctx, r.retry); err != nil {
			return domain.MarketSet{}, err
		}
	}
}

func (r *Rollover) install(ctx context.Context, set domain.MarketSet) error {
	if err := r.markets.ReplaceMarkets(set); err != nil {
		return fmt.Errorf("app: install markets: %w", err)
	}
	if r.tracker != nil {
		if err := r.tracker.Track(ctx, set.TokenIDs()); err != nil {
			r.logger.WarnContext(ctx, "book feed subscribe failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

func (r *Rollover) announce(ctx context.Context, set domain.MarketSet) {
	for _, a := range domain.Assets {
		m, ok := set.Get(a)
		if !ok {
			continue
		}
		if m.Fallback {
			r.logger.InfoContext(ctx, "asset disabled for period",
				slog.String("asset", string(a)),
				slog.Int64("period", set.Period),
			)
			continue
		}
		if r.events != nil {
			r.events.Record(ctx, domain.TradingEvent{
				Kind:        domain.EventNewMarket,
				Time:        r.now(),
				Market:      string(a),
				Period:      set.Period,
				ConditionID: m.ConditionID,
				Detail:      "Slug: " + m.Slug,
			})
		}
	}
}
