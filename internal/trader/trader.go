// Package trader executes buy opportunities and drives every resulting
// position through fill, exit and settlement.
package trader

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// dustShares is the balance below which a token holding counts as empty.
const dustShares = 0.01

// EventSink receives trading events. Implementations must not block for
// long and never fail the caller.
type EventSink interface {
	Record(ctx context.Context, ev domain.TradingEvent)
}

// CycleObserver is told when a position was sold at its target.
type CycleObserver interface {
	MarkCycleCompleted(tt domain.TokenType)
}

// Config holds the trader's trading parameters.
type Config struct {
	Period                domain.PeriodLength
	FixedTradeAmount      float64
	MinTimeRemaining      time.Duration
	SellPrice             float64
	StopLossPrice         float64
	HoldToClosure         bool
	LimitShares           float64
	FillTimeout           time.Duration
	MaxRedemptionAttempts int
	MergeCompleteSets     bool
	NegRisk               bool
	// LockTTL bounds the distributed buy lock.
	LockTTL time.Duration
}

// Trader owns all position state.
type Trader struct {
	cfg     Config
	client  domain.TradingClient
	sink    EventSink
	journal domain.PositionJournal
	locks   domain.LockManager
	cycles  CycleObserver
	logger  *slog.Logger
	now     func() time.Time

	book *book

	// Period-scoped bookkeeping, cleared by ResetPeriod.
	mu          sync.Mutex
	resolutions map[string]domain.MarketResolution
	buyFailures map[domain.PositionKey]int
	ended       map[string]struct{}
}

// Option configures optional Trader collaborators.
type Option func(*Trader)

// WithJournal persists every position change and enables restart sync.
func WithJournal(j domain.PositionJournal) Option { return func(t *Trader) { t.journal = j } }

// WithLocks guards each buy with a distributed lock.
func WithLocks(l domain.LockManager) Option { return func(t *Trader) { t.locks = l } }

// WithCycleObserver notifies o after each completed sale.
func WithCycleObserver(o CycleObserver) Option { return func(t *Trader) { t.cycles = o } }

// New creates a Trader.
func New(cfg Config, client domain.TradingClient, sink EventSink, logger *slog.Logger, opts ...Option) *Trader {
	if cfg.MaxRedemptionAttempts <= 0 {
		cfg.MaxRedemptionAttempts = 20
	}
	if cfg.FillTimeout <= 0 {
		cfg.FillTimeout = time.Minute
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	if cfg.Period == 0 {
		cfg.Period = domain.Period15m
	}
	t := &Trader{
		cfg:         cfg,
		client:      client,
		sink:        sink,
		logger:      logger.With(slog.String("component", "trader")),
		now:         time.Now,
		book:        newBook(),
		resolutions: make(map[string]domain.MarketResolution),
		buyFailures: make(map[domain.PositionKey]int),
		ended:       make(map[string]struct{}),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// HasActivePosition reports whether a reserved, open or restored position
// exists for the period and token type.
func (t *Trader) HasActivePosition(period int64, tt domain.TokenType) bool {
	return t.book.active(domain.PositionKey{Period: period, TokenType: tt})
}

// Positions returns a copy of every tracked position.
func (t *Trader) Positions() []domain.Position { return t.book.list() }

// Handle executes each opportunity, routing limit opportunities to
// ExecuteLimitBuy. Failures are logged; a duplicate is not a failure.
func (t *Trader) Handle(ctx context.Context, opps []domain.BuyOpportunity) {
	for _, opp := range opps {
		var err error
		if opp.UseMarketOrder {
			err = t.ExecuteBuy(ctx, opp)
		} else {
			err = t.ExecuteLimitBuy(ctx, opp, false, t.cfg.LimitShares)
		}
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrActivePosition):
			t.logger.DebugContext(ctx, "position already active", slog.String("token", opp.TokenType.DisplayName()))
		default:
			t.logger.WarnContext(ctx, "buy failed",
				slog.String("token", opp.TokenType.DisplayName()),
				slog.Int64("period", opp.PeriodTimestamp),
				slog.String("error", err.Error()),
			)
		}
	}
}

// ResetPeriod clears period-scoped bookkeeping. Live positions are kept.
func (t *Trader) ResetPeriod(previous int64) {
	t.mu.Lock()
	t.resolutions = make(map[string]domain.MarketResolution)
	t.buyFailures = make(map[domain.PositionKey]int)
	t.mu.Unlock()
	t.logger.Info("period reset", slog.Int64("previous_period", previous))
}

// CleanupOldAbandonedTrades drops terminal positions of periods before
// current and returns them for archival.
func (t *Trader) CleanupOldAbandonedTrades(current int64) []domain.Position {
	purged := t.book.purge(current)
	if len(purged) > 0 {
		t.mu.Lock()
		for _, p := range purged {
			delete(t.ended, p.ConditionID)
		}
		t.mu.Unlock()
		t.logger.Info("purged closed positions", slog.Int("count", len(purged)), slog.Int64("before_period", current))
	}
	return purged
}

// transition applies a state change plus field updates to a position if it
// is unchanged since seen, then persists it.
func (t *Trader) transition(ctx context.Context, seen domain.Position, to domain.PositionState, mutate func(p *domain.Position)) (domain.Position, bool) {
	now := t.now()
	p, ok, err := t.book.apply(seen, func(p *domain.Position) error {
		if mutate != nil {
			mutate(p)
		}
		return p.Transition(to, now)
	})
	if err != nil {
		t.logger.ErrorContext(ctx, "illegal position transition",
			slog.String("position", seen.Key().String()),
			slog.String("error", err.Error()),
		)
		return seen, false
	}
	if !ok {
		t.logger.DebugContext(ctx, "position changed concurrently, skipping", slog.String("position", seen.Key().String()))
		return seen, false
	}
	t.persist(ctx, p)
	return p, true
}

// update mutates a position without changing its state.
func (t *Trader) update(ctx context.Context, seen domain.Position, mutate func(p *domain.Position)) (domain.Position, bool) {
	now := t.now()
	p, ok, _ := t.book.apply(seen, func(p *domain.Position) error {
		mutate(p)
		p.UpdatedAt = now
		return nil
	})
	if ok {
		t.persist(ctx, p)
	}
	return p, ok
}

func (t *Trader) persist(ctx context.Context, p domain.Position) {
	if t.journal == nil {
		return
	}
	if err := t.journal.Upsert(ctx, p); err != nil {
		t.logger.WarnContext(ctx, "position journal write failed",
			slog.String("position", p.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (t *Trader) emit(ctx context.Context, kind domain.EventKind, p domain.Position, ev domain.TradingEvent) {
	if t.sink == nil {
		return
	}
	ev.Kind = kind
	ev.Time = t.now()
	if ev.Market == "" {
		ev.Market = p.TokenType.DisplayName()
	}
	if ev.Period == 0 {
		ev.Period = p.PeriodTimestamp
	}
	if ev.TokenID == "" {
		ev.TokenID = p.TokenID
	}
	if ev.ConditionID == "" {
		ev.ConditionID = p.ConditionID
	}
	t.sink.Record(ctx, ev)
}

func (t *Trader) periodEnded(p domain.Position) bool {
	return t.now().Unix() >= t.cfg.Period.End(p.PeriodTimestamp)
}

// roundDown2 truncates a share count to the exchange's 0.01 lot size.
func roundDown2(v float64) float64 {
	return decimal.NewFromFloat(v).RoundDown(2).InexactFloat64()
}

// logAttempt limits retry logging to the first attempt and every fifth.
func logAttempt(n int) bool { return n <= 1 || n%5 == 0 }
