package detector

import (
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// ReactiveConfig holds the price-crossing rule.
type ReactiveConfig struct {
	TriggerPrice     float64
	MaxBuyPrice      float64
	MinElapsed       time.Duration
	MinTimeRemaining time.Duration
}

// Reactive fires a market buy for a leg whose ask sits between the trigger
// and the ceiling, once the period is old enough and far enough from its
// end. A leg fires at most once per period.
type Reactive struct {
	cfg    ReactiveConfig
	logger *slog.Logger

	mu    sync.Mutex
	fired map[domain.PositionKey]struct{}
	// rearm holds token types that completed a cycle and must see the ask
	// drop below the trigger before firing again.
	rearm map[domain.TokenType]struct{}
}

// NewReactive creates a Reactive detector.
func NewReactive(cfg ReactiveConfig, logger *slog.Logger) *Reactive {
	return &Reactive{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "detector"), slog.String("variant", "reactive")),
		fired:  make(map[domain.PositionKey]struct{}),
		rearm:  make(map[domain.TokenType]struct{}),
	}
}

// Detect implements Detector.
func (r *Reactive) Detect(snap domain.Snapshot) []domain.BuyOpportunity {
	if snap.Expired() {
		return nil
	}
	elapsed := time.Duration(snap.ElapsedSeconds) * time.Second
	remaining := time.Duration(snap.RemainingSeconds) * time.Second

	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.BuyOpportunity
	for _, l := range legs(snap) {
		if l.quote == nil || l.quote.Ask <= 0 {
			continue
		}
		ask := l.quote.Ask

		if _, waiting := r.rearm[l.tokenType]; waiting {
			if ask < r.cfg.TriggerPrice {
				delete(r.rearm, l.tokenType)
				r.logger.Info("re-armed after completed cycle",
					slog.String("token", l.tokenType.DisplayName()),
					slog.Float64("ask", ask),
				)
			}
			continue
		}

		if elapsed < r.cfg.MinElapsed || remaining < r.cfg.MinTimeRemaining {
			continue
		}
		if ask < r.cfg.TriggerPrice || ask > r.cfg.MaxBuyPrice {
			continue
		}
		key := domain.PositionKey{Period: snap.PeriodTimestamp, TokenType: l.tokenType}
		if _, done := r.fired[key]; done {
			continue
		}
		r.fired[key] = struct{}{}

		r.logger.Info("buy opportunity",
			slog.String("token", l.tokenType.DisplayName()),
			slog.Float64("ask", ask),
			slog.Int64("period", snap.PeriodTimestamp),
			slog.Int64("elapsed_s", snap.ElapsedSeconds),
			slog.Int64("remaining_s", snap.RemainingSeconds),
		)
		out = append(out, domain.BuyOpportunity{
			ConditionID:      l.market.ConditionID,
			TokenID:          l.tokenID,
			TokenType:        l.tokenType,
			Price:            ask,
			PeriodTimestamp:  snap.PeriodTimestamp,
			RemainingSeconds: snap.RemainingSeconds,
			ElapsedSeconds:   snap.ElapsedSeconds,
			UseMarketOrder:   true,
		})
	}
	return out
}

// ResetPeriod implements Detector.
func (r *Reactive) ResetPeriod() {
	r.mu.Lock()
	r.fired = make(map[domain.PositionKey]struct{})
	r.mu.Unlock()
}

// MarkCycleCompleted implements CycleObserver.
func (r *Reactive) MarkCycleCompleted(tt domain.TokenType) {
	r.mu.Lock()
	r.rearm[tt] = struct{}{}
	r.mu.Unlock()
}
