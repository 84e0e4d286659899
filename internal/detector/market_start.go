package detector

import (
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// MarketStartConfig holds the period-open rule.
type MarketStartConfig struct {
	LimitPrice     float64
	StartWindow    time.Duration
	UseMarketOrder bool
}

// MarketStart fires for every leg within StartWindow of the period opening,
// at a fixed price, once per period. The first period observed after start
// is skipped because it is already underway.
type MarketStart struct {
	cfg    MarketStartConfig
	logger *slog.Logger

	mu        sync.Mutex
	firstSeen int64
	fired     map[int64]struct{}
}

// NewMarketStart creates a MarketStart detector.
func NewMarketStart(cfg MarketStartConfig, logger *slog.Logger) *MarketStart {
	if cfg.StartWindow <= 0 {
		cfg.StartWindow = 2 * time.Second
	}
	return &MarketStart{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "detector"), slog.String("variant", "market_start")),
		fired:  make(map[int64]struct{}),
	}
}

// Detect implements Detector.
func (m *MarketStart) Detect(snap domain.Snapshot) []domain.BuyOpportunity {
	if snap.Expired() || snap.PeriodTimestamp == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.firstSeen == 0 {
		m.firstSeen = snap.PeriodTimestamp
		m.logger.Info("skipping period already underway", slog.Int64("period", snap.PeriodTimestamp))
	}
	if snap.PeriodTimestamp == m.firstSeen {
		return nil
	}
	if time.Duration(snap.ElapsedSeconds)*time.Second > m.cfg.StartWindow {
		return nil
	}
	if _, done := m.fired[snap.PeriodTimestamp]; done {
		return nil
	}

	var out []domain.BuyOpportunity
	for _, l := range legs(snap) {
		out = append(out, domain.BuyOpportunity{
			ConditionID:      l.market.ConditionID,
			TokenID:          l.tokenID,
			TokenType:        l.tokenType,
			Price:            m.cfg.LimitPrice,
			PeriodTimestamp:  snap.PeriodTimestamp,
			RemainingSeconds: snap.RemainingSeconds,
			ElapsedSeconds:   snap.ElapsedSeconds,
			UseMarketOrder:   m.cfg.UseMarketOrder,
		})
	}
	if len(out) > 0 {
		m.fired[snap.PeriodTimestamp] = struct{}{}
		m.logger.Info("period open orders",
			slog.Int64("period", snap.PeriodTimestamp),
			slog.Int("legs", len(out)),
			slog.Float64("price", m.cfg.LimitPrice),
		)
	}
	return out
}

// ResetPeriod implements Detector. The first-period skip is kept.
func (m *MarketStart) ResetPeriod() {
	m.mu.Lock()
	m.fired = make(map[int64]struct{})
	m.mu.Unlock()
}
