package trader

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// Summary aggregates the tracked positions.
type Summary struct {
	Total        int
	Counts       map[domain.PositionState]int
	OpenExposure float64
	RealizedPnL  float64
}

// Summarize returns position counts per state, the cost of open positions
// and the realized PnL of closed ones.
func (t *Trader) Summarize() Summary {
	s := Summary{Counts: make(map[domain.PositionState]int)}
	for _, p := range t.book.list() {
		s.Total++
		s.Counts[p.State]++
		if p.State.Terminal() {
			s.RealizedPnL += p.RealizedPnL
		} else {
			s.OpenExposure += p.Cost
		}
	}
	return s
}

// PrintTradeSummary logs and returns the Summarize result.
func (t *Trader) PrintTradeSummary(ctx context.Context) Summary {
	s := t.Summarize()
	if s.Total == 0 {
		t.logger.DebugContext(ctx, "trade summary: no positions")
		return s
	}
	t.logger.InfoContext(ctx, "trade summary",
		slog.Int("total", s.Total),
		slog.Int("pending", s.Counts[domain.StatePending]),
		slog.Int("filled", s.Counts[domain.StateFilled]),
		slog.Int("sell_pending", s.Counts[domain.StateSellPending]),
		slog.Int("sold", s.Counts[domain.StateSold]),
		slog.Int("redeemed", s.Counts[domain.StateRedeemed]),
		slog.Int("abandoned", s.Counts[domain.StateAbandoned]),
		slog.Float64("open_exposure", s.OpenExposure),
		slog.Float64("realized_pnl", s.RealizedPnL),
	)
	return s
}
