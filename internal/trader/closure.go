package trader

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// CheckMarketClosure settles positions whose period has ended: it waits for
// the exchange to report a winner, then redeems winners and writes off
// losers. Unresolved markets are retried on the next call.
func (t *Trader) CheckMarketClosure(ctx context.Context) error {
	var ended []domain.Position
	for _, p := range t.book.open() {
		if t.periodEnded(p) {
			ended = append(ended, p)
		}
	}
	if len(ended) == 0 {
		return nil
	}
	if t.cfg.MergeCompleteSets {
		t.mergeCompleteSets(ctx, ended)
		ended = ended[:0]
		for _, p := range t.book.open() {
			if t.periodEnded(p) {
				ended = append(ended, p)
			}
		}
	}

	tick := make(map[string]domain.MarketResolution)
	for _, p := range ended {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, ok := t.resolution(ctx, tick, p.ConditionID)
		if !ok {
			continue
		}
		if !res.Resolved() {
			t.noteEnded(ctx, p)
			continue
		}
		t.settle(ctx, p, res)
	}
	return nil
}

// resolution returns the market resolution, consulting the per-tick cache
// and the period cache of resolved markets first.
func (t *Trader) resolution(ctx context.Context, tick map[string]domain.MarketResolution, conditionID string) (domain.MarketResolution, bool) {
	if r, ok := tick[conditionID]; ok {
		return r, true
	}
	t.mu.Lock()
	r, ok := t.resolutions[conditionID]
	t.mu.Unlock()
	if ok {
		return r, true
	}
	r, err := t.client.Resolution(ctx, conditionID)
	if err != nil {
		t.logger.DebugContext(ctx, "resolution lookup failed", slog.String("condition_id", conditionID), slog.String("error", err.Error()))
		return domain.MarketResolution{}, false
	}
	tick[conditionID] = r
	if r.Resolved() {
		t.mu.Lock()
		t.resolutions[conditionID] = r
		t.mu.Unlock()
	}
	return r, true
}

func (t *Trader) noteEnded(ctx context.Context, p domain.Position) {
	t.mu.Lock()
	_, seen := t.ended[p.ConditionID]
	t.ended[p.ConditionID] = struct{}{}
	t.mu.Unlock()
	if seen {
		return
	}
	t.logger.InfoContext(ctx, "market ended, awaiting resolution",
		slog.String("condition_id", p.ConditionID),
		slog.Int64("period", p.PeriodTimestamp),
	)
	t.emit(ctx, domain.EventMarketEnded, p, domain.TradingEvent{Market: string(p.TokenType.Asset())})
}

func (t *Trader) settle(ctx context.Context, p domain.Position, res domain.MarketResolution) {
	if p.State == domain.StatePending {
		next, ok := t.settlePending(ctx, p)
		if !ok {
			return
		}
		p = next
	}
	if p.State == domain.StateSellPending && p.SellOrderID != "" {
		if err := t.client.CancelOrder(ctx, p.SellOrderID); err != nil {
			t.logger.DebugContext(ctx, "cancel sell at closure failed", slog.String("order_id", p.SellOrderID), slog.String("error", err.Error()))
		}
	}

	if !res.Won(p.TokenID) {
		pnl := -p.Cost
		next, ok := t.transition(ctx, p, domain.StateAbandoned, func(q *domain.Position) {
			q.RealizedPnL += pnl
			q.Note = "market lost"
		})
		if !ok {
			return
		}
		t.logger.InfoContext(ctx, "position lost",
			slog.String("token", next.TokenType.DisplayName()),
			slog.Int64("period", next.PeriodTimestamp),
			slog.Float64("pnl", pnl),
		)
		t.emit(ctx, domain.EventMarketResult, next, domain.TradingEvent{Shares: next.Shares, PnL: pnl, Status: "LOST"})
		return
	}

	balance, err := t.client.Balance(ctx, p.TokenID)
	if err != nil {
		t.logger.DebugContext(ctx, "balance check failed", slog.String("position", p.Key().String()), slog.String("error", err.Error()))
		return
	}
	if balance < dustShares {
		t.settleEmpty(ctx, p)
		return
	}

	t.emit(ctx, domain.EventMarketResult, p, domain.TradingEvent{Shares: p.Shares, Status: "WON"})
	sr, err := t.client.Redeem(ctx, p.ConditionID)
	if err != nil {
		t.redemptionFailed(ctx, p, err)
		return
	}
	pnl := p.Shares - p.Cost
	next, ok := t.transition(ctx, p, domain.StateRedeemed, func(q *domain.Position) { q.RealizedPnL += pnl })
	if !ok {
		return
	}
	t.logger.InfoContext(ctx, "position redeemed",
		slog.String("token", next.TokenType.DisplayName()),
		slog.String("tx", sr.TransactionHash),
		slog.Float64("pnl", pnl),
	)
	t.emit(ctx, domain.EventRedemptionSuccess, next, domain.TradingEvent{
		Shares: next.Shares,
		Amount: next.Shares,
		PnL:    pnl,
		Status: sr.State,
		Detail: "tx " + sr.TransactionHash,
	})
}

// settlePending decides a still-pending buy at closure: any balance above
// the baseline means it filled.
func (t *Trader) settlePending(ctx context.Context, p domain.Position) (domain.Position, bool) {
	balance, err := t.client.Balance(ctx, p.TokenID)
	if err != nil {
		return p, false
	}
	if gained := balance - p.BaselineBalance; gained >= dustShares {
		return t.transition(ctx, p, domain.StateFilled, func(q *domain.Position) { q.Shares = roundDown2(gained) })
	}
	if p.BuyOrderID != "" {
		if err := t.client.CancelOrder(ctx, p.BuyOrderID); err != nil {
			t.logger.DebugContext(ctx, "cancel buy at closure failed", slog.String("order_id", p.BuyOrderID), slog.String("error", err.Error()))
		}
	}
	next, ok := t.transition(ctx, p, domain.StateAbandoned, func(q *domain.Position) { q.Note = "never filled" })
	if ok {
		t.emit(ctx, domain.EventBuyAbandoned, next, domain.TradingEvent{OrderID: next.BuyOrderID, Detail: "never filled before market closed"})
	}
	return next, false
}

// settleEmpty closes a winning position whose tokens are already gone.
func (t *Trader) settleEmpty(ctx context.Context, p domain.Position) {
	if p.State == domain.StateSellPending {
		pnl := p.Shares*p.SellPrice - p.Cost
		next, ok := t.transition(ctx, p, domain.StateSold, func(q *domain.Position) { q.RealizedPnL += pnl })
		if !ok {
			return
		}
		if t.cycles != nil {
			t.cycles.MarkCycleCompleted(next.TokenType)
		}
		t.emit(ctx, domain.EventSellFilled, next, domain.TradingEvent{Price: next.SellPrice, Shares: next.Shares, PnL: pnl, OrderID: next.SellOrderID})
		return
	}
	pnl := p.Shares - p.Cost
	next, ok := t.transition(ctx, p, domain.StateRedeemed, func(q *domain.Position) {
		q.RealizedPnL += pnl
		q.Note = "already redeemed"
	})
	if ok {
		t.emit(ctx, domain.EventRedemptionSuccess, next, domain.TradingEvent{Shares: next.Shares, PnL: pnl, Detail: "already redeemed"})
	}
}

func (t *Trader) redemptionFailed(ctx context.Context, p domain.Position, err error) {
	next, ok := t.update(ctx, p, func(q *domain.Position) { q.RedemptionAttempts++ })
	if !ok {
		return
	}
	if next.RedemptionAttempts >= t.cfg.MaxRedemptionAttempts {
		final, ok := t.transition(ctx, next, domain.StateAbandoned, func(q *domain.Position) {
			q.Note = fmt.Sprintf("redemption abandoned after %d attempts", q.RedemptionAttempts)
		})
		if !ok {
			return
		}
		t.logger.ErrorContext(ctx, "redemption abandoned",
			slog.String("token", final.TokenType.DisplayName()),
			slog.String("condition_id", final.ConditionID),
			slog.Int("attempts", final.RedemptionAttempts),
			slog.String("error", err.Error()),
		)
		t.emit(ctx, domain.EventRedemptionAbandoned, final, domain.TradingEvent{Shares: final.Shares, Detail: final.Note})
		return
	}
	if logAttempt(next.RedemptionAttempts) {
		t.logger.WarnContext(ctx, "redemption failed",
			slog.String("token", next.TokenType.DisplayName()),
			slog.Int("attempt", next.RedemptionAttempts),
			slog.String("error", err.Error()),
		)
		t.emit(ctx, domain.EventRedemptionFailed, next, domain.TradingEvent{
			Shares: next.Shares,
			Detail: fmt.Sprintf("attempt %d/%d: %v", next.RedemptionAttempts, t.cfg.MaxRedemptionAttempts, err),
		})
	}
}

// mergeCompleteSets merges held Up/Down pairs of the same condition back
// into collateral. Each leg is credited half a dollar per merged set.
func (t *Trader) mergeCompleteSets(ctx context.Context, ended []domain.Position) {
	type pair struct{ up, down *domain.Position }
	pairs := make(map[string]*pair)
	for i := range ended {
		p := &ended[i]
		if p.State != domain.StateFilled {
			continue
		}
		pr := pairs[p.ConditionID]
		if pr == nil {
			pr = &pair{}
			pairs[p.ConditionID] = pr
		}
		if p.TokenType.Direction() == domain.Up {
			pr.up = p
		} else {
			pr.down = p
		}
	}
	for cond, pr := range pairs {
		if pr.up == nil || pr.down == nil {
			continue
		}
		m := MergeUpDownAmounts(pr.up.Shares, pr.down.Shares)
		sets := roundDown2(m.CompleteSets)
		if sets < dustShares {
			continue
		}
		sr, err := t.client.Merge(ctx, cond, sets)
		if err != nil {
			t.logger.WarnContext(ctx, "merge failed", slog.String("condition_id", cond), slog.String("error", err.Error()))
			continue
		}
		t.logger.InfoContext(ctx, "merged complete sets",
			slog.String("condition_id", cond),
			slog.Float64("sets", sets),
			slog.String("tx", sr.TransactionHash),
		)
		for _, leg := range []*domain.Position{pr.up, pr.down} {
			t.applyMerge(ctx, *leg, sets)
		}
	}
}

func (t *Trader) applyMerge(ctx context.Context, p domain.Position, sets float64) {
	shares := decimal.NewFromFloat(p.Shares)
	merged := decimal.NewFromFloat(sets)
	costShare := decimal.NewFromFloat(p.Cost).Mul(merged).Div(shares)
	pnl := merged.Mul(decimal.NewFromFloat(0.5)).Sub(costShare)
	left := shares.Sub(merged)

	mutate := func(q *domain.Position) {
		q.Shares = left.InexactFloat64()
		q.Cost = decimal.NewFromFloat(q.Cost).Sub(costShare).InexactFloat64()
		q.RealizedPnL = decimal.NewFromFloat(q.RealizedPnL).Add(pnl).InexactFloat64()
	}
	var next domain.Position
	var ok bool
	if left.LessThan(decimal.NewFromFloat(dustShares)) {
		next, ok = t.transition(ctx, p, domain.StateRedeemed, func(q *domain.Position) {
			mutate(q)
			q.Note = "merged"
		})
	} else {
		next, ok = t.update(ctx, p, mutate)
	}
	if ok {
		t.emit(ctx, domain.EventMerge, next, domain.TradingEvent{
			Shares: sets,
			Amount: merged.Mul(decimal.NewFromFloat(0.5)).InexactFloat64(),
			PnL:    pnl.InexactFloat64(),
		})
	}
}
