package trader

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// CheckPendingTrades advances every open position by one step: confirming
// fills, placing and re-placing sells, detecting completed sales and
// applying the stop-loss. Exchange errors are logged and retried on the
// next call.
func (t *Trader) CheckPendingTrades(ctx context.Context) error {
	for _, p := range t.book.open() {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch p.State {
		case domain.StatePending:
			t.checkBuyFill(ctx, p)
		case domain.StateFilled:
			t.checkFilled(ctx, p)
		case domain.StateSellPending:
			t.checkSellPending(ctx, p)
		}
	}
	return nil
}

func (t *Trader) checkBuyFill(ctx context.Context, p domain.Position) {
	balance, err := t.client.Balance(ctx, p.TokenID)
	if err != nil {
		t.logger.DebugContext(ctx, "balance check failed", slog.String("position", p.Key().String()), slog.String("error", err.Error()))
		return
	}
	if gained := balance - p.BaselineBalance; gained >= dustShares {
		ordered := p.Shares
		if p.Kind == domain.OrderKindLimit && gained < ordered-dustShares {
			gained = t.cancelRemainder(ctx, p, gained)
		}
		next, ok := t.transition(ctx, p, domain.StateFilled, func(q *domain.Position) {
			q.Shares = roundDown2(gained)
			if q.Kind == domain.OrderKindLimit && ordered > 0 && q.Shares < ordered {
				q.Cost = decimal.NewFromFloat(q.Cost).Mul(decimal.NewFromFloat(q.Shares)).Div(decimal.NewFromFloat(ordered)).RoundUp(2).InexactFloat64()
			}
		})
		if !ok {
			return
		}
		if err := t.client.RefreshAllowance(ctx, p.TokenID); err != nil {
			t.logger.WarnContext(ctx, "allowance refresh failed", slog.String("token", p.TokenID), slog.String("error", err.Error()))
		}
		t.logger.InfoContext(ctx, "buy filled",
			slog.String("token", next.TokenType.DisplayName()),
			slog.Int64("period", next.PeriodTimestamp),
			slog.Float64("shares", next.Shares),
		)
		t.emit(ctx, domain.EventBuyFilled, next, domain.TradingEvent{
			Price:   next.EntryPrice,
			Shares:  next.Shares,
			Amount:  next.Cost,
			OrderID: next.BuyOrderID,
		})
		return
	}

	reason := ""
	if p.BuyOrderID != "" {
		info, err := t.client.Order(ctx, p.BuyOrderID)
		if err == nil && info.Status.Done() && info.Status != domain.OrderStatusMatched {
			reason = "order " + string(info.Status)
		}
	}
	if reason == "" {
		switch p.Kind {
		case domain.OrderKindMarket:
			if t.now().Sub(p.CreatedAt) > t.cfg.FillTimeout {
				reason = "not filled within " + t.cfg.FillTimeout.String()
			}
		case domain.OrderKindLimit:
			if t.periodEnded(p) {
				if err := t.client.CancelOrder(ctx, p.BuyOrderID); err != nil {
					t.logger.WarnContext(ctx, "cancel unfilled limit buy failed", slog.String("order_id", p.BuyOrderID), slog.String("error", err.Error()))
				}
				reason = "limit order unfilled at period end"
			}
		}
	}
	if reason == "" {
		return
	}
	next, ok := t.transition(ctx, p, domain.StateAbandoned, func(q *domain.Position) { q.Note = reason })
	if !ok {
		return
	}
	t.logger.WarnContext(ctx, "buy abandoned",
		slog.String("token", next.TokenType.DisplayName()),
		slog.Int64("period", next.PeriodTimestamp),
		slog.String("reason", reason),
	)
	t.emit(ctx, domain.EventBuyAbandoned, next, domain.TradingEvent{OrderID: next.BuyOrderID, Detail: reason})
}

// cancelRemainder cancels the unfilled rest of a partly filled limit buy
// and returns the shares actually held once the order stopped resting.
func (t *Trader) cancelRemainder(ctx context.Context, p domain.Position, gained float64) float64 {
	if p.BuyOrderID == "" {
		return gained
	}
	if err := t.client.CancelOrder(ctx, p.BuyOrderID); err != nil {
		t.logger.WarnContext(ctx, "cancel partly filled limit buy failed", slog.String("order_id", p.BuyOrderID), slog.String("error", err.Error()))
		return gained
	}
	balance, err := t.client.Balance(ctx, p.TokenID)
	if err != nil {
		return gained
	}
	if after := balance - p.BaselineBalance; after > gained {
		gained = min(after, p.Shares)
	}
	t.logger.InfoContext(ctx, "limit buy partly filled, remainder cancelled",
		slog.String("token", p.TokenType.DisplayName()),
		slog.Float64("ordered", p.Shares),
		slog.Float64("filled", gained),
	)
	return gained
}

func (t *Trader) checkFilled(ctx context.Context, p domain.Position) {
	if t.periodEnded(p) {
		return
	}
	if t.stopLoss(ctx, p) {
		return
	}
	if p.HoldToClosure || p.SellPrice <= 0 {
		return
	}
	t.placeSell(ctx, p)
}

func (t *Trader) checkSellPending(ctx context.Context, p domain.Position) {
	if t.periodEnded(p) {
		return
	}
	if t.stopLoss(ctx, p) {
		return
	}
	balance, err := t.client.Balance(ctx, p.TokenID)
	if err != nil {
		t.logger.DebugContext(ctx, "balance check failed", slog.String("position", p.Key().String()), slog.String("error", err.Error()))
		return
	}
	if balance < dustShares {
		pnl := p.Shares*p.SellPrice - p.Cost
		next, ok := t.transition(ctx, p, domain.StateSold, func(q *domain.Position) { q.RealizedPnL += pnl })
		if !ok {
			return
		}
		if t.cycles != nil {
			t.cycles.MarkCycleCompleted(next.TokenType)
		}
		t.logger.InfoContext(ctx, "sell filled",
			slog.String("token", next.TokenType.DisplayName()),
			slog.Float64("price", next.SellPrice),
			slog.Float64("pnl", pnl),
		)
		t.emit(ctx, domain.EventSellFilled, next, domain.TradingEvent{
			Price:   next.SellPrice,
			Shares:  next.Shares,
			PnL:     pnl,
			OrderID: next.SellOrderID,
		})
		return
	}
	if p.SellOrderID == "" {
		t.placeSell(ctx, p)
		return
	}
	info, err := t.client.Order(ctx, p.SellOrderID)
	if err != nil {
		return
	}
	if info.Status == domain.OrderStatusCancelled || info.Status == domain.OrderStatusFailed {
		t.logger.InfoContext(ctx, "sell order gone, re-placing",
			slog.String("order_id", p.SellOrderID),
			slog.String("status", string(info.Status)),
		)
		t.placeSell(ctx, p)
	}
}

// placeSell rests a GTC sell at the target price for the held balance.
func (t *Trader) placeSell(ctx context.Context, p domain.Position) {
	balance, err := t.client.Balance(ctx, p.TokenID)
	if err != nil {
		t.logger.DebugContext(ctx, "balance check failed", slog.String("position", p.Key().String()), slog.String("error", err.Error()))
		return
	}
	size := roundDown2(math.Min(balance, p.Shares))
	if size < dustShares {
		return
	}
	res, err := t.client.PlaceOrder(ctx, domain.OrderRequest{
		TokenID: p.TokenID,
		NegRisk: t.cfg.NegRisk,
		Side:    domain.OrderSideSell,
		Type:    domain.OrderTypeGTC,
		Price:   p.SellPrice,
		Size:    size,
	})
	if err == nil && !res.Success {
		err = fmt.Errorf("%w: %s", domain.ErrOrderRejected, res.Message)
	}
	if err != nil {
		next, ok := t.update(ctx, p, func(q *domain.Position) { q.SellAttempts++ })
		if !ok {
			return
		}
		if rerr := t.client.RefreshAllowance(ctx, p.TokenID); rerr != nil {
			t.logger.DebugContext(ctx, "allowance refresh failed", slog.String("error", rerr.Error()))
		}
		if logAttempt(next.SellAttempts) {
			t.logger.WarnContext(ctx, "sell order failed",
				slog.String("token", p.TokenType.DisplayName()),
				slog.Int("attempt", next.SellAttempts),
				slog.String("error", err.Error()),
			)
			t.emit(ctx, domain.EventSellFailed, next, domain.TradingEvent{
				Price:  p.SellPrice,
				Shares: size,
				Detail: fmt.Sprintf("attempt %d: %v", next.SellAttempts, err),
			})
		}
		return
	}
	next, ok := t.transition(ctx, p, domain.StateSellPending, func(q *domain.Position) {
		q.SellOrderID = res.OrderID
		q.Shares = size
	})
	if !ok {
		return
	}
	t.logger.InfoContext(ctx, "sell order placed",
		slog.String("token", next.TokenType.DisplayName()),
		slog.String("order_id", res.OrderID),
		slog.Float64("price", next.SellPrice),
		slog.Float64("shares", size),
	)
	t.emit(ctx, domain.EventSellOrder, next, domain.TradingEvent{
		Price:   next.SellPrice,
		Shares:  size,
		OrderID: res.OrderID,
		Status:  string(res.Status),
	})
}

// stopLoss dumps the position at the bid when it has fallen to the
// stop-loss price. It reports whether the position was closed.
func (t *Trader) stopLoss(ctx context.Context, p domain.Position) bool {
	if t.cfg.StopLossPrice <= 0 {
		return false
	}
	q, err := t.client.Quote(ctx, p.TokenID)
	if err != nil || q.Bid <= 0 || q.Bid > t.cfg.StopLossPrice {
		return false
	}
	if p.SellOrderID != "" {
		if err := t.client.CancelOrder(ctx, p.SellOrderID); err != nil {
			t.logger.WarnContext(ctx, "cancel before stop-loss failed", slog.String("order_id", p.SellOrderID), slog.String("error", err.Error()))
		}
	}
	balance, err := t.client.Balance(ctx, p.TokenID)
	if err != nil {
		return false
	}
	size := roundDown2(math.Min(balance, p.Shares))
	if size < dustShares {
		return false
	}
	res, err := t.client.PlaceOrder(ctx, domain.OrderRequest{
		TokenID: p.TokenID,
		NegRisk: t.cfg.NegRisk,
		Side:    domain.OrderSideSell,
		Type:    domain.OrderTypeFAK,
		Price:   q.Bid,
		Size:    size,
	})
	if err != nil || !res.Success {
		t.logger.WarnContext(ctx, "stop-loss sell failed", slog.String("token", p.TokenType.DisplayName()))
		return false
	}
	pnl := size*q.Bid - p.Cost
	next, ok := t.transition(ctx, p, domain.StateSold, func(pos *domain.Position) {
		pos.SellOrderID = res.OrderID
		pos.RealizedPnL += pnl
		pos.Note = "stop-loss"
	})
	if !ok {
		return false
	}
	t.logger.WarnContext(ctx, "stop-loss triggered",
		slog.String("token", next.TokenType.DisplayName()),
		slog.Float64("bid", q.Bid),
		slog.Float64("pnl", pnl),
	)
	t.emit(ctx, domain.EventStopLoss, next, domain.TradingEvent{
		Price:   q.Bid,
		Shares:  size,
		PnL:     pnl,
		OrderID: res.OrderID,
	})
	return true
}
