package trader

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// ExecuteBuy spends FixedTradeAmount USD on a fill-or-kill market buy.
func (t *Trader) ExecuteBuy(ctx context.Context, opp domain.BuyOpportunity) error {
	amount := decimal.NewFromFloat(t.cfg.FixedTradeAmount).RoundDown(2)
	if !amount.IsPositive() {
		return fmt.Errorf("trader: buy: %w: fixed trade amount %v", domain.ErrInvalidOrder, t.cfg.FixedTradeAmount)
	}
	price := decimal.NewFromFloat(opp.Price)
	if !price.IsPositive() {
		return fmt.Errorf("trader: buy: %w: price %v", domain.ErrInvalidOrder, opp.Price)
	}
	req := domain.OrderRequest{
		TokenID: opp.TokenID,
		NegRisk: t.cfg.NegRisk,
		Side:    domain.OrderSideBuy,
		Type:    domain.OrderTypeFOK,
		Price:   opp.Price,
		Amount:  amount.InexactFloat64(),
	}
	shares := amount.Div(price).RoundDown(2).InexactFloat64()
	return t.buy(ctx, opp, req, domain.OrderKindMarket, shares, amount.InexactFloat64())
}

// ExecuteLimitBuy buys shares at the opportunity price. With useMarketOrder
// it submits a FOK for the equivalent USD amount instead of a resting order.
func (t *Trader) ExecuteLimitBuy(ctx context.Context, opp domain.BuyOpportunity, useMarketOrder bool, shares float64) error {
	size := decimal.NewFromFloat(shares).RoundDown(2)
	if !size.IsPositive() {
		return fmt.Errorf("trader: limit buy: %w: shares %v", domain.ErrInvalidOrder, shares)
	}
	cost := size.Mul(decimal.NewFromFloat(opp.Price)).RoundUp(2)
	req := domain.OrderRequest{
		TokenID: opp.TokenID,
		NegRisk: t.cfg.NegRisk,
		Side:    domain.OrderSideBuy,
		Price:   opp.Price,
	}
	kind := domain.OrderKindLimit
	if useMarketOrder {
		req.Type = domain.OrderTypeFOK
		req.Amount = cost.InexactFloat64()
		kind = domain.OrderKindMarket
	} else {
		req.Type = domain.OrderTypeGTC
		req.Size = size.InexactFloat64()
	}
	return t.buy(ctx, opp, req, kind, size.InexactFloat64(), cost.InexactFloat64())
}

func (t *Trader) buy(ctx context.Context, opp domain.BuyOpportunity, req domain.OrderRequest, kind domain.OrderKind, shares, cost float64) error {
	if time.Duration(opp.RemainingSeconds)*time.Second < t.cfg.MinTimeRemaining {
		return fmt.Errorf("trader: buy %s: %w (%ds left)", opp.TokenType.DisplayName(), domain.ErrTooLate, opp.RemainingSeconds)
	}
	key := domain.PositionKey{Period: opp.PeriodTimestamp, TokenType: opp.TokenType}
	if err := t.book.reserve(key); err != nil {
		return fmt.Errorf("trader: buy: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			t.book.release(key)
		}
	}()

	if t.locks != nil {
		unlock, err := t.locks.Acquire(ctx, "buy:"+key.String(), t.cfg.LockTTL)
		if err != nil {
			return fmt.Errorf("trader: buy lock %s: %w", key, err)
		}
		defer unlock()
	}

	baseline, err := t.client.Balance(ctx, opp.TokenID)
	if err != nil {
		t.logger.WarnContext(ctx, "baseline balance unavailable, assuming zero",
			slog.String("token", opp.TokenType.DisplayName()),
			slog.String("error", err.Error()),
		)
		baseline = 0
	}

	res, err := t.client.PlaceOrder(ctx, req)
	if err == nil && !res.Success {
		err = fmt.Errorf("%w: %s", domain.ErrOrderRejected, res.Message)
	}
	if err != nil {
		t.mu.Lock()
		t.buyFailures[key]++
		failures := t.buyFailures[key]
		t.mu.Unlock()
		return fmt.Errorf("trader: place buy %s (failure %d): %w", key, failures, err)
	}

	now := t.now()
	p := domain.Position{
		ID:              uuid.NewString(),
		PeriodTimestamp: opp.PeriodTimestamp,
		TokenType:       opp.TokenType,
		TokenID:         opp.TokenID,
		ConditionID:     opp.ConditionID,
		Kind:            kind,
		Shares:          shares,
		EntryPrice:      opp.Price,
		Cost:            cost,
		SellPrice:       t.cfg.SellPrice,
		BuyOrderID:      res.OrderID,
		BaselineBalance: baseline,
		HoldToClosure:   t.cfg.HoldToClosure,
		State:           domain.StatePending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	t.book.commit(p)
	committed = true

	t.logger.InfoContext(ctx, "buy order accepted",
		slog.String("token", opp.TokenType.DisplayName()),
		slog.Int64("period", opp.PeriodTimestamp),
		slog.String("order_id", res.OrderID),
		slog.String("kind", string(kind)),
		slog.Float64("price", opp.Price),
		slog.Float64("shares", shares),
	)
	t.emit(ctx, domain.EventBuyOrder, p, domain.TradingEvent{
		Price:   opp.Price,
		Shares:  shares,
		Amount:  cost,
		OrderID: res.OrderID,
		Status:  string(res.Status),
	})
	t.persist(ctx, p)
	return nil
}
