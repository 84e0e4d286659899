package trader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// SyncTradesWithPortfolio restores open positions from the journal and
// reconciles each against the wallet's current token balance. A position
// whose balance cannot be read is restored as journaled and left to the
// pending and closure checks. Without a journal it is a no-op. It returns
// the number of positions restored and the balance errors met on the way.
func (t *Trader) SyncTradesWithPortfolio(ctx context.Context) (int, error) {
	if t.journal == nil {
		return 0, nil
	}
	stored, err := t.journal.ListOpen(ctx)
	if err != nil {
		return 0, fmt.Errorf("trader: sync: load journal: %w", err)
	}
	var (
		restored int
		errs     []error
	)
	for _, p := range stored {
		if p.State.Terminal() {
			continue
		}
		p.Restored = true
		balance, err := t.client.Balance(ctx, p.TokenID)
		if err != nil {
			errs = append(errs, fmt.Errorf("trader: sync: balance %s: %w", p.Key(), err))
			if t.book.restore(p) {
				restored++
				t.logger.WarnContext(ctx, "position restored without reconciliation",
					slog.String("position", p.Key().String()),
					slog.String("state", string(p.State)),
					slog.String("error", err.Error()),
				)
			}
			continue
		}
		p = t.reconcile(p, balance)
		if !t.book.restore(p) {
			t.logger.WarnContext(ctx, "journal position conflicts with a live one, skipped", slog.String("position", p.Key().String()))
			continue
		}
		restored++
		t.persist(ctx, p)
		t.logger.InfoContext(ctx, "position restored",
			slog.String("token", p.TokenType.DisplayName()),
			slog.Int64("period", p.PeriodTimestamp),
			slog.String("state", string(p.State)),
			slog.Float64("shares", p.Shares),
		)
		t.emit(ctx, domain.EventReconciled, p, domain.TradingEvent{
			Shares: p.Shares,
			Status: string(p.State),
			Detail: fmt.Sprintf("wallet balance %.2f", balance),
		})
	}
	return restored, errors.Join(errs...)
}

// reconcile aligns a journal position with the wallet.
func (t *Trader) reconcile(p domain.Position, balance float64) domain.Position {
	now := t.now()
	if balance < dustShares {
		to := domain.StateAbandoned
		if p.State == domain.StateSellPending {
			to = domain.StateSold
			p.RealizedPnL = p.Shares*p.SellPrice - p.Cost
		}
		p.Note = "no balance at restart"
		_ = p.Transition(to, now)
		return p
	}
	p.Shares = roundDown2(balance)
	if p.State == domain.StatePending {
		_ = p.Transition(domain.StateFilled, now)
	}
	p.UpdatedAt = now
	return p
}
