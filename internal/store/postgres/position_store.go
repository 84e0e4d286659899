package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// PositionStore implements domain.PositionJournal.
type PositionStore struct {
	pool *pgxpool.Pool
}

func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionCols = `id, period_ts, token_type, token_id, condition_id, kind,
	shares, entry_price, cost, sell_price, buy_order_id, sell_order_id,
	baseline_balance, hold_to_closure, state, sell_attempts, redemption_attempts,
	realized_pnl, note, created_at, filled_at, sell_placed_at, closed_at, updated_at`

// Upsert writes the full position row.
func (s *PositionStore) Upsert(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (` + positionCols + `) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)
		ON CONFLICT (id) DO UPDATE SET
			shares              = EXCLUDED.shares,
			cost                = EXCLUDED.cost,
			sell_price          = EXCLUDED.sell_price,
			sell_order_id       = EXCLUDED.sell_order_id,
			state               = EXCLUDED.state,
			sell_attempts       = EXCLUDED.sell_attempts,
			redemption_attempts = EXCLUDED.redemption_attempts,
			realized_pnl        = EXCLUDED.realized_pnl,
			note                = EXCLUDED.note,
			filled_at           = EXCLUDED.filled_at,
			sell_placed_at      = EXCLUDED.sell_placed_at,
			closed_at           = EXCLUDED.closed_at,
			updated_at          = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.PeriodTimestamp, p.TokenType.Key(), p.TokenID, p.ConditionID, string(p.Kind),
		p.Shares, p.EntryPrice, p.Cost, p.SellPrice, p.BuyOrderID, p.SellOrderID,
		p.BaselineBalance, p.HoldToClosure, string(p.State), p.SellAttempts, p.RedemptionAttempts,
		p.RealizedPnL, p.Note, p.CreatedAt, nullTime(p.FilledAt), nullTime(p.SellPlacedAt), nullTime(p.ClosedAt), p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert position %s: %w", p.ID, err)
	}
	return nil
}

// ListOpen returns every non-terminal position, oldest first.
func (s *PositionStore) ListOpen(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionCols+` FROM positions
		 WHERE state IN ('pending', 'filled', 'sell_pending')
		 ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open positions: %w", err)
	}
	return collectPositions(rows)
}

// ListPeriod returns every position of one period.
func (s *PositionStore) ListPeriod(ctx context.Context, period int64) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionCols+` FROM positions WHERE period_ts = $1 ORDER BY created_at`, period)
	if err != nil {
		return nil, fmt.Errorf("postgres: list period %d: %w", period, err)
	}
	return collectPositions(rows)
}

func collectPositions(rows pgx.Rows) ([]domain.Position, error) {
	defer rows.Close()
	var out []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: positions rows: %w", err)
	}
	return out, nil
}

func scanPosition(row pgx.Row) (domain.Position, error) {
	var (
		p                          domain.Position
		tokenType, kind, state     string
		filledAt, sellAt, closedAt *time.Time
	)
	err := row.Scan(
		&p.ID, &p.PeriodTimestamp, &tokenType, &p.TokenID, &p.ConditionID, &kind,
		&p.Shares, &p.EntryPrice, &p.Cost, &p.SellPrice, &p.BuyOrderID, &p.SellOrderID,
		&p.BaselineBalance, &p.HoldToClosure, &state, &p.SellAttempts, &p.RedemptionAttempts,
		&p.RealizedPnL, &p.Note, &p.CreatedAt, &filledAt, &sellAt, &closedAt, &p.UpdatedAt,
	)
	if err != nil {
		return domain.Position{}, fmt.Errorf("postgres: scan position: %w", err)
	}
	tt, err := domain.ParseTokenType(tokenType)
	if err != nil {
		return domain.Position{}, fmt.Errorf("postgres: position %s: %w", p.ID, err)
	}
	p.TokenType = tt
	p.Kind = domain.OrderKind(kind)
	p.State = domain.PositionState(state)
	p.FilledAt = derefTime(filledAt)
	p.SellPlacedAt = derefTime(sellAt)
	p.ClosedAt = derefTime(closedAt)
	return p, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

var _ domain.PositionJournal = (*PositionStore)(nil)
