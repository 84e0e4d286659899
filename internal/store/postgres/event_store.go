package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// EventStore implements domain.EventStore as the append-only
// trading_events table.
type EventStore struct {
	pool *pgxpool.Pool
}

func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

func (s *EventStore) Insert(ctx context.Context, ev domain.TradingEvent) error {
	const query = `
		INSERT INTO trading_events (
			kind, event_time, market, period_ts, token_id, condition_id,
			price, shares, amount, pnl, order_id, status, detail
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := s.pool.Exec(ctx, query,
		string(ev.Kind), ev.Time, ev.Market, ev.Period, ev.TokenID, ev.ConditionID,
		ev.Price, ev.Shares, ev.Amount, ev.PnL, ev.OrderID, ev.Status, ev.Detail,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert event %s: %w", ev.Kind, err)
	}
	return nil
}

// ListSince returns events at or after since, oldest first. limit <= 0
// means no limit.
func (s *EventStore) ListSince(ctx context.Context, since time.Time, limit int) ([]domain.EventRecord, error) {
	query := `SELECT id, kind, event_time, market, period_ts, token_id, condition_id,
			price, shares, amount, pnl, order_id, status, detail, created_at
		FROM trading_events WHERE event_time >= $1 ORDER BY event_time, id`
	args := []any{since}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events: %w", err)
	}
	defer rows.Close()

	var out []domain.EventRecord
	for rows.Next() {
		var (
			r    domain.EventRecord
			kind string
		)
		ev := &r.Event
		if err := rows.Scan(&r.ID, &kind, &ev.Time, &ev.Market, &ev.Period, &ev.TokenID, &ev.ConditionID,
			&ev.Price, &ev.Shares, &ev.Amount, &ev.PnL, &ev.OrderID, &ev.Status, &ev.Detail, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		ev.Kind = domain.EventKind(kind)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list events rows: %w", err)
	}
	return out, nil
}

var _ domain.EventStore = (*EventStore)(nil)
