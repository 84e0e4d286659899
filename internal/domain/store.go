package domain

import (
	"context"
	"time"
)

// PositionJournal persists every position transition so a restarted process
// can reconcile its book against wallet balances.
type PositionJournal interface {
	Upsert(ctx context.Context, pos Position) error
	ListOpen(ctx context.Context) ([]Position, error)
	ListPeriod(ctx context.Context, period int64) ([]Position, error)
}

// EventRecord is a stored trading event.
type EventRecord struct {
	ID        int64
	Event     TradingEvent
	CreatedAt time.Time
}

// EventStore persists an append-only trading event log.
type EventStore interface {
	Insert(ctx context.Context, ev TradingEvent) error
	ListSince(ctx context.Context, since time.Time, limit int) ([]EventRecord, error)
}
