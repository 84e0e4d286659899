// Package service holds the bot's record keeping: the trading event log,
// per-period price history and period archival.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

const (
	// EventsChannel is the pub/sub channel and stream name for events.
	EventsChannel = "events"

	sinkTimeout = 5 * time.Second
	queueSize   = 256
)

// EventNotifier forwards selected events to humans.
type EventNotifier interface {
	Enabled(kind domain.EventKind) bool
	NotifyEvent(ctx context.Context, ev domain.TradingEvent) error
}

// Broadcaster pushes encoded events to live listeners. It must not block.
type Broadcaster interface {
	Broadcast(kind domain.EventKind, payload []byte)
}

// TradeLog records trading events. Every event is appended to the history
// file and logged synchronously; Redis, Postgres and notifier delivery
// happen on the Run goroutine so a slow sink never stalls trading.
type TradeLog struct {
	logger *slog.Logger

	mu   sync.Mutex
	file *os.File

	bus      domain.EventBus
	store    domain.EventStore
	notifier EventNotifier
	live     Broadcaster
	queue    chan domain.TradingEvent
}

// TradeLogOption attaches an optional sink.
type TradeLogOption func(*TradeLog)

// WithEventBus publishes every event on the Redis channel and stream.
func WithEventBus(b domain.EventBus) TradeLogOption { return func(l *TradeLog) { l.bus = b } }

// WithEventStore audits every event in Postgres.
func WithEventStore(s domain.EventStore) TradeLogOption { return func(l *TradeLog) { l.store = s } }

// WithNotifier sends the kinds the notifier has enabled.
func WithNotifier(n EventNotifier) TradeLogOption { return func(l *TradeLog) { l.notifier = n } }

// WithBroadcaster pushes every event to live WebSocket clients.
func WithBroadcaster(b Broadcaster) TradeLogOption { return func(l *TradeLog) { l.live = b } }

// NewTradeLog opens (or creates) the history file at path for appending.
// An empty path disables the file.
func NewTradeLog(path string, logger *slog.Logger, opts ...TradeLogOption) (*TradeLog, error) {
	l := &TradeLog{
		logger: logger.With(slog.String("component", "trade_log")),
		queue:  make(chan domain.TradingEvent, queueSize),
	}
	if path != "" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("service: trade log dir: %w", err)
			}
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("service: open trade log: %w", err)
		}
		l.file = f
	}
	for _, o := range opts {
		o(l)
	}
	return l, nil
}

// Record implements trader.EventSink.
func (l *TradeLog) Record(ctx context.Context, ev domain.TradingEvent) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	line := ev.Line()

	l.mu.Lock()
	if l.file != nil {
		if _, err := l.file.WriteString(line + "\n"); err != nil {
			l.logger.WarnContext(ctx, "history write failed", slog.String("error", err.Error()))
		}
	}
	l.mu.Unlock()

	l.logger.InfoContext(ctx, string(ev.Kind), slog.String("event", line))

	if !l.remote(ev.Kind) {
		return
	}
	select {
	case l.queue <- ev:
	default:
		l.logger.WarnContext(ctx, "event queue full, dropping remote delivery", slog.String("kind", string(ev.Kind)))
	}
}

func (l *TradeLog) remote(kind domain.EventKind) bool {
	return l.bus != nil || l.store != nil || l.live != nil || (l.notifier != nil && l.notifier.Enabled(kind))
}

// Run delivers queued events until ctx is cancelled, then drains what is
// left with a fresh deadline.
func (l *TradeLog) Run(ctx context.Context) error {
	for {
		select {
		case ev := <-l.queue:
			l.deliver(ctx, ev)
		case <-ctx.Done():
			l.drain()
			return ctx.Err()
		}
	}
}

func (l *TradeLog) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*sinkTimeout)
	defer cancel()
	for {
		select {
		case ev := <-l.queue:
			l.deliver(ctx, ev)
		default:
			return
		}
	}
}

func (l *TradeLog) deliver(ctx context.Context, ev domain.TradingEvent) {
	ctx, cancel := context.WithTimeout(ctx, sinkTimeout)
	defer cancel()

	if l.bus != nil || l.live != nil {
		payload, err := json.Marshal(newEventPayload(ev))
		if err != nil {
			l.sinkFailed(ctx, "encode", err)
		} else {
			l.publish(ctx, ev.Kind, payload)
		}
	}
	if l.store != nil {
		if err := l.store.Insert(ctx, ev); err != nil {
			l.sinkFailed(ctx, "postgres", err)
		}
	}
	if l.notifier != nil && l.notifier.Enabled(ev.Kind) {
		if err := l.notifier.NotifyEvent(ctx, ev); err != nil {
			l.sinkFailed(ctx, "notify", err)
		}
	}
}

func (l *TradeLog) publish(ctx context.Context, kind domain.EventKind, payload []byte) {
	if l.live != nil {
		l.live.Broadcast(kind, payload)
	}
	if l.bus == nil {
		return
	}
	if err := l.bus.Publish(ctx, EventsChannel, payload); err != nil {
		l.sinkFailed(ctx, "publish", err)
	}
	if err := l.bus.StreamAppend(ctx, EventsChannel, payload); err != nil {
		l.sinkFailed(ctx, "stream", err)
	}
}

func (l *TradeLog) sinkFailed(ctx context.Context, sink string, err error) {
	l.logger.WarnContext(ctx, "event sink failed", slog.String("sink", sink), slog.String("error", err.Error()))
}

// Close closes the history file.
func (l *TradeLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// eventPayload is the JSON published to Redis and live listeners.
type eventPayload struct {
	Kind        string    `json:"kind"`
	Time        time.Time `json:"time"`
	Market      string    `json:"market,omitempty"`
	Period      int64     `json:"period,omitempty"`
	TokenID     string    `json:"token_id,omitempty"`
	ConditionID string    `json:"condition_id,omitempty"`
	Price       float64   `json:"price,omitempty"`
	Shares      float64   `json:"shares,omitempty"`
	Amount      float64   `json:"amount,omitempty"`
	PnL         float64   `json:"pnl,omitempty"`
	OrderID     string    `json:"order_id,omitempty"`
	Status      string    `json:"status,omitempty"`
	Detail      string    `json:"detail,omitempty"`
	Line        string    `json:"line"`
}

func newEventPayload(ev domain.TradingEvent) eventPayload {
	return eventPayload{
		Kind:        string(ev.Kind),
		Time:        ev.Time.UTC(),
		Market:      ev.Market,
		Period:      ev.Period,
		TokenID:     ev.TokenID,
		ConditionID: ev.ConditionID,
		Price:       ev.Price,
		Shares:      ev.Shares,
		Amount:      ev.Amount,
		PnL:         ev.PnL,
		OrderID:     ev.OrderID,
		Status:      ev.Status,
		Detail:      ev.Detail,
		Line:        ev.Line(),
	}
}
