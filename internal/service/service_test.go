package service

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type memBus struct {
	mu        sync.Mutex
	published map[string][][]byte
	streamed  map[string][][]byte
}

func newMemBus() *memBus {
	return &memBus{published: map[string][][]byte{}, streamed: map[string][][]byte{}}
}

func (b *memBus) Publish(_ context.Context, ch string, p []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published[ch] = append(b.published[ch], p)
	return nil
}

func (b *memBus) Subscribe(context.Context, string) (<-chan []byte, error) { return nil, nil }

func (b *memBus) StreamAppend(_ context.Context, s string, p []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streamed[s] = append(b.streamed[s], p)
	return nil
}

func (b *memBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

type memEvents struct {
	mu     sync.Mutex
	events []domain.TradingEvent
}

func (m *memEvents) Insert(_ context.Context, ev domain.TradingEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *memEvents) ListSince(context.Context, time.Time, int) ([]domain.EventRecord, error) {
	return nil, nil
}

type onlyKind struct {
	kind domain.EventKind
	mu   sync.Mutex
	got  []domain.TradingEvent
}

func (o *onlyKind) Enabled(k domain.EventKind) bool { return k == o.kind }

func (o *onlyKind) NotifyEvent(_ context.Context, ev domain.TradingEvent) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.got = append(o.got, ev)
	return nil
}

func TestTradeLogFansOut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "history.log")
	bus := newMemBus()
	store := &memEvents{}
	notifier := &onlyKind{kind: domain.EventSellFilled}
	l, err := NewTradeLog(path, testLogger, WithEventBus(bus), WithEventStore(store), WithNotifier(notifier))
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	at := time.Date(2024, 1, 2, 13, 5, 0, 0, time.UTC)
	l.Record(context.Background(), domain.TradingEvent{Kind: domain.EventBuyOrder, Time: at, Market: "BTC Up", Period: 1704200400, Price: 0.62})
	l.Record(context.Background(), domain.TradingEvent{Kind: domain.EventSellFilled, Time: at, Market: "BTC Up", PnL: 5.9})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l.Run(ctx) // drains the queue

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines: %q", len(lines), data)
	}
	want := "[2024-01-02T13:05:00Z] BUY ORDER | Market: BTC Up | Period: 1704200400 | Price: $0.620000"
	if lines[0] != want {
		t.Fatalf("got=%q want=%q", lines[0], want)
	}

	if n := len(bus.published[EventsChannel]); n != 2 {
		t.Fatalf("got %d published want 2", n)
	}
	if n := len(bus.streamed[EventsChannel]); n != 2 {
		t.Fatalf("got %d streamed want 2", n)
	}
	var payload map[string]any
	if err := json.Unmarshal(bus.published[EventsChannel][0], &payload); err != nil {
		t.Fatal(err)
	}
	if payload["kind"] != "BUY ORDER" || payload["line"] != want {
		t.Fatalf("got payload %v", payload)
	}
	if len(store.events) != 2 {
		t.Fatalf("got %d stored events want 2", len(store.events))
	}
	if len(notifier.got) != 1 || notifier.got[0].Kind != domain.EventSellFilled {
		t.Fatalf("got notified %v", notifier.got)
	}
}

func TestTradeLogWithoutSinks(t *testing.T) {
	l, err := NewTradeLog("", testLogger)
	if err != nil {
		t.Fatal(err)
	}
	l.Record(context.Background(), domain.TradingEvent{Kind: domain.EventMerge})
	if len(l.queue) != 0 {
		t.Fatal("events must not queue without remote sinks")
	}
}

type recordingHub struct {
	kinds    []domain.EventKind
	payloads [][]byte
}

func (h *recordingHub) Broadcast(kind domain.EventKind, payload []byte) {
	h.kinds = append(h.kinds, kind)
	h.payloads = append(h.payloads, payload)
}

func TestTradeLogBroadcastsWithoutBus(t *testing.T) {
	hub := &recordingHub{}
	l, err := NewTradeLog("", testLogger, WithBroadcaster(hub))
	if err != nil {
		t.Fatal(err)
	}
	l.Record(context.Background(), domain.TradingEvent{Kind: domain.EventRedemptionSuccess, Market: "ETH Down", Period: 1704200400})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l.Run(ctx)

	if len(hub.kinds) != 1 || hub.kinds[0] != domain.EventRedemptionSuccess {
		t.Fatalf("got kinds=%v want=[%s]", hub.kinds, domain.EventRedemptionSuccess)
	}
	var payload map[string]any
	if err := json.Unmarshal(hub.payloads[0], &payload); err != nil {
		t.Fatal(err)
	}
	if payload["market"] != "ETH Down" {
		t.Fatalf("got payload %v", payload)
	}
}

func TestPriceHistory(t *testing.T) {
	dir := t.TempDir()
	h, err := NewPriceHistory(dir, testLogger)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()
	h.now = func() time.Time { return time.Date(2024, 1, 2, 13, 0, 1, 0, time.UTC) }

	h.Record(100, "BTC: U$0.50/$0.52 D$0.47/$0.49 | 14m 59s")
	h.Record(100, "BTC: U$0.51/$0.53 D$0.46/$0.48 | 14m 58s")
	h.Record(200, "BTC: U$0.40/$0.42 D$0.57/$0.59 | 14m 59s")

	lines, err := h.Lines(100)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 2 || lines[0] != "[2024-01-02T13:00:01Z] BTC: U$0.50/$0.52 D$0.47/$0.49 | 14m 59s" {
		t.Fatalf("got %q", lines)
	}
	if _, err := os.Stat(filepath.Join(dir, "market_200_prices.txt")); err != nil {
		t.Fatalf("period 200 file: %v", err)
	}
	if none, err := h.Lines(300); err != nil || none != nil {
		t.Fatalf("got lines=%v err=%v for a missing period", none, err)
	}
}

type archiveCall struct {
	period    int64
	positions int
	lines     int
}

type memArchiver struct{ calls []archiveCall }

func (m *memArchiver) ArchivePeriod(_ context.Context, period int64, ps []domain.Position, lines []string) error {
	m.calls = append(m.calls, archiveCall{period, len(ps), len(lines)})
	return nil
}

func TestArchiveServiceGroupsByPeriod(t *testing.T) {
	h, err := NewPriceHistory(t.TempDir(), testLogger)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()
	h.Record(900, "a")
	h.Record(1800, "b")
	h.Record(1800, "c")

	arch := &memArchiver{}
	s := NewArchiveService(arch, h, testLogger)
	ps := []domain.Position{{ID: "1", PeriodTimestamp: 900}, {ID: "2", PeriodTimestamp: 900}}
	if err := s.Archive(context.Background(), 1800, ps); err != nil {
		t.Fatal(err)
	}
	want := []archiveCall{{900, 2, 1}, {1800, 0, 2}}
	if len(arch.calls) != len(want) {
		t.Fatalf("got %+v want %+v", arch.calls, want)
	}
	for i := range want {
		if arch.calls[i] != want[i] {
			t.Fatalf("got %+v want %+v", arch.calls, want)
		}
	}
}
