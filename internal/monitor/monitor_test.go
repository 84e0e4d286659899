package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

const period = int64(1_700_000_100)

type fakeQuotes struct {
	mu     sync.Mutex
	quotes map[string]domain.Quote
	errs   map[string]error
	calls  map[string]int
}

func (f *fakeQuotes) Quote(_ context.Context, tokenID string) (domain.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[tokenID]++
	if err := f.errs[tokenID]; err != nil {
		return domain.Quote{}, err
	}
	q, ok := f.quotes[tokenID]
	if !ok {
		return domain.Quote{}, fmt.Errorf("book: %w", domain.ErrNotFound)
	}
	return q, nil
}

type fakeResolver struct {
	calls int
}

func (r *fakeResolver) MarketByCondition(_ context.Context, conditionID string) (domain.Market, error) {
	r.calls++
	return domain.Market{ConditionID: conditionID, UpTokenID: "eth-up", DownTokenID: "eth-down"}, nil
}

type lines struct {
	got []string
}

func (l *lines) Record(p int64, line string) { l.got = append(l.got, fmt.Sprintf("%d %s", p, line)) }

func newTestMonitor(q domain.QuoteSource, r domain.TokenResolver, opts ...Option) *Monitor {
	m := New(Config{
		Period: domain.Period15m,
		Assets: []domain.Asset{domain.AssetETH, domain.AssetSOL},
	}, q, r, slog.New(slog.NewTextHandler(io.Discard, nil)), opts...)
	m.now = func() time.Time { return time.Unix(period+90, 0) }
	return m
}

func testSet() domain.MarketSet {
	return domain.MarketSet{
		Period: period,
		Markets: map[domain.Asset]domain.Market{
			domain.AssetBTC: {
				ConditionID: "0xbtc", Asset: domain.AssetBTC, Active: true,
				UpTokenID: "btc-up", DownTokenID: "btc-down", PeriodStart: period,
			},
			domain.AssetETH: {
				ConditionID: "0xeth", Asset: domain.AssetETH, Active: true, PeriodStart: period,
			},
			domain.AssetSOL: domain.FallbackMarket(domain.AssetSOL),
		},
	}
}

func TestPollWithFallbackAsset(t *testing.T) {
	q := &fakeQuotes{
		quotes: map[string]domain.Quote{
			"btc-up":   {TokenID: "btc-up", Bid: 0.60, Ask: 0.62},
			"btc-down": {TokenID: "btc-down", Bid: 0.37, Ask: 0.39},
			"eth-up":   {TokenID: "eth-up", Bid: 0.50, Ask: 0.51},
		},
		errs: map[string]error{"eth-down": fmt.Errorf("book: %w", domain.ErrMalformedQuote)},
	}
	r := &fakeResolver{}
	hist := &lines{}
	m := newTestMonitor(q, r, WithHistory(hist))
	if err := m.ReplaceMarkets(testSet()); err != nil {
		t.Fatalf("ReplaceMarkets: %v", err)
	}

	snap, err := m.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if snap.PeriodTimestamp != period || snap.ElapsedSeconds != 90 || snap.RemainingSeconds != 810 {
		t.Fatalf("got period=%d elapsed=%d remaining=%d", snap.PeriodTimestamp, snap.ElapsedSeconds, snap.RemainingSeconds)
	}
	btc := snap.Markets[domain.AssetBTC]
	if btc.Up == nil || btc.Up.Ask != 0.62 || btc.Down == nil {
		t.Fatalf("btc legs: got up=%v down=%v", btc.Up, btc.Down)
	}
	eth := snap.Markets[domain.AssetETH]
	if eth.Up == nil || eth.Down != nil {
		t.Fatalf("eth legs: got up=%v down=%v want up set, down nil", eth.Up, eth.Down)
	}
	if eth.Market.UpTokenID != "eth-up" {
		t.Fatalf("eth tokens not resolved: %+v", eth.Market)
	}
	sol := snap.Markets[domain.AssetSOL]
	if !sol.Market.Fallback || sol.Up != nil || sol.Down != nil {
		t.Fatalf("sol: got %+v", sol)
	}
	if _, ok := snap.Markets[domain.AssetXRP]; ok {
		t.Fatal("disabled XRP should not be in the snapshot")
	}

	if _, err := m.Poll(context.Background()); err != nil {
		t.Fatalf("second Poll: %v", err)
	}
	if r.calls != 1 {
		t.Fatalf("got resolver calls=%d want 1", r.calls)
	}
	if len(hist.got) != 2 || !strings.Contains(hist.got[0], "BTC: U$0.60/$0.62 D$0.37/$0.39") ||
		!strings.Contains(hist.got[0], "SOL: UN/A DN/A") || !strings.HasSuffix(hist.got[0], "13m 30s") {
		t.Fatalf("got history %q", hist.got)
	}
}

func TestPollTransientErrorFails(t *testing.T) {
	q := &fakeQuotes{
		quotes: map[string]domain.Quote{"btc-up": {TokenID: "btc-up", Bid: 0.6, Ask: 0.62}},
		errs:   map[string]error{"btc-down": errors.New("connection reset")},
	}
	m := newTestMonitor(q, &fakeResolver{})
	if err := m.ReplaceMarkets(testSet()); err != nil {
		t.Fatalf("ReplaceMarkets: %v", err)
	}
	if _, err := m.Poll(context.Background()); err == nil {
		t.Fatal("expected poll error on transient quote failure")
	}
}

func TestPollSkipsEndedMarkets(t *testing.T) {
	q := &fakeQuotes{}
	m := newTestMonitor(q, &fakeResolver{})
	m.now = func() time.Time { return time.Unix(period+900, 0) }
	if err := m.ReplaceMarkets(testSet()); err != nil {
		t.Fatalf("ReplaceMarkets: %v", err)
	}
	snap, err := m.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if !snap.Expired() {
		t.Fatalf("got remaining=%d want 0", snap.RemainingSeconds)
	}
	if len(q.calls) != 0 {
		t.Fatalf("ended market was quoted: %v", q.calls)
	}
}

func TestReplaceMarkets(t *testing.T) {
	m := newTestMonitor(&fakeQuotes{}, nil)
	if err := m.ReplaceMarkets(testSet()); err != nil {
		t.Fatalf("ReplaceMarkets: %v", err)
	}

	t.Run("older period rejected", func(t *testing.T) {
		old := testSet()
		old.Period = period - 900
		if err := m.ReplaceMarkets(old); !errors.Is(err, domain.ErrStalePeriod) {
			t.Fatalf("got err=%v want ErrStalePeriod", err)
		}
		if got := m.Markets().Period; got != period {
			t.Fatalf("got period=%d want %d", got, period)
		}
	})
	t.Run("duplicate condition rejected", func(t *testing.T) {
		dup := testSet()
		dup.Period = period + 900
		eth := dup.Markets[domain.AssetETH]
		eth.ConditionID = "0xbtc"
		dup.Markets[domain.AssetETH] = eth
		if err := m.ReplaceMarkets(dup); !errors.Is(err, domain.ErrDuplicateCondition) {
			t.Fatalf("got err=%v want ErrDuplicateCondition", err)
		}
	})
}

func TestSubscribeDeliversSnapshots(t *testing.T) {
	q := &fakeQuotes{quotes: map[string]domain.Quote{
		"btc-up":   {TokenID: "btc-up", Bid: 0.6, Ask: 0.62},
		"btc-down": {TokenID: "btc-down", Bid: 0.3, Ask: 0.4},
	}}
	m := newTestMonitor(q, &fakeResolver{})
	if err := m.ReplaceMarkets(testSet()); err != nil {
		t.Fatalf("ReplaceMarkets: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan domain.Snapshot, 4)
	done := make(chan error, 1)
	go func() {
		done <- m.Subscribe(ctx, 5*time.Millisecond, func(_ context.Context, s domain.Snapshot) {
			select {
			case got <- s:
			default:
			}
		})
	}()

	select {
	case s := <-got:
		if s.PeriodTimestamp != period {
			t.Fatalf("got period=%d want %d", s.PeriodTimestamp, period)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot delivered")
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("got err=%v want context.Canceled", err)
	}
}
