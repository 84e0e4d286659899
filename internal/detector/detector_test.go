package detector

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

const period = int64(1_700_000_100)

func snapshot(p, elapsed, remaining int64, btcUpAsk float64) domain.Snapshot {
	btc := domain.Market{
		ConditionID: "0xbtc", Asset: domain.AssetBTC, Active: true,
		UpTokenID: "btc-up", DownTokenID: "btc-down", PeriodStart: p,
	}
	return domain.Snapshot{
		PeriodTimestamp:  p,
		ElapsedSeconds:   elapsed,
		RemainingSeconds: remaining,
		Markets: map[domain.Asset]domain.MarketQuote{
			domain.AssetBTC: {
				Market: btc,
				Up:     &domain.Quote{TokenID: "btc-up", Bid: btcUpAsk - 0.02, Ask: btcUpAsk},
				Down:   &domain.Quote{TokenID: "btc-down", Bid: 0.30, Ask: 0.38},
			},
			domain.AssetSOL: {Market: domain.FallbackMarket(domain.AssetSOL)},
		},
	}
}

func newReactive() *Reactive {
	return NewReactive(ReactiveConfig{
		TriggerPrice:     0.60,
		MaxBuyPrice:      0.95,
		MinElapsed:       time.Minute,
		MinTimeRemaining: 30 * time.Second,
	}, testLogger)
}

func TestReactiveFiresOncePerPeriod(t *testing.T) {
	d := newReactive()

	got := d.Detect(snapshot(period, 90, 600, 0.62))
	if len(got) != 1 {
		t.Fatalf("got %d opportunities want 1: %+v", len(got), got)
	}
	opp := got[0]
	if opp.TokenType != domain.BTCUp || opp.TokenID != "btc-up" || opp.Price != 0.62 || !opp.UseMarketOrder {
		t.Fatalf("got %+v", opp)
	}
	if opp.PeriodTimestamp != period || opp.ElapsedSeconds != 90 || opp.RemainingSeconds != 600 {
		t.Fatalf("got timing %+v", opp)
	}

	if again := d.Detect(snapshot(period, 95, 595, 0.62)); len(again) != 0 {
		t.Fatalf("second detect in same period: got %+v want none", again)
	}

	t.Run("reset allows refire in new period", func(t *testing.T) {
		d.ResetPeriod()
		next := d.Detect(snapshot(period+900, 90, 600, 0.62))
		if len(next) != 1 || next[0].PeriodTimestamp != period+900 {
			t.Fatalf("got %+v want one opportunity in new period", next)
		}
	})
}

func TestReactiveGuards(t *testing.T) {
	tests := []struct {
		name string
		snap domain.Snapshot
	}{
		{"too early", snapshot(period, 30, 870, 0.62)},
		{"too late", snapshot(period, 880, 20, 0.62)},
		{"below trigger", snapshot(period, 90, 600, 0.55)},
		{"above ceiling", snapshot(period, 90, 600, 0.97)},
		{"expired", snapshot(period, 900, 0, 0.62)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := newReactive().Detect(tt.snap); len(got) != 0 {
				t.Fatalf("got %+v want none", got)
			}
		})
	}

	t.Run("missing quote", func(t *testing.T) {
		snap := snapshot(period, 90, 600, 0.62)
		mq := snap.Markets[domain.AssetBTC]
		mq.Up = nil
		snap.Markets[domain.AssetBTC] = mq
		if got := newReactive().Detect(snap); len(got) != 0 {
			t.Fatalf("got %+v want none", got)
		}
	})
}

func TestReactiveRearmAfterCycle(t *testing.T) {
	d := newReactive()
	d.MarkCycleCompleted(domain.BTCUp)
	d.ResetPeriod()

	if got := d.Detect(snapshot(period, 90, 600, 0.70)); len(got) != 0 {
		t.Fatalf("disarmed leg fired: %+v", got)
	}
	if got := d.Detect(snapshot(period, 100, 590, 0.50)); len(got) != 0 {
		t.Fatalf("re-arming tick fired: %+v", got)
	}
	if got := d.Detect(snapshot(period, 110, 580, 0.65)); len(got) != 1 {
		t.Fatalf("got %d opportunities after re-arm want 1", len(got))
	}
}

func TestMarketStart(t *testing.T) {
	d := NewMarketStart(MarketStartConfig{LimitPrice: 0.45, StartWindow: 2 * time.Second}, testLogger)

	if got := d.Detect(snapshot(period, 1, 899, 0.5)); len(got) != 0 {
		t.Fatalf("first observed period fired: %+v", got)
	}

	next := period + 900
	if got := d.Detect(snapshot(next, 5, 895, 0.5)); len(got) != 0 {
		t.Fatalf("outside start window fired: %+v", got)
	}

	got := d.Detect(snapshot(next, 1, 899, 0.5))
	if len(got) != 2 {
		t.Fatalf("got %d opportunities want 2 (BTC Up and Down)", len(got))
	}
	for _, o := range got {
		if o.Price != 0.45 || o.UseMarketOrder || o.PeriodTimestamp != next {
			t.Fatalf("got %+v", o)
		}
	}
	if again := d.Detect(snapshot(next, 2, 898, 0.5)); len(again) != 0 {
		t.Fatalf("second detect in same period fired: %+v", again)
	}

	d.ResetPeriod()
	if got := d.Detect(snapshot(next+900, 0, 900, 0.5)); len(got) != 2 {
		t.Fatalf("got %d opportunities after reset want 2", len(got))
	}
}
