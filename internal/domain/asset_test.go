package domain

import (
	"errors"
	"testing"
	"time"
)

func TestTokenTypeProjections(t *testing.T) {
	for _, tt := range TokenTypes {
		t.Run(tt.Key(), func(t *testing.T) {
			back, err := NewTokenType(tt.Asset(), tt.Direction())
			if err != nil {
				t.Fatalf("NewTokenType: %v", err)
			}
			if back != tt {
				t.Fatalf("round trip got=%v want=%v", back, tt)
			}
			opp := tt.Opposite()
			if opp.Asset() != tt.Asset() || opp.Direction() != tt.Direction().Opposite() {
				t.Fatalf("opposite of %v got=%v", tt, opp)
			}
			if opp.Opposite() != tt {
				t.Fatalf("double opposite got=%v want=%v", opp.Opposite(), tt)
			}
			parsed, err := ParseTokenType(tt.DisplayName())
			if err != nil || parsed != tt {
				t.Fatalf("ParseTokenType(%q) got=%v err=%v", tt.DisplayName(), parsed, err)
			}
		})
	}
}

func TestTokenTypeDisplayName(t *testing.T) {
	if got := SOLDown.DisplayName(); got != "SOL Down" {
		t.Fatalf("got=%s want=SOL Down", got)
	}
	if TokenType(0).Valid() {
		t.Fatal("zero token type should be invalid")
	}
}

func TestParseAssetAlias(t *testing.T) {
	a, err := ParseAsset("solana")
	if err != nil || a != AssetSOL {
		t.Fatalf("got=%v err=%v", a, err)
	}
	if _, err := ParseAsset("doge"); err == nil {
		t.Fatal("expected error for unknown asset")
	}
}

func TestPeriodMath(t *testing.T) {
	now := time.Unix(1767796200+437, 0)
	if got := Period15m.Start(now); got != 1767796200 {
		t.Fatalf("start got=%d want=1767796200", got)
	}
	if got := Period15m.NextBoundary(now).Unix(); got != 1767796200+900 {
		t.Fatalf("next boundary got=%d", got)
	}
	slug := Period15m.Slug("btc", 1767796200)
	if slug != "btc-updown-15m-1767796200" {
		t.Fatalf("slug got=%s", slug)
	}
	if got := SlugTimestamp(slug); got != 1767796200 {
		t.Fatalf("slug timestamp got=%d", got)
	}
	if got := Period1h.Slug("eth", 3600); got != "eth-updown-1h-3600" {
		t.Fatalf("hourly slug got=%s", got)
	}
	if got := SlugTimestamp("no-timestamp-here"); got != 0 {
		t.Fatalf("expected 0, got=%d", got)
	}
}

func TestMarketSetValidate(t *testing.T) {
	set := MarketSet{Markets: map[Asset]Market{
		AssetBTC: {ConditionID: "0xabc", Asset: AssetBTC},
		AssetETH: {ConditionID: "0xdef", Asset: AssetETH},
		AssetSOL: FallbackMarket(AssetSOL),
		AssetXRP: FallbackMarket(AssetXRP),
	}}
	if err := set.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	set.Markets[AssetETH] = Market{ConditionID: "0xabc", Asset: AssetETH}
	if err := set.Validate(); !errors.Is(err, ErrDuplicateCondition) {
		t.Fatalf("got=%v want=%v", err, ErrDuplicateCondition)
	}
}

func TestFallbackMarket(t *testing.T) {
	m := FallbackMarket(AssetXRP)
	if m.ConditionID != "dummy_xrp_fallback" || m.Active || !m.Closed || m.Tradable() {
		t.Fatalf("unexpected fallback market: %+v", m)
	}
}

func TestPositionTransitions(t *testing.T) {
	now := time.Now()
	p := Position{State: StatePending, TokenType: BTCUp}
	if err := p.Transition(StateSold, now); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("pending->sold got=%v want=%v", err, ErrInvalidTransition)
	}
	for _, s := range []PositionState{StateFilled, StateSellPending, StateSold} {
		if err := p.Transition(s, now); err != nil {
			t.Fatalf("transition to %s: %v", s, err)
		}
	}
	if !p.State.Terminal() || p.ClosedAt.IsZero() {
		t.Fatalf("expected terminal with close time, got %+v", p)
	}
	if err := p.Transition(StateAbandoned, now); err == nil {
		t.Fatal("terminal state must not transition")
	}
}

func TestTradingEventLine(t *testing.T) {
	ev := TradingEvent{
		Kind:    EventBuyOrder,
		Time:    time.Date(2026, 1, 7, 14, 30, 0, 0, time.UTC),
		Market:  "BTC Up",
		Period:  1767796200,
		Price:   0.62,
		Amount:  1,
		OrderID: "0x1",
	}
	want := "[2026-01-07T14:30:00Z] BUY ORDER | Market: BTC Up | Period: 1767796200 | Price: $0.620000 | Amount: $1.00 | Order ID: 0x1"
	if got := ev.Line(); got != want {
		t.Fatalf("got=%s\nwant=%s", got, want)
	}
}
