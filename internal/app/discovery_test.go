package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// period is a 15 minute boundary.
const period = int64(1_700_000_100)

type fakeFinder struct {
	mu      sync.Mutex
	markets map[string]domain.Market
	errs    map[string]error
	calls   []string
	// failFirst fails that many lookups with a transient error.
	failFirst int
}

func newFakeFinder() *fakeFinder {
	return &fakeFinder{markets: map[string]domain.Market{}, errs: map[string]error{}}
}

func (f *fakeFinder) add(slug, condition string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markets[slug] = domain.Market{
		ConditionID: condition,
		Slug:        slug,
		Active:      true,
		UpTokenID:   condition + "-up",
		DownTokenID: condition + "-down",
		PeriodStart: domain.SlugTimestamp(slug),
	}
}

func (f *fakeFinder) MarketBySlug(_ context.Context, slug string) (domain.Market, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, slug)
	if f.failFirst > 0 {
		f.failFirst--
		return domain.Market{}, errors.New("gamma: 502 bad gateway")
	}
	if err, ok := f.errs[slug]; ok {
		return domain.Market{}, err
	}
	m, ok := f.markets[slug]
	if !ok {
		return domain.Market{}, fmt.Errorf("gamma: %w", domain.ErrNotFound)
	}
	return m, nil
}

func slug(prefix string, start int64) string {
	return domain.Period15m.Slug(prefix, start)
}

func at(start int64) time.Time { return time.Unix(start+5, 0) }

func TestDiscoverFallsBackForOptionalAssets(t *testing.T) {
	f := newFakeFinder()
	f.add(slug("btc", period), "0xbtc")
	f.add(slug("eth", period), "0xeth")

	d := NewDiscoverer(f, domain.Period15m, []domain.Asset{domain.AssetETH, domain.AssetSOL}, 0, testLogger)
	set, err := d.Discover(context.Background(), at(period))
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if set.Period != period {
		t.Fatalf("got period=%d want=%d", set.Period, period)
	}
	if got := set.Markets[domain.AssetBTC]; got.ConditionID != "0xbtc" || got.Asset != domain.AssetBTC {
		t.Fatalf("got btc=%+v", got)
	}
	sol := set.Markets[domain.AssetSOL]
	if !sol.Fallback || sol.ConditionID != "dummy_sol_fallback" {
		t.Fatalf("got sol=%+v want fallback", sol)
	}
	if _, ok := set.Markets[domain.AssetXRP]; ok {
		t.Fatalf("disabled asset discovered")
	}
}

func TestDiscoverSolanaAliasAndLookback(t *testing.T) {
	f := newFakeFinder()
	f.add(slug("btc", period-900), "0xbtc")
	f.add(slug("solana", period), "0xsol")

	d := NewDiscoverer(f, domain.Period15m, []domain.Asset{domain.AssetSOL}, 3, testLogger)
	set, err := d.Discover(context.Background(), at(period))
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if got := set.Markets[domain.AssetBTC]; got.ConditionID != "0xbtc" || got.PeriodStart != period-900 {
		t.Fatalf("got btc=%+v want previous period market", got)
	}
	if got := set.Markets[domain.AssetSOL]; got.ConditionID != "0xsol" || got.Fallback {
		t.Fatalf("got sol=%+v want solana-prefixed market", got)
	}
}

func TestDiscoverSkipsClosedMarkets(t *testing.T) {
	f := newFakeFinder()
	f.add(slug("btc", period-900), "0xold")
	m := f.markets[slug("btc", period-900)]
	m.Closed = true
	f.markets[slug("btc", period-900)] = m

	d := NewDiscoverer(f, domain.Period15m, nil, 1, testLogger)
	if _, err := d.Discover(context.Background(), at(period)); !errors.Is(err, domain.ErrNoMarket) {
		t.Fatalf("got err=%v want ErrNoMarket", err)
	}
}

func TestDiscoverBTCMandatory(t *testing.T) {
	f := newFakeFinder()
	f.add(slug("eth", period), "0xeth")
	f.errs[slug("btc", period)] = errors.New("gamma: connection reset")

	d := NewDiscoverer(f, domain.Period15m, []domain.Asset{domain.AssetETH}, 0, testLogger)
	_, err := d.Discover(context.Background(), at(period))
	if !errors.Is(err, domain.ErrNoMarket) {
		t.Fatalf("got err=%v want ErrNoMarket", err)
	}
}

func TestDiscoverRejectsDuplicateCondition(t *testing.T) {
	f := newFakeFinder()
	f.add(slug("btc", period), "0xsame")
	f.add(slug("eth", period), "0xsame")

	d := NewDiscoverer(f, domain.Period15m, []domain.Asset{domain.AssetETH}, 0, testLogger)
	if _, err := d.Discover(context.Background(), at(period)); !errors.Is(err, domain.ErrDuplicateCondition) {
		t.Fatalf("got err=%v want ErrDuplicateCondition", err)
	}
}

func TestDiscoverSkipsInactiveMarkets(t *testing.T) {
	f := newFakeFinder()
	f.add(slug("btc", period), "0xbtc")
	m := f.markets[slug("btc", period)]
	m.Active = false
	f.markets[slug("btc", period)] = m

	d := NewDiscoverer(f, domain.Period15m, nil, 0, testLogger)
	if _, err := d.Discover(context.Background(), at(period)); !errors.Is(err, domain.ErrNoMarket) {
		t.Fatalf("got err=%v want ErrNoMarket", err)
	}
}
