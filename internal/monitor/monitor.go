// Package monitor polls the current period's Up/Down markets and turns each
// poll into a domain.Snapshot.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/scheduler"
)

// HistoryRecorder receives one human-readable price line per poll.
type HistoryRecorder interface {
	Record(period int64, line string)
}

// Config configures a Monitor.
type Config struct {
	Period domain.PeriodLength
	// Assets are the enabled assets. BTC is always polled.
	Assets []domain.Asset
}

// Monitor owns the current market set and produces snapshots from it.
type Monitor struct {
	quotes   domain.QuoteSource
	resolver domain.TokenResolver
	history  HistoryRecorder
	mirror   domain.QuoteMirror
	period   domain.PeriodLength
	assets   []domain.Asset
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.RWMutex
	set      domain.MarketSet
	resolved map[string]domain.Market
}

// Option configures optional Monitor collaborators.
type Option func(*Monitor)

// WithHistory records one price line per poll.
func WithHistory(h HistoryRecorder) Option { return func(m *Monitor) { m.history = h } }

// WithQuoteMirror mirrors every observed quote.
func WithQuoteMirror(q domain.QuoteMirror) Option { return func(m *Monitor) { m.mirror = q } }

// WithClock replaces the wall clock used to time snapshots.
func WithClock(now func() time.Time) Option { return func(m *Monitor) { m.now = now } }

// New creates a Monitor. resolver may be nil when discovery always returns
// token ids.
func New(cfg Config, quotes domain.QuoteSource, resolver domain.TokenResolver, logger *slog.Logger, opts ...Option) *Monitor {
	assets := []domain.Asset{domain.AssetBTC}
	for _, a := range domain.Assets {
		if a == domain.AssetBTC {
			continue
		}
		for _, enabled := range cfg.Assets {
			if a == enabled {
				assets = append(assets, a)
				break
			}
		}
	}
	m := &Monitor{
		quotes:   quotes,
		resolver: resolver,
		period:   cfg.Period,
		assets:   assets,
		logger:   logger.With(slog.String("component", "monitor")),
		now:      time.Now,
		resolved: make(map[string]domain.Market),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Markets returns the market set currently being polled.
func (m *Monitor) Markets() domain.MarketSet {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := domain.MarketSet{Period: m.set.Period, Markets: make(map[domain.Asset]domain.Market, len(m.set.Markets))}
	for a, mk := range m.set.Markets {
		out.Markets[a] = mk
	}
	return out
}

// ReplaceMarkets swaps in the markets of a new period. A set for an older
// period than the one held is rejected with domain.ErrStalePeriod.
func (m *Monitor) ReplaceMarkets(set domain.MarketSet) error {
	if err := set.Validate(); err != nil {
		return fmt.Errorf("monitor: replace markets: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if set.Period < m.set.Period {
		return fmt.Errorf("monitor: replace markets: %w: have %d got %d", domain.ErrStalePeriod, m.set.Period, set.Period)
	}
	m.set = set
	m.resolved = make(map[string]domain.Market)
	return nil
}

// Subscribe polls every interval and hands each snapshot to fn. Polls run
// back to back with fn, never concurrently. A failed poll skips that tick.
// It returns when ctx is done.
func (m *Monitor) Subscribe(ctx context.Context, interval time.Duration, fn func(context.Context, domain.Snapshot)) error {
	return scheduler.Every(ctx, scheduler.Task{
		Name:       "monitor",
		Interval:   interval,
		RunAtStart: true,
		Run: func(ctx context.Context) error {
			snap, err := m.Poll(ctx)
			if err != nil {
				return err
			}
			fn(ctx, snap)
			return nil
		},
	}, m.logger)
}

// leg identifies one token quote to fetch.
type leg struct {
	asset domain.Asset
	dir   domain.Direction
	token string
}

// Poll fetches quotes for every enabled asset and assembles a snapshot.
// Unusable quotes leave that leg empty; any other quote error fails the
// poll.
func (m *Monitor) Poll(ctx context.Context) (domain.Snapshot, error) {
	now := m.now()
	set := m.Markets()

	markets := make(map[domain.Asset]domain.Market, len(m.assets))
	for _, a := range m.assets {
		mk, ok := set.Get(a)
		if !ok {
			mk = domain.FallbackMarket(a)
		}
		if !mk.Fallback && !mk.HasTokens() {
			mk = m.resolveTokens(ctx, mk)
		}
		markets[a] = mk
	}

	snap := domain.Snapshot{
		Markets: make(map[domain.Asset]domain.MarketQuote, len(markets)),
		TakenAt: now,
	}
	remaining := int64(-1)
	var legs []leg
	for _, a := range m.assets {
		mk := markets[a]
		if mk.Fallback {
			continue
		}
		if snap.PeriodTimestamp == 0 {
			snap.PeriodTimestamp = mk.PeriodStart
		}
		r := max(mk.PeriodEnd(m.period)-now.Unix(), 0)
		if remaining < 0 || r < remaining {
			remaining = r
		}
		if r == 0 {
			continue
		}
		for _, d := range []domain.Direction{domain.Up, domain.Down} {
			if id := mk.TokenID(d); id != "" {
				legs = append(legs, leg{asset: a, dir: d, token: id})
			}
		}
	}
	if snap.PeriodTimestamp == 0 {
		snap.PeriodTimestamp = set.Period
	}
	snap.RemainingSeconds = max(remaining, 0)
	if snap.PeriodTimestamp > 0 {
		snap.ElapsedSeconds = max(now.Unix()-snap.PeriodTimestamp, 0)
	}

	quotes := make([]*domain.Quote, len(legs))
	g, gctx := errgroup.WithContext(ctx)
	for i, l := range legs {
		g.Go(func() error {
			q, err := m.quotes.Quote(gctx, l.token)
			switch {
			case errors.Is(err, domain.ErrMalformedQuote), errors.Is(err, domain.ErrNotFound):
				m.logger.DebugContext(gctx, "no usable quote",
					slog.String("asset", string(l.asset)),
					slog.String("direction", string(l.dir)),
					slog.String("error", err.Error()),
				)
				return nil
			case err != nil:
				return fmt.Errorf("quote %s %s: %w", l.asset, l.dir, err)
			}
			if !q.Valid() {
				return nil
			}
			quotes[i] = &q
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.Snapshot{}, fmt.Errorf("monitor: poll: %w", err)
	}

	for _, a := range m.assets {
		snap.Markets[a] = domain.MarketQuote{Market: markets[a]}
	}
	for i, l := range legs {
		if quotes[i] == nil {
			continue
		}
		mq := snap.Markets[l.asset]
		if l.dir == domain.Up {
			mq.Up = quotes[i]
		} else {
			mq.Down = quotes[i]
		}
		snap.Markets[l.asset] = mq
		m.mirrorQuote(ctx, *quotes[i])
	}

	line := m.priceLine(snap)
	m.logger.DebugContext(ctx, line)
	if m.history != nil && snap.PeriodTimestamp > 0 {
		m.history.Record(snap.PeriodTimestamp, line)
	}
	return snap, nil
}

// resolveTokens fills in missing token ids from the CLOB, caching the
// answer until the next market swap.
func (m *Monitor) resolveTokens(ctx context.Context, mk domain.Market) domain.Market {
	m.mu.RLock()
	cached, ok := m.resolved[mk.ConditionID]
	m.mu.RUnlock()
	if !ok {
		if m.resolver == nil {
			return mk
		}
		var err error
		cached, err = m.resolver.MarketByCondition(ctx, mk.ConditionID)
		if err != nil {
			m.logger.WarnContext(ctx, "token resolution failed",
				slog.String("asset", string(mk.Asset)),
				slog.String("condition_id", mk.ConditionID),
				slog.String("error", err.Error()),
			)
			return mk
		}
		m.mu.Lock()
		m.resolved[mk.ConditionID] = cached
		m.mu.Unlock()
	}
	if mk.UpTokenID == "" {
		mk.UpTokenID = cached.UpTokenID
	}
	if mk.DownTokenID == "" {
		mk.DownTokenID = cached.DownTokenID
	}
	return mk
}

func (m *Monitor) mirrorQuote(ctx context.Context, q domain.Quote) {
	if m.mirror == nil {
		return
	}
	if err := m.mirror.SetQuote(ctx, q); err != nil {
		m.logger.DebugContext(ctx, "quote mirror failed", slog.String("token_id", q.TokenID), slog.String("error", err.Error()))
	}
}

// priceLine renders e.g.
// "BTC: U$0.45/$0.47 D$0.52/$0.55 | ETH: UN/A DN/A | 4m 3s".
func (m *Monitor) priceLine(s domain.Snapshot) string {
	var b strings.Builder
	for _, a := range m.assets {
		mq := s.Markets[a]
		fmt.Fprintf(&b, "%s: U%s D%s | ", a, compactQuote(mq.Up), compactQuote(mq.Down))
	}
	b.WriteString(formatRemaining(s.RemainingSeconds))
	return b.String()
}

func compactQuote(q *domain.Quote) string {
	if q == nil {
		return "N/A"
	}
	return fmt.Sprintf("$%.2f/$%.2f", q.Bid, q.Ask)
}

func formatRemaining(secs int64) string {
	if secs <= 0 {
		return "0s"
	}
	if secs >= 60 {
		return fmt.Sprintf("%dm %ds", secs/60, secs%60)
	}
	return fmt.Sprintf("%ds", secs)
}
