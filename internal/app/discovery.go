package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// Discoverer finds the current period's Up/Down market for every enabled
// asset.
type Discoverer struct {
	finder   domain.MarketFinder
	period   domain.PeriodLength
	assets   []domain.Asset
	lookback int
	logger   *slog.Logger
}

// NewDiscoverer creates a Discoverer. BTC is always looked up; lookback is
// the number of earlier periods tried when the current slug is not listed
// yet.
func NewDiscoverer(finder domain.MarketFinder, period domain.PeriodLength, assets []domain.Asset, lookback int, logger *slog.Logger) *Discoverer {
	ordered := []domain.Asset{domain.AssetBTC}
	for _, a := range domain.Assets {
		if a == domain.AssetBTC {
			continue
		}
		for _, enabled := range assets {
			if enabled == a {
				ordered = append(ordered, a)
				break
			}
		}
	}
	if lookback < 0 {
		lookback = 0
	}
	return &Discoverer{
		finder:   finder,
		period:   period,
		assets:   ordered,
		lookback: lookback,
		logger:   logger.With(slog.String("component", "discovery")),
	}
}

// Discover builds the market set for the period containing at. A missing
// mandatory market fails with domain.ErrNoMarket; a missing optional one
// becomes a fallback market. The set is validated before it is returned.
func (d *Discoverer) Discover(ctx context.Context, at time.Time) (domain.MarketSet, error) {
	set := domain.MarketSet{
		Period:  d.period.Start(at),
		Markets: make(map[domain.Asset]domain.Market, len(d.assets)),
	}
	for _, a := range d.assets {
		m, err := d.find(ctx, a, set.Period)
		if err != nil {
			if ctx.Err() != nil {
				return domain.MarketSet{}, ctx.Err()
			}
			if a.Mandatory() {
				return domain.MarketSet{}, fmt.Errorf("app: discover %s: %w", a, err)
			}
			d.logger.WarnContext(ctx, "market not found, using fallback",
				slog.String("asset", string(a)),
				slog.String("error", err.Error()),
			)
			m = domain.FallbackMarket(a)
		}
		set.Markets[a] = m
	}
	if err := set.Validate(); err != nil {
		return domain.MarketSet{}, fmt.Errorf("app: discover: %w", err)
	}
	return set, nil
}

// find tries every slug prefix of the asset for the current period and then
// for up to lookback earlier periods. Inactive and closed markets are skipped.
func (d *Discoverer) find(ctx context.Context, a domain.Asset, start int64) (domain.Market, error) {
	var lastErr error
	for back := 0; back <= d.lookback; back++ {
		ts := start - int64(back)*d.period.Seconds()
		for _, prefix := range a.SlugPrefixes() {
			slug := d.period.Slug(prefix, ts)
			m, err := d.finder.MarketBySlug(ctx, slug)
			if err != nil {
				if !errors.Is(err, domain.ErrNotFound) {
					lastErr = err
				}
				continue
			}
			if !m.Active || m.Closed || m.ConditionID == "" {
				continue
			}
			m.Asset = a
			if m.Slug == "" {
				m.Slug = slug
			}
			if m.PeriodStart == 0 {
				m.PeriodStart = ts
			}
			d.logger.InfoContext(ctx, "market discovered",
				slog.String("asset", string(a)),
				slog.String("slug", m.Slug),
				slog.String("condition_id", m.ConditionID),
			)
			return m, nil
		}
	}
	if lastErr != nil {
		return domain.Market{}, fmt.Errorf("%w: %v", domain.ErrNoMarket, lastErr)
	}
	return domain.Market{}, domain.ErrNoMarket
}

// lagging returns the assets whose discovered market belongs to a period
// before the set's own period. Such markets are found through the lookback
// while the current slug is not listed yet.
func lagging(set domain.MarketSet) []domain.Asset {
	var out []domain.Asset
	for _, a := range domain.Assets {
		m, ok := set.Get(a)
		if !ok || m.Fallback {
			continue
		}
		if m.PeriodStart < set.Period {
			out = append(out, a)
		}
	}
	return out
}
