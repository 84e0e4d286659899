package polymarket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// GammaClient is the REST client for the Polymarket Gamma API, used to find
// the Up/Down market listed under a period's event slug.
type GammaClient struct {
	rest restClient
}

// NewGammaClient creates a new Gamma API client.
//
// baseURL is the Gamma API root, e.g. "https://gamma-api.polymarket.com".
func NewGammaClient(baseURL string, timeout time.Duration) *GammaClient {
	return &GammaClient{rest: newRESTClient(baseURL, timeout)}
}

// MarketBySlug returns the first market of the event with the given slug.
// When the event endpoint knows nothing about the slug the market listing is
// queried directly. domain.ErrNotFound is returned when neither has it.
func (g *GammaClient) MarketBySlug(ctx context.Context, slug string) (domain.Market, error) {
	body, err := g.rest.do(ctx, http.MethodGet, "/events/slug/"+url.PathEscape(slug), nil, nil)
	switch {
	case err == nil:
		var ev gammaEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return domain.Market{}, fmt.Errorf("polymarket/gamma: decode event %s: %w", slug, err)
		}
		if len(ev.Markets) > 0 {
			return ev.Markets[0].toDomain(slug), nil
		}
	case !errors.Is(err, domain.ErrNotFound):
		return domain.Market{}, fmt.Errorf("polymarket/gamma: event %s: %w", slug, err)
	}

	q := url.Values{}
	q.Set("slug", slug)
	body, err = g.rest.do(ctx, http.MethodGet, "/markets?"+q.Encode(), nil, nil)
	if err != nil {
		return domain.Market{}, fmt.Errorf("polymarket/gamma: markets by slug %s: %w", slug, err)
	}
	var markets []gammaMarket
	if err := json.Unmarshal(body, &markets); err != nil {
		return domain.Market{}, fmt.Errorf("polymarket/gamma: decode markets: %w", err)
	}
	if len(markets) == 0 {
		return domain.Market{}, fmt.Errorf("polymarket/gamma: %w: slug=%s", domain.ErrNotFound, slug)
	}
	return markets[0].toDomain(slug), nil
}
