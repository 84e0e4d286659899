package domain

import (
	"fmt"
	"strings"
	"time"
)

// Market is one asset's Up/Down market for a single period.
type Market struct {
	ConditionID string
	Slug        string
	Asset       Asset
	UpTokenID   string
	DownTokenID string
	Active      bool
	Closed      bool
	NegRisk     bool
	// PeriodStart is the unix timestamp encoded in the slug.
	PeriodStart int64
	EndTime     time.Time
	Fallback    bool
}

// FallbackMarket is the placeholder used for an optional asset whose market
// could not be discovered. It is never quoted or traded.
func FallbackMarket(a Asset) Market {
	return Market{
		ConditionID: fmt.Sprintf("dummy_%s_fallback", strings.ToLower(string(a))),
		Asset:       a,
		Active:      false,
		Closed:      true,
		Fallback:    true,
	}
}

// Tradable reports whether the market is live and not a placeholder.
func (m Market) Tradable() bool {
	return !m.Fallback && m.Active && !m.Closed
}

// HasTokens reports whether both token ids are known.
func (m Market) HasTokens() bool {
	return m.UpTokenID != "" && m.DownTokenID != ""
}

// TokenID returns the token id for the given side.
func (m Market) TokenID(d Direction) string {
	if d == Up {
		return m.UpTokenID
	}
	return m.DownTokenID
}

// PeriodEnd returns the unix timestamp at which the market's period ends.
// An explicit EndTime from the exchange wins over the slug-derived value.
func (m Market) PeriodEnd(p PeriodLength) int64 {
	if !m.EndTime.IsZero() {
		return m.EndTime.Unix()
	}
	if m.PeriodStart == 0 {
		return 0
	}
	return p.End(m.PeriodStart)
}

// MarketSet is the result of one discovery round, one Market per asset.
type MarketSet struct {
	Period  int64
	Markets map[Asset]Market
}

// Get returns the market for an asset.
func (s MarketSet) Get(a Asset) (Market, bool) {
	m, ok := s.Markets[a]
	return m, ok
}

// ConditionIDs returns the non-fallback condition ids in the set.
func (s MarketSet) ConditionIDs() map[string]Asset {
	out := make(map[string]Asset, len(s.Markets))
	for a, m := range s.Markets {
		if !m.Fallback {
			out[m.ConditionID] = a
		}
	}
	return out
}

// TokenIDs returns every known token id of the non-fallback markets.
func (s MarketSet) TokenIDs() []string {
	var out []string
	for _, a := range Assets {
		m, ok := s.Markets[a]
		if !ok || m.Fallback {
			continue
		}
		for _, id := range []string{m.UpTokenID, m.DownTokenID} {
			if id != "" {
				out = append(out, id)
			}
		}
	}
	return out
}

// Validate enforces that non-fallback condition ids are pairwise distinct.
func (s MarketSet) Validate() error {
	seen := make(map[string]Asset, len(s.Markets))
	for _, a := range Assets {
		m, ok := s.Markets[a]
		if !ok || m.Fallback {
			continue
		}
		if other, dup := seen[m.ConditionID]; dup {
			return fmt.Errorf("%w: %s shared by %s and %s", ErrDuplicateCondition, m.ConditionID, other, a)
		}
		seen[m.ConditionID] = a
	}
	return nil
}

// MarketResolution is the exchange's view of whether a market has settled.
type MarketResolution struct {
	ConditionID   string
	Closed        bool
	WinnerTokenID string
}

// Resolved reports whether the market is closed with a known winner.
func (r MarketResolution) Resolved() bool {
	return r.Closed && r.WinnerTokenID != ""
}

// Won reports whether tokenID is the winning outcome.
func (r MarketResolution) Won(tokenID string) bool {
	return r.Resolved() && r.WinnerTokenID == tokenID
}
