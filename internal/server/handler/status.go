package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/trader"
)

// MarketSource exposes the market set being polled.
type MarketSource interface {
	Markets() domain.MarketSet
}

// SummarySource aggregates tracked positions.
type SummarySource interface {
	Summarize() trader.Summary
}

// FeedStats reports how quotes were served.
type FeedStats interface {
	Stats() (streamed, fetched int64)
}

// StatusHandler serves the bot's current period, markets and trading totals.
type StatusHandler struct {
	mode    string
	period  domain.PeriodLength
	markets MarketSource
	summary SummarySource
	feed    FeedStats
	now     func() time.Time
}

// NewStatusHandler creates a StatusHandler. summary and feed may be nil.
func NewStatusHandler(mode string, period domain.PeriodLength, markets MarketSource, summary SummarySource, feed FeedStats) *StatusHandler {
	return &StatusHandler{
		mode:    mode,
		period:  period,
		markets: markets,
		summary: summary,
		feed:    feed,
		now:     time.Now,
	}
}

type marketStatus struct {
	Asset       string `json:"asset"`
	ConditionID string `json:"condition_id"`
	Slug        string `json:"slug,omitempty"`
	UpTokenID   string `json:"up_token_id,omitempty"`
	DownTokenID string `json:"down_token_id,omitempty"`
	Fallback    bool   `json:"fallback"`
}

type summaryStatus struct {
	Total        int            `json:"total"`
	Counts       map[string]int `json:"counts"`
	OpenExposure float64        `json:"open_exposure"`
	RealizedPnL  float64        `json:"realized_pnl"`
}

type feedStatus struct {
	Streamed int64 `json:"streamed"`
	Fetched  int64 `json:"fetched"`
}

type statusResponse struct {
	Mode             string         `json:"mode"`
	Period           string         `json:"period"`
	PeriodTimestamp  int64          `json:"period_timestamp"`
	RemainingSeconds int64          `json:"remaining_seconds"`
	Markets          []marketStatus `json:"markets"`
	Summary          *summaryStatus `json:"summary,omitempty"`
	Feed             *feedStatus    `json:"feed,omitempty"`
}

// GetStatus responds with the mode, the current period and its markets, and
// the trading summary when trading.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	set := h.markets.Markets()
	resp := statusResponse{
		Mode:            h.mode,
		Period:          h.period.Label(),
		PeriodTimestamp: set.Period,
		Markets:         []marketStatus{},
	}
	if set.Period > 0 {
		if rem := h.period.End(set.Period) - h.now().Unix(); rem > 0 {
			resp.RemainingSeconds = rem
		}
	}
	for _, a := range domain.Assets {
		m, ok := set.Get(a)
		if !ok {
			continue
		}
		resp.Markets = append(resp.Markets, marketStatus{
			Asset:       string(a),
			ConditionID: m.ConditionID,
			Slug:        m.Slug,
			UpTokenID:   m.UpTokenID,
			DownTokenID: m.DownTokenID,
			Fallback:    m.Fallback,
		})
	}
	if h.summary != nil {
		s := h.summary.Summarize()
		counts := make(map[string]int, len(s.Counts))
		for state, n := range s.Counts {
			counts[string(state)] = n
		}
		resp.Summary = &summaryStatus{
			Total:        s.Total,
			Counts:       counts,
			OpenExposure: s.OpenExposure,
			RealizedPnL:  s.RealizedPnL,
		}
	}
	if h.feed != nil {
		streamed, fetched := h.feed.Stats()
		resp.Feed = &feedStatus{Streamed: streamed, Fetched: fetched}
	}
	writeJSON(w, http.StatusOK, resp)
}
