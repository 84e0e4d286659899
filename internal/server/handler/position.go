package handler

import (
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// PositionLister returns the positions held in memory.
type PositionLister interface {
	Positions() []domain.Position
}

// PositionHandler serves position endpoints. Live positions come from the
// trader; older periods come from the journal when one is configured.
type PositionHandler struct {
	live    PositionLister
	journal domain.PositionJournal
	logger  *slog.Logger
}

// NewPositionHandler creates a PositionHandler. journal may be nil.
func NewPositionHandler(live PositionLister, journal domain.PositionJournal, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		live:    live,
		journal: journal,
		logger:  logHandler(logger, "positions"),
	}
}

type positionView struct {
	ID                 string     `json:"id"`
	Period             int64      `json:"period"`
	Market             string     `json:"market"`
	TokenID            string     `json:"token_id"`
	ConditionID        string     `json:"condition_id"`
	Kind               string     `json:"kind"`
	State              string     `json:"state"`
	Shares             float64    `json:"shares"`
	EntryPrice         float64    `json:"entry_price"`
	Cost               float64    `json:"cost"`
	SellPrice          float64    `json:"sell_price,omitempty"`
	BuyOrderID         string     `json:"buy_order_id,omitempty"`
	SellOrderID        string     `json:"sell_order_id,omitempty"`
	SellAttempts       int        `json:"sell_attempts,omitempty"`
	RedemptionAttempts int        `json:"redemption_attempts,omitempty"`
	RealizedPnL        float64    `json:"realized_pnl"`
	Restored           bool       `json:"restored,omitempty"`
	Note               string     `json:"note,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	ClosedAt           *time.Time `json:"closed_at,omitempty"`
}

func newPositionView(p domain.Position) positionView {
	v := positionView{
		ID:                 p.ID,
		Period:             p.PeriodTimestamp,
		Market:             p.TokenType.DisplayName(),
		TokenID:            p.TokenID,
		ConditionID:        p.ConditionID,
		Kind:               string(p.Kind),
		State:              string(p.State),
		Shares:             p.Shares,
		EntryPrice:         p.EntryPrice,
		Cost:               p.Cost,
		SellPrice:          p.SellPrice,
		BuyOrderID:         p.BuyOrderID,
		SellOrderID:        p.SellOrderID,
		SellAttempts:       p.SellAttempts,
		RedemptionAttempts: p.RedemptionAttempts,
		RealizedPnL:        p.RealizedPnL,
		Restored:           p.Restored,
		Note:               p.Note,
		CreatedAt:          p.CreatedAt,
	}
	if !p.ClosedAt.IsZero() {
		t := p.ClosedAt
		v.ClosedAt = &t
	}
	return v
}

func views(positions []domain.Position) []positionView {
	sort.Slice(positions, func(i, j int) bool {
		if positions[i].PeriodTimestamp != positions[j].PeriodTimestamp {
			return positions[i].PeriodTimestamp < positions[j].PeriodTimestamp
		}
		return positions[i].TokenType < positions[j].TokenType
	})
	out := make([]positionView, 0, len(positions))
	for _, p := range positions {
		out = append(out, newPositionView(p))
	}
	return out
}

// ListPositions returns the positions held in memory. ?open=true hides
// terminal ones.
// GET /api/positions
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	var positions []domain.Position
	if h.live != nil {
		positions = h.live.Positions()
	}
	if r.URL.Query().Get("open") == "true" {
		open := positions[:0]
		for _, p := range positions {
			if !p.State.Terminal() {
				open = append(open, p)
			}
		}
		positions = open
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": views(positions)})
}

// ListPeriod returns the journaled positions of one period.
// GET /api/positions/{period}
func (h *PositionHandler) ListPeriod(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		writeError(w, http.StatusServiceUnavailable, "position journal not configured")
		return
	}
	period, err := strconv.ParseInt(r.PathValue("period"), 10, 64)
	if err != nil || period <= 0 {
		writeError(w, http.StatusBadRequest, "period must be a unix timestamp")
		return
	}
	positions, err := h.journal.ListPeriod(r.Context(), period)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list period positions failed",
			slog.Int64("period", period),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list positions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"period": period, "positions": views(positions)})
}
