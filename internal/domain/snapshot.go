package domain

import "time"

// Quote is the top of book for one token.
type Quote struct {
	TokenID string
	Bid     float64
	Ask     float64
	At      time.Time
}

// Valid reports whether the quote is usable for trading decisions.
func (q Quote) Valid() bool {
	return q.Ask > 0 && q.Ask <= 1 && q.Bid >= 0 && q.Bid <= 1
}

// MarketQuote pairs a market with the quotes observed for its legs. A nil
// quote means no price was available for that leg.
type MarketQuote struct {
	Market Market
	Up     *Quote
	Down   *Quote
}

// Leg returns the quote for a side.
func (mq MarketQuote) Leg(d Direction) *Quote {
	if d == Up {
		return mq.Up
	}
	return mq.Down
}

// Snapshot is one poll of all enabled markets.
type Snapshot struct {
	PeriodTimestamp  int64
	ElapsedSeconds   int64
	RemainingSeconds int64
	Markets          map[Asset]MarketQuote
	TakenAt          time.Time
}

// Expired reports whether the snapshot belongs to a period that has already
// ended. Expired snapshots carry no actionable information.
func (s Snapshot) Expired() bool { return s.RemainingSeconds <= 0 }

// BuyOpportunity is a single detector decision, consumed once by the trader.
type BuyOpportunity struct {
	ConditionID      string
	TokenID          string
	TokenType        TokenType
	Price            float64
	PeriodTimestamp  int64
	RemainingSeconds int64
	ElapsedSeconds   int64
	UseMarketOrder   bool
}
