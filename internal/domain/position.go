package domain

import (
	"fmt"
	"time"
)

// PositionState is the lifecycle state of a trade.
type PositionState string

const (
	StatePending     PositionState = "pending"
	StateFilled      PositionState = "filled"
	StateSellPending PositionState = "sell_pending"
	StateSold        PositionState = "sold"
	StateRedeemed    PositionState = "redeemed"
	StateAbandoned   PositionState = "abandoned"
)

// Terminal reports whether no further transition is possible.
func (s PositionState) Terminal() bool {
	return s == StateSold || s == StateRedeemed || s == StateAbandoned
}

var transitions = map[PositionState][]PositionState{
	StatePending:     {StateFilled, StateAbandoned},
	StateFilled:      {StateSellPending, StateSold, StateRedeemed, StateAbandoned},
	StateSellPending: {StateSellPending, StateSold, StateRedeemed, StateAbandoned},
}

// CanTransition reports whether from -> to is a legal lifecycle edge.
func CanTransition(from, to PositionState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// OrderKind distinguishes market (USD-denominated FOK) from limit entries.
type OrderKind string

const (
	OrderKindMarket OrderKind = "market"
	OrderKindLimit  OrderKind = "limit"
)

// PositionKey identifies the single live position allowed per period and
// token type.
type PositionKey struct {
	Period    int64
	TokenType TokenType
}

func (k PositionKey) String() string {
	return fmt.Sprintf("%d_%s", k.Period, k.TokenType.Key())
}

// Position is one trade tracked from order acceptance to a terminal state.
type Position struct {
	ID                 string
	PeriodTimestamp    int64
	TokenType          TokenType
	TokenID            string
	ConditionID        string
	Kind               OrderKind
	Shares             float64
	EntryPrice         float64
	Cost               float64
	SellPrice          float64
	BuyOrderID         string
	SellOrderID        string
	BaselineBalance    float64
	HoldToClosure      bool
	State              PositionState
	SellAttempts       int
	RedemptionAttempts int
	RealizedPnL        float64
	Restored           bool
	Note               string
	CreatedAt          time.Time
	FilledAt           time.Time
	SellPlacedAt       time.Time
	ClosedAt           time.Time
	UpdatedAt          time.Time
}

// Key returns the dedup key of the position.
func (p Position) Key() PositionKey {
	return PositionKey{Period: p.PeriodTimestamp, TokenType: p.TokenType}
}

// Transition moves the position to a new state, stamping the relevant
// timestamps. Illegal edges return ErrInvalidTransition and leave p unchanged.
func (p *Position) Transition(to PositionState, now time.Time) error {
	if !CanTransition(p.State, to) {
		return fmt.Errorf("%w: %s -> %s (%s)", ErrInvalidTransition, p.State, to, p.Key())
	}
	p.State = to
	p.UpdatedAt = now
	switch to {
	case StateFilled:
		p.FilledAt = now
	case StateSellPending:
		p.SellPlacedAt = now
	case StateSold, StateRedeemed, StateAbandoned:
		p.ClosedAt = now
	}
	return nil
}
