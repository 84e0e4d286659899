package domain

import (
	"fmt"
	"strings"
	"time"
)

// EventKind names a trading event.
type EventKind string

const (
	EventBuyOrder            EventKind = "BUY ORDER"
	EventBuyFilled           EventKind = "BUY FILLED"
	EventBuyAbandoned        EventKind = "BUY ABANDONED"
	EventSellOrder           EventKind = "SELL ORDER"
	EventSellFailed          EventKind = "SELL FAILED"
	EventSellFilled          EventKind = "SELL FILLED"
	EventStopLoss            EventKind = "STOP LOSS"
	EventMarketEnded         EventKind = "MARKET ENDED"
	EventMarketResult        EventKind = "MARKET RESULT"
	EventRedemptionSuccess   EventKind = "REDEMPTION SUCCESS"
	EventRedemptionFailed    EventKind = "REDEMPTION FAILED"
	EventRedemptionAbandoned EventKind = "REDEMPTION ABANDONED"
	EventMerge               EventKind = "MERGE"
	EventReconciled          EventKind = "RECONCILED"
	EventNewMarket           EventKind = "NEW MARKET STARTED"
)

// TradingEvent is one line of the trading history. Zero-valued numeric
// fields are omitted when rendered.
type TradingEvent struct {
	Kind        EventKind
	Time        time.Time
	Market      string
	Period      int64
	TokenID     string
	ConditionID string
	Price       float64
	Shares      float64
	Amount      float64
	PnL         float64
	OrderID     string
	Status      string
	Detail      string
}

// Line renders the event as
// "[RFC3339] KIND | Market: BTC Up | Period: 1767796200 | ...".
func (e TradingEvent) Line() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Time.UTC().Format(time.RFC3339), e.Kind)
	if e.Market != "" {
		fmt.Fprintf(&b, " | Market: %s", e.Market)
	}
	if e.Period != 0 {
		fmt.Fprintf(&b, " | Period: %d", e.Period)
	}
	if e.Price != 0 {
		fmt.Fprintf(&b, " | Price: $%.6f", e.Price)
	}
	if e.Shares != 0 {
		fmt.Fprintf(&b, " | Shares: %.6f", e.Shares)
	}
	if e.Amount != 0 {
		fmt.Fprintf(&b, " | Amount: $%.2f", e.Amount)
	}
	if e.PnL != 0 {
		fmt.Fprintf(&b, " | PnL: $%.4f", e.PnL)
	}
	if e.OrderID != "" {
		fmt.Fprintf(&b, " | Order ID: %s", e.OrderID)
	}
	if e.Status != "" {
		fmt.Fprintf(&b, " | Status: %s", e.Status)
	}
	if e.Detail != "" {
		fmt.Fprintf(&b, " | %s", e.Detail)
	}
	return b.String()
}
