// Package detector turns market snapshots into buy opportunities.
package detector

import (
	"github.com/alanyoungcy/updownbot/internal/domain"
)

// Detector is a stateful buy policy. Detect never fails: a leg without
// usable data yields no opportunity.
type Detector interface {
	Detect(snap domain.Snapshot) []domain.BuyOpportunity
	// ResetPeriod clears per-period memory. It must run before the first
	// Detect of a new period.
	ResetPeriod()
}

// CycleObserver is told when a position completed a buy/sell cycle.
type CycleObserver interface {
	MarkCycleCompleted(tt domain.TokenType)
}

// leg is one tradable side of one market in a snapshot.
type leg struct {
	tokenType domain.TokenType
	market    domain.Market
	tokenID   string
	quote     *domain.Quote
}

// legs lists the snapshot's non-fallback legs with a known token id, in
// asset order, Up before Down.
func legs(snap domain.Snapshot) []leg {
	var out []leg
	for _, tt := range domain.TokenTypes {
		mq, ok := snap.Markets[tt.Asset()]
		if !ok || mq.Market.Fallback {
			continue
		}
		id := mq.Market.TokenID(tt.Direction())
		if id == "" {
			continue
		}
		out = append(out, leg{
			tokenType: tt,
			market:    mq.Market,
			tokenID:   id,
			quote:     mq.Leg(tt.Direction()),
		})
	}
	return out
}
