package domain

import "context"

// MarketFinder looks up a market by its event slug.
type MarketFinder interface {
	MarketBySlug(ctx context.Context, slug string) (Market, error)
}

// TokenResolver looks up a market's token ids by condition id.
type TokenResolver interface {
	MarketByCondition(ctx context.Context, conditionID string) (Market, error)
}

// QuoteSource returns the current top of book for a token. Implementations
// wrap unusable responses with ErrMalformedQuote.
type QuoteSource interface {
	Quote(ctx context.Context, tokenID string) (Quote, error)
}

// OrderGateway places and manages orders.
type OrderGateway interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	CancelOrder(ctx context.Context, orderID string) error
	Order(ctx context.Context, orderID string) (OrderInfo, error)
}

// BalanceReader reports conditional token balances in shares.
type BalanceReader interface {
	Balance(ctx context.Context, tokenID string) (float64, error)
	RefreshAllowance(ctx context.Context, tokenID string) error
}

// Settlement resolves closed markets into collateral.
type Settlement interface {
	Resolution(ctx context.Context, conditionID string) (MarketResolution, error)
	Redeem(ctx context.Context, conditionID string) (SettlementResult, error)
	Merge(ctx context.Context, conditionID string, shares float64) (SettlementResult, error)
}

// Approval is the operator approval state of one exchange contract.
type Approval struct {
	Operator string
	Approved bool
}

// Approvals inspects and grants token approvals to the exchange contracts.
type Approvals interface {
	ApprovalStatus(ctx context.Context) ([]Approval, error)
	SetApprovals(ctx context.Context) error
}

// TradingClient is everything the trader needs from the exchange.
type TradingClient interface {
	QuoteSource
	OrderGateway
	BalanceReader
	Settlement
}
