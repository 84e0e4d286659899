package domain

import "time"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderType indicates the time-in-force policy.
type OrderType string

const (
	OrderTypeGTC OrderType = "GTC" // Good-Till-Cancelled
	OrderTypeFOK OrderType = "FOK" // Fill-Or-Kill
	OrderTypeFAK OrderType = "FAK" // Fill-And-Kill
)

// OrderStatus tracks the order lifecycle as reported by the exchange.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusMatched   OrderStatus = "matched"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusFailed    OrderStatus = "failed"
)

// Done reports whether the order can no longer fill.
func (s OrderStatus) Done() bool {
	return s == OrderStatusMatched || s == OrderStatusCancelled || s == OrderStatusFailed
}

// OrderRequest describes an order to place.
//
// A market buy (FOK/FAK with Side BUY) spends Amount USD with Price as the
// worst acceptable price. Every other order trades Size shares at Price.
type OrderRequest struct {
	TokenID string
	NegRisk bool
	Side    OrderSide
	Type    OrderType
	Price   float64
	Size    float64
	Amount  float64
}

// IsMarketBuy reports whether the request is denominated in USD.
func (r OrderRequest) IsMarketBuy() bool {
	return r.Side == OrderSideBuy && r.Type != OrderTypeGTC && r.Amount > 0
}

// OrderResult wraps the API response after order submission.
type OrderResult struct {
	Success     bool
	OrderID     string
	Status      OrderStatus
	Message     string
	ShouldRetry bool
}

// OrderInfo is the exchange's current view of a placed order.
type OrderInfo struct {
	ID           string
	Status       OrderStatus
	OriginalSize float64
	SizeMatched  float64
	Price        float64
	UpdatedAt    time.Time
}

// SettlementResult reports a redeem or merge submission.
type SettlementResult struct {
	TransactionID   string
	TransactionHash string
	State           string
}
