package polymarket

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma API
// responses work whether "active" is sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// flexFloat accepts a JSON number or a numeric string.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexFloat(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(n)
	return nil
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// gammaEvent is the /events/slug/{slug} response.
type gammaEvent struct {
	ID      string        `json:"id"`
	Slug    string        `json:"slug"`
	Active  flexBool      `json:"active"`
	Closed  flexBool      `json:"closed"`
	Markets []gammaMarket `json:"markets"`
}

// gammaMarket is a market entry inside a Gamma event.
type gammaMarket struct {
	ID           string   `json:"id"`
	ConditionID  string   `json:"conditionId"`
	Slug         string   `json:"slug"`
	Active       flexBool `json:"active"`
	Closed       flexBool `json:"closed"`
	NegRisk      flexBool `json:"negRisk"`
	EndDate      string   `json:"endDate"`
	Outcomes     string   `json:"outcomes"`     // JSON-encoded: "[\"Up\",\"Down\"]"
	ClobTokenIDs string   `json:"clobTokenIds"` // JSON-encoded: "[\"123\",\"456\"]"
}

// toDomain maps the Gamma market onto a domain.Market. Token ids are paired
// with outcomes by index; unknown outcome labels leave the ids empty so the
// monitor resolves them from the CLOB instead.
func (m gammaMarket) toDomain(eventSlug string) domain.Market {
	slug := m.Slug
	if slug == "" {
		slug = eventSlug
	}
	out := domain.Market{
		ConditionID: m.ConditionID,
		Slug:        slug,
		Active:      bool(m.Active),
		Closed:      bool(m.Closed),
		NegRisk:     bool(m.NegRisk),
		PeriodStart: domain.SlugTimestamp(slug),
	}
	if t, err := time.Parse(time.RFC3339, m.EndDate); err == nil {
		out.EndTime = t
	}

	var outcomes, ids []string
	_ = json.Unmarshal([]byte(m.Outcomes), &outcomes)
	_ = json.Unmarshal([]byte(m.ClobTokenIDs), &ids)
	for i := 0; i < len(outcomes) && i < len(ids); i++ {
		switch outcomeDirection(outcomes[i]) {
		case domain.Up:
			out.UpTokenID = ids[i]
		case domain.Down:
			out.DownTokenID = ids[i]
		}
	}
	return out
}

// outcomeDirection maps an outcome label to a side. Labels containing "UP" or
// "1" are Up, labels containing "DOWN" or "0" are Down.
func outcomeDirection(label string) domain.Direction {
	l := strings.ToUpper(strings.TrimSpace(label))
	switch {
	case strings.Contains(l, "UP") || l == "1" || l == "YES":
		return domain.Up
	case strings.Contains(l, "DOWN") || l == "0" || l == "NO":
		return domain.Down
	}
	return ""
}

// --------------------------------------------------------------------------
// CLOB API DTOs
// --------------------------------------------------------------------------

// clobMarket is the /markets/{condition_id} response.
type clobMarket struct {
	ConditionID string       `json:"condition_id"`
	MarketSlug  string       `json:"market_slug"`
	Active      flexBool     `json:"active"`
	Closed      flexBool     `json:"closed"`
	NegRisk     flexBool     `json:"neg_risk"`
	EndDateISO  string       `json:"end_date_iso"`
	Tokens      []clobToken  `json:"tokens"`
}

// clobToken represents a token entry inside the CLOB market response.
type clobToken struct {
	TokenID string    `json:"token_id"`
	Outcome string    `json:"outcome"`
	Price   flexFloat `json:"price"`
	Winner  bool      `json:"winner"`
}

func (m clobMarket) toDomain() domain.Market {
	out := domain.Market{
		ConditionID: m.ConditionID,
		Slug:        m.MarketSlug,
		Active:      bool(m.Active),
		Closed:      bool(m.Closed),
		NegRisk:     bool(m.NegRisk),
		PeriodStart: domain.SlugTimestamp(m.MarketSlug),
	}
	if t, err := time.Parse(time.RFC3339, m.EndDateISO); err == nil {
		out.EndTime = t
	}
	for _, t := range m.Tokens {
		switch outcomeDirection(t.Outcome) {
		case domain.Up:
			out.UpTokenID = t.TokenID
		case domain.Down:
			out.DownTokenID = t.TokenID
		}
	}
	return out
}

func (m clobMarket) resolution() domain.MarketResolution {
	res := domain.MarketResolution{ConditionID: m.ConditionID, Closed: bool(m.Closed)}
	for _, t := range m.Tokens {
		if t.Winner {
			res.WinnerTokenID = t.TokenID
			break
		}
	}
	return res
}

// priceLevel is a single bid/ask level in REST and WebSocket book data.
type priceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// bookResponse is the /book response and the WebSocket "book" event.
type bookResponse struct {
	EventType string       `json:"event_type"`
	AssetID   string       `json:"asset_id"`
	Market    string       `json:"market"`
	Bids      []priceLevel `json:"bids"`
	Asks      []priceLevel `json:"asks"`
	Timestamp string       `json:"timestamp"`
}

// bestQuote reduces a book to its top of book. Levels are scanned rather than
// trusting the API's ordering. A book with no asks has no buyable price and is
// reported as malformed.
func (b bookResponse) bestQuote(tokenID string, at time.Time) (domain.Quote, error) {
	q := domain.Quote{TokenID: tokenID, At: at}
	for _, lvl := range b.Bids {
		p, err := strconv.ParseFloat(lvl.Price, 64)
		if err != nil {
			return domain.Quote{}, fmt.Errorf("%w: bid %q", domain.ErrMalformedQuote, lvl.Price)
		}
		if p > q.Bid {
			q.Bid = p
		}
	}
	for _, lvl := range b.Asks {
		p, err := strconv.ParseFloat(lvl.Price, 64)
		if err != nil {
			return domain.Quote{}, fmt.Errorf("%w: ask %q", domain.ErrMalformedQuote, lvl.Price)
		}
		if q.Ask == 0 || p < q.Ask {
			q.Ask = p
		}
	}
	if !q.Valid() {
		return domain.Quote{}, fmt.Errorf("%w: token %s bid=%v ask=%v", domain.ErrMalformedQuote, tokenID, q.Bid, q.Ask)
	}
	return q, nil
}

// apiOrderRequest is the POST /order body.
type apiOrderRequest struct {
	Order     apiSignedOrder `json:"order"`
	Owner     string         `json:"owner"`
	OrderType string         `json:"orderType"`
}

// apiSignedOrder is the wire form of a signed order.
type apiSignedOrder struct {
	Salt          int64  `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          string `json:"side"`
	SignatureType int    `json:"signatureType"`
	Signature     string `json:"signature"`
}

// apiOrderResult is the response from placing an order via the CLOB API.
type apiOrderResult struct {
	Success     bool   `json:"success"`
	ErrorMsg    string `json:"errorMsg,omitempty"`
	OrderID     string `json:"orderID,omitempty"`
	Status      string `json:"status,omitempty"`
	ShouldRetry bool   `json:"shouldRetry,omitempty"`
}

func (r apiOrderResult) toDomain() domain.OrderResult {
	return domain.OrderResult{
		Success:     r.Success && r.ErrorMsg == "",
		OrderID:     r.OrderID,
		Status:      mapOrderStatus(r.Status),
		Message:     r.ErrorMsg,
		ShouldRetry: r.ShouldRetry,
	}
}

// apiOrder is the /data/order/{id} response.
type apiOrder struct {
	ID           string    `json:"id"`
	Status       string    `json:"status"`
	OriginalSize flexFloat `json:"original_size"`
	SizeMatched  flexFloat `json:"size_matched"`
	Price        flexFloat `json:"price"`
	CreatedAt    int64     `json:"created_at"`
}

func (o apiOrder) toDomain() domain.OrderInfo {
	info := domain.OrderInfo{
		ID:           o.ID,
		Status:       mapOrderStatus(o.Status),
		OriginalSize: float64(o.OriginalSize),
		SizeMatched:  float64(o.SizeMatched),
		Price:        float64(o.Price),
	}
	if o.CreatedAt > 0 {
		info.UpdatedAt = time.Unix(o.CreatedAt, 0)
	}
	return info
}

// mapOrderStatus normalises CLOB status strings ("live", "LIVE", "matched",
// "ORDER_STATUS_CANCELED", ...) onto domain.OrderStatus.
func mapOrderStatus(s string) domain.OrderStatus {
	s = strings.ToLower(strings.TrimPrefix(strings.ToUpper(s), "ORDER_STATUS_"))
	switch s {
	case "live", "open", "unmatched":
		return domain.OrderStatusOpen
	case "matched", "filled", "mined", "confirmed":
		return domain.OrderStatusMatched
	case "delayed", "pending", "":
		return domain.OrderStatusPending
	case "cancelled", "canceled", "canceled_market_resolved", "invalid":
		return domain.OrderStatusCancelled
	default:
		return domain.OrderStatusFailed
	}
}

// balanceResponse is the /balance-allowance response. Amounts are strings in
// 1e6 base units.
type balanceResponse struct {
	Balance string `json:"balance"`
}

// apiKeyResponse is the /auth/derive-api-key response.
type apiKeyResponse struct {
	APIKey     string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

// --------------------------------------------------------------------------
// Relayer DTOs
// --------------------------------------------------------------------------

type relayerTx struct {
	To    string `json:"to"`
	Data  string `json:"data"`
	Value string `json:"value"`
}

type relayerSubmitRequest struct {
	From         string      `json:"from"`
	Transactions []relayerTx `json:"transactions"`
	Description  string      `json:"description"`
	Metadata     string      `json:"metadata,omitempty"`
}

type relayerSubmitResponse struct {
	TransactionID   string `json:"transactionID"`
	TransactionHash string `json:"transactionHash"`
	State           string `json:"state"`
}

type relayerTxStatus struct {
	TransactionID   string `json:"transactionID"`
	TransactionHash string `json:"transactionHash"`
	State           string `json:"state"`
	ErrorMsg        string `json:"errorMsg"`
}

// --------------------------------------------------------------------------
// WebSocket DTOs
// --------------------------------------------------------------------------

// wsSubscribe is the market-channel subscription frame.
type wsSubscribe struct {
	Type     string   `json:"type"`
	AssetIDs []string `json:"assets_ids"`
}

// wsPriceChangeEvent carries incremental level changes with the resulting
// best bid/ask per asset.
type wsPriceChangeEvent struct {
	EventType    string          `json:"event_type"`
	Market       string          `json:"market"`
	PriceChanges []wsPriceChange `json:"price_changes"`
	Timestamp    string          `json:"timestamp"`
}

type wsPriceChange struct {
	AssetID string `json:"asset_id"`
	Price   string `json:"price"`
	Size    string `json:"size"`
	Side    string `json:"side"`
	BestBid string `json:"best_bid"`
	BestAsk string `json:"best_ask"`
}
