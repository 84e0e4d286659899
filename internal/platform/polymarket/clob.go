package polymarket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/updownbot/internal/crypto"
	"github.com/alanyoungcy/updownbot/internal/domain"
)

// ClobClient is the REST client for the Polymarket CLOB (Central Limit
// Order Book) API: books, orders, balances and market resolution.
type ClobClient struct {
	rest          restClient
	signer        *crypto.Signer
	funder        common.Address
	signatureType int

	mu    sync.RWMutex
	creds crypto.APICredentials

	now func() time.Time
}

// ClobConfig configures a ClobClient.
type ClobConfig struct {
	BaseURL       string
	Timeout       time.Duration
	SignatureType int
	// Funder is the address holding funds and positions. Zero means the
	// signer's own address.
	Funder common.Address
}

// NewClobClient creates a new CLOB REST client. signer may be nil for
// read-only use (books and markets).
func NewClobClient(cfg ClobConfig, signer *crypto.Signer) *ClobClient {
	funder := cfg.Funder
	if funder == (common.Address{}) && signer != nil {
		funder = signer.Address()
	}
	return &ClobClient{
		rest:          newRESTClient(cfg.BaseURL, cfg.Timeout),
		signer:        signer,
		funder:        funder,
		signatureType: cfg.SignatureType,
		now:           time.Now,
	}
}

// Funder returns the address whose balances are traded.
func (c *ClobClient) Funder() common.Address { return c.funder }

// SetCredentials installs L2 API credentials.
func (c *ClobClient) SetCredentials(creds crypto.APICredentials) {
	c.mu.Lock()
	c.creds = creds
	c.mu.Unlock()
}

// DeriveAPIKey performs the L1 auth flow: it signs a ClobAuth message and
// exchanges it for L2 API credentials, creating them if none exist yet.
func (c *ClobClient) DeriveAPIKey(ctx context.Context) (crypto.APICredentials, error) {
	if c.signer == nil {
		return crypto.APICredentials{}, fmt.Errorf("polymarket/clob: derive api key: %w: no signer", domain.ErrUnauthorized)
	}
	creds, err := c.l1Request(ctx, http.MethodGet, "/auth/derive-api-key")
	if errors.Is(err, domain.ErrNotFound) || (err == nil && creds.Key == "") {
		creds, err = c.l1Request(ctx, http.MethodPost, "/auth/api-key")
	}
	if err != nil {
		return crypto.APICredentials{}, fmt.Errorf("polymarket/clob: derive api key: %w", err)
	}
	c.SetCredentials(creds)
	return creds, nil
}

func (c *ClobClient) l1Request(ctx context.Context, method, path string) (crypto.APICredentials, error) {
	ts := c.now().Unix()
	sig, err := c.signer.SignAuth(ts, 0)
	if err != nil {
		return crypto.APICredentials{}, fmt.Errorf("%w: %v", domain.ErrSigningFailed, err)
	}
	body, err := c.rest.do(ctx, method, path, nil, map[string]string{
		"POLY_ADDRESS":   c.signer.Address().Hex(),
		"POLY_SIGNATURE": sig,
		"POLY_TIMESTAMP": strconv.FormatInt(ts, 10),
		"POLY_NONCE":     "0",
	})
	if err != nil {
		return crypto.APICredentials{}, err
	}
	var resp apiKeyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return crypto.APICredentials{}, fmt.Errorf("decode api key: %w", err)
	}
	return crypto.APICredentials{Key: resp.APIKey, Secret: resp.Secret, Passphrase: resp.Passphrase}, nil
}

// Market returns the CLOB view of a market, including token winners.
func (c *ClobClient) Market(ctx context.Context, conditionID string) (clobMarket, error) {
	body, err := c.rest.do(ctx, http.MethodGet, "/markets/"+url.PathEscape(conditionID), nil, nil)
	if err != nil {
		return clobMarket{}, fmt.Errorf("polymarket/clob: market %s: %w", conditionID, err)
	}
	var m clobMarket
	if err := json.Unmarshal(body, &m); err != nil {
		return clobMarket{}, fmt.Errorf("polymarket/clob: decode market %s: %w", conditionID, err)
	}
	return m, nil
}

// Quote returns the top of book for a token. An undecodable or empty book
// wraps domain.ErrMalformedQuote.
func (c *ClobClient) Quote(ctx context.Context, tokenID string) (domain.Quote, error) {
	q := url.Values{}
	q.Set("token_id", tokenID)
	body, err := c.rest.do(ctx, http.MethodGet, "/book?"+q.Encode(), nil, nil)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("polymarket/clob: book %s: %w", tokenID, err)
	}
	var book bookResponse
	if err := json.Unmarshal(body, &book); err != nil {
		return domain.Quote{}, fmt.Errorf("polymarket/clob: book %s: %w: %v", tokenID, domain.ErrMalformedQuote, err)
	}
	quote, err := book.bestQuote(tokenID, c.now())
	if err != nil {
		return domain.Quote{}, fmt.Errorf("polymarket/clob: book %s: %w", tokenID, err)
	}
	return quote, nil
}

// PostOrder builds, signs and submits an order. A response with
// success=false is returned together with domain.ErrOrderRejected.
func (c *ClobClient) PostOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	if c.signer == nil {
		return domain.OrderResult{}, fmt.Errorf("polymarket/clob: post order: %w: no signer", domain.ErrUnauthorized)
	}
	order, err := buildOrder(req, c.funder, c.signer.Address(), c.signatureType)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("polymarket/clob: build order: %w", err)
	}
	sig, err := c.signer.SignOrder(order, req.NegRisk)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("polymarket/clob: %w: %v", domain.ErrSigningFailed, err)
	}

	c.mu.RLock()
	owner := c.creds.Key
	c.mu.RUnlock()
	orderType := req.Type
	if orderType == "" {
		orderType = domain.OrderTypeGTC
	}
	body, err := json.Marshal(apiOrderRequest{
		Order:     wireOrder(order, sig),
		Owner:     owner,
		OrderType: string(orderType),
	})
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("polymarket/clob: marshal order: %w", err)
	}

	respBody, err := c.authed(ctx, http.MethodPost, "/order", "", body)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("polymarket/clob: post order: %w", err)
	}
	var apiResult apiOrderResult
	if err := json.Unmarshal(respBody, &apiResult); err != nil {
		return domain.OrderResult{}, fmt.Errorf("polymarket/clob: decode order result: %w", err)
	}
	result := apiResult.toDomain()
	if !result.Success {
		return result, fmt.Errorf("polymarket/clob: %w: %s", domain.ErrOrderRejected, result.Message)
	}
	return result, nil
}

// CancelOrder cancels a single order by its ID.
func (c *ClobClient) CancelOrder(ctx context.Context, orderID string) error {
	body, _ := json.Marshal(map[string]string{"orderID": orderID})
	respBody, err := c.authed(ctx, http.MethodDelete, "/order", "", body)
	if err != nil {
		return fmt.Errorf("polymarket/clob: cancel order %s: %w", orderID, err)
	}
	var result struct {
		NotCanceled map[string]string `json:"not_canceled"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("polymarket/clob: decode cancel response: %w", err)
	}
	if reason, ok := result.NotCanceled[orderID]; ok {
		return fmt.Errorf("polymarket/clob: cancel order %s: %s", orderID, reason)
	}
	return nil
}

// Order retrieves a single order by ID.
func (c *ClobClient) Order(ctx context.Context, orderID string) (domain.OrderInfo, error) {
	respBody, err := c.authed(ctx, http.MethodGet, "/data/order/"+url.PathEscape(orderID), "", nil)
	if err != nil {
		return domain.OrderInfo{}, fmt.Errorf("polymarket/clob: get order %s: %w", orderID, err)
	}
	var o apiOrder
	if err := json.Unmarshal(respBody, &o); err != nil {
		return domain.OrderInfo{}, fmt.Errorf("polymarket/clob: decode order: %w", err)
	}
	return o.toDomain(), nil
}

// Balance returns the funder's conditional token balance in shares.
func (c *ClobClient) Balance(ctx context.Context, tokenID string) (float64, error) {
	respBody, err := c.authed(ctx, http.MethodGet, "/balance-allowance", c.balanceQuery(tokenID), nil)
	if err != nil {
		return 0, fmt.Errorf("polymarket/clob: balance %s: %w", tokenID, err)
	}
	var resp balanceResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return 0, fmt.Errorf("polymarket/clob: decode balance: %w", err)
	}
	shares, err := sharesFromBaseUnits(resp.Balance)
	if err != nil {
		return 0, fmt.Errorf("polymarket/clob: %w", err)
	}
	return shares, nil
}

// RefreshAllowance asks the CLOB to re-read the on-chain balance and
// allowance for a token, which unblocks sells right after a fill.
func (c *ClobClient) RefreshAllowance(ctx context.Context, tokenID string) error {
	if _, err := c.authed(ctx, http.MethodGet, "/balance-allowance/update", c.balanceQuery(tokenID), nil); err != nil {
		return fmt.Errorf("polymarket/clob: refresh allowance %s: %w", tokenID, err)
	}
	return nil
}

func (c *ClobClient) balanceQuery(tokenID string) string {
	q := url.Values{}
	q.Set("asset_type", "CONDITIONAL")
	q.Set("token_id", tokenID)
	q.Set("signature_type", strconv.Itoa(c.signatureType))
	return q.Encode()
}

// authed sends an L2-authenticated request. Only the path is signed; the
// query string is appended afterwards.
func (c *ClobClient) authed(ctx context.Context, method, path, query string, body []byte) ([]byte, error) {
	c.mu.RLock()
	creds := c.creds
	c.mu.RUnlock()
	if creds.Empty() || c.signer == nil {
		return nil, fmt.Errorf("%w: no api credentials", domain.ErrUnauthorized)
	}
	headers := creds.L2HeadersAt(c.signer.Address().Hex(), method, path, string(body), c.now().Unix())
	target := path
	if query != "" {
		target += "?" + query
	}
	return c.rest.do(ctx, method, target, body, headers)
}
