package polymarket

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// Exchange combines the Gamma, CLOB and relayer clients behind the domain
// interfaces used by discovery, the monitor and the trader.
type Exchange struct {
	gamma   *GammaClient
	clob    *ClobClient
	relayer *RelayerClient
	caller  ContractCaller
	owner   common.Address
}

// NewExchange wires the clients. relayer and caller may be nil, in which
// case settlement and approval calls fail.
func NewExchange(gamma *GammaClient, clob *ClobClient, relayer *RelayerClient, caller ContractCaller) *Exchange {
	return &Exchange{
		gamma:   gamma,
		clob:    clob,
		relayer: relayer,
		caller:  caller,
		owner:   clob.Funder(),
	}
}

// MarketBySlug implements domain.MarketFinder.
func (e *Exchange) MarketBySlug(ctx context.Context, slug string) (domain.Market, error) {
	return e.gamma.MarketBySlug(ctx, slug)
}

// MarketByCondition implements domain.TokenResolver.
func (e *Exchange) MarketByCondition(ctx context.Context, conditionID string) (domain.Market, error) {
	m, err := e.clob.Market(ctx, conditionID)
	if err != nil {
		return domain.Market{}, err
	}
	return m.toDomain(), nil
}

// Quote implements domain.QuoteSource.
func (e *Exchange) Quote(ctx context.Context, tokenID string) (domain.Quote, error) {
	return e.clob.Quote(ctx, tokenID)
}

// PlaceOrder implements domain.OrderGateway.
func (e *Exchange) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	return e.clob.PostOrder(ctx, req)
}

func (e *Exchange) CancelOrder(ctx context.Context, orderID string) error {
	return e.clob.CancelOrder(ctx, orderID)
}

func (e *Exchange) Order(ctx context.Context, orderID string) (domain.OrderInfo, error) {
	return e.clob.Order(ctx, orderID)
}

// Balance implements domain.BalanceReader.
func (e *Exchange) Balance(ctx context.Context, tokenID string) (float64, error) {
	return e.clob.Balance(ctx, tokenID)
}

func (e *Exchange) RefreshAllowance(ctx context.Context, tokenID string) error {
	return e.clob.RefreshAllowance(ctx, tokenID)
}

// Resolution implements domain.Settlement.
func (e *Exchange) Resolution(ctx context.Context, conditionID string) (domain.MarketResolution, error) {
	m, err := e.clob.Market(ctx, conditionID)
	if err != nil {
		return domain.MarketResolution{}, err
	}
	return m.resolution(), nil
}

// Redeem burns both outcome tokens of a resolved condition for USDC.
func (e *Exchange) Redeem(ctx context.Context, conditionID string) (domain.SettlementResult, error) {
	data, err := packRedeem(conditionID)
	if err != nil {
		return domain.SettlementResult{}, err
	}
	return e.execute(ctx, data, "redeem positions "+conditionID)
}

// Merge converts `shares` complete Up+Down sets back into USDC. Shares are
// truncated to the 0.01 lot size before conversion to base units.
func (e *Exchange) Merge(ctx context.Context, conditionID string, shares float64) (domain.SettlementResult, error) {
	amount := decimal.NewFromFloat(shares).RoundDown(sizeDecimals).Shift(baseUnitShift)
	if !amount.IsPositive() {
		return domain.SettlementResult{}, fmt.Errorf("polymarket/exchange: %w: merge amount %v", domain.ErrInvalidOrder, shares)
	}
	data, err := packMerge(conditionID, amount.BigInt())
	if err != nil {
		return domain.SettlementResult{}, err
	}
	return e.execute(ctx, data, "merge positions "+conditionID)
}

func (e *Exchange) execute(ctx context.Context, data []byte, description string) (domain.SettlementResult, error) {
	if e.relayer == nil {
		return domain.SettlementResult{}, fmt.Errorf("polymarket/exchange: %w: relayer not configured", domain.ErrUnauthorized)
	}
	return e.relayer.Execute(ctx, ConditionalTokensAddress, data, description)
}
