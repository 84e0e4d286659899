package polymarket

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/updownbot/internal/crypto"
	"github.com/alanyoungcy/updownbot/internal/domain"
)

// Rounding for the 0.01 tick size used by the Up/Down markets.
const (
	priceDecimals  = 2
	sizeDecimals   = 2
	amountDecimals = 4
	baseUnitShift  = 6 // USDC and conditional tokens both use 6 decimals
)

// maxSalt keeps salts inside the range a JSON number represents exactly.
var maxSalt = big.NewInt(1 << 53)

// orderAmounts converts a request into the signed maker/taker amounts in
// base units.
//
// BUY:  maker pays USDC, taker side is shares.
// SELL: maker gives shares, taker side is USDC.
func orderAmounts(req domain.OrderRequest) (maker, taker *big.Int, err error) {
	price := decimal.NewFromFloat(req.Price).Round(priceDecimals)
	if price.LessThanOrEqual(decimal.Zero) || price.GreaterThan(decimal.NewFromInt(1)) {
		return nil, nil, fmt.Errorf("%w: price %v outside (0, 1]", domain.ErrInvalidOrder, req.Price)
	}

	var makerAmt, takerAmt decimal.Decimal
	switch {
	case req.IsMarketBuy():
		usd := decimal.NewFromFloat(req.Amount).RoundDown(sizeDecimals)
		makerAmt = usd
		takerAmt = usd.DivRound(price, amountDecimals+2).RoundDown(amountDecimals)
	case req.Side == domain.OrderSideBuy:
		size := decimal.NewFromFloat(req.Size).RoundDown(sizeDecimals)
		makerAmt = size.Mul(price).Round(amountDecimals)
		takerAmt = size
	case req.Side == domain.OrderSideSell:
		size := decimal.NewFromFloat(req.Size).RoundDown(sizeDecimals)
		makerAmt = size
		takerAmt = size.Mul(price).Round(amountDecimals)
	default:
		return nil, nil, fmt.Errorf("%w: unknown side %q", domain.ErrInvalidOrder, req.Side)
	}
	if !makerAmt.IsPositive() || !takerAmt.IsPositive() {
		return nil, nil, fmt.Errorf("%w: order rounds to zero (price=%v size=%v amount=%v)",
			domain.ErrInvalidOrder, req.Price, req.Size, req.Amount)
	}
	return makerAmt.Shift(baseUnitShift).BigInt(), takerAmt.Shift(baseUnitShift).BigInt(), nil
}

// buildOrder assembles the unsigned exchange order for req.
func buildOrder(req domain.OrderRequest, maker, signer common.Address, signatureType int) (crypto.Order, error) {
	tokenID, ok := new(big.Int).SetString(req.TokenID, 10)
	if !ok {
		return crypto.Order{}, fmt.Errorf("%w: token id %q is not decimal", domain.ErrInvalidOrder, req.TokenID)
	}
	makerAmt, takerAmt, err := orderAmounts(req)
	if err != nil {
		return crypto.Order{}, err
	}
	salt, err := rand.Int(rand.Reader, maxSalt)
	if err != nil {
		return crypto.Order{}, fmt.Errorf("polymarket/order: salt: %w", err)
	}
	side := crypto.SideBuy
	if req.Side == domain.OrderSideSell {
		side = crypto.SideSell
	}
	return crypto.Order{
		Salt:          salt,
		Maker:         maker,
		Signer:        signer,
		Taker:         common.Address{},
		TokenID:       tokenID,
		MakerAmount:   makerAmt,
		TakerAmount:   takerAmt,
		Expiration:    big.NewInt(0),
		Nonce:         big.NewInt(0),
		FeeRateBps:    big.NewInt(0),
		Side:          side,
		SignatureType: uint8(signatureType),
	}, nil
}

// wireOrder renders a signed order in the POST /order format.
func wireOrder(o crypto.Order, signature string) apiSignedOrder {
	side := string(domain.OrderSideBuy)
	if o.Side == crypto.SideSell {
		side = string(domain.OrderSideSell)
	}
	return apiSignedOrder{
		Salt:          o.Salt.Int64(),
		Maker:         o.Maker.Hex(),
		Signer:        o.Signer.Hex(),
		Taker:         o.Taker.Hex(),
		TokenID:       o.TokenID.String(),
		MakerAmount:   o.MakerAmount.String(),
		TakerAmount:   o.TakerAmount.String(),
		Expiration:    o.Expiration.String(),
		Nonce:         o.Nonce.String(),
		FeeRateBps:    o.FeeRateBps.String(),
		Side:          side,
		SignatureType: int(o.SignatureType),
		Signature:     signature,
	}
}

// sharesFromBaseUnits converts a 1e6-scaled integer string to shares.
func sharesFromBaseUnits(raw string) (float64, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("parse balance %q: %w", raw, err)
	}
	return d.Shift(-baseUnitShift).InexactFloat64(), nil
}
