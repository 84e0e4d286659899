package polymarket

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/updownbot/internal/crypto"
)

// Polygon mainnet contract addresses.
var (
	ConditionalTokensAddress = common.HexToAddress("0x4D97DCd97eC945f40cF65F87097ACe5EA0476045")
	CollateralAddress        = common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174")
	CTFExchangeAddress       = common.HexToAddress(crypto.CTFExchangeAddress)
	NegRiskExchangeAddress   = common.HexToAddress(crypto.NegRiskExchangeAddress)
	NegRiskAdapterAddress    = common.HexToAddress("0xd91E80cF2E7be2e162c6513ceD06f1dD0dA35296")
)

// binaryPartition is the index set pair {Up, Down} of a two-outcome
// condition.
var binaryPartition = []*big.Int{big.NewInt(1), big.NewInt(2)}

const conditionalTokensABI = `[
  {"type":"function","name":"redeemPositions","stateMutability":"nonpayable","inputs":[
    {"name":"collateralToken","type":"address"},
    {"name":"parentCollectionId","type":"bytes32"},
    {"name":"conditionId","type":"bytes32"},
    {"name":"indexSets","type":"uint256[]"}],"outputs":[]},
  {"type":"function","name":"mergePositions","stateMutability":"nonpayable","inputs":[
    {"name":"collateralToken","type":"address"},
    {"name":"parentCollectionId","type":"bytes32"},
    {"name":"conditionId","type":"bytes32"},
    {"name":"partition","type":"uint256[]"},
    {"name":"amount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"setApprovalForAll","stateMutability":"nonpayable","inputs":[
    {"name":"operator","type":"address"},
    {"name":"approved","type":"bool"}],"outputs":[]},
  {"type":"function","name":"isApprovedForAll","stateMutability":"view","inputs":[
    {"name":"owner","type":"address"},
    {"name":"operator","type":"address"}],"outputs":[{"name":"","type":"bool"}]}
]`

var ctfABI = mustParseABI(conditionalTokensABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("polymarket/ctf: parse abi: %v", err))
	}
	return parsed
}

// conditionBytes parses a 0x-prefixed 32-byte condition id.
func conditionBytes(conditionID string) ([32]byte, error) {
	var out [32]byte
	raw := strings.TrimPrefix(conditionID, "0x")
	if len(raw) != 64 {
		return out, fmt.Errorf("polymarket/ctf: condition id %q is not 32 bytes", conditionID)
	}
	b := common.FromHex(raw)
	if len(b) != 32 {
		return out, fmt.Errorf("polymarket/ctf: condition id %q is not hex", conditionID)
	}
	copy(out[:], b)
	return out, nil
}

// packRedeem encodes redeemPositions(USDC, 0x0, condition, [1, 2]).
func packRedeem(conditionID string) ([]byte, error) {
	cond, err := conditionBytes(conditionID)
	if err != nil {
		return nil, err
	}
	return ctfABI.Pack("redeemPositions", CollateralAddress, [32]byte{}, cond, binaryPartition)
}

// packMerge encodes mergePositions for amount base units of each outcome.
func packMerge(conditionID string, amount *big.Int) ([]byte, error) {
	cond, err := conditionBytes(conditionID)
	if err != nil {
		return nil, err
	}
	return ctfABI.Pack("mergePositions", CollateralAddress, [32]byte{}, cond, binaryPartition, amount)
}

func packSetApprovalForAll(operator common.Address) ([]byte, error) {
	return ctfABI.Pack("setApprovalForAll", operator, true)
}

func packIsApprovedForAll(owner, operator common.Address) ([]byte, error) {
	return ctfABI.Pack("isApprovedForAll", owner, operator)
}

func unpackIsApprovedForAll(out []byte) (bool, error) {
	vals, err := ctfABI.Unpack("isApprovedForAll", out)
	if err != nil {
		return false, fmt.Errorf("polymarket/ctf: unpack isApprovedForAll: %w", err)
	}
	if len(vals) != 1 {
		return false, fmt.Errorf("polymarket/ctf: isApprovedForAll returned %d values", len(vals))
	}
	approved, ok := vals[0].(bool)
	if !ok {
		return false, fmt.Errorf("polymarket/ctf: isApprovedForAll returned %T", vals[0])
	}
	return approved, nil
}
