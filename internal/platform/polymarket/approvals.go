package polymarket

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// ContractCaller performs read-only contract calls. *ethclient.Client
// satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// approvalOperator is a contract that must be allowed to move the wallet's
// conditional tokens before sells settle.
type approvalOperator struct {
	name    string
	address common.Address
}

var approvalOperators = []approvalOperator{
	{name: "CTF Exchange", address: CTFExchangeAddress},
	{name: "Neg Risk CTF Exchange", address: NegRiskExchangeAddress},
	{name: "Neg Risk Adapter", address: NegRiskAdapterAddress},
}

// ApprovalStatus reads isApprovedForAll for each exchange operator.
func (e *Exchange) ApprovalStatus(ctx context.Context) ([]domain.Approval, error) {
	if e.caller == nil {
		return nil, fmt.Errorf("polymarket/approvals: no rpc client configured")
	}
	out := make([]domain.Approval, 0, len(approvalOperators))
	for _, op := range approvalOperators {
		data, err := packIsApprovedForAll(e.owner, op.address)
		if err != nil {
			return nil, fmt.Errorf("polymarket/approvals: pack: %w", err)
		}
		to := ConditionalTokensAddress
		res, err := e.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
		if err != nil {
			return nil, fmt.Errorf("polymarket/approvals: isApprovedForAll %s: %w", op.name, err)
		}
		approved, err := unpackIsApprovedForAll(res)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.Approval{Operator: op.name, Approved: approved})
	}
	return out, nil
}

// SetApprovals grants setApprovalForAll through the relayer to every operator
// that is not yet approved.
func (e *Exchange) SetApprovals(ctx context.Context) error {
	status, err := e.ApprovalStatus(ctx)
	if err != nil {
		return err
	}
	approved := make(map[string]bool, len(status))
	for _, s := range status {
		approved[s.Operator] = s.Approved
	}
	for _, op := range approvalOperators {
		if approved[op.name] {
			continue
		}
		data, err := packSetApprovalForAll(op.address)
		if err != nil {
			return fmt.Errorf("polymarket/approvals: pack: %w", err)
		}
		if _, err := e.execute(ctx, data, "setApprovalForAll "+op.name); err != nil {
			return fmt.Errorf("polymarket/approvals: %s: %w", op.name, err)
		}
	}
	return nil
}
