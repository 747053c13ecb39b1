package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	"github.com/web3-frozen/compound-monitor/internal/chain"
)

// ApprovalStep ensures spender may pull amount of token from the signer.
// It returns the approval receipt, or nil when no approval was needed.
type ApprovalStep func(ctx context.Context, tr *chain.Transactor, token *chain.Contract, spender common.Address, amount *uint256.Int, logger *slog.Logger) (*types.Receipt, error)

// UnlimitedApproval grants the maximum allowance the first time the current
// one is insufficient, so later supplies skip the approve transaction.
func UnlimitedApproval(ctx context.Context, tr *chain.Transactor, token *chain.Contract, spender common.Address, amount *uint256.Int, logger *slog.Logger) (*types.Receipt, error) {
	return approveIfShort(ctx, tr, token, spender, amount, new(uint256.Int).SetAllOne(), logger)
}

// ExactApproval grants exactly amount whenever the allowance is short.
func ExactApproval(ctx context.Context, tr *chain.Transactor, token *chain.Contract, spender common.Address, amount *uint256.Int, logger *slog.Logger) (*types.Receipt, error) {
	return approveIfShort(ctx, tr, token, spender, amount, amount, logger)
}

func approveIfShort(ctx context.Context, tr *chain.Transactor, token *chain.Contract, spender common.Address, amount, grant *uint256.Int, logger *slog.Logger) (*types.Receipt, error) {
	allowance, err := token.CallUint256(ctx, "allowance", tr.From(), spender)
	if err != nil {
		return nil, fmt.Errorf("read allowance: %w", err)
	}
	if !allowance.Lt(amount) {
		return nil, nil
	}

	logger.Info("approving market to spend tokens", "spender", spender.Hex(), "allowance", allowance.Dec(), "grant", grant.Dec())
	tx, err := tr.Transact(ctx, token, "approve", spender, grant.ToBig())
	if err != nil {
		return nil, fmt.Errorf("approve: %w", err)
	}
	receipt, err := tr.WaitMined(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("approve: %w", err)
	}
	logger.Info("approved", "tx_hash", receipt.TxHash.Hex())
	return receipt, nil
}
