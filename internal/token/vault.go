package token

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ChainVault adapts an ERC20Client to the engine's custody interface.
// Deposits pull stakes into the custody account via transferFrom (bettors
// approve the custody address beforehand); withdrawals transfer back out.
type ChainVault struct {
	token *ERC20Client
}

// NewChainVault creates a ChainVault over the given token client.
func NewChainVault(token *ERC20Client) *ChainVault {
	return &ChainVault{token: token}
}

// Deposit pulls amount from the bettor into custody.
func (v *ChainVault) Deposit(ctx context.Context, from common.Address, amount *big.Int) error {
	return v.token.TransferFrom(ctx, from, amount)
}

// Withdraw pays amount out of custody.
func (v *ChainVault) Withdraw(ctx context.Context, to common.Address, amount *big.Int) error {
	return v.token.Transfer(ctx, to, amount)
}
