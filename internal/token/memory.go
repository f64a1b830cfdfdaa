package token

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dehublabs/predictiond/internal/domain"
)

// MemoryVault is an in-process token with custody accounting, used by the
// standalone mode and tests. Every debit is checked against the custody
// balance — the vault can never pay out more than it holds.
type MemoryVault struct {
	mu       sync.Mutex
	balances map[common.Address]*big.Int
	custody  *big.Int
}

// NewMemoryVault creates an empty vault.
func NewMemoryVault() *MemoryVault {
	return &MemoryVault{
		balances: make(map[common.Address]*big.Int),
		custody:  new(big.Int),
	}
}

// Mint credits addr with amount, funding it for bets.
func (v *MemoryVault) Mint(addr common.Address, amount *big.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.balance(addr).Add(v.balance(addr), amount)
}

// Deposit moves amount from addr's balance into custody.
func (v *MemoryVault) Deposit(ctx context.Context, from common.Address, amount *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	bal := v.balance(from)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s, needs %s", domain.ErrInsufficientFunds, from.Hex(), bal, amount)
	}
	bal.Sub(bal, amount)
	v.custody.Add(v.custody, amount)
	return nil
}

// Withdraw moves amount from custody to addr's balance.
func (v *MemoryVault) Withdraw(ctx context.Context, to common.Address, amount *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.custody.Cmp(amount) < 0 {
		return fmt.Errorf("%w: custody holds %s, owes %s", domain.ErrInsufficientFunds, v.custody, amount)
	}
	v.custody.Sub(v.custody, amount)
	v.balance(to).Add(v.balance(to), amount)
	return nil
}

// BalanceOf returns addr's free balance.
func (v *MemoryVault) BalanceOf(addr common.Address) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return new(big.Int).Set(v.balance(addr))
}

// CustodyBalance returns the total held in custody.
func (v *MemoryVault) CustodyBalance() *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return new(big.Int).Set(v.custody)
}

func (v *MemoryVault) balance(addr common.Address) *big.Int {
	b, ok := v.balances[addr]
	if !ok {
		b = new(big.Int)
		v.balances[addr] = b
	}
	return b
}
