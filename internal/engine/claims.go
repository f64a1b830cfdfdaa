package engine

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dehublabs/predictiond/internal/domain"
)

// Claimable reports whether bettor holds an unclaimed winning bet in the
// given epoch: the round executed with a decided outcome and the bet's
// direction matches it.
func (e *Engine) Claimable(epoch uint64, bettor common.Address) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, ok := e.bets[betKey{epoch, bettor}]
	if !ok || b.Claimed {
		return false
	}
	r, ok := e.rounds[epoch]
	if !ok || !r.Settled() || r.Cancelled() {
		return false
	}
	return r.Outcome.Matches(b.Direction)
}

// Refundable reports whether bettor holds an unclaimed bet in a cancelled
// round, reclaimable at its original amount.
func (e *Engine) Refundable(epoch uint64, bettor common.Address) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, ok := e.bets[betKey{epoch, bettor}]
	if !ok || b.Claimed {
		return false
	}
	r, ok := e.rounds[epoch]
	return ok && r.Settled() && r.Cancelled()
}

// Claim pays out a winning bet, or refunds the original stake for a
// cancelled round, exactly once. The single outbound transfer happens before
// the claimed flag is set; nothing in between can fail.
func (e *Engine) Claim(ctx context.Context, caller common.Address, epoch uint64) (domain.Bet, *big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return domain.Bet{}, nil, domain.ErrNotInitialized
	}

	b, ok := e.bets[betKey{epoch, caller}]
	if !ok {
		return domain.Bet{}, nil, domain.ErrNoBetFound
	}
	if b.Claimed {
		return domain.Bet{}, nil, domain.ErrAlreadyClaimed
	}

	r, ok := e.rounds[epoch]
	if !ok || !r.Settled() {
		return domain.Bet{}, nil, domain.ErrNotClaimable
	}

	var amount *big.Int
	switch {
	case r.Cancelled():
		amount = new(big.Int).Set(b.Amount)
	case r.Outcome.Matches(b.Direction):
		amount = payout(b.Amount, r.RewardAmount, r.RewardBaseCalAmount)
	default:
		return domain.Bet{}, nil, domain.ErrNotClaimable
	}

	if err := e.vault.Withdraw(ctx, caller, amount); err != nil {
		return domain.Bet{}, nil, fmt.Errorf("engine: pay claim: %w", err)
	}

	b.Claimed = true
	b.UpdatedAt = time.Now().UTC()
	return b.Clone(), amount, nil
}

// ClaimTreasury withdraws the accrued protocol fee to the admin. Admin only.
func (e *Engine) ClaimTreasury(ctx context.Context, caller common.Address) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return nil, domain.ErrNotInitialized
	}
	if err := e.roles.RequireAdmin(caller); err != nil {
		return nil, err
	}
	if e.treasury.Sign() == 0 {
		return new(big.Int), nil
	}

	amount := new(big.Int).Set(e.treasury)
	if err := e.vault.Withdraw(ctx, caller, amount); err != nil {
		return nil, fmt.Errorf("engine: pay treasury: %w", err)
	}
	e.treasury.SetInt64(0)
	return amount, nil
}
