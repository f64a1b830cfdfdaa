package engine

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dehublabs/predictiond/internal/domain"
)

// PlaceBet stakes amount on a direction in the given epoch. The epoch must be
// the currently open, not-yet-locked round and height must fall inside its
// betting window. Custody is pulled from the bettor before any state is
// recorded; a failed pull leaves no trace.
func (e *Engine) PlaceBet(ctx context.Context, caller common.Address, epoch uint64, direction domain.Position, amount *big.Int, height uint64) (domain.Bet, domain.Round, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireReady(); err != nil {
		return domain.Bet{}, domain.Round{}, err
	}
	if !direction.Valid() {
		return domain.Bet{}, domain.Round{}, fmt.Errorf("engine: unknown direction %q", direction)
	}

	r, ok := e.rounds[epoch]
	if !ok || epoch != e.currentEpoch || !r.Bettable(height) {
		return domain.Bet{}, domain.Round{}, domain.ErrRoundNotBettable
	}
	if amount == nil || amount.Sign() <= 0 || amount.Cmp(e.cfg.MinBetAmount) < 0 {
		return domain.Bet{}, domain.Round{}, domain.ErrBelowMinimum
	}

	key := betKey{epoch, caller}
	existing, exists := e.bets[key]
	if exists {
		if e.cfg.BetPolicy == domain.BetPolicyReject || existing.Direction != direction {
			return domain.Bet{}, domain.Round{}, domain.ErrDuplicateBet
		}
	}

	if err := e.vault.Deposit(ctx, caller, amount); err != nil {
		return domain.Bet{}, domain.Round{}, fmt.Errorf("engine: pull stake: %w", err)
	}

	// Custody secured; record the bet. Nothing below can fail.
	now := time.Now().UTC()
	var bet *domain.Bet
	if exists {
		existing.Amount.Add(existing.Amount, amount)
		existing.UpdatedAt = now
		bet = existing
	} else {
		bet = &domain.Bet{
			Epoch:     epoch,
			Bettor:    caller,
			Direction: direction,
			Amount:    new(big.Int).Set(amount),
			CreatedAt: now,
			UpdatedAt: now,
		}
		e.bets[key] = bet
	}

	r.TotalAmount.Add(r.TotalAmount, amount)
	if direction == domain.PositionBull {
		r.BullAmount.Add(r.BullAmount, amount)
	} else {
		r.BearAmount.Add(r.BearAmount, amount)
	}
	r.UpdatedAt = now

	return bet.Clone(), r.Clone(), nil
}
