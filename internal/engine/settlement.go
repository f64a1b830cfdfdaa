package engine

import (
	"math/big"
	"time"

	"github.com/dehublabs/predictiond/internal/domain"
)

// executeRound binds the close price and settles the round: outcome from the
// price pair, fee off the top once, and the frozen reward figures that let
// every bettor compute their payout without iterating over other bettors.
// Callers must hold e.mu.
func (e *Engine) executeRound(r *domain.Round, sample *domain.PriceSample) {
	r.ClosePrice = new(big.Int).Set(sample.Price)
	r.CloseOracleID = new(big.Int).Set(sample.OracleRoundID)
	e.lastOracleRoundID = new(big.Int).Set(sample.OracleRoundID)

	switch r.ClosePrice.Cmp(r.LockPrice) {
	case 1:
		r.Outcome = domain.OutcomeBull
	case -1:
		r.Outcome = domain.OutcomeBear
	default:
		// Price unchanged: no directional signal. Refund everyone rather
		// than arbitrarily picking a winner.
		e.cancelRound(r)
		return
	}

	winning := r.BullAmount
	if r.Outcome == domain.OutcomeBear {
		winning = r.BearAmount
	}
	if winning.Sign() == 0 {
		// Nobody bet on the side that turned out correct; a proportional
		// split against a zero denominator is undefined. Refund everyone.
		e.cancelRound(r)
		return
	}

	fee := protocolFee(r.TotalAmount, e.cfg.TreasuryFeeBps)
	r.RewardBaseCalAmount = new(big.Int).Set(winning)
	r.RewardAmount = new(big.Int).Sub(r.TotalAmount, fee)
	e.treasury.Add(e.treasury, fee)

	r.State = domain.RoundExecuted
	r.UpdatedAt = time.Now().UTC()
}

// protocolFee is total * bps / 10000, rounded down.
func protocolFee(total *big.Int, bps uint64) *big.Int {
	fee := new(big.Int).Mul(total, new(big.Int).SetUint64(bps))
	return fee.Div(fee, big.NewInt(feeDenominator))
}

// payout is stake * rewardAmount / rewardBaseCalAmount with integer division
// rounding down. The protocol consistently under-distributes: summed over all
// winners the payouts never exceed rewardAmount, and the last fractional
// units of the pool remain as dust in custody.
func payout(stake, rewardAmount, rewardBase *big.Int) *big.Int {
	p := new(big.Int).Mul(stake, rewardAmount)
	return p.Div(p, rewardBase)
}
