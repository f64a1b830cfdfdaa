// Package domain defines the core types of the prediction engine: rounds,
// bets, oracle samples, the error taxonomy, and the store interfaces that the
// persistence layer implements.
package domain

import (
	"math/big"
	"time"
)

// Position is the direction of a bet relative to the lock price.
type Position string

const (
	PositionBull Position = "bull"
	PositionBear Position = "bear"
)

// Valid reports whether p is one of the two known directions.
func (p Position) Valid() bool {
	return p == PositionBull || p == PositionBear
}

// Outcome is the settled result of a round. It stays Undecided until the
// round executes, then becomes immutable.
type Outcome string

const (
	OutcomeUndecided Outcome = "undecided"
	OutcomeBull      Outcome = "bull"
	OutcomeBear      Outcome = "bear"
	OutcomeCancelled Outcome = "cancelled"
)

// Matches reports whether a decided outcome corresponds to the given bet
// direction.
func (o Outcome) Matches(p Position) bool {
	return (o == OutcomeBull && p == PositionBull) ||
		(o == OutcomeBear && p == PositionBear)
}

// RoundState is the lifecycle state of a round. A round is Created between
// its start and lock blocks, Locked between lock and close, and Executed
// (terminal) once settled or cancelled.
type RoundState string

const (
	RoundCreated  RoundState = "created"
	RoundLocked   RoundState = "locked"
	RoundExecuted RoundState = "executed"
)

// Round is one betting window. Epochs are assigned contiguously starting at 1
// and are never reused. Block heights are fixed at creation; prices and
// oracle round IDs are nil until bound.
type Round struct {
	Epoch      uint64
	StartBlock uint64
	LockBlock  uint64
	CloseBlock uint64

	LockPrice     *big.Int
	ClosePrice    *big.Int
	LockOracleID  *big.Int
	CloseOracleID *big.Int

	TotalAmount *big.Int
	BullAmount  *big.Int
	BearAmount  *big.Int

	// RewardBaseCalAmount is the winning side's pool at execution time;
	// RewardAmount is the fee-adjusted total pool distributed to winners.
	RewardBaseCalAmount *big.Int
	RewardAmount        *big.Int

	Outcome Outcome
	State   RoundState

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewRound creates a Round opening at startBlock with the given block
// interval. lockBlock = startBlock + interval, closeBlock = lockBlock + interval.
func NewRound(epoch, startBlock, intervalBlocks uint64) Round {
	now := time.Now().UTC()
	return Round{
		Epoch:       epoch,
		StartBlock:  startBlock,
		LockBlock:   startBlock + intervalBlocks,
		CloseBlock:  startBlock + 2*intervalBlocks,
		TotalAmount: new(big.Int),
		BullAmount:  new(big.Int),
		BearAmount:  new(big.Int),
		Outcome:     OutcomeUndecided,
		State:       RoundCreated,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Bettable reports whether a bet can still enter this round at the given
// block height: the round must not be locked and the height must be inside
// [startBlock, lockBlock).
func (r *Round) Bettable(height uint64) bool {
	return r.State == RoundCreated &&
		height >= r.StartBlock && height < r.LockBlock
}

// Settled reports whether the round reached its terminal state.
func (r *Round) Settled() bool {
	return r.State == RoundExecuted
}

// Cancelled reports whether the round ended refund-only.
func (r *Round) Cancelled() bool {
	return r.Outcome == OutcomeCancelled
}

// Clone returns a deep copy. big.Int fields are copied so callers can hold
// the result across further engine mutations.
func (r *Round) Clone() Round {
	c := *r
	c.LockPrice = cloneBig(r.LockPrice)
	c.ClosePrice = cloneBig(r.ClosePrice)
	c.LockOracleID = cloneBig(r.LockOracleID)
	c.CloseOracleID = cloneBig(r.CloseOracleID)
	c.TotalAmount = cloneBig(r.TotalAmount)
	c.BullAmount = cloneBig(r.BullAmount)
	c.BearAmount = cloneBig(r.BearAmount)
	c.RewardBaseCalAmount = cloneBig(r.RewardBaseCalAmount)
	c.RewardAmount = cloneBig(r.RewardAmount)
	return c
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
