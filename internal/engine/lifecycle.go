package engine

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dehublabs/predictiond/internal/domain"
)

// EventType identifies a round lifecycle event produced by a tick.
type EventType string

const (
	EventRoundStarted   EventType = "round_started"
	EventRoundLocked    EventType = "round_locked"
	EventRoundExecuted  EventType = "round_executed"
	EventRoundCancelled EventType = "round_cancelled"
)

// Event is one lifecycle event together with a snapshot of the round as it
// looked right after the event.
type Event struct {
	Type  EventType
	Round domain.Round
}

// Transition is the result of a lifecycle call: the ordered events of the
// tick. Rounds() yields the distinct rounds touched, for persistence.
type Transition struct {
	Events []Event
}

func (t *Transition) add(typ EventType, r *domain.Round) {
	t.Events = append(t.Events, Event{Type: typ, Round: r.Clone()})
}

// Rounds returns the final snapshot of every round touched by the tick, in
// event order with duplicates collapsed (last event wins).
func (t *Transition) Rounds() []domain.Round {
	byEpoch := make(map[uint64]int)
	var out []domain.Round
	for _, ev := range t.Events {
		if i, ok := byEpoch[ev.Round.Epoch]; ok {
			out[i] = ev.Round
			continue
		}
		byEpoch[ev.Round.Epoch] = len(out)
		out = append(out, ev.Round)
	}
	return out
}

// GenesisStartRound opens the first round of a genesis pair. It is callable
// by the operator once per deployment, and again after a pause/resume or an
// expired genesis lock re-armed the genesis sequence. Epochs keep increasing
// across restarts.
func (e *Engine) GenesisStartRound(caller common.Address, height uint64) (Transition, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var tr Transition
	if err := e.requireReady(); err != nil {
		return tr, err
	}
	if err := e.roles.RequireOperator(caller); err != nil {
		return tr, err
	}
	if e.genesisStarted {
		return tr, domain.ErrAlreadyStarted
	}

	r := e.openRound(height)
	e.genesisStarted = true
	e.genesisLocked = false
	tr.add(EventRoundStarted, r)
	return tr, nil
}

// GenesisLockRound binds the genesis round's lock price and opens the next
// round, moving the engine into its continuous self-chaining regime. Called
// before the genesis round's lock block it fails with ErrTooEarly. Called
// past the buffer window it cancels the genesis round and re-arms genesis —
// the stale price cannot be trusted. An oracle failure likewise cancels the
// genesis round but keeps the chain alive.
func (e *Engine) GenesisLockRound(ctx context.Context, caller common.Address, height uint64) (Transition, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var tr Transition
	if err := e.requireReady(); err != nil {
		return tr, err
	}
	if err := e.roles.RequireOperator(caller); err != nil {
		return tr, err
	}
	if !e.genesisStarted {
		return tr, domain.ErrGenesisRequired
	}
	if e.genesisLocked {
		return tr, domain.ErrAlreadyStarted
	}

	r := e.rounds[e.currentEpoch]
	if height < r.LockBlock {
		return tr, domain.ErrTooEarly
	}
	if height > r.LockBlock+e.cfg.BufferBlocks {
		e.cancelRound(r)
		e.genesisStarted = false
		tr.add(EventRoundCancelled, r)
		return tr, nil
	}

	sample := e.readOracle(ctx)
	if sample == nil {
		e.cancelRound(r)
		tr.add(EventRoundCancelled, r)
	} else {
		e.lockRound(r, sample)
		tr.add(EventRoundLocked, r)
	}

	next := e.openRound(height)
	e.genesisLocked = true
	tr.add(EventRoundStarted, next)
	return tr, nil
}

// ExecuteRound is the steady-state tick: it locks the currently open round,
// executes the round beneath it, and opens a fresh round, all in one call.
// Batching the three steps keeps the system able to resync in a single tick
// after missed operator windows — rounds whose window expired are cancelled
// rather than settled, and the chain continues.
func (e *Engine) ExecuteRound(ctx context.Context, caller common.Address, height uint64) (Transition, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var tr Transition
	if err := e.requireReady(); err != nil {
		return tr, err
	}
	if err := e.roles.RequireOperator(caller); err != nil {
		return tr, err
	}
	if !e.genesisStarted || !e.genesisLocked {
		return tr, domain.ErrGenesisRequired
	}

	cur := e.rounds[e.currentEpoch]
	prev := e.rounds[e.currentEpoch-1]
	if height < cur.LockBlock {
		return tr, domain.ErrTooEarly
	}

	// One oracle read serves both the lock of cur and the close of prev.
	// A failed read cancels whichever rounds it would have bound.
	sample := e.readOracle(ctx)

	// Lock step.
	if height > cur.LockBlock+e.cfg.BufferBlocks || sample == nil {
		e.cancelRound(cur)
		tr.add(EventRoundCancelled, cur)
	} else {
		e.lockRound(cur, sample)
		tr.add(EventRoundLocked, cur)
	}

	// Execute step. cur was opened at or after prev's lock bind, so
	// height >= cur.LockBlock implies height >= prev.CloseBlock.
	if !prev.Settled() {
		if height > prev.CloseBlock+e.cfg.BufferBlocks || sample == nil {
			e.cancelRound(prev)
			tr.add(EventRoundCancelled, prev)
		} else {
			e.executeRound(prev, sample)
			tr.add(EventRoundExecuted, prev)
		}
	}

	next := e.openRound(height)
	tr.add(EventRoundStarted, next)
	return tr, nil
}

// Pause halts betting and lifecycle ticking and cancels every unsettled
// round so bettors can reclaim their stakes. Admin only.
func (e *Engine) Pause(caller common.Address) (Transition, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var tr Transition
	if !e.initialized {
		return tr, domain.ErrNotInitialized
	}
	if err := e.roles.RequireAdmin(caller); err != nil {
		return tr, err
	}
	if e.paused {
		return tr, nil
	}

	for epoch := e.currentEpoch; epoch > 0; epoch-- {
		r, ok := e.rounds[epoch]
		if !ok || r.Settled() {
			break
		}
		e.cancelRound(r)
		tr.add(EventRoundCancelled, r)
	}

	e.paused = true
	e.genesisStarted = false
	e.genesisLocked = false
	return tr, nil
}

// Resume lifts a pause. The operator must restart the chain with a fresh
// genesis pair; epochs continue from where they left off.
func (e *Engine) Resume(caller common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return domain.ErrNotInitialized
	}
	if err := e.roles.RequireAdmin(caller); err != nil {
		return err
	}
	e.paused = false
	return nil
}

// SetIntervalBlocks changes the round interval for rounds opened from now
// on. Admin only.
func (e *Engine) SetIntervalBlocks(caller common.Address, blocks uint64) error {
	return e.adminSet(caller, func() error {
		if blocks == 0 {
			return errors.New("engine: interval_blocks must be positive")
		}
		e.cfg.IntervalBlocks = blocks
		return nil
	})
}

// SetBufferBlocks changes the buffer window. Admin only.
func (e *Engine) SetBufferBlocks(caller common.Address, blocks uint64) error {
	return e.adminSet(caller, func() error {
		e.cfg.BufferBlocks = blocks
		return nil
	})
}

// SetMinBetAmount changes the bet floor. Admin only.
func (e *Engine) SetMinBetAmount(caller common.Address, amount *big.Int) error {
	return e.adminSet(caller, func() error {
		if amount == nil || amount.Sign() <= 0 {
			return errors.New("engine: min_bet_amount must be positive")
		}
		e.cfg.MinBetAmount = new(big.Int).Set(amount)
		return nil
	})
}

// SetTreasuryFeeBps changes the protocol fee, capped at 10%. Admin only.
func (e *Engine) SetTreasuryFeeBps(caller common.Address, bps uint64) error {
	return e.adminSet(caller, func() error {
		if bps > maxTreasuryFeeBps {
			return errors.New("engine: treasury_fee_bps exceeds cap")
		}
		e.cfg.TreasuryFeeBps = bps
		return nil
	})
}

func (e *Engine) adminSet(caller common.Address, apply func() error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return domain.ErrNotInitialized
	}
	if err := e.roles.RequireAdmin(caller); err != nil {
		return err
	}
	return apply()
}

// openRound appends the next round at the given height and advances the
// current epoch. Callers must hold e.mu.
func (e *Engine) openRound(height uint64) *domain.Round {
	epoch := e.currentEpoch + 1
	r := domain.NewRound(epoch, height, e.cfg.IntervalBlocks)
	e.rounds[epoch] = &r
	e.currentEpoch = epoch
	return &r
}

// lockRound binds the lock price and oracle round ID. Callers must hold e.mu.
func (e *Engine) lockRound(r *domain.Round, sample *domain.PriceSample) {
	r.LockPrice = new(big.Int).Set(sample.Price)
	r.LockOracleID = new(big.Int).Set(sample.OracleRoundID)
	r.State = domain.RoundLocked
	r.UpdatedAt = time.Now().UTC()
	e.lastOracleRoundID = new(big.Int).Set(sample.OracleRoundID)
}

// cancelRound marks a round refund-only and terminal. Callers must hold e.mu.
func (e *Engine) cancelRound(r *domain.Round) {
	r.Outcome = domain.OutcomeCancelled
	r.State = domain.RoundExecuted
	r.UpdatedAt = time.Now().UTC()
}

// readOracle fetches a validated sample, returning nil when the read failed
// or was rejected as stale. The affected round is cancelled by the caller;
// the tick itself continues — liveness over settlement.
func (e *Engine) readOracle(ctx context.Context) *domain.PriceSample {
	sample, err := e.prices.Latest(ctx)
	if err != nil {
		return nil
	}
	s := sample.Clone()
	return &s
}
