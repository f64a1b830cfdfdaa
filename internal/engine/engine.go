// Package engine implements the round-based prediction settlement state
// machine: fixed-length betting epochs bound to oracle price samples at lock
// and close, proportional winner payouts net of a protocol fee, and one-shot
// claims and refunds.
//
// The engine is a single writer. Every operation runs to completion under one
// mutex and either commits fully or leaves no state behind; external
// interactions (token custody, oracle reads) are synchronous call-and-check.
// Block heights are supplied by the caller — the engine never reads a clock
// or a chain on its own, which keeps the state machine testable independent
// of block sourcing.
package engine

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dehublabs/predictiond/internal/domain"
)

// SchemaVersion is the current storage schema revision reported by Version
// after all migrations have been applied.
const SchemaVersion uint32 = 2

// feeDenominator is the basis-point denominator for the treasury fee.
const feeDenominator = 10_000

// maxTreasuryFeeBps caps the configurable fee at 10%.
const maxTreasuryFeeBps = 1_000

// Vault is the staking-token custody capability. Deposit pulls tokens from a
// bettor into engine custody; Withdraw pays custody out. Both are synchronous
// and atomic from the engine's point of view.
type Vault interface {
	Deposit(ctx context.Context, from common.Address, amount *big.Int) error
	Withdraw(ctx context.Context, to common.Address, amount *big.Int) error
}

// PriceSource supplies validated oracle samples. Implementations are expected
// to reject stale or non-monotonic feed data with domain.ErrStaleOracleData
// or domain.ErrOracleUnavailable; on such errors the engine cancels the
// affected round instead of aborting the tick.
type PriceSource interface {
	Latest(ctx context.Context) (domain.PriceSample, error)
}

// Config carries the engine parameters fixed at initialization and mutable
// only through admin setters.
type Config struct {
	IntervalBlocks uint64
	BufferBlocks   uint64
	MinBetAmount   *big.Int
	TreasuryFeeBps uint64
	BetPolicy      domain.BetPolicy
}

func (c Config) validate() error {
	if c.IntervalBlocks == 0 {
		return fmt.Errorf("engine: interval_blocks must be positive")
	}
	if c.MinBetAmount == nil || c.MinBetAmount.Sign() <= 0 {
		return fmt.Errorf("engine: min_bet_amount must be positive")
	}
	if c.TreasuryFeeBps > maxTreasuryFeeBps {
		return fmt.Errorf("engine: treasury_fee_bps %d exceeds cap %d", c.TreasuryFeeBps, maxTreasuryFeeBps)
	}
	if !c.BetPolicy.Valid() {
		return fmt.Errorf("engine: unknown bet policy %q", c.BetPolicy)
	}
	return nil
}

type betKey struct {
	epoch  uint64
	bettor common.Address
}

// Engine is the settlement state machine. All exported methods are safe for
// concurrent use; mutations serialize on one mutex (single-writer model).
type Engine struct {
	mu sync.Mutex

	initialized bool
	cfg         Config
	roles       *Roles
	vault       Vault
	prices      PriceSource

	rounds map[uint64]*domain.Round
	bets   map[betKey]*domain.Bet

	currentEpoch   uint64
	genesisStarted bool
	genesisLocked  bool
	paused         bool

	schemaVersion     uint32
	lastOracleRoundID *big.Int
	treasury          *big.Int
}

// New creates an uninitialized Engine bound to the given custody vault and
// price source. Initialize must be called before any other operation.
func New(vault Vault, prices PriceSource) *Engine {
	return &Engine{
		vault:    vault,
		prices:   prices,
		rounds:   make(map[uint64]*domain.Round),
		bets:     make(map[betKey]*domain.Bet),
		treasury: new(big.Int),
	}
}

// Initialize is the one-shot constructor-equivalent. It fixes roles and
// configuration and arms the genesis round. A second call fails with
// ErrAlreadyInitialized and changes nothing.
func (e *Engine) Initialize(admin, operator common.Address, cfg Config) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.initialized {
		return domain.ErrAlreadyInitialized
	}
	if err := cfg.validate(); err != nil {
		return err
	}

	e.cfg = cfg
	e.cfg.MinBetAmount = new(big.Int).Set(cfg.MinBetAmount)
	e.roles = NewRoles(admin, operator)
	e.schemaVersion = 1
	e.initialized = true
	return nil
}

// Version returns the active schema revision.
func (e *Engine) Version() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.schemaVersion
}

// CurrentEpoch returns the epoch of the most recently opened round, or 0
// before genesis.
func (e *Engine) CurrentEpoch() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentEpoch
}

// Paused reports whether the engine is paused.
func (e *Engine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// Round returns a copy of the round for the given epoch.
func (e *Engine) Round(epoch uint64) (domain.Round, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.rounds[epoch]
	if !ok {
		return domain.Round{}, false
	}
	return r.Clone(), true
}

// Bet returns a copy of the bet placed by bettor in the given epoch.
func (e *Engine) Bet(epoch uint64, bettor common.Address) (domain.Bet, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.bets[betKey{epoch, bettor}]
	if !ok {
		return domain.Bet{}, false
	}
	return b.Clone(), true
}

// TreasuryAmount returns the accrued, unclaimed protocol fee.
func (e *Engine) TreasuryAmount() *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return new(big.Int).Set(e.treasury)
}

// Roles exposes the access-control component for service-level guards.
func (e *Engine) Roles() *Roles {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.roles
}

// MinBetAmount returns the configured bet floor.
func (e *Engine) MinBetAmount() *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return new(big.Int).Set(e.cfg.MinBetAmount)
}

// State returns the durable snapshot of the engine's scalar state. Round and
// bet records are persisted separately through the stores.
func (e *Engine) State() domain.EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := domain.EngineState{
		SchemaVersion:  e.schemaVersion,
		CurrentEpoch:   e.currentEpoch,
		GenesisStarted: e.genesisStarted,
		GenesisLocked:  e.genesisLocked,
		Paused:         e.paused,
		TreasuryAmount: new(big.Int).Set(e.treasury),
		UpdatedAt:      time.Now().UTC(),
	}
	if e.lastOracleRoundID != nil {
		st.LastOracleRoundID = new(big.Int).Set(e.lastOracleRoundID)
	}
	if e.roles != nil {
		st.Admin = e.roles.Admin()
		st.Operator = e.roles.Operator()
	}
	return st
}

// Restore rebuilds an engine from a persisted snapshot plus its round and bet
// records. It may only be called on a fresh engine; cfg supplies the runtime
// parameters, which are configuration rather than persisted state.
func (e *Engine) Restore(state domain.EngineState, cfg Config, rounds []domain.Round, bets []domain.Bet) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.initialized {
		return domain.ErrAlreadyInitialized
	}
	if err := cfg.validate(); err != nil {
		return err
	}

	e.cfg = cfg
	e.cfg.MinBetAmount = new(big.Int).Set(cfg.MinBetAmount)
	e.roles = NewRoles(state.Admin, state.Operator)
	e.schemaVersion = state.SchemaVersion
	e.currentEpoch = state.CurrentEpoch
	e.genesisStarted = state.GenesisStarted
	e.genesisLocked = state.GenesisLocked
	e.paused = state.Paused
	if state.LastOracleRoundID != nil {
		e.lastOracleRoundID = new(big.Int).Set(state.LastOracleRoundID)
	}
	if state.TreasuryAmount != nil {
		e.treasury = new(big.Int).Set(state.TreasuryAmount)
	}

	for i := range rounds {
		r := rounds[i].Clone()
		e.rounds[r.Epoch] = &r
	}
	for i := range bets {
		b := bets[i].Clone()
		e.bets[betKey{b.Epoch, b.Bettor}] = &b
	}

	e.initialized = true
	return nil
}

// requireReady returns the common precondition failure for state-mutating
// calls. Callers must hold e.mu.
func (e *Engine) requireReady() error {
	if !e.initialized {
		return domain.ErrNotInitialized
	}
	if e.paused {
		return domain.ErrPaused
	}
	return nil
}
