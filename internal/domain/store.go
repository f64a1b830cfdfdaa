package domain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// RoundStore persists rounds. Rounds are append-only by epoch; Upsert only
// ever rewrites a round with a newer lifecycle state of the same epoch.
type RoundStore interface {
	Upsert(ctx context.Context, round Round) error
	GetByEpoch(ctx context.Context, epoch uint64) (Round, error)
	// List returns rounds newest-first.
	List(ctx context.Context, opts ListOpts) ([]Round, error)
	// ListSettledBefore returns executed rounds with epoch < before, oldest
	// first, for archival.
	ListSettledBefore(ctx context.Context, before uint64, limit int) ([]Round, error)
	LatestEpoch(ctx context.Context) (uint64, error)
	Count(ctx context.Context) (int64, error)
}

// BetStore persists bets. Rows are never deleted; history is permanent.
type BetStore interface {
	Upsert(ctx context.Context, bet Bet) error
	Get(ctx context.Context, epoch uint64, bettor common.Address) (Bet, error)
	ListByEpoch(ctx context.Context, epoch uint64) ([]Bet, error)
	ListByBettor(ctx context.Context, bettor common.Address, opts ListOpts) ([]Bet, error)
}

// EngineState is the durable snapshot of everything the engine holds outside
// the round/bet records themselves. Together with the stores it is enough to
// rebuild the engine after a restart or logic upgrade.
type EngineState struct {
	SchemaVersion     uint32
	CurrentEpoch      uint64
	GenesisStarted    bool
	GenesisLocked     bool
	Paused            bool
	LastOracleRoundID *big.Int
	TreasuryAmount    *big.Int
	Admin             common.Address
	Operator          common.Address
	UpdatedAt         time.Time
}

// EngineStateStore persists the EngineState singleton row.
type EngineStateStore interface {
	Save(ctx context.Context, state EngineState) error
	// Load returns ErrNotFound when no state has been saved yet.
	Load(ctx context.Context) (EngineState, error)
}

// RoundCache is a read-through cache for round lookups.
type RoundCache interface {
	Set(ctx context.Context, round Round) error
	Get(ctx context.Context, epoch uint64) (Round, error)
	SetCurrent(ctx context.Context, round Round) error
	GetCurrent(ctx context.Context) (Round, error)
	Invalidate(ctx context.Context, epoch uint64) error
}

// LockManager provides a distributed mutual-exclusion primitive so that a
// single driver instance ticks the round lifecycle at a time.
type LockManager interface {
	// Acquire returns an unlock function on success, or ErrLockHeld when the
	// lock is held by another party.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter throttles requests per key.
type RateLimiter interface {
	// Allow reports whether a request for key is within limit over the
	// sliding window, counting the request when it is.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	// Wait blocks until a request for key is allowed or ctx is cancelled.
	Wait(ctx context.Context, key string) error
}
