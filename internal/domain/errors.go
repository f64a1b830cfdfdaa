package domain

import "errors"

// Sentinel errors for the engine and its surrounding layers. Callers match
// with errors.Is; layers add context with fmt.Errorf("...: %w", err).
var (
	// Lifecycle / access control
	ErrUnauthorized       = errors.New("caller lacks the required role")
	ErrAlreadyInitialized = errors.New("engine already initialized")
	ErrNotInitialized     = errors.New("engine not initialized")
	ErrAlreadyStarted     = errors.New("genesis round already started")
	ErrGenesisRequired    = errors.New("genesis rounds not completed")
	ErrTooEarly           = errors.New("block height below the required threshold")
	ErrPaused             = errors.New("engine is paused")

	// Betting
	ErrRoundNotBettable = errors.New("round is not open for betting")
	ErrBelowMinimum     = errors.New("bet amount below the configured minimum")
	ErrDuplicateBet     = errors.New("bet already placed for this round")

	// Oracle
	ErrStaleOracleData   = errors.New("oracle sample is stale")
	ErrOracleUnavailable = errors.New("oracle read failed")

	// Claims
	ErrNotClaimable   = errors.New("bet is not claimable")
	ErrAlreadyClaimed = errors.New("bet already claimed")
	ErrNoBetFound     = errors.New("no bet found for this round")

	// Upgrades
	ErrAlreadyUpgraded = errors.New("schema migration already applied")

	// Custody
	ErrInsufficientFunds = errors.New("insufficient funds")

	// Generic
	ErrNotFound = errors.New("not found")
	ErrLockHeld = errors.New("lock already held")
)
