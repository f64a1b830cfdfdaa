package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Bet is one bettor's stake in one round. At most one Bet exists per
// (epoch, bettor) pair; whether a repeat bet merges or is rejected is a
// policy choice of the engine. Bets are never deleted — claimed flips to
// true exactly once when the payout or refund is withdrawn.
type Bet struct {
	Epoch     uint64
	Bettor    common.Address
	Direction Position
	Amount    *big.Int
	Claimed   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy of the bet.
func (b *Bet) Clone() Bet {
	c := *b
	c.Amount = cloneBig(b.Amount)
	return c
}

// BetPolicy controls how a second PlaceBet from the same bettor in the same
// round is handled.
type BetPolicy string

const (
	// BetPolicyAccumulate merges a same-direction repeat bet into the
	// existing record; a direction flip is rejected.
	BetPolicyAccumulate BetPolicy = "accumulate"
	// BetPolicyReject refuses any second bet for the round.
	BetPolicyReject BetPolicy = "reject"
)

// Valid reports whether the policy is one of the known values.
func (p BetPolicy) Valid() bool {
	return p == BetPolicyAccumulate || p == BetPolicyReject
}
