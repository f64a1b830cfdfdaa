package domain

import (
	"math/big"
	"time"
)

// PriceSample is one reading from the external price feed. OracleRoundID is
// the feed's own round identifier and must be strictly increasing across
// successive binds; UpdatedAt is the feed-reported publication time used for
// staleness checks.
type PriceSample struct {
	OracleRoundID *big.Int
	Price         *big.Int
	UpdatedAt     time.Time
}

// Clone returns a deep copy of the sample.
func (s PriceSample) Clone() PriceSample {
	return PriceSample{
		OracleRoundID: cloneBig(s.OracleRoundID),
		Price:         cloneBig(s.Price),
		UpdatedAt:     s.UpdatedAt,
	}
}
