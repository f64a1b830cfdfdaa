// Package oracle wraps the external price feed. The gateway binds feed
// round IDs to engine rounds for auditability and rejects samples that are
// stale or would replay an already-bound feed round.
package oracle

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/dehublabs/predictiond/internal/domain"
)

// Feed is the raw price feed capability: one latest-round read.
type Feed interface {
	LatestRoundData(ctx context.Context) (domain.PriceSample, error)
}

// Gateway validates feed reads before the engine binds them. It enforces
// bounded staleness (updatedAt within the configured allowance of now) and
// strict monotonicity of feed round IDs across successive binds.
type Gateway struct {
	mu          sync.Mutex
	feed        Feed
	allowance   time.Duration
	lastRoundID *big.Int
	now         func() time.Time
}

// NewGateway creates a Gateway over the given feed with the given staleness
// allowance.
func NewGateway(feed Feed, allowance time.Duration) *Gateway {
	return &Gateway{
		feed:      feed,
		allowance: allowance,
		now:       time.Now,
	}
}

// Latest reads the feed and validates the sample. It returns
// domain.ErrOracleUnavailable when the read itself fails, and
// domain.ErrStaleOracleData when the sample is older than the allowance or
// does not advance the feed round ID. A valid sample is recorded as the new
// monotonicity floor.
func (g *Gateway) Latest(ctx context.Context) (domain.PriceSample, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	sample, err := g.feed.LatestRoundData(ctx)
	if err != nil {
		return domain.PriceSample{}, fmt.Errorf("%w: %v", domain.ErrOracleUnavailable, err)
	}
	if sample.Price == nil || sample.OracleRoundID == nil {
		return domain.PriceSample{}, fmt.Errorf("%w: incomplete sample", domain.ErrOracleUnavailable)
	}
	if sample.UpdatedAt.Add(g.allowance).Before(g.now()) {
		return domain.PriceSample{}, fmt.Errorf("%w: updated at %s, allowance %s",
			domain.ErrStaleOracleData, sample.UpdatedAt.UTC().Format(time.RFC3339), g.allowance)
	}
	if g.lastRoundID != nil && sample.OracleRoundID.Cmp(g.lastRoundID) <= 0 {
		return domain.PriceSample{}, fmt.Errorf("%w: feed round %s does not advance past %s",
			domain.ErrStaleOracleData, sample.OracleRoundID, g.lastRoundID)
	}

	g.lastRoundID = new(big.Int).Set(sample.OracleRoundID)
	return sample.Clone(), nil
}

// SetAllowance changes the staleness allowance (admin setter).
func (g *Gateway) SetAllowance(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.allowance = d
}

// Allowance returns the current staleness allowance.
func (g *Gateway) Allowance() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.allowance
}

// SetLastRoundID seeds the monotonicity floor, used on startup recovery so a
// restart cannot re-bind a feed round an earlier revision already consumed.
func (g *Gateway) SetLastRoundID(id *big.Int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if id == nil {
		g.lastRoundID = nil
		return
	}
	g.lastRoundID = new(big.Int).Set(id)
}
