package oracle

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/dehublabs/predictiond/internal/domain"
)

// ManualFeed is an in-process feed for the standalone mode and tests. Each
// Advance publishes a new feed round at the given price; Fail makes
// subsequent reads return the given error until the next Advance.
type ManualFeed struct {
	mu      sync.Mutex
	roundID uint64
	sample  domain.PriceSample
	err     error
}

// NewManualFeed creates a feed with no published rounds yet.
func NewManualFeed() *ManualFeed {
	return &ManualFeed{}
}

// Advance publishes the next feed round at the given price, stamped now.
func (f *ManualFeed) Advance(price *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roundID++
	f.err = nil
	f.sample = domain.PriceSample{
		OracleRoundID: new(big.Int).SetUint64(f.roundID),
		Price:         new(big.Int).Set(price),
		UpdatedAt:     time.Now().UTC(),
	}
}

// Fail makes subsequent reads return err until the next Advance.
func (f *ManualFeed) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// LatestRoundData returns the most recently published round.
func (f *ManualFeed) LatestRoundData(ctx context.Context) (domain.PriceSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.PriceSample{}, f.err
	}
	if f.sample.Price == nil {
		return domain.PriceSample{}, errors.New("manual feed: no round published")
	}
	return f.sample.Clone(), nil
}

// Compile-time interface check.
var _ Feed = (*ManualFeed)(nil)
