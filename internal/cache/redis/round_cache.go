package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dehublabs/predictiond/internal/domain"
)

// roundTTL bounds how long a cached round may serve reads. Settled rounds are
// immutable, but a short TTL keeps the cache self-correcting after any missed
// invalidation.
const roundTTL = 5 * time.Minute

// RoundCache implements domain.RoundCache using Redis strings with
// JSON-serialized Round data.
//
// Key schema:
//
//	round:{epoch}  - JSON round snapshot
//	round:current  - JSON snapshot of the currently open round
type RoundCache struct {
	rdb *redis.Client
}

// NewRoundCache creates a RoundCache backed by the given Client.
func NewRoundCache(c *Client) *RoundCache {
	return &RoundCache{rdb: c.Underlying()}
}

func roundKey(epoch uint64) string { return "round:" + strconv.FormatUint(epoch, 10) }

const currentRoundKey = "round:current"

// Set stores a round snapshot under its epoch.
func (rc *RoundCache) Set(ctx context.Context, round domain.Round) error {
	data, err := json.Marshal(round)
	if err != nil {
		return fmt.Errorf("redis: marshal round %d: %w", round.Epoch, err)
	}
	if err := rc.rdb.Set(ctx, roundKey(round.Epoch), data, roundTTL).Err(); err != nil {
		return fmt.Errorf("redis: set round %d: %w", round.Epoch, err)
	}
	return nil
}

// Get retrieves a round by epoch. It returns domain.ErrNotFound when the key
// does not exist.
func (rc *RoundCache) Get(ctx context.Context, epoch uint64) (domain.Round, error) {
	data, err := rc.rdb.Get(ctx, roundKey(epoch)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Round{}, domain.ErrNotFound
		}
		return domain.Round{}, fmt.Errorf("redis: get round %d: %w", epoch, err)
	}

	var round domain.Round
	if err := json.Unmarshal(data, &round); err != nil {
		return domain.Round{}, fmt.Errorf("redis: unmarshal round %d: %w", epoch, err)
	}
	return round, nil
}

// SetCurrent stores the currently open round under the well-known key and
// under its epoch.
func (rc *RoundCache) SetCurrent(ctx context.Context, round domain.Round) error {
	data, err := json.Marshal(round)
	if err != nil {
		return fmt.Errorf("redis: marshal current round: %w", err)
	}

	pipe := rc.rdb.TxPipeline()
	pipe.Set(ctx, currentRoundKey, data, roundTTL)
	pipe.Set(ctx, roundKey(round.Epoch), data, roundTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set current round: %w", err)
	}
	return nil
}

// GetCurrent retrieves the currently open round. It returns
// domain.ErrNotFound when no current round is cached.
func (rc *RoundCache) GetCurrent(ctx context.Context) (domain.Round, error) {
	data, err := rc.rdb.Get(ctx, currentRoundKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Round{}, domain.ErrNotFound
		}
		return domain.Round{}, fmt.Errorf("redis: get current round: %w", err)
	}

	var round domain.Round
	if err := json.Unmarshal(data, &round); err != nil {
		return domain.Round{}, fmt.Errorf("redis: unmarshal current round: %w", err)
	}
	return round, nil
}

// Invalidate removes a cached round.
func (rc *RoundCache) Invalidate(ctx context.Context, epoch uint64) error {
	if err := rc.rdb.Del(ctx, roundKey(epoch)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate round %d: %w", epoch, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.RoundCache = (*RoundCache)(nil)
