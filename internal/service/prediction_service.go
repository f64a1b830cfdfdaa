package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dehublabs/predictiond/internal/chain"
	"github.com/dehublabs/predictiond/internal/domain"
	"github.com/dehublabs/predictiond/internal/engine"
)

// PredictionService is the read/bet/claim facade the API layer talks to. It
// resolves block heights, runs the engine, persists the results, and serves
// queries cache-first.
type PredictionService struct {
	engine *engine.Engine
	blocks chain.BlockSource
	rounds domain.RoundStore
	bets   domain.BetStore
	state  domain.EngineStateStore
	cache  domain.RoundCache
	logger *slog.Logger
}

// NewPredictionService creates a PredictionService. cache may be nil.
func NewPredictionService(
	eng *engine.Engine,
	blocks chain.BlockSource,
	rounds domain.RoundStore,
	bets domain.BetStore,
	state domain.EngineStateStore,
	cache domain.RoundCache,
	logger *slog.Logger,
) *PredictionService {
	return &PredictionService{
		engine: eng,
		blocks: blocks,
		rounds: rounds,
		bets:   bets,
		state:  state,
		cache:  cache,
		logger: logger.With(slog.String("component", "prediction_service")),
	}
}

// Status is the engine summary served by the status endpoint.
type Status struct {
	SchemaVersion uint64 `json:"schema_version"`
	CurrentEpoch  uint64 `json:"current_epoch"`
	Paused        bool   `json:"paused"`
	BlockHeight   uint64 `json:"block_height"`
	MinBetAmount  string `json:"min_bet_amount"`
	Treasury      string `json:"treasury"`
}

// Status reports the engine's scalar state together with the current height.
func (s *PredictionService) Status(ctx context.Context) (Status, error) {
	height, err := s.blocks.BlockNumber(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("prediction_service: block height: %w", err)
	}
	return Status{
		SchemaVersion: uint64(s.engine.Version()),
		CurrentEpoch:  s.engine.CurrentEpoch(),
		Paused:        s.engine.Paused(),
		BlockHeight:   height,
		MinBetAmount:  s.engine.MinBetAmount().String(),
		Treasury:      s.engine.TreasuryAmount().String(),
	}, nil
}

// CurrentRound returns the currently open round, cache-first.
func (s *PredictionService) CurrentRound(ctx context.Context) (domain.Round, error) {
	if s.cache != nil {
		if r, err := s.cache.GetCurrent(ctx); err == nil {
			return r, nil
		}
	}

	epoch := s.engine.CurrentEpoch()
	if epoch == 0 {
		return domain.Round{}, domain.ErrNotFound
	}
	r, err := s.rounds.GetByEpoch(ctx, epoch)
	if err != nil {
		return domain.Round{}, fmt.Errorf("prediction_service: current round %d: %w", epoch, err)
	}
	s.backfill(ctx, r, true)
	return r, nil
}

// GetRound returns the round for the given epoch, cache-first.
func (s *PredictionService) GetRound(ctx context.Context, epoch uint64) (domain.Round, error) {
	if s.cache != nil {
		if r, err := s.cache.Get(ctx, epoch); err == nil {
			return r, nil
		}
	}

	r, err := s.rounds.GetByEpoch(ctx, epoch)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Round{}, domain.ErrNotFound
		}
		return domain.Round{}, fmt.Errorf("prediction_service: get round %d: %w", epoch, err)
	}
	s.backfill(ctx, r, false)
	return r, nil
}

// ListRounds returns rounds newest-first.
func (s *PredictionService) ListRounds(ctx context.Context, opts domain.ListOpts) ([]domain.Round, error) {
	rounds, err := s.rounds.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("prediction_service: list rounds: %w", err)
	}
	return rounds, nil
}

// RoundCount returns the total number of recorded rounds.
func (s *PredictionService) RoundCount(ctx context.Context) (int64, error) {
	n, err := s.rounds.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("prediction_service: count rounds: %w", err)
	}
	return n, nil
}

// PlaceBet resolves the current height, stakes amount through the engine, and
// persists the resulting bet and round. Engine rejections pass through
// unwrapped for the API layer to map onto status codes.
func (s *PredictionService) PlaceBet(ctx context.Context, bettor common.Address, epoch uint64, direction domain.Position, amount *big.Int) (domain.Bet, error) {
	height, err := s.blocks.BlockNumber(ctx)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("prediction_service: block height: %w", err)
	}

	bet, round, err := s.engine.PlaceBet(ctx, bettor, epoch, direction, amount, height)
	if err != nil {
		return domain.Bet{}, err
	}

	if err := s.bets.Upsert(ctx, bet); err != nil {
		return domain.Bet{}, fmt.Errorf("prediction_service: persist bet: %w", err)
	}
	if err := s.rounds.Upsert(ctx, round); err != nil {
		return domain.Bet{}, fmt.Errorf("prediction_service: persist round %d: %w", round.Epoch, err)
	}
	s.backfill(ctx, round, epoch == s.engine.CurrentEpoch())

	s.logger.InfoContext(ctx, "bet placed",
		slog.Uint64("epoch", epoch),
		slog.String("bettor", bettor.Hex()),
		slog.String("direction", string(direction)),
		slog.String("amount", amount.String()),
	)
	return bet, nil
}

// Claim pays out or refunds the caller's bet for the given epoch and persists
// the claimed flag. It returns the transferred amount.
func (s *PredictionService) Claim(ctx context.Context, caller common.Address, epoch uint64) (*big.Int, error) {
	bet, amount, err := s.engine.Claim(ctx, caller, epoch)
	if err != nil {
		return nil, err
	}

	if err := s.bets.Upsert(ctx, bet); err != nil {
		return nil, fmt.Errorf("prediction_service: persist claim: %w", err)
	}

	s.logger.InfoContext(ctx, "bet claimed",
		slog.Uint64("epoch", epoch),
		slog.String("bettor", caller.Hex()),
		slog.String("amount", amount.String()),
	)
	return amount, nil
}

// GetBet returns one bet by epoch and bettor.
func (s *PredictionService) GetBet(ctx context.Context, epoch uint64, bettor common.Address) (domain.Bet, error) {
	b, err := s.bets.Get(ctx, epoch, bettor)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Bet{}, domain.ErrNotFound
		}
		return domain.Bet{}, fmt.Errorf("prediction_service: get bet: %w", err)
	}
	return b, nil
}

// ListBets returns a bettor's bets newest-first.
func (s *PredictionService) ListBets(ctx context.Context, bettor common.Address, opts domain.ListOpts) ([]domain.Bet, error) {
	bets, err := s.bets.ListByBettor(ctx, bettor, opts)
	if err != nil {
		return nil, fmt.Errorf("prediction_service: list bets: %w", err)
	}
	return bets, nil
}

// Claimable reports whether the bettor holds an unclaimed winning bet.
func (s *PredictionService) Claimable(epoch uint64, bettor common.Address) bool {
	return s.engine.Claimable(epoch, bettor)
}

// Refundable reports whether the bettor holds an unclaimed refundable bet.
func (s *PredictionService) Refundable(epoch uint64, bettor common.Address) bool {
	return s.engine.Refundable(epoch, bettor)
}

// backfill writes a round read from the store into the cache, logging cache
// failures without surfacing them.
func (s *PredictionService) backfill(ctx context.Context, r domain.Round, current bool) {
	if s.cache == nil {
		return
	}
	var err error
	if current {
		err = s.cache.SetCurrent(ctx, r)
	} else {
		err = s.cache.Set(ctx, r)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "cache backfill failed",
			slog.Uint64("epoch", r.Epoch),
			slog.String("error", err.Error()),
		)
	}
}
