package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dehublabs/predictiond/internal/domain"
	"github.com/dehublabs/predictiond/internal/engine"
)

// bootstrapPageSize is the page size used when reloading rounds at startup.
const bootstrapPageSize = 500

// OracleFloor receives the persisted oracle monotonicity floor so a restarted
// process keeps rejecting replayed oracle rounds.
type OracleFloor interface {
	SetLastRoundID(id *big.Int)
}

// Bootstrap brings the engine up from storage. A fresh deployment is
// initialized with the configured roles and parameters; an existing one is
// restored from the persisted state plus its round and bet records.
func Bootstrap(
	ctx context.Context,
	eng *engine.Engine,
	cfg engine.Config,
	admin, operator common.Address,
	rounds domain.RoundStore,
	bets domain.BetStore,
	state domain.EngineStateStore,
	floor OracleFloor,
	logger *slog.Logger,
) error {
	st, err := state.Load(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("service: load engine state: %w", err)
		}

		if err := eng.Initialize(admin, operator, cfg); err != nil {
			return fmt.Errorf("service: initialize engine: %w", err)
		}
		if err := state.Save(ctx, eng.State()); err != nil {
			return fmt.Errorf("service: persist initial state: %w", err)
		}
		logger.InfoContext(ctx, "engine initialized",
			slog.String("admin", admin.Hex()),
			slog.String("operator", operator.Hex()),
		)
		return nil
	}

	allRounds, err := loadAllRounds(ctx, rounds)
	if err != nil {
		return err
	}
	var allBets []domain.Bet
	for _, r := range allRounds {
		bs, err := bets.ListByEpoch(ctx, r.Epoch)
		if err != nil {
			return fmt.Errorf("service: load bets for epoch %d: %w", r.Epoch, err)
		}
		allBets = append(allBets, bs...)
	}

	if err := eng.Restore(st, cfg, allRounds, allBets); err != nil {
		return fmt.Errorf("service: restore engine: %w", err)
	}
	if floor != nil && st.LastOracleRoundID != nil {
		floor.SetLastRoundID(st.LastOracleRoundID)
	}

	logger.InfoContext(ctx, "engine restored",
		slog.Uint64("current_epoch", st.CurrentEpoch),
		slog.Uint64("schema_version", uint64(st.SchemaVersion)),
		slog.Int("rounds", len(allRounds)),
		slog.Int("bets", len(allBets)),
		slog.Bool("paused", st.Paused),
	)
	return nil
}

func loadAllRounds(ctx context.Context, rounds domain.RoundStore) ([]domain.Round, error) {
	var all []domain.Round
	for offset := 0; ; offset += bootstrapPageSize {
		page, err := rounds.List(ctx, domain.ListOpts{Limit: bootstrapPageSize, Offset: offset})
		if err != nil {
			return nil, fmt.Errorf("service: load rounds: %w", err)
		}
		all = append(all, page...)
		if len(page) < bootstrapPageSize {
			return all, nil
		}
	}
}
