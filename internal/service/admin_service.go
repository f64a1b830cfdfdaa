package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dehublabs/predictiond/internal/domain"
	"github.com/dehublabs/predictiond/internal/engine"
	"github.com/dehublabs/predictiond/internal/notify"
)

// OracleTuner is the oracle gateway knob the admin API can adjust.
type OracleTuner interface {
	SetAllowance(d time.Duration)
}

// AdminService exposes the privileged engine operations through the admin
// API: pause/resume, parameter changes, role handover, the schema migration,
// and the treasury claim. Every mutation is persisted through the state store
// before returning.
type AdminService struct {
	engine   *engine.Engine
	recorder *Recorder
	state    domain.EngineStateStore
	oracle   OracleTuner
	notifier *notify.Notifier
	logger   *slog.Logger
}

// NewAdminService creates an AdminService. notifier may be nil.
func NewAdminService(
	eng *engine.Engine,
	recorder *Recorder,
	state domain.EngineStateStore,
	oracle OracleTuner,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *AdminService {
	return &AdminService{
		engine:   eng,
		recorder: recorder,
		state:    state,
		oracle:   oracle,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "admin_service")),
	}
}

// Pause cancels every unsettled round and halts the lifecycle. The cancelled
// rounds are persisted so refunds survive a restart.
func (s *AdminService) Pause(ctx context.Context, caller common.Address) error {
	tr, err := s.engine.Pause(caller)
	if err != nil {
		return err
	}
	if err := s.recorder.Record(ctx, tr); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "engine paused",
		slog.Int("cancelled_rounds", len(tr.Events)),
	)
	return nil
}

// Resume lifts a pause. The operator restarts the chain with a fresh genesis
// pair on its next tick.
func (s *AdminService) Resume(ctx context.Context, caller common.Address) error {
	if err := s.engine.Resume(caller); err != nil {
		return err
	}
	if err := s.saveState(ctx); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "engine resumed")
	return nil
}

// SetIntervalBlocks changes the round interval for future rounds.
func (s *AdminService) SetIntervalBlocks(ctx context.Context, caller common.Address, blocks uint64) error {
	if err := s.engine.SetIntervalBlocks(caller, blocks); err != nil {
		return err
	}
	return s.saveState(ctx)
}

// SetBufferBlocks changes the buffer window.
func (s *AdminService) SetBufferBlocks(ctx context.Context, caller common.Address, blocks uint64) error {
	if err := s.engine.SetBufferBlocks(caller, blocks); err != nil {
		return err
	}
	return s.saveState(ctx)
}

// SetMinBetAmount changes the bet floor.
func (s *AdminService) SetMinBetAmount(ctx context.Context, caller common.Address, amount *big.Int) error {
	if err := s.engine.SetMinBetAmount(caller, amount); err != nil {
		return err
	}
	return s.saveState(ctx)
}

// SetTreasuryFeeBps changes the protocol fee.
func (s *AdminService) SetTreasuryFeeBps(ctx context.Context, caller common.Address, bps uint64) error {
	if err := s.engine.SetTreasuryFeeBps(caller, bps); err != nil {
		return err
	}
	return s.saveState(ctx)
}

// SetOracleUpdateAllowance changes how stale an oracle sample may be when a
// round binds it. The allowance is runtime state; the durable value lives in
// configuration.
func (s *AdminService) SetOracleUpdateAllowance(ctx context.Context, caller common.Address, d time.Duration) error {
	if err := s.engine.Roles().RequireAdmin(caller); err != nil {
		return err
	}
	if d <= 0 {
		return errors.New("admin_service: update allowance must be positive")
	}
	s.oracle.SetAllowance(d)
	s.logger.InfoContext(ctx, "oracle update allowance changed",
		slog.Duration("allowance", d),
	)
	return nil
}

// SetOperator hands the operator role to a new address.
func (s *AdminService) SetOperator(ctx context.Context, caller, operator common.Address) error {
	if err := s.engine.Roles().SetOperator(caller, operator); err != nil {
		return err
	}
	return s.saveState(ctx)
}

// SetAdmin hands the admin role to a new address.
func (s *AdminService) SetAdmin(ctx context.Context, caller, admin common.Address) error {
	if err := s.engine.Roles().SetAdmin(caller, admin); err != nil {
		return err
	}
	return s.saveState(ctx)
}

// MigrateToV2 applies the one-shot schema revision 2 migration.
func (s *AdminService) MigrateToV2(ctx context.Context, caller common.Address) error {
	if err := s.engine.MigrateToV2(caller); err != nil {
		return err
	}
	if err := s.saveState(ctx); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "schema migrated",
		slog.Uint64("version", uint64(s.engine.Version())),
	)
	return nil
}

// Treasury returns the accrued protocol fee without withdrawing it.
func (s *AdminService) Treasury(ctx context.Context) (*big.Int, error) {
	return s.engine.TreasuryAmount(), nil
}

// ClaimTreasury withdraws the accrued protocol fee to the admin.
func (s *AdminService) ClaimTreasury(ctx context.Context, caller common.Address) (*big.Int, error) {
	amount, err := s.engine.ClaimTreasury(ctx, caller)
	if err != nil {
		return nil, err
	}
	if err := s.saveState(ctx); err != nil {
		return nil, err
	}

	if s.notifier != nil && amount.Sign() > 0 {
		if err := s.notifier.Notify(ctx, notify.EventTreasuryClaimed,
			"Treasury claimed",
			fmt.Sprintf("%s withdrawn to %s", amount, caller.Hex()),
		); err != nil {
			s.logger.WarnContext(ctx, "treasury notification failed",
				slog.String("error", err.Error()),
			)
		}
	}
	return amount, nil
}

func (s *AdminService) saveState(ctx context.Context) error {
	if err := s.state.Save(ctx, s.engine.State()); err != nil {
		return fmt.Errorf("admin_service: persist engine state: %w", err)
	}
	return nil
}
