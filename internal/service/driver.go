package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dehublabs/predictiond/internal/chain"
	"github.com/dehublabs/predictiond/internal/domain"
	"github.com/dehublabs/predictiond/internal/engine"
	"github.com/dehublabs/predictiond/internal/notify"
)

// driverLockKey guards the lifecycle tick. Only one operator instance may
// drive the engine at a time; the rest skip their tick.
const driverLockKey = "driver:tick"

// Archiver uploads settled rounds below an epoch cutoff to cold storage.
type Archiver interface {
	ArchiveSettled(ctx context.Context, before uint64, limit int) (int64, error)
}

// DriverConfig tunes the lifecycle loop.
type DriverConfig struct {
	// PollInterval is how often the driver checks the chain height.
	PollInterval time.Duration
	// LockTTL bounds how long a crashed instance can hold the tick lock.
	LockTTL time.Duration
	// ArchiveKeepEpochs is how many recent epochs stay out of cold storage.
	// Zero disables archival even when an Archiver is configured.
	ArchiveKeepEpochs uint64
	// ArchiveBatch caps rounds archived per tick.
	ArchiveBatch int
}

// Driver runs the round lifecycle: it polls the block source and, holding the
// distributed tick lock, advances the engine through genesis and steady-state
// ticks as lock blocks are reached. Results are persisted through the
// Recorder before the lock is released.
type Driver struct {
	cfg      DriverConfig
	engine   *engine.Engine
	operator common.Address
	blocks   chain.BlockSource
	recorder *Recorder
	locks    domain.LockManager
	archiver Archiver
	notifier *notify.Notifier
	logger   *slog.Logger
}

// NewDriver creates a Driver ticking as the given operator address. archiver
// and notifier may be nil.
func NewDriver(
	cfg DriverConfig,
	eng *engine.Engine,
	operator common.Address,
	blocks chain.BlockSource,
	recorder *Recorder,
	locks domain.LockManager,
	archiver Archiver,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *Driver {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	if cfg.ArchiveBatch <= 0 {
		cfg.ArchiveBatch = 100
	}
	return &Driver{
		cfg:      cfg,
		engine:   eng,
		operator: operator,
		blocks:   blocks,
		recorder: recorder,
		locks:    locks,
		archiver: archiver,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "driver")),
	}
}

// Run polls until ctx is cancelled. Tick errors are reported and the loop
// continues; a dead oracle or database must not stop the poll.
func (d *Driver) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	d.logger.InfoContext(ctx, "driver started",
		slog.Duration("poll_interval", d.cfg.PollInterval),
		slog.String("operator", d.operator.Hex()),
	)

	for {
		select {
		case <-ctx.Done():
			d.logger.InfoContext(ctx, "driver stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := d.Tick(ctx); err != nil {
				d.logger.ErrorContext(ctx, "tick failed",
					slog.String("error", err.Error()),
				)
				if d.notifier != nil {
					_ = d.notifier.Error(ctx, "lifecycle tick", err)
				}
			}
		}
	}
}

// Tick advances the lifecycle by at most one transition. It is a no-op when
// another instance holds the lock, the engine is paused, or no lock block has
// been reached yet.
func (d *Driver) Tick(ctx context.Context) error {
	unlock, err := d.locks.Acquire(ctx, driverLockKey, d.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return nil
		}
		return fmt.Errorf("driver: acquire tick lock: %w", err)
	}
	defer unlock()

	if d.engine.Paused() {
		return nil
	}

	height, err := d.blocks.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("driver: block height: %w", err)
	}

	st := d.engine.State()
	var tr engine.Transition
	switch {
	case !st.GenesisStarted:
		tr, err = d.engine.GenesisStartRound(d.operator, height)
	case !st.GenesisLocked:
		if !d.lockBlockReached(height) {
			return nil
		}
		tr, err = d.engine.GenesisLockRound(ctx, d.operator, height)
	default:
		if !d.lockBlockReached(height) {
			return nil
		}
		tr, err = d.engine.ExecuteRound(ctx, d.operator, height)
	}
	if err != nil {
		if errors.Is(err, domain.ErrTooEarly) {
			return nil
		}
		return fmt.Errorf("driver: advance at height %d: %w", height, err)
	}

	if err := d.recorder.Record(ctx, tr); err != nil {
		return err
	}

	for _, ev := range tr.Events {
		d.logger.InfoContext(ctx, string(ev.Type),
			slog.Uint64("epoch", ev.Round.Epoch),
			slog.Uint64("height", height),
		)
	}

	d.archive(ctx)
	return nil
}

// lockBlockReached reports whether the open round's lock block has arrived.
func (d *Driver) lockBlockReached(height uint64) bool {
	r, ok := d.engine.Round(d.engine.CurrentEpoch())
	if !ok {
		return false
	}
	return height >= r.LockBlock
}

// archive moves old settled rounds to cold storage. Failures are logged; the
// next tick retries.
func (d *Driver) archive(ctx context.Context) {
	if d.archiver == nil || d.cfg.ArchiveKeepEpochs == 0 {
		return
	}
	epoch := d.engine.CurrentEpoch()
	if epoch <= d.cfg.ArchiveKeepEpochs {
		return
	}

	n, err := d.archiver.ArchiveSettled(ctx, epoch-d.cfg.ArchiveKeepEpochs, d.cfg.ArchiveBatch)
	if err != nil {
		d.logger.WarnContext(ctx, "archive failed",
			slog.String("error", err.Error()),
		)
		return
	}
	if n > 0 {
		d.logger.InfoContext(ctx, "rounds archived",
			slog.Int64("count", n),
		)
	}
}
