// Package service coordinates the settlement engine with persistence, the
// cache, the event bus, and operator notifications. The engine stays pure;
// everything durable or outbound happens here.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dehublabs/predictiond/internal/domain"
	"github.com/dehublabs/predictiond/internal/engine"
	"github.com/dehublabs/predictiond/internal/notify"
)

// Recorder persists the outcome of a lifecycle transition: round snapshots,
// the engine state row, cache entries, published events, and notifications.
// Cache, bus, and notifier are optional; store writes are not.
type Recorder struct {
	engine   *engine.Engine
	rounds   domain.RoundStore
	state    domain.EngineStateStore
	cache    domain.RoundCache
	bus      domain.EventBus
	notifier *notify.Notifier
	logger   *slog.Logger
}

// NewRecorder creates a Recorder. cache, bus, and notifier may be nil.
func NewRecorder(
	eng *engine.Engine,
	rounds domain.RoundStore,
	state domain.EngineStateStore,
	cache domain.RoundCache,
	bus domain.EventBus,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *Recorder {
	return &Recorder{
		engine:   eng,
		rounds:   rounds,
		state:    state,
		cache:    cache,
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "recorder")),
	}
}

// Record writes every round the transition touched plus the engine state row,
// then fans the events out. Store failures abort; cache, bus, and notify
// failures are logged and swallowed — the stores are the source of truth.
func (rec *Recorder) Record(ctx context.Context, tr engine.Transition) error {
	for _, r := range tr.Rounds() {
		if err := rec.rounds.Upsert(ctx, r); err != nil {
			return fmt.Errorf("service: persist round %d: %w", r.Epoch, err)
		}
	}
	if err := rec.state.Save(ctx, rec.engine.State()); err != nil {
		return fmt.Errorf("service: persist engine state: %w", err)
	}

	st := rec.engine.State()
	for _, ev := range tr.Events {
		rec.updateCache(ctx, ev)
		rec.publish(ctx, ev, st)
		rec.notify(ctx, ev)
	}
	return nil
}

func (rec *Recorder) updateCache(ctx context.Context, ev engine.Event) {
	if rec.cache == nil {
		return
	}
	var err error
	if ev.Type == engine.EventRoundStarted {
		err = rec.cache.SetCurrent(ctx, ev.Round)
	} else {
		err = rec.cache.Set(ctx, ev.Round)
	}
	if err != nil {
		rec.logger.WarnContext(ctx, "cache update failed",
			slog.Uint64("epoch", ev.Round.Epoch),
			slog.String("error", err.Error()),
		)
	}
}

func (rec *Recorder) publish(ctx context.Context, ev engine.Event, st domain.EngineState) {
	if rec.bus == nil {
		return
	}
	err := rec.bus.Publish(ctx, domain.RoundEvent{
		Type:  string(ev.Type),
		Epoch: ev.Round.Epoch,
		Round: ev.Round,
		At:    st.UpdatedAt,
	})
	if err != nil {
		rec.logger.WarnContext(ctx, "event publish failed",
			slog.Uint64("epoch", ev.Round.Epoch),
			slog.String("error", err.Error()),
		)
	}
}

func (rec *Recorder) notify(ctx context.Context, ev engine.Event) {
	if rec.notifier == nil {
		return
	}
	var err error
	switch ev.Type {
	case engine.EventRoundLocked:
		err = rec.notifier.RoundLocked(ctx, ev.Round)
	case engine.EventRoundExecuted:
		err = rec.notifier.RoundSettled(ctx, ev.Round)
	case engine.EventRoundCancelled:
		err = rec.notifier.RoundCancelled(ctx, ev.Round)
	}
	if err != nil {
		rec.logger.WarnContext(ctx, "notification failed",
			slog.Uint64("epoch", ev.Round.Epoch),
			slog.String("error", err.Error()),
		)
	}
}
