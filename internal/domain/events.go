package domain

import (
	"context"
	"time"
)

// RoundEvent announces a round lifecycle change to live consumers. Type
// matches the lifecycle event names emitted by the engine: round_started,
// round_locked, round_executed, round_cancelled.
type RoundEvent struct {
	Type  string    `json:"type"`
	Epoch uint64    `json:"epoch"`
	Round Round     `json:"round"`
	At    time.Time `json:"at"`
}

// EventBus fans round events out across processes. Delivery is best-effort;
// the stores remain the source of truth.
type EventBus interface {
	Publish(ctx context.Context, ev RoundEvent) error
	Subscribe(ctx context.Context) (<-chan RoundEvent, error)
}
