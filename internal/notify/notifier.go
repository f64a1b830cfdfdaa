// Package notify alerts operators about round lifecycle events over one or
// more channels (Telegram, Discord). Events can be filtered so a channel only
// carries the alerts the operator cares about.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dehublabs/predictiond/internal/domain"
)

// Event types accepted by the events filter in the configuration.
const (
	EventRoundLocked     = "round_locked"
	EventRoundSettled    = "round_settled"
	EventRoundCancelled  = "round_cancelled"
	EventTreasuryClaimed = "treasury_claimed"
	EventError           = "error"
)

// Sender is one delivery channel.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name identifies the sender, e.g. "telegram".
	Name() string
}

// Notifier dispatches notifications to every registered Sender. Notify only
// forwards events in the allowed set; an empty set allows everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders, filtered to
// the given event types.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify sends a notification when the event type passes the filter.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out",
			slog.String("event", event),
		)
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// RoundLocked announces that a round's lock price has been fixed.
func (n *Notifier) RoundLocked(ctx context.Context, r domain.Round) error {
	title := fmt.Sprintf("Round %d locked", r.Epoch)
	msg := fmt.Sprintf("lock price %s at block %d, pool %s (bull %s / bear %s)",
		r.LockPrice, r.LockBlock, r.TotalAmount, r.BullAmount, r.BearAmount)
	return n.Notify(ctx, EventRoundLocked, title, msg)
}

// RoundSettled announces a settled round and its outcome.
func (n *Notifier) RoundSettled(ctx context.Context, r domain.Round) error {
	title := fmt.Sprintf("Round %d settled: %s", r.Epoch, r.Outcome)
	msg := fmt.Sprintf("close price %s vs lock %s, reward pool %s to the %s side",
		r.ClosePrice, r.LockPrice, r.RewardAmount, r.Outcome)
	return n.Notify(ctx, EventRoundSettled, title, msg)
}

// RoundCancelled announces a cancelled round whose stakes became refundable.
func (n *Notifier) RoundCancelled(ctx context.Context, r domain.Round) error {
	title := fmt.Sprintf("Round %d cancelled", r.Epoch)
	msg := fmt.Sprintf("pool %s refundable (bull %s / bear %s)",
		r.TotalAmount, r.BullAmount, r.BearAmount)
	return n.Notify(ctx, EventRoundCancelled, title, msg)
}

// Error announces an operational failure the operator should look at.
func (n *Notifier) Error(ctx context.Context, what string, err error) error {
	return n.Notify(ctx, EventError, "Operator error: "+what, err.Error())
}

// dispatch fans the message out to every sender. A failing sender does not
// stop delivery to the rest; failures are combined into one error.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		} else {
			n.logger.DebugContext(ctx, "notification sent",
				slog.String("sender", s.Name()),
				slog.String("title", title),
			)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
