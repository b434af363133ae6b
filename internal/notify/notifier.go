// Package notify delivers mirror events (trade copied, position closed,
// market resolved) to one or more channels. Delivery is best effort: sender
// failures are logged and never retried, and a failing channel does not block
// the others.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Event types emitted by the mirror.
const (
	EventTradeCopied    = "trade_copied"
	EventPositionClosed = "position_closed"
	EventMarketResolved = "market_resolved"
)

// Sender is one delivery channel.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name identifies the channel, e.g. "telegram".
	Name() string
}

// Notifier fans notifications out to all senders, filtered by event type.
type Notifier struct {
	senders []Sender
	events  map[string]bool // allowed event types; empty allows all
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to senders. Only events named in
// the events slice are forwarded; an empty slice allows everything.
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

// Notify delivers to all senders if the event type is allowed.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}

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
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("event", event),
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
