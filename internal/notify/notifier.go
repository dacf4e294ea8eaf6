// Package notify fans candidate alerts out to dealer-facing channels
// (Telegram, Discord, a generic JSON webhook). Each sender formats the
// alert itself.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/carbitrage/internal/decision"
	"github.com/alanyoungcy/carbitrage/internal/domain"
)

// Sender delivers one alert to one channel.
type Sender interface {
	Send(ctx context.Context, ev domain.AlertEvent) error
	Name() string
}

// Notifier dispatches alerts to every sender, filtered by decision.
type Notifier struct {
	senders []Sender
	events  map[domain.Decision]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. events lists the decisions that are
// forwarded ("BUY", "WATCH"); empty forwards every decision.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[domain.Decision]bool, len(events))
	for _, e := range events {
		if e = strings.ToUpper(strings.TrimSpace(e)); e != "" {
			allowed[domain.Decision(e)] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && len(n.senders) > 0
}

// Notify sends ev to every sender when its decision is allowed. A failing
// sender does not stop delivery to the others; failures are combined into
// the returned error.
func (n *Notifier) Notify(ctx context.Context, ev domain.AlertEvent) error {
	if !n.Enabled() {
		return nil
	}
	if len(n.events) > 0 && !n.events[ev.Decision] {
		n.logger.DebugContext(ctx, "alert filtered out",
			slog.String("decision", string(ev.Decision)),
			slog.Int64("listing_id", ev.ListingID),
		)
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, ev); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "alert sent",
			slog.String("sender", s.Name()),
			slog.String("alert_id", ev.ID),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

// Title renders the one-line headline shared by chat senders.
func Title(ev domain.AlertEvent) string {
	title := fmt.Sprintf("%s: %s", ev.Decision, ev.VehicleSummary)
	if ev.PreviousDecision != "" && ev.PreviousDecision != ev.Decision {
		title += fmt.Sprintf(" (was %s)", ev.PreviousDecision)
	}
	return title
}

// Body renders the multi-line detail shared by chat senders.
func Body(ev domain.AlertEvent) string {
	var b strings.Builder
	if ev.Price != nil {
		fmt.Fprintf(&b, "Asking %s\n", decision.Dollars(*ev.Price))
	}
	if ev.GapDollars != nil {
		fmt.Fprintf(&b, "Gap %s", decision.Dollars(*ev.GapDollars))
		if ev.GapPct != nil {
			fmt.Fprintf(&b, " (%.1f%%)", *ev.GapPct)
		}
		b.WriteString("\n")
	}
	if ev.Confidence != "" {
		fmt.Fprintf(&b, "Confidence %s\n", ev.Confidence)
	}
	for _, r := range ev.Reasons {
		fmt.Fprintf(&b, "- %s\n", r)
	}
	if ev.URL != "" {
		b.WriteString(ev.URL)
	}
	return strings.TrimRight(b.String(), "\n")
}
