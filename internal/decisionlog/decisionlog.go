// Package decisionlog composes the append-only decision audit trail
// (internal/store's decision_log table) with real-time event-bus
// publication, so the dashboard's WebSocket feed can push every automated
// gate, skip, or override the instant it is recorded. Grounded on the
// teacher's internal/events bus.go publish-on-write idiom, paired here with
// domain.DecisionLogEntry instead of Binance order-lifecycle events.
package decisionlog

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/domain"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/events"
)

// Store is the subset of internal/store the decision logger depends on.
type Store interface {
	AppendDecision(ctx context.Context, d domain.DecisionLogEntry) error
}

// Logger is the single point every business package (signals, trademonitor,
// drawdown, shadow, dynrisk, optimizer, circuit, commands, autotrader) goes
// through to record a decision, via a local DecisionLogger interface naming
// just AppendSafe, so the dashboard's live feed and the persisted audit
// trail can never drift apart: every decision write also publishes
// events.EventDecisionLogged.
type Logger struct {
	store Store
	bus   *events.EventBus
}

func New(store Store, bus *events.EventBus) *Logger {
	return &Logger{store: store, bus: bus}
}

// Append writes the entry to the audit trail and, on success, publishes it
// to the event bus for the dashboard's WebSocket subscribers.
func (l *Logger) Append(ctx context.Context, d domain.DecisionLogEntry) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	if err := l.store.AppendDecision(ctx, d); err != nil {
		return err
	}
	if l.bus == nil {
		return nil
	}
	data := map[string]interface{}{
		"decision_type": string(d.Type),
		"outcome":       d.Outcome,
		"reason":        d.Reason,
		"context":       d.Context,
	}
	if d.AccountNumber != nil {
		data["account_number"] = *d.AccountNumber
	}
	l.bus.Publish(events.Event{Type: events.EventDecisionLogged, Timestamp: d.CreatedAt, Data: data})
	return nil
}

// AppendSafe is Append with the error logged rather than returned, for call
// sites where a failed audit write must never block the caller's own
// control flow (a signal still gets skipped, a trade still gets closed,
// whether or not the log entry made it to disk).
func (l *Logger) AppendSafe(ctx context.Context, d domain.DecisionLogEntry) {
	if err := l.Append(ctx, d); err != nil {
		log.Error().Err(err).Str("decision_type", string(d.Type)).Msg("decisionlog: failed to append decision log entry")
	}
}
