// Package trademonitor scans every open trade on config.TradeMonitorConfig's
// cadence (spec.md §4.8): session backfill, MFE/MAE refresh, a 4-stage
// trailing stop, partial close, time exit, a zero-SL/TP emergency close,
// loss-threshold strategy re-validation, and stale-reconciliation escalation.
// The trailing-stop math is adapted from the teacher's
// internal/risk/trailing_stop.go single-percent trail, generalized to the
// spec's progress-staged model and its monotonic-SL/rate-limit guardrails.
//
// Stale reconciliation is deliberately an escalation, not an auto-close: a
// missing tick means the market-data feed went quiet for this instrument, not
// that the broker closed the ticket. The EA's heartbeat/trade_update contract
// carries no per-account open-ticket list today, so there is no signal this
// package could use to tell "feed gap" from "position actually gone" apart.
// Until that signal exists, consecutive tick misses only raise a decision-log
// entry; closing the ticket stays a human or EA-driven action.
package trademonitor

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/MikeHotel0815/ngTradingBot-sub001/config"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/commands"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/domain"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/events"
)

// Store is the subset of internal/store the trade monitor depends on.
type Store interface {
	ListOpenTrades(ctx context.Context) ([]*domain.Trade, error)
	GetLatestTick(ctx context.Context, instrument string) (*domain.Tick, error)
	GetBrokerSymbol(ctx context.Context, instrument string) (*domain.BrokerSymbol, error)
	BackfillSession(ctx context.Context, id int64, session domain.Session) error
	UpdateTradeExcursion(ctx context.Context, id int64, mfe, mae float64) error
	UpdateTradeSL(ctx context.Context, id int64, newSL float64) error
	MarkPartialClose(ctx context.Context, id int64, remainingVolume float64, stage int) error
	MarkReconcileMiss(ctx context.Context, id int64) (int, error)
	ResetReconcileMiss(ctx context.Context, id int64) error
}

// SignalChecker re-evaluates whether the original signal backing a losing
// trade still holds (spec.md §4.8 strategy re-validation).
type SignalChecker interface {
	StillValid(ctx context.Context, instrument string, tf domain.Timeframe, direction domain.Direction) (bool, error)
}

// DecisionLogger is the subset of internal/decisionlog.Logger the monitor
// depends on.
type DecisionLogger interface {
	AppendSafe(ctx context.Context, d domain.DecisionLogEntry)
}

// Monitor runs the per-scan pass over every open trade.
type Monitor struct {
	store   Store
	queue   *commands.Queue
	bus     *events.EventBus
	checker SignalChecker
	logger  DecisionLogger
	cfg     config.TradeMonitorConfig
}

func New(store Store, queue *commands.Queue, bus *events.EventBus, checker SignalChecker, logger DecisionLogger, cfg config.TradeMonitorConfig) *Monitor {
	return &Monitor{store: store, queue: queue, bus: bus, checker: checker, logger: logger, cfg: cfg}
}

// Scan runs one full pass over every open trade across every account.
func (m *Monitor) Scan(ctx context.Context) {
	trades, err := m.store.ListOpenTrades(ctx)
	if err != nil {
		log.Error().Err(err).Msg("trademonitor: failed to list open trades")
		return
	}
	for _, t := range trades {
		m.scanOne(ctx, t)
	}
}

func (m *Monitor) scanOne(ctx context.Context, t *domain.Trade) {
	if t.Session == "" {
		session := domain.DeriveSession(t.OpenTime)
		if err := m.store.BackfillSession(ctx, t.ID, session); err != nil {
			log.Error().Err(err).Int64("trade_id", t.ID).Msg("trademonitor: session backfill failed")
		} else {
			t.Session = session
		}
	}

	tick, err := m.store.GetLatestTick(ctx, t.Instrument)
	if err != nil || tick == nil {
		miss, merr := m.store.MarkReconcileMiss(ctx, t.ID)
		if merr != nil {
			log.Error().Err(merr).Int64("trade_id", t.ID).Msg("trademonitor: reconcile-miss update failed")
			return
		}
		if miss >= m.cfg.StaleReconcileMisses {
			m.escalateStale(ctx, t, miss)
		}
		return
	}
	if err := m.store.ResetReconcileMiss(ctx, t.ID); err != nil {
		log.Error().Err(err).Int64("trade_id", t.ID).Msg("trademonitor: reconcile-miss reset failed")
	}

	mid := (tick.Bid + tick.Ask) / 2
	m.updateExcursion(ctx, t, mid)

	if t.SL == 0 || t.TP == 0 {
		m.emergencyClose(ctx, t, "broker-reported SL or TP is zero")
		return
	}

	if t.Profit < m.cfg.ReValidationLossThreshold && m.checker != nil {
		m.reValidate(ctx, t)
	}

	if time.Since(t.OpenTime) > m.maxHold(t.Instrument) {
		m.timeExit(ctx, t)
		return
	}

	// Per spec.md §5 ordering: a trailing-stop update and a partial-close
	// cannot be emitted in the same loop iteration. Partial-close takes
	// precedence; the trail is deferred to the next scan.
	progress := t.Progress(mid)
	if m.partialCloseDue(t, progress) {
		m.applyPartialClose(ctx, t, progress)
		return
	}
	m.applyTrailingStop(ctx, t, mid, progress)
}

func (m *Monitor) maxHold(instrument string) time.Duration {
	class := domain.ClassifyAsset(instrument)
	if class == domain.AssetCrypto || class == domain.AssetIndices {
		return time.Duration(m.cfg.ScalpingMaxHoldMinutes) * time.Minute
	}
	return time.Duration(m.cfg.SwingMaxHoldMinutes) * time.Minute
}

func (m *Monitor) updateExcursion(ctx context.Context, t *domain.Trade, mid float64) {
	profit := mid - t.OpenPrice
	if t.Direction == domain.Sell {
		profit = -profit
	}
	mfe, mae := t.MFE, t.MAE
	changed := false
	if profit > mfe {
		mfe = profit
		changed = true
	}
	if profit < mae {
		mae = profit
		changed = true
	}
	if !changed {
		return
	}
	if err := m.store.UpdateTradeExcursion(ctx, t.ID, mfe, mae); err != nil {
		log.Error().Err(err).Int64("trade_id", t.ID).Msg("trademonitor: excursion update failed")
		return
	}
	t.MFE, t.MAE = mfe, mae
}

// escalateStale raises a decision-log entry once an instrument's tick feed
// has gone quiet for StaleReconcileMisses consecutive scans. It never closes
// the trade itself: a missing tick is a feed-availability signal, not proof
// the broker no longer holds the ticket, and the EA reports no per-account
// open-ticket list this package could reconcile against to tell the two
// apart. Closing on this signal alone would risk force-closing a still-open
// live position under a misleading reason.
func (m *Monitor) escalateStale(ctx context.Context, t *domain.Trade, misses int) {
	acc := t.AccountNumber
	m.logger.AppendSafe(ctx, domain.DecisionLogEntry{
		AccountNumber: &acc,
		Type:          domain.DecisionTickStale,
		Outcome:       "escalated",
		Reason:        "no tick for this instrument across consecutive reconciles; awaiting an explicit EA reconciliation signal before any close",
		Context:       map[string]interface{}{"trade_id": t.ID, "ticket": t.Ticket, "instrument": t.Instrument, "consecutive_misses": misses},
	})
}

func (m *Monitor) emergencyClose(ctx context.Context, t *domain.Trade, reason string) {
	cmd := &domain.Command{
		AccountNumber: t.AccountNumber,
		Type:          domain.CmdCloseTrade,
		Status:        domain.CommandPending,
		TimeoutAt:     time.Now().UTC().Add(5 * time.Minute),
		Payload:       map[string]interface{}{"ticket": t.Ticket, "close_reason": string(domain.CloseEmergency)},
	}
	cmd.ID = commands.CommandID(reason, time.Now().UTC())
	if err := m.queue.Emit(ctx, cmd); err != nil {
		log.Error().Err(err).Int64("trade_id", t.ID).Msg("trademonitor: emergency close emission failed")
		return
	}
	m.logDecision(ctx, t, domain.DecisionTradeFailed, "emergency_close", reason)
}

func (m *Monitor) timeExit(ctx context.Context, t *domain.Trade) {
	cmd := &domain.Command{
		AccountNumber: t.AccountNumber,
		Type:          domain.CmdCloseTrade,
		Status:        domain.CommandPending,
		TimeoutAt:     time.Now().UTC().Add(5 * time.Minute),
		Payload:       map[string]interface{}{"ticket": t.Ticket, "close_reason": string(domain.CloseTimeExit)},
	}
	cmd.ID = commands.CommandID(t.Instrument, t.OpenTime)
	if err := m.queue.Emit(ctx, cmd); err != nil {
		log.Error().Err(err).Int64("trade_id", t.ID).Msg("trademonitor: time exit emission failed")
		return
	}
	m.logDecision(ctx, t, domain.DecisionTradeSkip, "time_exit", "max hold duration exceeded")
}

func (m *Monitor) reValidate(ctx context.Context, t *domain.Trade) {
	still, err := m.checker.StillValid(ctx, t.Instrument, domain.TimeframeH1, t.Direction)
	if err != nil {
		log.Error().Err(err).Int64("trade_id", t.ID).Msg("trademonitor: strategy re-validation failed")
		return
	}
	if still {
		return
	}
	cmd := &domain.Command{
		AccountNumber: t.AccountNumber,
		Type:          domain.CmdCloseTrade,
		Status:        domain.CommandPending,
		TimeoutAt:     time.Now().UTC().Add(5 * time.Minute),
		Payload:       map[string]interface{}{"ticket": t.Ticket, "close_reason": string(domain.CloseStrategyInvalid)},
	}
	cmd.ID = commands.CommandID(t.Instrument+"-revalidate", time.Now().UTC())
	if err := m.queue.Emit(ctx, cmd); err != nil {
		log.Error().Err(err).Int64("trade_id", t.ID).Msg("trademonitor: strategy-invalid close emission failed")
		return
	}
	m.logDecision(ctx, t, domain.DecisionTradeFailed, "strategy_invalid", "original signal direction flipped or pattern evaporated")
}

func (m *Monitor) logDecision(ctx context.Context, t *domain.Trade, dt domain.DecisionType, outcome, reason string) {
	acc := t.AccountNumber
	entry := domain.DecisionLogEntry{
		AccountNumber: &acc, Type: dt, Outcome: outcome, Reason: reason,
		Context: map[string]interface{}{"trade_id": t.ID, "ticket": t.Ticket, "instrument": t.Instrument},
	}
	m.logger.AppendSafe(ctx, entry)
}
