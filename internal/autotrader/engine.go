// Package autotrader implements the gate pipeline of spec.md §4.6: the
// gatekeeper between an active TradingSignal and a live OPEN_TRADE command.
// Twelve checks run in order — staleness, global (auto-trading/circuit),
// daily-loss, symbol-config (including the shadow-trading handoff),
// confidence, correlation, position-count, spread, SL enforcement, position
// sizing, command emission, decision logging — any one of which can end
// evaluation of a given (account, signal) pair early.
//
// Grounded on teacher internal/risk/manager.go's CanOpenPosition/
// CalculatePositionSize gate-then-size shape, generalized from Binance's
// single global account to per-account evaluation over every active
// subscription, and on internal/signals/sltp.go's asset-class SL ceiling
// logic, reused here to re-validate a signal's suggested SL against the
// account's current AccountRiskState and live price rather than the price
// at signal-generation time.
//
// Scan runs single-threaded over every active account in order, satisfying
// spec.md's "singleton discipline" paragraph without a separate worker
// pool: the only per-account/per-instrument mutable state the gates touch
// (pending commands, correlation counts, the rolling spread average) is
// read and written from this one goroutine, so no locking is needed beyond
// the rolling spread tracker described in spread.go.
package autotrader

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/MikeHotel0815/ngTradingBot-sub001/config"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/commands"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/domain"
)

// signalTimeframes mirrors internal/scheduler's generation set — the
// auto-trader only ever looks for signals on timeframes the generator
// actually produces.
var signalTimeframes = []domain.Timeframe{domain.TimeframeM5, domain.TimeframeM15, domain.TimeframeH1, domain.TimeframeH4}

var directions = []domain.Direction{domain.Buy, domain.Sell}

// Store is the subset of internal/store the auto-trader depends on.
type Store interface {
	ListActiveAccounts(ctx context.Context) ([]*domain.Account, error)
	ListSubscriptions(ctx context.Context, accountNumber int64) ([]domain.SubscribedSymbol, error)
	GetActiveSignal(ctx context.Context, instrument string, tf domain.Timeframe, dir domain.Direction) (*domain.TradingSignal, error)
	MarkSignalExecuted(ctx context.Context, id int64) error
	GetSymbolConfig(ctx context.Context, accountNumber int64, instrument string, direction domain.Direction) (*domain.SymbolTradingConfig, error)
	CountOpenTradesInGroup(ctx context.Context, accountNumber int64, instruments []string) (int, error)
	CountOpenTrades(ctx context.Context, accountNumber int64) (int, error)
	GetLatestTick(ctx context.Context, instrument string) (*domain.Tick, error)
	GetBrokerSymbol(ctx context.Context, instrument string) (*domain.BrokerSymbol, error)
	GetRiskState(ctx context.Context, accountNumber int64) (*domain.AccountRiskState, error)
	TodayRealizedPnL(ctx context.Context, accountNumber int64) (float64, error)
}

// DecisionLogger is the subset of internal/decisionlog.Logger the gate
// pipeline depends on.
type DecisionLogger interface {
	AppendSafe(ctx context.Context, d domain.DecisionLogEntry)
}

// ShadowHandoff is internal/shadow.Engine's Open method — the symbol-config
// gate routes here instead of the live command queue when a symbol is under
// shadow-trade recovery.
type ShadowHandoff interface {
	Open(ctx context.Context, accountNumber int64, instrument string, direction domain.Direction, entryPrice, sl, tp float64, signalID int64) error
}

// Engine runs the gate pipeline over every active account on each Scan.
type Engine struct {
	store  Store
	queue  *commands.Queue
	shadow ShadowHandoff
	logger DecisionLogger
	cfg    config.AutoTraderConfig

	spread *spreadTracker
}

func New(store Store, queue *commands.Queue, shadow ShadowHandoff, logger DecisionLogger, cfg config.AutoTraderConfig) *Engine {
	return &Engine{store: store, queue: queue, shadow: shadow, logger: logger, cfg: cfg, spread: newSpreadTracker()}
}

// Scan evaluates every active account's subscriptions against every active
// signal matching them, in the cadence internal/scheduler drives
// (config.AutoTraderConfig.Cadence, default 10s).
func (e *Engine) Scan(ctx context.Context) {
	accounts, err := e.store.ListActiveAccounts(ctx)
	if err != nil {
		log.Error().Err(err).Msg("autotrader: failed to list active accounts")
		return
	}
	for _, acc := range accounts {
		e.scanAccount(ctx, acc)
	}
}

func (e *Engine) scanAccount(ctx context.Context, acc *domain.Account) {
	if !acc.AutoTradingEnabled || acc.CircuitTripped {
		return // gate 2: global — trip/pause state owned by internal/circuit and internal/drawdown
	}

	subs, err := e.store.ListSubscriptions(ctx, acc.AccountNumber)
	if err != nil {
		log.Error().Err(err).Int64("account_number", acc.AccountNumber).Msg("autotrader: failed to list subscriptions")
		return
	}

	for _, sub := range subs {
		if !sub.Active || sub.ShadowMode {
			continue
		}
		for _, tf := range signalTimeframes {
			for _, dir := range directions {
				sig, err := e.store.GetActiveSignal(ctx, sub.Instrument, tf, dir)
				if err != nil {
					log.Error().Err(err).Str("instrument", sub.Instrument).Msg("autotrader: failed to look up active signal")
					continue
				}
				if sig == nil {
					continue
				}
				e.evaluate(ctx, acc, sub, sig)
			}
		}
	}
}

// evaluate runs gates 1, 3-12 against a single candidate (account,
// subscription, signal) triple. Gate 2 (global) is already checked by the
// caller once per account.
func (e *Engine) evaluate(ctx context.Context, acc *domain.Account, sub domain.SubscribedSymbol, sig *domain.TradingSignal) {
	if reject := e.gateStaleness(ctx, acc, sig); reject != "" {
		e.logReject(ctx, acc, sig, domain.DecisionTradeSkip, reject)
		return
	}
	if reject := e.gateDailyLoss(ctx, acc); reject != "" {
		e.logReject(ctx, acc, sig, domain.DecisionTradeSkip, reject)
		return
	}

	symCfg, err := e.store.GetSymbolConfig(ctx, acc.AccountNumber, sub.Instrument, sig.Direction)
	if err != nil {
		log.Error().Err(err).Str("instrument", sub.Instrument).Msg("autotrader: failed to load symbol config")
		return
	}
	switch symCfg.Status {
	case domain.ConfigPaused, domain.ConfigDisabled:
		e.logReject(ctx, acc, sig, domain.DecisionTradeSkip, "symbol trading status is "+string(symCfg.Status))
		return
	case domain.ConfigShadowTrade:
		e.handoffToShadow(ctx, acc, sub, sig)
		return
	}

	if sig.Confidence < symCfg.MinConfidenceThreshold {
		e.logReject(ctx, acc, sig, domain.DecisionTradeSkip, "confidence below symbol threshold")
		return
	}

	if reject := e.gateCorrelation(ctx, acc, sub); reject != "" {
		e.logReject(ctx, acc, sig, domain.DecisionTradeSkip, reject)
		return
	}
	if reject := e.gatePositionCount(ctx, acc); reject != "" {
		e.logReject(ctx, acc, sig, domain.DecisionTradeSkip, reject)
		return
	}

	sym, err := e.store.GetBrokerSymbol(ctx, sub.Instrument)
	if err != nil || sym == nil || !sym.Valid() {
		e.logReject(ctx, acc, sig, domain.DecisionTradeSkip, "broker symbol unavailable or invalid")
		return
	}

	tick, reject := e.gateSpread(ctx, sym)
	if reject != "" {
		typ := domain.DecisionSpreadRejected
		if tick == nil {
			typ = domain.DecisionTickStale
		}
		e.logReject(ctx, acc, sig, typ, reject)
		return
	}

	entry := tick.Ask
	if sig.Direction == domain.Sell {
		entry = tick.Bid
	}

	sl, tp, reject := e.gateSLEnforcement(ctx, acc, sym, sig, entry)
	if reject != "" {
		e.logReject(ctx, acc, sig, domain.DecisionTradeSkip, reject)
		return
	}

	volume := e.sizePosition(acc, symCfg, sym, sig, entry, sl)

	e.emit(ctx, acc, sub, sig, volume, entry, sl, tp)
}

func (e *Engine) handoffToShadow(ctx context.Context, acc *domain.Account, sub domain.SubscribedSymbol, sig *domain.TradingSignal) {
	if err := e.shadow.Open(ctx, acc.AccountNumber, sub.Instrument, sig.Direction, sig.SuggestedEntry, sig.SuggestedSL, sig.SuggestedTP, sig.ID); err != nil {
		log.Error().Err(err).Int64("account_number", acc.AccountNumber).Str("instrument", sub.Instrument).
			Msg("autotrader: shadow handoff failed")
		return
	}
	if err := e.store.MarkSignalExecuted(ctx, sig.ID); err != nil {
		log.Error().Err(err).Int64("signal_id", sig.ID).Msg("autotrader: failed to mark signal executed after shadow handoff")
	}
}

func (e *Engine) emit(ctx context.Context, acc *domain.Account, sub domain.SubscribedSymbol, sig *domain.TradingSignal, volume, entry, sl, tp float64) {
	signalID := strconv.FormatInt(sig.ID, 10)
	cmd := commands.OpenTrade(acc.AccountNumber, signalID, sub.Instrument, sig.Direction, volume, sl, tp, entry, e.cfg.CommandTimeout)
	if err := e.queue.Emit(ctx, cmd); err != nil {
		log.Error().Err(err).Str("instrument", sub.Instrument).Msg("autotrader: failed to emit open-trade command")
		return
	}
	if err := e.store.MarkSignalExecuted(ctx, sig.ID); err != nil {
		log.Error().Err(err).Int64("signal_id", sig.ID).Msg("autotrader: failed to mark signal executed")
	}

	an := acc.AccountNumber
	e.appendDecision(ctx, domain.DecisionLogEntry{
		AccountNumber: &an,
		Type:          domain.DecisionTradeOpen,
		Outcome:       "command_emitted",
		Reason:        "signal passed all gates",
		Context: map[string]interface{}{
			"instrument": sub.Instrument, "direction": sig.Direction, "signal_id": sig.ID,
			"volume": volume, "entry": entry, "sl": sl, "tp": tp, "command_id": cmd.ID,
		},
	})
}

func (e *Engine) logReject(ctx context.Context, acc *domain.Account, sig *domain.TradingSignal, typ domain.DecisionType, reason string) {
	an := acc.AccountNumber
	e.appendDecision(ctx, domain.DecisionLogEntry{
		AccountNumber: &an,
		Type:          typ,
		Outcome:       "rejected",
		Reason:        reason,
		Context:       map[string]interface{}{"instrument": sig.Instrument, "signal_id": sig.ID, "direction": sig.Direction},
	})
}

func (e *Engine) appendDecision(ctx context.Context, d domain.DecisionLogEntry) {
	e.logger.AppendSafe(ctx, d)
}

func (e *Engine) gateStaleness(ctx context.Context, acc *domain.Account, sig *domain.TradingSignal) string {
	age := time.Since(sig.CreatedAt)
	if age > e.cfg.MaxSignalAge {
		return "signal older than max signal age"
	}
	if age > e.cfg.SignalAgeWarnAt {
		an := acc.AccountNumber
		e.appendDecision(ctx, domain.DecisionLogEntry{
			AccountNumber: &an, Type: domain.DecisionPerformanceAlert, Outcome: "warning",
			Reason:  "signal age approaching max signal age",
			Context: map[string]interface{}{"instrument": sig.Instrument, "signal_id": sig.ID, "age_seconds": age.Seconds()},
		})
	}
	return ""
}

func (e *Engine) gateDailyLoss(ctx context.Context, acc *domain.Account) string {
	if acc.StartOfDayBalance <= 0 {
		return ""
	}
	profile, ok := e.cfg.RiskProfiles[string(acc.RiskProfile)]
	if !ok {
		return ""
	}
	realized, err := e.store.TodayRealizedPnL(ctx, acc.AccountNumber)
	if err != nil {
		log.Error().Err(err).Int64("account_number", acc.AccountNumber).Msg("autotrader: failed to read today's realized P&L")
		return ""
	}
	limit := -(acc.StartOfDayBalance * profile.MaxDailyLossPct / 100)
	if realized <= limit {
		return "daily realized loss limit reached for risk profile"
	}
	return ""
}

func (e *Engine) gateCorrelation(ctx context.Context, acc *domain.Account, sub domain.SubscribedSymbol) string {
	if e.cfg.MaxCorrelatedPositions <= 0 {
		return ""
	}
	group := domain.CorrelationGroup(sub.Instrument)
	subs, err := e.store.ListSubscriptions(ctx, acc.AccountNumber)
	if err != nil {
		log.Error().Err(err).Msg("autotrader: failed to list subscriptions for correlation gate")
		return ""
	}
	var grouped []string
	for _, s := range subs {
		if domain.CorrelationGroup(s.Instrument) == group {
			grouped = append(grouped, s.Instrument)
		}
	}
	n, err := e.store.CountOpenTradesInGroup(ctx, acc.AccountNumber, grouped)
	if err != nil {
		log.Error().Err(err).Msg("autotrader: failed to count open trades in correlation group")
		return ""
	}
	if n >= e.cfg.MaxCorrelatedPositions {
		return "correlation group already at max open positions"
	}
	return ""
}

func (e *Engine) gatePositionCount(ctx context.Context, acc *domain.Account) string {
	if e.cfg.MaxOpenPositions <= 0 {
		return ""
	}
	n, err := e.store.CountOpenTrades(ctx, acc.AccountNumber)
	if err != nil {
		log.Error().Err(err).Msg("autotrader: failed to count open trades")
		return ""
	}
	if n >= e.cfg.MaxOpenPositions {
		return "account already at max open positions"
	}
	return ""
}
