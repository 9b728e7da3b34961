// Package shadow runs hypothetical trades for instruments whose
// SymbolTradingConfig.Status is shadow_trade (spec.md §4.10): a signal that
// would otherwise open a live position instead opens a ShadowTrade row,
// watched against live ticks the same way a real trade is, and closed on the
// same SL/TP rules (there is no time exit) but without ever touching the
// command queue.
// A 30-day recovery job promotes a symbol back to live trading once its
// simulated performance clears config.ShadowConfig's thresholds.
package shadow

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/MikeHotel0815/ngTradingBot-sub001/config"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/domain"
)

// Store is the subset of internal/store the shadow engine depends on.
type Store interface {
	OpenShadowTrade(ctx context.Context, st *domain.ShadowTrade) error
	ListOpenShadowTrades(ctx context.Context) ([]*domain.ShadowTrade, error)
	CloseShadowTrade(ctx context.Context, id int64, exitPrice, hypotheticalProfit float64) error
	GetShadowRecoveryStats(ctx context.Context, accountNumber int64, instrument string, direction domain.Direction, days int) (domain.ShadowRecoveryStats, error)
	GetSymbolConfig(ctx context.Context, accountNumber int64, instrument string, direction domain.Direction) (*domain.SymbolTradingConfig, error)
	UpsertSymbolConfig(ctx context.Context, c *domain.SymbolTradingConfig) error
	ListSymbolConfigs(ctx context.Context, accountNumber int64) ([]*domain.SymbolTradingConfig, error)
	GetLatestTick(ctx context.Context, instrument string) (*domain.Tick, error)
	GetBrokerSymbol(ctx context.Context, instrument string) (*domain.BrokerSymbol, error)
}

// DecisionLogger is the subset of internal/decisionlog.Logger the shadow
// engine depends on.
type DecisionLogger interface {
	AppendSafe(ctx context.Context, d domain.DecisionLogEntry)
}

// Engine simulates shadow positions and runs the recovery sweep.
type Engine struct {
	store  Store
	logger DecisionLogger
	cfg    config.ShadowConfig
}

func New(store Store, logger DecisionLogger, cfg config.ShadowConfig) *Engine {
	return &Engine{store: store, logger: logger, cfg: cfg}
}

// Open records a hypothetical entry for a signal whose symbol is in shadow
// mode, mirroring what the auto-trader would otherwise have sent as an
// OPEN_TRADE command.
func (e *Engine) Open(ctx context.Context, accountNumber int64, instrument string, direction domain.Direction, entryPrice, sl, tp float64, signalID int64) error {
	st := &domain.ShadowTrade{
		AccountNumber: accountNumber, Instrument: instrument, Direction: direction,
		EntryPrice: entryPrice, SL: sl, TP: tp, SignalID: signalID,
	}
	if err := e.store.OpenShadowTrade(ctx, st); err != nil {
		return err
	}
	entry := domain.DecisionLogEntry{
		AccountNumber: &accountNumber, Type: domain.DecisionShadowTrade, Outcome: "opened",
		Reason:  "symbol is in shadow_trade status, simulating instead of sending OPEN_TRADE",
		Context: map[string]interface{}{"instrument": instrument, "direction": direction, "signal_id": signalID},
	}
	e.logger.AppendSafe(ctx, entry)
	return nil
}

// Scan advances every open shadow trade against the latest tick, closing it
// on an SL/TP touch exactly like a live position would close.
func (e *Engine) Scan(ctx context.Context) {
	open, err := e.store.ListOpenShadowTrades(ctx)
	if err != nil {
		log.Error().Err(err).Msg("shadow: failed to list open shadow trades")
		return
	}
	for _, st := range open {
		e.scanOne(ctx, st)
	}
}

func (e *Engine) scanOne(ctx context.Context, st *domain.ShadowTrade) {
	tick, err := e.store.GetLatestTick(ctx, st.Instrument)
	if err != nil || tick == nil {
		return
	}
	mid := (tick.Bid + tick.Ask) / 2

	hit, exitPrice := e.checkExit(st, mid)
	if !hit {
		return
	}

	profit := e.hypotheticalProfit(ctx, st, exitPrice)
	if err := e.store.CloseShadowTrade(ctx, st.ID, exitPrice, profit); err != nil {
		log.Error().Err(err).Int64("shadow_trade_id", st.ID).Msg("shadow: failed to close shadow trade")
	}
}

func (e *Engine) checkExit(st *domain.ShadowTrade, mid float64) (hit bool, exitPrice float64) {
	if st.Direction == domain.Buy {
		if mid <= st.SL {
			return true, st.SL
		}
		if mid >= st.TP {
			return true, st.TP
		}
		return false, 0
	}
	if mid >= st.SL {
		return true, st.SL
	}
	if mid <= st.TP {
		return true, st.TP
	}
	return false, 0
}

func (e *Engine) hypotheticalProfit(ctx context.Context, st *domain.ShadowTrade, exitPrice float64) float64 {
	sym, err := e.store.GetBrokerSymbol(ctx, st.Instrument)
	if err != nil || sym == nil || sym.TickSize == 0 {
		diff := exitPrice - st.EntryPrice
		if st.Direction == domain.Sell {
			diff = -diff
		}
		return diff
	}
	diff := exitPrice - st.EntryPrice
	if st.Direction == domain.Sell {
		diff = -diff
	}
	return diff / sym.TickSize * sym.TickValue
}
