package autotrader

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/domain"
)

// gateSLEnforcement implements spec.md §4.6 step 9: re-validates the
// signal's suggested SL/TP against the symbol's current asset-class ceiling
// and live entry price, tightening the stop if the account's current
// AccountRiskState or price drift since signal generation would now put a
// minimum-volume position over its max-loss ceiling. Grounded directly on
// internal/signals/sltp.go's selectSLTP ceiling-tightening logic — this is
// the second, execution-time application of the same rule, not a
// reimplementation of it; an ATR recompute is deliberately skipped here
// since the signal already carries an ATR-derived distance and re-deriving
// it from indicators a second time would only reproduce the same number.
func (e *Engine) gateSLEnforcement(ctx context.Context, acc *domain.Account, sym *domain.BrokerSymbol, sig *domain.TradingSignal, entry float64) (sl, tp float64, reject string) {
	slDist := sig.SuggestedEntry - sig.SuggestedSL
	tpDist := sig.SuggestedTP - sig.SuggestedEntry
	if sig.Direction == domain.Sell {
		slDist = -slDist
		tpDist = -tpDist
	}
	if slDist <= 0 {
		return 0, 0, "signal has a non-positive SL distance"
	}

	minDist := float64(sym.StopsLevel) * sym.Point
	if slDist < minDist {
		slDist = minDist
	}

	class := domain.ClassifyAsset(sym.Instrument)
	classCfg, ok := e.cfg.AssetClasses[string(class)]
	ceiling := 0.0
	if ok {
		ceiling = classCfg.MaxLossCurrency
	}
	if riskState, err := e.store.GetRiskState(ctx, acc.AccountNumber); err != nil {
		log.Error().Err(err).Int64("account_number", acc.AccountNumber).Msg("autotrader: risk state lookup failed, using static asset-class ceiling")
	} else if riskState.SLCeilingCurrency > 0 {
		ceiling = riskState.SLCeilingCurrency
	}

	if ceiling > 0 && sym.TickValue > 0 && sym.TickSize > 0 {
		lossPerUnit := (slDist / sym.TickSize) * sym.TickValue * sym.MinVolume
		if lossPerUnit > ceiling {
			ratio := ceiling / lossPerUnit
			slDist *= ratio
			if slDist < minDist {
				return 0, 0, "max-loss ceiling forces SL below broker minimum stop distance"
			}
		}
	}

	if sig.Direction == domain.Buy {
		sl = entry - slDist
		tp = entry + tpDist
	} else {
		sl = entry + slDist
		tp = entry - tpDist
	}
	return sl, tp, ""
}
