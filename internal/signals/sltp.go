package signals

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/domain"
)

type slTPResult struct {
	sl, tp float64
}

func atrValue(values []domain.IndicatorValue) float64 {
	for _, v := range values {
		if v.Name == "atr14" {
			return v.Value
		}
	}
	return 0
}

// selectSLTP implements spec.md §4.5's SL/TP selection: an asset-class ATR
// multiplier table sized against the broker's minimum stop distance and
// minimum percent distance, then bounded by the configured risk:reward
// window. Returns valid=false with a reason when no SL/TP satisfies every
// constraint — the caller must then reject the signal rather than persist a
// degenerate trade.
func (g *Generator) selectSLTP(ctx context.Context, accountNumber int64, instrument string, direction domain.Direction, entry float64, values []domain.IndicatorValue) (slTPResult, bool, string) {
	sym, err := g.store.GetBrokerSymbol(ctx, instrument)
	if err != nil || sym == nil || !sym.Valid() {
		return slTPResult{}, false, "broker symbol unavailable or invalid"
	}

	class := domain.ClassifyAsset(instrument)
	classCfg, ok := g.sl.AssetClasses[string(class)]
	if !ok {
		return slTPResult{}, false, fmt.Sprintf("no asset-class config for %s", class)
	}

	riskState, err := g.store.GetRiskState(ctx, accountNumber)
	if err != nil {
		log.Error().Err(err).Int64("account_number", accountNumber).Msg("sltp: risk state lookup failed, using static asset-class config")
		riskState = &domain.AccountRiskState{RiskRewardMultiplier: 1.0}
	}
	maxLossCeiling := classCfg.MaxLossCurrency
	if riskState.SLCeilingCurrency > 0 {
		maxLossCeiling = riskState.SLCeilingCurrency
	}

	atr := atrValue(values)
	if atr <= 0 {
		atr = entry * classCfg.FallbackATRPct / 100
	}
	if atr <= 0 {
		return slTPResult{}, false, "unable to derive ATR or fallback distance"
	}

	slDist := atr * classCfg.ATRSLMultiplier
	tpMultiplier := classCfg.ATRTPMultiplier
	if riskState.RiskRewardMultiplier > 0 {
		tpMultiplier *= riskState.RiskRewardMultiplier
	}
	tpDist := atr * tpMultiplier

	minDist := float64(sym.StopsLevel) * sym.Point
	if slDist < minDist {
		slDist = minDist
	}
	minPctDist := entry * classCfg.MinSLPct / 100
	if slDist < minPctDist {
		slDist = minPctDist
	}
	maxPctDist := entry * classCfg.MaxTPPct / 100
	if tpDist > maxPctDist {
		tpDist = maxPctDist
	}

	var sl, tp float64
	if direction == domain.Buy {
		sl = entry - slDist
		tp = entry + tpDist
	} else {
		sl = entry + slDist
		tp = entry - tpDist
	}

	// Enforced per-symbol maximum-loss ceiling tightens SL further when the
	// default minimum-volume exposure would already exceed it. Prefers the
	// dynamic risk manager's recomputed per-account ceiling over the static
	// per-asset-class default once one has been computed.
	if maxLossCeiling > 0 && sym.TickValue > 0 && sym.TickSize > 0 {
		lossPerUnit := (slDist / sym.TickSize) * sym.TickValue * sym.MinVolume
		if lossPerUnit > maxLossCeiling {
			ratio := maxLossCeiling / lossPerUnit
			slDist *= ratio
			if slDist < minDist {
				return slTPResult{}, false, "max-loss ceiling forces SL below broker minimum stop distance"
			}
			if direction == domain.Buy {
				sl = entry - slDist
			} else {
				sl = entry + slDist
			}
		}
	}

	sig := domain.TradingSignal{Direction: direction, SuggestedEntry: entry, SuggestedSL: sl, SuggestedTP: tp}
	rr := sig.RiskReward()
	if rr < g.cfg.MinRiskReward {
		return slTPResult{}, false, fmt.Sprintf("risk:reward %.2f below floor %.2f", rr, g.cfg.MinRiskReward)
	}
	if g.cfg.MaxRiskReward > 0 && rr > g.cfg.MaxRiskReward {
		return slTPResult{}, false, fmt.Sprintf("risk:reward %.2f exceeds degenerate-trade cap %.2f", rr, g.cfg.MaxRiskReward)
	}

	return slTPResult{sl: sl, tp: tp}, true, ""
}
