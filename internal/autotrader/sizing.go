package autotrader

import (
	"math"

	"github.com/rs/zerolog/log"

	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/domain"
)

// sizePosition implements spec.md §4.6 step 10's volume formula:
//
//	lot = (equity * risk_per_trade * risk_multiplier * confidence_factor) / (|entry-sl| * point_value)
//
// clamped to the broker symbol's [MinVolume, MaxVolume] and rounded down to
// its StepVolume, then clamped a second time to the account-wide safety
// rail [config.AutoTraderConfig.MinVolume, MaxVolumeSafetyCap] so a
// misconfigured or extreme per-symbol limit can never size past it.
func (e *Engine) sizePosition(acc *domain.Account, symCfg *domain.SymbolTradingConfig, sym *domain.BrokerSymbol, sig *domain.TradingSignal, entry, sl float64) float64 {
	profile, ok := e.cfg.RiskProfiles[string(acc.RiskProfile)]
	if !ok {
		profile.BaseRiskPct = e.cfg.DefaultRiskPerTrade * 100
	}
	riskPerTrade := profile.BaseRiskPct / 100
	riskMultiplier := symCfg.RiskMultiplier
	if riskMultiplier <= 0 {
		riskMultiplier = 1.0
	}
	confidenceFactor := sig.Confidence / 100
	pointValue := 0.0
	if sym.TickSize > 0 {
		pointValue = sym.TickValue / sym.TickSize
	}

	slDist := math.Abs(entry - sl)
	if acc.Equity <= 0 || riskPerTrade <= 0 || confidenceFactor <= 0 || pointValue <= 0 || slDist <= 0 {
		log.Warn().Str("instrument", sym.Instrument).Msg("autotrader: position sizing inputs invalid, falling back to minimum volume")
		return e.clampVolume(sym, e.cfg.MinVolume)
	}

	lot := (acc.Equity * riskPerTrade * riskMultiplier * confidenceFactor) / (slDist * pointValue)
	return e.clampVolume(sym, lot)
}

func (e *Engine) clampVolume(sym *domain.BrokerSymbol, lot float64) float64 {
	if sym.MinVolume > 0 && lot < sym.MinVolume {
		lot = sym.MinVolume
	}
	if sym.MaxVolume > 0 && lot > sym.MaxVolume {
		lot = sym.MaxVolume
	}
	if sym.StepVolume > 0 {
		steps := math.Floor(lot / sym.StepVolume)
		lot = steps * sym.StepVolume
	}
	if lot < e.cfg.MinVolume {
		lot = e.cfg.MinVolume
	}
	if e.cfg.MaxVolumeSafetyCap > 0 && lot > e.cfg.MaxVolumeSafetyCap {
		lot = e.cfg.MaxVolumeSafetyCap
	}
	return lot
}
