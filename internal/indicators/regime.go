package indicators

import (
	"github.com/MikeHotel0815/ngTradingBot-sub001/config"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/domain"
)

// ClassifyRegime turns an ADX reading into the TRENDING/RANGING/TOO_WEAK
// state spec.md §4.3 uses to gate which downstream indicators are trusted:
// trend-following indicators (MACD, EMA crosses, SuperTrend, Parabolic SAR)
// in a trending regime, mean-reversion indicators (RSI, Stochastic,
// Bollinger, CCI, Williams %R) in a ranging one, and neither carries weight
// when the market is too weak to trade.
func ClassifyRegime(adx ADXResult, cfg config.IndicatorConfig) domain.Regime {
	direction := "neutral"
	switch {
	case adx.PlusDI > adx.MinusDI:
		direction = "bullish"
	case adx.MinusDI > adx.PlusDI:
		direction = "bearish"
	}

	state := domain.RegimeRanging
	switch {
	case adx.ADX < cfg.ADXTooWeak:
		state = domain.RegimeTooWeak
		direction = "neutral"
	case adx.ADX > cfg.ADXTrending:
		state = domain.RegimeTrending
	case adx.ADX <= cfg.ADXRanging:
		state = domain.RegimeRanging
	default:
		// Between the ranging ceiling and the trending floor: still ranging,
		// but callers should treat direction conviction as weak.
		state = domain.RegimeRanging
	}

	return domain.Regime{State: state, Direction: direction, Strength: adx.ADX}
}

// TrendFollowing reports whether an indicator name belongs to the
// trend-following family that carries weight in a TRENDING regime.
func TrendFollowing(name string) bool {
	switch name {
	case "macd", "macd_cross", "ema8", "ema9", "ema21", "ema30", "ema50", "ema200",
		"supertrend", "parabolic_sar", "ichimoku_signal", "heiken_ashi", "adx14":
		return true
	default:
		return false
	}
}

// MeanReversion reports whether an indicator name belongs to the
// mean-reversion family that carries weight in a RANGING regime.
func MeanReversion(name string) bool {
	switch name {
	case "rsi14", "rsi14_signal", "stochastic_k", "stochastic_d", "stochastic_signal",
		"bollinger_signal", "cci20", "cci_signal", "williams_r14", "williams_r_signal":
		return true
	default:
		return false
	}
}

// FilterByRegime returns only the indicator values relevant to the regime's
// state; in TOO_WEAK neither family is trusted, and an empty slice is
// returned so callers treat the signal as unsupported rather than weak.
func FilterByRegime(values []domain.IndicatorValue, regime domain.Regime) []domain.IndicatorValue {
	if regime.State == domain.RegimeTooWeak {
		return nil
	}
	keep := TrendFollowing
	if regime.State == domain.RegimeRanging {
		keep = MeanReversion
	}
	out := make([]domain.IndicatorValue, 0, len(values))
	for _, v := range values {
		if keep(v.Name) {
			out = append(out, v)
		}
	}
	return out
}
