package indicators

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/MikeHotel0815/ngTradingBot-sub001/config"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/cache"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/domain"
)

// toCandles adapts a domain.OHLCData window to the Candle shape the pure
// calculators operate on.
func toCandles(bars []domain.OHLCData) []Candle {
	out := make([]Candle, len(bars))
	for i, b := range bars {
		out[i] = Candle{Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume}
	}
	return out
}

// Validate asserts the OHLC window invariants of spec.md §4.3 before any
// computation runs: no NaN/Inf, ordering, no zero prices, no gaps.
func Validate(bars []domain.OHLCData) error {
	if len(bars) == 0 {
		return fmt.Errorf("empty ohlc window")
	}
	for i, b := range bars {
		if !b.Valid() {
			return fmt.Errorf("ohlc invariant violated at bar %d (%s)", i, b.OpenTime)
		}
		for _, v := range []float64{b.Open, b.High, b.Low, b.Close} {
			if isNaNOrInf(v) {
				return fmt.Errorf("non-finite price at bar %d (%s)", i, b.OpenTime)
			}
		}
	}
	return nil
}

func isNaNOrInf(f float64) bool {
	return f != f || f > 1e18 || f < -1e18
}

// Bundle is every computed indicator plus the shared calculated-at stamp
// spec.md §4.3 requires ("a synchronized calculation entry point ... stamps
// all of them with one calculated_at timestamp").
type Bundle struct {
	Values       []domain.IndicatorValue
	Regime       domain.Regime
	CalculatedAt time.Time
}

// Engine computes the indicator bundle for (instrument, timeframe),
// memoizing it in the cache for config.IndicatorConfig.CacheTTL. The whole
// bundle is stored under one key per (instrument, timeframe); individual
// indicators have no keys of their own.
type Engine struct {
	store  ohlcSource
	cache  *cache.CacheService
	config config.IndicatorConfig
}

type ohlcSource interface {
	GetOHLCWindow(ctx context.Context, instrument string, tf domain.Timeframe, limit int) ([]domain.OHLCData, error)
}

// NewEngine builds an indicator engine. cache may be nil; every Compute call
// then recomputes.
func NewEngine(store ohlcSource, c *cache.CacheService, cfg config.IndicatorConfig) *Engine {
	return &Engine{store: store, cache: c, config: cfg}
}

// Compute runs the full enabled-indicator roster against the latest window
// for (instrument, timeframe). Every result is stamped with the same
// CalculatedAt so downstream consumers never mix indicator freshness. On a
// validation failure it returns an empty bundle and the error, so the caller
// can record the reason in the decision log per spec.md §4.3.
func (e *Engine) Compute(ctx context.Context, instrument string, tf domain.Timeframe) (Bundle, error) {
	key := fmt.Sprintf(cache.PrefixIndicatorSnap, instrument, string(tf))
	if e.cache != nil {
		var cached Bundle
		if err := e.cache.GetJSON(ctx, key, &cached); err == nil && len(cached.Values) > 0 {
			return cached, nil
		}
	}
	bars, err := e.store.GetOHLCWindow(ctx, instrument, tf, 260)
	if err != nil {
		return Bundle{}, fmt.Errorf("load ohlc window: %w", err)
	}
	if err := Validate(bars); err != nil {
		return Bundle{}, err
	}
	candles := toCandles(bars)
	now := time.Now().UTC()

	var vals []domain.IndicatorValue
	add := func(name string, v float64) {
		vals = append(vals, domain.IndicatorValue{Name: name, Value: v, CalculatedAt: now})
	}
	addSignal := func(name string, v float64, signal, strength string) {
		vals = append(vals, domain.IndicatorValue{Name: name, Value: v, HasSignal: true, Signal: signal, Strength: strength, CalculatedAt: now})
	}

	add("rsi14", RSI(candles, 14))
	rsi := vals[len(vals)-1].Value
	switch {
	case rsi < 30:
		addSignal("rsi14_signal", rsi, "BUY", strengthFor(30-rsi, 10, 20))
	case rsi > 70:
		addSignal("rsi14_signal", rsi, "SELL", strengthFor(rsi-70, 10, 20))
	}

	macd := MACD(candles, 12, 26, 9)
	add("macd", macd.MACD)
	add("macd_signal", macd.Signal)
	add("macd_histogram", macd.Histogram)
	if macd.Histogram > 0 {
		addSignal("macd_cross", macd.Histogram, "BUY", strengthFor(macd.Histogram, 0.0005, 0.002))
	} else if macd.Histogram < 0 {
		addSignal("macd_cross", macd.Histogram, "SELL", strengthFor(-macd.Histogram, 0.0005, 0.002))
	}

	for _, p := range []int{8, 9, 21, 30, 50, 200} {
		add(fmt.Sprintf("ema%d", p), EMA(candles, p))
	}

	boll := Bollinger(candles, 20, 2)
	add("bollinger_upper", boll.Upper)
	add("bollinger_middle", boll.Middle)
	add("bollinger_lower", boll.Lower)
	if last := candles[len(candles)-1].Close; boll.Upper > 0 {
		if last <= boll.Lower {
			addSignal("bollinger_signal", last, "BUY", "medium")
		} else if last >= boll.Upper {
			addSignal("bollinger_signal", last, "SELL", "medium")
		}
	}

	stoch := Stochastic(candles, 5, 3, 3)
	add("stochastic_k", stoch.K)
	add("stochastic_d", stoch.D)
	if stoch.K < 20 && stoch.K > stoch.D {
		addSignal("stochastic_signal", stoch.K, "BUY", "medium")
	} else if stoch.K > 80 && stoch.K < stoch.D {
		addSignal("stochastic_signal", stoch.K, "SELL", "medium")
	}

	atr := ATR(candles, 14)
	add("atr14", atr)

	adx := ADX(candles, 14)
	add("adx14", adx.ADX)
	add("plus_di", adx.PlusDI)
	add("minus_di", adx.MinusDI)

	ichi := Ichimoku(candles)
	add("ichimoku_tenkan", ichi.Tenkan)
	add("ichimoku_kijun", ichi.Kijun)
	add("ichimoku_senkou_a", ichi.SenkouA)
	add("ichimoku_senkou_b", ichi.SenkouB)
	if last := candles[len(candles)-1].Close; last > ichi.SenkouA && last > ichi.SenkouB {
		addSignal("ichimoku_signal", last, "BUY", "medium")
	} else if last < ichi.SenkouA && last < ichi.SenkouB {
		addSignal("ichimoku_signal", last, "SELL", "medium")
	}

	fib := Fibonacci(candles)
	add("fib_618", fib.Level618)
	add("fib_500", fib.Level500)
	add("fib_382", fib.Level382)

	piv := Pivots(candles)
	add("pivot", piv.Pivot)
	add("pivot_r1", piv.R1)
	add("pivot_s1", piv.S1)

	sar := ParabolicSAR(candles)
	if sar.Bullish {
		addSignal("parabolic_sar", sar.Value, "BUY", "medium")
	} else {
		addSignal("parabolic_sar", sar.Value, "SELL", "medium")
	}

	cci := CCI(candles, 20)
	add("cci20", cci)
	if cci > 100 {
		addSignal("cci_signal", cci, "SELL", strengthFor(cci-100, 50, 150))
	} else if cci < -100 {
		addSignal("cci_signal", cci, "BUY", strengthFor(-100-cci, 50, 150))
	}

	wr := WilliamsR(candles, 14)
	add("williams_r14", wr)
	if wr < -80 {
		addSignal("williams_r_signal", wr, "BUY", "medium")
	} else if wr > -20 {
		addSignal("williams_r_signal", wr, "SELL", "medium")
	}

	add("obv", OBV(candles))
	add("vwap", VWAP(candles))

	st := SuperTrend(candles, 10, 3)
	if st.Bullish {
		addSignal("supertrend", st.Value, "BUY", "strong")
	} else {
		addSignal("supertrend", st.Value, "SELL", "strong")
	}

	ha := HeikenAshi(candles)
	if ha.VolumeConfirmed {
		strength := "medium"
		if ha.VolumeConfirmed {
			strength = "strong"
		}
		if ha.TrendBullish {
			addSignal("heiken_ashi", ha.Close, "BUY", strength)
		} else {
			addSignal("heiken_ashi", ha.Close, "SELL", strength)
		}
	}

	regime := ClassifyRegime(adx, e.config)

	bundle := Bundle{Values: vals, Regime: regime, CalculatedAt: now}
	if e.cache != nil {
		if err := e.cache.SetJSON(ctx, key, bundle, e.config.CacheTTL); err != nil {
			log.Debug().Err(err).Str("instrument", instrument).Msg("indicator cache write failed, proceeding uncached")
		}
	}
	return bundle, nil
}

// strengthFor maps a magnitude into spec.md's four-level strength bucket
// given a (weak, strong) pair of thresholds.
func strengthFor(magnitude, weakAt, strongAt float64) string {
	switch {
	case magnitude >= strongAt*1.5:
		return "very_strong"
	case magnitude >= strongAt:
		return "strong"
	case magnitude >= weakAt:
		return "medium"
	default:
		return "weak"
	}
}
