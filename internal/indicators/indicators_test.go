package indicators

import (
	"testing"

	"github.com/MikeHotel0815/ngTradingBot-sub001/config"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/domain"
)

func uptrend(n int, start, step float64) []Candle {
	out := make([]Candle, n)
	price := start
	for i := 0; i < n; i++ {
		out[i] = Candle{Open: price, High: price + step, Low: price - step/2, Close: price + step, Volume: 100 + float64(i)}
		price += step
	}
	return out
}

func flat(n int, price float64) []Candle {
	out := make([]Candle, n)
	for i := 0; i < n; i++ {
		out[i] = Candle{Open: price, High: price + 0.1, Low: price - 0.1, Close: price, Volume: 100}
	}
	return out
}

func TestSMAShortWindowReturnsZero(t *testing.T) {
	c := uptrend(5, 1.0, 0.01)
	if v := SMA(c, 10); v != 0 {
		t.Errorf("expected 0 for insufficient window, got %v", v)
	}
}

func TestSMATracksFlatSeries(t *testing.T) {
	c := flat(20, 1.1000)
	if v := SMA(c, 10); v < 1.0999 || v > 1.1001 {
		t.Errorf("expected SMA ~1.1000, got %v", v)
	}
}

func TestEMAFollowsUptrend(t *testing.T) {
	// A linear trend gives an SMA-seeded EMA the same lag as the SMA, so the
	// series ends with a steeper leg for the EMA to pull ahead on.
	c := uptrend(50, 1.0, 0.001)
	c = append(c, uptrend(5, c[len(c)-1].Close, 0.01)...)
	sma := SMA(c, 20)
	ema := EMA(c, 20)
	if ema <= sma {
		t.Errorf("EMA should weight recent uptrend above SMA: ema=%v sma=%v", ema, sma)
	}
}

func TestRSIBoundsAndDirection(t *testing.T) {
	up := RSI(uptrend(30, 1.0, 0.002), 14)
	if up <= 50 || up > 100 {
		t.Errorf("RSI of a clean uptrend should be strongly above 50, got %v", up)
	}

	down := make([]Candle, 30)
	price := 2.0
	for i := range down {
		down[i] = Candle{Open: price, High: price, Low: price - 0.002, Close: price - 0.002, Volume: 100}
		price -= 0.002
	}
	dv := RSI(down, 14)
	if dv >= 50 {
		t.Errorf("RSI of a clean downtrend should be below 50, got %v", dv)
	}
}

func TestMACDHistogramSignOnTrend(t *testing.T) {
	// On a linear trend the MACD line is constant and the histogram is zero,
	// so the trend steepens at the end.
	c := uptrend(60, 1.0, 0.002)
	c = append(c, uptrend(10, c[len(c)-1].Close, 0.01)...)
	m := MACD(c, 12, 26, 9)
	if m.Histogram <= 0 {
		t.Errorf("expected positive MACD histogram in sustained uptrend, got %v", m.Histogram)
	}
}

func TestBollingerOrdering(t *testing.T) {
	c := flat(30, 1.2000)
	b := Bollinger(c, 20, 2)
	if !(b.Lower < b.Middle && b.Middle < b.Upper || (b.Lower == b.Middle && b.Middle == b.Upper)) {
		t.Errorf("bollinger bands out of order: lower=%v middle=%v upper=%v", b.Lower, b.Middle, b.Upper)
	}
}

func TestATRNonNegative(t *testing.T) {
	c := uptrend(30, 1.0, 0.01)
	if v := ATR(c, 14); v < 0 {
		t.Errorf("ATR must never be negative, got %v", v)
	}
}

func TestADXRangeAndDirectionalBias(t *testing.T) {
	c := uptrend(60, 1.0, 0.01)
	a := ADX(c, 14)
	if a.ADX < 0 || a.ADX > 100 {
		t.Errorf("ADX out of [0,100]: %v", a.ADX)
	}
	if a.PlusDI <= a.MinusDI {
		t.Errorf("expected +DI to dominate in a clean uptrend: +DI=%v -DI=%v", a.PlusDI, a.MinusDI)
	}
}

func TestClassifyRegimeThresholds(t *testing.T) {
	cfg := config.IndicatorConfig{ADXTrending: 25, ADXRanging: 18, ADXTooWeak: 12, VolumeSpikeRatio: 1.5}

	trending := ClassifyRegime(ADXResult{ADX: 30, PlusDI: 25, MinusDI: 10}, cfg)
	if trending.State != domain.RegimeTrending || trending.Direction != "bullish" {
		t.Errorf("expected TRENDING/bullish, got %v/%v", trending.State, trending.Direction)
	}

	tooWeak := ClassifyRegime(ADXResult{ADX: 8, PlusDI: 20, MinusDI: 19}, cfg)
	if tooWeak.State != domain.RegimeTooWeak || tooWeak.Direction != "neutral" {
		t.Errorf("expected TOO_WEAK/neutral, got %v/%v", tooWeak.State, tooWeak.Direction)
	}

	ranging := ClassifyRegime(ADXResult{ADX: 15, PlusDI: 10, MinusDI: 18}, cfg)
	if ranging.State != domain.RegimeRanging || ranging.Direction != "bearish" {
		t.Errorf("expected RANGING/bearish, got %v/%v", ranging.State, ranging.Direction)
	}
}

func TestFilterByRegimeDropsOffFamily(t *testing.T) {
	values := []domain.IndicatorValue{{Name: "macd_cross"}, {Name: "rsi14_signal"}}

	trendOnly := FilterByRegime(values, domain.Regime{State: domain.RegimeTrending})
	if len(trendOnly) != 1 || trendOnly[0].Name != "macd_cross" {
		t.Errorf("expected only trend-following indicator kept, got %v", trendOnly)
	}

	none := FilterByRegime(values, domain.Regime{State: domain.RegimeTooWeak})
	if len(none) != 0 {
		t.Errorf("expected no indicators kept in TOO_WEAK regime, got %v", none)
	}
}

func TestHeikenAshiVolumeConfirmation(t *testing.T) {
	c := uptrend(40, 1.0, 0.005)
	for i := 30; i < 40; i++ {
		c[i].Volume *= 3
	}
	ha := HeikenAshi(c)
	if !ha.TrendBullish {
		t.Errorf("expected bullish Heiken-Ashi trend on a sustained uptrend")
	}
	if !ha.VolumeConfirmed {
		t.Errorf("expected volume confirmation with a late volume spike")
	}
}

func TestParabolicSARFlipsWithTrend(t *testing.T) {
	c := uptrend(40, 1.0, 0.01)
	sar := ParabolicSAR(c)
	if !sar.Bullish {
		t.Errorf("expected bullish SAR on sustained uptrend")
	}
	if sar.Value >= c[len(c)-1].Close {
		t.Errorf("bullish SAR should sit below price, got sar=%v close=%v", sar.Value, c[len(c)-1].Close)
	}
}
