// Package indicators computes the technical-indicator bundle of spec.md §4.3
// as a pure function of an OHLC window. Every exported calculator here takes
// a slice of this package's Candle ordered oldest-first and returns either a
// bare numeric value or a compound result struct, following the
// teacher's pure-function-over-a-slice style from internal/strategy's
// original (Binance-Kline-based) indicator set, generalized to the Candle
// shape and extended with the rest of spec.md's indicator roster.
package indicators

import "math"

func closes(c []Candle) []float64 {
	out := make([]float64, len(c))
	for i, v := range c {
		out[i] = v.Close
	}
	return out
}

// Candle is the minimal OHLCV shape every calculator needs; internal/domain's
// OHLCData satisfies it structurally via the adapter in engine.go.
type Candle struct {
	Open, High, Low, Close, Volume float64
}

// SMA computes the simple moving average of the last `period` closes.
func SMA(c []Candle, period int) float64 {
	if len(c) < period || period <= 0 {
		return 0
	}
	sum := 0.0
	for _, v := range c[len(c)-period:] {
		sum += v.Close
	}
	return sum / float64(period)
}

// EMA computes the exponential moving average over the full window, seeded
// by the SMA of the first `period` candles.
func EMA(c []Candle, period int) float64 {
	if len(c) < period || period <= 0 {
		return 0
	}
	mult := 2.0 / float64(period+1)
	ema := SMA(c[:period], period)
	for i := period; i < len(c); i++ {
		ema = c[i].Close*mult + ema*(1-mult)
	}
	return ema
}

// emaSeries returns the EMA value at every index >= period-1, needed by
// MACD's signal line (an EMA of the MACD line itself, not an approximation).
func emaSeries(values []float64, period int) []float64 {
	if len(values) < period || period <= 0 {
		return nil
	}
	out := make([]float64, 0, len(values)-period+1)
	sum := 0.0
	for _, v := range values[:period] {
		sum += v
	}
	ema := sum / float64(period)
	out = append(out, ema)
	mult := 2.0 / float64(period+1)
	for i := period; i < len(values); i++ {
		ema = values[i]*mult + ema*(1-mult)
		out = append(out, ema)
	}
	return out
}

// RSI computes the Relative Strength Index, Wilder-smoothed over `period`.
func RSI(c []Candle, period int) float64 {
	if len(c) < period+1 {
		return 50
	}
	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		chg := c[i].Close - c[i-1].Close
		if chg > 0 {
			avgGain += chg
		} else {
			avgLoss -= chg
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	for i := period + 1; i < len(c); i++ {
		chg := c[i].Close - c[i-1].Close
		gain, loss := 0.0, 0.0
		if chg > 0 {
			gain = chg
		} else {
			loss = -chg
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// MACDResult holds the MACD line, signal line and histogram.
type MACDResult struct {
	MACD, Signal, Histogram float64
}

// MACD computes the full MACD triple using a real EMA-of-MACD signal line.
func MACD(c []Candle, fast, slow, signal int) MACDResult {
	if len(c) < slow+signal {
		return MACDResult{}
	}
	closesSlice := closes(c)
	fastEMA := emaSeries(closesSlice, fast)
	slowEMA := emaSeries(closesSlice, slow)
	offset := len(fastEMA) - len(slowEMA)
	macdLine := make([]float64, len(slowEMA))
	for i := range slowEMA {
		macdLine[i] = fastEMA[i+offset] - slowEMA[i]
	}
	sigSeries := emaSeries(macdLine, signal)
	if len(sigSeries) == 0 {
		return MACDResult{}
	}
	macd := macdLine[len(macdLine)-1]
	sig := sigSeries[len(sigSeries)-1]
	return MACDResult{MACD: macd, Signal: sig, Histogram: macd - sig}
}

// BollingerResult holds the three Bollinger Band levels.
type BollingerResult struct {
	Upper, Middle, Lower float64
}

// Bollinger computes Bollinger Bands at `period`/`stdDevs`.
func Bollinger(c []Candle, period int, stdDevs float64) BollingerResult {
	mid := SMA(c, period)
	if mid == 0 || len(c) < period {
		return BollingerResult{}
	}
	window := c[len(c)-period:]
	var variance float64
	for _, v := range window {
		d := v.Close - mid
		variance += d * d
	}
	sd := math.Sqrt(variance / float64(period))
	return BollingerResult{Upper: mid + stdDevs*sd, Middle: mid, Lower: mid - stdDevs*sd}
}

// Stochastic computes %K (smoothed by kSmooth) and %D (SMA of %K).
type StochasticResult struct {
	K, D float64
}

func Stochastic(c []Candle, kPeriod, kSmooth, dPeriod int) StochasticResult {
	if len(c) < kPeriod+kSmooth+dPeriod {
		return StochasticResult{K: 50, D: 50}
	}
	rawK := make([]float64, 0, len(c)-kPeriod+1)
	for i := kPeriod - 1; i < len(c); i++ {
		window := c[i-kPeriod+1 : i+1]
		hi, lo := window[0].High, window[0].Low
		for _, w := range window {
			if w.High > hi {
				hi = w.High
			}
			if w.Low < lo {
				lo = w.Low
			}
		}
		if hi == lo {
			rawK = append(rawK, 50)
			continue
		}
		rawK = append(rawK, 100*(c[i].Close-lo)/(hi-lo))
	}
	smoothedK := smoothSeries(rawK, kSmooth)
	if len(smoothedK) < dPeriod {
		return StochasticResult{K: smoothedK[len(smoothedK)-1], D: smoothedK[len(smoothedK)-1]}
	}
	d := average(smoothedK[len(smoothedK)-dPeriod:])
	return StochasticResult{K: smoothedK[len(smoothedK)-1], D: d}
}

func smoothSeries(v []float64, period int) []float64 {
	if period <= 1 || len(v) < period {
		return v
	}
	out := make([]float64, 0, len(v)-period+1)
	for i := period - 1; i < len(v); i++ {
		out = append(out, average(v[i-period+1:i+1]))
	}
	return out
}

func average(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	s := 0.0
	for _, x := range v {
		s += x
	}
	return s / float64(len(v))
}

// trueRange is the classic max(high-low, |high-prevClose|, |low-prevClose|).
func trueRange(curr, prev Candle) float64 {
	tr := curr.High - curr.Low
	if d := math.Abs(curr.High - prev.Close); d > tr {
		tr = d
	}
	if d := math.Abs(curr.Low - prev.Close); d > tr {
		tr = d
	}
	return tr
}

// ATR computes the Average True Range, Wilder-smoothed over `period`.
func ATR(c []Candle, period int) float64 {
	if len(c) < period+1 {
		return 0
	}
	var atr float64
	for i := 1; i <= period; i++ {
		atr += trueRange(c[i], c[i-1])
	}
	atr /= float64(period)
	for i := period + 1; i < len(c); i++ {
		tr := trueRange(c[i], c[i-1])
		atr = (atr*float64(period-1) + tr) / float64(period)
	}
	return atr
}

// ADXResult carries the trend strength index plus its directional movement
// components, used both as a standalone indicator and as the regime
// classifier's primary signal.
type ADXResult struct {
	ADX, PlusDI, MinusDI float64
}

// ADX computes the Average Directional Index over `period`.
func ADX(c []Candle, period int) ADXResult {
	if len(c) < period*2+1 {
		return ADXResult{}
	}
	var trSum, plusDMSum, minusDMSum float64
	for i := 1; i <= period; i++ {
		upMove := c[i].High - c[i-1].High
		downMove := c[i-1].Low - c[i].Low
		plusDM, minusDM := 0.0, 0.0
		if upMove > downMove && upMove > 0 {
			plusDM = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM = downMove
		}
		trSum += trueRange(c[i], c[i-1])
		plusDMSum += plusDM
		minusDMSum += minusDM
	}
	var dxSum float64
	dxCount := 0
	atr, plusDM14, minusDM14 := trSum, plusDMSum, minusDMSum
	for i := period + 1; i < len(c); i++ {
		upMove := c[i].High - c[i-1].High
		downMove := c[i-1].Low - c[i].Low
		plusDM, minusDM := 0.0, 0.0
		if upMove > downMove && upMove > 0 {
			plusDM = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM = downMove
		}
		tr := trueRange(c[i], c[i-1])
		atr = atr - atr/float64(period) + tr
		plusDM14 = plusDM14 - plusDM14/float64(period) + plusDM
		minusDM14 = minusDM14 - minusDM14/float64(period) + minusDM
		if atr == 0 {
			continue
		}
		plusDI := 100 * plusDM14 / atr
		minusDI := 100 * minusDM14 / atr
		if plusDI+minusDI == 0 {
			continue
		}
		dx := 100 * math.Abs(plusDI-minusDI) / (plusDI + minusDI)
		dxSum += dx
		dxCount++
	}
	if dxCount == 0 || atr == 0 {
		return ADXResult{}
	}
	plusDI := 100 * plusDM14 / atr
	minusDI := 100 * minusDM14 / atr
	return ADXResult{ADX: dxSum / float64(dxCount), PlusDI: plusDI, MinusDI: minusDI}
}

// IchimokuResult carries the five Ichimoku Kinko Hyo lines.
type IchimokuResult struct {
	Tenkan, Kijun, SenkouA, SenkouB, Chikou float64
}

func highLowMid(c []Candle, period int) float64 {
	if len(c) < period {
		return 0
	}
	window := c[len(c)-period:]
	hi, lo := window[0].High, window[0].Low
	for _, w := range window {
		if w.High > hi {
			hi = w.High
		}
		if w.Low < lo {
			lo = w.Low
		}
	}
	return (hi + lo) / 2
}

// Ichimoku computes the standard 9/26/52 Ichimoku Cloud.
func Ichimoku(c []Candle) IchimokuResult {
	tenkan := highLowMid(c, 9)
	kijun := highLowMid(c, 26)
	senkouA := (tenkan + kijun) / 2
	senkouB := highLowMid(c, 52)
	chikou := 0.0
	if len(c) > 0 {
		chikou = c[len(c)-1].Close
	}
	return IchimokuResult{Tenkan: tenkan, Kijun: kijun, SenkouA: senkouA, SenkouB: senkouB, Chikou: chikou}
}

// FibonacciLevels holds the standard retracement levels between a swing
// high and swing low over the window.
type FibonacciLevels struct {
	Level0, Level236, Level382, Level500, Level618, Level786, Level1000 float64
}

// Fibonacci computes retracement levels from the window's swing high/low.
func Fibonacci(c []Candle) FibonacciLevels {
	if len(c) == 0 {
		return FibonacciLevels{}
	}
	hi, lo := c[0].High, c[0].Low
	for _, v := range c {
		if v.High > hi {
			hi = v.High
		}
		if v.Low < lo {
			lo = v.Low
		}
	}
	diff := hi - lo
	return FibonacciLevels{
		Level0: hi, Level236: hi - diff*0.236, Level382: hi - diff*0.382,
		Level500: hi - diff*0.5, Level618: hi - diff*0.618, Level786: hi - diff*0.786,
		Level1000: lo,
	}
}

// PivotPoints holds the classic floor-trader pivot and its support/resistance.
type PivotPoints struct {
	Pivot, R1, R2, S1, S2 float64
}

// Pivots computes floor pivots from the prior completed candle.
func Pivots(c []Candle) PivotPoints {
	if len(c) < 2 {
		return PivotPoints{}
	}
	prev := c[len(c)-2]
	p := (prev.High + prev.Low + prev.Close) / 3
	return PivotPoints{
		Pivot: p,
		R1:    2*p - prev.Low, S1: 2*p - prev.High,
		R2: p + (prev.High - prev.Low), S2: p - (prev.High - prev.Low),
	}
}

// ParabolicSAR computes the SAR value and whether it currently trails above
// (bearish) or below (bullish) price, using the standard 0.02/0.2 step.
type SARResult struct {
	Value   float64
	Bullish bool
}

func ParabolicSAR(c []Candle) SARResult {
	if len(c) < 3 {
		return SARResult{}
	}
	const accelStep, accelMax = 0.02, 0.2
	bullish := c[1].Close > c[0].Close
	af := accelStep
	var sar, ep float64
	if bullish {
		sar = c[0].Low
		ep = c[0].High
	} else {
		sar = c[0].High
		ep = c[0].Low
	}
	for i := 1; i < len(c); i++ {
		sar = sar + af*(ep-sar)
		if bullish {
			if c[i].Low < sar {
				bullish = false
				sar = ep
				ep = c[i].Low
				af = accelStep
			} else if c[i].High > ep {
				ep = c[i].High
				af = math.Min(af+accelStep, accelMax)
			}
		} else {
			if c[i].High > sar {
				bullish = true
				sar = ep
				ep = c[i].High
				af = accelStep
			} else if c[i].Low < ep {
				ep = c[i].Low
				af = math.Min(af+accelStep, accelMax)
			}
		}
	}
	return SARResult{Value: sar, Bullish: bullish}
}

// CCI computes the Commodity Channel Index over `period`.
func CCI(c []Candle, period int) float64 {
	if len(c) < period {
		return 0
	}
	window := c[len(c)-period:]
	typical := make([]float64, period)
	for i, w := range window {
		typical[i] = (w.High + w.Low + w.Close) / 3
	}
	meanTP := average(typical)
	var meanDev float64
	for _, tp := range typical {
		meanDev += math.Abs(tp - meanTP)
	}
	meanDev /= float64(period)
	if meanDev == 0 {
		return 0
	}
	lastTP := typical[len(typical)-1]
	return (lastTP - meanTP) / (0.015 * meanDev)
}

// WilliamsR computes Williams %R over `period`.
func WilliamsR(c []Candle, period int) float64 {
	if len(c) < period {
		return -50
	}
	window := c[len(c)-period:]
	hi, lo := window[0].High, window[0].Low
	for _, w := range window {
		if w.High > hi {
			hi = w.High
		}
		if w.Low < lo {
			lo = w.Low
		}
	}
	if hi == lo {
		return -50
	}
	last := c[len(c)-1].Close
	return -100 * (hi - last) / (hi - lo)
}

// OBV computes On-Balance Volume across the full window.
func OBV(c []Candle) float64 {
	if len(c) == 0 {
		return 0
	}
	obv := 0.0
	for i := 1; i < len(c); i++ {
		switch {
		case c[i].Close > c[i-1].Close:
			obv += c[i].Volume
		case c[i].Close < c[i-1].Close:
			obv -= c[i].Volume
		}
	}
	return obv
}

// VWAP computes the volume-weighted average price across the window (reset
// at the start of the supplied slice, matching an intraday VWAP bounded by
// the caller's session window).
func VWAP(c []Candle) float64 {
	var pv, v float64
	for _, w := range c {
		typical := (w.High + w.Low + w.Close) / 3
		pv += typical * w.Volume
		v += w.Volume
	}
	if v == 0 {
		return 0
	}
	return pv / v
}

// SuperTrendResult carries the SuperTrend line and its current bias.
type SuperTrendResult struct {
	Value   float64
	Bullish bool
}

// SuperTrend computes the SuperTrend indicator at `period`/`multiplier`.
func SuperTrend(c []Candle, period int, multiplier float64) SuperTrendResult {
	atr := ATR(c, period)
	if len(c) == 0 || atr == 0 {
		return SuperTrendResult{}
	}
	last := c[len(c)-1]
	hl2 := (last.High + last.Low) / 2
	upperBand := hl2 + multiplier*atr
	lowerBand := hl2 - multiplier*atr
	bullish := last.Close > (upperBand+lowerBand)/2
	if bullish {
		return SuperTrendResult{Value: lowerBand, Bullish: true}
	}
	return SuperTrendResult{Value: upperBand, Bullish: false}
}

// HeikenAshiResult carries the smoothed candle plus the volume-confirmed
// trend signal spec.md §4.3 asks for: body/wick geometry blended with the
// 8/30 EMA cross and volume vs. its 20-period mean.
type HeikenAshiResult struct {
	Open, High, Low, Close float64
	TrendBullish           bool
	VolumeConfirmed        bool
}

// HeikenAshi computes the smoothed Heiken-Ashi candle for the latest bar and
// its trend-confirmation verdict.
func HeikenAshi(c []Candle) HeikenAshiResult {
	if len(c) < 31 {
		return HeikenAshiResult{}
	}
	haClose := 0.0
	haOpen := (c[len(c)-2].Open + c[len(c)-2].Close) / 2
	var prevHAClose, prevHAOpen float64
	for i := 1; i < len(c); i++ {
		cur := c[i]
		prev := c[i-1]
		if i == 1 {
			prevHAOpen = (prev.Open + prev.Close) / 2
			prevHAClose = (prev.Open + prev.High + prev.Low + prev.Close) / 4
		}
		haClose = (cur.Open + cur.High + cur.Low + cur.Close) / 4
		haOpen = (prevHAOpen + prevHAClose) / 2
		prevHAOpen, prevHAClose = haOpen, haClose
	}
	last := c[len(c)-1]
	haHigh := math.Max(last.High, math.Max(haOpen, haClose))
	haLow := math.Min(last.Low, math.Min(haOpen, haClose))

	ema8 := EMA(c, 8)
	ema30 := EMA(c, 30)
	volMean := SMA(volumeAsClose(c[len(c)-20:]), 20)
	volConfirmed := last.Volume > volMean*1.0

	bullish := haClose > haOpen && ema8 > ema30
	return HeikenAshiResult{Open: haOpen, High: haHigh, Low: haLow, Close: haClose, TrendBullish: bullish, VolumeConfirmed: volConfirmed}
}

// volumeAsClose adapts a candle slice so SMA (which reads Close) can average
// Volume instead, avoiding a second moving-average implementation.
func volumeAsClose(c []Candle) []Candle {
	out := make([]Candle, len(c))
	for i, v := range c {
		out[i] = Candle{Close: v.Volume}
	}
	return out
}
