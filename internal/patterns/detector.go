// Package patterns recognizes candlestick patterns on an OHLC window and
// scores each hit with a reliability in [0,100], per spec.md §4.4: volume
// and trend-context bonuses are applied before patterns belonging to the
// same directional cluster are deduplicated down to their strongest member,
// and anything left under a reliability floor of 60 is dropped.
package patterns

import (
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/domain"
)

// Name constants for every pattern this package can emit.
const (
	MorningStar      = "morning_star"
	EveningStar      = "evening_star"
	ShootingStar     = "shooting_star"
	Hammer           = "hammer"
	HangingMan       = "hanging_man"
	BullishEngulfing = "bullish_engulfing"
	BearishEngulfing = "bearish_engulfing"
	Doji             = "doji"
	DragonflyDoji    = "dragonfly_doji"
	GravestoneDoji   = "gravestone_doji"
	BullishHarami    = "bullish_harami"
	BearishHarami    = "bearish_harami"

	BullishFlag        = "bullish_flag"
	BearishFlag        = "bearish_flag"
	AscendingTriangle  = "ascending_triangle"
	DescendingTriangle = "descending_triangle"
)

const (
	directionBullish  = "bullish"
	directionBearish  = "bearish"
	directionIndecision = "indecision"
)

// reliabilityFloor is the minimum post-bonus score a pattern keeps, per
// spec.md §4.4.
const reliabilityFloor = 60.0

// hit is an internal, pre-clustering detection carrying enough context for
// the volume/trend bonus pass and the cluster dedup pass.
type hit struct {
	name        string
	direction   string
	clusterKey  string
	base        float64 // 0-100 before bonuses
	candleIndex int
}

// clusterKeyFor groups pattern names the way spec.md §4.4 describes:
// "bullish-continuation, bearish-reversal, …". Patterns sharing a key are
// deduplicated to their single highest-reliability member.
func clusterKeyFor(name, direction string) string {
	switch name {
	case BullishFlag, AscendingTriangle:
		return "bullish-continuation"
	case BearishFlag, DescendingTriangle:
		return "bearish-continuation"
	case Doji:
		return "indecision"
	default:
		if direction == directionBullish {
			return "bullish-reversal"
		}
		return "bearish-reversal"
	}
}

// Detector scans an OHLC window for the supported pattern set.
type Detector struct {
	minBodySize    float64 // minimum candle body size, percent of price
	volumeLookback int     // candles averaged for the volume-confirmation bonus
	trendLookback  int     // candles used for the trend-context bonus
}

// NewDetector creates a pattern detector with the teacher's historical
// defaults (20-bar volume window, 14-bar trend window).
func NewDetector(minBodySize float64) *Detector {
	if minBodySize <= 0 {
		minBodySize = 0.5
	}
	return &Detector{minBodySize: minBodySize, volumeLookback: 20, trendLookback: 14}
}

// NewDetectorWithConfig creates a detector with explicit lookback windows.
func NewDetectorWithConfig(minBodySize float64, volumeLookback, trendLookback int) *Detector {
	if minBodySize <= 0 {
		minBodySize = 0.5
	}
	if volumeLookback <= 0 {
		volumeLookback = 20
	}
	if trendLookback <= 0 {
		trendLookback = 14
	}
	return &Detector{minBodySize: minBodySize, volumeLookback: volumeLookback, trendLookback: trendLookback}
}

// Detect scans candles oldest-first and returns the clustered, reliability-
// scored pattern list for the most recent bar in the window.
func (d *Detector) Detect(candles []domain.OHLCData) []domain.PatternDetection {
	if len(candles) == 0 {
		return nil
	}

	var hits []hit
	hits = append(hits, d.detectThreeCandleReversals(candles)...)
	hits = append(hits, d.detectSingleCandleReversals(candles)...)
	hits = append(hits, d.detectTwoCandleReversals(candles)...)
	hits = append(hits, d.detectDoji(candles)...)
	hits = append(hits, d.detectContinuations(candles)...)

	lastIdx := len(candles) - 1
	scored := make([]hit, 0, len(hits))
	for _, h := range hits {
		// Only bonus-score and surface patterns anchored on the latest bar;
		// hits anchored on older bars are dropped.
		if h.candleIndex != lastIdx {
			continue
		}
		h.base = d.applyVolumeBonus(candles, h)
		h.base = d.applyTrendBonus(candles, h)
		scored = append(scored, h)
	}

	return clusterAndFilter(scored)
}

// applyVolumeBonus adds 10 reliability points when current volume exceeds
// 1.5x the trailing 20-bar mean, per spec.md §4.4.
func (d *Detector) applyVolumeBonus(candles []domain.OHLCData, h hit) float64 {
	idx := h.candleIndex
	if idx < d.volumeLookback {
		return h.base
	}
	var sum float64
	for i := idx - d.volumeLookback; i < idx; i++ {
		sum += candles[i].Volume
	}
	avg := sum / float64(d.volumeLookback)
	if avg <= 0 {
		return h.base
	}
	if candles[idx].Volume > avg*1.5 {
		return h.base + 10
	}
	return h.base
}

// applyTrendBonus rewards reversal patterns that appear against the
// prevailing trend (the setup they're meant to reverse) with up to 10
// points, scaled by how pronounced that prior trend was.
func (d *Detector) applyTrendBonus(candles []domain.OHLCData, h hit) float64 {
	idx := h.candleIndex
	if idx < d.trendLookback || h.clusterKey == "indecision" {
		return h.base
	}

	start := idx - d.trendLookback
	var sumX, sumY, sumXY, sumX2 float64
	n := float64(d.trendLookback)
	for i := start; i < idx; i++ {
		x := float64(i - start)
		y := candles[i].Close
		sumX += x
		sumY += y
		sumXY += x * y
		sumX2 += x * x
	}
	denom := n*sumX2 - sumX*sumX
	if denom == 0 {
		return h.base
	}
	slope := (n*sumXY - sumX*sumY) / denom
	avgPrice := sumY / n
	if avgPrice == 0 {
		return h.base
	}
	normalizedSlope := (slope / avgPrice) * 100 // percent per candle

	isContinuation := h.clusterKey == "bullish-continuation" || h.clusterKey == "bearish-continuation"
	aligned := false
	switch {
	case h.direction == directionBullish && !isContinuation:
		aligned = normalizedSlope < -0.1 // reversal needs a prior downtrend
	case h.direction == directionBearish && !isContinuation:
		aligned = normalizedSlope > 0.1 // reversal needs a prior uptrend
	case h.direction == directionBullish && isContinuation:
		aligned = normalizedSlope > 0.1 // continuation needs the trend it extends
	case h.direction == directionBearish && isContinuation:
		aligned = normalizedSlope < -0.1
	}
	if !aligned {
		return h.base
	}

	strength := abs(normalizedSlope) / 0.5
	if strength > 1 {
		strength = 1
	}
	return h.base + 10*strength
}

// clusterAndFilter keeps the highest-reliability member of each cluster and
// drops anything under the reliability floor.
func clusterAndFilter(hits []hit) []domain.PatternDetection {
	best := make(map[string]hit)
	for _, h := range hits {
		if h.base > 100 {
			h.base = 100
		}
		if h.base < 0 {
			h.base = 0
		}
		existing, ok := best[h.clusterKey]
		if !ok || h.base > existing.base {
			best[h.clusterKey] = h
		}
	}

	out := make([]domain.PatternDetection, 0, len(best))
	for _, h := range best {
		if h.base < reliabilityFloor {
			continue
		}
		out = append(out, domain.PatternDetection{
			Name:        h.name,
			Direction:   h.direction,
			Reliability: h.base,
		})
	}
	return out
}

// detectThreeCandleReversals scans for Morning Star / Evening Star.
func (d *Detector) detectThreeCandleReversals(candles []domain.OHLCData) []hit {
	var out []hit
	for i := 2; i < len(candles); i++ {
		c1, c2, c3 := candles[i-2], candles[i-1], candles[i]

		if isMorningStar(c1, c2, c3) {
			out = append(out, hit{
				name: MorningStar, direction: directionBullish,
				clusterKey:  clusterKeyFor(MorningStar, directionBullish),
				base:        threeCandleBase(c1, c3, 65),
				candleIndex: i,
			})
		}
		if isEveningStar(c1, c2, c3) {
			out = append(out, hit{
				name: EveningStar, direction: directionBearish,
				clusterKey:  clusterKeyFor(EveningStar, directionBearish),
				base:        threeCandleBase(c1, c3, 65),
				candleIndex: i,
			})
		}
	}
	return out
}

// threeCandleBase scores a three-candle reversal a bit higher when the
// confirmation candle (c3) dwarfs the initial candle (c1).
func threeCandleBase(c1, c3 domain.OHLCData, base float64) float64 {
	body1 := abs(c1.Close - c1.Open)
	body3 := abs(c3.Close - c3.Open)
	if body3 > body1*1.5 {
		return base + 10
	}
	if body3 > body1*1.2 {
		return base + 5
	}
	return base
}

// isMorningStar checks for a bullish three-candle reversal: long bearish
// candle, small-bodied indecision candle, long bullish candle closing above
// the midpoint of the first.
func isMorningStar(c1, c2, c3 domain.OHLCData) bool {
	if c1.Close >= c1.Open {
		return false
	}
	body1 := c1.Open - c1.Close
	range1 := c1.High - c1.Low
	if body1 < range1*0.6 {
		return false
	}

	body2 := abs(c2.Close - c2.Open)
	if body2 > body1*0.4 {
		return false
	}

	if c3.Close <= c3.Open {
		return false
	}
	body3 := c3.Close - c3.Open
	range3 := c3.High - c3.Low
	if body3 < range3*0.6 {
		return false
	}

	midpoint := (c1.Open + c1.Close) / 2
	return c3.Close >= midpoint
}

// isEveningStar checks for the bearish mirror of isMorningStar.
func isEveningStar(c1, c2, c3 domain.OHLCData) bool {
	if c1.Close <= c1.Open {
		return false
	}
	body1 := c1.Close - c1.Open
	range1 := c1.High - c1.Low
	if body1 < range1*0.6 {
		return false
	}

	body2 := abs(c2.Close - c2.Open)
	if body2 > body1*0.4 {
		return false
	}

	if c3.Close >= c3.Open {
		return false
	}
	body3 := c3.Open - c3.Close
	range3 := c3.High - c3.Low
	if body3 < range3*0.6 {
		return false
	}

	midpoint := (c1.Open + c1.Close) / 2
	return c3.Close <= midpoint
}

// detectSingleCandleReversals scans for Shooting Star, Hammer and Hanging
// Man, all distinguished by which candle among the same wick geometry
// preceded them.
func (d *Detector) detectSingleCandleReversals(candles []domain.OHLCData) []hit {
	var out []hit
	for i := 0; i < len(candles); i++ {
		candle := candles[i]
		var prev *domain.OHLCData
		if i > 0 {
			prev = &candles[i-1]
		}

		if isShootingStar(candle, prev) {
			out = append(out, hit{
				name: ShootingStar, direction: directionBearish,
				clusterKey: clusterKeyFor(ShootingStar, directionBearish),
				base: singleCandleBase(candle, upperWick(candle)), candleIndex: i,
			})
		}
		if isHammer(candle, prev) {
			out = append(out, hit{
				name: Hammer, direction: directionBullish,
				clusterKey: clusterKeyFor(Hammer, directionBullish),
				base: singleCandleBase(candle, lowerWick(candle)), candleIndex: i,
			})
		}
		if isHangingMan(candle, prev) {
			out = append(out, hit{
				name: HangingMan, direction: directionBearish,
				clusterKey: clusterKeyFor(HangingMan, directionBearish),
				base: singleCandleBase(candle, lowerWick(candle)), candleIndex: i,
			})
		}
	}
	return out
}

func upperWick(c domain.OHLCData) float64 { return c.High - max(c.Open, c.Close) }
func lowerWick(c domain.OHLCData) float64 { return min(c.Open, c.Close) - c.Low }

// singleCandleBase scores single-candle reversals by wick-to-body ratio.
func singleCandleBase(c domain.OHLCData, dominantWick float64) float64 {
	body := abs(c.Close - c.Open)
	ratio := dominantWick / (body + 0.0001)
	base := 55.0
	if ratio > 3 {
		base += 10
	} else if ratio > 2.5 {
		base += 5
	}
	return base
}

// isShootingStar: long upper wick (>=2x body), small lower wick, ideally
// after an uptrend.
func isShootingStar(candle domain.OHLCData, prev *domain.OHLCData) bool {
	body := abs(candle.Close - candle.Open)
	upper := upperWick(candle)
	lower := lowerWick(candle)
	if upper < body*2 {
		return false
	}
	if lower > body*0.3 {
		return false
	}
	if prev != nil && prev.Close <= prev.Open {
		return false
	}
	return true
}

// isHammer: long lower wick (>=2x body), small upper wick, ideally after a
// downtrend.
func isHammer(candle domain.OHLCData, prev *domain.OHLCData) bool {
	body := abs(candle.Close - candle.Open)
	upper := upperWick(candle)
	lower := lowerWick(candle)
	if lower < body*2 {
		return false
	}
	if upper > body*0.3 {
		return false
	}
	if prev != nil && prev.Close >= prev.Open {
		return false
	}
	return true
}

// isHangingMan: same shape as a hammer but appears after an uptrend.
func isHangingMan(candle domain.OHLCData, prev *domain.OHLCData) bool {
	body := abs(candle.Close - candle.Open)
	upper := upperWick(candle)
	lower := lowerWick(candle)
	if lower < body*2 {
		return false
	}
	if upper > body*0.3 {
		return false
	}
	if prev != nil && prev.Close <= prev.Open {
		return false
	}
	return true
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
