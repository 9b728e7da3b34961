package patterns

import "github.com/MikeHotel0815/ngTradingBot-sub001/internal/domain"

// detectTwoCandleReversals scans for Bullish/Bearish Engulfing and Harami.
func (d *Detector) detectTwoCandleReversals(candles []domain.OHLCData) []hit {
	var out []hit
	for i := 1; i < len(candles); i++ {
		c1, c2 := candles[i-1], candles[i]

		if isBullishEngulfing(c1, c2) {
			out = append(out, hit{
				name: BullishEngulfing, direction: directionBullish,
				clusterKey: clusterKeyFor(BullishEngulfing, directionBullish),
				base: 68, candleIndex: i,
			})
		}
		if isBearishEngulfing(c1, c2) {
			out = append(out, hit{
				name: BearishEngulfing, direction: directionBearish,
				clusterKey: clusterKeyFor(BearishEngulfing, directionBearish),
				base: 68, candleIndex: i,
			})
		}
		if isBullishHarami(c1, c2) {
			out = append(out, hit{
				name: BullishHarami, direction: directionBullish,
				clusterKey: clusterKeyFor(BullishHarami, directionBullish),
				base: 58, candleIndex: i,
			})
		}
		if isBearishHarami(c1, c2) {
			out = append(out, hit{
				name: BearishHarami, direction: directionBearish,
				clusterKey: clusterKeyFor(BearishHarami, directionBearish),
				base: 58, candleIndex: i,
			})
		}
	}
	return out
}

// detectDoji scans for Doji and its Dragonfly/Gravestone variants.
func (d *Detector) detectDoji(candles []domain.OHLCData) []hit {
	var out []hit
	for i := range candles {
		candle := candles[i]
		switch {
		case isDragonflyDoji(candle):
			out = append(out, hit{
				name: DragonflyDoji, direction: directionBullish,
				clusterKey: clusterKeyFor(DragonflyDoji, directionBullish),
				base: 60, candleIndex: i,
			})
		case isGravestoneDoji(candle):
			out = append(out, hit{
				name: GravestoneDoji, direction: directionBearish,
				clusterKey: clusterKeyFor(GravestoneDoji, directionBearish),
				base: 60, candleIndex: i,
			})
		case isDoji(candle):
			out = append(out, hit{
				name: Doji, direction: directionIndecision,
				clusterKey: clusterKeyFor(Doji, directionIndecision),
				base: 50, candleIndex: i,
			})
		}
	}
	return out
}

// isBullishEngulfing: a bearish candle fully engulfed by a following
// bullish candle's body.
func isBullishEngulfing(c1, c2 domain.OHLCData) bool {
	if c1.Close >= c1.Open {
		return false
	}
	if c2.Close <= c2.Open {
		return false
	}
	if c2.Open >= c1.Close || c2.Close <= c1.Open {
		return false
	}
	return true
}

// isBearishEngulfing is the bearish mirror of isBullishEngulfing.
func isBearishEngulfing(c1, c2 domain.OHLCData) bool {
	if c1.Close <= c1.Open {
		return false
	}
	if c2.Close >= c2.Open {
		return false
	}
	if c2.Open <= c1.Close || c2.Close >= c1.Open {
		return false
	}
	return true
}

// isDoji reports a body under 10% of the candle's total range.
func isDoji(c domain.OHLCData) bool {
	body := abs(c.Close - c.Open)
	rng := c.High - c.Low
	if rng == 0 {
		return false
	}
	return (body / rng) < 0.10
}

// isDragonflyDoji: a doji with a long lower wick and almost no upper wick.
func isDragonflyDoji(c domain.OHLCData) bool {
	if !isDoji(c) {
		return false
	}
	body := abs(c.Close - c.Open)
	return lowerWick(c) > body*3 && upperWick(c) < (c.High-c.Low)*0.1
}

// isGravestoneDoji is the bearish mirror of isDragonflyDoji.
func isGravestoneDoji(c domain.OHLCData) bool {
	if !isDoji(c) {
		return false
	}
	body := abs(c.Close - c.Open)
	return upperWick(c) > body*3 && lowerWick(c) < (c.High-c.Low)*0.1
}

// isBullishHarami: a small bullish candle contained within a large
// preceding bearish candle's body.
func isBullishHarami(c1, c2 domain.OHLCData) bool {
	if c1.Close >= c1.Open {
		return false
	}
	body1 := c1.Open - c1.Close
	range1 := c1.High - c1.Low
	if body1 < range1*0.6 {
		return false
	}
	if c2.Close <= c2.Open {
		return false
	}
	if c2.Open < c1.Close || c2.Close > c1.Open {
		return false
	}
	body2 := c2.Close - c2.Open
	return body2 <= body1*0.5
}

// isBearishHarami is the bearish mirror of isBullishHarami.
func isBearishHarami(c1, c2 domain.OHLCData) bool {
	if c1.Close <= c1.Open {
		return false
	}
	body1 := c1.Close - c1.Open
	range1 := c1.High - c1.Low
	if body1 < range1*0.6 {
		return false
	}
	if c2.Close >= c2.Open {
		return false
	}
	if c2.Open > c1.Close || c2.Close < c1.Open {
		return false
	}
	body2 := c2.Open - c2.Close
	return body2 <= body1*0.5
}
