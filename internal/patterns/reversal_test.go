package patterns

import (
	"testing"

	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/domain"
)

func TestIsBullishEngulfing(t *testing.T) {
	c1 := candleAt(1, 100, 102, 98, 99)  // bearish
	c2 := candleAt(2, 98, 105, 97, 104)  // bullish, engulfs c1

	if !isBullishEngulfing(c1, c2) {
		t.Error("Should detect valid Bullish Engulfing pattern")
	}

	c1Invalid := candleAt(1, 99, 102, 98, 100) // not bearish
	if isBullishEngulfing(c1Invalid, c2) {
		t.Error("Should NOT detect pattern when C1 is not bearish")
	}

	c2Invalid := candleAt(2, 99, 101, 98, 100) // doesn't engulf
	if isBullishEngulfing(c1, c2Invalid) {
		t.Error("Should NOT detect pattern when C2 doesn't engulf C1")
	}
}

func TestIsBearishEngulfing(t *testing.T) {
	c1 := candleAt(1, 99, 102, 98, 100)  // bullish
	c2 := candleAt(2, 101, 103, 95, 96) // bearish, engulfs c1

	if !isBearishEngulfing(c1, c2) {
		t.Error("Should detect valid Bearish Engulfing pattern")
	}
}

func TestIsDoji(t *testing.T) {
	doji := candleAt(1, 100, 102, 98, 100.2)
	if !isDoji(doji) {
		t.Error("Should detect valid Doji pattern")
	}

	notDoji := candleAt(1, 100, 110, 98, 108)
	if isDoji(notDoji) {
		t.Error("Should NOT detect Doji with large body")
	}
}

func TestIsDragonflyDoji(t *testing.T) {
	dragonfly := candleAt(1, 100, 100.5, 92, 100)
	if !isDragonflyDoji(dragonfly) {
		t.Error("Should detect valid Dragonfly Doji")
	}

	notDragonfly := candleAt(1, 100, 105, 92, 100)
	if isDragonflyDoji(notDragonfly) {
		t.Error("Should NOT detect Dragonfly with upper wick")
	}
}

func TestIsGravestoneDoji(t *testing.T) {
	gravestone := candleAt(1, 100, 108, 99.5, 100)
	if !isGravestoneDoji(gravestone) {
		t.Error("Should detect valid Gravestone Doji")
	}
}

func TestIsBullishHarami(t *testing.T) {
	c1 := candleAt(1, 105, 106, 95, 96) // large bearish
	c2 := candleAt(2, 98, 100, 97, 99)  // small bullish inside c1

	if !isBullishHarami(c1, c2) {
		t.Error("Should detect valid Bullish Harami")
	}

	c2Large := candleAt(2, 96, 104, 95, 103)
	if isBullishHarami(c1, c2Large) {
		t.Error("Should NOT detect Harami when C2 is too large")
	}
}

func TestIsBearishHarami(t *testing.T) {
	c1 := candleAt(1, 96, 106, 95, 105)  // large bullish
	c2 := candleAt(2, 103, 104, 101, 102) // small bearish inside c1

	if !isBearishHarami(c1, c2) {
		t.Error("Should detect valid Bearish Harami")
	}
}

func TestIsHangingMan(t *testing.T) {
	prev := candleAt(1, 95, 100, 94, 99) // bullish
	hangingMan := candleAt(2, 100, 100.6, 92, 100.5)

	if !isHangingMan(hangingMan, &prev) {
		t.Error("Should detect valid Hanging Man after uptrend")
	}

	prevBearish := candleAt(1, 100, 101, 95, 96)
	if isHangingMan(hangingMan, &prevBearish) {
		t.Error("Should NOT detect Hanging Man after downtrend")
	}
}

func TestDetectTwoCandleReversals(t *testing.T) {
	detector := NewDetector(0.5)

	candles := []domain.OHLCData{
		candleAt(0, 100, 105, 99, 104),
		candleAt(1, 104, 106, 98, 99),
		candleAt(2, 98, 105, 97, 105), // bullish engulfing vs. the prior bar
	}

	hits := detector.detectTwoCandleReversals(candles)

	found := false
	for _, h := range hits {
		if h.name == BullishEngulfing {
			found = true
			if h.direction != directionBullish {
				t.Error("Bullish Engulfing should have bullish direction")
			}
			if h.base <= 0 || h.base > 100 {
				t.Error("base reliability should be between 0 and 100")
			}
		}
	}
	if !found {
		t.Error("Should detect Bullish Engulfing in test candles")
	}
}

func BenchmarkDetectTwoCandleReversals(b *testing.B) {
	detector := NewDetector(0.5)
	candles := make([]domain.OHLCData, 100)
	for i := range candles {
		candles[i] = candleAt(i, float64(100+i), float64(105+i), float64(95+i), float64(102+i))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		detector.detectTwoCandleReversals(candles)
	}
}
