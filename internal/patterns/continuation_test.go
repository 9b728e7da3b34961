package patterns

import (
	"testing"
	"time"

	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/domain"
)

func candleAt(i int, open, high, low, close float64) domain.OHLCData {
	return domain.OHLCData{
		Instrument: "EURUSD", Timeframe: domain.TimeframeH1,
		OpenTime: time.Unix(int64(i)*3600, 0),
		Open:     open, High: high, Low: low, Close: close, Volume: 100,
	}
}

func TestIsBullishFlag(t *testing.T) {
	candles := make([]domain.OHLCData, 20)
	for i := 0; i < 10; i++ {
		candles[i] = candleAt(i, float64(100+i*2), float64(105+i*2), float64(98+i*2), float64(103+i*2))
	}
	for i := 10; i < 15; i++ {
		candles[i] = candleAt(i, 122-float64(i-10)*0.5, 124-float64(i-10)*0.5, 120-float64(i-10)*0.5, 121-float64(i-10)*0.5)
	}

	flag, found := isBullishFlag(candles, 10)
	if !found {
		t.Error("Should detect valid Bullish Flag pattern")
	}
	if flag != nil && flag.poleHeight <= 0 {
		t.Error("Bullish Flag should have a positive pole height")
	}
}

func TestIsBearishFlag(t *testing.T) {
	candles := make([]domain.OHLCData, 20)
	for i := 0; i < 10; i++ {
		candles[i] = candleAt(i, float64(120-i*2), float64(122-i*2), float64(115-i*2), float64(117-i*2))
	}
	for i := 10; i < 15; i++ {
		candles[i] = candleAt(i, 100+float64(i-10)*0.5, 102+float64(i-10)*0.5, 98+float64(i-10)*0.5, 99+float64(i-10)*0.5)
	}

	flag, found := isBearishFlag(candles, 10)
	if !found {
		t.Error("Should detect valid Bearish Flag pattern")
	}
	if flag != nil && flag.poleHeight <= 0 {
		t.Error("Bearish Flag should have a positive pole height")
	}
}

func TestIsAscendingTriangle(t *testing.T) {
	candles := make([]domain.OHLCData, 20)
	for i := 0; i < 15; i++ {
		candles[i] = candleAt(i, float64(100+float64(i)*0.5), 110, float64(95+i), float64(105+float64(i)*0.3))
	}

	triangle, found := isAscendingTriangle(candles, 0)
	if !found {
		t.Error("Should detect valid Ascending Triangle")
	}
	if triangle != nil && triangle.kind != "ascending" {
		t.Error("Should be 'ascending' type")
	}
}

func TestIsDescendingTriangle(t *testing.T) {
	candles := make([]domain.OHLCData, 20)
	for i := 0; i < 15; i++ {
		candles[i] = candleAt(i, float64(105-float64(i)*0.3), float64(110-i), 95, float64(100-float64(i)*0.5))
	}

	triangle, found := isDescendingTriangle(candles, 0)
	if !found {
		t.Error("Should detect valid Descending Triangle")
	}
	if triangle != nil && triangle.kind != "descending" {
		t.Error("Should be 'descending' type")
	}
}

func TestDetectContinuations(t *testing.T) {
	detector := NewDetector(0.5)

	candles := make([]domain.OHLCData, 25)
	for i := 0; i < 10; i++ {
		candles[i] = candleAt(i, float64(100+i*3), float64(105+i*3), float64(98+i*3), float64(103+i*3))
	}
	for i := 10; i < 25; i++ {
		candles[i] = candleAt(i, 130, 132, 128, 129)
	}

	hits := detector.detectContinuations(candles)
	for _, h := range hits {
		if h.base <= 0 || h.base > 100 {
			t.Error("base reliability should be between 0 and 100")
		}
	}
}

func BenchmarkDetectContinuations(b *testing.B) {
	detector := NewDetector(0.5)

	candles := make([]domain.OHLCData, 100)
	for i := range candles {
		candles[i] = candleAt(i, float64(100+i), float64(105+i), float64(95+i), float64(102+i))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		detector.detectContinuations(candles)
	}
}
