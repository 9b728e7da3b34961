package signals

import (
	"context"
	"testing"
	"time"

	"github.com/MikeHotel0815/ngTradingBot-sub001/config"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/domain"
)

type fakeStore struct {
	scores  map[string]domain.IndicatorScore
	symbols map[string]*domain.BrokerSymbol
}

func newFakeStore() *fakeStore {
	return &fakeStore{scores: map[string]domain.IndicatorScore{}, symbols: map[string]*domain.BrokerSymbol{}}
}

func (f *fakeStore) GetOHLCWindow(ctx context.Context, instrument string, tf domain.Timeframe, limit int) ([]domain.OHLCData, error) {
	return nil, nil
}
func (f *fakeStore) GetBrokerSymbol(ctx context.Context, instrument string) (*domain.BrokerSymbol, error) {
	return f.symbols[instrument], nil
}
func (f *fakeStore) GetSymbolConfig(ctx context.Context, accountNumber int64, instrument string, direction domain.Direction) (*domain.SymbolTradingConfig, error) {
	return nil, nil
}
func (f *fakeStore) GetIndicatorScore(ctx context.Context, instrument string, tf domain.Timeframe, name string) (domain.IndicatorScore, error) {
	if sc, ok := f.scores[name]; ok {
		return sc, nil
	}
	return domain.IndicatorScore{Instrument: instrument, Timeframe: tf, IndicatorName: name, Score: 50, SampleCount: 0}, nil
}
func (f *fakeStore) RecentClosedTrades(ctx context.Context, accountNumber int64, instrument string, direction domain.Direction, limit int) ([]*domain.Trade, error) {
	return nil, nil
}
func (f *fakeStore) UpsertSignal(ctx context.Context, sig *domain.TradingSignal) error { return nil }
func (f *fakeStore) ExpireSignalsForInstrument(ctx context.Context, instrument string) (int64, error) {
	return 0, nil
}
func (f *fakeStore) GetRiskState(ctx context.Context, accountNumber int64) (*domain.AccountRiskState, error) {
	return &domain.AccountRiskState{AccountNumber: accountNumber, RiskRewardMultiplier: 1.0}, nil
}
func (f *fakeStore) GetActiveSignal(ctx context.Context, instrument string, tf domain.Timeframe, dir domain.Direction) (*domain.TradingSignal, error) {
	return nil, nil
}

type fakeLogger struct {
	decisions []domain.DecisionLogEntry
}

func (f *fakeLogger) AppendSafe(ctx context.Context, d domain.DecisionLogEntry) {
	f.decisions = append(f.decisions, d)
}

func testGenerator(store *fakeStore) *Generator {
	cfg := config.SignalConfig{
		BaseCadence: 10 * time.Second, LowVolatilityCadence: 20 * time.Second, HighVolatilityCadence: 5 * time.Second,
		MinWeightSamples: 20, NeutralWeight: 0.65, BuySignalAdvantage: 2, BuyConfidencePenalty: 3.0,
		PatternWeight: 0.30, IndicatorWeight: 0.40, StrengthWeight: 0.30, ConfluenceBonusPerInd: 2,
		MinRiskReward: 1.2, MaxRiskReward: 10, ActiveRetention: 10 * time.Minute, ExpiredRetention: 2 * time.Minute,
		ABTestWeights: [3]float64{0.8, 0.1, 0.1},
	}
	autoCfg := config.AutoTraderConfig{
		AssetClasses: map[string]config.AssetClassConfig{
			"forex_major": {ATRTPMultiplier: 2.5, ATRSLMultiplier: 1.2, MaxTPPct: 2.0, MinSLPct: 0.15, FallbackATRPct: 0.5, MaxLossCurrency: 25},
		},
	}
	return New(store, nil, nil, nil, nil, nil, &fakeLogger{}, cfg, autoCfg)
}

func TestAggregateRequiresBuyAdvantage(t *testing.T) {
	store := newFakeStore()
	g := testGenerator(store)

	values := []domain.IndicatorValue{
		{Name: "macd_cross", HasSignal: true, Signal: "BUY", Strength: "strong"},
		{Name: "rsi14_signal", HasSignal: true, Signal: "SELL", Strength: "weak"},
	}
	agg, err := g.aggregate(context.Background(), "EURUSD", domain.TimeframeH1, values)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if agg != nil {
		t.Errorf("expected no consensus with only a 1-vote buy advantage, got %+v", agg)
	}
}

func TestAggregateEmitsBuyWithAdvantage(t *testing.T) {
	store := newFakeStore()
	g := testGenerator(store)

	values := []domain.IndicatorValue{
		{Name: "macd_cross", HasSignal: true, Signal: "BUY", Strength: "strong"},
		{Name: "supertrend", HasSignal: true, Signal: "BUY", Strength: "strong"},
		{Name: "rsi14_signal", HasSignal: true, Signal: "NEUTRAL"},
	}
	agg, err := g.aggregate(context.Background(), "EURUSD", domain.TimeframeH1, values)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if agg == nil || agg.direction != domain.Buy {
		t.Fatalf("expected a BUY consensus, got %+v", agg)
	}
	if agg.indicatorScore <= 0 || agg.indicatorScore > 100 {
		t.Errorf("indicator score out of [0,100]: %v", agg.indicatorScore)
	}
}

func TestPatternScoreNeutralWithoutConfirmingPattern(t *testing.T) {
	patterns := []domain.PatternDetection{{Name: "hammer", Direction: "bearish", Reliability: 80}}
	if s := patternScore(patterns, domain.Buy); s != 50 {
		t.Errorf("expected neutral 50 with no confirming bullish pattern, got %v", s)
	}
}

func TestPatternScoreAveragesConfirmingPatterns(t *testing.T) {
	patterns := []domain.PatternDetection{
		{Name: "hammer", Direction: "bullish", Reliability: 80},
		{Name: "morning_star", Direction: "bullish", Reliability: 60},
		{Name: "shooting_star", Direction: "bearish", Reliability: 90},
	}
	if s := patternScore(patterns, domain.Buy); s != 70 {
		t.Errorf("expected average of the two bullish hits (70), got %v", s)
	}
}

func TestABGroupForIsStableAndWithinRange(t *testing.T) {
	weights := [3]float64{0.8, 0.1, 0.1}
	first := abGroupFor("EURUSD", domain.Buy, weights)
	second := abGroupFor("EURUSD", domain.Buy, weights)
	if first != second {
		t.Errorf("expected stable hash assignment, got %q then %q", first, second)
	}
	switch first {
	case "ml_only", "rules_only", "hybrid":
	default:
		t.Errorf("unexpected ab group %q", first)
	}
}

func TestSelectSLTPRejectsWithoutBrokerSymbol(t *testing.T) {
	store := newFakeStore()
	g := testGenerator(store)
	_, valid, reason := g.selectSLTP(context.Background(), 1, "EURUSD", domain.Buy, 1.1000, nil)
	if valid {
		t.Error("expected rejection without a broker symbol on file")
	}
	if reason == "" {
		t.Error("expected a non-empty rejection reason")
	}
}

func TestSelectSLTPComputesATRBasedDistances(t *testing.T) {
	store := newFakeStore()
	store.symbols["EURUSD"] = &domain.BrokerSymbol{
		Instrument: "EURUSD", Digits: 5, Point: 0.00001, MinVolume: 0.01, MaxVolume: 100, StepVolume: 0.01,
		TickSize: 0.00001, TickValue: 1, StopsLevel: 10,
	}
	g := testGenerator(store)
	values := []domain.IndicatorValue{{Name: "atr14", Value: 0.0015}}

	res, valid, reason := g.selectSLTP(context.Background(), 1, "EURUSD", domain.Buy, 1.1000, values)
	if !valid {
		t.Fatalf("expected a valid SL/TP, got rejection: %s", reason)
	}
	if res.sl >= 1.1000 {
		t.Errorf("expected SL below entry for a BUY, got %v", res.sl)
	}
	if res.tp <= 1.1000 {
		t.Errorf("expected TP above entry for a BUY, got %v", res.tp)
	}
}
