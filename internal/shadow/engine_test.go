package shadow

import (
	"context"
	"testing"

	"github.com/MikeHotel0815/ngTradingBot-sub001/config"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/domain"
)

type fakeStore struct {
	opened    []*domain.ShadowTrade
	open      []*domain.ShadowTrade
	closed    map[int64]float64
	ticks     map[string]*domain.Tick
	symbols   map[string]*domain.BrokerSymbol
	configs   []*domain.SymbolTradingConfig
	recovery  map[string]domain.ShadowRecoveryStats
}

type fakeLogger struct {
	decisions []domain.DecisionLogEntry
}

func (f *fakeLogger) AppendSafe(ctx context.Context, d domain.DecisionLogEntry) {
	f.decisions = append(f.decisions, d)
}

func (f *fakeStore) OpenShadowTrade(ctx context.Context, st *domain.ShadowTrade) error {
	st.ID = int64(len(f.opened) + 1)
	f.opened = append(f.opened, st)
	return nil
}
func (f *fakeStore) ListOpenShadowTrades(ctx context.Context) ([]*domain.ShadowTrade, error) { return f.open, nil }
func (f *fakeStore) CloseShadowTrade(ctx context.Context, id int64, exitPrice, hypotheticalProfit float64) error {
	f.closed[id] = hypotheticalProfit
	return nil
}
func (f *fakeStore) GetShadowRecoveryStats(ctx context.Context, accountNumber int64, instrument string, direction domain.Direction, days int) (domain.ShadowRecoveryStats, error) {
	return f.recovery[instrument], nil
}
func (f *fakeStore) GetSymbolConfig(ctx context.Context, accountNumber int64, instrument string, direction domain.Direction) (*domain.SymbolTradingConfig, error) {
	return nil, nil
}
func (f *fakeStore) UpsertSymbolConfig(ctx context.Context, c *domain.SymbolTradingConfig) error {
	for i, existing := range f.configs {
		if existing.Instrument == c.Instrument && existing.Direction == c.Direction {
			f.configs[i] = c
			return nil
		}
	}
	f.configs = append(f.configs, c)
	return nil
}
func (f *fakeStore) ListSymbolConfigs(ctx context.Context, accountNumber int64) ([]*domain.SymbolTradingConfig, error) {
	return f.configs, nil
}
func (f *fakeStore) GetLatestTick(ctx context.Context, instrument string) (*domain.Tick, error) {
	return f.ticks[instrument], nil
}
func (f *fakeStore) GetBrokerSymbol(ctx context.Context, instrument string) (*domain.BrokerSymbol, error) {
	return f.symbols[instrument], nil
}
func newFakeStore() *fakeStore {
	return &fakeStore{
		closed:   map[int64]float64{},
		ticks:    map[string]*domain.Tick{},
		symbols:  map[string]*domain.BrokerSymbol{},
		recovery: map[string]domain.ShadowRecoveryStats{},
	}
}

func testEngine(store *fakeStore) (*Engine, *fakeLogger) {
	logger := &fakeLogger{}
	return New(store, logger, config.ShadowConfig{RecoveryWindowDays: 30, RecoveryMinWinRate: 65, RecoveryMinProfit: 50, RecoveryMinCount: 20}), logger
}

func TestOpenRecordsShadowTradeAndDecision(t *testing.T) {
	store := newFakeStore()
	e, logger := testEngine(store)

	if err := e.Open(context.Background(), 1, "EURUSD", domain.Buy, 1.1000, 1.0950, 1.1100, 99); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.opened) != 1 {
		t.Fatalf("expected one shadow trade opened, got %d", len(store.opened))
	}
	if len(logger.decisions) != 1 || logger.decisions[0].Type != domain.DecisionShadowTrade {
		t.Errorf("expected a DecisionShadowTrade log entry, got %+v", logger.decisions)
	}
}

func TestScanClosesOnTPTouch(t *testing.T) {
	store := newFakeStore()
	store.open = []*domain.ShadowTrade{{ID: 1, Instrument: "EURUSD", Direction: domain.Buy, EntryPrice: 1.1000, SL: 1.0950, TP: 1.1100}}
	store.ticks["EURUSD"] = &domain.Tick{Instrument: "EURUSD", Bid: 1.1100, Ask: 1.1102}
	e, _ := testEngine(store)

	e.Scan(context.Background())

	profit, closed := store.closed[1]
	if !closed {
		t.Fatalf("expected shadow trade to close on TP touch")
	}
	if profit <= 0 {
		t.Errorf("expected positive hypothetical profit, got %.5f", profit)
	}
}

func TestScanLeavesOpenWhenNeitherSLNorTPTouched(t *testing.T) {
	store := newFakeStore()
	store.open = []*domain.ShadowTrade{{ID: 1, Instrument: "EURUSD", Direction: domain.Buy, EntryPrice: 1.1000, SL: 1.0950, TP: 1.1100}}
	store.ticks["EURUSD"] = &domain.Tick{Instrument: "EURUSD", Bid: 1.1020, Ask: 1.1022}
	e, _ := testEngine(store)

	e.Scan(context.Background())

	if _, closed := store.closed[1]; closed {
		t.Errorf("expected shadow trade to remain open mid-range")
	}
}

func TestRunRecoveryPromotesQualifyingSymbol(t *testing.T) {
	store := newFakeStore()
	store.configs = []*domain.SymbolTradingConfig{
		{AccountNumber: 1, Instrument: "EURUSD", Direction: domain.Buy, Status: domain.ConfigShadowTrade},
	}
	store.recovery["EURUSD"] = domain.ShadowRecoveryStats{TradeCount: 25, WinCount: 18, TotalHypotheticalPL: 80}
	e, _ := testEngine(store)

	e.RunRecovery(context.Background(), 1)

	if store.configs[0].Status != domain.ConfigActive {
		t.Errorf("expected symbol promoted to active, got %v", store.configs[0].Status)
	}
}

func TestRunRecoverySkipsBelowThresholds(t *testing.T) {
	store := newFakeStore()
	store.configs = []*domain.SymbolTradingConfig{
		{AccountNumber: 1, Instrument: "EURUSD", Direction: domain.Buy, Status: domain.ConfigShadowTrade},
	}
	store.recovery["EURUSD"] = domain.ShadowRecoveryStats{TradeCount: 25, WinCount: 10, TotalHypotheticalPL: 80} // 40% win rate
	e, _ := testEngine(store)

	e.RunRecovery(context.Background(), 1)

	if store.configs[0].Status != domain.ConfigShadowTrade {
		t.Errorf("expected symbol to remain in shadow_trade status, got %v", store.configs[0].Status)
	}
}
