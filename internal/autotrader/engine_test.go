package autotrader

import (
	"context"
	"testing"
	"time"

	"github.com/MikeHotel0815/ngTradingBot-sub001/config"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/commands"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/domain"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/events"
)

type signalKey struct {
	instrument string
	tf         domain.Timeframe
	dir        domain.Direction
}

type fakeStore struct {
	accounts    []*domain.Account
	subs        map[int64][]domain.SubscribedSymbol
	signals     map[signalKey]*domain.TradingSignal
	symbolCfg   map[string]*domain.SymbolTradingConfig
	openCount   map[int64]int
	groupCount  int
	ticks       map[string]*domain.Tick
	brokerSyms  map[string]*domain.BrokerSymbol
	riskStates  map[int64]*domain.AccountRiskState
	realized    map[int64]float64

	executed []int64
	enqueued []*domain.Command
}

type fakeLogger struct {
	decisions []domain.DecisionLogEntry
}

func (f *fakeLogger) AppendSafe(ctx context.Context, d domain.DecisionLogEntry) {
	f.decisions = append(f.decisions, d)
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		subs: map[int64][]domain.SubscribedSymbol{}, signals: map[signalKey]*domain.TradingSignal{},
		symbolCfg: map[string]*domain.SymbolTradingConfig{}, openCount: map[int64]int{},
		ticks: map[string]*domain.Tick{}, brokerSyms: map[string]*domain.BrokerSymbol{},
		riskStates: map[int64]*domain.AccountRiskState{}, realized: map[int64]float64{},
	}
}

func (f *fakeStore) ListActiveAccounts(ctx context.Context) ([]*domain.Account, error) { return f.accounts, nil }
func (f *fakeStore) ListSubscriptions(ctx context.Context, accountNumber int64) ([]domain.SubscribedSymbol, error) {
	return f.subs[accountNumber], nil
}
func (f *fakeStore) GetActiveSignal(ctx context.Context, instrument string, tf domain.Timeframe, dir domain.Direction) (*domain.TradingSignal, error) {
	return f.signals[signalKey{instrument, tf, dir}], nil
}
func (f *fakeStore) MarkSignalExecuted(ctx context.Context, id int64) error {
	f.executed = append(f.executed, id)
	return nil
}
func (f *fakeStore) GetSymbolConfig(ctx context.Context, accountNumber int64, instrument string, direction domain.Direction) (*domain.SymbolTradingConfig, error) {
	if c, ok := f.symbolCfg[instrument]; ok {
		return c, nil
	}
	return &domain.SymbolTradingConfig{AccountNumber: accountNumber, Instrument: instrument, Direction: direction, Status: domain.ConfigActive, RiskMultiplier: 1}, nil
}
func (f *fakeStore) CountOpenTradesInGroup(ctx context.Context, accountNumber int64, instruments []string) (int, error) {
	return f.groupCount, nil
}
func (f *fakeStore) CountOpenTrades(ctx context.Context, accountNumber int64) (int, error) {
	return f.openCount[accountNumber], nil
}
func (f *fakeStore) GetLatestTick(ctx context.Context, instrument string) (*domain.Tick, error) {
	return f.ticks[instrument], nil
}
func (f *fakeStore) GetBrokerSymbol(ctx context.Context, instrument string) (*domain.BrokerSymbol, error) {
	return f.brokerSyms[instrument], nil
}
func (f *fakeStore) GetRiskState(ctx context.Context, accountNumber int64) (*domain.AccountRiskState, error) {
	if st, ok := f.riskStates[accountNumber]; ok {
		return st, nil
	}
	return &domain.AccountRiskState{}, nil
}
func (f *fakeStore) TodayRealizedPnL(ctx context.Context, accountNumber int64) (float64, error) {
	return f.realized[accountNumber], nil
}
// commands.Store surface, so a real *commands.Queue can be wired in tests.
func (f *fakeStore) EnqueueCommand(ctx context.Context, cmd *domain.Command) error {
	f.enqueued = append(f.enqueued, cmd)
	return nil
}
func (f *fakeStore) PickPendingCommands(ctx context.Context, accountNumber int64, limit int) ([]*domain.Command, error) {
	return nil, nil
}
func (f *fakeStore) GetCommand(ctx context.Context, id string) (*domain.Command, error) { return nil, nil }
func (f *fakeStore) RedeliverOrTimeoutCommands(ctx context.Context) (int64, int64, error) {
	return 0, 0, nil
}
func (f *fakeStore) CountPendingCommands(ctx context.Context, accountNumber int64) (int, error) {
	return 0, nil
}

type fakeShadow struct {
	opened bool
}

func (f *fakeShadow) Open(ctx context.Context, accountNumber int64, instrument string, direction domain.Direction, entryPrice, sl, tp float64, signalID int64) error {
	f.opened = true
	return nil
}

func testCfg() config.AutoTraderConfig {
	return config.AutoTraderConfig{
		Cadence: 10 * time.Second, MaxSignalAge: 300 * time.Second, SignalAgeWarnAt: 200 * time.Second,
		MaxCorrelatedPositions: 2, MaxOpenPositions: 10, MaxSpreadMultiplier: 3,
		TickStaleAfter: 60 * time.Second, CommandTimeout: 5 * time.Minute,
		MinVolume: 0.01, MaxVolumeSafetyCap: 1.0, DefaultRiskPerTrade: 0.01,
		AssetClasses: map[string]config.AssetClassConfig{
			"forex_major": {MaxLossCurrency: 25},
		},
		RiskProfiles: map[string]config.RiskProfileConfig{
			"moderate": {BaseRiskPct: 1.0, MaxDailyLossPct: 5.0},
		},
	}
}

func testEngine(store *fakeStore, shadow ShadowHandoff) *Engine {
	e, _ := testEngineWithLogger(store, shadow)
	return e
}

func testEngineWithLogger(store *fakeStore, shadow ShadowHandoff) (*Engine, *fakeLogger) {
	logger := &fakeLogger{}
	q := commands.New(store, events.NewEventBus(), logger, config.CommandQueueConfig{HeartbeatBatchSize: 10, PendingAlertThreshold: 50})
	return New(store, q, shadow, logger, testCfg()), logger
}

func baseAccount() *domain.Account {
	return &domain.Account{
		AccountNumber: 1, Balance: 10000, Equity: 10000, StartOfDayBalance: 10000,
		AutoTradingEnabled: true, RiskProfile: domain.RiskModerate,
	}
}

func activeSignal() *domain.TradingSignal {
	return &domain.TradingSignal{
		ID: 42, Instrument: "EURUSD", Timeframe: domain.TimeframeM15, Direction: domain.Buy,
		Confidence: 80, SuggestedEntry: 1.1000, SuggestedSL: 1.0950, SuggestedTP: 1.1100,
		Status: domain.SignalActive, CreatedAt: time.Now(),
	}
}

func eurusdSymbol() *domain.BrokerSymbol {
	return &domain.BrokerSymbol{
		Instrument: "EURUSD", Digits: 5, Point: 0.00001, MinVolume: 0.01, MaxVolume: 10,
		StepVolume: 0.01, ContractSize: 100000, TickSize: 0.00001, TickValue: 1, StopsLevel: 10,
		MaxSpreadPips: 3,
	}
}

func wireHappyPath(store *fakeStore) {
	store.accounts = []*domain.Account{baseAccount()}
	store.subs[1] = []domain.SubscribedSymbol{{AccountNumber: 1, Instrument: "EURUSD", Active: true}}
	store.signals[signalKey{"EURUSD", domain.TimeframeM15, domain.Buy}] = activeSignal()
	store.brokerSyms["EURUSD"] = eurusdSymbol()
	store.ticks["EURUSD"] = &domain.Tick{Instrument: "EURUSD", Bid: 1.09998, Ask: 1.10002, Timestamp: time.Now()}
}

func TestScanSkipsAccountWithAutoTradingDisabled(t *testing.T) {
	store := newFakeStore()
	wireHappyPath(store)
	store.accounts[0].AutoTradingEnabled = false
	e := testEngine(store, &fakeShadow{})

	e.Scan(context.Background())

	if len(store.enqueued) != 0 {
		t.Fatalf("expected no command emitted for a globally disabled account, got %d", len(store.enqueued))
	}
}

func TestScanSkipsAccountWithCircuitTripped(t *testing.T) {
	store := newFakeStore()
	wireHappyPath(store)
	store.accounts[0].CircuitTripped = true
	e := testEngine(store, &fakeShadow{})

	e.Scan(context.Background())

	if len(store.enqueued) != 0 {
		t.Fatalf("expected no command emitted for a tripped account, got %d", len(store.enqueued))
	}
}

func TestEvaluateEmitsCommandOnFullPass(t *testing.T) {
	store := newFakeStore()
	wireHappyPath(store)
	e, logger := testEngineWithLogger(store, &fakeShadow{})

	e.Scan(context.Background())

	if len(store.enqueued) != 1 {
		t.Fatalf("expected exactly one command emitted, got %d: %+v", len(store.enqueued), logger.decisions)
	}
	if store.enqueued[0].Type != domain.CmdOpenTrade {
		t.Errorf("expected OPEN_TRADE command, got %s", store.enqueued[0].Type)
	}
	if len(store.executed) != 1 || store.executed[0] != 42 {
		t.Errorf("expected signal 42 marked executed, got %v", store.executed)
	}
	foundOpen := false
	for _, d := range logger.decisions {
		if d.Type == domain.DecisionTradeOpen {
			foundOpen = true
		}
	}
	if !foundOpen {
		t.Errorf("expected a DecisionTradeOpen entry, got %+v", logger.decisions)
	}
}

func TestEvaluateRejectsStaleSignal(t *testing.T) {
	store := newFakeStore()
	wireHappyPath(store)
	sig := store.signals[signalKey{"EURUSD", domain.TimeframeM15, domain.Buy}]
	sig.CreatedAt = time.Now().Add(-10 * time.Minute)
	e := testEngine(store, &fakeShadow{})

	e.Scan(context.Background())

	if len(store.enqueued) != 0 {
		t.Fatalf("expected no command for a stale signal, got %d", len(store.enqueued))
	}
}

func TestEvaluateRejectsBelowConfidenceThreshold(t *testing.T) {
	store := newFakeStore()
	wireHappyPath(store)
	store.symbolCfg["EURUSD"] = &domain.SymbolTradingConfig{Status: domain.ConfigActive, MinConfidenceThreshold: 90, RiskMultiplier: 1}
	e := testEngine(store, &fakeShadow{})

	e.Scan(context.Background())

	if len(store.enqueued) != 0 {
		t.Fatalf("expected no command below confidence threshold, got %d", len(store.enqueued))
	}
}

func TestEvaluateHandsOffToShadowForShadowStatus(t *testing.T) {
	store := newFakeStore()
	wireHappyPath(store)
	store.symbolCfg["EURUSD"] = &domain.SymbolTradingConfig{Status: domain.ConfigShadowTrade, RiskMultiplier: 1}
	shadow := &fakeShadow{}
	e := testEngine(store, shadow)

	e.Scan(context.Background())

	if !shadow.opened {
		t.Fatalf("expected the signal to be handed off to shadow trading")
	}
	if len(store.enqueued) != 0 {
		t.Fatalf("expected no live command when routed to shadow, got %d", len(store.enqueued))
	}
	if len(store.executed) != 1 {
		t.Fatalf("expected signal marked executed after shadow handoff")
	}
}

func TestEvaluateRejectsWideSpread(t *testing.T) {
	store := newFakeStore()
	wireHappyPath(store)
	store.ticks["EURUSD"] = &domain.Tick{Instrument: "EURUSD", Bid: 1.0900, Ask: 1.1000, Timestamp: time.Now()}
	e := testEngine(store, &fakeShadow{})

	e.Scan(context.Background())

	if len(store.enqueued) != 0 {
		t.Fatalf("expected no command for a spread far over ceiling, got %d", len(store.enqueued))
	}
}

func TestEvaluateRejectsStaleTick(t *testing.T) {
	store := newFakeStore()
	wireHappyPath(store)
	store.ticks["EURUSD"].Timestamp = time.Now().Add(-5 * time.Minute)
	e := testEngine(store, &fakeShadow{})

	e.Scan(context.Background())

	if len(store.enqueued) != 0 {
		t.Fatalf("expected no command for a stale tick, got %d", len(store.enqueued))
	}
}

func TestEvaluateRejectsAtMaxOpenPositions(t *testing.T) {
	store := newFakeStore()
	wireHappyPath(store)
	store.openCount[1] = 10
	e := testEngine(store, &fakeShadow{})

	e.Scan(context.Background())

	if len(store.enqueued) != 0 {
		t.Fatalf("expected no command at max open positions, got %d", len(store.enqueued))
	}
}

func TestEvaluateRejectsAtMaxCorrelatedPositions(t *testing.T) {
	store := newFakeStore()
	wireHappyPath(store)
	store.groupCount = 2
	e := testEngine(store, &fakeShadow{})

	e.Scan(context.Background())

	if len(store.enqueued) != 0 {
		t.Fatalf("expected no command at max correlated positions, got %d", len(store.enqueued))
	}
}

func TestSizePositionClampsToSafetyCap(t *testing.T) {
	store := newFakeStore()
	e := testEngine(store, &fakeShadow{})
	acc := &domain.Account{Equity: 1_000_000, RiskProfile: domain.RiskModerate}
	symCfg := &domain.SymbolTradingConfig{RiskMultiplier: 1}
	sym := eurusdSymbol()
	sig := &domain.TradingSignal{Confidence: 100}

	lot := e.sizePosition(acc, symCfg, sym, sig, 1.1000, 1.0999)

	if lot != e.cfg.MaxVolumeSafetyCap {
		t.Fatalf("expected lot clamped to safety cap %v, got %v", e.cfg.MaxVolumeSafetyCap, lot)
	}
}

func TestSizePositionFallsBackToMinVolumeOnInvalidInput(t *testing.T) {
	store := newFakeStore()
	e := testEngine(store, &fakeShadow{})
	acc := &domain.Account{Equity: 0, RiskProfile: domain.RiskModerate}
	symCfg := &domain.SymbolTradingConfig{RiskMultiplier: 1}
	sym := eurusdSymbol()
	sig := &domain.TradingSignal{Confidence: 80}

	lot := e.sizePosition(acc, symCfg, sym, sig, 1.1000, 1.0999)

	if lot != e.cfg.MinVolume {
		t.Fatalf("expected fallback to min volume %v, got %v", e.cfg.MinVolume, lot)
	}
}
