package dynrisk

import (
	"context"
	"testing"

	"github.com/MikeHotel0815/ngTradingBot-sub001/config"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/domain"
)

type fakeStore struct {
	accounts []*domain.Account
	states   map[int64]*domain.AccountRiskState
	winRate  map[int64]float64
	pf       map[int64]float64
	count    map[int64]int
}

type fakeLogger struct {
	decisions []domain.DecisionLogEntry
}

func (f *fakeLogger) AppendSafe(ctx context.Context, d domain.DecisionLogEntry) {
	f.decisions = append(f.decisions, d)
}

func (f *fakeStore) ListActiveAccounts(ctx context.Context) ([]*domain.Account, error) { return f.accounts, nil }
func (f *fakeStore) GetRiskState(ctx context.Context, accountNumber int64) (*domain.AccountRiskState, error) {
	if st, ok := f.states[accountNumber]; ok {
		return st, nil
	}
	return &domain.AccountRiskState{AccountNumber: accountNumber, RiskRewardMultiplier: 1.0, PerformanceFactor: 1.0}, nil
}
func (f *fakeStore) UpsertRiskState(ctx context.Context, st *domain.AccountRiskState) error {
	f.states[st.AccountNumber] = st
	return nil
}
func (f *fakeStore) RecentTradeWinRate(ctx context.Context, accountNumber int64, sampleSize int) (float64, float64, int, error) {
	return f.winRate[accountNumber], f.pf[accountNumber], f.count[accountNumber], nil
}
func newFakeStore() *fakeStore {
	return &fakeStore{
		states:  map[int64]*domain.AccountRiskState{},
		winRate: map[int64]float64{},
		pf:      map[int64]float64{},
		count:   map[int64]int{},
	}
}

func testManager(store *fakeStore) (*Manager, *fakeLogger) {
	cfg := config.RiskConfig{
		GrowthFactor: 1.0, PerformanceFactorMin: 0.5, PerformanceFactorMax: 1.5,
		PerformanceWindowTrades: 20, DefaultSymbolWeight: 1.0,
		MinRiskRewardMultiplier: 1.0, MaxRiskRewardMultiplier: 3.0,
	}
	profile := config.RiskProfileConfig{BaseRiskPct: 1.0, MaxLossPerTradePct: 2.0, MaxDailyLossPct: 5.0}
	logger := &fakeLogger{}
	return New(store, logger, cfg, profile), logger
}

func TestRecomputeDailyScalesCeilingByPerformance(t *testing.T) {
	store := newFakeStore()
	store.accounts = []*domain.Account{{AccountNumber: 1, Balance: 10000}}
	store.pf[1] = 2.0 // strongly winning
	store.count[1] = 20

	m, _ := testManager(store)
	m.RecomputeDaily(context.Background())

	st := store.states[1]
	if st == nil {
		t.Fatalf("expected risk state to be persisted")
	}
	// ceiling = 10000 * 2% * 1.0(growth) * 1.5(perf max) * 1.0(weight) = 300
	if st.SLCeilingCurrency < 299 || st.SLCeilingCurrency > 301 {
		t.Errorf("expected SL ceiling near 300, got %.2f", st.SLCeilingCurrency)
	}
	if st.DailyRecomputedAt == nil {
		t.Errorf("expected DailyRecomputedAt to be stamped")
	}
}

func TestPerformanceFactorFloorsOnFewTrades(t *testing.T) {
	store := newFakeStore()
	store.accounts = []*domain.Account{{AccountNumber: 1, Balance: 10000}}
	store.count[1] = 2 // below the 5-trade judgment floor

	m, _ := testManager(store)
	m.RecomputeDaily(context.Background())

	st := store.states[1]
	if st.PerformanceFactor != 1.0 {
		t.Errorf("expected neutral performance factor with too few trades, got %.2f", st.PerformanceFactor)
	}
}

func TestRecomputeWeeklyClampsToConfiguredRange(t *testing.T) {
	store := newFakeStore()
	store.accounts = []*domain.Account{{AccountNumber: 1, Balance: 10000}}
	store.states[1] = &domain.AccountRiskState{AccountNumber: 1, RiskRewardMultiplier: 2.9}
	store.pf[1] = 2.0
	store.count[1] = 20

	m, _ := testManager(store)
	m.RecomputeWeekly(context.Background())

	st := store.states[1]
	if st.RiskRewardMultiplier > 3.0 {
		t.Errorf("expected multiplier clamped to MaxRiskRewardMultiplier 3.0, got %.2f", st.RiskRewardMultiplier)
	}
}
