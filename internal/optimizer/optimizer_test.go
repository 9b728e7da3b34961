package optimizer

import (
	"context"
	"testing"
	"time"

	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/domain"
)

type fakeStore struct {
	cfg *domain.SymbolTradingConfig
}

type fakeLogger struct {
	decisions []domain.DecisionLogEntry
}

func (f *fakeLogger) AppendSafe(ctx context.Context, d domain.DecisionLogEntry) {
	f.decisions = append(f.decisions, d)
}

func (f *fakeStore) GetSymbolConfig(ctx context.Context, accountNumber int64, instrument string, direction domain.Direction) (*domain.SymbolTradingConfig, error) {
	return f.cfg, nil
}
func (f *fakeStore) UpsertSymbolConfig(ctx context.Context, c *domain.SymbolTradingConfig) error {
	f.cfg = c
	return nil
}

func baseConfig() *domain.SymbolTradingConfig {
	return &domain.SymbolTradingConfig{
		AccountNumber: 1, Instrument: "EURUSD", Direction: domain.Buy,
		Status: domain.ConfigActive, MinConfidenceThreshold: 60, RiskMultiplier: 1.0,
	}
}

func TestOnTradeClosedLossRaisesThresholdAndCutsRiskAfterTwoLosses(t *testing.T) {
	store := &fakeStore{cfg: baseConfig()}
	logger := &fakeLogger{}
	o := New(store, logger)

	if err := o.OnTradeClosed(context.Background(), 1, "EURUSD", domain.Buy, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.cfg.MinConfidenceThreshold != 65 {
		t.Errorf("expected threshold 65 after one loss, got %v", store.cfg.MinConfidenceThreshold)
	}
	if store.cfg.RiskMultiplier != 1.0 {
		t.Errorf("expected risk multiplier unchanged after a single loss, got %v", store.cfg.RiskMultiplier)
	}

	if err := o.OnTradeClosed(context.Background(), 1, "EURUSD", domain.Buy, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.cfg.ConsecutiveLosses != 2 {
		t.Errorf("expected 2 consecutive losses, got %d", store.cfg.ConsecutiveLosses)
	}
	if store.cfg.RiskMultiplier != 0.90 {
		t.Errorf("expected risk multiplier cut to 0.90 at 2 consecutive losses, got %v", store.cfg.RiskMultiplier)
	}
}

func TestOnTradeClosedWinLowersThresholdAndBumpsRiskAfterThreeWins(t *testing.T) {
	store := &fakeStore{cfg: baseConfig()}
	logger := &fakeLogger{}
	o := New(store, logger)

	for i := 0; i < 3; i++ {
		if err := o.OnTradeClosed(context.Background(), 1, "EURUSD", domain.Buy, true); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if store.cfg.MinConfidenceThreshold != 57 {
		t.Errorf("expected threshold 57 after three wins, got %v", store.cfg.MinConfidenceThreshold)
	}
	if store.cfg.RiskMultiplier != 1.05 {
		t.Errorf("expected risk multiplier bumped to 1.05 at 3 consecutive wins, got %v", store.cfg.RiskMultiplier)
	}
}

func TestMinConfidenceThresholdCapsAtEightyAndFloorsAtFortyFive(t *testing.T) {
	cfg := baseConfig()
	cfg.MinConfidenceThreshold = 79
	store := &fakeStore{cfg: cfg}
	logger := &fakeLogger{}
	o := New(store, logger)
	o.OnTradeClosed(context.Background(), 1, "EURUSD", domain.Buy, false)
	if store.cfg.MinConfidenceThreshold != 80 {
		t.Errorf("expected threshold capped at 80, got %v", store.cfg.MinConfidenceThreshold)
	}

	cfg2 := baseConfig()
	cfg2.MinConfidenceThreshold = 45.5
	store2 := &fakeStore{cfg: cfg2}
	logger2 := &fakeLogger{}
	o2 := New(store2, logger2)
	o2.OnTradeClosed(context.Background(), 1, "EURUSD", domain.Buy, true)
	if store2.cfg.MinConfidenceThreshold != 45 {
		t.Errorf("expected threshold floored at 45, got %v", store2.cfg.MinConfidenceThreshold)
	}
}

func TestRollingWindowLowWinrateAppliesAdditionalPenalty(t *testing.T) {
	cfg := baseConfig()
	cfg.RollingTradesCount = 9
	cfg.RollingWinrate = 3.0 / 9.0 // 33%, will drop further below 40% after a 10th loss
	store := &fakeStore{cfg: cfg}
	logger := &fakeLogger{}
	o := New(store, logger)

	if err := o.OnTradeClosed(context.Background(), 1, "EURUSD", domain.Buy, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.cfg.RollingTradesCount != 10 {
		t.Fatalf("expected rolling count 10, got %d", store.cfg.RollingTradesCount)
	}
	// base loss adjustment: +5 -> 65. rolling low-winrate adjustment: +5 -> 70.
	if store.cfg.MinConfidenceThreshold != 70 {
		t.Errorf("expected threshold 70 after base+rolling low-winrate penalty, got %v", store.cfg.MinConfidenceThreshold)
	}
}

func TestRollingWindowHighWinrateAppliesAdditionalBonusWithoutRiskChange(t *testing.T) {
	cfg := baseConfig()
	cfg.RollingTradesCount = 9
	cfg.RollingWinrate = 7.0 / 9.0 // high winrate, stays above 65% after a 10th win
	cfg.RiskMultiplier = 1.0
	store := &fakeStore{cfg: cfg}
	logger := &fakeLogger{}
	o := New(store, logger)

	if err := o.OnTradeClosed(context.Background(), 1, "EURUSD", domain.Buy, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// base win adjustment: -1 -> 59. rolling high-winrate bonus: -2 -> 57.
	if store.cfg.MinConfidenceThreshold != 57 {
		t.Errorf("expected threshold 57 after base+rolling high-winrate bonus, got %v", store.cfg.MinConfidenceThreshold)
	}
	if store.cfg.RiskMultiplier != 1.0 {
		t.Errorf("expected risk multiplier unaffected by the high-winrate rolling bonus, got %v", store.cfg.RiskMultiplier)
	}
}

func TestThreeConsecutiveLossesAutoPauses(t *testing.T) {
	store := &fakeStore{cfg: baseConfig()}
	logger := &fakeLogger{}
	o := New(store, logger)
	for i := 0; i < 3; i++ {
		o.OnTradeClosed(context.Background(), 1, "EURUSD", domain.Buy, false)
	}
	if store.cfg.Status != domain.ConfigPaused {
		t.Fatalf("expected status paused after 3 consecutive losses, got %v", store.cfg.Status)
	}
	if store.cfg.PausedAt == nil {
		t.Fatal("expected PausedAt to be set")
	}
	found := false
	for _, d := range logger.decisions {
		if d.Type == domain.DecisionOptimizationRun && d.Outcome == string(domain.ConfigPaused) {
			found = true
		}
	}
	if !found {
		t.Error("expected a decision log entry for the auto-pause")
	}
}

func TestCatastrophicWinrateDemotesToShadowTrade(t *testing.T) {
	cfg := baseConfig()
	cfg.RollingTradesCount = 7
	cfg.RollingWinrate = 0
	store := &fakeStore{cfg: cfg}
	logger := &fakeLogger{}
	o := New(store, logger)

	if err := o.OnTradeClosed(context.Background(), 1, "EURUSD", domain.Buy, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.cfg.RollingTradesCount != 8 {
		t.Fatalf("expected rolling count 8, got %d", store.cfg.RollingTradesCount)
	}
	if store.cfg.Status != domain.ConfigShadowTrade {
		t.Errorf("expected shadow_trade demotion at 0%% win rate over 8+ trades, got %v", store.cfg.Status)
	}
}

func TestResumeExpiredPausesReactivatesAfterCooldown(t *testing.T) {
	store := &fakeStore{cfg: baseConfig()}
	logger := &fakeLogger{}
	o := New(store, logger)
	old := time.Now().UTC().Add(-25 * time.Hour)
	paused := baseConfig()
	paused.Status = domain.ConfigPaused
	paused.PausedAt = &old

	o.ResumeExpiredPauses(context.Background(), []*domain.SymbolTradingConfig{paused})
	if paused.Status != domain.ConfigActive {
		t.Errorf("expected config reactivated after cooldown elapsed, got %v", paused.Status)
	}
	if paused.PausedAt != nil {
		t.Error("expected PausedAt cleared on resume")
	}
}

func TestResumeExpiredPausesLeavesRecentPauseUntouched(t *testing.T) {
	store := &fakeStore{cfg: baseConfig()}
	logger := &fakeLogger{}
	o := New(store, logger)
	recent := time.Now().UTC().Add(-1 * time.Hour)
	paused := baseConfig()
	paused.Status = domain.ConfigPaused
	paused.PausedAt = &recent

	o.ResumeExpiredPauses(context.Background(), []*domain.SymbolTradingConfig{paused})
	if paused.Status != domain.ConfigPaused {
		t.Errorf("expected config to remain paused before cooldown elapses, got %v", paused.Status)
	}
}
