package circuit

import (
	"context"
	"testing"
	"time"

	"github.com/MikeHotel0815/ngTradingBot-sub001/config"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/domain"
)

type fakeStore struct {
	accounts []*domain.Account
	streaks  map[int64]int
	tripped  map[int64]string
	resetIDs []int64
}

type fakeLogger struct {
	decisions []domain.DecisionLogEntry
}

func (f *fakeLogger) AppendSafe(ctx context.Context, d domain.DecisionLogEntry) {
	f.decisions = append(f.decisions, d)
}

func (f *fakeStore) ListActiveAccounts(ctx context.Context) ([]*domain.Account, error) { return f.accounts, nil }
func (f *fakeStore) CountConsecutiveFailedCommands(ctx context.Context, accountNumber int64, lookback time.Duration) (int, error) {
	return f.streaks[accountNumber], nil
}
func (f *fakeStore) TripCircuitBreaker(ctx context.Context, accountNumber int64, reason string) error {
	f.tripped[accountNumber] = reason
	return nil
}
func (f *fakeStore) ResetCircuitBreaker(ctx context.Context, accountNumber int64) error {
	f.resetIDs = append(f.resetIDs, accountNumber)
	delete(f.tripped, accountNumber)
	return nil
}
func newFakeStore() *fakeStore {
	return &fakeStore{streaks: map[int64]int{}, tripped: map[int64]string{}}
}

func testCfg() config.AutoTraderConfig {
	return config.AutoTraderConfig{
		DailyLossCircuitPct:     5,
		TotalDrawdownCircuitPct: 20,
		ConsecutiveFailuresTrip: 5,
		FailureCooldown:         5 * time.Minute,
	}
}

func TestScanTripsOnDailyLoss(t *testing.T) {
	store := newFakeStore()
	store.accounts = []*domain.Account{{
		AccountNumber: 1, StartOfDayBalance: 1000, Balance: 940, Equity: 940, PeakBalance: 1000,
	}}
	b := New(store, &fakeLogger{}, testCfg())

	b.Scan(context.Background())

	if _, ok := store.tripped[1]; !ok {
		t.Fatalf("expected account tripped on 6%% daily loss")
	}
}

func TestScanTripsOnTotalDrawdown(t *testing.T) {
	store := newFakeStore()
	store.accounts = []*domain.Account{{
		AccountNumber: 1, StartOfDayBalance: 1000, Balance: 995, Equity: 790, PeakBalance: 1000,
	}}
	b := New(store, &fakeLogger{}, testCfg())

	b.Scan(context.Background())

	if reason, ok := store.tripped[1]; !ok {
		t.Fatalf("expected account tripped on 21%% drawdown from peak")
	} else if reason[:5] != "total" {
		t.Errorf("expected total_drawdown reason, got %q", reason)
	}
}

func TestScanTripsOnConsecutiveFailures(t *testing.T) {
	store := newFakeStore()
	store.accounts = []*domain.Account{{AccountNumber: 1, StartOfDayBalance: 1000, Balance: 1000, Equity: 1000, PeakBalance: 1000}}
	store.streaks[1] = 5
	b := New(store, &fakeLogger{}, testCfg())

	b.Scan(context.Background())

	if reason, ok := store.tripped[1]; !ok || reason[:20] != "consecutive_failures" {
		t.Fatalf("expected consecutive_failures trip, got %q", reason)
	}
}

func TestScanLeavesHealthyAccountUntripped(t *testing.T) {
	store := newFakeStore()
	store.accounts = []*domain.Account{{AccountNumber: 1, StartOfDayBalance: 1000, Balance: 998, Equity: 998, PeakBalance: 1000}}
	b := New(store, &fakeLogger{}, testCfg())

	b.Scan(context.Background())

	if _, ok := store.tripped[1]; ok {
		t.Fatalf("expected no trip for a healthy account")
	}
}

func TestScanAutoResumesFailureTripAfterCooldown(t *testing.T) {
	store := newFakeStore()
	past := time.Now().Add(-10 * time.Minute)
	store.accounts = []*domain.Account{{
		AccountNumber: 1, CircuitTripped: true, CircuitReason: "consecutive_failures: 5 commands failed in a row (limit 5)",
		CircuitTrippedAt: &past,
	}}
	b := New(store, &fakeLogger{}, testCfg())

	b.Scan(context.Background())

	if len(store.resetIDs) != 1 {
		t.Fatalf("expected auto-resume, got resetIDs=%v", store.resetIDs)
	}
}

func TestScanDoesNotAutoResumeLossTrip(t *testing.T) {
	store := newFakeStore()
	past := time.Now().Add(-10 * time.Minute)
	store.accounts = []*domain.Account{{
		AccountNumber: 1, CircuitTripped: true, CircuitReason: "daily_loss: balance down 6.00% from start-of-day (limit 5.00%)",
		CircuitTrippedAt: &past,
	}}
	b := New(store, &fakeLogger{}, testCfg())

	b.Scan(context.Background())

	if len(store.resetIDs) != 0 {
		t.Fatalf("expected no auto-resume for a loss-type trip, got %v", store.resetIDs)
	}
}

func TestScanDoesNotAutoResumeBeforeCooldownElapses(t *testing.T) {
	store := newFakeStore()
	recent := time.Now().Add(-1 * time.Minute)
	store.accounts = []*domain.Account{{
		AccountNumber: 1, CircuitTripped: true, CircuitReason: "consecutive_failures: 5 commands failed in a row (limit 5)",
		CircuitTrippedAt: &recent,
	}}
	b := New(store, &fakeLogger{}, testCfg())

	b.Scan(context.Background())

	if len(store.resetIDs) != 0 {
		t.Fatalf("expected no auto-resume before cooldown elapses, got %v", store.resetIDs)
	}
}
