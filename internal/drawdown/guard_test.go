package drawdown

import (
	"context"
	"testing"

	"github.com/MikeHotel0815/ngTradingBot-sub001/config"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/commands"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/domain"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/events"
)

type fakeStore struct {
	accounts  []*domain.Account
	realized  map[int64]float64
	open      map[int64][]*domain.Trade
	autoFlags map[int64]bool
	tripped   map[int64]string
}

type fakeLogger struct {
	decisions []domain.DecisionLogEntry
}

func (f *fakeLogger) AppendSafe(ctx context.Context, d domain.DecisionLogEntry) {
	f.decisions = append(f.decisions, d)
}

func (f *fakeStore) ListActiveAccounts(ctx context.Context) ([]*domain.Account, error) { return f.accounts, nil }
func (f *fakeStore) TodayRealizedPnL(ctx context.Context, accountNumber int64) (float64, error) {
	return f.realized[accountNumber], nil
}
func (f *fakeStore) ListOpenTradesForAccount(ctx context.Context, accountNumber int64) ([]*domain.Trade, error) {
	return f.open[accountNumber], nil
}
func (f *fakeStore) SetAutoTrading(ctx context.Context, accountNumber int64, enabled bool) error {
	f.autoFlags[accountNumber] = enabled
	return nil
}
func (f *fakeStore) TripCircuitBreaker(ctx context.Context, accountNumber int64, reason string) error {
	f.tripped[accountNumber] = reason
	return nil
}
func (f *fakeStore) EnqueueCommand(ctx context.Context, cmd *domain.Command) error { return nil }
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

func newFakeStore() *fakeStore {
	return &fakeStore{
		realized:  map[int64]float64{},
		open:      map[int64][]*domain.Trade{},
		autoFlags: map[int64]bool{},
		tripped:   map[int64]string{},
	}
}

func testGuard(store *fakeStore) (*Guard, *fakeLogger) {
	logger := &fakeLogger{}
	q := commands.New(store, events.NewEventBus(), logger, config.CommandQueueConfig{HeartbeatBatchSize: 10, PendingAlertThreshold: 50})
	cfg := config.DrawdownConfig{SoftWarningPct: 2, DailyLossLimitPct: 5, EmergencyLimitPct: 10}
	return New(store, q, logger, cfg), logger
}

func account(n int64, startBalance float64) *domain.Account {
	return &domain.Account{AccountNumber: n, StartOfDayBalance: startBalance, AutoTradingEnabled: true}
}

func TestScanSoftWarnsUnderLimit(t *testing.T) {
	store := newFakeStore()
	acc := account(1, 1000)
	store.accounts = []*domain.Account{acc}
	store.realized[1] = -30 // 3% loss, above soft warning (2%) below pause (5%)
	g, logger := testGuard(store)

	g.Scan(context.Background())

	if _, paused := store.autoFlags[1]; paused {
		t.Errorf("expected no auto-trading change at soft-warning level")
	}
	if len(logger.decisions) != 1 || logger.decisions[0].Outcome != "soft_warning" {
		t.Fatalf("expected a single soft_warning decision, got %+v", logger.decisions)
	}
}

func TestScanPausesAtDailyLossLimit(t *testing.T) {
	store := newFakeStore()
	acc := account(1, 1000)
	store.accounts = []*domain.Account{acc}
	store.realized[1] = -60 // 6% loss

	g, _ := testGuard(store)
	g.Scan(context.Background())

	if enabled, ok := store.autoFlags[1]; !ok || enabled {
		t.Fatalf("expected auto-trading disabled at daily loss limit")
	}
}

func TestScanTripsAndForceClosesAtEmergencyLimit(t *testing.T) {
	store := newFakeStore()
	acc := account(1, 1000)
	store.accounts = []*domain.Account{acc}
	store.realized[1] = -110 // 11% loss
	store.open[1] = []*domain.Trade{{ID: 5, AccountNumber: 1, Ticket: 555, Instrument: "EURUSD"}}

	g, logger := testGuard(store)
	g.Scan(context.Background())

	if _, tripped := store.tripped[1]; !tripped {
		t.Fatalf("expected circuit breaker tripped at emergency limit")
	}
	foundEmergencyDecision := false
	for _, d := range logger.decisions {
		if d.Outcome == "emergency_stop" {
			foundEmergencyDecision = true
		}
	}
	if !foundEmergencyDecision {
		t.Errorf("expected an emergency_stop decision log entry")
	}
}

func TestScanSkipsAccountsWithoutStartOfDayBalance(t *testing.T) {
	store := newFakeStore()
	acc := account(1, 0)
	store.accounts = []*domain.Account{acc}

	g, logger := testGuard(store)
	g.Scan(context.Background())

	if len(logger.decisions) != 0 {
		t.Errorf("expected no decisions when start-of-day balance is unset, got %d", len(logger.decisions))
	}
}
