package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MikeHotel0815/ngTradingBot-sub001/config"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/domain"
)

type fakeStore struct {
	accounts []*domain.Account
	subs     map[int64][]domain.SubscribedSymbol
}

func (f *fakeStore) ListActiveAccounts(ctx context.Context) ([]*domain.Account, error) {
	return f.accounts, nil
}
func (f *fakeStore) ListSubscriptions(ctx context.Context, accountNumber int64) ([]domain.SubscribedSymbol, error) {
	return f.subs[accountNumber], nil
}
func (f *fakeStore) ListSymbolConfigs(ctx context.Context, accountNumber int64) ([]*domain.SymbolTradingConfig, error) {
	return nil, nil
}
func (f *fakeStore) ExpireStaleSignals(ctx context.Context, maxAge, deleteAfter time.Duration) (int64, int64, error) {
	return 0, 0, nil
}
func (f *fakeStore) DeleteStaleTicks(ctx context.Context) (int64, error) { return 0, nil }

type countingSignals struct{ calls int32 }

func (c *countingSignals) Generate(ctx context.Context, accountNumber int64, instrument string, tf domain.Timeframe) error {
	atomic.AddInt32(&c.calls, 1)
	return nil
}

type countingScanner struct{ calls int32 }

func (c *countingScanner) Scan(ctx context.Context) { atomic.AddInt32(&c.calls, 1) }

func TestRunSignalLoopSkipsInactiveAndShadowSubscriptions(t *testing.T) {
	store := &fakeStore{
		accounts: []*domain.Account{{AccountNumber: 1}},
		subs: map[int64][]domain.SubscribedSymbol{
			1: {
				{Instrument: "EURUSD", Active: true, ShadowMode: false},
				{Instrument: "GBPUSD", Active: false, ShadowMode: false},
				{Instrument: "USDJPY", Active: true, ShadowMode: true},
			},
		},
	}
	gen := &countingSignals{}
	s := New(Deps{Store: store, Signals: gen}, config.SignalConfig{}, config.AutoTraderConfig{}, config.TradeMonitorConfig{}, config.DrawdownConfig{}, config.SchedulerConfig{})

	s.runSignalLoop(context.Background())

	if int(gen.calls) != len(signalTimeframes) {
		t.Errorf("expected one Generate call per signal timeframe for the single active non-shadow subscription (%d), got %d", len(signalTimeframes), gen.calls)
	}
}

func TestStartSpawnsOnlyEnabledLoopsAndStopJoinsThem(t *testing.T) {
	store := &fakeStore{}
	monitor := &countingScanner{}
	s := New(Deps{Store: store, Monitor: monitor}, config.SignalConfig{}, config.AutoTraderConfig{},
		config.TradeMonitorConfig{ScanInterval: 10 * time.Millisecond}, config.DrawdownConfig{}, config.SchedulerConfig{CleanupInterval: time.Hour, TickCleanupInterval: time.Hour})

	s.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	s.Stop()

	if atomic.LoadInt32(&monitor.calls) == 0 {
		t.Error("expected the trade monitor loop to have run at least once")
	}
}

func TestStartSpawnsCircuitBreakerLoopWhenConfigured(t *testing.T) {
	store := &fakeStore{}
	breaker := &countingScanner{}
	s := New(Deps{Store: store, Circuit: breaker}, config.SignalConfig{}, config.AutoTraderConfig{},
		config.TradeMonitorConfig{}, config.DrawdownConfig{}, config.SchedulerConfig{
			CleanupInterval: time.Hour, TickCleanupInterval: time.Hour, CircuitCheckInterval: 10 * time.Millisecond,
		})

	s.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	s.Stop()

	if atomic.LoadInt32(&breaker.calls) == 0 {
		t.Error("expected the circuit breaker loop to have run at least once")
	}
}
