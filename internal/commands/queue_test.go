package commands

import (
	"context"
	"testing"
	"time"

	"github.com/MikeHotel0815/ngTradingBot-sub001/config"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/domain"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/events"
)

type fakeStore struct {
	enqueued []*domain.Command
	pending  int
}

type fakeLogger struct {
	decisions []domain.DecisionLogEntry
}

func (f *fakeLogger) AppendSafe(ctx context.Context, d domain.DecisionLogEntry) {
	f.decisions = append(f.decisions, d)
}

func (f *fakeStore) EnqueueCommand(ctx context.Context, cmd *domain.Command) error {
	f.enqueued = append(f.enqueued, cmd)
	return nil
}
func (f *fakeStore) PickPendingCommands(ctx context.Context, accountNumber int64, limit int) ([]*domain.Command, error) {
	return nil, nil
}
func (f *fakeStore) GetCommand(ctx context.Context, id string) (*domain.Command, error) {
	return nil, nil
}
func (f *fakeStore) RedeliverOrTimeoutCommands(ctx context.Context) (int64, int64, error) {
	return 0, 0, nil
}
func (f *fakeStore) CountPendingCommands(ctx context.Context, accountNumber int64) (int, error) {
	return f.pending, nil
}
func TestCommandIDIsStablePerCall(t *testing.T) {
	now := time.Now()
	a := CommandID("signal-1", now)
	b := CommandID("signal-1", now)
	if a != b {
		t.Errorf("expected CommandID to be deterministic for the same input, got %q and %q", a, b)
	}
	c := CommandID("signal-2", now)
	if a == c {
		t.Errorf("expected different signal ids to produce different command ids")
	}
}

func TestOpenTradeCommandShape(t *testing.T) {
	cmd := OpenTrade(12345, "sig-1", "EURUSD", domain.Buy, 0.1, 1.0950, 1.1050, 1.1000, 5*time.Minute)
	if cmd.Type != domain.CmdOpenTrade {
		t.Errorf("expected CmdOpenTrade, got %v", cmd.Type)
	}
	if cmd.Status != domain.CommandPending {
		t.Errorf("expected pending status, got %v", cmd.Status)
	}
	if cmd.Payload["instrument"] != "EURUSD" {
		t.Errorf("expected instrument EURUSD in payload, got %v", cmd.Payload["instrument"])
	}
}

func TestEmitAlertsOnQueueBacklog(t *testing.T) {
	store := &fakeStore{pending: 51}
	logger := &fakeLogger{}
	q := New(store, events.NewEventBus(), logger, config.CommandQueueConfig{HeartbeatBatchSize: 10, PendingAlertThreshold: 50})

	cmd := OpenTrade(1, "sig-1", "EURUSD", domain.Buy, 0.1, 1.09, 1.11, 1.10, time.Minute)
	if err := q.Emit(context.Background(), cmd); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.enqueued) != 1 {
		t.Fatalf("expected one enqueued command, got %d", len(store.enqueued))
	}
	if len(logger.decisions) != 1 {
		t.Fatalf("expected a backlog alert decision log entry, got %d", len(logger.decisions))
	}
	if logger.decisions[0].Type != domain.DecisionPerformanceAlert {
		t.Errorf("expected DecisionPerformanceAlert, got %v", logger.decisions[0].Type)
	}
}

func TestEmitSkipsAlertUnderThreshold(t *testing.T) {
	store := &fakeStore{pending: 2}
	logger := &fakeLogger{}
	q := New(store, events.NewEventBus(), logger, config.CommandQueueConfig{HeartbeatBatchSize: 10, PendingAlertThreshold: 50})

	cmd := OpenTrade(1, "sig-1", "EURUSD", domain.Buy, 0.1, 1.09, 1.11, 1.10, time.Minute)
	if err := q.Emit(context.Background(), cmd); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(logger.decisions) != 0 {
		t.Errorf("expected no alert below threshold, got %d", len(logger.decisions))
	}
}
