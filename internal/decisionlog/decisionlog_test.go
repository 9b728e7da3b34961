package decisionlog

import (
	"context"
	"testing"
	"time"

	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/domain"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/events"
)

type fakeStore struct {
	entries []domain.DecisionLogEntry
	err     error
}

func (f *fakeStore) AppendDecision(ctx context.Context, d domain.DecisionLogEntry) error {
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, d)
	return nil
}

func TestAppendWritesAndPublishes(t *testing.T) {
	store := &fakeStore{}
	bus := events.NewEventBus()
	received := make(chan events.Event, 1)
	bus.Subscribe(events.EventDecisionLogged, func(e events.Event) { received <- e })

	l := New(store, bus)
	acc := int64(7)
	err := l.Append(context.Background(), domain.DecisionLogEntry{AccountNumber: &acc, Type: domain.DecisionTradeOpen, Outcome: "opened"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.entries) != 1 {
		t.Fatalf("expected the entry to be persisted, got %d entries", len(store.entries))
	}

	select {
	case e := <-received:
		if e.Data["outcome"] != "opened" {
			t.Errorf("expected published event to carry the outcome, got %+v", e.Data)
		}
	case <-time.After(time.Second):
		t.Error("expected the decision to be published to the event bus")
	}
}

func TestAppendSafeSwallowsError(t *testing.T) {
	store := &fakeStore{err: context.DeadlineExceeded}
	l := New(store, nil)
	l.AppendSafe(context.Background(), domain.DecisionLogEntry{Type: domain.DecisionTradeSkip})
}
