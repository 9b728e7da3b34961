// Package commands is the thin orchestration layer over internal/store's
// durable FIFO command queue (spec.md §4.7): it builds well-formed Command
// values with collision-resistant ids, hands the heartbeat handler its
// bounded batch, runs the periodic redelivery/timeout sweep, and raises a
// queue-depth alert before delivery backs up.
package commands

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/MikeHotel0815/ngTradingBot-sub001/config"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/domain"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/events"
)

// Store is the subset of internal/store the command queue depends on.
type Store interface {
	EnqueueCommand(ctx context.Context, cmd *domain.Command) error
	PickPendingCommands(ctx context.Context, accountNumber int64, limit int) ([]*domain.Command, error)
	GetCommand(ctx context.Context, id string) (*domain.Command, error)
	RedeliverOrTimeoutCommands(ctx context.Context) (redelivered, timedOut int64, err error)
	CountPendingCommands(ctx context.Context, accountNumber int64) (int, error)
}

// DecisionLogger is the subset of internal/decisionlog.Logger the queue
// depends on.
type DecisionLogger interface {
	AppendSafe(ctx context.Context, d domain.DecisionLogEntry)
}

// Queue wraps store command operations with the cadence/limits of
// config.CommandQueueConfig.
type Queue struct {
	store  Store
	bus    *events.EventBus
	logger DecisionLogger
	cfg    config.CommandQueueConfig
}

func New(store Store, bus *events.EventBus, logger DecisionLogger, cfg config.CommandQueueConfig) *Queue {
	return &Queue{store: store, bus: bus, logger: logger, cfg: cfg}
}

// CommandID derives the client-unique command id of spec.md §4.6 step 11:
// hash(signal_id || timestamp). The timestamp is taken at nanosecond
// resolution, so the same signal id and the same instant always give the
// same id, while any other instant gives a different one.
func CommandID(signalID string, at time.Time) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d", signalID, at.UnixNano())))
	return hex.EncodeToString(sum[:])[:32]
}

// OpenTrade builds an OPEN_TRADE command per spec.md §4.6 step 11.
func OpenTrade(accountNumber int64, signalID string, instrument string, direction domain.Direction, volume, sl, tp, entryHint float64, timeout time.Duration) *domain.Command {
	now := time.Now().UTC()
	return &domain.Command{
		ID:            CommandID(signalID, now),
		AccountNumber: accountNumber,
		Type:          domain.CmdOpenTrade,
		Status:        domain.CommandPending,
		TimeoutAt:     now.Add(timeout),
		Payload: map[string]interface{}{
			"instrument": instrument,
			"direction":  string(direction),
			"volume":     volume,
			"sl":         sl,
			"tp":         tp,
			"entry_hint": entryHint,
			"comment":    signalID,
		},
	}
}

// Emit persists a command and publishes its issuance event.
func (q *Queue) Emit(ctx context.Context, cmd *domain.Command) error {
	if err := q.store.EnqueueCommand(ctx, cmd); err != nil {
		return fmt.Errorf("enqueue command: %w", err)
	}
	q.bus.PublishCommandIssued(cmd.AccountNumber, cmd.ID, string(cmd.Type))

	if n, err := q.store.CountPendingCommands(ctx, cmd.AccountNumber); err == nil && n >= q.cfg.PendingAlertThreshold {
		entry := domain.DecisionLogEntry{
			Type: domain.DecisionPerformanceAlert, Outcome: "warning",
			Reason:  fmt.Sprintf("pending command queue depth %d exceeds threshold %d", n, q.cfg.PendingAlertThreshold),
			Context: map[string]interface{}{"account_number": cmd.AccountNumber},
		}
		entry.AccountNumber = &cmd.AccountNumber
		q.logger.AppendSafe(ctx, entry)
	}
	return nil
}

// Deliver returns the batch of commands to embed in a heartbeat response,
// bounded by config.HeartbeatBatchSize, transitioning them to in_flight.
func (q *Queue) Deliver(ctx context.Context, accountNumber int64) ([]*domain.Command, error) {
	return q.store.PickPendingCommands(ctx, accountNumber, q.cfg.HeartbeatBatchSize)
}

// Sweep runs the periodic redelivery/timeout pass (spec.md §4.7: "in_flight
// for more than 2 min without a response are reverted to pending and
// redelivered at most twice before being marked failed").
func (q *Queue) Sweep(ctx context.Context) (redelivered, timedOut int64, err error) {
	return q.store.RedeliverOrTimeoutCommands(ctx)
}
