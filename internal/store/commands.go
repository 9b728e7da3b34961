package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/domain"
)

// EnqueueCommand inserts a pending command for delivery on the account's next
// heartbeat, per spec.md §4.7's command queue.
func (s *Store) EnqueueCommand(ctx context.Context, cmd *domain.Command) error {
	payload, err := json.Marshal(cmd.Payload)
	if err != nil {
		return fmt.Errorf("marshal command payload: %w", err)
	}
	_, err = s.Pool.Exec(ctx, `
		INSERT INTO commands (id, account_number, command_type, payload, status, timeout_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, cmd.ID, cmd.AccountNumber, cmd.Type, payload, cmd.Status, cmd.TimeoutAt)
	return err
}

func scanCommand(row rowScanner) (*domain.Command, error) {
	c := &domain.Command{}
	var payload, response []byte
	err := row.Scan(&c.ID, &c.AccountNumber, &c.Type, &payload, &c.Status, &c.CreatedAt,
		&c.PickedAt, &c.CompletedAt, &c.TimeoutAt, &c.ErrorMessage, &response, &c.LinkedTicket, &c.RedeliveryCount)
	if err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &c.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal command payload: %w", err)
		}
	}
	if len(response) > 0 {
		if err := json.Unmarshal(response, &c.Response); err != nil {
			return nil, fmt.Errorf("unmarshal command response: %w", err)
		}
	}
	return c, nil
}

const commandSelect = `
	SELECT id, account_number, command_type, payload, status, created_at, picked_at, completed_at,
	       timeout_at, error_message, response, linked_ticket, redelivery_count
	FROM commands`

// PickPendingCommands fetches and marks as in_flight up to `limit` pending
// commands for an account (spec.md §4.7: "the heartbeat response returns up
// to N, default 10, pending commands"), oldest-first.
func (s *Store) PickPendingCommands(ctx context.Context, accountNumber int64, limit int) ([]*domain.Command, error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("pick commands: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, commandSelect+`
		WHERE account_number=$1 AND status='pending' ORDER BY created_at LIMIT $2
	`, accountNumber, limit)
	if err != nil {
		return nil, err
	}
	var out []*domain.Command
	for rows.Next() {
		c, err := scanCommand(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, c := range out {
		if _, err := tx.Exec(ctx, `UPDATE commands SET status='in_flight', picked_at=NOW() WHERE id=$1`, c.ID); err != nil {
			return nil, fmt.Errorf("pick commands: mark in_flight: %w", err)
		}
		c.Status = domain.CommandInFlight
	}
	return out, tx.Commit(ctx)
}

// GetCommand fetches a single command by id.
func (s *Store) GetCommand(ctx context.Context, id string) (*domain.Command, error) {
	row := s.Pool.QueryRow(ctx, commandSelect+` WHERE id=$1`, id)
	c, err := scanCommand(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return c, err
}

// CompleteCommand records a successful EA response, linking the resulting
// broker ticket when present (OPEN_TRADE acknowledgements).
func (s *Store) CompleteCommand(ctx context.Context, id string, response map[string]interface{}, linkedTicket *int64) error {
	resp, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("marshal command response: %w", err)
	}
	_, err = s.Pool.Exec(ctx, `
		UPDATE commands SET status='completed', completed_at=NOW(), response=$2, linked_ticket=$3
		WHERE id=$1
	`, id, resp, linkedTicket)
	return err
}

// FailCommand records a terminal EA-reported failure.
func (s *Store) FailCommand(ctx context.Context, id string, errMsg string) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE commands SET status='failed', completed_at=NOW(), error_message=$2 WHERE id=$1
	`, id, errMsg)
	return err
}

// RedeliverOrTimeoutCommands finds in_flight commands past their timeout_at
// and either re-queues them as pending (redelivery_count < 2) or marks them
// timeout. The only clock is each command's timeout_at: the age since
// picked_at is not checked, and no command is marked failed here.
func (s *Store) RedeliverOrTimeoutCommands(ctx context.Context) (redelivered, timedOut int64, err error) {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE commands SET status='pending', redelivery_count=redelivery_count+1, picked_at=NULL
		WHERE status='in_flight' AND timeout_at < NOW() AND redelivery_count < 2
	`)
	if err != nil {
		return 0, 0, fmt.Errorf("redeliver commands: %w", err)
	}
	redelivered = tag.RowsAffected()

	tag, err = s.Pool.Exec(ctx, `
		UPDATE commands SET status='timeout', completed_at=NOW(), error_message='delivery timed out twice'
		WHERE status='in_flight' AND timeout_at < NOW() AND redelivery_count >= 2
	`)
	if err != nil {
		return redelivered, 0, fmt.Errorf("timeout commands: %w", err)
	}
	timedOut = tag.RowsAffected()
	return redelivered, timedOut, nil
}

// CountPendingCommands returns the account's current pending-queue depth,
// used to raise a PERFORMANCE_ALERT when delivery backs up (spec.md §4.7
// CommandQueueConfig.PendingAlertThreshold).
func (s *Store) CountPendingCommands(ctx context.Context, accountNumber int64) (int, error) {
	var n int
	err := s.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM commands WHERE account_number=$1 AND status='pending'
	`, accountNumber).Scan(&n)
	return n, err
}

// CountConsecutiveFailedCommands counts the most recent commands for an
// account that ended in failed/timeout, stopping at the first
// completed one — feeds the circuit breaker's failure-streak gate.
func (s *Store) CountConsecutiveFailedCommands(ctx context.Context, accountNumber int64, lookback time.Duration) (int, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT status FROM commands
		WHERE account_number=$1 AND status IN ('completed','failed','timeout') AND created_at > $2
		ORDER BY created_at DESC
	`, accountNumber, time.Now().UTC().Add(-lookback))
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	streak := 0
	for rows.Next() {
		var status string
		if err := rows.Scan(&status); err != nil {
			return streak, err
		}
		if status == "completed" {
			break
		}
		streak++
	}
	return streak, rows.Err()
}
