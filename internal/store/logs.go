package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/domain"
)

// InsertLog writes an EA or server-originated log line, used by the log
// ingestion endpoint and internal components reporting operational events.
func (s *Store) InsertLog(ctx context.Context, l domain.LogEntry) error {
	details, err := json.Marshal(l.Details)
	if err != nil {
		return fmt.Errorf("marshal log details: %w", err)
	}
	_, err = s.Pool.Exec(ctx, `
		INSERT INTO logs (account_number, level, message, details, timestamp)
		VALUES ($1,$2,$3,$4,$5)
	`, l.AccountNumber, l.Level, l.Message, details, l.Timestamp)
	return err
}

// RecentLogs returns the most recent log lines for an account, newest first.
func (s *Store) RecentLogs(ctx context.Context, accountNumber int64, limit int) ([]domain.LogEntry, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, account_number, level, message, details, timestamp
		FROM logs WHERE account_number=$1 ORDER BY timestamp DESC LIMIT $2
	`, accountNumber, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.LogEntry
	for rows.Next() {
		var l domain.LogEntry
		var details []byte
		if err := rows.Scan(&l.ID, &l.AccountNumber, &l.Level, &l.Message, &details, &l.Timestamp); err != nil {
			return nil, err
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &l.Details); err != nil {
				return nil, fmt.Errorf("unmarshal log details: %w", err)
			}
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// AppendDecision writes an entry to the append-only decision audit trail
// (spec.md §4.9 / §6) — every automated gate, skip, or override is logged
// here regardless of outcome.
func (s *Store) AppendDecision(ctx context.Context, d domain.DecisionLogEntry) error {
	context_, err := json.Marshal(d.Context)
	if err != nil {
		return fmt.Errorf("marshal decision context: %w", err)
	}
	_, err = s.Pool.Exec(ctx, `
		INSERT INTO decision_log (account_number, decision_type, outcome, reason, context, created_at)
		VALUES ($1,$2,$3,$4,$5,NOW())
	`, d.AccountNumber, d.Type, d.Outcome, d.Reason, context_)
	return err
}

// RecentDecisions returns the most recent decision-log entries for an
// account, newest first, for the dashboard's audit view.
func (s *Store) RecentDecisions(ctx context.Context, accountNumber int64, limit int) ([]domain.DecisionLogEntry, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, account_number, decision_type, outcome, reason, context, created_at
		FROM decision_log WHERE account_number=$1 ORDER BY created_at DESC LIMIT $2
	`, accountNumber, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.DecisionLogEntry
	for rows.Next() {
		var d domain.DecisionLogEntry
		var ctxJSON []byte
		if err := rows.Scan(&d.ID, &d.AccountNumber, &d.Type, &d.Outcome, &d.Reason, &ctxJSON, &d.CreatedAt); err != nil {
			return nil, err
		}
		if len(ctxJSON) > 0 {
			if err := json.Unmarshal(ctxJSON, &d.Context); err != nil {
				return nil, fmt.Errorf("unmarshal decision context: %w", err)
			}
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
