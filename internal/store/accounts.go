package store

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/domain"
)

// IssueAPIKey generates a fresh opaque 32-byte api-key the way the teacher's
// JWTManager.GenerateRefreshToken does — the EA cannot perform a signature
// round-trip, so the key must be a plain bearer secret, not a JWT.
func IssueAPIKey() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return base64.URLEncoding.EncodeToString(raw), nil
}

func hashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// ConnectAccount implements the connect call of spec.md §4.1: unknown
// account numbers are created with a fresh api-key. Known ones return the
// existing account with an empty api-key, since only the key's SHA-256 hash
// is stored; the plaintext key is returned once, on creation, and never again.
func (s *Store) ConnectAccount(ctx context.Context, accountNumber int64, brokerLabel string) (acc *domain.Account, apiKey string, created bool, err error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, "", false, fmt.Errorf("connect account: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	existing, err := s.getAccountTx(ctx, tx, accountNumber)
	if err != nil && err != pgx.ErrNoRows {
		return nil, "", false, fmt.Errorf("connect account: lookup: %w", err)
	}
	if existing != nil {
		if err := tx.Commit(ctx); err != nil {
			return nil, "", false, err
		}
		return existing, "", false, nil // existing key is never re-returned in plaintext; caller must already hold it
	}

	apiKey, err = IssueAPIKey()
	if err != nil {
		return nil, "", false, err
	}
	now := time.Now().UTC()
	acc = &domain.Account{
		AccountNumber:      accountNumber,
		BrokerLabel:        brokerLabel,
		APIKeyHash:         hashAPIKey(apiKey),
		RiskProfile:        domain.RiskModerate,
		AutoTradingEnabled: true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO accounts (account_number, broker_label, api_key_hash, risk_profile, auto_trading_enabled)
		VALUES ($1, $2, $3, $4, $5)
	`, acc.AccountNumber, acc.BrokerLabel, acc.APIKeyHash, acc.RiskProfile, acc.AutoTradingEnabled)
	if err != nil {
		return nil, "", false, fmt.Errorf("connect account: insert: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, "", false, err
	}
	return acc, apiKey, true, nil
}

// AuthenticateAPIKey looks up the account matching the presented api-key.
func (s *Store) AuthenticateAPIKey(ctx context.Context, accountNumber int64, apiKey string) (*domain.Account, error) {
	acc, err := s.GetAccount(ctx, accountNumber)
	if err != nil {
		return nil, err
	}
	if acc.APIKeyHash != hashAPIKey(apiKey) {
		return nil, fmt.Errorf("api key mismatch")
	}
	return acc, nil
}

func (s *Store) getAccountTx(ctx context.Context, tx pgx.Tx, accountNumber int64) (*domain.Account, error) {
	row := tx.QueryRow(ctx, accountSelect+` WHERE account_number = $1`, accountNumber)
	return scanAccount(row)
}

const accountSelect = `
	SELECT account_number, broker_label, api_key_hash, balance, equity, margin, free_margin,
	       last_heartbeat, risk_profile, auto_trading_enabled, circuit_tripped, circuit_reason,
	       circuit_tripped_at, start_of_day_balance, peak_balance, created_at, updated_at
	FROM accounts`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	a := &domain.Account{}
	err := row.Scan(
		&a.AccountNumber, &a.BrokerLabel, &a.APIKeyHash, &a.Balance, &a.Equity, &a.Margin, &a.FreeMargin,
		&a.LastHeartbeat, &a.RiskProfile, &a.AutoTradingEnabled, &a.CircuitTripped, &a.CircuitReason,
		&a.CircuitTrippedAt, &a.StartOfDayBalance, &a.PeakBalance, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetAccount fetches a single account by number.
func (s *Store) GetAccount(ctx context.Context, accountNumber int64) (*domain.Account, error) {
	row := s.Pool.QueryRow(ctx, accountSelect+` WHERE account_number = $1`, accountNumber)
	return scanAccount(row)
}

// ListActiveAccounts returns every account, for the schedulers to iterate.
func (s *Store) ListActiveAccounts(ctx context.Context) ([]*domain.Account, error) {
	rows, err := s.Pool.Query(ctx, accountSelect+` ORDER BY account_number`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdateHeartbeat refreshes balance/equity/margin and last_heartbeat, and
// advances peak_balance whenever equity sets a new high-water mark — the
// input the circuit breaker's total-drawdown trip condition reads back.
func (s *Store) UpdateHeartbeat(ctx context.Context, accountNumber int64, balance, equity, margin, freeMargin float64) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE accounts SET balance=$2, equity=$3, margin=$4, free_margin=$5, last_heartbeat=NOW(),
			peak_balance=GREATEST(peak_balance, $3)
		WHERE account_number=$1
	`, accountNumber, balance, equity, margin, freeMargin)
	return err
}

// SetAutoTrading flips the account's auto-trading-enabled flag, persisted so
// a process restart cannot silently re-enable it (spec.md §9 global mutable
// state note).
func (s *Store) SetAutoTrading(ctx context.Context, accountNumber int64, enabled bool) error {
	_, err := s.Pool.Exec(ctx, `UPDATE accounts SET auto_trading_enabled=$2 WHERE account_number=$1`, accountNumber, enabled)
	return err
}

// TripCircuitBreaker persists the tripped state and reason.
func (s *Store) TripCircuitBreaker(ctx context.Context, accountNumber int64, reason string) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE accounts SET circuit_tripped=TRUE, circuit_reason=$2, circuit_tripped_at=NOW(), auto_trading_enabled=FALSE
		WHERE account_number=$1
	`, accountNumber, reason)
	return err
}

// ResetCircuitBreaker clears the tripped state (operator action or cooldown).
func (s *Store) ResetCircuitBreaker(ctx context.Context, accountNumber int64) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE accounts SET circuit_tripped=FALSE, circuit_reason='', circuit_tripped_at=NULL, auto_trading_enabled=TRUE
		WHERE account_number=$1
	`, accountNumber)
	return err
}

// RolloverStartOfDayBalance snapshots today's opening balance; called once
// per UTC day by the scheduler so drawdown protection has a fixed baseline.
func (s *Store) RolloverStartOfDayBalance(ctx context.Context, accountNumber int64) error {
	_, err := s.Pool.Exec(ctx, `UPDATE accounts SET start_of_day_balance = balance WHERE account_number=$1`, accountNumber)
	return err
}
