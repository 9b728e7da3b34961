// Package store is the relational persistence layer: a pgxpool-backed
// connection plus migration-managed schema and query methods for every
// entity in internal/domain. It is the source of truth; internal/cache is
// advisory only.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Config holds the connection parameters for the relational store.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// Store wraps the PostgreSQL connection pool and exposes the repository
// methods used by every component (accounts.go, market.go, signals.go,
// trades.go, commands.go, shadow.go, configs.go, logs.go).
type Store struct {
	Pool *pgxpool.Pool
}

// New opens a pooled connection to PostgreSQL, matching the pool tuning the
// teacher uses (25 max / 5 min conns, hourly lifetime, 30-min idle timeout).
func New(ctx context.Context, cfg Config) (*Store, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse store config: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(connectCtx); err != nil {
		return nil, fmt.Errorf("unable to ping store: %w", err)
	}

	log.Info().Str("database", cfg.Database).Msg("store connected")
	return &Store{Pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	if s.Pool != nil {
		s.Pool.Close()
		log.Info().Msg("store connection closed")
	}
}

// HealthCheck pings the pool; used by the dashboard's /healthz.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

// Migrate creates every table this core needs, idempotently. Global tables
// carry no account foreign key; account-scoped tables require account_number.
func (s *Store) Migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			account_number BIGINT PRIMARY KEY,
			broker_label VARCHAR(100) NOT NULL DEFAULT '',
			api_key_hash VARCHAR(128) NOT NULL,
			balance DECIMAL(20,2) NOT NULL DEFAULT 0,
			equity DECIMAL(20,2) NOT NULL DEFAULT 0,
			margin DECIMAL(20,2) NOT NULL DEFAULT 0,
			free_margin DECIMAL(20,2) NOT NULL DEFAULT 0,
			last_heartbeat TIMESTAMP,
			risk_profile VARCHAR(20) NOT NULL DEFAULT 'moderate',
			auto_trading_enabled BOOLEAN NOT NULL DEFAULT TRUE,
			circuit_tripped BOOLEAN NOT NULL DEFAULT FALSE,
			circuit_reason TEXT NOT NULL DEFAULT '',
			circuit_tripped_at TIMESTAMP,
			start_of_day_balance DECIMAL(20,2) NOT NULL DEFAULT 0,
			peak_balance DECIMAL(20,2) NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS broker_symbols (
			instrument VARCHAR(20) PRIMARY KEY,
			digits INT NOT NULL,
			point DECIMAL(20,10) NOT NULL,
			min_volume DECIMAL(20,8) NOT NULL,
			max_volume DECIMAL(20,8) NOT NULL,
			step_volume DECIMAL(20,8) NOT NULL,
			contract_size DECIMAL(20,8) NOT NULL DEFAULT 100000,
			tick_size DECIMAL(20,10) NOT NULL,
			tick_value DECIMAL(20,8) NOT NULL,
			stops_level INT NOT NULL DEFAULT 0,
			max_spread_pips DECIMAL(10,2) NOT NULL DEFAULT 3.0,
			updated_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS subscribed_symbols (
			account_number BIGINT NOT NULL REFERENCES accounts(account_number) ON DELETE CASCADE,
			instrument VARCHAR(20) NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			shadow_mode BOOLEAN NOT NULL DEFAULT FALSE,
			state VARCHAR(20) NOT NULL DEFAULT 'live',
			PRIMARY KEY (account_number, instrument)
		)`,
		`CREATE TABLE IF NOT EXISTS ticks (
			instrument VARCHAR(20) NOT NULL,
			timestamp TIMESTAMP NOT NULL,
			bid DECIMAL(20,10) NOT NULL,
			ask DECIMAL(20,10) NOT NULL,
			volume DECIMAL(20,8) NOT NULL DEFAULT 0,
			tradeable BOOLEAN NOT NULL DEFAULT TRUE,
			PRIMARY KEY (instrument, timestamp)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ticks_instrument_ts ON ticks(instrument, timestamp DESC)`,
		`CREATE TABLE IF NOT EXISTS ohlc_data (
			instrument VARCHAR(20) NOT NULL,
			timeframe VARCHAR(5) NOT NULL,
			open_time TIMESTAMP NOT NULL,
			open DECIMAL(20,10) NOT NULL,
			high DECIMAL(20,10) NOT NULL,
			low DECIMAL(20,10) NOT NULL,
			close DECIMAL(20,10) NOT NULL,
			volume DECIMAL(20,8) NOT NULL DEFAULT 0,
			PRIMARY KEY (instrument, timeframe, open_time)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ohlc_instrument_tf_time ON ohlc_data(instrument, timeframe, open_time DESC)`,
		`CREATE TABLE IF NOT EXISTS trading_signals (
			id BIGSERIAL PRIMARY KEY,
			instrument VARCHAR(20) NOT NULL,
			timeframe VARCHAR(5) NOT NULL,
			direction VARCHAR(4) NOT NULL,
			confidence DECIMAL(6,2) NOT NULL,
			suggested_entry DECIMAL(20,10) NOT NULL,
			suggested_sl DECIMAL(20,10) NOT NULL,
			suggested_tp DECIMAL(20,10) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'active',
			is_valid BOOLEAN NOT NULL DEFAULT TRUE,
			snapshot JSONB NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			expires_at TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_signals_one_active
			ON trading_signals(instrument, timeframe, direction) WHERE status = 'active'`,
		`CREATE TABLE IF NOT EXISTS trades (
			id BIGSERIAL PRIMARY KEY,
			account_number BIGINT NOT NULL REFERENCES accounts(account_number) ON DELETE CASCADE,
			ticket BIGINT NOT NULL,
			instrument VARCHAR(20) NOT NULL,
			direction VARCHAR(4) NOT NULL,
			volume DECIMAL(20,8) NOT NULL,
			open_price DECIMAL(20,10) NOT NULL,
			open_time TIMESTAMP NOT NULL,
			close_price DECIMAL(20,10),
			close_time TIMESTAMP,
			sl DECIMAL(20,10) NOT NULL DEFAULT 0,
			tp DECIMAL(20,10) NOT NULL DEFAULT 0,
			initial_sl DECIMAL(20,10) NOT NULL DEFAULT 0,
			initial_tp DECIMAL(20,10) NOT NULL DEFAULT 0,
			profit DECIMAL(20,2) NOT NULL DEFAULT 0,
			commission DECIMAL(20,2) NOT NULL DEFAULT 0,
			swap DECIMAL(20,2) NOT NULL DEFAULT 0,
			status VARCHAR(10) NOT NULL DEFAULT 'open',
			source VARCHAR(20) NOT NULL DEFAULT 'autotrade',
			close_reason VARCHAR(30),
			signal_id BIGINT REFERENCES trading_signals(id) ON DELETE SET NULL,
			command_id VARCHAR(64),
			session VARCHAR(20),
			trailing_stop_active BOOLEAN NOT NULL DEFAULT FALSE,
			trailing_stop_moves INT NOT NULL DEFAULT 0,
			tp_extended_count INT NOT NULL DEFAULT 0,
			partial_closed_stages INT NOT NULL DEFAULT 0,
			hold_duration_minutes DECIMAL(10,2) NOT NULL DEFAULT 0,
			pips_captured DECIMAL(10,2) NOT NULL DEFAULT 0,
			risk_reward_realized DECIMAL(10,4) NOT NULL DEFAULT 0,
			mfe DECIMAL(20,2) NOT NULL DEFAULT 0,
			mae DECIMAL(20,2) NOT NULL DEFAULT 0,
			entry_volatility DECIMAL(20,10) NOT NULL DEFAULT 0,
			entry_spread DECIMAL(20,10) NOT NULL DEFAULT 0,
			entry_bid DECIMAL(20,10) NOT NULL DEFAULT 0,
			entry_ask DECIMAL(20,10) NOT NULL DEFAULT 0,
			last_sl_update_at TIMESTAMP,
			last_reconcile_miss INT NOT NULL DEFAULT 0,
			UNIQUE(account_number, ticket)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_open ON trades(account_number, status) WHERE status = 'open'`,
		`CREATE TABLE IF NOT EXISTS commands (
			id VARCHAR(64) PRIMARY KEY,
			account_number BIGINT NOT NULL REFERENCES accounts(account_number) ON DELETE CASCADE,
			command_type VARCHAR(30) NOT NULL,
			payload JSONB NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			picked_at TIMESTAMP,
			completed_at TIMESTAMP,
			timeout_at TIMESTAMP NOT NULL,
			error_message TEXT NOT NULL DEFAULT '',
			response JSONB,
			linked_ticket BIGINT,
			redelivery_count INT NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_commands_pending ON commands(account_number, status, created_at)`,
		`CREATE TABLE IF NOT EXISTS shadow_trades (
			id BIGSERIAL PRIMARY KEY,
			account_number BIGINT NOT NULL REFERENCES accounts(account_number) ON DELETE CASCADE,
			instrument VARCHAR(20) NOT NULL,
			direction VARCHAR(4) NOT NULL,
			entry_price DECIMAL(20,10) NOT NULL,
			sl DECIMAL(20,10) NOT NULL,
			tp DECIMAL(20,10) NOT NULL,
			entry_time TIMESTAMP NOT NULL DEFAULT NOW(),
			exit_price DECIMAL(20,10),
			exit_time TIMESTAMP,
			hypothetical_profit DECIMAL(20,2) NOT NULL DEFAULT 0,
			signal_id BIGINT REFERENCES trading_signals(id) ON DELETE SET NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_shadow_exit ON shadow_trades(exit_time DESC) WHERE exit_time IS NOT NULL`,
		`CREATE TABLE IF NOT EXISTS symbol_trading_configs (
			account_number BIGINT NOT NULL REFERENCES accounts(account_number) ON DELETE CASCADE,
			instrument VARCHAR(20) NOT NULL,
			direction VARCHAR(4) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'active',
			min_confidence_threshold DECIMAL(6,2) NOT NULL DEFAULT 60,
			risk_multiplier DECIMAL(6,2) NOT NULL DEFAULT 1.0,
			consecutive_wins INT NOT NULL DEFAULT 0,
			consecutive_losses INT NOT NULL DEFAULT 0,
			rolling_winrate DECIMAL(6,2) NOT NULL DEFAULT 0,
			rolling_trades_count INT NOT NULL DEFAULT 0,
			pause_reason TEXT NOT NULL DEFAULT '',
			paused_at TIMESTAMP,
			updated_by VARCHAR(50) NOT NULL DEFAULT 'optimizer',
			updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
			PRIMARY KEY (account_number, instrument, direction)
		)`,
		`CREATE TABLE IF NOT EXISTS indicator_scores (
			instrument VARCHAR(20) NOT NULL,
			timeframe VARCHAR(5) NOT NULL,
			indicator_name VARCHAR(40) NOT NULL,
			score DECIMAL(6,2) NOT NULL DEFAULT 50,
			sample_count INT NOT NULL DEFAULT 0,
			updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
			PRIMARY KEY (instrument, timeframe, indicator_name)
		)`,
		`CREATE TABLE IF NOT EXISTS logs (
			id BIGSERIAL PRIMARY KEY,
			account_number BIGINT REFERENCES accounts(account_number) ON DELETE CASCADE,
			level VARCHAR(10) NOT NULL,
			message TEXT NOT NULL,
			details JSONB,
			timestamp TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_logs_account_ts ON logs(account_number, timestamp DESC)`,
		`CREATE TABLE IF NOT EXISTS decision_log (
			id BIGSERIAL PRIMARY KEY,
			account_number BIGINT REFERENCES accounts(account_number) ON DELETE CASCADE,
			decision_type VARCHAR(30) NOT NULL,
			outcome VARCHAR(20) NOT NULL,
			reason TEXT NOT NULL,
			context JSONB,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_decision_log_account_ts ON decision_log(account_number, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS account_risk_state (
			account_number BIGINT PRIMARY KEY REFERENCES accounts(account_number) ON DELETE CASCADE,
			sl_ceiling_currency DECIMAL(12,2) NOT NULL DEFAULT 0,
			risk_reward_multiplier DECIMAL(6,2) NOT NULL DEFAULT 1.0,
			performance_factor DECIMAL(6,3) NOT NULL DEFAULT 1.0,
			daily_recomputed_at TIMESTAMP,
			weekly_recomputed_at TIMESTAMP
		)`,

		`CREATE OR REPLACE FUNCTION update_touched_at_column()
		RETURNS TRIGGER AS $$
		BEGIN
			NEW.updated_at = NOW();
			RETURN NEW;
		END;
		$$ language 'plpgsql'`,
		`DROP TRIGGER IF EXISTS trg_accounts_touched ON accounts`,
		`CREATE TRIGGER trg_accounts_touched BEFORE UPDATE ON accounts
		FOR EACH ROW EXECUTE FUNCTION update_touched_at_column()`,
		`DROP TRIGGER IF EXISTS trg_symbol_configs_touched ON symbol_trading_configs`,
		`CREATE TRIGGER trg_symbol_configs_touched BEFORE UPDATE ON symbol_trading_configs
		FOR EACH ROW EXECUTE FUNCTION update_touched_at_column()`,
	}

	for i, migration := range migrations {
		if _, err := s.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	log.Info().Int("count", len(migrations)).Msg("store migrations applied")
	return nil
}
