package store

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/domain"
)

const configSelect = `
	SELECT account_number, instrument, direction, status, min_confidence_threshold, risk_multiplier,
	       consecutive_wins, consecutive_losses, rolling_winrate, rolling_trades_count, pause_reason,
	       paused_at, updated_by, updated_at
	FROM symbol_trading_configs`

func scanConfig(row rowScanner) (*domain.SymbolTradingConfig, error) {
	c := &domain.SymbolTradingConfig{}
	err := row.Scan(&c.AccountNumber, &c.Instrument, &c.Direction, &c.Status, &c.MinConfidenceThreshold,
		&c.RiskMultiplier, &c.ConsecutiveWins, &c.ConsecutiveLosses, &c.RollingWinrate, &c.RollingTradesCount,
		&c.PauseReason, &c.PausedAt, &c.UpdatedBy, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetSymbolConfig fetches an (account, instrument, direction) config, falling
// back to an active default with neutral thresholds if none exists yet.
func (s *Store) GetSymbolConfig(ctx context.Context, accountNumber int64, instrument string, direction domain.Direction) (*domain.SymbolTradingConfig, error) {
	row := s.Pool.QueryRow(ctx, configSelect+` WHERE account_number=$1 AND instrument=$2 AND direction=$3`,
		accountNumber, instrument, direction)
	c, err := scanConfig(row)
	if err == pgx.ErrNoRows {
		return &domain.SymbolTradingConfig{
			AccountNumber:          accountNumber,
			Instrument:             instrument,
			Direction:              direction,
			Status:                 domain.ConfigActive,
			MinConfidenceThreshold: 60,
			RiskMultiplier:         1.0,
			UpdatedBy:              "default",
		}, nil
	}
	return c, err
}

// ListSymbolConfigs returns every config row for an account, used by the
// optimizer's rolling sweep and the dashboard's overview.
func (s *Store) ListSymbolConfigs(ctx context.Context, accountNumber int64) ([]*domain.SymbolTradingConfig, error) {
	rows, err := s.Pool.Query(ctx, configSelect+` WHERE account_number=$1 ORDER BY instrument, direction`, accountNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.SymbolTradingConfig
	for rows.Next() {
		c, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpsertSymbolConfig writes the full config row, used by the optimizer after
// recomputing thresholds and by the dashboard's manual pause/resume actions.
func (s *Store) UpsertSymbolConfig(ctx context.Context, c *domain.SymbolTradingConfig) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO symbol_trading_configs (account_number, instrument, direction, status,
			min_confidence_threshold, risk_multiplier, consecutive_wins, consecutive_losses,
			rolling_winrate, rolling_trades_count, pause_reason, paused_at, updated_by, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,NOW())
		ON CONFLICT (account_number, instrument, direction) DO UPDATE SET
			status=$4, min_confidence_threshold=$5, risk_multiplier=$6, consecutive_wins=$7,
			consecutive_losses=$8, rolling_winrate=$9, rolling_trades_count=$10, pause_reason=$11,
			paused_at=$12, updated_by=$13, updated_at=NOW()
	`, c.AccountNumber, c.Instrument, c.Direction, c.Status, c.MinConfidenceThreshold, c.RiskMultiplier,
		c.ConsecutiveWins, c.ConsecutiveLosses, c.RollingWinrate, c.RollingTradesCount, c.PauseReason,
		c.PausedAt, c.UpdatedBy)
	return err
}
