package store

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/domain"
)

// GetRiskState fetches an account's dynamic-risk knobs, falling back to a
// neutral default (multiplier 1.0, no SL override) before the first daily
// recompute has run.
func (s *Store) GetRiskState(ctx context.Context, accountNumber int64) (*domain.AccountRiskState, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT account_number, sl_ceiling_currency, risk_reward_multiplier, performance_factor,
		       daily_recomputed_at, weekly_recomputed_at
		FROM account_risk_state WHERE account_number=$1
	`, accountNumber)
	st := &domain.AccountRiskState{}
	err := row.Scan(&st.AccountNumber, &st.SLCeilingCurrency, &st.RiskRewardMultiplier, &st.PerformanceFactor,
		&st.DailyRecomputedAt, &st.WeeklyRecomputedAt)
	if err == pgx.ErrNoRows {
		return &domain.AccountRiskState{AccountNumber: accountNumber, RiskRewardMultiplier: 1.0, PerformanceFactor: 1.0}, nil
	}
	return st, err
}

// UpsertRiskState writes the full recomputed state row.
func (s *Store) UpsertRiskState(ctx context.Context, st *domain.AccountRiskState) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO account_risk_state (account_number, sl_ceiling_currency, risk_reward_multiplier,
			performance_factor, daily_recomputed_at, weekly_recomputed_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (account_number) DO UPDATE SET
			sl_ceiling_currency=$2, risk_reward_multiplier=$3, performance_factor=$4,
			daily_recomputed_at=COALESCE($5, account_risk_state.daily_recomputed_at),
			weekly_recomputed_at=COALESCE($6, account_risk_state.weekly_recomputed_at)
	`, st.AccountNumber, st.SLCeilingCurrency, st.RiskRewardMultiplier, st.PerformanceFactor,
		st.DailyRecomputedAt, st.WeeklyRecomputedAt)
	return err
}

// RecentTradeWinRate computes the win rate over the last N closed trades
// across all instruments for an account, the sample the dynamic risk
// manager's performance factor is derived from.
func (s *Store) RecentTradeWinRate(ctx context.Context, accountNumber int64, sampleSize int) (winRate float64, profitFactor float64, count int, err error) {
	row := s.Pool.QueryRow(ctx, `
		WITH recent AS (
			SELECT profit FROM trades WHERE account_number=$1 AND status='closed'
			ORDER BY close_time DESC LIMIT $2
		)
		SELECT
			COUNT(*),
			COALESCE(COUNT(*) FILTER (WHERE profit > 0)::float / NULLIF(COUNT(*), 0), 0),
			COALESCE(SUM(profit) FILTER (WHERE profit > 0), 0) / NULLIF(ABS(SUM(profit) FILTER (WHERE profit < 0)), 0)
		FROM recent
	`, accountNumber, sampleSize)
	var pf *float64
	if err := row.Scan(&count, &winRate, &pf); err != nil {
		return 0, 0, 0, err
	}
	if pf != nil {
		profitFactor = *pf
	}
	return winRate, profitFactor, count, nil
}
