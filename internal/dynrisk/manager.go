// Package dynrisk implements spec.md §4.11's dynamic risk manager: a daily
// job recomputes each account's SL ceiling from its balance and recent
// performance, and a weekly job recomputes the risk:reward multiplier the
// signal generator blends into SL/TP selection. Both jobs are grounded on
// the teacher's balance-scaled position-sizing idiom in
// internal/risk/manager.go, generalized from a single static percentage
// into the spec's growth/performance-factor formula.
package dynrisk

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/MikeHotel0815/ngTradingBot-sub001/config"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/apperr"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/domain"
)

// Store is the subset of internal/store the dynamic risk manager depends on.
type Store interface {
	ListActiveAccounts(ctx context.Context) ([]*domain.Account, error)
	GetRiskState(ctx context.Context, accountNumber int64) (*domain.AccountRiskState, error)
	UpsertRiskState(ctx context.Context, st *domain.AccountRiskState) error
	RecentTradeWinRate(ctx context.Context, accountNumber int64, sampleSize int) (winRate, profitFactor float64, count int, err error)
}

// DecisionLogger is the subset of internal/decisionlog.Logger the risk
// manager depends on.
type DecisionLogger interface {
	AppendSafe(ctx context.Context, d domain.DecisionLogEntry)
}

// Manager recomputes and persists each account's dynamic risk knobs.
type Manager struct {
	store  Store
	logger DecisionLogger
	cfg    config.RiskConfig
	risk   config.RiskProfileConfig
}

func New(store Store, logger DecisionLogger, cfg config.RiskConfig, defaultProfile config.RiskProfileConfig) *Manager {
	return &Manager{store: store, logger: logger, cfg: cfg, risk: defaultProfile}
}

// RecomputeDaily updates every active account's SL ceiling. The scheduler
// calls it every SchedulerConfig.DynamicRiskInterval;
// config.RiskConfig.DailyRecomputeHour is not read.
func (m *Manager) RecomputeDaily(ctx context.Context) {
	accounts, err := m.store.ListActiveAccounts(ctx)
	if err != nil {
		log.Error().Err(err).Msg("dynrisk: failed to list active accounts for daily recompute")
		return
	}
	for _, acc := range accounts {
		m.recomputeDailyOne(ctx, acc)
	}
}

func (m *Manager) recomputeDailyOne(ctx context.Context, acc *domain.Account) {
	var profitFactor float64
	var count int
	err := apperr.Retry(ctx, func() error {
		var rerr error
		_, profitFactor, count, rerr = m.store.RecentTradeWinRate(ctx, acc.AccountNumber, m.cfg.PerformanceWindowTrades)
		return apperr.Wrap(apperr.Transient, "recent trade win rate lookup", rerr)
	})
	if err != nil {
		m.escalate(ctx, acc.AccountNumber, "recent_trade_win_rate", err)
		return
	}
	perfFactor := m.performanceFactor(profitFactor, count)

	ceiling := acc.Balance * (m.risk.MaxLossPerTradePct / 100) * m.cfg.GrowthFactor * perfFactor * m.cfg.DefaultSymbolWeight

	var st *domain.AccountRiskState
	err = apperr.Retry(ctx, func() error {
		var rerr error
		st, rerr = m.store.GetRiskState(ctx, acc.AccountNumber)
		return apperr.Wrap(apperr.Transient, "risk state lookup", rerr)
	})
	if err != nil {
		m.escalate(ctx, acc.AccountNumber, "risk_state_lookup", err)
		return
	}
	st.SLCeilingCurrency = ceiling
	st.PerformanceFactor = perfFactor
	now := time.Now().UTC()
	st.DailyRecomputedAt = &now

	err = apperr.Retry(ctx, func() error {
		return apperr.Wrap(apperr.Transient, "risk state persist", m.store.UpsertRiskState(ctx, st))
	})
	if err != nil {
		m.escalate(ctx, acc.AccountNumber, "risk_state_persist", err)
		return
	}
	m.log(ctx, acc.AccountNumber, "daily_recompute", profitFactor, ceiling, st.RiskRewardMultiplier)
}

// RecomputeWeekly updates every active account's risk:reward multiplier. The
// scheduler calls it every SchedulerConfig.RRRecalcInterval;
// config.RiskConfig.WeeklyRecomputeWeekday is not read.
func (m *Manager) RecomputeWeekly(ctx context.Context) {
	accounts, err := m.store.ListActiveAccounts(ctx)
	if err != nil {
		log.Error().Err(err).Msg("dynrisk: failed to list active accounts for weekly recompute")
		return
	}
	for _, acc := range accounts {
		m.recomputeWeeklyOne(ctx, acc)
	}
}

func (m *Manager) recomputeWeeklyOne(ctx context.Context, acc *domain.Account) {
	var profitFactor float64
	var count int
	err := apperr.Retry(ctx, func() error {
		var rerr error
		_, profitFactor, count, rerr = m.store.RecentTradeWinRate(ctx, acc.AccountNumber, m.cfg.PerformanceWindowTrades)
		return apperr.Wrap(apperr.Transient, "recent trade win rate lookup", rerr)
	})
	if err != nil {
		m.escalate(ctx, acc.AccountNumber, "recent_trade_win_rate", err)
		return
	}
	perfFactor := m.performanceFactor(profitFactor, count)

	var st *domain.AccountRiskState
	err = apperr.Retry(ctx, func() error {
		var rerr error
		st, rerr = m.store.GetRiskState(ctx, acc.AccountNumber)
		return apperr.Wrap(apperr.Transient, "risk state lookup", rerr)
	})
	if err != nil {
		m.escalate(ctx, acc.AccountNumber, "risk_state_lookup", err)
		return
	}

	multiplier := st.RiskRewardMultiplier * perfFactor
	if multiplier < m.cfg.MinRiskRewardMultiplier {
		multiplier = m.cfg.MinRiskRewardMultiplier
	}
	if multiplier > m.cfg.MaxRiskRewardMultiplier {
		multiplier = m.cfg.MaxRiskRewardMultiplier
	}
	st.RiskRewardMultiplier = multiplier
	st.PerformanceFactor = perfFactor
	now := time.Now().UTC()
	st.WeeklyRecomputedAt = &now

	err = apperr.Retry(ctx, func() error {
		return apperr.Wrap(apperr.Transient, "risk state persist", m.store.UpsertRiskState(ctx, st))
	})
	if err != nil {
		m.escalate(ctx, acc.AccountNumber, "risk_state_persist", err)
		return
	}
	m.log(ctx, acc.AccountNumber, "weekly_recompute", profitFactor, st.SLCeilingCurrency, multiplier)
}

// performanceFactor maps a trailing profit factor to a multiplier in
// [PerformanceFactorMin, PerformanceFactorMax], piecewise: a profit factor
// of 0.8 or less gets the floor, 0.8-1.0 interpolates linearly from the floor
// up to the neutral 1.0, 1.0-1.5 interpolates from 1.0 up to the ceiling, and
// 1.5 or more gets the ceiling. An account with fewer than 5 trades gets the
// neutral 1.0.
func (m *Manager) performanceFactor(profitFactor float64, count int) float64 {
	if count < 5 {
		return 1.0
	}
	switch {
	case profitFactor <= 0.8:
		return m.cfg.PerformanceFactorMin
	case profitFactor < 1.0:
		return lerp(profitFactor, 0.8, 1.0, m.cfg.PerformanceFactorMin, 1.0)
	case profitFactor < 1.5:
		return lerp(profitFactor, 1.0, 1.5, 1.0, m.cfg.PerformanceFactorMax)
	default:
		return m.cfg.PerformanceFactorMax
	}
}

func lerp(x, x0, x1, y0, y1 float64) float64 {
	if x1 == x0 {
		return y0
	}
	return y0 + (y1-y0)*(x-x0)/(x1-x0)
}

func (m *Manager) log(ctx context.Context, accountNumber int64, kind string, profitFactor, ceiling, multiplier float64) {
	acc := accountNumber
	entry := domain.DecisionLogEntry{
		AccountNumber: &acc, Type: domain.DecisionOptimizationRun, Outcome: kind,
		Context: map[string]interface{}{
			"profit_factor": profitFactor, "sl_ceiling_currency": ceiling, "risk_reward_multiplier": multiplier,
		},
	}
	m.logger.AppendSafe(ctx, entry)
}

// escalate logs a retry-exhausted store failure and appends a decision-log
// entry so the outage is visible without stalling the recompute sweep.
func (m *Manager) escalate(ctx context.Context, accountNumber int64, op string, err error) {
	log.Error().Err(err).Int64("account_number", accountNumber).Str("op", op).Msg("dynrisk: store call failed after retries")
	acc := accountNumber
	m.logger.AppendSafe(ctx, domain.DecisionLogEntry{
		AccountNumber: &acc, Type: domain.DecisionRetryExhausted, Outcome: "escalated",
		Reason:  fmt.Sprintf("%s: %v", op, err),
		Context: map[string]interface{}{"op": op},
	})
}
