// Package optimizer implements spec.md §4.12's per-closed-trade
// SymbolTradingConfig adjustment: confidence threshold and risk multiplier
// drift on win/loss streaks, an additional rolling-window correction once a
// symbol has enough samples, a 3-consecutive-loss auto-pause, and a
// catastrophic-performance shadow demotion. Grounded on the teacher's
// internal/autopilot consecutive win/loss adjustment idiom, generalized to
// the spec's exact thresholds and two independent adjustment passes
// (per-trade, then rolling-window).
package optimizer

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/apperr"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/domain"
)

const (
	lossThresholdStep = 5.0
	lossThresholdCap  = 80.0
	winThresholdStep  = 1.0
	winThresholdFloor = 45.0

	lossStreakRiskCutStreak = 2
	lossStreakRiskCut       = 0.10
	riskMultiplierFloor     = 0.10

	winStreakRiskBumpStreak = 3
	winStreakRiskBump       = 0.05
	riskMultiplierCeiling   = 2.00

	rollingWindowMinTrades  = 10
	rollingWinrateLowPct    = 40.0
	rollingWinrateHighPct   = 65.0
	rollingLowThresholdStep = 5.0
	rollingLowRiskCut       = 0.20
	rollingHighThresholdCut = 2.0

	autoPauseLossStreak     = 3
	autoPauseCooldown       = 24 * time.Hour
	catastrophicMinTrades   = 8
)

// Store is the subset of internal/store the optimizer depends on.
type Store interface {
	GetSymbolConfig(ctx context.Context, accountNumber int64, instrument string, direction domain.Direction) (*domain.SymbolTradingConfig, error)
	UpsertSymbolConfig(ctx context.Context, c *domain.SymbolTradingConfig) error
}

// DecisionLogger is the subset of internal/decisionlog.Logger the optimizer
// depends on.
type DecisionLogger interface {
	AppendSafe(ctx context.Context, d domain.DecisionLogEntry)
}

// Optimizer applies the adjustment rules to one (account, instrument,
// direction) config after a trade closes.
type Optimizer struct {
	store  Store
	logger DecisionLogger
}

func New(store Store, logger DecisionLogger) *Optimizer {
	return &Optimizer{store: store, logger: logger}
}

// OnTradeClosed applies both the per-trade and rolling-window adjustment
// passes for the config backing a just-closed trade. win is profit > 0.
func (o *Optimizer) OnTradeClosed(ctx context.Context, accountNumber int64, instrument string, direction domain.Direction, win bool) error {
	var cfg *domain.SymbolTradingConfig
	err := apperr.Retry(ctx, func() error {
		var rerr error
		cfg, rerr = o.store.GetSymbolConfig(ctx, accountNumber, instrument, direction)
		return apperr.Wrap(apperr.Transient, "symbol config lookup", rerr)
	})
	if err != nil {
		o.escalate(ctx, accountNumber, "symbol_config_lookup", err)
		return err
	}

	o.applyPerTradeAdjustment(cfg, win)
	o.applyRollingWindowAdjustment(cfg)
	o.applyPauseAndDemotionRules(cfg)

	cfg.UpdatedBy = "optimizer"
	err = apperr.Retry(ctx, func() error {
		return apperr.Wrap(apperr.Transient, "symbol config persist", o.store.UpsertSymbolConfig(ctx, cfg))
	})
	if err != nil {
		o.escalate(ctx, accountNumber, "symbol_config_persist", err)
		return err
	}
	o.logIfChanged(ctx, cfg)
	return nil
}

// escalate logs a retry-exhausted store failure and appends a decision-log
// entry so the outage is visible without propagating beyond the caller.
func (o *Optimizer) escalate(ctx context.Context, accountNumber int64, op string, err error) {
	log.Error().Err(err).Int64("account_number", accountNumber).Str("op", op).Msg("optimizer: store call failed after retries")
	acc := accountNumber
	o.logger.AppendSafe(ctx, domain.DecisionLogEntry{
		AccountNumber: &acc, Type: domain.DecisionRetryExhausted, Outcome: "escalated",
		Reason:  fmt.Sprintf("%s: %v", op, err),
		Context: map[string]interface{}{"op": op},
	})
}

func (o *Optimizer) applyPerTradeAdjustment(cfg *domain.SymbolTradingConfig, win bool) {
	recordRollingOutcome(cfg, win)

	if win {
		cfg.ConsecutiveWins++
		cfg.ConsecutiveLosses = 0
		cfg.MinConfidenceThreshold -= winThresholdStep
		if cfg.MinConfidenceThreshold < winThresholdFloor {
			cfg.MinConfidenceThreshold = winThresholdFloor
		}
		if cfg.ConsecutiveWins >= winStreakRiskBumpStreak {
			cfg.RiskMultiplier = minf(riskMultiplierCeiling, cfg.RiskMultiplier+winStreakRiskBump)
		}
		return
	}

	cfg.ConsecutiveLosses++
	cfg.ConsecutiveWins = 0
	cfg.MinConfidenceThreshold += lossThresholdStep
	if cfg.MinConfidenceThreshold > lossThresholdCap {
		cfg.MinConfidenceThreshold = lossThresholdCap
	}
	if cfg.ConsecutiveLosses >= lossStreakRiskCutStreak {
		cfg.RiskMultiplier = maxf(riskMultiplierFloor, cfg.RiskMultiplier-lossStreakRiskCut)
	}
}

// recordRollingOutcome folds the just-closed trade into the rolling
// win-rate sample before the streak/threshold rules read it.
func recordRollingOutcome(cfg *domain.SymbolTradingConfig, win bool) {
	total := cfg.RollingTradesCount + 1
	wins := cfg.RollingWinrate * float64(cfg.RollingTradesCount)
	if win {
		wins++
	}
	cfg.RollingTradesCount = total
	cfg.RollingWinrate = wins / float64(total)
}

func (o *Optimizer) applyRollingWindowAdjustment(cfg *domain.SymbolTradingConfig) {
	if cfg.RollingTradesCount < rollingWindowMinTrades {
		return
	}
	winratePct := cfg.RollingWinrate * 100
	switch {
	case winratePct < rollingWinrateLowPct:
		cfg.MinConfidenceThreshold += rollingLowThresholdStep
		if cfg.MinConfidenceThreshold > lossThresholdCap {
			cfg.MinConfidenceThreshold = lossThresholdCap
		}
		cfg.RiskMultiplier = maxf(riskMultiplierFloor, cfg.RiskMultiplier-rollingLowRiskCut)
	case winratePct > rollingWinrateHighPct:
		cfg.MinConfidenceThreshold -= rollingHighThresholdCut
		if cfg.MinConfidenceThreshold < winThresholdFloor {
			cfg.MinConfidenceThreshold = winThresholdFloor
		}
	}
}

func (o *Optimizer) applyPauseAndDemotionRules(cfg *domain.SymbolTradingConfig) {
	if cfg.RollingTradesCount >= catastrophicMinTrades && cfg.RollingWinrate == 0 {
		cfg.Status = domain.ConfigShadowTrade
		cfg.PauseReason = "catastrophic performance: 0% win rate over 8+ trades"
		now := time.Now().UTC()
		cfg.PausedAt = &now
		return
	}
	if cfg.ConsecutiveLosses >= autoPauseLossStreak && cfg.Status == domain.ConfigActive {
		cfg.Status = domain.ConfigPaused
		cfg.PauseReason = "3 consecutive losses, cooling down"
		now := time.Now().UTC()
		cfg.PausedAt = &now
	}
}

// ResumeExpiredPauses reactivates any (account, instrument, direction)
// config whose 24h auto-pause cooldown has elapsed. Intended to run on the
// scheduler's sweep cadence alongside the command queue sweep.
func (o *Optimizer) ResumeExpiredPauses(ctx context.Context, configs []*domain.SymbolTradingConfig) {
	now := time.Now().UTC()
	for _, cfg := range configs {
		if cfg.Status != domain.ConfigPaused || cfg.PausedAt == nil {
			continue
		}
		if now.Sub(*cfg.PausedAt) < autoPauseCooldown {
			continue
		}
		cfg.Status = domain.ConfigActive
		cfg.PauseReason = ""
		cfg.PausedAt = nil
		cfg.UpdatedBy = "optimizer"
		if err := o.store.UpsertSymbolConfig(ctx, cfg); err != nil {
			log.Error().Err(err).Str("instrument", cfg.Instrument).Msg("optimizer: failed to resume expired pause")
		}
	}
}

func (o *Optimizer) logIfChanged(ctx context.Context, cfg *domain.SymbolTradingConfig) {
	if cfg.Status == domain.ConfigActive {
		return
	}
	acc := cfg.AccountNumber
	entry := domain.DecisionLogEntry{
		AccountNumber: &acc, Type: domain.DecisionOptimizationRun, Outcome: string(cfg.Status),
		Reason:  cfg.PauseReason,
		Context: map[string]interface{}{"instrument": cfg.Instrument, "direction": cfg.Direction},
	}
	o.logger.AppendSafe(ctx, entry)
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
