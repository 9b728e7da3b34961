package shadow

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/domain"
)

// RunRecovery sweeps every shadow-status config for an account and promotes
// any whose trailing-window simulated performance clears all three of
// config.ShadowConfig's recovery gates (spec.md §4.10): minimum trade count,
// minimum win rate, and minimum total hypothetical profit.
func (e *Engine) RunRecovery(ctx context.Context, accountNumber int64) {
	configs, err := e.store.ListSymbolConfigs(ctx, accountNumber)
	if err != nil {
		log.Error().Err(err).Int64("account_number", accountNumber).Msg("shadow: failed to list symbol configs for recovery sweep")
		return
	}
	for _, cfg := range configs {
		if cfg.Status != domain.ConfigShadowTrade {
			continue
		}
		e.evaluateRecovery(ctx, cfg)
	}
}

func (e *Engine) evaluateRecovery(ctx context.Context, cfg *domain.SymbolTradingConfig) {
	stats, err := e.store.GetShadowRecoveryStats(ctx, cfg.AccountNumber, cfg.Instrument, cfg.Direction, e.cfg.RecoveryWindowDays)
	if err != nil {
		log.Error().Err(err).Str("instrument", cfg.Instrument).Msg("shadow: recovery stats lookup failed")
		return
	}
	if stats.TradeCount < e.cfg.RecoveryMinCount {
		return
	}
	if stats.WinRate()*100 < e.cfg.RecoveryMinWinRate {
		return
	}
	if stats.TotalHypotheticalPL < e.cfg.RecoveryMinProfit {
		return
	}

	cfg.Status = domain.ConfigActive
	cfg.PauseReason = ""
	cfg.PausedAt = nil
	cfg.UpdatedBy = "shadow_recovery"
	if err := e.store.UpsertSymbolConfig(ctx, cfg); err != nil {
		log.Error().Err(err).Str("instrument", cfg.Instrument).Msg("shadow: failed to promote recovered symbol")
		return
	}

	accNum := cfg.AccountNumber
	entry := domain.DecisionLogEntry{
		AccountNumber: &accNum, Type: domain.DecisionSymbolRecovery, Outcome: "shadow_recovered",
		Reason: fmt.Sprintf("shadow trades over %dd: win_rate=%.1f%% count=%d total_pl=%.2f cleared recovery thresholds",
			e.cfg.RecoveryWindowDays, stats.WinRate()*100, stats.TradeCount, stats.TotalHypotheticalPL),
		Context: map[string]interface{}{"instrument": cfg.Instrument, "direction": cfg.Direction},
	}
	e.logger.AppendSafe(ctx, entry)
}
