// Package drawdown implements the account-level daily loss protection of
// spec.md §4.9: a periodic scan compares today's realized+floating P&L
// against the account's start-of-day balance, raising a soft warning, then
// pausing new trade issuance, then force-closing every open position once
// losses cross the emergency threshold. The pause and the emergency stop are
// persisted through internal/store's account auto-trading flag and
// circuit-breaker columns respectively, so a process
// restart cannot silently re-enable trading mid-drawdown, the same
// survive-restart property the teacher's internal/risk/manager.go relies on
// for its daily-PnL reset.
package drawdown

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/MikeHotel0815/ngTradingBot-sub001/config"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/apperr"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/commands"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/domain"
)

// Store is the subset of internal/store the drawdown guard depends on.
type Store interface {
	ListActiveAccounts(ctx context.Context) ([]*domain.Account, error)
	TodayRealizedPnL(ctx context.Context, accountNumber int64) (float64, error)
	ListOpenTradesForAccount(ctx context.Context, accountNumber int64) ([]*domain.Trade, error)
	SetAutoTrading(ctx context.Context, accountNumber int64, enabled bool) error
	TripCircuitBreaker(ctx context.Context, accountNumber int64, reason string) error
}

// DecisionLogger is the subset of internal/decisionlog.Logger the guard
// depends on.
type DecisionLogger interface {
	AppendSafe(ctx context.Context, d domain.DecisionLogEntry)
}

// Guard runs the periodic drawdown scan across every active account.
type Guard struct {
	store  Store
	queue  *commands.Queue
	logger DecisionLogger
	cfg    config.DrawdownConfig
	// warned tracks accounts that have already received a soft-warning today,
	// so the decision log isn't spammed once per scan interval.
	warned map[int64]bool
}

func New(store Store, queue *commands.Queue, logger DecisionLogger, cfg config.DrawdownConfig) *Guard {
	return &Guard{store: store, queue: queue, logger: logger, cfg: cfg, warned: map[int64]bool{}}
}

// Scan evaluates every active account once.
func (g *Guard) Scan(ctx context.Context) {
	accounts, err := g.store.ListActiveAccounts(ctx)
	if err != nil {
		log.Error().Err(err).Msg("drawdown: failed to list active accounts")
		return
	}
	for _, acc := range accounts {
		g.scanOne(ctx, acc)
	}
}

func (g *Guard) scanOne(ctx context.Context, acc *domain.Account) {
	if acc.StartOfDayBalance <= 0 {
		return
	}
	var floating float64
	err := apperr.Retry(ctx, func() error {
		var rerr error
		floating, rerr = g.floatingPnL(ctx, acc)
		return apperr.Wrap(apperr.Transient, "floating pnl lookup", rerr)
	})
	if err != nil {
		g.escalate(ctx, acc, "floating_pnl_lookup", err)
		return
	}
	var realized float64
	err = apperr.Retry(ctx, func() error {
		var rerr error
		realized, rerr = g.store.TodayRealizedPnL(ctx, acc.AccountNumber)
		return apperr.Wrap(apperr.Transient, "realized pnl lookup", rerr)
	})
	if err != nil {
		g.escalate(ctx, acc, "realized_pnl_lookup", err)
		return
	}

	lossPct := -((realized + floating) / acc.StartOfDayBalance) * 100
	if lossPct <= 0 {
		g.warned[acc.AccountNumber] = false
		return
	}

	switch {
	case lossPct >= g.cfg.EmergencyLimitPct:
		g.emergency(ctx, acc, lossPct)
	case lossPct >= g.cfg.DailyLossLimitPct:
		g.pause(ctx, acc, lossPct)
	case lossPct >= g.cfg.SoftWarningPct:
		g.softWarn(ctx, acc, lossPct)
	}
}

func (g *Guard) floatingPnL(ctx context.Context, acc *domain.Account) (float64, error) {
	trades, err := g.store.ListOpenTradesForAccount(ctx, acc.AccountNumber)
	if err != nil {
		return 0, err
	}
	var total float64
	for _, t := range trades {
		total += t.Profit
	}
	return total, nil
}

func (g *Guard) softWarn(ctx context.Context, acc *domain.Account, lossPct float64) {
	if g.warned[acc.AccountNumber] {
		return
	}
	g.warned[acc.AccountNumber] = true
	g.log(ctx, acc, domain.DecisionPerformanceAlert, "soft_warning",
		fmt.Sprintf("daily loss %.2f%% exceeds soft warning threshold %.2f%%", lossPct, g.cfg.SoftWarningPct))
}

func (g *Guard) pause(ctx context.Context, acc *domain.Account, lossPct float64) {
	if !acc.AutoTradingEnabled {
		return
	}
	if err := g.store.SetAutoTrading(ctx, acc.AccountNumber, false); err != nil {
		log.Error().Err(err).Int64("account_number", acc.AccountNumber).Msg("drawdown: failed to pause auto-trading")
		return
	}
	acc.AutoTradingEnabled = false
	g.log(ctx, acc, domain.DecisionCircuitBreaker, "trading_paused",
		fmt.Sprintf("daily loss %.2f%% reached the daily loss limit %.2f%%, new entries suspended", lossPct, g.cfg.DailyLossLimitPct))
}

func (g *Guard) emergency(ctx context.Context, acc *domain.Account, lossPct float64) {
	if acc.CircuitTripped {
		return
	}
	reason := fmt.Sprintf("daily loss %.2f%% reached the emergency limit %.2f%%", lossPct, g.cfg.EmergencyLimitPct)
	if err := g.store.TripCircuitBreaker(ctx, acc.AccountNumber, reason); err != nil {
		log.Error().Err(err).Int64("account_number", acc.AccountNumber).Msg("drawdown: failed to trip circuit breaker")
		return
	}
	acc.CircuitTripped = true
	g.log(ctx, acc, domain.DecisionCircuitBreaker, "emergency_stop", reason)
	g.forceCloseAll(ctx, acc)
}

func (g *Guard) forceCloseAll(ctx context.Context, acc *domain.Account) {
	trades, err := g.store.ListOpenTradesForAccount(ctx, acc.AccountNumber)
	if err != nil {
		log.Error().Err(err).Int64("account_number", acc.AccountNumber).Msg("drawdown: failed to list open trades for force-close")
		return
	}
	now := time.Now().UTC()
	for _, t := range trades {
		cmd := &domain.Command{
			AccountNumber: acc.AccountNumber,
			Type:          domain.CmdCloseTrade,
			Status:        domain.CommandPending,
			TimeoutAt:     now.Add(5 * time.Minute),
			Payload:       map[string]interface{}{"ticket": t.Ticket, "close_reason": string(domain.CloseEmergency)},
		}
		cmd.ID = commands.CommandID(fmt.Sprintf("drawdown-%d-%d", acc.AccountNumber, t.Ticket), now)
		if err := g.queue.Emit(ctx, cmd); err != nil {
			log.Error().Err(err).Int64("trade_id", t.ID).Msg("drawdown: force-close emission failed")
		}
	}
}

func (g *Guard) log(ctx context.Context, acc *domain.Account, dt domain.DecisionType, outcome, reason string) {
	accNum := acc.AccountNumber
	entry := domain.DecisionLogEntry{
		AccountNumber: &accNum, Type: dt, Outcome: outcome, Reason: reason,
		Context: map[string]interface{}{"start_of_day_balance": acc.StartOfDayBalance},
	}
	g.logger.AppendSafe(ctx, entry)
}

// escalate records a decision-log entry once a store call has exhausted
// apperr.MaxAttempts retries, per spec.md §7's transient-error policy.
func (g *Guard) escalate(ctx context.Context, acc *domain.Account, op string, err error) {
	log.Error().Err(err).Int64("account_number", acc.AccountNumber).Str("op", op).Msg("drawdown: store call failed after retries")
	accNum := acc.AccountNumber
	g.logger.AppendSafe(ctx, domain.DecisionLogEntry{
		AccountNumber: &accNum, Type: domain.DecisionRetryExhausted, Outcome: "escalated",
		Reason:  fmt.Sprintf("%s: %v", op, err),
		Context: map[string]interface{}{"op": op},
	})
}
