// Package circuit implements the account-level circuit breaker of spec.md
// §4.6: a periodic scan trips auto-trading off when an account's daily
// realized loss, total drawdown from its peak balance, or consecutive
// command-failure streak crosses its configured threshold, and clears
// failure-type trips automatically once the cooldown elapses. Loss-type
// trips (daily loss, total drawdown) never auto-resume — they require an
// operator's ResetCircuitBreaker call, matching spec.md's "auto-resume after cooldown
// (default 5 min for failure-type, none for loss-type)".
//
// This package intentionally does not duplicate internal/drawdown's
// three-tier soft-warn/pause/emergency response: drawdown.Guard already
// persists its own trips through the same accounts.circuit_tripped column,
// using a shorter-horizon, start-of-day-balance metric. circuit.Breaker adds
// the two conditions drawdown.Guard does not cover — true peak-to-trough
// drawdown and command-failure streaks — and owns auto-resume for the one
// condition (failures) spec.md says should self-heal.
package circuit

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/MikeHotel0815/ngTradingBot-sub001/config"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/apperr"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/domain"
)

// reasonFailurePrefix tags trips this package raised for the consecutive
// command-failure condition, so Scan can tell a cooldown-eligible trip from
// a loss-type trip (raised by this package or by internal/drawdown) that
// requires a manual ResetCircuitBreaker call.
const reasonFailurePrefix = "consecutive_failures"

// Store is the subset of internal/store the breaker depends on.
type Store interface {
	ListActiveAccounts(ctx context.Context) ([]*domain.Account, error)
	CountConsecutiveFailedCommands(ctx context.Context, accountNumber int64, lookback time.Duration) (int, error)
	TripCircuitBreaker(ctx context.Context, accountNumber int64, reason string) error
	ResetCircuitBreaker(ctx context.Context, accountNumber int64) error
}

// DecisionLogger is the subset of internal/decisionlog.Logger the breaker
// depends on.
type DecisionLogger interface {
	AppendSafe(ctx context.Context, d domain.DecisionLogEntry)
}

// Breaker runs the periodic circuit-breaker scan across every active
// account. It holds no per-account in-memory state of its own — every trip
// condition is re-derived each scan from the store, so a process restart
// can't lose or duplicate a trip.
type Breaker struct {
	store  Store
	logger DecisionLogger
	cfg    config.AutoTraderConfig
}

func New(store Store, logger DecisionLogger, cfg config.AutoTraderConfig) *Breaker {
	return &Breaker{store: store, logger: logger, cfg: cfg}
}

// Scan evaluates every active account once: auto-resumes failure-type trips
// past cooldown, then checks the three trip conditions for accounts not
// already tripped.
func (b *Breaker) Scan(ctx context.Context) {
	var accounts []*domain.Account
	err := apperr.Retry(ctx, func() error {
		var rerr error
		accounts, rerr = b.store.ListActiveAccounts(ctx)
		return apperr.Wrap(apperr.Transient, "list active accounts", rerr)
	})
	if err != nil {
		b.escalate(ctx, nil, "list_active_accounts", err)
		return
	}
	for _, acc := range accounts {
		b.scanOne(ctx, acc)
	}
}

func (b *Breaker) scanOne(ctx context.Context, acc *domain.Account) {
	if acc.CircuitTripped {
		b.maybeAutoResume(ctx, acc)
		return
	}

	if reason, tripped := b.checkDailyLoss(acc); tripped {
		b.trip(ctx, acc, reason)
		return
	}
	if reason, tripped := b.checkTotalDrawdown(acc); tripped {
		b.trip(ctx, acc, reason)
		return
	}
	if reason, tripped := b.checkConsecutiveFailures(ctx, acc); tripped {
		b.trip(ctx, acc, reason)
		return
	}
}

func (b *Breaker) checkDailyLoss(acc *domain.Account) (string, bool) {
	if acc.StartOfDayBalance <= 0 {
		return "", false
	}
	// Reuses Balance rather than querying TodayRealizedPnL a second time
	// here — the realized+floating figure drawdown.Guard computes already
	// drives its own pause/emergency response; this is the coarser
	// "balance fell N% since the day started" check spec.md's
	// circuit-breaker paragraph names as a distinct condition.
	lossPct := -((acc.Balance - acc.StartOfDayBalance) / acc.StartOfDayBalance) * 100
	if lossPct >= b.cfg.DailyLossCircuitPct {
		return fmt.Sprintf("daily_loss: balance down %.2f%% from start-of-day (limit %.2f%%)", lossPct, b.cfg.DailyLossCircuitPct), true
	}
	return "", false
}

func (b *Breaker) checkTotalDrawdown(acc *domain.Account) (string, bool) {
	if acc.PeakBalance <= 0 {
		return "", false
	}
	ddPct := ((acc.PeakBalance - acc.Equity) / acc.PeakBalance) * 100
	if ddPct >= b.cfg.TotalDrawdownCircuitPct {
		return fmt.Sprintf("total_drawdown: equity down %.2f%% from peak balance %.2f (limit %.2f%%)", ddPct, acc.PeakBalance, b.cfg.TotalDrawdownCircuitPct), true
	}
	return "", false
}

func (b *Breaker) checkConsecutiveFailures(ctx context.Context, acc *domain.Account) (string, bool) {
	var streak int
	err := apperr.Retry(ctx, func() error {
		var rerr error
		streak, rerr = b.store.CountConsecutiveFailedCommands(ctx, acc.AccountNumber, 24*time.Hour)
		return apperr.Wrap(apperr.Transient, "consecutive failed command count", rerr)
	})
	if err != nil {
		an := acc.AccountNumber
		b.escalate(ctx, &an, "count_consecutive_failed_commands", err)
		return "", false
	}
	if streak >= b.cfg.ConsecutiveFailuresTrip {
		return fmt.Sprintf("%s: %d commands failed in a row (limit %d)", reasonFailurePrefix, streak, b.cfg.ConsecutiveFailuresTrip), true
	}
	return "", false
}

func (b *Breaker) trip(ctx context.Context, acc *domain.Account, reason string) {
	if err := b.store.TripCircuitBreaker(ctx, acc.AccountNumber, reason); err != nil {
		log.Error().Err(err).Int64("account", acc.AccountNumber).Msg("circuit: failed to persist trip")
		return
	}
	log.Warn().Int64("account", acc.AccountNumber).Str("reason", reason).Msg("circuit: tripped")
	an := acc.AccountNumber
	b.appendDecision(ctx, domain.DecisionLogEntry{
		AccountNumber: &an,
		Type:          domain.DecisionCircuitBreaker,
		Outcome:       "tripped",
		Reason:        reason,
	})
}

// maybeAutoResume clears the trip once FailureCooldown has elapsed, but only
// for trips this package raised for the consecutive-failure condition.
// Loss-type trips (this package's daily_loss/total_drawdown, or any trip
// raised by internal/drawdown) are left for an operator to clear.
func (b *Breaker) maybeAutoResume(ctx context.Context, acc *domain.Account) {
	if len(acc.CircuitReason) < len(reasonFailurePrefix) || acc.CircuitReason[:len(reasonFailurePrefix)] != reasonFailurePrefix {
		return
	}
	if acc.CircuitTrippedAt == nil || time.Since(*acc.CircuitTrippedAt) < b.cfg.FailureCooldown {
		return
	}
	if err := b.store.ResetCircuitBreaker(ctx, acc.AccountNumber); err != nil {
		log.Error().Err(err).Int64("account", acc.AccountNumber).Msg("circuit: failed to auto-resume")
		return
	}
	log.Info().Int64("account", acc.AccountNumber).Msg("circuit: auto-resumed after failure cooldown")
	an := acc.AccountNumber
	b.appendDecision(ctx, domain.DecisionLogEntry{
		AccountNumber: &an,
		Type:          domain.DecisionCircuitBreaker,
		Outcome:       "auto_resumed",
		Reason:        "failure cooldown elapsed",
	})
}

func (b *Breaker) appendDecision(ctx context.Context, d domain.DecisionLogEntry) {
	b.logger.AppendSafe(ctx, d)
}

// escalate logs a retry-exhausted store failure and appends a decision-log
// entry. accountNumber is nil for failures that aren't scoped to one account
// (e.g. listing active accounts).
func (b *Breaker) escalate(ctx context.Context, accountNumber *int64, op string, err error) {
	ev := log.Error().Err(err).Str("op", op)
	if accountNumber != nil {
		ev = ev.Int64("account_number", *accountNumber)
	}
	ev.Msg("circuit: store call failed after retries")
	b.logger.AppendSafe(ctx, domain.DecisionLogEntry{
		AccountNumber: accountNumber, Type: domain.DecisionRetryExhausted, Outcome: "escalated",
		Reason:  fmt.Sprintf("%s: %v", op, err),
		Context: map[string]interface{}{"op": op},
	})
}
