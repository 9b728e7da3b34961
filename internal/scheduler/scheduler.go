// Package scheduler runs every periodic worker loop of the trading core on
// its own ticker, grounded on the teacher's internal/bot/bot.go
// ticker-per-task idiom (runStrategy/monitorPositions, stopChan+WaitGroup
// shutdown). Each loop below is the generalized counterpart of one of the
// teacher's goroutines: signal generation replaces strategy evaluation,
// the trade monitor/drawdown guard/shadow engine replace position
// monitoring, and the cleanup/command-sweep/risk-recompute loops are new,
// since the teacher's Binance bot had no EA command queue or dynamic risk
// state to maintain.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/MikeHotel0815/ngTradingBot-sub001/config"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/domain"
)

// Store is the subset of internal/store the scheduler depends on directly
// (every individual worker depends on its own narrower Store interface).
type Store interface {
	ListActiveAccounts(ctx context.Context) ([]*domain.Account, error)
	ListSubscriptions(ctx context.Context, accountNumber int64) ([]domain.SubscribedSymbol, error)
	ListSymbolConfigs(ctx context.Context, accountNumber int64) ([]*domain.SymbolTradingConfig, error)
	ExpireStaleSignals(ctx context.Context, maxAge, deleteAfter time.Duration) (expired, deleted int64, err error)
	DeleteStaleTicks(ctx context.Context) (int64, error)
}

// SignalGenerator is internal/signals.Generator's entry point.
type SignalGenerator interface {
	Generate(ctx context.Context, accountNumber int64, instrument string, tf domain.Timeframe) error
}

// AutoTrader is internal/autotrader.Engine's entry point. Optional: nil
// disables the loop, letting the scheduler be wired up incrementally as
// later packages land.
type AutoTrader interface {
	Scan(ctx context.Context)
}

// TradeMonitor is internal/trademonitor.Monitor's entry point.
type TradeMonitor interface {
	Scan(ctx context.Context)
}

// DrawdownGuard is internal/drawdown.Guard's entry point.
type DrawdownGuard interface {
	Scan(ctx context.Context)
}

// ShadowEngine is internal/shadow.Engine's entry point.
type ShadowEngine interface {
	Scan(ctx context.Context)
	RunRecovery(ctx context.Context, accountNumber int64)
}

// DynRiskManager is internal/dynrisk.Manager's entry point.
type DynRiskManager interface {
	RecomputeDaily(ctx context.Context)
	RecomputeWeekly(ctx context.Context)
}

// CommandSweeper is internal/commands.Queue's entry point.
type CommandSweeper interface {
	Sweep(ctx context.Context) (redelivered, timedOut int64, err error)
}

// Optimizer is internal/optimizer.Optimizer's entry point.
type Optimizer interface {
	ResumeExpiredPauses(ctx context.Context, configs []*domain.SymbolTradingConfig)
}

// CircuitBreaker is internal/circuit.Breaker's entry point.
type CircuitBreaker interface {
	Scan(ctx context.Context)
}

// signalTimeframes are the timeframes the generator runs on, per spec.md's
// "per-account, per-(instrument, timeframe) tick" trigger. D1 is
// deliberately excluded: a daily bar only closes once a day, so re-running
// signal generation on it every 10s would recompute an unchanged consensus;
// it remains available as OHLC context for the indicator engine's regime
// filter without being its own signal key.
var signalTimeframes = []domain.Timeframe{domain.TimeframeM5, domain.TimeframeM15, domain.TimeframeH1, domain.TimeframeH4}

// Scheduler owns every periodic background loop. Collaborators beyond Store
// are optional (nil-safe) so the scheduler can be constructed and started
// before every downstream package exists.
type Scheduler struct {
	store     Store
	signals   SignalGenerator
	autoTrade AutoTrader
	monitor   TradeMonitor
	drawdown  DrawdownGuard
	shadow    ShadowEngine
	risk      DynRiskManager
	queue     CommandSweeper
	optimizer Optimizer
	circuit   CircuitBreaker

	signalCfg    config.SignalConfig
	autoCfg      config.AutoTraderConfig
	monitorCfg   config.TradeMonitorConfig
	drawdownCfg  config.DrawdownConfig
	schedulerCfg config.SchedulerConfig

	stopCh chan struct{}
	wg     sync.WaitGroup
}

type Deps struct {
	Store     Store
	Signals   SignalGenerator
	AutoTrade AutoTrader
	Monitor   TradeMonitor
	Drawdown  DrawdownGuard
	Shadow    ShadowEngine
	Risk      DynRiskManager
	Queue     CommandSweeper
	Optimizer Optimizer
	Circuit   CircuitBreaker
}

func New(d Deps, signalCfg config.SignalConfig, autoCfg config.AutoTraderConfig, monitorCfg config.TradeMonitorConfig, drawdownCfg config.DrawdownConfig, schedulerCfg config.SchedulerConfig) *Scheduler {
	return &Scheduler{
		store: d.Store, signals: d.Signals, autoTrade: d.AutoTrade, monitor: d.Monitor,
		drawdown: d.Drawdown, shadow: d.Shadow, risk: d.Risk, queue: d.Queue, optimizer: d.Optimizer,
		circuit: d.Circuit,
		signalCfg: signalCfg, autoCfg: autoCfg, monitorCfg: monitorCfg, drawdownCfg: drawdownCfg,
		schedulerCfg: schedulerCfg,
		stopCh:       make(chan struct{}),
	}
}

// Start launches every configured loop as its own goroutine. Loops whose
// collaborator is nil are skipped.
func (s *Scheduler) Start(ctx context.Context) {
	s.spawn(ctx, s.signalCfg.BaseCadence, s.runSignalLoop, s.signals != nil)
	s.spawn(ctx, s.autoCfg.Cadence, s.runAutoTraderLoop, s.autoTrade != nil)
	s.spawn(ctx, s.monitorCfg.ScanInterval, s.runTradeMonitorLoop, s.monitor != nil)
	s.spawn(ctx, s.drawdownCfg.ScanInterval, s.runDrawdownLoop, s.drawdown != nil)
	s.spawn(ctx, s.monitorCfg.ScanInterval, s.runShadowScanLoop, s.shadow != nil)
	s.spawn(ctx, s.schedulerCfg.ShadowRecoveryInterval, s.runShadowRecoveryLoop, s.shadow != nil)
	s.spawn(ctx, s.schedulerCfg.DynamicRiskInterval, s.runDynRiskDailyLoop, s.risk != nil)
	s.spawn(ctx, s.schedulerCfg.RRRecalcInterval, s.runDynRiskWeeklyLoop, s.risk != nil)
	s.spawn(ctx, s.schedulerCfg.CleanupInterval, s.runCommandSweepLoop, s.queue != nil)
	s.spawn(ctx, s.schedulerCfg.CleanupInterval, s.runOptimizerResumeLoop, s.optimizer != nil)
	s.spawn(ctx, s.schedulerCfg.CircuitCheckInterval, s.runCircuitBreakerLoop, s.circuit != nil)
	s.spawn(ctx, s.schedulerCfg.CleanupInterval, s.runSignalCleanupLoop, true)
	s.spawn(ctx, s.schedulerCfg.TickCleanupInterval, s.runTickCleanupLoop, true)
	log.Info().Msg("scheduler: all loops started")
}

// Stop signals every loop to exit and blocks until they have.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	log.Info().Msg("scheduler: all loops stopped")
}

func (s *Scheduler) spawn(ctx context.Context, interval time.Duration, task func(context.Context), enabled bool) {
	if !enabled || interval <= 0 {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				task(ctx)
			case <-s.stopCh:
				return
			}
		}
	}()
}

func (s *Scheduler) runSignalLoop(ctx context.Context) {
	accounts, err := s.store.ListActiveAccounts(ctx)
	if err != nil {
		log.Error().Err(err).Msg("scheduler: failed to list accounts for signal loop")
		return
	}
	for _, acc := range accounts {
		subs, err := s.store.ListSubscriptions(ctx, acc.AccountNumber)
		if err != nil {
			log.Error().Err(err).Int64("account_number", acc.AccountNumber).Msg("scheduler: failed to list subscriptions")
			continue
		}
		for _, sub := range subs {
			if !sub.Active || sub.ShadowMode {
				continue
			}
			for _, tf := range signalTimeframes {
				if err := s.signals.Generate(ctx, acc.AccountNumber, sub.Instrument, tf); err != nil {
					log.Error().Err(err).Str("instrument", sub.Instrument).Str("timeframe", string(tf)).
						Msg("scheduler: signal generation failed")
				}
			}
		}
	}
}

func (s *Scheduler) runAutoTraderLoop(ctx context.Context)   { s.autoTrade.Scan(ctx) }
func (s *Scheduler) runTradeMonitorLoop(ctx context.Context) { s.monitor.Scan(ctx) }
func (s *Scheduler) runDrawdownLoop(ctx context.Context)     { s.drawdown.Scan(ctx) }
func (s *Scheduler) runShadowScanLoop(ctx context.Context)   { s.shadow.Scan(ctx) }
func (s *Scheduler) runCircuitBreakerLoop(ctx context.Context) { s.circuit.Scan(ctx) }

func (s *Scheduler) runShadowRecoveryLoop(ctx context.Context) {
	accounts, err := s.store.ListActiveAccounts(ctx)
	if err != nil {
		log.Error().Err(err).Msg("scheduler: failed to list accounts for shadow recovery")
		return
	}
	for _, acc := range accounts {
		s.shadow.RunRecovery(ctx, acc.AccountNumber)
	}
}

func (s *Scheduler) runDynRiskDailyLoop(ctx context.Context)  { s.risk.RecomputeDaily(ctx) }
func (s *Scheduler) runDynRiskWeeklyLoop(ctx context.Context) { s.risk.RecomputeWeekly(ctx) }

func (s *Scheduler) runCommandSweepLoop(ctx context.Context) {
	redelivered, timedOut, err := s.queue.Sweep(ctx)
	if err != nil {
		log.Error().Err(err).Msg("scheduler: command sweep failed")
		return
	}
	if redelivered > 0 || timedOut > 0 {
		log.Info().Int64("redelivered", redelivered).Int64("timed_out", timedOut).Msg("scheduler: command sweep")
	}
}

func (s *Scheduler) runOptimizerResumeLoop(ctx context.Context) {
	accounts, err := s.store.ListActiveAccounts(ctx)
	if err != nil {
		log.Error().Err(err).Msg("scheduler: failed to list accounts for optimizer resume sweep")
		return
	}
	for _, acc := range accounts {
		cfgs, err := s.store.ListSymbolConfigs(ctx, acc.AccountNumber)
		if err != nil {
			log.Error().Err(err).Int64("account_number", acc.AccountNumber).Msg("scheduler: failed to list symbol configs")
			continue
		}
		s.optimizer.ResumeExpiredPauses(ctx, cfgs)
	}
}

func (s *Scheduler) runSignalCleanupLoop(ctx context.Context) {
	expired, deleted, err := s.store.ExpireStaleSignals(ctx, s.signalCfg.ActiveRetention, s.signalCfg.ExpiredRetention)
	if err != nil {
		log.Error().Err(err).Msg("scheduler: signal cleanup failed")
		return
	}
	if expired > 0 || deleted > 0 {
		log.Info().Int64("expired", expired).Int64("deleted", deleted).Msg("scheduler: signal cleanup")
	}
}

func (s *Scheduler) runTickCleanupLoop(ctx context.Context) {
	deleted, err := s.store.DeleteStaleTicks(ctx)
	if err != nil {
		log.Error().Err(err).Msg("scheduler: tick cleanup failed")
		return
	}
	if deleted > 0 {
		log.Info().Int64("deleted", deleted).Msg("scheduler: tick cleanup")
	}
}
