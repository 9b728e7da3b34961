package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/MikeHotel0815/ngTradingBot-sub001/config"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/autotrader"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/cache"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/circuit"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/commands"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/dashboard"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/decisionlog"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/drawdown"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/dynrisk"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/events"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/indicators"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/ingestion"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/optimizer"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/patterns"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/scheduler"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/shadow"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/signals"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/store"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/trademonitor"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/vault"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	setupLogging(cfg.LoggingConfig)
	log.Info().Msg("configuration loaded")

	eventBus := events.NewEventBus()

	ctx, cancelBoot := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelBoot()

	db, err := store.New(ctx, store.Config{
		Host:     cfg.DatabaseConfig.Host,
		Port:     cfg.DatabaseConfig.Port,
		User:     cfg.DatabaseConfig.User,
		Password: cfg.DatabaseConfig.Password,
		Database: cfg.DatabaseConfig.Database,
		SSLMode:  cfg.DatabaseConfig.SSLMode,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to store")
	}
	log.Info().Msg("store connected")

	var cacheService *cache.CacheService
	if cfg.RedisConfig.Enabled {
		cacheService, err = cache.NewCacheService(cfg.RedisConfig)
		if err != nil {
			log.Warn().Err(err).Msg("cache unavailable, continuing without it")
			cacheService = nil
		} else {
			log.Info().Msg("cache connected")
		}
	}

	vaultClient, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		log.Warn().Err(err).Msg("vault unavailable, continuing without it")
		vaultClient = nil
	} else if cfg.VaultConfig.Enabled {
		log.Info().Msg("vault connected")
	}

	indicatorEngine := indicators.NewEngine(db, cacheService, cfg.IndicatorConfig)
	patternDetector := patterns.NewDetector(0.1)

	var newsFilter signals.NewsGate
	if cfg.NewsConfig.Enabled {
		newsFilter = signals.NewNewsFilter(cfg.NewsConfig)
		log.Info().Msg("news filter enabled")
	}

	decisionLogger := decisionlog.New(db, eventBus)

	signalGenerator := signals.New(db, indicatorEngine, patternDetector, eventBus, nil, newsFilter, decisionLogger, cfg.SignalConfig, cfg.AutoTraderConfig)
	commandQueue := commands.New(db, eventBus, decisionLogger, cfg.CommandQueueConfig)
	tradeMonitor := trademonitor.New(db, commandQueue, eventBus, signalGenerator, decisionLogger, cfg.TradeMonitorConfig)
	drawdownGuard := drawdown.New(db, commandQueue, decisionLogger, cfg.DrawdownConfig)
	shadowEngine := shadow.New(db, decisionLogger, cfg.ShadowConfig)
	riskManager := dynrisk.New(db, decisionLogger, cfg.RiskConfig, cfg.AutoTraderConfig.RiskProfileFor("moderate"))
	tradeOptimizer := optimizer.New(db, decisionLogger)
	circuitBreaker := circuit.New(db, decisionLogger, cfg.AutoTraderConfig)
	autoTrader := autotrader.New(db, commandQueue, shadowEngine, decisionLogger, cfg.AutoTraderConfig)

	// cacheService is a typed *cache.CacheService; passed directly it would
	// satisfy ingestion.TickCache as a non-nil interface wrapping a nil
	// pointer, defeating TickBuffer's "cache != nil" guard when Redis is
	// disabled. Pass a genuinely nil interface in that case instead.
	var tickCache ingestion.TickCache
	if cacheService != nil {
		tickCache = cacheService
	}
	tickBuffer := ingestion.NewTickBuffer(db, tickCache, cfg.IngestionConfig)

	// Same typed-nil-interface pitfall as tickCache above: only hand
	// Handlers a non-nil CredentialVault when vault actually initialized.
	var credentialVault ingestion.CredentialVault
	if vaultClient != nil {
		credentialVault = vaultClient
	}
	handlers := ingestion.NewHandlers(db, tickBuffer, commandQueue, tradeOptimizer, credentialVault, decisionLogger, eventBus)
	ingestionServer := ingestion.NewServer(cfg.ServerConfig, handlers, tickBuffer)

	sched := scheduler.New(scheduler.Deps{
		Store:     db,
		Signals:   signalGenerator,
		AutoTrade: autoTrader,
		Monitor:   tradeMonitor,
		Drawdown:  drawdownGuard,
		Shadow:    shadowEngine,
		Risk:      riskManager,
		Queue:     commandQueue,
		Optimizer: tradeOptimizer,
		Circuit:   circuitBreaker,
	}, cfg.SignalConfig, cfg.AutoTraderConfig, cfg.TradeMonitorConfig, cfg.DrawdownConfig, cfg.SchedulerConfig)

	dashboardServer := dashboard.New(cfg.ServerConfig, cfg.AuthConfig, db, commandQueue, eventBus)

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	tickBuffer.Start(runCtx)
	ingestionServer.Start()
	sched.Start(runCtx)
	dashboardServer.Start()
	log.Info().Msg("trading core started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down")
	cancelRun()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := ingestionServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error shutting down ingestion server")
	}
	if err := dashboardServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error shutting down dashboard server")
	}
	sched.Stop()
	tickBuffer.Stop()
	db.Close()

	log.Info().Msg("shutdown complete")
}

// setupLogging configures zerolog's global logger the way every package in
// the tree consumes it, via github.com/rs/zerolog/log.
func setupLogging(cfg config.LoggingConfig) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	out := os.Stdout
	if cfg.Output == "stderr" {
		out = os.Stderr
	}

	if cfg.JSONFormat {
		log.Logger = zerolog.New(out).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
}
